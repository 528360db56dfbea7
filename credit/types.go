package credit

import "time"

// Bucket identifies one of the nine volume counters tracked per charging key.
// Each value is a byte volume. Counters are independently incremented and,
// for the reporting pair, reset.
type Bucket int

const (
	UsedTx Bucket = iota
	UsedRx
	AllowedTotal
	AllowedTx
	AllowedRx
	ReportingTx
	ReportingRx
	ReportedTx
	ReportedRx

	bucketCount
)

func (b Bucket) String() string {
	switch b {
	case UsedTx:
		return "used_tx"
	case UsedRx:
		return "used_rx"
	case AllowedTotal:
		return "allowed_total"
	case AllowedTx:
		return "allowed_tx"
	case AllowedRx:
		return "allowed_rx"
	case ReportingTx:
		return "reporting_tx"
	case ReportingRx:
		return "reporting_rx"
	case ReportedTx:
		return "reported_tx"
	case ReportedRx:
		return "reported_rx"
	default:
		return "unknown"
	}
}

// UpdateType is the reason a usage report must be sent to the charging
// authority, or UpdateNone if no report is due.
type UpdateType int

const (
	UpdateNone UpdateType = iota
	UpdateQuotaExhausted
	UpdateValidityTimer
	UpdateReauth
)

func (u UpdateType) String() string {
	switch u {
	case UpdateNone:
		return "none"
	case UpdateQuotaExhausted:
		return "quota_exhausted"
	case UpdateValidityTimer:
		return "validity_timer"
	case UpdateReauth:
		return "reauth"
	default:
		return "unknown"
	}
}

// ReAuthState tracks a forced re-authorization of a charging key.
type ReAuthState int

const (
	ReAuthNotNeeded ReAuthState = iota
	ReAuthRequired
	ReAuthProcessing
)

func (r ReAuthState) String() string {
	switch r {
	case ReAuthNotNeeded:
		return "not_needed"
	case ReAuthRequired:
		return "required"
	case ReAuthProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// ServiceState tracks the enforcement status of a charging key on the data
// plane. The needs-* values mark records whose desired state has not been
// settled by the action resolver yet.
type ServiceState int

const (
	ServiceEnabled ServiceState = iota
	ServiceNeedsDeactivation
	ServiceDisabled
	ServiceNeedsActivation
)

func (s ServiceState) String() string {
	switch s {
	case ServiceEnabled:
		return "enabled"
	case ServiceNeedsDeactivation:
		return "needs_deactivation"
	case ServiceDisabled:
		return "disabled"
	case ServiceNeedsActivation:
		return "needs_activation"
	default:
		return "unknown"
	}
}

// ServiceAction is the enforcement effect the data plane must apply to a
// charging key's traffic.
type ServiceAction int

const (
	// ActionContinue forwards traffic normally.
	ActionContinue ServiceAction = iota

	// ActionRestrict discards traffic until the charging authority resolves
	// the exhausted quota.
	ActionRestrict

	// ActionTerminate tears down service for the charging key.
	ActionTerminate
)

func (a ServiceAction) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionRestrict:
		return "restrict"
	case ActionTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Usage is a pair of byte volumes, one per traffic direction.
type Usage struct {
	BytesTx uint64 `json:"bytes_tx"`
	BytesRx uint64 `json:"bytes_rx"`
}

// Total returns the combined volume of both directions.
func (u Usage) Total() uint64 { return u.BytesTx + u.BytesRx }

// Grant is a quota allocation received from the charging authority.
type Grant struct {
	// Total is added to the allowed-total bucket; Tx and Rx to the
	// per-direction allowed buckets.
	Total uint64
	Tx    uint64
	Rx    uint64

	// Validity bounds the grant's lifetime. Zero means the grant never
	// expires.
	Validity time.Duration

	// IsFinal marks the last grant the charging authority will issue for
	// this key; once set, quota exhaustion is terminal.
	IsFinal bool
}

// Report is an outgoing usage report prepared for the charging authority.
type Report struct {
	// TransactionID uniquely identifies this reporting transaction.
	TransactionID string

	SessionID   string
	ChargingKey uint32

	// Type is the reason the report was generated.
	Type UpdateType

	// Usage is the consumed-but-unacknowledged volume being reported.
	Usage Usage

	// Termination marks a final, uncapped report sent when the session or
	// charging key is being torn down. No grant is expected in response.
	Termination bool
}
