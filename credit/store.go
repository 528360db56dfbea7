package credit

import (
	"context"
	"time"
)

// Store persists credit record snapshots so a gateway restart does not lose
// accounted usage. The core never requires persistence; a Store is an
// optional collaborator wired into the Manager.
type Store interface {
	// Save upserts the given snapshots.
	Save(ctx context.Context, records []RecordSnapshot) error

	// Load returns all persisted snapshots.
	Load(ctx context.Context) ([]RecordSnapshot, error)

	// Delete removes the snapshot for one record. Deleting a record that
	// was never saved is not an error.
	Delete(ctx context.Context, sessionID string, chargingKey uint32) error
}

// RecordSnapshot is the portable form of one credit record.
type RecordSnapshot struct {
	SessionID   string `json:"session_id"`
	ChargingKey uint32 `json:"charging_key"`

	UsedTx       uint64 `json:"used_tx"`
	UsedRx       uint64 `json:"used_rx"`
	AllowedTotal uint64 `json:"allowed_total"`
	AllowedTx    uint64 `json:"allowed_tx"`
	AllowedRx    uint64 `json:"allowed_rx"`
	ReportingTx  uint64 `json:"reporting_tx"`
	ReportingRx  uint64 `json:"reporting_rx"`
	ReportedTx   uint64 `json:"reported_tx"`
	ReportedRx   uint64 `json:"reported_rx"`

	ReAuthState  ReAuthState  `json:"reauth_state"`
	ServiceState ServiceState `json:"service_state"`
	IsFinal      bool         `json:"is_final"`
	Failed       bool         `json:"failed"`
	Granted      bool         `json:"granted"`

	// Expiry is zero when the current grant never expires.
	Expiry time.Time `json:"expiry"`
}

// Snapshot captures the record's full state. Session identity is filled in
// by the owning manager.
func (c *SessionCredit) Snapshot() RecordSnapshot {
	return RecordSnapshot{
		UsedTx:       c.buckets[UsedTx],
		UsedRx:       c.buckets[UsedRx],
		AllowedTotal: c.buckets[AllowedTotal],
		AllowedTx:    c.buckets[AllowedTx],
		AllowedRx:    c.buckets[AllowedRx],
		ReportingTx:  c.buckets[ReportingTx],
		ReportingRx:  c.buckets[ReportingRx],
		ReportedTx:   c.buckets[ReportedTx],
		ReportedRx:   c.buckets[ReportedRx],
		ReAuthState:  c.reauthState,
		ServiceState: c.serviceState,
		IsFinal:      c.isFinal,
		Failed:       c.failed,
		Granted:      c.granted,
		Expiry:       c.expiry,
	}
}

// NewFromSnapshot rebuilds a record from a snapshot.
func NewFromSnapshot(snap RecordSnapshot, opts ...CreditOption) *SessionCredit {
	c := New(opts...)
	c.buckets[UsedTx] = snap.UsedTx
	c.buckets[UsedRx] = snap.UsedRx
	c.buckets[AllowedTotal] = snap.AllowedTotal
	c.buckets[AllowedTx] = snap.AllowedTx
	c.buckets[AllowedRx] = snap.AllowedRx
	c.buckets[ReportingTx] = snap.ReportingTx
	c.buckets[ReportingRx] = snap.ReportingRx
	c.buckets[ReportedTx] = snap.ReportedTx
	c.buckets[ReportedRx] = snap.ReportedRx
	c.reauthState = snap.ReAuthState
	c.serviceState = snap.ServiceState
	c.isFinal = snap.IsFinal
	c.failed = snap.Failed
	c.granted = snap.Granted
	c.expiry = snap.Expiry
	return c
}
