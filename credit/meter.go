package credit

// Meter observes credit accounting events for monitoring/logging.
type Meter interface {
	// OnReport is called when a usage report is prepared for sending.
	OnReport(event ReportEvent)

	// OnGrant is called when a quota grant is applied to a record.
	OnGrant(event GrantEvent)

	// OnAction is called when a record's enforcement action changes.
	OnAction(event ActionEvent)

	// OnReportFailure is called when a report delivery failure is fed back.
	OnReportFailure(event FailureEvent)
}

// ReportEvent describes a prepared usage report.
type ReportEvent struct {
	SessionID     string
	ChargingKey   uint32
	TransactionID string
	Type          UpdateType
	Usage         Usage
	Termination   bool
}

// GrantEvent describes an applied quota grant.
type GrantEvent struct {
	SessionID   string
	ChargingKey uint32
	Grant       Grant
}

// ActionEvent describes an enforcement action change.
type ActionEvent struct {
	SessionID   string
	ChargingKey uint32
	Action      ServiceAction
}

// FailureEvent describes a report delivery failure.
type FailureEvent struct {
	SessionID   string
	ChargingKey uint32

	// Escalated is true when the failure crossed the threshold and the
	// record was marked for cutoff.
	Escalated bool
}

// noopMeter is the default meter.
type noopMeter struct{}

func (noopMeter) OnReport(ReportEvent)         {}
func (noopMeter) OnGrant(GrantEvent)           {}
func (noopMeter) OnAction(ActionEvent)         {}
func (noopMeter) OnReportFailure(FailureEvent) {}
