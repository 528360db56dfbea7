package meter

import "github.com/fishlinghu/magma/credit"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ credit.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnReport(credit.ReportEvent)         {}
func (m *NoopMeter) OnGrant(credit.GrantEvent)           {}
func (m *NoopMeter) OnAction(credit.ActionEvent)         {}
func (m *NoopMeter) OnReportFailure(credit.FailureEvent) {}
