package meter

import (
	"log/slog"

	"github.com/fishlinghu/magma/credit"
)

// LogMeter logs credit accounting events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ credit.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnReport(e credit.ReportEvent) {
	m.Logger.Info("usage_report",
		"session", e.SessionID,
		"charging_key", e.ChargingKey,
		"txn", e.TransactionID,
		"reason", e.Type.String(),
		"bytes_tx", e.Usage.BytesTx,
		"bytes_rx", e.Usage.BytesRx,
		"termination", e.Termination,
	)
}

func (m *LogMeter) OnGrant(e credit.GrantEvent) {
	m.Logger.Info("grant",
		"session", e.SessionID,
		"charging_key", e.ChargingKey,
		"total", e.Grant.Total,
		"tx", e.Grant.Tx,
		"rx", e.Grant.Rx,
		"validity", e.Grant.Validity,
		"final", e.Grant.IsFinal,
	)
}

func (m *LogMeter) OnAction(e credit.ActionEvent) {
	m.Logger.Info("enforcement_action",
		"session", e.SessionID,
		"charging_key", e.ChargingKey,
		"action", e.Action.String(),
	)
}

func (m *LogMeter) OnReportFailure(e credit.FailureEvent) {
	if e.Escalated {
		m.Logger.Warn("report_failure_escalated",
			"session", e.SessionID,
			"charging_key", e.ChargingKey,
		)
	} else {
		m.Logger.Warn("report_failure",
			"session", e.SessionID,
			"charging_key", e.ChargingKey,
		)
	}
}
