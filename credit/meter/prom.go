package meter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fishlinghu/magma/credit"
)

// PromMeter exports credit accounting events as Prometheus metrics.
type PromMeter struct {
	reports      *prometheus.CounterVec
	reportedTx   prometheus.Counter
	reportedRx   prometheus.Counter
	grants       prometheus.Counter
	grantedBytes prometheus.Counter
	actions      *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

var _ credit.Meter = (*PromMeter)(nil)

// NewPromMeter creates a PromMeter and registers its metrics on the given
// registerer. If reg is nil, prometheus.DefaultRegisterer is used.
func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromMeter{
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_usage_reports_total",
			Help: "Usage reports prepared for the charging authority, by reason.",
		}, []string{"reason"}),
		reportedTx: factory.NewCounter(prometheus.CounterOpts{
			Name: "credit_reported_tx_bytes_total",
			Help: "Tx volume packaged into usage reports.",
		}),
		reportedRx: factory.NewCounter(prometheus.CounterOpts{
			Name: "credit_reported_rx_bytes_total",
			Help: "Rx volume packaged into usage reports.",
		}),
		grants: factory.NewCounter(prometheus.CounterOpts{
			Name: "credit_grants_total",
			Help: "Quota grants applied to credit records.",
		}),
		grantedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "credit_granted_bytes_total",
			Help: "Total volume granted by the charging authority.",
		}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_enforcement_actions_total",
			Help: "Enforcement action changes pushed to the data plane, by action.",
		}, []string{"action"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credit_report_failures_total",
			Help: "Report delivery failures fed back into the engine.",
		}, []string{"escalated"}),
	}
}

func (m *PromMeter) OnReport(e credit.ReportEvent) {
	m.reports.WithLabelValues(e.Type.String()).Inc()
	m.reportedTx.Add(float64(e.Usage.BytesTx))
	m.reportedRx.Add(float64(e.Usage.BytesRx))
}

func (m *PromMeter) OnGrant(e credit.GrantEvent) {
	m.grants.Inc()
	m.grantedBytes.Add(float64(e.Grant.Total))
}

func (m *PromMeter) OnAction(e credit.ActionEvent) {
	m.actions.WithLabelValues(e.Action.String()).Inc()
}

func (m *PromMeter) OnReportFailure(e credit.FailureEvent) {
	if e.Escalated {
		m.failures.WithLabelValues("true").Inc()
	} else {
		m.failures.WithLabelValues("false").Inc()
	}
}
