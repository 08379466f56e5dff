package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. Services accept a
// nil *Metrics; every increment helper is nil-safe so tests can skip wiring.
type Metrics struct {
	FactsRecorded   prometheus.Counter
	PolicyDenials   *prometheus.CounterVec
	AuditEntries    prometheus.Counter
	RollupRefreshes prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		FactsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shrinktrack_facts_recorded_total",
			Help: "Total number of shrink events recorded in the ledger",
		}),
		PolicyDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shrinktrack_policy_denials_total",
			Help: "Total number of operations denied by the policy engine",
		}, []string{"reason"}),
		AuditEntries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shrinktrack_audit_entries_total",
			Help: "Total number of audit entries written",
		}),
		RollupRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shrinktrack_rollup_refreshes_total",
			Help: "Total number of rollup refresh runs",
		}),
	}
}

func (m *Metrics) IncrementFactsRecorded() {
	if m != nil {
		m.FactsRecorded.Inc()
	}
}

func (m *Metrics) IncrementPolicyDenials(reason string) {
	if m != nil {
		m.PolicyDenials.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementAuditEntries() {
	if m != nil {
		m.AuditEntries.Inc()
	}
}

func (m *Metrics) IncrementRollupRefreshes() {
	if m != nil {
		m.RollupRefreshes.Inc()
	}
}
