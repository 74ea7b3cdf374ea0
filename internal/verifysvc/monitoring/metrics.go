package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification service.
type Metrics struct {
	AttemptsTotal    *prometheus.CounterVec
	AssignmentsTotal *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_attempts_total",
			Help: "The total number of verification attempts by outcome",
		}, []string{"outcome"}), // 'passed', 'rejected'
		AssignmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_link_assignments_total",
			Help: "The total number of newly assigned download links",
		}, nil),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_errors_total",
			Help: "The total number of degraded dependency calls",
		}, []string{"type"}), // e.g. 'ledger_write', 'catalog_load', 'cache_read'
	}
}

// The Inc helpers tolerate a nil receiver so collaborators built
// without metrics (tests, embeddings) need no guards at call sites.

func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAssignment() {
	if m == nil {
		return
	}
	m.AssignmentsTotal.WithLabelValues().Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
