package observability

import "github.com/prometheus/client_golang/prometheus"

// BillingMetrics counts document lifecycle events. It satisfies the
// billing service recorder.
type BillingMetrics struct {
	transitions *prometheus.CounterVec
	numbers     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewBillingMetrics registers the billing collectors on reg.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_transitions_total",
			Help: "Committed status transitions by document type.",
		}, []string{"document", "from", "to"}),
		numbers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_numbers_assigned_total",
			Help: "Document numbers assigned by document type.",
		}, []string{"document"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_rejections_total",
			Help: "Rejected billing requests by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.transitions, m.numbers, m.rejections)
	return m
}

func (m *BillingMetrics) Transition(document, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(document, from, to).Inc()
}

func (m *BillingMetrics) NumberAssigned(document string) {
	if m == nil {
		return
	}
	m.numbers.WithLabelValues(document).Inc()
}

func (m *BillingMetrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}
