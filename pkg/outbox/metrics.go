package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts outbox activity. A nil registerer builds unregistered
// collectors, which is what tests want.
type Metrics struct {
	Enqueued prometheus.Counter
	Attempts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "debtbot",
			Subsystem: "outbox",
			Name:      "enqueued_total",
			Help:      "Outbox items durably written.",
		}),
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debtbot",
			Subsystem: "outbox",
			Name:      "attempts_total",
			Help:      "Delivery attempts by result (sent, failed, exhausted).",
		}, []string{"result"}),
	}
}
