package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times pipeline steps. A nil *Metrics records nothing.
type Metrics struct {
	steps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the step collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpblog",
			Subsystem: "pipeline",
			Name:      "steps_total",
			Help:      "Pipeline steps by step and outcome.",
		}, []string{"step", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mcpblog",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Pipeline step latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"step"}),
	}
	if reg != nil {
		reg.MustRegister(m.steps, m.duration)
	}
	return m
}

func (m *Metrics) observe(step string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = Classify(err).String()
	}
	m.steps.WithLabelValues(step, outcome).Inc()
	m.duration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}
