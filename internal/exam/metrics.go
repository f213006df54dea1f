package exam

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the exam collectors. A nil *Metrics records nothing.
type Metrics struct {
	started   prometheus.Counter
	completed *prometheus.CounterVec
	advances  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	active    prometheus.Gauge
	fetch     *prometheus.HistogramVec
}

// NewMetrics registers the exam collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Name: "exam_sessions_started_total",
			Help: "Exam sessions moved from not_started to in_progress.",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_sessions_completed_total",
			Help: "Exam sessions completed, by what ended the last section.",
		}, []string{"trigger"}),
		advances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_section_advances_total",
			Help: "Section to section transitions.",
		}, []string{"trigger"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_intents_rejected_total",
			Help: "Intents ignored by the session state machine.",
		}, []string{"reason"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "exam_active_sessions",
			Help: "Sessions currently registered with the manager.",
		}),
		fetch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_question_fetch_seconds",
			Help:    "Latency of section question fetches.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

func (m *Metrics) sessionCompleted(trigger Trigger) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(string(trigger)).Inc()
}

func (m *Metrics) sectionAdvanced(trigger Trigger) {
	if m == nil {
		return
	}
	m.advances.WithLabelValues(string(trigger)).Inc()
}

func (m *Metrics) intentRejected(err error) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(rejectionReason(err)).Inc()
}

func (m *Metrics) sessionAdded() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) sessionRemoved() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) fetchObserved(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetch.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrCompleted):
		return "completed"
	case errors.Is(err, ErrStaleIntent):
		return "stale_intent"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	default:
		return "other"
	}
}
