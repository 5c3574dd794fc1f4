// Package metrics exposes Prometheus collectors fed from session events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/focusroom/internal/model"
	"github.com/pavelanni/focusroom/internal/session"
)

const namespace = "focusroom"

// Metrics holds the collectors of one registry.
type Metrics struct {
	reg *prometheus.Registry

	phaseTransitions *prometheus.CounterVec
	logEntries       *prometheus.CounterVec
	verdicts         *prometheus.CounterVec
	scores           prometheus.Histogram
	notices          prometheus.Counter
	narrationFailed  prometheus.Counter
	daysCompleted    prometheus.Counter
	activeSessions   prometheus.GaugeFunc
}

// New registers the collectors on a fresh registry. active reports the
// number of live sessions; it may be nil.
func New(active func() int) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		phaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Phase transitions by source and target phase.",
		}, []string{"from", "to"}),
		logEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Step log entries by type.",
		}, []string{"type"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_verdicts_total",
			Help:      "Resolved submissions by verdict.",
		}, []string{"verdict"}),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_score",
			Help:      "Scores of completed items.",
			Buckets:   []float64{0, 20, 40, 60, 70, 80, 90, 100},
		}),
		notices: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Transient notices shown to learners.",
		}),
		narrationFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narration_failures_total",
			Help:      "Narrations that could not be synthesized.",
		}),
		daysCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_completed_total",
			Help:      "Sessions that reached the summary phase.",
		}),
	}
	if active != nil {
		m.activeSessions = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live sessions held by the manager.",
		}, func() float64 { return float64(active()) })
	}
	return m
}

// Observe is a session.Observer.
func (m *Metrics) Observe(e session.Event) {
	switch e.Type {
	case session.EventPhase:
		if e.Phase == nil {
			return
		}
		m.phaseTransitions.WithLabelValues(string(e.Phase.From), string(e.Phase.To)).Inc()
		if e.Phase.To == model.PhaseSummary {
			m.daysCompleted.Inc()
		}
	case session.EventLog:
		if e.Entry != nil {
			m.logEntries.WithLabelValues(string(e.Entry.Type)).Inc()
		}
	case session.EventOutcome:
		if e.Outcome == nil {
			return
		}
		m.verdicts.WithLabelValues(string(e.Outcome.Verdict)).Inc()
		if e.Outcome.Completed() && e.Outcome.Score != nil {
			m.scores.Observe(float64(*e.Outcome.Score))
		}
	case session.EventNotice:
		m.notices.Inc()
	case session.EventNarrationFailed:
		m.narrationFailed.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
