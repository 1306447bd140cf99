package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision module.
type Metrics struct {
	// Decision outcomes by type and scheme
	DecisionOutcome *prometheus.CounterVec

	// Overall evaluation latency including fact fetch and scoring
	EvaluateLatency prometheus.Histogram

	// Risk scorer failures forcing officer routing
	ScorerUnavailable prometheus.Counter

	// Officer overrides by new decision type
	Overrides *prometheus.CounterVec
}

// New creates a Metrics instance with all decision module metrics registered.
func New() *Metrics {
	return &Metrics{
		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_decision_outcomes_total",
			Help: "Total decision outcomes by type and scheme",
		}, []string{"type", "scheme"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_decision_evaluate_duration_seconds",
			Help:    "Duration of full decision evaluation including fact fetch and risk scoring",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		ScorerUnavailable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_risk_scorer_unavailable_total",
			Help: "Risk scorer failures or timeouts that forced officer routing",
		}),

		Overrides: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_decision_overrides_total",
			Help: "Officer overrides by new decision type",
		}, []string{"type"}),
	}
}

// IncrementOutcome records a decision outcome.
func (m *Metrics) IncrementOutcome(decisionType, scheme string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(decisionType, scheme).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncScorerUnavailable records a scorer failure.
func (m *Metrics) IncScorerUnavailable() {
	if m != nil {
		m.ScorerUnavailable.Inc()
	}
}

// IncrementOverride records an officer override.
func (m *Metrics) IncrementOverride(decisionType string) {
	if m != nil {
		m.Overrides.WithLabelValues(decisionType).Inc()
	}
}
