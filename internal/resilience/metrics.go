package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricBreakerState       = "circuit_breaker_state"
	MetricBreakerTransitions = "circuit_breaker_transitions_total"
	MetricBreakerCalls       = "circuit_breaker_calls_total"
	MetricRetryOutcomes      = "retry_outcomes_total"
)

// Metrics holds prometheus collectors for breaker and retry behavior.
// All operations are thread-safe.
type Metrics struct {
	breakerState *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	calls        *prometheus.CounterVec
	retries      *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered; call Register
// with the process registry.
func NewMetrics() *Metrics {
	return &Metrics{
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricBreakerState,
				Help: "Current circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
			},
			[]string{"upstream"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBreakerTransitions,
				Help: "Circuit breaker state transitions by upstream and target state",
			},
			[]string{"upstream", "to"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBreakerCalls,
				Help: "Calls through circuit breakers by upstream and outcome",
			},
			[]string{"upstream", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRetryOutcomes,
				Help: "Retry executor outcomes",
			},
			[]string{"outcome"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.breakerState, m.transitions, m.calls, m.retries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) setState(upstream string, s State) {
	var v float64
	switch s {
	case StateOpen:
		v = 1
	case StateHalfOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(upstream).Set(v)
}

func (m *Metrics) recordTransition(upstream string, _, to State) {
	m.transitions.WithLabelValues(upstream, to.String()).Inc()
}

func (m *Metrics) recordCall(upstream, outcome string) {
	m.calls.WithLabelValues(upstream, outcome).Inc()
}

func (m *Metrics) recordRetry(outcome string) {
	m.retries.WithLabelValues(outcome).Inc()
}
