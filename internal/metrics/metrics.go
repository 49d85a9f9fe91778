package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pitchcoach"

// Metrics holds the Prometheus collectors for roleplay, feedback and
// completion traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	turns              *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	fallbacks          *prometheus.CounterVec
	reports            prometheus.Counter
	feedback           *prometheus.CounterVec
	activeSessions     prometheus.Gauge
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics registers the collectors with reg and panics on conflicting
// registrations. Collectors already registered under the same name are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Roleplay turns processed, by persona and reply path.",
		}, []string{"persona", "path"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of language model completions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_fallbacks_total",
			Help:      "Prospect replies replaced by a canned response.",
		}, []string{"reason"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Training reports generated.",
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Pitch feedback requests, by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Roleplay sessions currently held in the store.",
		}),
	}

	m.turns = register(reg, m.turns)
	m.completionDuration = register(reg, m.completionDuration)
	m.fallbacks = register(reg, m.fallbacks)
	m.reports = register(reg, m.reports)
	m.feedback = register(reg, m.feedback)
	m.activeSessions = register(reg, m.activeSessions)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) IncTurn(persona, path string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(persona, path).Inc()
}

func (m *Metrics) ObserveCompletion(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completionDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}

func (m *Metrics) IncFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncReport() {
	if m == nil {
		return
	}
	m.reports.Inc()
}

func (m *Metrics) IncFeedback(outcome string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
