package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "strata"

// Metrics holds the engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	SignalsSent        *prometheus.CounterVec
	SignalsProcessed   *prometheus.CounterVec
	SignalsFailed      *prometheus.CounterVec
	BackendCalls       *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	CostDollars        *prometheus.GaugeVec
	CostAlerts         *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	LearningPatterns   *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, including the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SignalsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_sent_total",
			Help:      "Signals routed, by sending neuron and direction.",
		}, []string{"neuron", "direction"}),
		SignalsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_processed_total",
			Help:      "Signals fully processed, by neuron and direction.",
		}, []string{"neuron", "direction"}),
		SignalsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_failed_total",
			Help:      "Processing failures, by neuron and error classification.",
		}, []string{"neuron", "classification"}),
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backend_calls_total",
			Help:      "Generations, by serving backend.",
		}, []string{"source", "degraded"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating per neuron.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"neuron"}),
		CostDollars: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cost_dollars",
			Help:      "Committed spend in the current window.",
		}, []string{"window"}),
		CostAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cost_alerts_total",
			Help:      "Alert threshold crossings, by window.",
		}, []string{"window"}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes.",
		}, []string{"neuron", "from", "to"}),
		LearningPatterns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "learning_patterns_total",
			Help:      "Recurring error patterns consolidated into lessons.",
		}, []string{"neuron", "tag"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SignalsSent,
		m.SignalsProcessed,
		m.SignalsFailed,
		m.BackendCalls,
		m.GenerationDuration,
		m.CostDollars,
		m.CostAlerts,
		m.BreakerTransitions,
		m.LearningPatterns,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns engine hooks that record into m.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnSignalSent: func(_ context.Context, e *domain.SignalEvent) {
			m.SignalsSent.WithLabelValues(e.NeuronID, string(e.Direction)).Inc()
		},
		OnSignalProcessed: func(_ context.Context, e *domain.SignalEvent) {
			m.SignalsProcessed.WithLabelValues(e.NeuronID, string(e.Direction)).Inc()
		},
		OnSignalFailed: func(_ context.Context, e *domain.SignalEvent) {
			m.SignalsFailed.WithLabelValues(e.NeuronID, string(e.Classification)).Inc()
		},
		OnGeneration: func(_ context.Context, e *domain.GenerationEvent) {
			degraded := "false"
			if e.Degraded {
				degraded = "true"
			}
			m.BackendCalls.WithLabelValues(string(e.Source), degraded).Inc()
			m.GenerationDuration.WithLabelValues(e.NeuronID).Observe(e.Duration.Seconds())
		},
		OnCostRecorded: func(_ context.Context, e *domain.CostEvent) {
			m.CostDollars.WithLabelValues(string(domain.WindowHour)).Set(e.Stats.Hour.Cost)
			m.CostDollars.WithLabelValues(string(domain.WindowDay)).Set(e.Stats.Day.Cost)
		},
		OnCostAlert: func(_ context.Context, e *domain.CostEvent) {
			m.CostAlerts.WithLabelValues(string(e.Window)).Inc()
		},
		OnBreakerTransition: func(_ context.Context, e *domain.BreakerEvent) {
			m.BreakerTransitions.WithLabelValues(e.Name, e.From, e.To).Inc()
		},
		OnPatternDetected: func(_ context.Context, e *domain.PatternEvent) {
			m.LearningPatterns.WithLabelValues(e.NeuronID, string(e.Tag)).Inc()
		},
	}
}
