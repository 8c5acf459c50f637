package domain

import (
	"context"
	"time"
)

// SignalEvent describes a signal as it moves through the network.
type SignalEvent struct {
	Timestamp time.Time `json:"timestamp"`
	NeuronID  string    `json:"neuron_id"`
	Layer     Layer     `json:"layer"`
	Direction Direction `json:"direction"`
	SignalID  string    `json:"signal_id"`
	BatchID   string    `json:"batch_id,omitempty"`
	// Classification is set for failures.
	Classification Classification `json:"classification,omitempty"`
}

// CostEvent describes a committed ledger entry or a crossed alert threshold.
type CostEvent struct {
	Entry  LedgerEntry `json:"entry"`
	Window Window      `json:"window,omitempty"`
	Stats  CostStats   `json:"stats"`
}

// BreakerEvent describes a circuit breaker transition.
type BreakerEvent struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// PatternEvent describes a detected recurring error pattern.
type PatternEvent struct {
	NeuronID    string         `json:"neuron_id"`
	Tag         Classification `json:"tag"`
	Occurrences int            `json:"occurrences"`
	Adjustment  string         `json:"adjustment"`
}

// GenerationEvent describes one backend call as seen by a neuron.
type GenerationEvent struct {
	NeuronID string      `json:"neuron_id"`
	Source   BackendKind `json:"source"`
	Degraded bool        `json:"degraded,omitempty"`
	Duration time.Duration
}

// Hooks defines callbacks for engine observability. Any field may be nil.
type Hooks struct {
	OnSignalSent        func(context.Context, *SignalEvent)
	OnSignalProcessed   func(context.Context, *SignalEvent)
	OnSignalFailed      func(context.Context, *SignalEvent)
	OnGeneration        func(context.Context, *GenerationEvent)
	OnCostRecorded      func(context.Context, *CostEvent)
	OnCostAlert         func(context.Context, *CostEvent)
	OnBreakerTransition func(context.Context, *BreakerEvent)
	OnPatternDetected   func(context.Context, *PatternEvent)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnSignalSent:        chain(h.OnSignalSent, other.OnSignalSent),
		OnSignalProcessed:   chain(h.OnSignalProcessed, other.OnSignalProcessed),
		OnSignalFailed:      chain(h.OnSignalFailed, other.OnSignalFailed),
		OnGeneration:        chain(h.OnGeneration, other.OnGeneration),
		OnCostRecorded:      chain(h.OnCostRecorded, other.OnCostRecorded),
		OnCostAlert:         chain(h.OnCostAlert, other.OnCostAlert),
		OnBreakerTransition: chain(h.OnBreakerTransition, other.OnBreakerTransition),
		OnPatternDetected:   chain(h.OnPatternDetected, other.OnPatternDetected),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
