package domain

import "time"

// NeuronState is a named state of the per-signal processing machine.
type NeuronState string

const (
	StateStarting        NeuronState = "starting"
	StateIdle            NeuronState = "idle"
	StateContextualizing NeuronState = "contextualizing"
	StateGenerating      NeuronState = "generating"
	StateEmitting        NeuronState = "emitting"
	StateErrorHandling   NeuronState = "error_handling"
	StateLearning        NeuronState = "learning"
	StateStopped         NeuronState = "stopped"
)

// NeuronHealth is a read-only snapshot of a running neuron.
type NeuronHealth struct {
	ID               string      `json:"id"`
	Layer            Layer       `json:"layer"`
	State            NeuronState `json:"state"`
	SignalsProcessed int64       `json:"signals_processed"`
	SignalsFailed    int64       `json:"signals_failed"`
	SignalsSent      int64       `json:"signals_sent"`
	LastSignal       time.Time   `json:"last_signal,omitzero"`
	StartedAt        time.Time   `json:"started_at"`
	Adjustments      []string    `json:"adjustments,omitempty"`
	Remote           bool        `json:"remote,omitempty"`
}

// Uptime returns how long the neuron has been running at now.
func (h NeuronHealth) Uptime(now time.Time) time.Duration {
	if h.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(h.StartedAt)
}
