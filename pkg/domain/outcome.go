package domain

import (
	"fmt"
	"strings"
	"time"
)

// TerminalResult is an activation that reached a neuron with no forward peers.
type TerminalResult struct {
	NeuronID string      `json:"neuron_id"`
	Layer    Layer       `json:"layer"`
	Content  string      `json:"content"`
	Strength float64     `json:"strength"`
	Source   BackendKind `json:"source"`
	Degraded bool        `json:"degraded,omitempty"`
}

// TerminalError is a failure that reached a neuron with no backward peer.
// It carries the deepest classification observed and the adjustments accumulated
// along the backward path.
type TerminalError struct {
	Classification Classification `json:"classification"`
	NeuronID       string         `json:"neuron_id"`
	Layer          Layer          `json:"layer"`
	Magnitude      float64        `json:"magnitude"`
	Adjustments    []string       `json:"adjustments,omitempty"`
	Cause          string         `json:"cause,omitempty"`
}

func (e *TerminalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s(%s)", e.Classification, e.NeuronID, e.Layer)
	if e.Cause != "" {
		fmt.Fprintf(&b, ": %s", e.Cause)
	}
	if len(e.Adjustments) > 0 {
		fmt.Fprintf(&b, " (suggestions: %s)", strings.Join(e.Adjustments, "; "))
	}
	return b.String()
}

// Unwrap exposes the sentinel matching the classification to errors.Is.
func (e *TerminalError) Unwrap() error {
	return e.Classification.Err()
}

// Outcome is the drained result of one submitted request.
type Outcome struct {
	BatchID         string           `json:"batch_id"`
	Results         []TerminalResult `json:"results,omitempty"`
	Failures        []TerminalError  `json:"failures,omitempty"`
	LayersActivated []Layer          `json:"layers_activated"`
	Duration        time.Duration    `json:"duration"`
}

// Succeeded reports whether at least one terminal activation was produced.
func (o *Outcome) Succeeded() bool {
	return len(o.Results) > 0
}

// Err returns the deepest terminal failure when no result was produced.
func (o *Outcome) Err() error {
	if o.Succeeded() || len(o.Failures) == 0 {
		return nil
	}
	deepest := o.Failures[0]
	for _, f := range o.Failures[1:] {
		if len(f.Adjustments) > len(deepest.Adjustments) {
			deepest = f
		}
	}
	return &deepest
}
