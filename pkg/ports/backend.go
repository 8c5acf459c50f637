package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// CompletionRequest is a single generation call to a real backend.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completion is the response of a real backend.
type Completion struct {
	Text       string
	Model      string
	StopReason string
	Usage      domain.Usage
}

// BackendClient abstracts the transport to a paid generation service so the
// Real strategy can be swapped without touching neuron logic.
type BackendClient interface {
	// Complete performs one generation. Implementations wrap failures with the
	// backend sentinels of package domain (ErrRateLimited, ErrUpstreamFailure, ...).
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
