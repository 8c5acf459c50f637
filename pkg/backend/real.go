package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Real calls a paid generation service, accounting every call in the ledger.
type Real struct {
	client      ports.BackendClient
	ledger      *Ledger
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// RealOption configures a Real backend.
type RealOption func(*Real)

// WithModel sets the default model.
func WithModel(model string) RealOption {
	return func(r *Real) { r.model = model }
}

// WithGenerationDefaults sets max tokens and temperature used when a request leaves them empty.
func WithGenerationDefaults(maxTokens int, temperature float64) RealOption {
	return func(r *Real) {
		r.maxTokens = maxTokens
		r.temperature = temperature
	}
}

// WithTimeout bounds each call. A timeout is reported as domain.ErrUpstreamFailure.
func WithTimeout(d time.Duration) RealOption {
	return func(r *Real) { r.timeout = d }
}

// WithRealLogger sets the logger.
func WithRealLogger(logger *slog.Logger) RealOption {
	return func(r *Real) { r.logger = logger }
}

// NewReal creates the Real strategy.
func NewReal(client ports.BackendClient, ledger *Ledger, opts ...RealOption) *Real {
	r := &Real{
		client:      client,
		ledger:      ledger,
		model:       DefaultModel,
		maxTokens:   4096,
		temperature: 0.7,
		timeout:     30 * time.Second,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate reserves the projected cost, calls the client and commits the actual usage
// before returning.
func (r *Real) Generate(ctx context.Context, req Request) (Content, error) {
	model := req.Model
	if model == "" {
		model = r.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.maxTokens
	}
	if limit := r.ledger.Limits().MaxTokensPerRequest; limit > 0 && maxTokens > limit {
		r.logger.Debug("Clamping max tokens", "requested", maxTokens, "limit", limit)
		maxTokens = limit
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = r.temperature
	}

	pricing := PricingFor(model)
	estimate := pricing.Cost(domain.Usage{
		InputTokens:  EstimateTokens(req.System) + EstimateTokens(req.Prompt),
		OutputTokens: maxTokens,
	})

	reservation, err := r.ledger.Reserve(ctx, estimate)
	if err != nil {
		return Content{}, err
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := r.client.Complete(callCtx, ports.CompletionRequest{
		Model:       model,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		reservation.Release()
		return Content{}, classifyUpstream(err)
	}

	entry := reservation.Commit(ctx, resp.Usage, model, pricing)
	if strings.TrimSpace(resp.Text) == "" {
		return Content{}, fmt.Errorf("%w: empty completion", domain.ErrInvalidResponse)
	}

	return Content{
		Text:     resp.Text,
		Source:   domain.BackendReal,
		Model:    model,
		Usage:    resp.Usage,
		Cost:     entry.Cost,
		Duration: time.Since(start),
	}, nil
}

func classifyUpstream(err error) error {
	switch {
	case errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrUpstreamFailure),
		errors.Is(err, domain.ErrInvalidResponse),
		errors.Is(err, domain.ErrBudgetExceeded):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: generation timed out: %v", domain.ErrUpstreamFailure, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
}
