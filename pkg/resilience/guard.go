package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
)

// Guard wraps a neuron's generator with its breaker and the shared limiter.
type Guard struct {
	inner   backend.Generator
	mock    backend.Generator
	breaker *Breaker
	limiter *Limiter
	logger  *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLimiter shares a limiter across guards.
func WithLimiter(l *Limiter) GuardOption {
	return func(g *Guard) { g.limiter = l }
}

// WithGuardLogger sets the logger.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// NewGuard creates a guard. mock serves every refused call.
func NewGuard(inner, mock backend.Generator, breaker *Breaker, opts ...GuardOption) *Guard {
	g := &Guard{
		inner:   inner,
		mock:    mock,
		breaker: breaker,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breaker exposes the guard's breaker.
func (g *Guard) Breaker() *Breaker { return g.breaker }

// Generate applies rate limiting and circuit breaking around the inner generator.
func (g *Guard) Generate(ctx context.Context, req backend.Request) (backend.Content, error) {
	if !g.limiter.Allow(req.NeuronID, req.Layer) {
		return g.degrade(ctx, req, fmt.Errorf("%w: %s/%s", domain.ErrRateLimited, req.NeuronID, req.Layer))
	}
	if err := g.breaker.Allow(); err != nil {
		return g.degrade(ctx, req, err)
	}

	content, err := g.inner.Generate(ctx, req)
	outcome := classify(ctx, content, err)
	g.breaker.Record(outcome)

	budget := errors.Is(err, domain.ErrBudgetExceeded) || errors.Is(content.FallbackReason, domain.ErrBudgetExceeded)
	if budget {
		g.breaker.Trip()
	}
	if err != nil && (budget || errors.Is(err, domain.ErrRateLimited)) {
		return g.degrade(ctx, req, err)
	}
	return content, err
}

func (g *Guard) degrade(ctx context.Context, req backend.Request, reason error) (backend.Content, error) {
	g.logger.Debug("Substituting mock output", "neuron", req.NeuronID, "layer", req.Layer, "reason", reason)
	content, err := g.mock.Generate(ctx, req)
	if err != nil {
		return backend.Content{}, fmt.Errorf("%w: %w", reason, err)
	}
	content.Degraded = true
	content.FallbackReason = reason
	return content, nil
}

func classify(ctx context.Context, content backend.Content, err error) Outcome {
	if err == nil {
		if content.FallbackReason != nil && !errors.Is(content.FallbackReason, domain.ErrBudgetExceeded) {
			// Hybrid served mock because the real backend is unhealthy.
			return Failure
		}
		return Success
	}
	switch {
	case errors.Is(err, domain.ErrDeadlineExceeded),
		errors.Is(err, domain.ErrBudgetExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(ctx.Err(), context.Canceled):
		return Neutral
	}
	return Failure
}
