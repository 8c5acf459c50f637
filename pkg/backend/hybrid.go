package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// fallbackGrace bounds the Mock call when the generation deadline already
// expired on the Real attempt.
const fallbackGrace = 5 * time.Second

// Hybrid prefers Real and falls back to Mock within the same call.
// The fallback is mandatory: budget, rate limit, upstream and response failures
// never reach the neuron on their own.
type Hybrid struct {
	real   *Real
	mock   *Mock
	logger *slog.Logger
}

// NewHybrid composes the two strategies.
func NewHybrid(paid *Real, mock *Mock, logger *slog.Logger) *Hybrid {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hybrid{real: paid, mock: mock, logger: logger}
}

// Generate tries Real, then Mock.
func (h *Hybrid) Generate(ctx context.Context, req Request) (Content, error) {
	content, err := h.real.Generate(ctx, req)
	if err == nil {
		return content, nil
	}
	if !Fallbackable(err) {
		return Content{}, err
	}
	mctx := ctx
	if cerr := ctx.Err(); cerr != nil {
		if !errors.Is(cerr, context.DeadlineExceeded) {
			return Content{}, err
		}
		// The generation timeout consumed the Real attempt. Mock is local and
		// still owed to the caller.
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), fallbackGrace)
		defer cancel()
	}

	h.logger.Warn("Real backend failed, falling back to mock",
		"neuron", req.NeuronID,
		"layer", req.Layer,
		"reason", domain.Classify(err),
		"error", err,
	)
	mocked, merr := h.mock.Generate(mctx, req)
	if merr != nil {
		return Content{}, fmt.Errorf("%w: mock fallback failed after %v: %w", domain.ErrBackendUnavailable, err, merr)
	}
	mocked.FallbackReason = err
	return mocked, nil
}

// Fallbackable reports whether a Real failure may be served by Mock.
func Fallbackable(err error) bool {
	return errors.Is(err, domain.ErrUpstreamFailure) ||
		errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrBudgetExceeded) ||
		errors.Is(err, domain.ErrInvalidResponse)
}
