// Package guarded decorates a MemoryStore with per-call timeouts and a circuit breaker.
package guarded

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/sony/gobreaker"
)

// Config tunes the decorator.
type Config struct {
	Name string `yaml:"name"`
	// Timeout bounds every store call.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32 `yaml:"consecutive_failures" validate:"gte=1"`
	// OpenFor is how long the breaker stays open before a trial call.
	OpenFor time.Duration `yaml:"open_for" validate:"gte=0"`
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// DefaultConfig uses the 5s memory timeout.
func DefaultConfig() Config {
	return Config{
		Name:                "memory",
		Timeout:             5 * time.Second,
		ConsecutiveFailures: 5,
		OpenFor:             30 * time.Second,
		Interval:            time.Minute,
	}
}

// Store wraps another MemoryStore.
type Store struct {
	inner   ports.MemoryStore
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// Option configures the decorator.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	onStateChange func(name string, from, to string)
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStateChange registers a callback for breaker transitions.
func WithStateChange(fn func(name string, from, to string)) Option {
	return func(o *options) { o.onStateChange = fn }
}

// New wraps inner.
func New(inner ports.MemoryStore, cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}

	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{inner: inner, cfg: cfg, logger: o.logger}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			o.logger.Warn("Memory store breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if o.onStateChange != nil {
				o.onStateChange(name, from.String(), to.String())
			}
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and cancellations say nothing about store health.
			return err == nil ||
				errors.Is(err, domain.ErrInvalidEntry) ||
				errors.Is(err, context.Canceled)
		},
	})
	return s
}

// State returns the breaker state name.
func (s *Store) State() string { return s.breaker.State().String() }

func (s *Store) execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	v, err := s.breaker.Execute(func() (any, error) { return fn(ctx) })
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s store: %v", domain.ErrCircuitOpen, s.cfg.Name, err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%s store timed out after %s: %w", s.cfg.Name, s.cfg.Timeout, err)
	}
	return v, err
}

// Append delegates under the timeout and breaker.
func (s *Store) Append(ctx context.Context, entry domain.MemoryEntry) (domain.EntryID, error) {
	v, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		return s.inner.Append(ctx, entry)
	})
	if err != nil {
		return "", err
	}
	return v.(domain.EntryID), nil
}

// QueryRecent delegates under the timeout and breaker.
func (s *Store) QueryRecent(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	v, err := s.execute(ctx, func(ctx context.Context) (any, error) {
		return s.inner.QueryRecent(ctx, neuronID, kinds, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.MemoryEntry), nil
}

// Prune delegates under the breaker. Pruning is a maintenance job and is not
// bounded by the per-call timeout.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, minImportance float64) (int, error) {
	v, err := s.breaker.Execute(func() (any, error) {
		return s.inner.Prune(ctx, cutoff, minImportance)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %s store: %v", domain.ErrCircuitOpen, s.cfg.Name, err)
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}
