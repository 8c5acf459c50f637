// Package retention prunes old, unimportant memory entries on a schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/ports"
)

// LockKey is the distributed lock key used to serialize pruning across replicas.
const LockKey = "retention:prune"

// Config tunes the pruner.
type Config struct {
	RetentionDays int           `yaml:"retention_days" validate:"gte=1"`
	MinImportance float64       `yaml:"min_importance" validate:"gte=0,lte=1"`
	Interval      time.Duration `yaml:"interval" validate:"gte=0"`
	// LockTTL bounds how long one replica may hold the prune lock.
	LockTTL time.Duration `yaml:"lock_ttl" validate:"gte=0"`
}

// DefaultConfig keeps 30 days and spares entries with importance of at least 0.5.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 30,
		MinImportance: 0.5,
		Interval:      time.Hour,
		LockTTL:       5 * time.Minute,
	}
}

// Pruner deletes expired memory entries.
type Pruner struct {
	store  ports.MemoryStore
	cfg    Config
	locker ports.DistributedLocker
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Pruner.
type Option func(*Pruner)

// WithLocker serializes pruning across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(p *Pruner) {
		p.locker = locker
	}
}

// WithLogger configures a logger for the Pruner.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pruner) {
		p.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		p.now = now
	}
}

// New creates a pruner over store.
func New(store ports.MemoryStore, cfg Config, opts ...Option) *Pruner {
	def := DefaultConfig()
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	p := &Pruner{
		store:  store,
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cutoff returns the creation time before which entries are eligible.
func (p *Pruner) Cutoff() time.Time {
	return p.now().Add(-time.Duration(p.cfg.RetentionDays) * 24 * time.Hour)
}

// PruneOnce runs a single pass and returns the number of removed entries.
func (p *Pruner) PruneOnce(ctx context.Context) (int, error) {
	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, LockKey, p.cfg.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire prune lock: %w", err)
		}
		defer func() {
			// Release on a fresh context so a cancelled pass still unlocks.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("Failed to release prune lock", "err", err)
			}
		}()
	}

	cutoff := p.Cutoff()
	removed, err := p.store.Prune(ctx, cutoff, p.cfg.MinImportance)
	if err != nil {
		return removed, fmt.Errorf("prune failed: %w", err)
	}
	p.logger.Info("Memory pruned", "removed", removed, "cutoff", cutoff.Format(time.RFC3339), "min_importance", p.cfg.MinImportance)
	return removed, nil
}

// Run prunes every Interval until ctx is cancelled. Failed passes are logged.
func (p *Pruner) Run(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Retention pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
