package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// Limits are the ceilings enforced by the ledger. Zero disables a ceiling.
type Limits struct {
	MaxCostPerHour      float64
	MaxCostPerDay       float64
	MaxTokensPerRequest int
	// AlertThreshold is the fraction of a ceiling that triggers an alert (default 0.8).
	AlertThreshold float64
	// BlockOnAlert rejects reservations past the alert threshold instead of only warning.
	BlockOnAlert bool
}

// DefaultLimits mirrors the reference deployment defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxCostPerHour:      10,
		MaxCostPerDay:       100,
		MaxTokensPerRequest: 4096,
		AlertThreshold:      0.8,
	}
}

type window struct {
	kind    domain.Window
	span    time.Duration
	limit   float64
	start   time.Time
	cost    float64
	pending float64
	tokens  int
	calls   int
	alerted bool
}

func (w *window) roll(now time.Time) {
	start := now.UTC().Truncate(w.span)
	if start.Equal(w.start) {
		return
	}
	// Pending reservations belong to calls still in flight, so they carry over.
	w.start = start
	w.cost = 0
	w.tokens = 0
	w.calls = 0
	w.alerted = false
}

func (w *window) stats() domain.WindowStats {
	return domain.WindowStats{
		Start:   w.start,
		Cost:    w.cost,
		Pending: w.pending,
		Tokens:  w.tokens,
		Calls:   w.calls,
		Limit:   w.limit,
	}
}

// Ledger is the single mutable cost account shared by every neuron.
// All mutations go through Reserve and the returned Reservation.
type Ledger struct {
	mu         sync.Mutex
	limits     Limits
	hour       window
	day        window
	totalCost  float64
	totalCalls int
	recent     []domain.LedgerEntry
	keep       int
	now        func() time.Time
	hooks      domain.Hooks
	logger     *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithLedgerHooks registers cost observability hooks.
func WithLedgerHooks(h domain.Hooks) LedgerOption {
	return func(l *Ledger) { l.hooks = h }
}

// WithLedgerLogger sets the logger used for threshold warnings.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a ledger enforcing limits.
func NewLedger(limits Limits, opts ...LedgerOption) *Ledger {
	if limits.AlertThreshold <= 0 {
		limits.AlertThreshold = 0.8
	}
	l := &Ledger{
		limits: limits,
		hour:   window{kind: domain.WindowHour, span: time.Hour, limit: limits.MaxCostPerHour},
		day:    window{kind: domain.WindowDay, span: 24 * time.Hour, limit: limits.MaxCostPerDay},
		keep:   256,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	now := l.now()
	l.hour.roll(now)
	l.day.roll(now)
	return l
}

// Limits returns the configured ceilings.
func (l *Ledger) Limits() Limits { return l.limits }

// Reservation holds projected cost against both windows until committed or released.
type Reservation struct {
	ledger   *Ledger
	estimate float64
	done     bool
}

// Reserve tries to set aside estimate dollars in the current windows.
// It fails with domain.ErrBudgetExceeded if either ceiling would be exceeded, or,
// when BlockOnAlert is set, if the alert threshold would be crossed.
func (l *Ledger) Reserve(ctx context.Context, estimate float64) (*Reservation, error) {
	l.mu.Lock()
	now := l.now()
	l.hour.roll(now)
	l.day.roll(now)

	var alerts []domain.Window
	for _, w := range []*window{&l.hour, &l.day} {
		if w.limit <= 0 {
			continue
		}
		projected := w.cost + w.pending + estimate
		if projected > w.limit {
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s ceiling %.4f would reach %.4f", domain.ErrBudgetExceeded, w.kind, w.limit, projected)
		}
		if projected/w.limit >= l.limits.AlertThreshold {
			if l.limits.BlockOnAlert {
				l.mu.Unlock()
				return nil, fmt.Errorf("%w: %s alert threshold %.0f%% crossed", domain.ErrBudgetExceeded, w.kind, l.limits.AlertThreshold*100)
			}
			if !w.alerted {
				w.alerted = true
				alerts = append(alerts, w.kind)
			}
		}
	}

	l.hour.pending += estimate
	l.day.pending += estimate
	stats := l.statsLocked()
	l.mu.Unlock()

	for _, kind := range alerts {
		l.logger.Warn("Cost alert threshold crossed", "window", kind, "threshold", l.limits.AlertThreshold)
		if l.hooks.OnCostAlert != nil {
			l.hooks.OnCostAlert(ctx, &domain.CostEvent{Window: kind, Stats: stats})
		}
	}
	return &Reservation{ledger: l, estimate: estimate}, nil
}

// Commit replaces the reservation with the actual usage and records a ledger entry.
func (r *Reservation) Commit(ctx context.Context, usage domain.Usage, model string, pricing Pricing) domain.LedgerEntry {
	l := r.ledger
	cost := pricing.Cost(usage)

	l.mu.Lock()
	now := l.now()
	l.hour.roll(now)
	l.day.roll(now)
	r.releaseLocked()
	for _, w := range []*window{&l.hour, &l.day} {
		w.cost += cost
		w.tokens += usage.Total()
		w.calls++
	}
	l.totalCost += cost
	l.totalCalls++
	entry := domain.LedgerEntry{
		HourWindow:   l.hour.start,
		DayWindow:    l.day.start,
		Backend:      domain.BackendReal,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         cost,
		RecordedAt:   now,
	}
	l.recent = append(l.recent, entry)
	if len(l.recent) > l.keep {
		l.recent = l.recent[len(l.recent)-l.keep:]
	}
	stats := l.statsLocked()
	l.mu.Unlock()

	if l.hooks.OnCostRecorded != nil {
		l.hooks.OnCostRecorded(ctx, &domain.CostEvent{Entry: entry, Stats: stats})
	}
	return entry
}

// Release drops the reservation without recording cost. Safe to call more than once.
func (r *Reservation) Release() {
	r.ledger.mu.Lock()
	r.releaseLocked()
	r.ledger.mu.Unlock()
}

func (r *Reservation) releaseLocked() {
	if r.done {
		return
	}
	r.done = true
	l := r.ledger
	l.hour.pending = max(0, l.hour.pending-r.estimate)
	l.day.pending = max(0, l.day.pending-r.estimate)
}

// Stats returns a snapshot of both windows.
func (l *Ledger) Stats() domain.CostStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.hour.roll(now)
	l.day.roll(now)
	return l.statsLocked()
}

func (l *Ledger) statsLocked() domain.CostStats {
	return domain.CostStats{
		Hour:       l.hour.stats(),
		Day:        l.day.stats(),
		TotalCost:  l.totalCost,
		TotalCalls: l.totalCalls,
	}
}

// Entries returns the most recent ledger entries, oldest first.
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.LedgerEntry, len(l.recent))
	copy(out, l.recent)
	return out
}
