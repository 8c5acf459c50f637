package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a guarded call is counted.
type Outcome int

const (
	// Success resets the failure count (and closes a half-open breaker).
	Success Outcome = iota
	// Failure counts toward tripping.
	Failure
	// Neutral is neither, e.g. caller-side deadlines.
	Neutral
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=1"`
	Window           time.Duration `yaml:"window" validate:"gte=0"`
	Cooldown         time.Duration `yaml:"cooldown" validate:"gt=0"`
	MaxCooldown      time.Duration `yaml:"max_cooldown" validate:"gtefield=Cooldown"`
}

// DefaultBreakerConfig trips after 5 consecutive failures within a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      10 * time.Minute,
	}
}

// Breaker is a Closed/Open/HalfOpen state machine with exponential cooldown.
type Breaker struct {
	mu           sync.Mutex
	name         string
	cfg          BreakerConfig
	state        State
	failures     int
	lastFailure  time.Time
	openedAt     time.Time
	cooldown     time.Duration
	trial        bool
	now          func() time.Time
	onTransition func(name string, from, to State)
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// OnTransition registers a callback invoked after every state change.
func OnTransition(fn func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) { b.onTransition = fn }
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = cfg.Cooldown
	}
	b := &Breaker{
		name:     name,
		cfg:      cfg,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type transition struct{ from, to State }

// Allow reports whether a call may proceed. It returns domain.ErrCircuitOpen
// while open, and while a half-open trial is already in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var moved []transition
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cooldown)) {
		moved = append(moved, b.setLocked(StateHalfOpen))
	}

	var err error
	switch b.state {
	case StateOpen:
		err = fmt.Errorf("%w: %s (retry in %s)", domain.ErrCircuitOpen, b.name, b.openedAt.Add(b.cooldown).Sub(b.now()).Round(time.Millisecond))
	case StateHalfOpen:
		if b.trial {
			err = fmt.Errorf("%w: %s trial in flight", domain.ErrCircuitOpen, b.name)
		} else {
			b.trial = true
		}
	}
	b.mu.Unlock()

	b.notify(moved)
	return err
}

// Record accounts the outcome of an allowed call.
func (b *Breaker) Record(o Outcome) {
	b.mu.Lock()
	var moved []transition
	now := b.now()

	switch b.state {
	case StateClosed:
		switch o {
		case Success:
			b.failures = 0
		case Failure:
			if b.cfg.Window > 0 && !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.Window {
				b.failures = 0
			}
			b.failures++
			b.lastFailure = now
			if b.failures >= b.cfg.FailureThreshold {
				b.cooldown = b.cfg.Cooldown
				moved = append(moved, b.openLocked(now))
			}
		}
	case StateHalfOpen:
		b.trial = false
		switch o {
		case Success:
			b.failures = 0
			b.cooldown = b.cfg.Cooldown
			moved = append(moved, b.setLocked(StateClosed))
		case Failure:
			b.cooldown = min(b.cooldown*2, b.cfg.MaxCooldown)
			moved = append(moved, b.openLocked(now))
		}
	}
	b.mu.Unlock()

	b.notify(moved)
}

// Trip forces the breaker open, e.g. on budget exhaustion.
func (b *Breaker) Trip() {
	b.mu.Lock()
	var moved []transition
	if b.state != StateOpen {
		b.trial = false
		moved = append(moved, b.openLocked(b.now()))
	}
	b.mu.Unlock()
	b.notify(moved)
}

// State returns the current state, moving to half-open if the cooldown elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	var moved []transition
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cooldown)) {
		moved = append(moved, b.setLocked(StateHalfOpen))
	}
	s := b.state
	b.mu.Unlock()
	b.notify(moved)
	return s
}

// Cooldown returns the cooldown applied on the next (or current) open period.
func (b *Breaker) Cooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cooldown
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

func (b *Breaker) openLocked(now time.Time) transition {
	b.openedAt = now
	b.failures = 0
	return b.setLocked(StateOpen)
}

func (b *Breaker) setLocked(to State) transition {
	t := transition{from: b.state, to: to}
	b.state = to
	return t
}

func (b *Breaker) notify(moved []transition) {
	if b.onTransition == nil {
		return
	}
	for _, t := range moved {
		if t.from != t.to {
			b.onTransition(b.name, t.from, t.to)
		}
	}
}
