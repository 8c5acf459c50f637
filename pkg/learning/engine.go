package learning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Config tunes pattern detection and propagation.
type Config struct {
	// PatternThreshold is the number of same-tag errors that form a pattern.
	PatternThreshold int `yaml:"pattern_threshold" validate:"gte=1"`
	// Window bounds how far back occurrences are counted.
	Window time.Duration `yaml:"window" validate:"gt=0"`
	// DecayFactor scales gradient magnitude per backward hop.
	DecayFactor float64 `yaml:"decay_factor" validate:"gt=0,lte=1"`
	// MinMagnitude stops propagation once the decayed magnitude falls below it.
	MinMagnitude float64 `yaml:"min_magnitude" validate:"gte=0,lt=1"`
}

// DefaultConfig returns the standard learning parameters.
func DefaultConfig() Config {
	return Config{
		PatternThreshold: 3,
		Window:           time.Hour,
		DecayFactor:      0.95,
		MinMagnitude:     0.001,
	}
}

// Lesson is the result of one observation.
type Lesson struct {
	Tag domain.Classification
	// Occurrences counts same-tag errors inside the window, including this one.
	Occurrences int
	// Learned is set when this observation completed a pattern.
	Learned bool
	// Adjustment is the consolidated guidance, empty unless Learned.
	Adjustment string
	// Importance of the stored Learning entry.
	Importance float64
}

// maxScan caps how many recent Error entries one observation reads back.
const maxScan = 1024

// Engine records errors and detects recurring patterns. Occurrences are counted
// from the store, so engines sharing a store agree on the count. It is safe for
// concurrent use.
type Engine struct {
	store  ports.MemoryStore
	cfg    Config
	logger *slog.Logger
	hooks  domain.Hooks
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks registers pattern hooks.
func WithHooks(h domain.Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over store. Zero config fields take their defaults.
func New(store ports.MemoryStore, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.PatternThreshold <= 0 {
		cfg.PatternThreshold = def.PatternThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = def.DecayFactor
	}
	if cfg.MinMagnitude < 0 {
		cfg.MinMagnitude = def.MinMagnitude
	}
	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Decay scales a magnitude by one hop.
func (e *Engine) Decay(magnitude float64) float64 {
	return magnitude * e.cfg.DecayFactor
}

// Significant reports whether a decayed magnitude should keep propagating.
func (e *Engine) Significant(magnitude float64) bool {
	return magnitude >= e.cfg.MinMagnitude
}

// Observe records the gradient as an Error entry and, when it completes a
// pattern, stores a consolidated Learning entry.
//
// A malformed gradient returns domain.ErrMalformedGradient and records nothing.
// A failed Error write (after one retry) discards the observation and returns the
// store error. A failed count or Learning write is logged and the lesson still
// returned.
func (e *Engine) Observe(ctx context.Context, neuronID, batchID string, g domain.Gradient) (Lesson, error) {
	if err := g.Validate(); err != nil {
		return Lesson{}, err
	}

	unlock := e.lock(neuronID)
	defer unlock()

	now := e.now()
	entry := domain.MemoryEntry{
		NeuronID:   neuronID,
		Kind:       domain.KindError,
		Content:    errorContent(g),
		Importance: g.Magnitude,
		CreatedAt:  now,
		Tag:        g.ErrorType,
		BatchID:    batchID,
	}
	if err := e.appendRetry(ctx, entry); err != nil {
		e.logger.Warn("Discarding error observation", "neuron", neuronID, "tag", g.ErrorType, "err", err)
		return Lesson{}, fmt.Errorf("record error entry: %w", err)
	}

	occurrences, suggestions, err := e.count(ctx, neuronID, g.ErrorType, now)
	if err != nil {
		e.logger.Warn("Counting error occurrences failed", "neuron", neuronID, "tag", g.ErrorType, "err", err)
		return Lesson{Tag: g.ErrorType, Occurrences: 1}, nil
	}
	lesson := Lesson{Tag: g.ErrorType, Occurrences: occurrences}
	if occurrences == 0 || occurrences%e.cfg.PatternThreshold != 0 {
		return lesson, nil
	}

	lesson.Learned = true
	lesson.Adjustment = consolidate(g.ErrorType, suggestions)
	lesson.Importance = math.Min(1, float64(occurrences)/float64(2*e.cfg.PatternThreshold))

	learned := domain.MemoryEntry{
		NeuronID:   neuronID,
		Kind:       domain.KindLearning,
		Content:    lesson.Adjustment,
		Importance: lesson.Importance,
		CreatedAt:  now,
		Tag:        g.ErrorType,
		BatchID:    batchID,
	}
	if err := e.appendRetry(ctx, learned); err != nil {
		e.logger.Warn("Learning entry lost", "neuron", neuronID, "tag", g.ErrorType, "err", err)
	}

	e.logger.Info("Error pattern learned", "neuron", neuronID, "tag", g.ErrorType, "occurrences", occurrences)
	if e.hooks.OnPatternDetected != nil {
		e.hooks.OnPatternDetected(ctx, &domain.PatternEvent{
			NeuronID:    neuronID,
			Tag:         g.ErrorType,
			Occurrences: occurrences,
			Adjustment:  lesson.Adjustment,
		})
	}
	return lesson, nil
}

func (e *Engine) appendRetry(ctx context.Context, entry domain.MemoryEntry) error {
	_, err := e.store.Append(ctx, entry)
	if err == nil || ctx.Err() != nil {
		return err
	}
	_, err = e.store.Append(ctx, entry)
	return err
}

// lock serializes observations of one neuron so a pattern is completed once.
func (e *Engine) lock(neuronID string) func() {
	e.mu.Lock()
	l, ok := e.locks[neuronID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[neuronID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// count reads back the neuron's recent Error entries and returns how many carry
// tag inside the window, plus every suggestion they recorded.
func (e *Engine) count(ctx context.Context, neuronID string, tag domain.Classification, now time.Time) (int, []string, error) {
	entries, err := e.store.QueryRecent(ctx, neuronID, []domain.EntryKind{domain.KindError}, maxScan)
	if err != nil {
		return 0, nil, err
	}
	cutoff := now.Add(-e.cfg.Window)
	var (
		n           int
		suggestions []string
	)
	for _, entry := range entries {
		if !entry.CreatedAt.After(cutoff) {
			break
		}
		if entry.Tag != tag {
			continue
		}
		n++
		suggestions = append(suggestions, suggestionsFrom(entry.Content)...)
	}
	return n, suggestions, nil
}

// Guidance returns the standing advice for a classification.
func Guidance(c domain.Classification) string {
	switch c {
	case domain.ClassDeadlineExceeded:
		return "Focus on efficiency and avoid complex operations."
	case domain.ClassInvalidResponse:
		return "Double-check output format and content accuracy."
	case domain.ClassUpstreamFailure, domain.ClassBackendUnavailable:
		return "Keep requests short and self-contained."
	case domain.ClassBudgetExceeded:
		return "Prefer concise outputs to reduce token usage."
	case domain.ClassRateLimited:
		return "Batch related work into fewer requests."
	case domain.ClassContextLookup:
		return "Do not rely on prior context being available."
	case domain.ClassRouteCongested, domain.ClassRouteUnavailable, domain.ClassInvalidRoute:
		return "Direct work only to connected peers."
	}
	return "Be more careful to avoid errors."
}

func consolidate(tag domain.Classification, suggestions []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", tag, Guidance(tag))
	if top := mostFrequent(suggestions); top != "" {
		b.WriteString(" ")
		b.WriteString(top)
	}
	return b.String()
}

func mostFrequent(values []string) string {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := first[v]; !ok {
			first[v] = i
		}
		counts[v]++
	}
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return first[keys[i]] < first[keys[j]]
	})
	return keys[0]
}

// errorContent renders a gradient as a header line followed by one "- " line
// per adjustment. suggestionsFrom reads the adjustments back.
func errorContent(g domain.Gradient) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (magnitude %.3f, loss %.3f)", g.ErrorType, g.Magnitude, g.Loss)
	for _, adj := range g.Adjustments {
		adj = strings.Join(strings.Fields(adj), " ")
		if adj == "" {
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(adj)
	}
	return b.String()
}

func suggestionsFrom(content string) []string {
	lines := strings.Split(content, "\n")
	var out []string
	for _, line := range lines[1:] {
		if adj, ok := strings.CutPrefix(line, "- "); ok {
			out = append(out, adj)
		}
	}
	return out
}
