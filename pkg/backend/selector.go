package backend

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Config selects and tunes the strategy.
type Config struct {
	Mode        Mode
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Limits      Limits
	MockRules   map[domain.Layer][]Rule
	MockDelay   time.Duration
}

// DefaultConfig returns a Mock configuration with default ceilings.
func DefaultConfig() Config {
	return Config{
		Mode:        ModeMock,
		Model:       DefaultModel,
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
		Limits:      DefaultLimits(),
	}
}

// Selector owns the resolved strategy, the Mock used for degradation and the ledger.
type Selector struct {
	mode      Mode
	generator Generator
	mock      *Mock
	ledger    *Ledger
}

// SelectorOption configures a Selector.
type SelectorOption func(*selectorOptions)

type selectorOptions struct {
	env     string
	logger  *slog.Logger
	ledgerO []LedgerOption
}

// WithEnvironment overrides the value of STRATA_ENV used to resolve ModeAuto.
func WithEnvironment(env string) SelectorOption {
	return func(o *selectorOptions) { o.env = env }
}

// WithSelectorLogger sets the logger shared by the strategies.
func WithSelectorLogger(logger *slog.Logger) SelectorOption {
	return func(o *selectorOptions) { o.logger = logger }
}

// WithLedgerOptions forwards options to the ledger.
func WithLedgerOptions(opts ...LedgerOption) SelectorOption {
	return func(o *selectorOptions) { o.ledgerO = append(o.ledgerO, opts...) }
}

// NewSelector resolves the configured mode once. Real and Hybrid require a client.
func NewSelector(cfg Config, client ports.BackendClient, opts ...SelectorOption) (*Selector, error) {
	o := selectorOptions{
		env:    os.Getenv(ProductionEnv),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeMock
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Mode)
	}

	mock, err := NewMock(cfg.MockRules, WithMockDelay(cfg.MockDelay))
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(cfg.Limits, append([]LedgerOption{WithLedgerLogger(o.logger)}, o.ledgerO...)...)

	s := &Selector{
		mode:   cfg.Mode.Resolve(client != nil, o.env),
		mock:   mock,
		ledger: ledger,
	}

	switch s.mode {
	case ModeMock:
		s.generator = mock
	case ModeReal, ModeHybrid:
		if client == nil {
			return nil, fmt.Errorf("%w: mode %s requires a backend client", domain.ErrBackendUnavailable, s.mode)
		}
		paid := NewReal(client, ledger,
			WithModel(cfg.Model),
			WithGenerationDefaults(cfg.MaxTokens, cfg.Temperature),
			WithTimeout(cfg.Timeout),
			WithRealLogger(o.logger),
		)
		if s.mode == ModeReal {
			s.generator = paid
		} else {
			s.generator = NewHybrid(paid, mock, o.logger)
		}
	}

	o.logger.Info("Backend selected", "configured", cfg.Mode, "resolved", s.mode)
	return s, nil
}

// Mode returns the resolved mode.
func (s *Selector) Mode() Mode { return s.mode }

// Generator returns the resolved strategy.
func (s *Selector) Generator() Generator { return s.generator }

// Mock returns the mock used for degraded output.
func (s *Selector) Mock() *Mock { return s.mock }

// Ledger returns the shared cost ledger.
func (s *Selector) Ledger() *Ledger { return s.ledger }
