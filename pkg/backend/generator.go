package backend

import (
	"context"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// Request is one generation call made by a neuron.
type Request struct {
	NeuronID string
	Layer    domain.Layer
	// System is the layer or neuron system prompt.
	System string
	// Prompt is the fully assembled prompt (adjustments, context and input).
	Prompt string
	// Content is the raw activation content, used for mock trigger matching.
	Content     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Content is the result of a generation.
type Content struct {
	Text     string
	Source   domain.BackendKind
	Model    string
	Usage    domain.Usage
	Cost     float64
	Duration time.Duration
	// FallbackReason is set when Mock served a request meant for Real.
	FallbackReason error
	// Degraded is set when a guard substituted Mock output (breaker open or rate limited).
	Degraded bool
}

// Generator is the single capability shared by every strategy.
type Generator interface {
	Generate(ctx context.Context, req Request) (Content, error)
}

// Mode names a configured strategy.
type Mode string

const (
	ModeMock   Mode = "mock"
	ModeReal   Mode = "real"
	ModeHybrid Mode = "hybrid"
	ModeAuto   Mode = "auto"
)

// ProductionEnv is the environment variable consulted by ModeAuto.
const ProductionEnv = "STRATA_ENV"

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeMock, ModeReal, ModeHybrid, ModeAuto:
		return true
	}
	return false
}

// Resolve turns ModeAuto into a concrete mode. Auto selects Real only when a
// client is configured and the environment is "production".
func (m Mode) Resolve(hasClient bool, env string) Mode {
	if m != ModeAuto {
		return m
	}
	if hasClient && env == "production" {
		return ModeReal
	}
	return ModeMock
}
