package runtime

import (
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/resilience"
)

// Config tunes the network.
type Config struct {
	InboxCapacity     int           `yaml:"inbox_capacity" validate:"gte=1"`
	ContextLimit      int           `yaml:"context_limit" validate:"gte=0"`
	MemoryTimeout     time.Duration `yaml:"memory_timeout" validate:"gte=0"`
	GenerationTimeout time.Duration `yaml:"generation_timeout" validate:"gte=0"`
	// MaxAdjustments bounds the live adjustment state of each neuron.
	MaxAdjustments int `yaml:"max_adjustments" validate:"gte=1"`
	// RouteRetries is how many times a congested route is retried.
	RouteRetries int           `yaml:"route_retries" validate:"gte=0"`
	RouteBackoff time.Duration `yaml:"route_backoff" validate:"gte=0"`
	// MaxInputSize bounds submitted content, in bytes.
	MaxInputSize int `yaml:"max_input_size" validate:"gte=0"`

	Breaker resilience.BreakerConfig `yaml:"breaker"`
	Limiter resilience.LimiterConfig `yaml:"rate_limit"`
}

// DefaultConfig returns the standard runtime parameters.
func DefaultConfig() Config {
	return Config{
		InboxCapacity:     100,
		ContextLimit:      5,
		MemoryTimeout:     5 * time.Second,
		GenerationTimeout: 30 * time.Second,
		MaxAdjustments:    10,
		RouteRetries:      3,
		RouteBackoff:      10 * time.Millisecond,
		MaxInputSize:      domain.DefaultMaxInputSize,
		Breaker:           resilience.DefaultBreakerConfig(),
		Limiter:           resilience.DefaultLimiterConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InboxCapacity <= 0 {
		c.InboxCapacity = def.InboxCapacity
	}
	if c.ContextLimit < 0 {
		c.ContextLimit = def.ContextLimit
	}
	if c.MaxAdjustments <= 0 {
		c.MaxAdjustments = def.MaxAdjustments
	}
	if c.MaxInputSize <= 0 {
		c.MaxInputSize = def.MaxInputSize
	}
	if c.RouteRetries < 0 {
		c.RouteRetries = 0
	}
	return c
}
