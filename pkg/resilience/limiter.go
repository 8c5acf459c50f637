package resilience

import (
	"sync"

	"github.com/aretw0/strata/pkg/domain"
	"golang.org/x/time/rate"
)

// LimiterConfig tunes the per neuron-layer token buckets. A zero rate disables limiting.
type LimiterConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// DefaultLimiterConfig allows 60 requests per minute with a small burst.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{RequestsPerSecond: 1, Burst: 10}
}

// Limiter keeps one token bucket per neuron-layer pair.
type Limiter struct {
	mu      sync.Mutex
	cfg     LimiterConfig
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{cfg: cfg, buckets: make(map[string]*rate.Limiter)}
}

// Allow consumes a token for the pair, reporting whether one was available.
func (l *Limiter) Allow(neuronID string, layer domain.Layer) bool {
	if l == nil || l.cfg.RequestsPerSecond <= 0 {
		return true
	}
	return l.bucket(neuronID + "/" + layer.String()).Allow()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
		l.buckets[key] = b
	}
	return b
}
