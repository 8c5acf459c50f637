// Package config loads the strata configuration file.
//
// Values are read from YAML, layered over Default() and then overridden by
// the environment (ANTHROPIC_API_KEY, STRATA_ENV, STRATA_REDIS_ADDR,
// STRATA_MEMORY_KEY, STRATA_LOG_LEVEL).
// Durations are written as Go duration strings ("30s", "1h").
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/internal/runtime"
	"github.com/aretw0/strata/pkg/adapters/anthropic"
	"github.com/aretw0/strata/pkg/adapters/guarded"
	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/learning"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/retention"
)

// Environment variables consulted by Load.
const (
	EnvRedisAddr = "STRATA_REDIS_ADDR"
	EnvLogLevel  = "STRATA_LOG_LEVEL"
	EnvMemoryKey = "STRATA_MEMORY_KEY"
)

// Memory drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the whole configuration file.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string `yaml:"log_format" validate:"omitempty,oneof=text json"`

	Topology  TopologyConfig   `yaml:"topology"`
	Backend   BackendConfig    `yaml:"backend"`
	Runtime   runtime.Config   `yaml:"runtime"`
	Learning  learning.Config  `yaml:"learning"`
	Memory    MemoryConfig     `yaml:"memory"`
	Retention retention.Config `yaml:"retention"`
	Transport TransportConfig  `yaml:"transport"`
	Metrics   MetricsConfig    `yaml:"metrics"`

	// LoadedFrom is the file the configuration was read from, if any.
	LoadedFrom string `yaml:"-"`
}

// TopologyConfig names where the neuron declarations come from.
// Exactly one source is used, in the order Neurons, File, Loam.
type TopologyConfig struct {
	Neurons []domain.NeuronDeclaration `yaml:"neurons"`
	File    string                     `yaml:"file"`
	// Loam is a directory holding one neuron document per file.
	Loam string `yaml:"loam"`
}

// BackendConfig configures generation and the cost ledger.
type BackendConfig struct {
	Mode        backend.Mode  `yaml:"mode" validate:"omitempty,oneof=mock real hybrid auto"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	// APIKey is normally taken from ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`

	MaxCostPerHour      float64 `yaml:"max_cost_per_hour" validate:"gte=0"`
	MaxCostPerDay       float64 `yaml:"max_cost_per_day" validate:"gte=0"`
	MaxTokensPerRequest int     `yaml:"max_tokens_per_request" validate:"gte=0"`
	AlertThreshold      float64 `yaml:"alert_threshold" validate:"gte=0,lte=1"`
	BlockOnAlert        bool    `yaml:"block_on_alert"`

	MockDelay time.Duration `yaml:"mock_delay" validate:"gte=0"`
	// MockRules is keyed by layer name ("L4").
	MockRules map[string][]backend.Rule `yaml:"mock_rules"`
}

// MemoryConfig selects the memory store.
type MemoryConfig struct {
	Driver string         `yaml:"driver" validate:"omitempty,oneof=memory redis"`
	Redis  RedisConfig    `yaml:"redis"`
	Guard  guarded.Config `yaml:"guard"`
	// Redact lists regular expressions masked out of entry content before it is stored.
	// "default" expands to the built-in email, token and card number patterns.
	Redact     []string         `yaml:"redact"`
	Encryption EncryptionConfig `yaml:"encryption"`
}

// EncryptionConfig enables AES-256-GCM encryption of entry content at rest.
// Keys are base64 encoded 32 byte values; Key is normally taken from STRATA_MEMORY_KEY.
type EncryptionConfig struct {
	Key          string   `yaml:"key"`
	FallbackKeys []string `yaml:"fallback_keys"`
}

// RedisConfig is shared by the Redis store, locker and transport.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// TransportConfig enables Redis pub/sub delivery for remote neurons.
type TransportConfig struct {
	Enabled bool `yaml:"enabled"`
	// Handle is the remote handle this process answers to. Signals published
	// to it by other processes are delivered to the local neurons.
	Handle string `yaml:"handle" validate:"omitempty,max=64"`
}

// MetricsConfig configures the metrics listener.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	b := backend.DefaultConfig()
	return Config{
		Environment: "development",
		LogLevel:    "info",
		LogFormat:   "text",
		Backend: BackendConfig{
			Mode:                b.Mode,
			Model:               b.Model,
			MaxTokens:           b.MaxTokens,
			Temperature:         b.Temperature,
			Timeout:             b.Timeout,
			BaseURL:             anthropic.DefaultBaseURL,
			MaxCostPerHour:      b.Limits.MaxCostPerHour,
			MaxCostPerDay:       b.Limits.MaxCostPerDay,
			MaxTokensPerRequest: b.Limits.MaxTokensPerRequest,
			AlertThreshold:      b.Limits.AlertThreshold,
		},
		Runtime:  runtime.DefaultConfig(),
		Learning: learning.DefaultConfig(),
		Memory: MemoryConfig{
			Driver: DriverMemory,
			Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "strata:"},
			Guard:  guarded.DefaultConfig(),
		},
		Retention: retention.DefaultConfig(),
		Metrics:   MetricsConfig{Addr: ":9090"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.LoadedFrom = path
		cfg.resolvePaths(filepath.Dir(path))
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without touching the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// resolvePaths makes topology paths relative to the config file.
func (c *Config) resolvePaths(dir string) {
	if c.Topology.File != "" && !filepath.IsAbs(c.Topology.File) {
		c.Topology.File = filepath.Join(dir, c.Topology.File)
	}
	if c.Topology.Loam != "" && !filepath.IsAbs(c.Topology.Loam) {
		c.Topology.Loam = filepath.Join(dir, c.Topology.Loam)
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(anthropic.APIKeyEnv); v != "" && c.Backend.APIKey == "" {
		c.Backend.APIKey = v
	}
	if v := getenv(backend.ProductionEnv); v != "" {
		c.Environment = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.Memory.Redis.Addr = v
	}
	if v := getenv(EnvMemoryKey); v != "" {
		c.Memory.Encryption.Key = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	var errs []error
	if _, err := c.MockRules(); err != nil {
		errs = append(errs, err)
	}
	if c.Transport.Enabled && c.Memory.Redis.Addr == "" {
		errs = append(errs, errors.New("transport requires memory.redis.addr"))
	}
	if c.Memory.Driver == DriverRedis && c.Memory.Redis.Addr == "" {
		errs = append(errs, errors.New("memory.redis.addr is required for the redis driver"))
	}
	if _, err := c.StoreMiddleware(); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if c.Backend.Mode == backend.ModeReal && c.Backend.APIKey == "" {
		errs = append(errs, fmt.Errorf("backend mode real requires %s", anthropic.APIKeyEnv))
	}
	return errors.Join(errs...)
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Namespace())
		switch e.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, e.Param()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid url", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s %s)", field, e.Tag(), e.Param()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// MockRules converts the layer-keyed rule table.
func (c Config) MockRules() (map[domain.Layer][]backend.Rule, error) {
	if len(c.Backend.MockRules) == 0 {
		return nil, nil
	}
	out := make(map[domain.Layer][]backend.Rule, len(c.Backend.MockRules))
	for name, rules := range c.Backend.MockRules {
		layer, err := domain.ParseLayer(name)
		if err != nil {
			return nil, fmt.Errorf("backend.mock_rules: %w", err)
		}
		out[layer] = rules
	}
	return out, nil
}

// StoreMiddleware builds the redaction and encryption layers, outermost first.
func (c Config) StoreMiddleware() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(c.Memory.Redact) > 0 {
		var patterns []string
		for _, p := range c.Memory.Redact {
			if p == "default" {
				patterns = append(patterns, middleware.DefaultPIIPatterns...)
				continue
			}
			patterns = append(patterns, p)
		}
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if enc := c.Memory.Encryption; enc.Key != "" {
		keys, err := middleware.DecodeKeys(enc.Key, enc.FallbackKeys...)
		if err != nil {
			return nil, fmt.Errorf("encryption: %w", err)
		}
		mw, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return mws, nil
}

// BackendSelector returns the selector configuration.
func (c Config) BackendSelector() (backend.Config, error) {
	rules, err := c.MockRules()
	if err != nil {
		return backend.Config{}, err
	}
	b := c.Backend
	return backend.Config{
		Mode:        b.Mode,
		Model:       b.Model,
		MaxTokens:   b.MaxTokens,
		Temperature: b.Temperature,
		Timeout:     b.Timeout,
		Limits: backend.Limits{
			MaxCostPerHour:      b.MaxCostPerHour,
			MaxCostPerDay:       b.MaxCostPerDay,
			MaxTokensPerRequest: b.MaxTokensPerRequest,
			AlertThreshold:      b.AlertThreshold,
			BlockOnAlert:        b.BlockOnAlert,
		},
		MockRules: rules,
		MockDelay: b.MockDelay,
	}, nil
}
