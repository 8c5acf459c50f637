package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/pkg/adapters/anthropic"
	"github.com/aretw0/strata/pkg/adapters/guarded"
	"github.com/aretw0/strata/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/persistence/middleware"
	"github.com/aretw0/strata/pkg/ports"
)

// Stack is an engine built from configuration together with the resources it owns.
type Stack struct {
	Engine  *strata.Engine
	Metrics *observability.Metrics
	Config  config.Config

	redis     *goredis.Client
	transport *redisAdapter.Transport
	logger    *slog.Logger
}

// BuildEngine wires an engine from cfg. topologyPath, when set, overrides
// the topology section of the configuration. extra options are applied last.
func BuildEngine(cfg config.Config, topologyPath string, logger *slog.Logger, debug bool, extra ...strata.Option) (*Stack, error) {
	st := &Stack{
		Config:  cfg,
		Metrics: observability.NewMetrics(),
		logger:  logger,
	}

	source, topoOpts, err := topologySource(cfg, topologyPath)
	if err != nil {
		return nil, err
	}

	selectorCfg, err := cfg.BackendSelector()
	if err != nil {
		return nil, err
	}

	// 1. Logger & Hooks
	engineOpts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithHooks(st.Metrics.Hooks()),
		strata.WithBackend(selectorCfg),
		strata.WithEnvironment(cfg.Environment),
		strata.WithRuntime(cfg.Runtime),
		strata.WithLearning(cfg.Learning),
		strata.WithRetention(cfg.Retention),
	}
	if debug {
		engineOpts = append(engineOpts, strata.WithHooks(createDebugHooks(logger)))
	}
	engineOpts = append(engineOpts, topoOpts...)

	// 2. Paid backend, only when a key is available
	if cfg.Backend.APIKey != "" {
		engineOpts = append(engineOpts, strata.WithBackendClient(anthropic.NewClient(cfg.Backend.APIKey,
			anthropic.WithBaseURL(cfg.Backend.BaseURL),
			anthropic.WithLogger(logger),
		)))
	}

	// 3. Memory, locking and transport
	needRedis := cfg.Memory.Driver == config.DriverRedis || cfg.Transport.Enabled
	if needRedis {
		st.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Memory.Redis.Addr,
			Password: cfg.Memory.Redis.Password,
			DB:       cfg.Memory.Redis.DB,
		})
	}

	var store ports.MemoryStore = memory.NewStore()
	if cfg.Memory.Driver == config.DriverRedis {
		redisOpts := []redisAdapter.Option{redisAdapter.WithPrefix(cfg.Memory.Redis.Prefix)}
		if cfg.Memory.Redis.TTL > 0 {
			redisOpts = append(redisOpts, redisAdapter.WithTTL(cfg.Memory.Redis.TTL))
		}
		store = redisAdapter.NewFromClient(st.redis, redisOpts...)
		engineOpts = append(engineOpts, strata.WithLocker(redisAdapter.NewLocker(st.redis, cfg.Memory.Redis.Prefix)))
	}
	mws, err := cfg.StoreMiddleware()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	store = middleware.Chain(store, mws...)
	store = guarded.New(store, cfg.Memory.Guard,
		guarded.WithLogger(logger),
		guarded.WithStateChange(func(name, from, to string) {
			st.Metrics.BreakerTransitions.WithLabelValues(name, from, to).Inc()
		}),
	)
	engineOpts = append(engineOpts, strata.WithMemoryStore(store))

	if cfg.Transport.Enabled {
		st.transport = redisAdapter.NewTransport(st.redis,
			redisAdapter.WithTransportPrefix(cfg.Memory.Redis.Prefix),
			redisAdapter.WithTransportLogger(logger),
		)
		engineOpts = append(engineOpts, strata.WithTransport(st.transport))
	}

	engineOpts = append(engineOpts, extra...)

	// 4. Initialize
	engine, err := strata.New(source, engineOpts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	st.Engine = engine
	return st, nil
}

// topologySource resolves where the neuron declarations come from.
func topologySource(cfg config.Config, override string) (string, []strata.Option, error) {
	if override != "" {
		return override, nil, nil
	}
	t := cfg.Topology
	switch {
	case len(t.Neurons) > 0:
		label := "inline"
		if cfg.LoadedFrom != "" {
			label = filepath.Base(cfg.LoadedFrom)
		}
		return label, []strata.Option{strata.WithLoader(memory.NewLoader(t.Neurons...))}, nil
	case t.File != "":
		return t.File, nil, nil
	case t.Loam != "":
		return t.Loam, nil, nil
	}
	return "", nil, errors.New("no topology configured: pass a path or set topology.neurons, topology.file or topology.loam")
}

// Start launches the neuron actors.
func (s *Stack) Start(ctx context.Context) error {
	return s.Engine.Start(ctx)
}

// Run drives the transport subscription and the retention loop of a started
// engine. It blocks until ctx is done or a component fails, then stops the engine.
func (s *Stack) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.transport != nil && s.Config.Transport.Handle != "" {
		g.Go(func() error {
			s.logger.Info("Listening for remote signals", "handle", s.Config.Transport.Handle)
			return s.transport.Subscribe(gctx, []string{s.Config.Transport.Handle}, s.Engine.Deliver)
		})
	}
	if s.Config.Retention.Interval > 0 {
		g.Go(func() error { return s.Engine.RunRetention(gctx) })
	}
	<-gctx.Done()
	err := g.Wait()
	if stopErr := s.Engine.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the Redis connection, if any.
func (s *Stack) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// createDebugHooks logs every signal movement at debug level.
func createDebugHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnSignalSent: func(_ context.Context, e *domain.SignalEvent) {
			logger.Debug("signal sent", "neuron", e.NeuronID, "direction", e.Direction, "signal_id", e.SignalID)
		},
		OnSignalProcessed: func(_ context.Context, e *domain.SignalEvent) {
			logger.Debug("signal processed", "neuron", e.NeuronID, "direction", e.Direction, "signal_id", e.SignalID)
		},
		OnSignalFailed: func(_ context.Context, e *domain.SignalEvent) {
			logger.Debug("signal failed", "neuron", e.NeuronID, "classification", e.Classification)
		},
		OnGeneration: func(_ context.Context, e *domain.GenerationEvent) {
			logger.Debug("generation", "neuron", e.NeuronID, "source", e.Source, "degraded", e.Degraded, "duration", e.Duration)
		},
		OnPatternDetected: func(_ context.Context, e *domain.PatternEvent) {
			logger.Debug("pattern learned", "neuron", e.NeuronID, "tag", e.Tag)
		},
	}
}
