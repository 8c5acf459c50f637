package strata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/strata/internal/runtime"
	loamAdapter "github.com/aretw0/strata/pkg/adapters/loam"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/learning"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/retention"
	"github.com/aretw0/strata/pkg/topology"
)

// Engine is the high-level entry point for the strata library.
// It wires the topology, backend, memory and learning engine into a running network.
type Engine struct {
	network  *runtime.Network
	selector *backend.Selector
	topo     *topology.Topology
	store    ports.MemoryStore
	learner  *learning.Engine
	pruner   *retention.Pruner

	loader      ports.TopologyLoader
	client      ports.BackendClient
	transport   ports.Transport
	locker      ports.DistributedLocker
	backendCfg  backend.Config
	runtimeCfg  runtime.Config
	learningCfg learning.Config
	pruneCfg    retention.Config
	environment string
	hooks       domain.Hooks
	logger      *slog.Logger
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks registers observability hooks. Repeated calls are merged.
func WithHooks(hooks domain.Hooks) Option {
	return func(e *Engine) { e.hooks = e.hooks.Merge(hooks) }
}

// WithLoader injects a custom TopologyLoader, bypassing path detection.
func WithLoader(l ports.TopologyLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithTopology uses an already validated topology.
func WithTopology(t *topology.Topology) Option {
	return func(e *Engine) { e.topo = t }
}

// WithMemoryStore replaces the default in-process store.
func WithMemoryStore(s ports.MemoryStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithBackendClient provides the paid model client used by the real and hybrid modes.
func WithBackendClient(c ports.BackendClient) Option {
	return func(e *Engine) { e.client = c }
}

// WithBackend sets the backend mode, limits and mock rules.
func WithBackend(cfg backend.Config) Option {
	return func(e *Engine) { e.backendCfg = cfg }
}

// WithEnvironment sets the environment consulted by the auto mode.
func WithEnvironment(env string) Option {
	return func(e *Engine) { e.environment = env }
}

// WithRuntime tunes inboxes, timeouts, breakers and rate limits.
func WithRuntime(cfg runtime.Config) Option {
	return func(e *Engine) { e.runtimeCfg = cfg }
}

// WithLearning tunes pattern detection and gradient decay.
func WithLearning(cfg learning.Config) Option {
	return func(e *Engine) { e.learningCfg = cfg }
}

// WithRetention tunes pruning.
func WithRetention(cfg retention.Config) Option {
	return func(e *Engine) { e.pruneCfg = cfg }
}

// WithTransport enables delivery to neurons declared with a remote handle.
func WithTransport(t ports.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithLocker serializes pruning across replicas.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = l }
}

// New builds an engine from the topology at source: a directory of Loam
// neuron documents or a YAML/JSON topology file. When WithLoader or
// WithTopology is given, source is only used as a label.
func New(source string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		backendCfg:  backend.DefaultConfig(),
		runtimeCfg:  runtime.DefaultConfig(),
		learningCfg: learning.DefaultConfig(),
		pruneCfg:    retention.DefaultConfig(),
		environment: os.Getenv(backend.ProductionEnv),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if source != "" {
		eng.Name = filepath.Base(source)
	}
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("network", eng.Name)
	}

	if eng.topo == nil {
		if eng.loader == nil {
			loader, err := loaderFor(source)
			if err != nil {
				return nil, err
			}
			eng.loader = loader
		}
		topo, err := topology.LoadFrom(context.Background(), eng.loader)
		if err != nil {
			return nil, err
		}
		eng.topo = topo
	}

	selector, err := backend.NewSelector(eng.backendCfg, eng.client,
		backend.WithEnvironment(eng.environment),
		backend.WithSelectorLogger(eng.logger),
		backend.WithLedgerOptions(backend.WithLedgerHooks(eng.hooks)),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing backend: %w", err)
	}
	eng.selector = selector

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	eng.learner = learning.New(eng.store, eng.learningCfg,
		learning.WithLogger(eng.logger),
		learning.WithHooks(eng.hooks),
	)

	netOpts := []runtime.Option{
		runtime.WithConfig(eng.runtimeCfg),
		runtime.WithLogger(eng.logger),
		runtime.WithHooks(eng.hooks),
	}
	if eng.transport != nil {
		netOpts = append(netOpts, runtime.WithTransport(eng.transport))
	}
	eng.network, err = runtime.NewNetwork(eng.topo, runtime.Deps{
		Generator: selector.Generator(),
		Mock:      selector.Mock(),
		Store:     eng.store,
		Learner:   eng.learner,
	}, netOpts...)
	if err != nil {
		return nil, err
	}

	pruneOpts := []retention.Option{retention.WithLogger(eng.logger)}
	if eng.locker != nil {
		pruneOpts = append(pruneOpts, retention.WithLocker(eng.locker))
	}
	eng.pruner = retention.New(eng.store, eng.pruneCfg, pruneOpts...)
	return eng, nil
}

func loaderFor(source string) (ports.TopologyLoader, error) {
	if source == "" {
		return nil, fmt.Errorf("a topology source is required when no loader is provided")
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology: %w", err)
	}
	if !info.IsDir() {
		return topology.FileLoader{Path: abs}, nil
	}
	loader, err := loamAdapter.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return loader, nil
}

// Start launches the neuron actors.
func (e *Engine) Start(ctx context.Context) error {
	return e.network.Start(ctx)
}

// Stop shuts the neuron actors down and waits for them.
func (e *Engine) Stop() error {
	return e.network.Stop()
}

// Submit sends content to the highest-layer entry neuron and waits for the
// chain to drain. The deadline of ctx bounds the whole request. A nil error
// means at least one terminal result was produced.
func (e *Engine) Submit(ctx context.Context, content string) (domain.Outcome, error) {
	return e.network.Submit(ctx, content)
}

// SubmitTo sends content to a specific entry neuron.
func (e *Engine) SubmitTo(ctx context.Context, neuronID, content string) (domain.Outcome, error) {
	return e.network.Submit(ctx, content, runtime.SubmitTo(neuronID))
}

// SubmitSignal injects a prebuilt external signal.
func (e *Engine) SubmitSignal(ctx context.Context, sig *domain.Signal) (domain.Outcome, error) {
	return e.network.SubmitSignal(ctx, sig)
}

// Deliver hands a signal received from another process to its local neuron.
func (e *Engine) Deliver(ctx context.Context, sig *domain.Signal) error {
	return e.network.Deliver(ctx, sig)
}

// Health returns a snapshot of every neuron.
func (e *Engine) Health() []domain.NeuronHealth {
	return e.network.Health()
}

// Adjustments returns the live adjustment state of a neuron.
func (e *Engine) Adjustments(neuronID string) []string {
	adj, _ := e.network.Adjustments(neuronID)
	return adj
}

// Costs returns the current ledger totals.
func (e *Engine) Costs() domain.CostStats {
	return e.selector.Ledger().Stats()
}

// Mode returns the resolved backend mode.
func (e *Engine) Mode() backend.Mode {
	return e.selector.Mode()
}

// Memory exposes the store read-only.
func (e *Engine) Memory() ports.MemoryReader {
	return e.store
}

// QueryMemory reads the most recent entries of a neuron's partition.
func (e *Engine) QueryMemory(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	return e.store.QueryRecent(ctx, neuronID, kinds, limit)
}

// Prune runs one retention pass.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	return e.pruner.PruneOnce(ctx)
}

// RunRetention prunes on the configured interval until ctx is done.
func (e *Engine) RunRetention(ctx context.Context) error {
	return e.pruner.Run(ctx)
}

// Topology returns the loaded topology.
func (e *Engine) Topology() *topology.Topology {
	return e.topo
}

// Declarations returns the neuron declarations of the topology.
func (e *Engine) Declarations() []domain.NeuronDeclaration {
	return e.topo.Declarations()
}
