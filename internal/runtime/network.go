package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/learning"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/resilience"
	"github.com/aretw0/strata/pkg/topology"
)

// Deps are the collaborators shared by every neuron of a network.
type Deps struct {
	// Generator is the configured backend strategy.
	Generator backend.Generator
	// Mock serves degraded output while a breaker is open or a neuron is rate limited.
	Mock    backend.Generator
	Store   ports.MemoryStore
	Learner *learning.Engine
}

// Network owns the neuron actors of one topology.
type Network struct {
	topo    *topology.Topology
	cfg     Config
	deps    Deps
	router  *Router
	tracker *tracker
	neurons map[string]*neuron
	order   []string
	hooks   domain.Hooks
	logger  *slog.Logger

	transport ports.Transport

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option configures a Network.
type Option func(*Network)

// WithConfig overrides the runtime parameters.
func WithConfig(cfg Config) Option {
	return func(n *Network) { n.cfg = cfg.withDefaults() }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Network) { n.logger = logger }
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(n *Network) { n.hooks = n.hooks.Merge(h) }
}

// WithTransport enables delivery to remote neurons.
func WithTransport(t ports.Transport) Option {
	return func(n *Network) { n.transport = t }
}

// NewNetwork builds the actors for every local neuron of topo. Nothing runs until Start.
func NewNetwork(topo *topology.Topology, deps Deps, opts ...Option) (*Network, error) {
	if topo == nil {
		return nil, fmt.Errorf("%w: nil topology", domain.ErrInvalidPeerTopology)
	}
	if deps.Generator == nil || deps.Store == nil {
		return nil, errors.New("runtime: generator and store are required")
	}
	n := &Network{
		topo:    topo,
		cfg:     DefaultConfig(),
		deps:    deps,
		tracker: newTracker(),
		neurons: make(map[string]*neuron),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.deps.Mock == nil {
		n.deps.Mock = n.deps.Generator
	}
	if n.deps.Learner == nil {
		n.deps.Learner = learning.New(deps.Store, learning.DefaultConfig(), learning.WithLogger(n.logger), learning.WithHooks(n.hooks))
	}

	n.router = newRouter(topo, n.cfg.InboxCapacity, n.transport, n.tracker, n.hooks, n.logger)
	limiter := resilience.NewLimiter(n.cfg.Limiter)

	for _, def := range topo.Neurons() {
		if !def.Local() {
			continue
		}
		logger := n.logger.With("neuron", def.ID, "layer", def.Layer.String())
		breaker := resilience.NewBreaker(def.ID, n.cfg.Breaker, resilience.OnTransition(n.breakerMoved))
		guard := resilience.NewGuard(deps.Generator, n.deps.Mock, breaker,
			resilience.WithLimiter(limiter),
			resilience.WithGuardLogger(logger),
		)
		n.neurons[def.ID] = &neuron{
			def:     def,
			topo:    topo,
			router:  n.router,
			tracker: n.tracker,
			gen:     guard,
			store:   deps.Store,
			learner: n.deps.Learner,
			cfg:     n.cfg,
			hooks:   n.hooks,
			logger:  logger,
		}
		n.order = append(n.order, def.ID)
	}
	return n, nil
}

func (n *Network) breakerMoved(name string, from, to resilience.State) {
	n.logger.Info("Circuit breaker transition", "neuron", name, "from", from.String(), "to", to.String())
	if n.hooks.OnBreakerTransition != nil {
		n.hooks.OnBreakerTransition(context.Background(), &domain.BreakerEvent{Name: name, From: from.String(), To: to.String()})
	}
}

// Start launches one goroutine per local neuron.
func (n *Network) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return errors.New("runtime: network already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	now := time.Now()
	for _, id := range n.order {
		nr := n.neurons[id]
		nr.startedAt.Store(now.UnixNano())
		nr.setState(domain.StateStarting)
		g.Go(func() error { return nr.Run(gctx) })
	}
	n.cancel = cancel
	n.group = g
	n.running = true
	n.logger.Info("Network started", "neurons", len(n.order))
	return nil
}

// Stop cancels every neuron and waits for them to exit.
func (n *Network) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	cancel, g := n.cancel, n.group
	n.mu.Unlock()

	cancel()
	err := g.Wait()
	n.logger.Info("Network stopped")
	return err
}

// Running reports whether the network accepts submissions.
func (n *Network) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// SubmitOption customizes a submission.
type SubmitOption func(*submission)

type submission struct {
	to       string
	strength float64
	features map[string]float64
	batchID  string
}

// SubmitTo targets a specific entry neuron instead of the highest-layer one.
func SubmitTo(id string) SubmitOption {
	return func(s *submission) { s.to = id }
}

// WithStrength sets the activation strength of the submitted signal.
func WithStrength(v float64) SubmitOption {
	return func(s *submission) { s.strength = v }
}

// WithFeatures attaches activation features.
func WithFeatures(f map[string]float64) SubmitOption {
	return func(s *submission) { s.features = f }
}

// WithBatchID sets the correlation id instead of generating one.
func WithBatchID(id string) SubmitOption {
	return func(s *submission) { s.batchID = id }
}

// Submit injects content at an entry neuron and waits for the chain to drain.
// The deadline of ctx becomes the deadline of every signal in the chain.
// The returned error is the outcome's terminal error, if no result was produced.
func (n *Network) Submit(ctx context.Context, content string, opts ...SubmitOption) (domain.Outcome, error) {
	s := submission{strength: 1, batchID: uuid.NewString()}
	for _, opt := range opts {
		opt(&s)
	}
	content, err := domain.SanitizeInput(content, n.cfg.MaxInputSize)
	if err != nil {
		return domain.Outcome{}, err
	}
	if s.to == "" {
		entries := n.topo.Entries()
		if len(entries) == 0 {
			return domain.Outcome{}, fmt.Errorf("%w: topology has no entry neuron", domain.ErrInvalidRoute)
		}
		s.to = entries[0].ID
	}
	entry, ok := n.topo.Lookup(s.to)
	if !ok {
		return domain.Outcome{}, fmt.Errorf("%w: unknown neuron %q", domain.ErrInvalidRoute, s.to)
	}

	var sigOpts []domain.SignalOption
	if deadline, ok := ctx.Deadline(); ok {
		sigOpts = append(sigOpts, domain.WithDeadline(deadline))
	}
	sig, err := domain.NewForward(domain.Endpoint{}, entry.Endpoint(), s.batchID,
		domain.Activation{Content: content, Strength: s.strength, Features: s.features}, sigOpts...)
	if err != nil {
		return domain.Outcome{}, err
	}
	return n.SubmitSignal(ctx, sig)
}

// SubmitSignal injects a prebuilt external signal and waits for its batch to drain.
func (n *Network) SubmitSignal(ctx context.Context, sig *domain.Signal) (domain.Outcome, error) {
	if !n.Running() {
		return domain.Outcome{}, domain.ErrEngineStopped
	}
	n.tracker.open(sig.BatchID())
	if err := n.router.Inject(ctx, sig); err != nil {
		n.tracker.forget(sig.BatchID())
		return domain.Outcome{BatchID: sig.BatchID()}, err
	}
	out := n.tracker.wait(ctx, sig.BatchID())
	n.logger.Debug("Request drained", "batch_id", out.BatchID, "results", len(out.Results), "failures", len(out.Failures))
	return out, out.Err()
}

// Deliver hands a signal received from a remote process to its local neuron.
func (n *Network) Deliver(ctx context.Context, sig *domain.Signal) error {
	return n.router.Deliver(ctx, sig)
}

// Router exposes the signal router.
func (n *Network) Router() *Router { return n.router }

// Topology returns the topology the network runs.
func (n *Network) Topology() *topology.Topology { return n.topo }

// Health returns a snapshot for every neuron in declaration order.
// Remote neurons are listed with Remote set and no counters.
func (n *Network) Health() []domain.NeuronHealth {
	var out []domain.NeuronHealth
	for _, def := range n.topo.Neurons() {
		if nr, ok := n.neurons[def.ID]; ok {
			out = append(out, nr.Health())
			continue
		}
		out = append(out, domain.NeuronHealth{ID: def.ID, Layer: def.Layer, Remote: true})
	}
	return out
}

// Adjustments returns the live adjustment state of a local neuron.
func (n *Network) Adjustments(id string) ([]string, bool) {
	nr, ok := n.neurons[id]
	if !ok {
		return nil, false
	}
	return nr.Adjustments(), true
}

// Breaker returns the state of a local neuron's circuit breaker.
func (n *Network) Breaker(id string) (resilience.State, bool) {
	nr, ok := n.neurons[id]
	if !ok {
		return 0, false
	}
	g, ok := nr.gen.(*resilience.Guard)
	if !ok {
		return 0, false
	}
	return g.Breaker().State(), true
}
