package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/learning"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/topology"
)

var tracer = otel.Tracer("github.com/aretw0/strata/internal/runtime")

const (
	taskImportance    = 0.3
	defaultImportance = 0.5
)

// neuron is the actor for one local topology node. Only its Run goroutine
// touches the state machine; health fields are read concurrently.
type neuron struct {
	def     *topology.Neuron
	topo    *topology.Topology
	router  *Router
	tracker *tracker
	gen     backend.Generator
	store   ports.MemoryStore
	learner *learning.Engine
	cfg     Config
	hooks   domain.Hooks
	logger  *slog.Logger

	state     atomic.Value // domain.NeuronState
	processed atomic.Int64
	failed    atomic.Int64
	sent      atomic.Int64
	last      atomic.Int64 // unix nanos of the last dequeued signal
	startedAt atomic.Int64

	mu          sync.Mutex
	adjustments []string
}

// job carries one signal through the state machine.
type job struct {
	sig     *domain.Signal
	act     domain.Activation
	grad    domain.Gradient
	memory  []domain.MemoryEntry
	content backend.Content
	err     error
	outbox  []*domain.Signal
}

func (n *neuron) setState(s domain.NeuronState) { n.state.Store(s) }

func (n *neuron) State() domain.NeuronState {
	if s, ok := n.state.Load().(domain.NeuronState); ok {
		return s
	}
	return domain.StateStarting
}

// Run consumes the inbox until ctx is cancelled.
func (n *neuron) Run(ctx context.Context) error {
	n.setState(domain.StateIdle)
	n.logger.Debug("Neuron started")
	defer func() {
		n.setState(domain.StateStopped)
		n.logger.Debug("Neuron stopped")
	}()

	inbox := n.router.inbox(n.def.ID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-inbox:
			n.handle(ctx, sig)
		}
	}
}

func (n *neuron) handle(ctx context.Context, sig *domain.Signal) {
	n.last.Store(time.Now().UnixNano())
	defer n.tracker.done(sig.BatchID())

	ctx, span := tracer.Start(ctx, "neuron.process", trace.WithAttributes(
		attribute.String("neuron.id", n.def.ID),
		attribute.String("neuron.layer", n.def.Layer.String()),
		attribute.String("signal.direction", string(sig.Direction())),
		attribute.String("batch.id", sig.BatchID()),
	))
	defer span.End()

	j := &job{sig: sig}
	n.process(ctx, j)
	n.flush(ctx, j)

	if j.err != nil {
		span.RecordError(j.err)
		span.SetStatus(codes.Error, string(domain.Classify(j.err)))
	}
	n.processed.Add(1)
	n.emit(ctx, n.hooks.OnSignalProcessed, sig, "")
}

// process drives the state machine until it returns to Idle. Outgoing signals
// are collected in the job and routed afterwards.
func (n *neuron) process(ctx context.Context, j *job) {
	state := n.initial(j)
	for state != domain.StateIdle {
		n.setState(state)
		switch state {
		case domain.StateContextualizing:
			state = n.contextualize(ctx, j)
		case domain.StateGenerating:
			state = n.generate(ctx, j)
		case domain.StateEmitting:
			state = n.emitForward(ctx, j)
		case domain.StateErrorHandling:
			state = n.fail(ctx, j)
		case domain.StateLearning:
			state = n.learn(ctx, j)
		default:
			n.logger.Error("Unknown neuron state", "state", state)
			state = domain.StateIdle
		}
	}
	n.setState(domain.StateIdle)
}

func (n *neuron) initial(j *job) domain.NeuronState {
	if j.sig.Direction() == domain.Backward {
		j.grad, _ = j.sig.Gradient()
		return domain.StateLearning
	}
	j.act, _ = j.sig.Activation()
	if j.sig.Expired(time.Now()) {
		deadline, _ := j.sig.Deadline()
		j.err = fmt.Errorf("%w: deadline %s elapsed before processing", domain.ErrDeadlineExceeded, deadline.Format(time.RFC3339Nano))
		return domain.StateErrorHandling
	}
	return domain.StateContextualizing
}

func (n *neuron) contextualize(ctx context.Context, j *job) domain.NeuronState {
	limit := n.cfg.ContextLimit
	if n.def.Settings.ContextLimit > 0 {
		limit = n.def.Settings.ContextLimit
	}
	if limit == 0 {
		return domain.StateGenerating
	}

	mctx, cancel := withTimeout(ctx, n.cfg.MemoryTimeout)
	defer cancel()

	learned, err := n.store.QueryRecent(mctx, n.def.ID, []domain.EntryKind{domain.KindLearning}, limit)
	if err == nil && len(learned) < limit {
		var rest []domain.MemoryEntry
		rest, err = n.store.QueryRecent(mctx, n.def.ID,
			[]domain.EntryKind{domain.KindTask, domain.KindResult, domain.KindError}, limit-len(learned))
		learned = append(learned, rest...)
	}
	if err != nil {
		j.err = fmt.Errorf("%w: %w", domain.ErrContextLookupFailed, err)
		return domain.StateErrorHandling
	}
	j.memory = learned
	return domain.StateGenerating
}

func (n *neuron) generate(ctx context.Context, j *job) domain.NeuronState {
	settings := n.def.Settings
	system := settings.SystemPrompt
	if system == "" {
		system = SystemPrompt(n.def.Layer)
	}
	req := backend.Request{
		NeuronID:    n.def.ID,
		Layer:       n.def.Layer,
		System:      system,
		Prompt:      buildPrompt(n.Adjustments(), j.memory, j.act.Content),
		Content:     j.act.Content,
		Model:       settings.Model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	}

	gctx, cancel := withTimeout(ctx, n.cfg.GenerationTimeout)
	defer cancel()
	if deadline, ok := j.sig.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		gctx, cancelDeadline = context.WithDeadline(gctx, deadline)
		defer cancelDeadline()
	}

	gctx, span := tracer.Start(gctx, "neuron.generate", trace.WithAttributes(
		attribute.String("neuron.id", n.def.ID),
		attribute.String("batch.id", j.sig.BatchID()),
	))
	defer span.End()

	content, err := n.gen.Generate(gctx, req)
	if err != nil {
		switch {
		case j.sig.Expired(time.Now()):
			// The request deadline passed mid-generation: the caller is gone.
			err = fmt.Errorf("%w: generation outlived the request: %v", domain.ErrDeadlineExceeded, err)
		case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUpstreamFailure):
			err = fmt.Errorf("%w: generation timed out after %s", domain.ErrUpstreamFailure, n.cfg.GenerationTimeout)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		j.err = err
		return domain.StateErrorHandling
	}

	span.SetAttributes(
		attribute.String("backend.source", string(content.Source)),
		attribute.Bool("backend.degraded", content.Degraded),
	)
	if n.hooks.OnGeneration != nil {
		n.hooks.OnGeneration(ctx, &domain.GenerationEvent{
			NeuronID: n.def.ID,
			Source:   content.Source,
			Degraded: content.Degraded,
			Duration: content.Duration,
		})
	}
	j.content = content
	return domain.StateEmitting
}

func (n *neuron) emitForward(ctx context.Context, j *job) domain.NeuronState {
	batchID := j.sig.BatchID()
	strength := j.act.Strength
	if strength == 0 {
		strength = defaultImportance
	}
	n.remember(ctx, domain.MemoryEntry{Kind: domain.KindTask, Content: j.act.Content, Importance: taskImportance, BatchID: batchID})
	n.remember(ctx, domain.MemoryEntry{Kind: domain.KindResult, Content: j.content.Text, Importance: strength, BatchID: batchID})
	n.tracker.activated(batchID, n.def.Layer)

	directives := backend.ParseDirectives(j.content.Text)
	peers := n.topo.Forward(n.def.ID)
	if len(peers) == 0 || directives.Result {
		n.tracker.result(batchID, domain.TerminalResult{
			NeuronID: n.def.ID,
			Layer:    n.def.Layer,
			Content:  directives.Content,
			Strength: j.act.Strength,
			Source:   j.content.Source,
			Degraded: j.content.Degraded,
		})
		n.logger.Debug("Terminal result recorded", "batch_id", batchID)
		return domain.StateIdle
	}

	targets := selectTargets(peers, directives.Targets)
	act := domain.Activation{Content: directives.Content, Strength: j.act.Strength, Features: j.act.Features}
	for _, peer := range targets {
		out, err := domain.NewForward(n.def.Endpoint(), peer.Endpoint(), batchID, act, n.propagated(j.sig)...)
		if err != nil {
			n.logger.Error("Could not build forward signal", "to", peer.ID, "err", err)
			continue
		}
		j.outbox = append(j.outbox, out)
	}
	return domain.StateIdle
}

// selectTargets narrows peers to the named ones. Unknown names are ignored and
// an empty selection means every peer.
func selectTargets(peers []*topology.Neuron, names []string) []*topology.Neuron {
	if len(names) == 0 {
		return peers
	}
	var out []*topology.Neuron
	for _, p := range peers {
		if slices.Contains(names, p.ID) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return peers
	}
	return out
}

// fail converts j.err into a gradient, records it and prepares the backward signals.
func (n *neuron) fail(ctx context.Context, j *job) domain.NeuronState {
	cls := domain.Classify(j.err)
	n.failed.Add(1)
	n.logger.Warn("Signal processing failed", "batch_id", j.sig.BatchID(), "classification", cls, "err", j.err)
	n.emit(ctx, n.hooks.OnSignalFailed, j.sig, cls)

	grad := domain.Gradient{
		ErrorType:   cls,
		Magnitude:   cls.Magnitude(),
		Loss:        cls.Magnitude(),
		Adjustments: []string{learning.Guidance(cls)},
	}
	n.observe(ctx, j.sig.BatchID(), grad)

	targets := n.failTargets(j.sig)
	if len(targets) == 0 {
		n.terminalFailure(j.sig.BatchID(), grad, j.err.Error())
		return domain.StateIdle
	}
	for _, peer := range targets {
		out, err := domain.NewBackward(n.def.Endpoint(), peer.Endpoint(), j.sig.BatchID(), grad, n.propagated(j.sig)...)
		if err != nil {
			n.logger.Error("Could not build backward signal", "to", peer.ID, "err", err)
			continue
		}
		j.outbox = append(j.outbox, out)
	}
	return domain.StateIdle
}

// failTargets picks the sender when it is a backward peer, otherwise every backward peer.
func (n *neuron) failTargets(sig *domain.Signal) []*topology.Neuron {
	peers := n.topo.Backward(n.def.ID)
	if !sig.External() && sig.Direction() == domain.Forward {
		for _, p := range peers {
			if p.ID == sig.From() {
				return []*topology.Neuron{p}
			}
		}
	}
	return peers
}

func (n *neuron) learn(ctx context.Context, j *job) domain.NeuronState {
	if err := j.grad.Validate(); err != nil {
		n.logger.Warn("Dropping malformed gradient", "from", j.sig.From(), "batch_id", j.sig.BatchID(), "err", err)
		return domain.StateIdle
	}
	n.observe(ctx, j.sig.BatchID(), j.grad)

	next := j.grad
	next.Magnitude = n.learner.Decay(j.grad.Magnitude)
	next.Adjustments = mergeAdjustments(j.grad.Adjustments, learning.Guidance(j.grad.ErrorType))

	peers := n.topo.Backward(n.def.ID)
	if len(peers) == 0 || !n.learner.Significant(next.Magnitude) {
		n.terminalFailure(j.sig.BatchID(), j.grad, "reported by "+j.sig.From())
		return domain.StateIdle
	}
	opts := append(n.propagated(j.sig), domain.WithHop(j.sig.Hop()+1))
	for _, peer := range peers {
		out, err := domain.NewBackward(n.def.Endpoint(), peer.Endpoint(), j.sig.BatchID(), next, opts...)
		if err != nil {
			n.logger.Error("Could not build backward signal", "to", peer.ID, "err", err)
			continue
		}
		j.outbox = append(j.outbox, out)
	}
	return domain.StateIdle
}

// observe hands the gradient to the learning engine. Learning failures never
// propagate; a learned pattern joins the adjustment state.
func (n *neuron) observe(ctx context.Context, batchID string, g domain.Gradient) {
	if n.learner == nil {
		return
	}
	mctx, cancel := withTimeout(ctx, n.cfg.MemoryTimeout)
	defer cancel()
	lesson, err := n.learner.Observe(mctx, n.def.ID, batchID, g)
	if err != nil {
		n.logger.Warn("Learning skipped", "batch_id", batchID, "err", err)
		return
	}
	if lesson.Learned {
		n.addAdjustment(lesson.Adjustment)
	}
}

func (n *neuron) terminalFailure(batchID string, g domain.Gradient, cause string) {
	if !n.tracker.failure(batchID, domain.TerminalError{
		Classification: g.ErrorType,
		NeuronID:       n.def.ID,
		Layer:          n.def.Layer,
		Magnitude:      g.Magnitude,
		Adjustments:    slices.Clone(g.Adjustments),
		Cause:          cause,
	}) {
		n.logger.Info("Error chain terminated", "batch_id", batchID, "classification", g.ErrorType)
	}
}

// flush routes the outbox. Congested routes are retried with backoff; a
// forward signal that still cannot be delivered turns into a backward error.
func (n *neuron) flush(ctx context.Context, j *job) {
	for _, out := range j.outbox {
		err := n.route(ctx, out)
		if err == nil {
			continue
		}
		n.logger.Warn("Route failed", "to", out.To(), "direction", out.Direction(), "err", err)
		if out.Direction() == domain.Backward {
			g, _ := out.Gradient()
			n.terminalFailure(out.BatchID(), g, err.Error())
			continue
		}
		failed := &job{sig: j.sig, err: err}
		n.fail(ctx, failed)
		for _, back := range failed.outbox {
			if err := n.route(ctx, back); err != nil {
				g, _ := back.Gradient()
				n.terminalFailure(back.BatchID(), g, err.Error())
			}
		}
	}
}

func (n *neuron) route(ctx context.Context, sig *domain.Signal) error {
	delay := n.cfg.RouteBackoff
	for attempt := 0; ; attempt++ {
		err := n.router.Route(ctx, sig)
		if err == nil {
			n.sent.Add(1)
			return nil
		}
		if !errors.Is(err, domain.ErrRouteCongested) || attempt >= n.cfg.RouteRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (n *neuron) propagated(sig *domain.Signal) []domain.SignalOption {
	var opts []domain.SignalOption
	if deadline, ok := sig.Deadline(); ok {
		opts = append(opts, domain.WithDeadline(deadline))
	}
	if sig.Direction() == domain.Backward {
		opts = append(opts, domain.WithHop(sig.Hop()))
	}
	return opts
}

func (n *neuron) remember(ctx context.Context, e domain.MemoryEntry) {
	e.NeuronID = n.def.ID
	mctx, cancel := withTimeout(ctx, n.cfg.MemoryTimeout)
	defer cancel()
	if _, err := n.store.Append(mctx, e); err != nil {
		n.logger.Warn("Memory write failed", "kind", e.Kind, "err", err)
	}
}

func (n *neuron) emit(ctx context.Context, hook func(context.Context, *domain.SignalEvent), sig *domain.Signal, cls domain.Classification) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.SignalEvent{
		Timestamp:      time.Now(),
		NeuronID:       n.def.ID,
		Layer:          n.def.Layer,
		Direction:      sig.Direction(),
		SignalID:       sig.ID(),
		BatchID:        sig.BatchID(),
		Classification: cls,
	})
}

func (n *neuron) addAdjustment(a string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if a == "" || slices.Contains(n.adjustments, a) {
		return
	}
	n.adjustments = append(n.adjustments, a)
	if over := len(n.adjustments) - n.cfg.MaxAdjustments; over > 0 {
		n.adjustments = slices.Delete(n.adjustments, 0, over)
	}
}

// Adjustments returns a copy of the live adjustment state.
func (n *neuron) Adjustments() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.adjustments)
}

func (n *neuron) Health() domain.NeuronHealth {
	h := domain.NeuronHealth{
		ID:               n.def.ID,
		Layer:            n.def.Layer,
		State:            n.State(),
		SignalsProcessed: n.processed.Load(),
		SignalsFailed:    n.failed.Load(),
		SignalsSent:      n.sent.Load(),
		Adjustments:      n.Adjustments(),
	}
	if started := n.startedAt.Load(); started > 0 {
		h.StartedAt = time.Unix(0, started)
	}
	if last := n.last.Load(); last > 0 {
		h.LastSignal = time.Unix(0, last)
	}
	return h
}

func mergeAdjustments(existing []string, more ...string) []string {
	out := slices.Clone(existing)
	for _, a := range more {
		if a != "" && !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
