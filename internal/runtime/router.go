package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/topology"
)

// Router delivers signals between neurons. It is the only path a signal can take,
// and it rejects any hop that is not a declared peer connection.
type Router struct {
	topo      *topology.Topology
	inboxes   map[string]chan *domain.Signal
	transport ports.Transport
	tracker   *tracker
	hooks     domain.Hooks
	logger    *slog.Logger
}

func newRouter(topo *topology.Topology, capacity int, transport ports.Transport, tr *tracker, hooks domain.Hooks, logger *slog.Logger) *Router {
	r := &Router{
		topo:      topo,
		inboxes:   make(map[string]chan *domain.Signal),
		transport: transport,
		tracker:   tr,
		hooks:     hooks,
		logger:    logger,
	}
	for _, n := range topo.Neurons() {
		if n.Local() {
			r.inboxes[n.ID] = make(chan *domain.Signal, capacity)
		}
	}
	return r
}

func (r *Router) inbox(id string) <-chan *domain.Signal {
	return r.inboxes[id]
}

// Route validates and delivers a neuron-to-neuron signal.
//
// It returns domain.ErrInvalidRoute when the destination is not a peer of the
// sender in the signal's direction, domain.ErrRouteCongested when a local inbox
// is full and domain.ErrRouteUnavailable when a remote neuron cannot be reached.
func (r *Router) Route(ctx context.Context, sig *domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRoute, err)
	}
	from, ok := r.topo.Lookup(sig.From())
	if !ok {
		return fmt.Errorf("%w: unknown sender %q", domain.ErrInvalidRoute, sig.From())
	}
	if from.Layer != sig.LayerFrom() {
		return fmt.Errorf("%w: sender %s is %s, signal claims %s", domain.ErrInvalidRoute, from.ID, from.Layer, sig.LayerFrom())
	}
	if !r.topo.IsPeer(sig.From(), sig.To(), sig.Direction()) {
		return fmt.Errorf("%w: %s is not a %s peer of %s", domain.ErrInvalidRoute, sig.To(), sig.Direction(), sig.From())
	}
	return r.deliver(ctx, sig)
}

// Inject delivers an externally submitted signal. The destination must be a
// local neuron with no backward peers.
func (r *Router) Inject(ctx context.Context, sig *domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRoute, err)
	}
	if !sig.External() {
		return fmt.Errorf("%w: injected signal has a sender", domain.ErrInvalidRoute)
	}
	n, ok := r.topo.Lookup(sig.To())
	if !ok {
		return fmt.Errorf("%w: unknown neuron %q", domain.ErrInvalidRoute, sig.To())
	}
	if len(r.topo.Backward(n.ID)) > 0 {
		return fmt.Errorf("%w: %s is not an entry neuron", domain.ErrInvalidRoute, n.ID)
	}
	if !n.Local() {
		return fmt.Errorf("%w: entry neuron %s is remote", domain.ErrRouteUnavailable, n.ID)
	}
	return r.deliver(ctx, sig)
}

// Deliver accepts a signal received from a remote transport. The sender is
// validated against the local topology like any other hop.
func (r *Router) Deliver(ctx context.Context, sig *domain.Signal) error {
	n, ok := r.topo.Lookup(sig.To())
	if !ok || !n.Local() {
		return fmt.Errorf("%w: %s is not hosted here", domain.ErrRouteUnavailable, sig.To())
	}
	return r.Route(ctx, sig)
}

func (r *Router) deliver(ctx context.Context, sig *domain.Signal) error {
	to, ok := r.topo.Lookup(sig.To())
	if !ok {
		return fmt.Errorf("%w: unknown neuron %q", domain.ErrInvalidRoute, sig.To())
	}
	if to.Layer != sig.LayerTo() {
		return fmt.Errorf("%w: destination %s is %s, signal claims %s", domain.ErrInvalidRoute, to.ID, to.Layer, sig.LayerTo())
	}

	if !to.Local() {
		if r.transport == nil {
			return fmt.Errorf("%w: no transport for remote neuron %s", domain.ErrRouteUnavailable, to.ID)
		}
		if err := r.transport.Send(ctx, to.Remote, sig); err != nil {
			return err
		}
		r.sent(ctx, sig)
		return nil
	}

	r.tracker.add(sig.BatchID())
	select {
	case r.inboxes[to.ID] <- sig:
	default:
		r.tracker.retract(sig.BatchID())
		return fmt.Errorf("%w: inbox of %s is full", domain.ErrRouteCongested, to.ID)
	}
	r.sent(ctx, sig)
	return nil
}

func (r *Router) sent(ctx context.Context, sig *domain.Signal) {
	r.logger.Debug("Signal routed", "signal", sig.String())
	if r.hooks.OnSignalSent != nil {
		r.hooks.OnSignalSent(ctx, &domain.SignalEvent{
			Timestamp: time.Now(),
			NeuronID:  sig.From(),
			Layer:     sig.LayerFrom(),
			Direction: sig.Direction(),
			SignalID:  sig.ID(),
			BatchID:   sig.BatchID(),
		})
	}
}
