package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/topology"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent map[string][]*domain.Signal
}

func (r *recordingTransport) Send(_ context.Context, remote string, sig *domain.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = make(map[string][]*domain.Signal)
	}
	r.sent[remote] = append(r.sent[remote], sig)
	return nil
}

func chain(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.NewBuilder().Chain([]string{"planner", "designer", "coder"}, domain.L4).Build()
	require.NoError(t, err)
	return topo
}

func testRouter(topo *topology.Topology, capacity int) *Router {
	return newRouter(topo, capacity, nil, newTracker(), domain.Hooks{}, logging.NewNop())
}

func endpoint(t *testing.T, topo *topology.Topology, id string) domain.Endpoint {
	t.Helper()
	n, ok := topo.Lookup(id)
	require.True(t, ok)
	return n.Endpoint()
}

func forward(t *testing.T, from, to domain.Endpoint, content string) *domain.Signal {
	t.Helper()
	sig, err := domain.NewForward(from, to, "batch", domain.Activation{Content: content, Strength: 1})
	require.NoError(t, err)
	return sig
}

func TestRouter_RejectsNonPeers(t *testing.T) {
	topo := chain(t)
	r := testRouter(topo, 10)
	ctx := context.Background()
	planner, designer, coder := endpoint(t, topo, "planner"), endpoint(t, topo, "designer"), endpoint(t, topo, "coder")

	t.Run("skipping a layer", func(t *testing.T) {
		err := r.Route(ctx, forward(t, planner, coder, "x"))
		assert.ErrorIs(t, err, domain.ErrInvalidRoute)
	})

	t.Run("wrong direction", func(t *testing.T) {
		sig, err := domain.NewBackward(planner, designer, "batch", domain.Gradient{ErrorType: domain.ClassUnknown, Magnitude: 0.5, Loss: 0.5})
		require.NoError(t, err)
		assert.ErrorIs(t, r.Route(ctx, sig), domain.ErrInvalidRoute)
	})

	t.Run("unknown sender", func(t *testing.T) {
		err := r.Route(ctx, forward(t, domain.Endpoint{ID: "ghost", Layer: domain.L4}, designer, "x"))
		assert.ErrorIs(t, err, domain.ErrInvalidRoute)
	})

	t.Run("layer mismatch", func(t *testing.T) {
		err := r.Route(ctx, forward(t, domain.Endpoint{ID: "planner", Layer: domain.L5}, designer, "x"))
		assert.ErrorIs(t, err, domain.ErrInvalidRoute)
	})

	t.Run("peer accepted", func(t *testing.T) {
		require.NoError(t, r.Route(ctx, forward(t, planner, designer, "x")))
		assert.Len(t, r.inboxes["designer"], 1)
	})
}

func TestRouter_FIFOPerChannel(t *testing.T) {
	topo := chain(t)
	r := testRouter(topo, 10)
	planner, designer := endpoint(t, topo, "planner"), endpoint(t, topo, "designer")

	for _, c := range []string{"first", "second", "third"} {
		require.NoError(t, r.Route(context.Background(), forward(t, planner, designer, c)))
	}

	var got []string
	for range 3 {
		act, _ := (<-r.inbox("designer")).Activation()
		got = append(got, act.Content)
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestRouter_Congested(t *testing.T) {
	topo := chain(t)
	r := testRouter(topo, 1)
	planner, designer := endpoint(t, topo, "planner"), endpoint(t, topo, "designer")

	require.NoError(t, r.Route(context.Background(), forward(t, planner, designer, "a")))
	err := r.Route(context.Background(), forward(t, planner, designer, "b"))
	assert.ErrorIs(t, err, domain.ErrRouteCongested)
}

func TestRouter_Remote(t *testing.T) {
	topo, err := topology.NewBuilder().
		Neuron("planner", domain.L4).Forward("designer").
		Neuron("designer", domain.L3).Backward("planner").Remote("worker-1").
		Build()
	require.NoError(t, err)
	planner, designer := endpoint(t, topo, "planner"), endpoint(t, topo, "designer")

	t.Run("no transport", func(t *testing.T) {
		r := testRouter(topo, 10)
		err := r.Route(context.Background(), forward(t, planner, designer, "x"))
		assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
	})

	t.Run("transport", func(t *testing.T) {
		tr := &recordingTransport{}
		r := newRouter(topo, 10, tr, newTracker(), domain.Hooks{}, logging.NewNop())
		require.NoError(t, r.Route(context.Background(), forward(t, planner, designer, "x")))
		assert.Len(t, tr.sent["worker-1"], 1)
	})

	t.Run("deliver refuses neurons hosted elsewhere", func(t *testing.T) {
		r := testRouter(topo, 10)
		err := r.Deliver(context.Background(), forward(t, planner, designer, "x"))
		assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
	})
}

func TestRouter_Inject(t *testing.T) {
	topo := chain(t)
	r := testRouter(topo, 10)
	ctx := context.Background()

	require.NoError(t, r.Inject(ctx, forward(t, domain.Endpoint{}, endpoint(t, topo, "planner"), "x")))

	err := r.Inject(ctx, forward(t, domain.Endpoint{}, endpoint(t, topo, "designer"), "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)

	err = r.Inject(ctx, forward(t, endpoint(t, topo, "planner"), endpoint(t, topo, "designer"), "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)
}

func TestRouter_SentHook(t *testing.T) {
	topo := chain(t)
	var events []*domain.SignalEvent
	r := newRouter(topo, 10, nil, newTracker(), domain.Hooks{
		OnSignalSent: func(_ context.Context, e *domain.SignalEvent) { events = append(events, e) },
	}, logging.NewNop())

	require.NoError(t, r.Route(context.Background(), forward(t, endpoint(t, topo, "planner"), endpoint(t, topo, "designer"), "x")))
	require.Len(t, events, 1)
	assert.Equal(t, "planner", events[0].NeuronID)
	assert.Equal(t, domain.Forward, events[0].Direction)
}
