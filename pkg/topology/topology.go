package topology

import (
	"context"
	"slices"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Neuron is one record of the topology arena.
// Peers are stored as indexes into the arena, in declaration order.
type Neuron struct {
	ID       string
	Layer    domain.Layer
	Remote   string
	Settings Settings
	forward  []int
	backward []int
}

// Local reports whether the neuron runs in this process.
func (n *Neuron) Local() bool { return n.Remote == "" }

// Endpoint returns the signal endpoint of the neuron.
func (n *Neuron) Endpoint() domain.Endpoint {
	return domain.Endpoint{ID: n.ID, Layer: n.Layer}
}

// Topology is a validated, immutable neuron hierarchy.
type Topology struct {
	neurons []Neuron
	index   map[string]int
}

// Load validates the declarations and builds the arena.
// It fails with an error matching domain.ErrInvalidPeerTopology on any rule violation.
func Load(decls []domain.NeuronDeclaration) (*Topology, error) {
	if err := Validate(decls); err != nil {
		return nil, err
	}

	t := &Topology{
		neurons: make([]Neuron, len(decls)),
		index:   make(map[string]int, len(decls)),
	}
	var violations []Violation
	for i, d := range decls {
		layer, _ := domain.ParseLayer(d.Layer)
		settings, err := DecodeSettings(d.Settings)
		if err != nil {
			violations = append(violations, Violation{NeuronID: d.ID, Reason: err.Error()})
		}
		t.neurons[i] = Neuron{ID: d.ID, Layer: layer, Remote: d.Remote, Settings: settings}
		t.index[d.ID] = i
	}
	if len(violations) > 0 {
		return nil, &Error{Violations: violations}
	}

	for i, d := range decls {
		for _, p := range d.ForwardConnections {
			t.neurons[i].forward = append(t.neurons[i].forward, t.index[p])
		}
		for _, p := range d.BackwardConnections {
			t.neurons[i].backward = append(t.neurons[i].backward, t.index[p])
		}
	}
	return t, nil
}

// LoadFrom reads declarations from a loader and builds the topology.
func LoadFrom(ctx context.Context, loader ports.TopologyLoader) (*Topology, error) {
	decls, err := loader.Declarations(ctx)
	if err != nil {
		return nil, err
	}
	return Load(decls)
}

// Len returns the number of neurons.
func (t *Topology) Len() int { return len(t.neurons) }

// Lookup returns the neuron with the given id.
func (t *Topology) Lookup(id string) (*Neuron, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.neurons[i], true
}

// Neurons returns every neuron in declaration order.
func (t *Topology) Neurons() []*Neuron {
	out := make([]*Neuron, len(t.neurons))
	for i := range t.neurons {
		out[i] = &t.neurons[i]
	}
	return out
}

// Forward returns the forward peers of id, in declaration order.
func (t *Topology) Forward(id string) []*Neuron {
	n, ok := t.Lookup(id)
	if !ok {
		return nil
	}
	return t.resolve(n.forward)
}

// Backward returns the backward peers of id, in declaration order.
func (t *Topology) Backward(id string) []*Neuron {
	n, ok := t.Lookup(id)
	if !ok {
		return nil
	}
	return t.resolve(n.backward)
}

func (t *Topology) resolve(idx []int) []*Neuron {
	out := make([]*Neuron, len(idx))
	for i, j := range idx {
		out[i] = &t.neurons[j]
	}
	return out
}

// IsPeer reports whether to is registered as a peer of from in the given direction.
func (t *Topology) IsPeer(from, to string, dir domain.Direction) bool {
	n, ok := t.Lookup(from)
	if !ok {
		return false
	}
	j, ok := t.index[to]
	if !ok {
		return false
	}
	switch dir {
	case domain.Forward:
		return slices.Contains(n.forward, j)
	case domain.Backward:
		return slices.Contains(n.backward, j)
	}
	return false
}

// Entries returns the neurons that accept external input: those with no backward peer.
// Highest layers come first.
func (t *Topology) Entries() []*Neuron {
	var out []*Neuron
	for i := range t.neurons {
		if len(t.neurons[i].backward) == 0 {
			out = append(out, &t.neurons[i])
		}
	}
	slices.SortStableFunc(out, func(a, b *Neuron) int { return int(b.Layer) - int(a.Layer) })
	return out
}

// Declarations reconstructs the declarations of the topology.
func (t *Topology) Declarations() []domain.NeuronDeclaration {
	out := make([]domain.NeuronDeclaration, len(t.neurons))
	for i, n := range t.neurons {
		d := domain.NeuronDeclaration{ID: n.ID, Layer: n.Layer.String(), Remote: n.Remote}
		for _, j := range n.forward {
			d.ForwardConnections = append(d.ForwardConnections, t.neurons[j].ID)
		}
		for _, j := range n.backward {
			d.BackwardConnections = append(d.BackwardConnections, t.neurons[j].ID)
		}
		out[i] = d
	}
	return out
}
