package topology

import (
	"maps"

	"github.com/aretw0/strata/pkg/domain"
)

// Builder constructs topologies programmatically.
type Builder struct {
	order   []string
	neurons map[string]*NeuronBuilder
}

// NewBuilder creates a new topology builder.
func NewBuilder() *Builder {
	return &Builder{
		neurons: make(map[string]*NeuronBuilder),
	}
}

// Neuron adds a neuron to the topology.
// If the neuron already exists, it returns the existing builder.
func (b *Builder) Neuron(id string, layer domain.Layer) *NeuronBuilder {
	if nb, ok := b.neurons[id]; ok {
		return nb
	}
	nb := &NeuronBuilder{
		decl:    domain.NeuronDeclaration{ID: id, Layer: layer.String()},
		builder: b,
	}
	b.neurons[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Chain declares a linear hierarchy where each neuron forwards to the next
// and lists the previous one as its backward peer. Layers must descend by one.
func (b *Builder) Chain(ids []string, top domain.Layer) *Builder {
	for i, id := range ids {
		nb := b.Neuron(id, top-domain.Layer(i))
		if i > 0 {
			nb.Backward(ids[i-1])
		}
		if i < len(ids)-1 {
			nb.Forward(ids[i+1])
		}
	}
	return b
}

// Declarations returns the declarations in insertion order.
func (b *Builder) Declarations() []domain.NeuronDeclaration {
	out := make([]domain.NeuronDeclaration, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.neurons[id].decl)
	}
	return out
}

// Build validates and compiles the topology.
func (b *Builder) Build() (*Topology, error) {
	return Load(b.Declarations())
}

// NeuronBuilder provides a fluent API for configuring a neuron.
type NeuronBuilder struct {
	decl    domain.NeuronDeclaration
	builder *Builder
}

// Forward appends forward peers.
func (n *NeuronBuilder) Forward(ids ...string) *NeuronBuilder {
	n.decl.ForwardConnections = append(n.decl.ForwardConnections, ids...)
	return n
}

// Backward appends backward peers.
func (n *NeuronBuilder) Backward(ids ...string) *NeuronBuilder {
	n.decl.BackwardConnections = append(n.decl.BackwardConnections, ids...)
	return n
}

// Remote marks the neuron as hosted elsewhere, reachable through the given transport handle.
func (n *NeuronBuilder) Remote(handle string) *NeuronBuilder {
	n.decl.Remote = handle
	return n
}

// Set stores a raw setting (decoded into Settings at build time).
func (n *NeuronBuilder) Set(key string, value any) *NeuronBuilder {
	if n.decl.Settings == nil {
		n.decl.Settings = make(map[string]any)
	}
	n.decl.Settings[key] = value
	return n
}

// SystemPrompt overrides the layer system prompt for this neuron.
func (n *NeuronBuilder) SystemPrompt(prompt string) *NeuronBuilder {
	return n.Set("system_prompt", prompt)
}

// Neuron starts or continues another neuron, allowing long fluent chains.
func (n *NeuronBuilder) Neuron(id string, layer domain.Layer) *NeuronBuilder {
	return n.builder.Neuron(id, layer)
}

// Build validates and compiles the whole topology.
func (n *NeuronBuilder) Build() (*Topology, error) {
	return n.builder.Build()
}

// Declaration returns a copy of the declaration under construction.
func (n *NeuronBuilder) Declaration() domain.NeuronDeclaration {
	d := n.decl
	d.Settings = maps.Clone(n.decl.Settings)
	return d
}
