package topology_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeLayer() []domain.NeuronDeclaration {
	return []domain.NeuronDeclaration{
		{ID: "planner", Layer: "L4", ForwardConnections: []string{"designer"}},
		{ID: "designer", Layer: "L3", ForwardConnections: []string{"coder"}, BackwardConnections: []string{"planner"}},
		{ID: "coder", Layer: "L2", BackwardConnections: []string{"designer"}},
	}
}

func TestLoad_ValidChain(t *testing.T) {
	topo, err := topology.Load(threeLayer())
	require.NoError(t, err)

	assert.Equal(t, 3, topo.Len())
	designer, ok := topo.Lookup("designer")
	require.True(t, ok)
	assert.Equal(t, domain.L3, designer.Layer)
	assert.True(t, designer.Local())

	require.Len(t, topo.Forward("planner"), 1)
	assert.Equal(t, "designer", topo.Forward("planner")[0].ID)
	assert.True(t, topo.IsPeer("designer", "planner", domain.Backward))
	assert.False(t, topo.IsPeer("designer", "planner", domain.Forward))
	assert.False(t, topo.IsPeer("planner", "coder", domain.Forward))

	entries := topo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "planner", entries[0].ID)
	assert.Equal(t, threeLayer(), topo.Declarations())
}

func TestLoad_RejectsAdjacencyViolations(t *testing.T) {
	tests := []struct {
		name   string
		decls  []domain.NeuronDeclaration
		reason string
	}{
		{
			name: "forward skips a layer",
			decls: []domain.NeuronDeclaration{
				{ID: "planner", Layer: "L4", ForwardConnections: []string{"coder"}},
				{ID: "coder", Layer: "L2"},
			},
			reason: "±1 rule",
		},
		{
			name: "forward points upward",
			decls: []domain.NeuronDeclaration{
				{ID: "a", Layer: "L3", ForwardConnections: []string{"b"}},
				{ID: "b", Layer: "L4"},
			},
			reason: "want L2",
		},
		{
			name: "backward points downward",
			decls: []domain.NeuronDeclaration{
				{ID: "a", Layer: "L3", BackwardConnections: []string{"b"}},
				{ID: "b", Layer: "L2"},
			},
			reason: "want L4",
		},
		{
			name: "forward not mirrored",
			decls: []domain.NeuronDeclaration{
				{ID: "planner", Layer: "L4", ForwardConnections: []string{"designer"}},
				{ID: "designer", Layer: "L3"},
			},
			reason: `"designer" does not list "planner" as a backward peer`,
		},
		{
			name: "backward not mirrored",
			decls: []domain.NeuronDeclaration{
				{ID: "planner", Layer: "L4"},
				{ID: "designer", Layer: "L3", BackwardConnections: []string{"planner"}},
			},
			reason: `"planner" does not list "designer" as a forward peer`,
		},
		{
			name: "unknown peer",
			decls: []domain.NeuronDeclaration{
				{ID: "a", Layer: "L3", ForwardConnections: []string{"ghost"}},
			},
			reason: "unknown neuron",
		},
		{
			name: "duplicate id",
			decls: []domain.NeuronDeclaration{
				{ID: "a", Layer: "L3"},
				{ID: "a", Layer: "L2"},
			},
			reason: "duplicate neuron id",
		},
		{
			name: "bad layer",
			decls: []domain.NeuronDeclaration{
				{ID: "a", Layer: "L12"},
			},
			reason: "out of range",
		},
		{
			name:   "empty",
			decls:  nil,
			reason: "no neurons",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := topology.Load(tt.decls)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	err := topology.Validate([]domain.NeuronDeclaration{
		{ID: "a", Layer: "L4", ForwardConnections: []string{"c", "c"}},
		{ID: "b", Layer: "L4", ForwardConnections: []string{"b"}},
		{ID: "c", Layer: "L2"},
	})
	require.Error(t, err)
	assert.Len(t, topology.Violations(err), 3)
}

func TestValidate_MirrorReportedOnce(t *testing.T) {
	err := topology.Validate([]domain.NeuronDeclaration{
		{ID: "planner", Layer: "L4", ForwardConnections: []string{"api", "ui"}},
		{ID: "api", Layer: "L3", BackwardConnections: []string{"planner"}},
		{ID: "ui", Layer: "L3"},
	})
	require.Error(t, err)
	violations := topology.Violations(err)
	require.Len(t, violations, 1)
	assert.Equal(t, "planner", violations[0].NeuronID)
	assert.Contains(t, violations[0].Reason, `"ui"`)
}

func TestLoad_DecodesSettings(t *testing.T) {
	decls := threeLayer()
	decls[1].Settings = map[string]any{"temperature": "0.2", "max_tokens": 512, "system_prompt": "Design carefully."}
	topo, err := topology.Load(decls)
	require.NoError(t, err)

	n, _ := topo.Lookup("designer")
	assert.Equal(t, 0.2, n.Settings.Temperature)
	assert.Equal(t, 512, n.Settings.MaxTokens)
	assert.Equal(t, "Design carefully.", n.Settings.SystemPrompt)

	decls[1].Settings = map[string]any{"temprature": 0.2}
	_, err = topology.Load(decls)
	assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "topology.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
neurons:
  - id: planner
    layer: L4
    forward_connections: [designer]
  - id: designer
    layer: L3
    backward_connections: [planner]
    remote: "worker-2"
`), 0o644))

	topo, err := topology.LoadFile(yamlPath)
	require.NoError(t, err)
	designer, _ := topo.Lookup("designer")
	assert.False(t, designer.Local())
	assert.Equal(t, "worker-2", designer.Remote)

	jsonPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"neurons": [
		{"id": "planner", "layer": "L4", "forward_connections": ["coder"]},
		{"id": "coder", "layer": "L2"}
	]}`), 0o644))
	_, err = topology.LoadFile(jsonPath)
	assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)

	_, err = topology.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
