package strata_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
)

const chainYAML = `neurons:
  - id: planner
    layer: L4
    forward_connections: [designer]
  - id: designer
    layer: L3
    forward_connections: [coder]
    backward_connections: [planner]
  - id: coder
    layer: L2
    backward_connections: [designer]
`

func writeTopology(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNew_FromFile(t *testing.T) {
	eng, err := strata.New(writeTopology(t, chainYAML))
	require.NoError(t, err)

	assert.Equal(t, backend.ModeMock, eng.Mode())
	assert.Equal(t, 3, eng.Topology().Len())
	assert.Len(t, eng.Declarations(), 3)
}

func TestNew_RejectsLayerSkip(t *testing.T) {
	path := writeTopology(t, `neurons:
  - id: planner
    layer: L4
    forward_connections: [coder]
  - id: coder
    layer: L2
    backward_connections: [planner]
`)
	_, err := strata.New(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := strata.New("")
	assert.Error(t, err)
}

func TestEngine_SubmitEndToEnd(t *testing.T) {
	eng, err := strata.New("inline",
		strata.WithLoader(memory.NewLoader(
			domain.NeuronDeclaration{ID: "planner", Layer: "L4", ForwardConnections: []string{"designer"}},
			domain.NeuronDeclaration{ID: "designer", Layer: "L3", ForwardConnections: []string{"coder"}, BackwardConnections: []string{"planner"}},
			domain.NeuronDeclaration{ID: "coder", Layer: "L2", BackwardConnections: []string{"designer"}},
		)),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = eng.Submit(ctx, "too early")
	assert.ErrorIs(t, err, domain.ErrEngineStopped)

	require.NoError(t, eng.Start(ctx))
	defer eng.Stop()

	out, err := eng.Submit(ctx, "Build X")
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "coder", out.Results[0].NeuronID)
	assert.Equal(t, []domain.Layer{domain.L4, domain.L3, domain.L2}, out.LayersActivated)

	entries, err := eng.QueryMemory(ctx, "coder", []domain.EntryKind{domain.KindResult}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "Implementation complete")

	assert.Zero(t, eng.Costs().Hour.Cost, "mock generations are free")

	removed, err := eng.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
