package loam_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	loamAdapter "github.com/aretw0/strata/pkg/adapters/loam"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func newLoader(t *testing.T, dir string) *loamAdapter.Loader {
	t.Helper()
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	require.NoError(t, err)
	return loamAdapter.New(loam.NewTypedRepository[loamAdapter.NeuronMetadata](repo))
}

func TestLoader_Declarations(t *testing.T) {
	dir := seed(t, map[string]string{
		"strategy.md": `---
id: strategy
layer: L4
forward_connections: [design]
---
Break objectives into strategic directives.`,
		"design.md": `---
layer: L3
forward_connections: [impl]
backward_connections: [strategy]
settings:
  temperature: 0.3
---`,
		"impl.md": `---
id: impl.md
layer: L2
backward_connections: [design]
---`,
	})
	loader := newLoader(t, dir)

	decls, err := loader.Declarations(context.Background())
	require.NoError(t, err)
	require.Len(t, decls, 3)

	assert.Equal(t, "design", decls[0].ID, "id is implied from the filename")
	assert.Equal(t, "impl", decls[1].ID, "extensions are stripped from explicit ids")
	assert.Equal(t, "strategy", decls[2].ID)

	assert.Equal(t, "L4", decls[2].Layer)
	assert.Equal(t, []string{"design"}, decls[2].ForwardConnections)
	assert.Equal(t, "Break objectives into strategic directives.", decls[2].Settings["system_prompt"])
	assert.Contains(t, decls[0].Settings, "temperature")

	topo, err := topology.LoadFrom(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, 3, topo.Len())

	n, ok := topo.Lookup("design")
	require.True(t, ok)
	assert.Equal(t, domain.L3, n.Layer)
	assert.InDelta(t, 0.3, n.Settings.Temperature, 1e-9)
}

func TestLoader_Collision(t *testing.T) {
	dir := seed(t, map[string]string{
		"a.md": `---
id: shared
layer: L2
---`,
		"b.md": `---
id: shared
layer: L2
---`,
	})

	_, err := newLoader(t, dir).Declarations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collision detected")
}

func TestLoader_InvalidTopologyRejected(t *testing.T) {
	dir := seed(t, map[string]string{
		"strategy.md": `---
layer: L4
forward_connections: [impl]
---`,
		"impl.md": `---
layer: L2
backward_connections: [strategy]
---`,
	})

	_, err := topology.LoadFrom(context.Background(), newLoader(t, dir))
	assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)
}

func TestOpen(t *testing.T) {
	dir := seed(t, map[string]string{
		"solo.md": `---
layer: L2
---`,
	})

	loader, err := loamAdapter.Open(dir)
	require.NoError(t, err)

	decls, err := loader.Declarations(context.Background())
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "solo", decls[0].ID)
}
