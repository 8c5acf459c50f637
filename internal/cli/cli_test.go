package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/internal/config"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
)

const inlineConfig = `
log_level: warn
backend:
  mode: mock
topology:
  neurons:
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

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTopologySource(t *testing.T) {
	t.Run("Override wins", func(t *testing.T) {
		cfg := config.Default()
		cfg.Topology.File = "ignored.yaml"
		source, opts, err := topologySource(cfg, "net.yaml")
		require.NoError(t, err)
		assert.Equal(t, "net.yaml", source)
		assert.Empty(t, opts)
	})

	t.Run("Inline neurons use a loader", func(t *testing.T) {
		cfg := config.Default()
		cfg.LoadedFrom = "/etc/strata/strata.yaml"
		cfg.Topology.Neurons = []domain.NeuronDeclaration{{ID: "solo", Layer: "L2"}}
		source, opts, err := topologySource(cfg, "")
		require.NoError(t, err)
		assert.Equal(t, "strata.yaml", source)
		assert.Len(t, opts, 1)
	})

	t.Run("File then Loam", func(t *testing.T) {
		cfg := config.Default()
		cfg.Topology.Loam = "neurons"
		source, _, err := topologySource(cfg, "")
		require.NoError(t, err)
		assert.Equal(t, "neurons", source)

		cfg.Topology.File = "net.yaml"
		source, _, err = topologySource(cfg, "")
		require.NoError(t, err)
		assert.Equal(t, "net.yaml", source)
	})

	t.Run("Nothing configured", func(t *testing.T) {
		_, _, err := topologySource(config.Default(), "")
		assert.ErrorContains(t, err, "no topology configured")
	})
}

func TestBuildEngine_RedisMemory(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := config.Parse([]byte(inlineConfig))
	require.NoError(t, err)
	cfg.Memory.Driver = config.DriverRedis
	cfg.Memory.Redis.Addr = mr.Addr()

	st, err := BuildEngine(cfg, "", logging.NewNop(), false)
	require.NoError(t, err)
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, st.Start(ctx))
	defer st.Engine.Stop()

	out, err := st.Engine.Submit(ctx, "build a login form")
	require.NoError(t, err)
	assert.Equal(t, []domain.Layer{domain.L4, domain.L3, domain.L2}, out.LayersActivated)

	entries, err := st.Engine.QueryMemory(ctx, "coder", nil, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.NotEmpty(t, mr.Keys())
}

func TestBuildEngine_Debug(t *testing.T) {
	cfg, err := config.Parse([]byte(inlineConfig))
	require.NoError(t, err)
	st, err := BuildEngine(cfg, "", logging.NewNop(), true)
	require.NoError(t, err)
	assert.Nil(t, st.redis)
	assert.NoError(t, st.Close())
	assert.Equal(t, backend.ModeMock, st.Engine.Mode())
}

func TestExecute_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	err := Execute(context.Background(), RunOptions{
		ConfigPath: path,
		Content:    "build a login form",
		Timeout:    10 * time.Second,
		JSON:       true,
	}, &stdout)
	require.NoError(t, err)

	var report RunReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "mock", report.Mode)
	require.Len(t, report.Outcome.Results, 1)
	assert.Equal(t, "coder", report.Outcome.Results[0].NeuronID)
	assert.Empty(t, report.Error)
	assert.Zero(t, report.Costs.TotalCalls)
}

func TestExecute_Markdown(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	err := Execute(context.Background(), RunOptions{
		ConfigPath: path,
		Content:    "build a login form",
		NeuronID:   "planner",
		Timeout:    10 * time.Second,
	}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "## coder (L2)")
	assert.Contains(t, stdout.String(), ">>> backend mock, 0 paid calls")
}

func TestExecute_Errors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	err := Execute(context.Background(), RunOptions{ConfigPath: path}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "content is required")

	err = Execute(context.Background(), RunOptions{ConfigPath: path, Content: "x", Mode: "psychic"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "backend.mode must be one of")

	err = Execute(context.Background(), RunOptions{ConfigPath: path, Content: "x", NeuronID: "coder"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	require.NoError(t, Validate(path, "", &stdout))
	assert.Contains(t, stdout.String(), "3 neurons")
	assert.Contains(t, stdout.String(), "L4   planner")
	assert.Contains(t, stdout.String(), "-> designer")

	bad := writeFile(t, t.TempDir(), "bad.yaml", `neurons:
  - id: planner
    layer: L4
    forward_connections: [coder]
  - id: coder
    layer: L2
    backward_connections: [planner]
`)
	err := Validate("", bad, &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrInvalidPeerTopology)
}

func TestPrune(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	require.NoError(t, Prune(context.Background(), path, "", false, &stdout))
	assert.Contains(t, stdout.String(), ">>> pruned 0 memory entries")
}

func TestBuildEngine_EncryptedMemory(t *testing.T) {
	cfg, err := config.Parse([]byte(inlineConfig))
	require.NoError(t, err)
	cfg.Memory.Redact = []string{"default"}
	cfg.Memory.Encryption.Key = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))

	st, err := BuildEngine(cfg, "", logging.NewNop(), false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, st.Start(ctx))
	defer st.Engine.Stop()

	_, err = st.Engine.Submit(ctx, "invite ana@example.com")
	require.NoError(t, err)

	entries, err := st.Engine.QueryMemory(ctx, "planner", []domain.EntryKind{domain.KindTask}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "invite ***", entries[0].Content)
}

func TestGraph(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	require.NoError(t, Graph(path, "", &stdout))
	assert.Contains(t, stdout.String(), "graph TD")
	assert.Contains(t, stdout.String(), "planner --> designer")
}

func TestExecute_GraphOverlay(t *testing.T) {
	path := writeFile(t, t.TempDir(), "strata.yaml", inlineConfig)

	var stdout bytes.Buffer
	err := Execute(context.Background(), RunOptions{
		ConfigPath: path,
		Content:    "build a login form",
		Timeout:    10 * time.Second,
		Graph:      true,
	}, &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "```mermaid")
	assert.Contains(t, stdout.String(), "class coder result;")
}
