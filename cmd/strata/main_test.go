package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "strata version "+strata.Version+"\n", out)
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`neurons:
  - id: planner
    layer: L4
    forward_connections: [coder]
  - id: coder
    layer: L3
    backward_connections: [planner]
`), 0o644))

	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 neurons")
	assert.Contains(t, out, "planner")
}
