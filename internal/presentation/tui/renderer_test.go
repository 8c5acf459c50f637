package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strata/pkg/domain"
)

func TestOutcomeMarkdown(t *testing.T) {
	out := domain.Outcome{
		BatchID:         "b-1",
		LayersActivated: []domain.Layer{domain.L4, domain.L3},
		Duration:        1500 * time.Millisecond,
		Results: []domain.TerminalResult{
			{NeuronID: "coder", Layer: domain.L3, Content: "done\n", Strength: 0.9, Source: domain.BackendMock, Degraded: true},
		},
		Failures: []domain.TerminalError{
			{Classification: domain.ClassUpstreamFailure, NeuronID: "planner", Layer: domain.L4, Magnitude: 0.76, Cause: "timed out", Adjustments: []string{"retry later"}},
		},
	}

	md := OutcomeMarkdown(out)
	assert.Contains(t, md, "# Request `b-1`")
	assert.Contains(t, md, "L4 → L3")
	assert.Contains(t, md, "1.5s")
	assert.Contains(t, md, "## coder (L3)")
	assert.Contains(t, md, "source: mock, degraded")
	assert.Contains(t, md, "**upstream_failure** at planner (L4), magnitude 0.760: timed out")
	assert.Contains(t, md, "  - retry later")
}

func TestOutcomeMarkdown_NoLayers(t *testing.T) {
	md := OutcomeMarkdown(domain.Outcome{BatchID: "b-2"})
	assert.Contains(t, md, "**Layers:** none")
	assert.NotContains(t, md, "## Failures")
}

func TestHealthMarkdown(t *testing.T) {
	md := HealthMarkdown([]domain.NeuronHealth{
		{ID: "planner", Layer: domain.L4, State: domain.StateIdle, SignalsProcessed: 3, SignalsSent: 2},
		{ID: "far", Layer: domain.L3, Remote: true},
	})
	assert.Contains(t, md, "| planner | L4 | idle | 3 | 0 | 2 |")
	assert.Contains(t, md, "| far | L3 | remote |")
}

func TestNewRenderer_Plain(t *testing.T) {
	render := NewRenderer(true)
	got, err := render("# title")
	require.NoError(t, err)
	assert.Equal(t, "# title", got)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
