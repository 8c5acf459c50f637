package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/aretw0/strata/pkg/domain"
)

// NewRenderer returns a function that renders markdown using glamour.
// With plain set, markdown is returned as is (pipes, CI logs).
func NewRenderer(plain bool) func(string) (string, error) {
	if plain {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// OutcomeMarkdown formats a drained request for the terminal.
func OutcomeMarkdown(out domain.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Request `%s`\n\n", out.BatchID)

	layers := make([]string, len(out.LayersActivated))
	for i, l := range out.LayersActivated {
		layers[i] = l.String()
	}
	if len(layers) == 0 {
		layers = []string{"none"}
	}
	fmt.Fprintf(&b, "**Layers:** %s  \n**Duration:** %s\n\n", strings.Join(layers, " → "), out.Duration.Round(time.Millisecond))

	for _, r := range out.Results {
		fmt.Fprintf(&b, "## %s (%s)\n\n", r.NeuronID, r.Layer)
		source := string(r.Source)
		if r.Degraded {
			source += ", degraded"
		}
		fmt.Fprintf(&b, "_source: %s, strength %.2f_\n\n", source, r.Strength)
		b.WriteString(strings.TrimSpace(r.Content))
		b.WriteString("\n\n")
	}

	if len(out.Failures) > 0 {
		b.WriteString("## Failures\n\n")
		for _, f := range out.Failures {
			fmt.Fprintf(&b, "- **%s** at %s (%s), magnitude %.3f", f.Classification, f.NeuronID, f.Layer, f.Magnitude)
			if f.Cause != "" {
				fmt.Fprintf(&b, ": %s", f.Cause)
			}
			b.WriteString("\n")
			for _, adj := range f.Adjustments {
				fmt.Fprintf(&b, "  - %s\n", adj)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HealthMarkdown formats neuron health as a table.
func HealthMarkdown(health []domain.NeuronHealth) string {
	var b strings.Builder
	b.WriteString("| Neuron | Layer | State | Processed | Failed | Sent |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, h := range health {
		state := string(h.State)
		if h.Remote {
			state = "remote"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %d |\n", h.ID, h.Layer, state, h.SignalsProcessed, h.SignalsFailed, h.SignalsSent)
	}
	return b.String()
}
