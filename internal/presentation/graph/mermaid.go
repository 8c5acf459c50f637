package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/topology"
)

// Overlay contains request data to visualize on the graph.
type Overlay struct {
	// Results are neurons that produced a terminal result.
	Results []string
	// Failures are neurons where a terminal error surfaced.
	Failures []string
}

// OverlayFrom collects the terminal neurons of an outcome.
func OverlayFrom(out domain.Outcome) *Overlay {
	o := &Overlay{}
	for _, r := range out.Results {
		o.Results = append(o.Results, r.NeuronID)
	}
	for _, f := range out.Failures {
		o.Failures = append(o.Failures, f.NeuronID)
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of the topology, one subgraph
// per layer from the highest down. It applies semantic styling:
//   - Entry neuron: ((Circle))
//   - Remote neuron: [[Subroutine]]
//   - Leaf neuron (no forward peers): [/Parallelogram/]
//   - Default: [Rectangle]
//
// Forward connections are solid arrows. Backward connections without a
// matching forward one are drawn dotted.
func GenerateMermaid(topo *topology.Topology, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byLayer := make(map[domain.Layer][]*topology.Neuron)
	var layers []domain.Layer
	for _, n := range topo.Neurons() {
		if _, ok := byLayer[n.Layer]; !ok {
			layers = append(layers, n.Layer)
		}
		byLayer[n.Layer] = append(byLayer[n.Layer], n)
	}
	slices.SortFunc(layers, func(a, b domain.Layer) int { return int(b) - int(a) })

	for _, layer := range layers {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s %s\"]\n", layer, layer, layer.Description())
		for _, n := range byLayer[layer] {
			safeID := sanitizeMermaidID(n.ID)
			opener, closer := "[", "]"
			switch {
			case !n.Local():
				opener, closer = "[[", "]]" // Subroutine
			case len(topo.Backward(n.ID)) == 0:
				opener, closer = "((", "))" // Circle
			case len(topo.Forward(n.ID)) == 0:
				opener, closer = "[/", "/]" // Parallelogram
			}
			label := n.ID
			if n.Settings.Model != "" {
				label = fmt.Sprintf("%s <br/> %s", n.ID, n.Settings.Model)
			}
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", safeID, opener, label, closer)
		}
		sb.WriteString("    end\n")
	}

	for _, n := range topo.Neurons() {
		safeID := sanitizeMermaidID(n.ID)
		for _, f := range topo.Forward(n.ID) {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(f.ID))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef result fill:#ccfbf1,stroke:#0f766e,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failure fill:#ffe4e6,stroke:#be123c,stroke-width:4px,color:#000;\n")
		writeClass(&sb, overlay.Results, "result")
		writeClass(&sb, overlay.Failures, "failure")
	}

	return sb.String()
}

func writeClass(sb *strings.Builder, ids []string, class string) {
	seen := make(map[string]bool)
	for _, id := range ids {
		safeID := sanitizeMermaidID(id)
		if safeID == "" || seen[safeID] {
			continue
		}
		seen[safeID] = true
		fmt.Fprintf(sb, "    class %s %s;\n", safeID, class)
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
