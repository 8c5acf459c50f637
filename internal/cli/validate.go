package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/presentation/graph"
)

func loadTopology(configPath, topologyPath string) (*strata.Engine, string, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	source, opts, err := topologySource(cfg, topologyPath)
	if err != nil {
		return nil, "", err
	}
	engine, err := strata.New(source, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("invalid topology: %w", err)
	}
	return engine, source, nil
}

// Graph prints the topology as a Mermaid flowchart.
func Graph(configPath, topologyPath string, stdout io.Writer) error {
	engine, _, err := loadTopology(configPath, topologyPath)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, graph.GenerateMermaid(engine.Topology(), nil))
	return nil
}

// Validate loads the topology and prints its neurons. No neuron is started
// and no external service is contacted.
func Validate(configPath, topologyPath string, stdout io.Writer) error {
	engine, source, err := loadTopology(configPath, topologyPath)
	if err != nil {
		return err
	}

	topo := engine.Topology()
	fmt.Fprintf(stdout, "Topology %q is valid: %d neurons\n", source, topo.Len())
	for _, n := range topo.Neurons() {
		line := fmt.Sprintf("  %-4s %-20s", n.Layer, n.ID)
		if fwd := topo.Forward(n.ID); len(fwd) > 0 {
			ids := make([]string, len(fwd))
			for i, f := range fwd {
				ids[i] = f.ID
			}
			line += " -> " + strings.Join(ids, ", ")
		}
		if !n.Local() {
			line += " (remote: " + n.Remote + ")"
		}
		fmt.Fprintln(stdout, strings.TrimRight(line, " "))
	}
	return nil
}
