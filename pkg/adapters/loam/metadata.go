package loam

// NeuronMetadata is the frontmatter of a neuron document.
// The document body, when present, is the neuron's system prompt.
type NeuronMetadata struct {
	ID       string   `json:"id" mapstructure:"id"`
	Layer    string   `json:"layer" mapstructure:"layer"`
	Forward  []string `json:"forward_connections" mapstructure:"forward_connections"`
	Backward []string `json:"backward_connections" mapstructure:"backward_connections"`
	// Remote names the transport handle of a neuron hosted elsewhere.
	Remote   string         `json:"remote,omitempty" mapstructure:"remote"`
	Settings map[string]any `json:"settings,omitempty" mapstructure:"settings"`
}
