package domain

// NeuronDeclaration is one entry of a topology configuration.
type NeuronDeclaration struct {
	ID                  string         `json:"id" yaml:"id" mapstructure:"id"`
	Layer               string         `json:"layer" yaml:"layer" mapstructure:"layer"`
	ForwardConnections  []string       `json:"forward_connections,omitempty" yaml:"forward_connections,omitempty" mapstructure:"forward_connections"`
	BackwardConnections []string       `json:"backward_connections,omitempty" yaml:"backward_connections,omitempty" mapstructure:"backward_connections"`
	// Remote is an opaque transport handle. A non-empty value means the neuron runs elsewhere.
	Remote   string         `json:"remote,omitempty" yaml:"remote,omitempty" mapstructure:"remote"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty" mapstructure:"settings"`
}
