package topology

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Settings are the per-neuron generation overrides carried in a declaration.
type Settings struct {
	SystemPrompt string  `mapstructure:"system_prompt"`
	Model        string  `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	ContextLimit int     `mapstructure:"context_limit"`
}

// DecodeSettings converts the free-form settings map of a declaration.
// Numeric strings are accepted ("0.3", "512").
func DecodeSettings(raw map[string]any) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(raw); err != nil {
		return s, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}
