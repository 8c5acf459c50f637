package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

var layerPrompts = map[domain.Layer]string{
	domain.L4: "You are a strategic planning AI neuron in a hierarchical neural network. " +
		"Your role is to receive high-level objectives and break them down into strategic initiatives. " +
		"Output format: List of 2-3 strategic directives for L3 neurons. " +
		"Focus on WHAT needs to be achieved, not HOW.",
	domain.L3: "You are a system design AI neuron in a hierarchical neural network. " +
		"Your role is to receive strategic directives and turn them into technical designs. " +
		"Output format: Technical design specifications for L2 neurons. " +
		"Focus on components, interfaces and data flow.",
	domain.L2: "You are an implementation AI neuron in a hierarchical neural network. " +
		"Your role is to receive technical designs and produce concrete implementation details. " +
		"Output format: Code or step-by-step implementation instructions. " +
		"Focus on HOW the design is realized.",
}

// SystemPrompt returns the built-in system prompt for a layer.
func SystemPrompt(layer domain.Layer) string {
	if p, ok := layerPrompts[layer]; ok {
		return p
	}
	return fmt.Sprintf("You are a %s layer AI neuron in a hierarchical neural network.", strings.ToLower(layer.Description()))
}

// buildPrompt assembles the generation prompt: adjustments first, then memory, then the input.
func buildPrompt(adjustments []string, memory []domain.MemoryEntry, input string) string {
	var b strings.Builder
	if len(adjustments) > 0 {
		b.WriteString("Adjustments from previous errors:\n")
		for _, a := range adjustments {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		b.WriteString("\n")
	}
	if len(memory) > 0 {
		b.WriteString("Relevant memory:\n")
		for _, e := range memory {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Kind, e.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Input:\n")
	b.WriteString(input)
	return b.String()
}
