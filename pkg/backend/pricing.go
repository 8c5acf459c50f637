package backend

import (
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// Pricing is the dollar cost per thousand tokens.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-sonnet-20241022"

var modelPricing = map[string]Pricing{
	"opus":   {InputPer1K: 0.015, OutputPer1K: 0.075},
	"sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"haiku":  {InputPer1K: 0.00025, OutputPer1K: 0.00125},
}

// PricingFor returns the pricing of a model family, defaulting to sonnet.
func PricingFor(model string) Pricing {
	m := strings.ToLower(model)
	for family, p := range modelPricing {
		if strings.Contains(m, family) {
			return p
		}
	}
	return modelPricing["sonnet"]
}

// Cost prices a usage.
func (p Pricing) Cost(u domain.Usage) float64 {
	return float64(u.InputTokens)/1000*p.InputPer1K + float64(u.OutputTokens)/1000*p.OutputPer1K
}

// EstimateTokens approximates the token count of a prompt (about four characters per token).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
