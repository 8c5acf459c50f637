package backend

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// DefaultTrigger matches any request. It is evaluated after every other trigger of a layer.
const DefaultTrigger = "default"

// Rule maps a trigger substring to a response template.
// Templates see .Content, .Layer, .Neuron and .Prompt.
type Rule struct {
	Trigger  string `yaml:"trigger" json:"trigger" mapstructure:"trigger"`
	Response string `yaml:"response" json:"response" mapstructure:"response"`
}

type compiledRule struct {
	trigger string
	tmpl    *template.Template
}

// Mock is the deterministic strategy. It never incurs cost.
type Mock struct {
	rules map[domain.Layer][]compiledRule
	delay time.Duration
	usage domain.Usage
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithMockDelay simulates generation latency.
func WithMockDelay(d time.Duration) MockOption {
	return func(m *Mock) { m.delay = d }
}

// DefaultRules returns the built-in response table for a layer.
func DefaultRules(layer domain.Layer) []Rule {
	switch layer {
	case domain.L4:
		return []Rule{{Trigger: DefaultTrigger, Response: "CONTENT: Strategic breakdown of {{.Content}}:\n1. Design the system architecture\n2. Plan the implementation approach"}}
	case domain.L3:
		return []Rule{{Trigger: DefaultTrigger, Response: "CONTENT: Design specification for {{.Content}}:\n- Component A: Handle data processing\n- Component B: Manage the interface"}}
	case domain.L2:
		return []Rule{{Trigger: DefaultTrigger, Response: "RESULT: Implementation complete for {{.Content}}"}}
	}
	return []Rule{{Trigger: DefaultTrigger, Response: "CONTENT: {{.Layer}} processed {{.Content}}"}}
}

// NewMock compiles a per-layer rule table. Layers absent from the table use
// DefaultRules; a layer present with no rules is treated as misconfigured at call time.
func NewMock(table map[domain.Layer][]Rule, opts ...MockOption) (*Mock, error) {
	m := &Mock{
		rules: make(map[domain.Layer][]compiledRule),
		usage: domain.Usage{InputTokens: 100, OutputTokens: 50},
	}
	for _, opt := range opts {
		opt(m)
	}

	for l := domain.MinLayer; l <= domain.MaxLayer; l++ {
		rules, ok := table[l]
		if !ok {
			rules = DefaultRules(l)
		}
		compiled := make([]compiledRule, 0, len(rules))
		for i, r := range rules {
			tmpl, err := template.New(fmt.Sprintf("%s-%d", l, i)).Option("missingkey=zero").Parse(r.Response)
			if err != nil {
				return nil, fmt.Errorf("%w: layer %s rule %d: %v", domain.ErrMockMisconfigured, l, i, err)
			}
			compiled = append(compiled, compiledRule{trigger: strings.ToLower(strings.TrimSpace(r.Trigger)), tmpl: tmpl})
		}
		m.rules[l] = compiled
	}
	return m, nil
}

// Generate renders the first matching rule for the request layer.
func (m *Mock) Generate(ctx context.Context, req Request) (Content, error) {
	start := time.Now()
	rule, ok := m.match(req)
	if !ok {
		return Content{}, fmt.Errorf("%w: no rule matches for layer %s", domain.ErrMockMisconfigured, req.Layer)
	}

	if m.delay > 0 {
		timer := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Content{}, ctx.Err()
		case <-timer.C:
		}
	}

	var b strings.Builder
	data := struct {
		Content string
		Layer   string
		Neuron  string
		Prompt  string
	}{req.Content, req.Layer.String(), req.NeuronID, req.Prompt}
	if err := rule.tmpl.Execute(&b, data); err != nil {
		return Content{}, fmt.Errorf("%w: %v", domain.ErrMockMisconfigured, err)
	}

	return Content{
		Text:     b.String(),
		Source:   domain.BackendMock,
		Model:    "mock",
		Usage:    m.usage,
		Duration: time.Since(start),
	}, nil
}

func (m *Mock) match(req Request) (compiledRule, bool) {
	rules := m.rules[req.Layer]
	haystack := strings.ToLower(req.Content + "\n" + req.Prompt)
	var fallback *compiledRule
	for i := range rules {
		r := &rules[i]
		if r.trigger == DefaultTrigger || r.trigger == "" {
			if fallback == nil {
				fallback = r
			}
			continue
		}
		if strings.Contains(haystack, r.trigger) {
			return *r, true
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return compiledRule{}, false
}
