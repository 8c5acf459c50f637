package backend

import (
	"strings"
)

const (
	directiveForward = "FORWARD_TO:"
	directiveContent = "CONTENT:"
	directiveResult  = "RESULT:"
)

// Directives is the routing intent found in generated text.
type Directives struct {
	// Targets lists the forward peers named by FORWARD_TO, if any.
	Targets []string
	// Content is the payload to propagate.
	Content string
	// Result is set when the text declares itself a final RESULT.
	Result bool
}

// ParseDirectives extracts FORWARD_TO, CONTENT and RESULT directives.
// Text without directives is returned unchanged as content.
func ParseDirectives(text string) Directives {
	var d Directives
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var body []string
	contentAt := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, directiveForward):
			for _, t := range strings.Split(strings.TrimPrefix(trimmed, directiveForward), ",") {
				if t = strings.TrimSpace(t); t != "" {
					d.Targets = append(d.Targets, t)
				}
			}
		case contentAt < 0 && strings.HasPrefix(trimmed, directiveContent):
			contentAt = i
			body = body[:0]
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, directiveContent)); rest != "" {
				body = append(body, rest)
			}
		case len(body) == 0 && contentAt < 0 && strings.HasPrefix(trimmed, directiveResult):
			d.Result = true
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, directiveResult)); rest != "" {
				body = append(body, rest)
			}
		default:
			if len(body) == 0 && trimmed == "" {
				continue
			}
			body = append(body, line)
		}
	}

	d.Content = strings.TrimSpace(strings.Join(body, "\n"))
	return d
}
