package middleware

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
)

// Mask replaces every redacted match.
const Mask = "***"

// DefaultPIIPatterns match email addresses, API key shaped tokens and card numbers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\bsk-[A-Za-z0-9_-]{16,}\b`,
	`\b(?:\d[ -]?){13,16}\b`,
}

type piiMiddleware struct {
	next     ports.MemoryStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks content matching the patterns
// before it is stored. Stored entries are never unmasked.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.MemoryStore) ports.MemoryStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Append(ctx context.Context, entry domain.MemoryEntry) (domain.EntryID, error) {
	for _, p := range m.patterns {
		entry.Content = p.ReplaceAllString(entry.Content, Mask)
	}
	return m.next.Append(ctx, entry)
}

func (m *piiMiddleware) QueryRecent(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	return m.next.QueryRecent(ctx, neuronID, kinds, limit)
}

func (m *piiMiddleware) Prune(ctx context.Context, cutoff time.Time, minImportance float64) (int, error) {
	return m.next.Prune(ctx, cutoff, minImportance)
}
