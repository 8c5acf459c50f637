package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize is the submitted content limit when none is configured (64 KiB).
const DefaultMaxInputSize = 64 << 10

// SanitizeInput enforces the size limit, validates UTF-8 and strips control
// characters other than newline, tab and carriage return. Oversized content is
// rejected rather than truncated. Errors wrap ErrInvalidInput.
func SanitizeInput(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInvalidInput, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", fmt.Errorf("%w: invalid UTF-8 sequence", ErrInvalidInput)
	}
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: empty content", ErrInvalidInput)
	}

	// Fast path: if no control chars, return as is.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
