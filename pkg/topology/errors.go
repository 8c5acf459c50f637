package topology

import (
	"fmt"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// Violation is a single topology rule failure.
type Violation struct {
	NeuronID string
	Reason   string
}

func (v Violation) Error() string {
	if v.NeuronID == "" {
		return v.Reason
	}
	return fmt.Sprintf("neuron %q: %s", v.NeuronID, v.Reason)
}

// Error aggregates every violation found in a set of declarations.
// It matches domain.ErrInvalidPeerTopology with errors.Is.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", domain.ErrInvalidPeerTopology, e.Violations[0].Error())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d violations:\n", domain.ErrInvalidPeerTopology, len(e.Violations))
	for i, v := range e.Violations {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, v.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return domain.ErrInvalidPeerTopology
}

// Violations returns all violations if err is a topology Error.
// Otherwise returns nil.
func Violations(err error) []Violation {
	if te, ok := err.(*Error); ok {
		return te.Violations
	}
	return nil
}
