package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aretw0/strata/pkg/domain"
)

// Loader implements ports.TopologyLoader from declarations held in memory.
type Loader struct {
	decls []domain.NeuronDeclaration
}

// NewLoader creates a Loader from domain declarations.
func NewLoader(decls ...domain.NeuronDeclaration) *Loader {
	return &Loader{decls: slices.Clone(decls)}
}

// NewFromJSON creates a Loader from a raw JSON array of declarations.
// This improves DX for tests and embedded topologies.
func NewFromJSON(data []byte) (*Loader, error) {
	var decls []domain.NeuronDeclaration
	if err := json.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	return &Loader{decls: decls}, nil
}

// Declarations returns a copy of the stored declarations.
func (l *Loader) Declarations(ctx context.Context) ([]domain.NeuronDeclaration, error) {
	return slices.Clone(l.decls), nil
}
