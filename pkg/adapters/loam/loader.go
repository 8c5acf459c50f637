package loam

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/strata/pkg/domain"
)

// Loader adapts a Loam repository to the ports.TopologyLoader interface.
// Every document in the repository declares one neuron.
type Loader struct {
	Repo *loam.TypedRepository[NeuronMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[NeuronMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only, strict Loam repository at path.
func Open(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numeric settings as json.Number across formats.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[NeuronMetadata](repo)), nil
}

// Declarations lists every document and converts it into a neuron declaration,
// sorted by id.
func (l *Loader) Declarations(ctx context.Context) ([]domain.NeuronDeclaration, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	decls := make([]domain.NeuronDeclaration, 0, len(docs))

	for _, doc := range docs {
		// Use the ID from metadata if available, otherwise filename ID
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: neuron '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID

		decls = append(decls, declaration(id, doc.Data, doc.Content))
	}

	slices.SortFunc(decls, func(a, b domain.NeuronDeclaration) int {
		return strings.Compare(a.ID, b.ID)
	})
	return decls, nil
}

func declaration(id string, meta NeuronMetadata, body string) domain.NeuronDeclaration {
	settings := maps.Clone(meta.Settings)
	if prompt := strings.TrimSpace(body); prompt != "" {
		if settings == nil {
			settings = make(map[string]any)
		}
		if _, ok := settings["system_prompt"]; !ok {
			settings["system_prompt"] = prompt
		}
	}
	return domain.NeuronDeclaration{
		ID:                  id,
		Layer:               meta.Layer,
		ForwardConnections:  meta.Forward,
		BackwardConnections: meta.Backward,
		Remote:              meta.Remote,
		Settings:            settings,
	}
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
