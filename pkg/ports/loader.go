package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// TopologyLoader defines how the engine retrieves neuron declarations.
// This allows the configuration source (YAML file, Loam repository, inline) to be decoupled.
type TopologyLoader interface {
	Declarations(ctx context.Context) ([]domain.NeuronDeclaration, error)
}
