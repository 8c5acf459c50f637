package topology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a topology file.
type File struct {
	Neurons []domain.NeuronDeclaration `yaml:"neurons" json:"neurons"`
}

// FileLoader implements ports.TopologyLoader over a YAML or JSON file.
type FileLoader struct {
	Path string
}

// Declarations reads and parses the file.
func (l FileLoader) Declarations(ctx context.Context) ([]domain.NeuronDeclaration, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}
	return ParseDeclarations(data, filepath.Ext(l.Path))
}

// ParseDeclarations decodes a topology document. ext selects JSON (".json"); anything else is YAML.
func ParseDeclarations(data []byte, ext string) ([]domain.NeuronDeclaration, error) {
	var f File
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse topology json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse topology yaml: %w", err)
		}
	}
	return f.Neurons, nil
}

// LoadFile reads, validates and builds a topology from a YAML or JSON file.
func LoadFile(path string) (*Topology, error) {
	return LoadFrom(context.Background(), FileLoader{Path: path})
}
