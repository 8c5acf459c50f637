package topology

import (
	"fmt"
	"slices"

	"github.com/aretw0/strata/pkg/domain"
)

// Validate checks declarations against the topology rules without building anything.
// It reports every violation, not just the first.
func Validate(decls []domain.NeuronDeclaration) error {
	var violations []Violation
	add := func(id, format string, args ...any) {
		violations = append(violations, Violation{NeuronID: id, Reason: fmt.Sprintf(format, args...)})
	}

	if len(decls) == 0 {
		return &Error{Violations: []Violation{{Reason: "topology declares no neurons"}}}
	}

	layers := make(map[string]domain.Layer, len(decls))
	byID := make(map[string]domain.NeuronDeclaration, len(decls))
	for _, d := range decls {
		if d.ID == "" {
			add("", "neuron declared without id")
			continue
		}
		if _, dup := layers[d.ID]; dup {
			add(d.ID, "duplicate neuron id")
			continue
		}
		l, err := domain.ParseLayer(d.Layer)
		if err != nil {
			add(d.ID, "%v", err)
			l = 0
		}
		layers[d.ID] = l
		byID[d.ID] = d
	}

	for _, d := range decls {
		own, ok := layers[d.ID]
		if !ok || !own.Valid() {
			continue
		}
		checkPeers(d.ID, own, d.ForwardConnections, own.Below(), "forward", layers, add)
		checkPeers(d.ID, own, d.BackwardConnections, own.Above(), "backward", layers, add)
		checkMirrored(d, own, byID, layers, add)
	}

	if len(violations) > 0 {
		return &Error{Violations: violations}
	}
	return nil
}

func checkPeers(id string, own domain.Layer, peers []string, want domain.Layer, dir string,
	layers map[string]domain.Layer, add func(string, string, ...any)) {
	seen := make(map[string]struct{}, len(peers))
	for _, peer := range peers {
		if peer == id {
			add(id, "%s connection to itself", dir)
			continue
		}
		if _, dup := seen[peer]; dup {
			add(id, "duplicate %s connection to %q", dir, peer)
			continue
		}
		seen[peer] = struct{}{}

		pl, ok := layers[peer]
		if !ok {
			add(id, "%s connection to unknown neuron %q", dir, peer)
			continue
		}
		if !pl.Valid() {
			continue
		}
		if pl != want {
			add(id, "%s connection %s -> %s(%s) violates the ±1 rule (want %s)", dir, own, peer, pl, want)
		}
	}
}

// checkMirrored requires every well-layered link to be declared on both ends:
// a forward connection A -> B needs B to list A as a backward peer, and the
// other way around. Links already rejected by the ±1 rule are not reported twice.
func checkMirrored(d domain.NeuronDeclaration, own domain.Layer, byID map[string]domain.NeuronDeclaration,
	layers map[string]domain.Layer, add func(string, string, ...any)) {
	for _, peer := range d.ForwardConnections {
		if pl, ok := layers[peer]; peer == d.ID || !ok || !pl.Valid() || pl != own.Below() {
			continue
		}
		if !slices.Contains(byID[peer].BackwardConnections, d.ID) {
			add(d.ID, "forward connection to %q is not mirrored: %q does not list %q as a backward peer", peer, peer, d.ID)
		}
	}
	for _, peer := range d.BackwardConnections {
		if pl, ok := layers[peer]; peer == d.ID || !ok || !pl.Valid() || pl != own.Above() {
			continue
		}
		if !slices.Contains(byID[peer].ForwardConnections, d.ID) {
			add(d.ID, "backward connection to %q is not mirrored: %q does not list %q as a forward peer", peer, peer, d.ID)
		}
	}
}
