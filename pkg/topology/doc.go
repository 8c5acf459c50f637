/*
Package topology loads and validates the neuron hierarchy.

A topology is an arena of neuron records indexed by id, with forward and
backward edges stored as index lists. Validation is a pure function over the
declarations: every forward peer must live exactly one layer below its neuron,
every backward peer exactly one layer above (the ±1 rule). A topology that
violates the rule is rejected before any signal is processed.

Declarations can come from a YAML/JSON file (LoadFile), any ports.TopologyLoader,
or the fluent Builder:

	topo, err := topology.NewBuilder().
		Neuron("planner", domain.L4).Forward("designer").
		Neuron("designer", domain.L3).Backward("planner").Forward("coder").
		Neuron("coder", domain.L2).Backward("designer").
		Build()
*/
package topology
