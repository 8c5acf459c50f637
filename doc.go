/*
Package strata is a hierarchical signal-routing and learning engine.

A strata network is a topology of neurons arranged in layers (L1 to L9).
Each neuron runs as its own actor, turns the activations it receives into text
through a pluggable backend, and forwards the result to the neurons directly
below it. Failures travel the other way: a neuron that cannot do its job emits
a gradient to the layer above, which records the error, learns from repeated
patterns and keeps the chain going with a decayed magnitude.

# Concept

Connections only join adjacent layers. A layer-N neuron forwards to layer N-1
and reports errors to layer N+1; any other edge is rejected when the topology
is loaded. Signals are immutable, carry a correlation id, and are delivered in
FIFO order per channel through bounded inboxes.

Generation is served by one of three strategies: Mock (deterministic, free),
Real (a paid model, guarded by a cost ledger) and Hybrid (Real with a
mandatory fallback to Mock). Each neuron also sits behind a circuit breaker
and a rate limiter that substitute Mock output while the backend is unhealthy.

# Usage

	eng, err := strata.New("./neurons") // a directory of neuron documents, or a topology file
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Stop()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	out, err := eng.Submit(ctx, "Build a TODO service")
	if err != nil {
		log.Printf("no result: %v", err)
	}
	for _, r := range out.Results {
		fmt.Println(r.NeuronID, r.Content)
	}

# Topology

Neurons are declared with an id, a layer, their forward and backward
connections, an optional remote handle and free-form settings:

	neurons:
	  - id: planner
	    layer: L4
	    forward_connections: [designer]
	  - id: designer
	    layer: L3
	    forward_connections: [coder]
	    backward_connections: [planner]
	  - id: coder
	    layer: L2
	    backward_connections: [designer]
	    settings:
	      temperature: 0.2

# Memory

Every neuron owns a partition of the memory store. Tasks, results, errors and
learned adjustments are written there and read back as context on the next
request. Stores are available in process (pkg/adapters/memory) and on Redis
(pkg/adapters/redis), and old unimportant entries are removed by
pkg/retention.
*/
package strata
