/*
Package ports defines the driven ports (interfaces) for the Strata engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends, generation services, topology
sources and transports.

# Key Interfaces

  - MemoryStore: Partitioned, append-only record of neuron history (Task, Result, Error, Learning).
  - BackendClient: A real generation service (e.g. an HTTP language-model API).
  - Transport: Delivers signals to neurons hosted in another process.
  - TopologyLoader: Produces neuron declarations from a configuration source.
  - DistributedLocker: Serializes maintenance work (such as pruning) across replicas.
*/
package ports
