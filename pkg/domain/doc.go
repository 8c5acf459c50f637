/*
Package domain contains the core domain models of the Strata engine.

It defines the vocabulary shared by the runtime, the adapters and the host:
layers, immutable signals, memory entries, cost ledger records and the outcome
returned to the caller. This package is kept pure and free of external
dependencies like I/O or persistence, following Hexagonal Architecture
principles.

# Key Entities

  - Layer: a rank in the hierarchy (L1..L9). Neurons only talk to adjacent layers.
  - Signal: an immutable message carrying either an Activation (forward) or a Gradient (backward).
  - MemoryEntry: a record in a neuron's private memory partition.
  - LedgerEntry: one priced backend call inside an hourly or daily cost window.
  - Outcome: what a caller receives once a request has fully drained through the network.
*/
package domain
