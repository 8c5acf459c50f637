package ports

import (
	"context"
	"time"

	"github.com/aretw0/strata/pkg/domain"
)

// MemoryReader is the read-only view of the memory store exposed to external
// collaborators such as dashboards.
type MemoryReader interface {
	// QueryRecent returns up to limit entries of the neuron's partition, most recent first.
	// A nil or empty kinds filter matches every kind; limit <= 0 means no limit.
	// Repeated queries without intervening writes return the same sequence.
	QueryRecent(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error)
}

// MemoryStore defines the durable, per-neuron record used for context building and learning.
// Partitions are independent: implementations must allow concurrent appends and queries
// from different neurons without cross-partition locking.
type MemoryStore interface {
	MemoryReader

	// Append stores the entry in its neuron's partition and returns its id.
	// The store assigns an id and creation time when they are empty.
	// Returns domain.ErrInvalidEntry if the partition or kind is missing.
	Append(ctx context.Context, entry domain.MemoryEntry) (domain.EntryID, error)

	// Prune deletes entries created before cutoff whose importance is below minImportance.
	// Both conditions are required. It returns the number of entries removed.
	Prune(ctx context.Context, cutoff time.Time, minImportance float64) (int, error)
}
