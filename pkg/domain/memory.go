package domain

import "time"

// EntryKind classifies a memory entry.
type EntryKind string

const (
	KindTask     EntryKind = "task"
	KindResult   EntryKind = "result"
	KindError    EntryKind = "error"
	KindLearning EntryKind = "learning"
)

// Valid reports whether k is a known kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindTask, KindResult, KindError, KindLearning:
		return true
	}
	return false
}

// EntryID identifies a memory entry within a store.
type EntryID string

// MemoryEntry is one record in a neuron's memory partition.
type MemoryEntry struct {
	ID         EntryID        `json:"id"`
	NeuronID   string         `json:"neuron_id"`
	Kind       EntryKind      `json:"kind"`
	Content    string         `json:"content"`
	Importance float64        `json:"importance"`
	CreatedAt  time.Time      `json:"created_at"`
	Tag        Classification `json:"tag,omitempty"`
	BatchID    string         `json:"batch_id,omitempty"`
}

// Prunable reports whether the entry is both older than cutoff and below the importance floor.
func (e MemoryEntry) Prunable(cutoff time.Time, minImportance float64) bool {
	return e.CreatedAt.Before(cutoff) && e.Importance < minImportance
}
