package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.MemoryStore in memory.
// Safe for concurrent use. Each neuron partition has its own lock so that
// appends to one partition never wait on queries of another.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	now        func() time.Time
}

type partition struct {
	mu      sync.RWMutex
	entries []record
	seq     uint64
}

type record struct {
	entry domain.MemoryEntry
	seq   uint64
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source used for entries without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		partitions: make(map[string]*partition),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) partition(neuronID string, create bool) *partition {
	s.mu.RLock()
	p, ok := s.partitions[neuronID]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.partitions[neuronID]; !ok {
		p = &partition{}
		s.partitions[neuronID] = p
	}
	return p
}

// Append persists the entry in its neuron's partition.
func (s *Store) Append(ctx context.Context, entry domain.MemoryEntry) (domain.EntryID, error) {
	if entry.NeuronID == "" {
		return "", fmt.Errorf("%w: missing neuron id", domain.ErrInvalidEntry)
	}
	if !entry.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidEntry, entry.Kind)
	}
	if entry.ID == "" {
		entry.ID = domain.EntryID(uuid.NewString())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	p := s.partition(entry.NeuronID, true)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	rec := record{entry: entry, seq: p.seq}
	// Keep the slice sorted oldest-first so reads can walk it backwards.
	i, _ := slices.BinarySearchFunc(p.entries, rec, compareRecords)
	p.entries = slices.Insert(p.entries, i, rec)
	return entry.ID, nil
}

func compareRecords(a, b record) int {
	if c := a.entry.CreatedAt.Compare(b.entry.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// QueryRecent returns a snapshot of the newest matching entries.
func (s *Store) QueryRecent(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.partition(neuronID, false)
	if p == nil {
		return []domain.MemoryEntry{}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.MemoryEntry, 0, min(len(p.entries), max(limit, 0)))
	for i := len(p.entries) - 1; i >= 0; i-- {
		e := p.entries[i].entry
		if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Prune removes entries that are both older than cutoff and below minImportance.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, minImportance float64) (int, error) {
	s.mu.RLock()
	parts := make([]*partition, 0, len(s.partitions))
	for _, p := range s.partitions {
		parts = append(parts, p)
	}
	s.mu.RUnlock()

	removed := 0
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		p.mu.Lock()
		before := len(p.entries)
		p.entries = slices.DeleteFunc(p.entries, func(r record) bool {
			return r.entry.Prunable(cutoff, minImportance)
		})
		removed += before - len(p.entries)
		p.mu.Unlock()
	}
	return removed, nil
}

// Partitions returns the neuron ids that have at least one entry.
func (s *Store) Partitions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
