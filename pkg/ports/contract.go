package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunMemoryStoreContract runs a suite of tests to verify that a MemoryStore implementation
// adheres to the defined interface contract. The store must be empty.
func RunMemoryStoreContract(t *testing.T, store MemoryStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	suffix := time.Now().Format("150405.000000")

	t.Run("Append assigns id and time", func(t *testing.T) {
		neuron := "contract-assign-" + suffix
		id, err := store.Append(ctx, domain.MemoryEntry{NeuronID: neuron, Kind: domain.KindTask, Content: "x"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		got, err := store.QueryRecent(ctx, neuron, nil, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id, got[0].ID)
		assert.False(t, got[0].CreatedAt.IsZero())
	})

	t.Run("Append rejects invalid entries", func(t *testing.T) {
		_, err := store.Append(ctx, domain.MemoryEntry{Kind: domain.KindTask})
		assert.ErrorIs(t, err, domain.ErrInvalidEntry)

		_, err = store.Append(ctx, domain.MemoryEntry{NeuronID: "n", Kind: "bogus"})
		assert.ErrorIs(t, err, domain.ErrInvalidEntry)
	})

	t.Run("QueryRecent orders most recent first", func(t *testing.T) {
		neuron := "contract-order-" + suffix
		for i, kind := range []domain.EntryKind{domain.KindTask, domain.KindResult, domain.KindError, domain.KindLearning} {
			_, err := store.Append(ctx, domain.MemoryEntry{
				NeuronID:   neuron,
				Kind:       kind,
				Content:    fmt.Sprintf("entry-%d", i),
				Importance: 0.5,
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
				Tag:        domain.ClassUpstreamFailure,
			})
			require.NoError(t, err)
		}

		all, err := store.QueryRecent(ctx, neuron, nil, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "entry-3", all[0].Content)
		assert.Equal(t, "entry-0", all[3].Content)
		assert.Equal(t, domain.ClassUpstreamFailure, all[0].Tag)

		limited, err := store.QueryRecent(ctx, neuron, nil, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "entry-3", limited[0].Content)
		assert.Equal(t, "entry-2", limited[1].Content)

		filtered, err := store.QueryRecent(ctx, neuron, []domain.EntryKind{domain.KindTask, domain.KindError}, 10)
		require.NoError(t, err)
		require.Len(t, filtered, 2)
		assert.Equal(t, domain.KindError, filtered[0].Kind)
		assert.Equal(t, domain.KindTask, filtered[1].Kind)
	})

	t.Run("Equal timestamps keep insertion order", func(t *testing.T) {
		neuron := "contract-ties-" + suffix
		for i := 0; i < 3; i++ {
			_, err := store.Append(ctx, domain.MemoryEntry{
				NeuronID:  neuron,
				Kind:      domain.KindResult,
				Content:   fmt.Sprintf("tie-%d", i),
				CreatedAt: base,
			})
			require.NoError(t, err)
		}
		got, err := store.QueryRecent(ctx, neuron, nil, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"tie-2", "tie-1", "tie-0"}, contents(got))
	})

	t.Run("QueryRecent is idempotent", func(t *testing.T) {
		neuron := "contract-order-" + suffix
		first, err := store.QueryRecent(ctx, neuron, nil, 3)
		require.NoError(t, err)
		second, err := store.QueryRecent(ctx, neuron, nil, 3)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("Partitions are isolated", func(t *testing.T) {
		got, err := store.QueryRecent(ctx, "contract-unknown-"+suffix, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Prune requires age and low importance", func(t *testing.T) {
		neuron := "contract-prune-" + suffix
		old := base.Add(-90 * 24 * time.Hour)
		entries := []domain.MemoryEntry{
			{NeuronID: neuron, Kind: domain.KindTask, Content: "old-low", Importance: 0.1, CreatedAt: old},
			{NeuronID: neuron, Kind: domain.KindLearning, Content: "old-high", Importance: 0.9, CreatedAt: old},
			{NeuronID: neuron, Kind: domain.KindTask, Content: "new-low", Importance: 0.1, CreatedAt: base},
		}
		for _, e := range entries {
			_, err := store.Append(ctx, e)
			require.NoError(t, err)
		}

		removed, err := store.Prune(ctx, base.Add(-30*24*time.Hour), 0.5)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 1)

		got, err := store.QueryRecent(ctx, neuron, nil, 0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old-high", "new-low"}, contents(got))
	})

	t.Run("Concurrent appends across partitions", func(t *testing.T) {
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			neuron := fmt.Sprintf("contract-concurrent-%d-%s", p, suffix)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					_, err := store.Append(ctx, domain.MemoryEntry{NeuronID: neuron, Kind: domain.KindResult, Content: "c"})
					assert.NoError(t, err)
					_, err = store.QueryRecent(ctx, neuron, nil, 5)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		got, err := store.QueryRecent(ctx, "contract-concurrent-0-"+suffix, nil, 0)
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})
}

func contents(entries []domain.MemoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}
