package retention_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/retention"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	old := now.Add(-60 * 24 * time.Hour)
	for _, e := range []domain.MemoryEntry{
		{NeuronID: "n", Kind: domain.KindTask, Content: "old-low", Importance: 0.1, CreatedAt: old},
		{NeuronID: "n", Kind: domain.KindLearning, Content: "old-high", Importance: 0.9, CreatedAt: old},
		{NeuronID: "n", Kind: domain.KindResult, Content: "recent-low", Importance: 0.1, CreatedAt: now.Add(-time.Hour)},
	} {
		_, err := store.Append(ctx, e)
		require.NoError(t, err)
	}
}

func TestPruneOnce(t *testing.T) {
	store := memory.NewStore()
	seed(t, store)

	p := retention.New(store, retention.DefaultConfig(), retention.WithClock(func() time.Time { return now }))
	assert.Equal(t, now.Add(-30*24*time.Hour), p.Cutoff())

	removed, err := p.PruneOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, err := store.QueryRecent(context.Background(), "n", nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "recent-low", got[0].Content)
	assert.Equal(t, "old-high", got[1].Content)
}

func TestPruneOnce_WithRedisLocker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	defer client.Close()

	store := memory.NewStore()
	seed(t, store)
	locker := redis.NewLocker(client, "test:")

	var total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := retention.New(store, retention.DefaultConfig(),
				retention.WithLocker(locker),
				retention.WithClock(func() time.Time { return now }),
			)
			n, err := p.PruneOnce(context.Background())
			assert.NoError(t, err)
			total.Add(int64(n))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, total.Load(), "replicas must not double count")
	assert.False(t, mr.Exists("test:lock:"+retention.LockKey), "lock released")
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	cfg := retention.DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	p := retention.New(store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
