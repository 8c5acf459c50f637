package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunMemoryStoreContract(t, store)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	id, err := store.Append(ctx, domain.MemoryEntry{NeuronID: "design", Kind: domain.KindTask, Content: "Build X"})
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:mem:design"), "Expected partition with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:entry:"+string(id)), "Expected entry body with custom prefix to exist")

	partitions, err := store.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"design"}, partitions)
}

func TestRedisStore_ExpiredBodiesAreSkipped(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	_, err := store.Append(ctx, domain.MemoryEntry{NeuronID: "n", Kind: domain.KindResult, Content: "short lived"})
	require.NoError(t, err)

	got, err := store.QueryRecent(ctx, "n", nil, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	mr.FastForward(2 * time.Second)

	got, err = store.QueryRecent(ctx, "n", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore_PagesThroughLargePartitions(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Only the oldest entry is a task, so the filtered query has to read every page.
	_, err := store.Append(ctx, domain.MemoryEntry{NeuronID: "n", Kind: domain.KindTask, Content: "first", CreatedAt: base})
	require.NoError(t, err)
	for i := 1; i <= 150; i++ {
		_, err := store.Append(ctx, domain.MemoryEntry{NeuronID: "n", Kind: domain.KindResult, Content: "r", CreatedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}

	got, err := store.QueryRecent(ctx, "n", []domain.EntryKind{domain.KindTask}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Content)

	all, err := store.QueryRecent(ctx, "n", nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 151)
}
