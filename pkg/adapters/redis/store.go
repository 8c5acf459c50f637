package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapters.
const DefaultPrefix = "strata:"

const pageSize = 64

// Store implements ports.MemoryStore using Redis.
//
// Each neuron partition is a sorted set scored by creation time (unix
// milliseconds). Members are "<seq>:<id>" with a zero padded global sequence,
// so entries sharing a timestamp still order by insertion. Entry bodies are
// stored as JSON strings.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration of entry bodies. Zero keeps them until pruned.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used for entries without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) partitionKey(neuronID string) string {
	return s.prefix + "mem:" + neuronID
}

func (s *Store) entryKey(id domain.EntryID) string {
	return s.prefix + "entry:" + string(id)
}

func (s *Store) partitionsKey() string {
	return s.prefix + "partitions"
}

func (s *Store) seqKey() string {
	return s.prefix + "seq"
}

func member(seq int64, id domain.EntryID) string {
	return fmt.Sprintf("%020d:%s", seq, id)
}

func memberID(m string) domain.EntryID {
	_, id, _ := strings.Cut(m, ":")
	return domain.EntryID(id)
}

// Append persists the entry and indexes it in its partition.
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

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(entry.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.partitionKey(entry.NeuronID), backend.Z{
		Score:  float64(entry.CreatedAt.UnixMilli()),
		Member: member(seq, entry.ID),
	})
	pipe.SAdd(ctx, s.partitionsKey(), entry.NeuronID)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to save to redis: %w", err)
	}
	return entry.ID, nil
}

// QueryRecent walks the partition newest first, page by page, until limit matches are found.
func (s *Store) QueryRecent(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error) {
	key := s.partitionKey(neuronID)
	out := []domain.MemoryEntry{}

	for start := int64(0); ; start += pageSize {
		members, err := s.client.ZRevRange(ctx, key, start, start+pageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read partition: %w", err)
		}
		if len(members) == 0 {
			return out, nil
		}

		entries, err := s.load(ctx, members)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(members) < pageSize {
			return out, nil
		}
	}
}

// load fetches entry bodies for members, skipping bodies that expired.
func (s *Store) load(ctx context.Context, members []string) ([]domain.MemoryEntry, error) {
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.entryKey(memberID(m))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	entries := make([]domain.MemoryEntry, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e domain.MemoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Prune removes entries older than cutoff whose importance is below the floor.
func (s *Store) Prune(ctx context.Context, cutoff time.Time, minImportance float64) (int, error) {
	partitions, err := s.client.SMembers(ctx, s.partitionsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list partitions: %w", err)
	}
	slices.Sort(partitions)

	removed := 0
	for _, neuronID := range partitions {
		n, err := s.prunePartition(ctx, neuronID, cutoff, minImportance)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) prunePartition(ctx context.Context, neuronID string, cutoff time.Time, minImportance float64) (int, error) {
	key := s.partitionKey(neuronID)
	// Scores are whole milliseconds; the exact timestamp check happens after decoding.
	members, err := s.client.ZRangeByScore(ctx, key, &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan partition %s: %w", neuronID, err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.entryKey(memberID(m))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get from redis: %w", err)
	}

	pipe := s.client.Pipeline()
	removed := 0
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Body expired: drop the dangling index member.
			pipe.ZRem(ctx, key, members[i])
			continue
		}
		var e domain.MemoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return 0, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		if !e.Prunable(cutoff, minImportance) {
			continue
		}
		pipe.ZRem(ctx, key, members[i])
		pipe.Del(ctx, keys[i])
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && err != backend.Nil {
		return 0, fmt.Errorf("failed to prune partition %s: %w", neuronID, err)
	}
	return removed, nil
}

// Partitions returns the neuron ids that have stored entries.
func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.partitionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
