package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory Store for tests. Setting failAll makes every
// operation error, simulating a lost shared store.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    map[string]map[string]bool
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data: map[string][]byte{},
		sets: map[string]map[string]bool{},
	}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, false, errStoreDown
	}
	val, ok := s.data[key]
	return val, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.data[key] = value
	return nil
}

func (s *fakeStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	for _, k := range keys {
		delete(s.data, k)
		delete(s.sets, k)
	}
	return nil
}

func (s *fakeStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *fakeStore) AddToSet(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	if s.sets[key] == nil {
		s.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		s.sets[key][m] = true
	}
	return nil
}

func (s *fakeStore) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	var members []string
	for m := range s.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func newTestCache(t *testing.T, l2 Store) *TieredCache {
	t.Helper()
	c, err := New(DefaultConfig(), l2, zap.NewNop(), nil)
	require.NoError(t, err)
	return c
}

func TestTieredCache_SetGet(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "hql:abc", []byte("select 1"), ClassHQL, Deps{})

	val, ok := c.Get(ctx, "hql:abc")
	require.True(t, ok)
	assert.Equal(t, []byte("select 1"), val)
}

func TestTieredCache_Miss(t *testing.T) {
	c := newTestCache(t, nil)

	_, ok := c.Get(context.Background(), "hql:missing")
	assert.False(t, ok)
}

func TestTieredCache_L1Expiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HQLTTL = time.Millisecond
	c, err := New(cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "hql:short", []byte("v"), ClassHQL, Deps{})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "hql:short")
	assert.False(t, ok, "expired entries must not be served")
}

func TestTieredCache_L2Promotion(t *testing.T) {
	store := newFakeStore()
	writer := newTestCache(t, store)
	reader := newTestCache(t, store)
	ctx := context.Background()

	writer.Set(ctx, "hql:shared", []byte("artifact"), ClassHQL, Deps{GIDs: []int64{1}})

	// The reader has a cold L1 and must promote from the shared store.
	val, ok := reader.Get(ctx, "hql:shared")
	require.True(t, ok)
	assert.Equal(t, []byte("artifact"), val)

	// A second read is served from the promoted L1 copy.
	store.failAll = true
	val, ok = reader.Get(ctx, "hql:shared")
	require.True(t, ok)
	assert.Equal(t, []byte("artifact"), val)
}

func TestTieredCache_L2FailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	c := newTestCache(t, store)
	ctx := context.Background()

	// Set survives the broken store; Get still serves from L1.
	c.Set(ctx, "hql:k", []byte("v"), ClassHQL, Deps{})
	val, ok := c.Get(ctx, "hql:k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestTieredCache_GetOrCompute(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()
	calls := 0

	compute := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	val, cached, err := c.GetOrCompute(ctx, "hql:memo", ClassHQL, Deps{}, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []byte("computed"), val)

	val, cached, err = c.GetOrCompute(ctx, "hql:memo", ClassHQL, Deps{}, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte("computed"), val)
	assert.Equal(t, 1, calls, "compute must run once")
}

func TestTieredCache_GetOrComputeError(t *testing.T) {
	c := newTestCache(t, nil)

	wantErr := errors.New("compile failed")
	_, _, err := c.GetOrCompute(context.Background(), "hql:bad", ClassHQL, Deps{}, func() ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, ok := c.Get(context.Background(), "hql:bad")
	assert.False(t, ok, "failed computes must not be cached")
}

func TestTieredCache_InvalidateGame(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(t, store)
	ctx := context.Background()

	c.Set(ctx, "hql:a", []byte("a"), ClassHQL, Deps{GIDs: []int64{123}, EventIDs: []int64{1}})
	c.Set(ctx, "hql:b", []byte("b"), ClassHQL, Deps{GIDs: []int64{456}, EventIDs: []int64{2}})

	c.InvalidateGame(ctx, 123)

	_, ok := c.Get(ctx, "hql:a")
	assert.False(t, ok, "entries depending on the mutated game must drop")
	_, ok = c.Get(ctx, "hql:b")
	assert.True(t, ok, "unrelated entries must survive")
}

func TestTieredCache_InvalidateEvent(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(t, store)
	ctx := context.Background()

	c.Set(ctx, "hql:a", []byte("a"), ClassHQL, Deps{GIDs: []int64{123}, EventIDs: []int64{1}})
	c.Set(ctx, "hql:b", []byte("b"), ClassHQL, Deps{GIDs: []int64{123}, EventIDs: []int64{2}})

	c.InvalidateEvent(ctx, 1)

	_, ok := c.Get(ctx, "hql:a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "hql:b")
	assert.True(t, ok)
}

func TestTieredCache_InvalidateGameDropsL2(t *testing.T) {
	store := newFakeStore()
	writer := newTestCache(t, store)
	reader := newTestCache(t, store)
	ctx := context.Background()

	writer.Set(ctx, "hql:a", []byte("a"), ClassHQL, Deps{GIDs: []int64{123}})
	writer.InvalidateGame(ctx, 123)

	_, ok := reader.Get(ctx, "hql:a")
	assert.False(t, ok, "invalidation must reach the shared store")
}

func TestTieredCache_InvalidatePrefix(t *testing.T) {
	store := newFakeStore()
	c := newTestCache(t, store)
	ctx := context.Background()

	c.Set(ctx, StaticPrefix+"games", []byte("games"), ClassStatic, Deps{})
	c.Set(ctx, DynamicPrefix+"events:123", []byte("events"), ClassDynamic, Deps{})

	c.InvalidatePrefix(ctx, StaticPrefix)

	_, ok := c.Get(ctx, StaticPrefix+"games")
	assert.False(t, ok)
	_, ok = c.Get(ctx, DynamicPrefix+"events:123")
	assert.True(t, ok)
}

func TestTieredCache_L1EvictionUnderCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.L1Capacity = 2
	c, err := New(cfg, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	c.Set(ctx, "hql:1", []byte("1"), ClassHQL, Deps{})
	c.Set(ctx, "hql:2", []byte("2"), ClassHQL, Deps{})
	c.Set(ctx, "hql:3", []byte("3"), ClassHQL, Deps{})

	_, ok := c.Get(ctx, "hql:1")
	assert.False(t, ok, "least recently used entry evicts at capacity")
	_, ok = c.Get(ctx, "hql:3")
	assert.True(t, ok)
}

func TestTieredCache_AccessCount(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	c.Set(ctx, "hql:hot", []byte("v"), ClassHQL, Deps{})
	c.Get(ctx, "hql:hot")
	c.Get(ctx, "hql:hot")
	c.Get(ctx, "hql:cold")

	assert.Equal(t, int64(2), c.AccessCount("hql:hot"))
	assert.Equal(t, int64(1), c.AccessCount("hql:cold"))
	assert.Equal(t, int64(0), c.AccessCount("hql:never"))
}
