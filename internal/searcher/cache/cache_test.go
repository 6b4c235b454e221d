package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
	gets atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var (
	fp      = "3f5a0c1e9b7d2468aa55ffee00112233"
	genesis = corpus.Locator{Group: 1, Subgroup: 1, Position: 1}
	sample  = []resolver.Match{
		{Name: "Genesis", Group: 1, Subgroup: 1, Position: 2, Text: "And the earth", Score: 0.5, Row: 1},
		{Name: "John", Group: 43, Subgroup: 1, Position: 1, Text: "In the beginning", Score: 0.25, Row: 9},
	}
)

func testConfig() config.RedisConfig {
	return config.RedisConfig{CacheTTL: time.Minute, Timeout: time.Second}
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := New(store, testConfig())

	var calls int
	compute := func() ([]resolver.Match, error) { calls++; return sample, nil }

	got, hit, err := c.GetOrCompute(context.Background(), fp, genesis, 2, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample, got)

	got, hit, err = c.GetOrCompute(context.Background(), fp, genesis, 2, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, calls)

	assert.Equal(t, time.Minute, store.ttls[Key(fp, genesis, 2)])

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate(), 1e-9)
}

func TestComputeErrorNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, testConfig())
	notFound := apperrors.NotFound("no document at %s", genesis)

	_, _, err := c.GetOrCompute(context.Background(), fp, genesis, 2, func() ([]resolver.Match, error) {
		return nil, notFound
	})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	assert.Empty(t, store.data)
}

func TestKeysSeparateFingerprintsAndQueries(t *testing.T) {
	keys := map[string]bool{}
	for _, k := range []string{
		Key(fp, genesis, 2),
		Key("ffffffffffffffffffff", genesis, 2),
		Key(fp, genesis, 3),
		Key(fp, corpus.Locator{Group: 1, Subgroup: 1, Position: 2}, 2),
	} {
		keys[k] = true
	}
	assert.Len(t, keys, 4)
	assert.Equal(t, "verse:similar:3f5a0c1e9b7d2468:1:1:1:2", Key(fp, genesis, 2))
}

func TestStoreFailureDegrades(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, testConfig())

	calls := 0
	for i := 0; i < 8; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), fp, genesis, 2, func() ([]resolver.Match, error) {
			calls++
			return sample, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, sample, got)
	}
	assert.Equal(t, 8, calls)

	stats := c.Stats()
	assert.Positive(t, stats.Errors)
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	assert.Positive(t, stats.Breaker.Rejected)
	// Once open, the store is no longer contacted.
	assert.Less(t, int(store.gets.Load()), 8)
}

func TestMissesDoNotTripBreaker(t *testing.T) {
	c := New(newMemStore(), testConfig())
	for i := 0; i < 20; i++ {
		_, ok := c.Get(context.Background(), fp, corpus.Locator{Group: 2, Subgroup: 1, Position: i}, 1)
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
	assert.Zero(t, c.Stats().Errors)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	store := newMemStore()
	store.data[Key(fp, genesis, 2)] = []byte("{not json")
	c := New(store, testConfig())
	_, ok := c.Get(context.Background(), fp, genesis, 2)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestSingleflight(t *testing.T) {
	c := New(newMemStore(), testConfig())
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(context.Background(), fp, genesis, 2, func() ([]resolver.Match, error) {
				calls.Add(1)
				<-release
				return sample, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, sample, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(10))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["unrelated"] = []byte("x")
	c := New(store, testConfig())
	c.Set(context.Background(), fp, genesis, 2, sample)
	c.Set(context.Background(), fp, genesis, 3, sample)

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, store.data, 1)
}
