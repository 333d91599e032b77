package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

type cachedSummary struct {
	Score float64 `json:"score"`
	Name  string  `json:"name"`
}

func newTestCache(t *testing.T, opts ...CacheOption) Cache {
	t.Helper()
	client, _ := newTestClient(t)
	return NewRedisCache(client, logging.NewNopLogger(), opts...)
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	want := cachedSummary{Score: 82.5, Name: "austin-east"}
	require.NoError(t, cache.Set(ctx, "infra:austin-east", want, time.Minute))

	var got cachedSummary
	require.NoError(t, cache.Get(ctx, "infra:austin-east", &got))
	assert.Equal(t, want, got)
}

func TestCacheGetMiss(t *testing.T) {
	cache := newTestCache(t)

	var got cachedSummary
	err := cache.Get(context.Background(), "absent", &got)
	assert.Equal(t, ErrCacheMiss, err)
}

func TestCacheNullMarkerReadsAsMiss(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewRedisCache(client, logging.NewNopLogger())

	require.NoError(t, mr.Set("terrasight:empty", nullValue))

	var got cachedSummary
	err := cache.Get(context.Background(), "empty", &got)
	assert.Equal(t, ErrCacheMiss, err)
}

func TestCacheDeleteAndExists(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, cache.Set(ctx, "k2", "v2", time.Minute))

	exists, err := cache.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, "k1", "k2"))

	exists, err = cache.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetOrSetLoadsOnMissAndCaches(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return &cachedSummary{Score: 60, Name: "loaded"}, nil
	}

	var first cachedSummary
	require.NoError(t, cache.GetOrSet(ctx, "region:x", &first, time.Minute, loader))
	assert.Equal(t, "loaded", first.Name)

	var second cachedSummary
	require.NoError(t, cache.GetOrSet(ctx, "region:x", &second, time.Minute, loader))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second call must be served from cache")
}

func TestGetOrSetNilLoadBecomesMiss(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, nil
	}

	var got cachedSummary
	err := cache.GetOrSet(ctx, "no-data", &got, time.Minute, loader)
	assert.Equal(t, ErrCacheMiss, err)

	// The null marker short-circuits the next lookup without re-running
	// the loader.
	var second cachedSummary
	err = cache.GetOrSet(ctx, "no-data", &second, time.Minute, loader)
	assert.Equal(t, ErrCacheMiss, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrSetPropagatesLoaderError(t *testing.T) {
	cache := newTestCache(t)

	loader := func(ctx context.Context) (interface{}, error) { return nil, assert.AnError }

	var got cachedSummary
	err := cache.GetOrSet(context.Background(), "failing", &got, time.Minute, loader)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetOrSetConcurrentCallersShareOneLoad(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &cachedSummary{Score: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got cachedSummary
			assert.NoError(t, cache.GetOrSet(ctx, "shared", &got, time.Minute, loader))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteByPrefix(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "market:a", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "market:b", 2, time.Minute))
	require.NoError(t, cache.Set(ctx, "infra:a", 3, time.Minute))

	require.NoError(t, cache.DeleteByPrefix(ctx, "market:"))

	exists, err := cache.Exists(ctx, "market:a")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = cache.Exists(ctx, "infra:a")
	require.NoError(t, err)
	assert.True(t, exists, "other namespaces survive the prefix delete")
}

func TestJitterTTLStaysWithinTenPercent(t *testing.T) {
	base := 10 * time.Minute
	for i := 0; i < 100; i++ {
		got := jitterTTL(base)
		assert.GreaterOrEqual(t, got, 9*time.Minute)
		assert.LessOrEqual(t, got, 11*time.Minute)
	}
	assert.Equal(t, time.Duration(0), jitterTTL(0))
}
