package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
)

func TestMutexTryLockAndUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	lock := NewMutex(client, "monitor-run", logging.NewNopLogger())

	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lock.Unlock(ctx))
}

func TestMutexExcludesSecondOwner(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := NewMutex(client, "monitor-run", logging.NewNopLogger())
	second := NewMutex(client, "monitor-run", logging.NewNopLogger())

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock must refuse a second owner")

	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "released lock is acquirable again")
}

func TestMutexLockRetriesThenGivesUp(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	holder := NewMutex(client, "monitor-run", logging.NewNopLogger())
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	contender := NewMutex(client, "monitor-run", logging.NewNopLogger(),
		WithRetryCount(3), WithRetryDelay(time.Millisecond))
	err = contender.Lock(ctx)
	assert.Equal(t, ErrLockNotAcquired, err)
}

func TestMutexUnlockByNonOwnerFails(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	owner := NewMutex(client, "monitor-run", logging.NewNopLogger())
	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	imposter := NewMutex(client, "monitor-run", logging.NewNopLogger())
	err = imposter.Unlock(ctx)
	assert.Equal(t, ErrLockNotHeld, err)

	// The owner still holds the lock.
	require.NoError(t, owner.Unlock(ctx))
}

func TestMutexExtend(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	lock := NewMutex(client, "monitor-run", logging.NewNopLogger(),
		WithLockTTL(time.Second))
	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	ttl, err := lock.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Second)

	// After expiry an extend attempt no longer owns the key.
	mr.FastForward(2 * time.Minute)
	extended, err = lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestMutexLockRespectsContext(t *testing.T) {
	client, _ := newTestClient(t)

	holder := NewMutex(client, "monitor-run", logging.NewNopLogger())
	ok, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	contender := NewMutex(client, "monitor-run", logging.NewNopLogger(),
		WithRetryCount(100), WithRetryDelay(10*time.Millisecond))
	err = contender.Lock(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
