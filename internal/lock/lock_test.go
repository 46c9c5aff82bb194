package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hera/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*miniredis.Miniredis, *Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLocker(client)
}

func TestTryLockIsExclusive(t *testing.T) {
	_, locker := newTestLocker(t)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "posting:daily:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "posting:daily:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "posting:daily:1", token))

	_, ok, err = locker.TryLock(ctx, "posting:daily:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseIgnoresForeignToken(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "posting:daily:2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locker.Release(ctx, "posting:daily:2", "someone-else"))
	assert.True(t, mr.Exists("posting:daily:2"))
}

func TestLeaseExpires(t *testing.T) {
	mr, locker := newTestLocker(t)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "posting:daily:3", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "posting:daily:3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLockValidation(t *testing.T) {
	_, locker := newTestLocker(t)
	ctx := context.Background()

	_, _, err := locker.TryLock(ctx, " ", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, _, err = locker.TryLock(ctx, "k", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestNilLocker(t *testing.T) {
	assert.Nil(t, NewRedisClient(config.Config{}))

	var locker *Locker = NewLocker(nil)
	assert.False(t, locker.Enabled())

	_, _, err := locker.TryLock(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "k", "t"))
}
