package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	t.Cleanup(func() {
		client.Close()
	})
	l, err := NewRedis(client, "billing:run:", time.Hour)
	require.NoError(t, err)
	return l, mr
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	release, err := l.Acquire(ctx, "2025-01-10")
	require.NoError(t, err)
	assert.True(t, mr.Exists("billing:run:2025-01-10"))

	_, err = l.Acquire(ctx, "2025-01-10")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.Acquire(ctx, "2025-01-11")
	require.NoError(t, err)
	other()

	release()
	assert.False(t, mr.Exists("billing:run:2025-01-10"))

	again, err := l.Acquire(ctx, "2025-01-10")
	require.NoError(t, err)
	again()
}

func TestRedisLockExpires(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	_, err := l.Acquire(ctx, "day")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	release, err := l.Acquire(ctx, "day")
	require.NoError(t, err)
	release()
}

func TestRedisLockReleaseKeepsForeignHolder(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLock(t)

	stale, err := l.Acquire(ctx, "day")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	fresh, err := l.Acquire(ctx, "day")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("billing:run:day"), "stale release must not drop the new holder's lock")
	fresh()
}

func TestNewRedisValidation(t *testing.T) {
	_, err := NewRedis(nil, "", time.Second)
	require.Error(t, err)
}
