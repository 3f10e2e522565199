package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestRedis_SetNXAndCompareDelete(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "lock:archive:2026-09", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "lock:archive:2026-09", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := client.DeleteIfValue(ctx, "lock:archive:2026-09", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted, "foreign owner must not release the lock")
	assert.True(t, mr.Exists("lock:archive:2026-09"))

	deleted, err = client.DeleteIfValue(ctx, "lock:archive:2026-09", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock:archive:2026-09"))
}

func TestRedis_IncrExpire(t *testing.T) {
	client, mr := newTestRedis(t)
	ctx := context.Background()

	n, err := client.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, client.Expire(ctx, "counter", time.Second))
	mr.FastForward(2 * time.Second)

	_, err = client.Get(ctx, "counter")
	assert.Error(t, err)
}

func TestNewRedis_Unreachable(t *testing.T) {
	_, err := NewRedis("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
