package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedLock(t *testing.T, nodes int) *RedLock {
	t.Helper()

	var clients []*redis.Client
	for i := 0; i < nodes; i++ {
		mr := miniredis.RunT(t)
		clients = append(clients, redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	}

	r := &RedLock{
		clients:     clients,
		ctx:         context.Background(),
		locks:       make(map[string]string),
		clusterSize: len(clients),
	}
	t.Cleanup(func() { r.Close() })

	return r
}

func TestRedLockAcquireAndRelease(t *testing.T) {
	r := newTestRedLock(t, 3)

	ok, err := r.AcquireLock("test-lock", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.ReleaseLock("test-lock"))

	// 释放后可以重新获取
	ok, err = r.AcquireLock("test-lock", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedLockDoubleAcquireSameInstance(t *testing.T) {
	r := newTestRedLock(t, 3)

	ok, err := r.AcquireLock("test-lock", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.AcquireLock("test-lock", 10*time.Second)
	assert.Error(t, err)
}

func TestRedLockRefresh(t *testing.T) {
	r := newTestRedLock(t, 3)

	ok, err := r.AcquireLock("test-lock", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.RefreshLock("test-lock", 20*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedLockRefreshUnheld(t *testing.T) {
	r := newTestRedLock(t, 3)

	_, err := r.RefreshLock("never-acquired", time.Second)
	assert.Error(t, err)
}

func TestRedLockReleaseUnheld(t *testing.T) {
	r := newTestRedLock(t, 3)
	assert.Error(t, r.ReleaseLock("never-acquired"))
}

func TestRedLockReleaseAllLocks(t *testing.T) {
	r := newTestRedLock(t, 3)

	for _, name := range []string{"lock-a", "lock-b"} {
		ok, err := r.AcquireLock(name, 10*time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}

	r.ReleaseAllLocks()

	ok, err := r.AcquireLock("lock-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
