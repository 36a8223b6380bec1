package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLock 记录刷新调用的Lock桩
type countingLock struct {
	mu           sync.Mutex
	refreshCalls int
	refreshOK    bool
	lastTTL      time.Duration
}

func (l *countingLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshCalls++
	l.lastTTL = timeout
	return l.refreshOK, nil
}

func (l *countingLock) ReleaseLock(lockName string) error { return nil }
func (l *countingLock) ReleaseAllLocks()                  {}
func (l *countingLock) Close() error                      { return nil }

func (l *countingLock) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshCalls
}

func TestKeepRefreshedRefreshesPeriodically(t *testing.T) {
	cl := &countingLock{refreshOK: true}

	stop := KeepRefreshed(cl, "leader", 30*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool {
		return cl.calls() >= 3
	}, time.Second, 5*time.Millisecond)

	cl.mu.Lock()
	assert.Equal(t, 30*time.Millisecond, cl.lastTTL)
	cl.mu.Unlock()
}

func TestKeepRefreshedStopsOnLostLock(t *testing.T) {
	cl := &countingLock{refreshOK: false}

	stop := KeepRefreshed(cl, "leader", 30*time.Millisecond)

	// 第一次刷新失败后循环退出，不再继续调用
	require.Eventually(t, func() bool {
		return cl.calls() >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, cl.calls())

	stop()
}

func TestKeepRefreshedStopIdempotent(t *testing.T) {
	cl := &countingLock{refreshOK: true}

	stop := KeepRefreshed(cl, "leader", time.Hour)
	stop()
	stop()
}
