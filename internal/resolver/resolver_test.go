package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFuzzyMatch(t *testing.T) {
	r := New(80, time.Hour)
	r.SetNames([]string{"Chess", "Checkers", "Portal 2"})

	match := r.Resolve("ches")
	require.NotNil(t, match)
	assert.Equal(t, "Chess", match.Name)
	assert.GreaterOrEqual(t, match.Score, 80)
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := New(80, time.Hour)
	r.SetNames([]string{"Chess"})

	match := r.Resolve("CHESS")
	require.NotNil(t, match)
	assert.Equal(t, "Chess", match.Name)
	assert.Equal(t, 100, match.Score)
}

func TestResolveNoMatch(t *testing.T) {
	r := New(80, time.Hour)
	r.SetNames([]string{"Chess", "Checkers"})

	assert.Nil(t, r.Resolve("Zorknorp"))
}

func TestResolveEmptyInput(t *testing.T) {
	r := New(80, time.Hour)
	r.SetNames([]string{"Chess"})

	assert.Nil(t, r.Resolve(""))
	assert.Nil(t, r.Resolve("   "))
}

func TestResolveEmptySnapshot(t *testing.T) {
	r := New(80, time.Hour)
	assert.Nil(t, r.Resolve("Chess"))
}

func TestResolveTieBreakFirstOccurrence(t *testing.T) {
	// 快照按票数降序排列，同分时先出现的（更热门的）胜出
	r := New(80, time.Hour)
	r.SetNames([]string{"CHESS", "Chess"})

	match := r.Resolve("chess")
	require.NotNil(t, match)
	assert.Equal(t, "CHESS", match.Name)
}

func TestResolveTrimsInput(t *testing.T) {
	r := New(80, time.Hour)
	r.SetNames([]string{"Chess"})

	match := r.Resolve("  chess  ")
	require.NotNil(t, match)
	assert.Equal(t, "Chess", match.Name)
}

func TestStaleAndRefresh(t *testing.T) {
	r := New(80, time.Hour)

	// 从未加载过快照，视为过期
	assert.True(t, r.Stale())

	fetchCalls := 0
	fetch := func() ([]string, error) {
		fetchCalls++
		return []string{"Chess", "Checkers"}, nil
	}

	refreshed, err := r.RefreshIfStale(fetch)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 1, fetchCalls)
	assert.Equal(t, 2, r.Size())

	// 有效期内不再拉取
	refreshed, err = r.RefreshIfStale(fetch)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 1, fetchCalls)
}

func TestRefreshIfStaleFetchError(t *testing.T) {
	r := New(80, time.Hour)

	refreshed, err := r.RefreshIfStale(func() ([]string, error) {
		return nil, assert.AnError
	})
	assert.Error(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 0, r.Size())
}
