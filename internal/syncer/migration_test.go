package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votetracker/internal/model"
)

func TestMigrationSkipsWhenIdentityMatches(t *testing.T) {
	store := newFakeSyncStore()
	store.games["Chess"] = 10
	store.status.SpreadsheetID = "sheet-1"
	m := &fakeMirror{identity: "sheet-1", rows: []model.MirrorRow{{Votes: 99, Name: "Doom"}}}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool {
		t.Fatal("不应向操作者征求确认")
		return false
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Chess": 10}, store.games)
	assert.False(t, store.resetCalled)
}

func TestMigrationSkipsWhenNoIdentityRecorded(t *testing.T) {
	store := newFakeSyncStore()
	store.games["Chess"] = 10
	m := &fakeMirror{identity: "sheet-1"}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Chess": 10}, store.games)
}

func TestMigrationImportsIntoEmptyStore(t *testing.T) {
	store := newFakeSyncStore()
	m := &fakeMirror{
		identity: "sheet-1",
		rows: []model.MirrorRow{
			{Votes: 10, Name: "Chess"},
			{Votes: 5, Name: "Checkers"},
		},
	}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return false })
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Chess": 10, "Checkers": 5}, store.games)
	assert.Equal(t, "sheet-1", store.status.SpreadsheetID)

	games, err := store.ListAllSorted()
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(rankedToRows(games)), store.status.SpreadsheetHash)
}

func TestMigrationDuplicatesFirstRowWins(t *testing.T) {
	store := newFakeSyncStore()
	m := &fakeMirror{
		identity: "sheet-1",
		rows: []model.MirrorRow{
			{Votes: 10, Name: "Chess"},
			{Votes: 3, Name: "Chess"},
			{Votes: 0, Name: ""},
			{Votes: 5, Name: "Checkers"},
		},
	}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return false })
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Chess": 10, "Checkers": 5}, store.games)
}

func TestMigrationEmptyMirrorRecordsIdentity(t *testing.T) {
	store := newFakeSyncStore()
	m := &fakeMirror{identity: "sheet-1"}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return false })
	require.NoError(t, err)

	assert.Empty(t, store.games)
	assert.Equal(t, "sheet-1", store.status.SpreadsheetID)
	assert.Equal(t, "", store.status.SpreadsheetHash)
}

func TestMigrationMismatchRefusedBlocksPushes(t *testing.T) {
	store := newFakeSyncStore()
	store.games["Chess"] = 10
	store.pending = 1
	store.status.SpreadsheetID = "sheet-old"
	m := &fakeMirror{identity: "sheet-new", rows: []model.MirrorRow{{Votes: 99, Name: "Doom"}}}
	w := newTestWorker(store, m)

	prompted := false
	err := w.RunStartupMigration(context.Background(), func(prompt string) bool {
		prompted = true
		assert.Contains(t, prompt, "sheet-old")
		assert.Contains(t, prompt, "sheet-new")
		return false
	})
	require.NoError(t, err)
	assert.True(t, prompted)

	// 本地数据保留，但推送被阻断
	assert.Equal(t, map[string]int{"Chess": 10}, store.games)
	assert.False(t, store.resetCalled)

	var unsafe *ErrUnsafe
	require.ErrorAs(t, w.SyncOnce(context.Background()), &unsafe)
	assert.Empty(t, m.written)
}

func TestMigrationMismatchConfirmedReimports(t *testing.T) {
	store := newFakeSyncStore()
	store.games["Chess"] = 10
	store.status.SpreadsheetID = "sheet-old"
	m := &fakeMirror{
		identity: "sheet-new",
		rows:     []model.MirrorRow{{Votes: 42, Name: "Doom"}},
	}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return true })
	require.NoError(t, err)

	assert.True(t, store.resetCalled)
	assert.Equal(t, map[string]int{"Doom": 42}, store.games)
	assert.Equal(t, "sheet-new", store.status.SpreadsheetID)
}

func TestMigrationMirrorReadError(t *testing.T) {
	store := newFakeSyncStore()
	m := &fakeMirror{identity: "sheet-1", readErr: assert.AnError}
	w := newTestWorker(store, m)

	err := w.RunStartupMigration(context.Background(), func(string) bool { return false })
	require.Error(t, err)
}
