package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvdashuaibi/votetracker/internal/model"
)

func TestIsHeaderRow(t *testing.T) {
	assert.True(t, isHeaderRow([]interface{}{"Votes", "Game"}))
	assert.False(t, isHeaderRow([]interface{}{"10", "Chess"}))
	assert.False(t, isHeaderRow([]interface{}{42, "Chess"}))
	assert.False(t, isHeaderRow([]interface{}{}))
	assert.False(t, isHeaderRow([]interface{}{"  "}))
}

func TestHeaderMatches(t *testing.T) {
	assert.True(t, headerMatches([]interface{}{"Votes", "Game"}))
	assert.True(t, headerMatches([]interface{}{"votes", "game"}))
	assert.True(t, headerMatches([]interface{}{" Votes ", " Game "}))
	assert.False(t, headerMatches([]interface{}{"Game", "Votes"}))
	assert.False(t, headerMatches([]interface{}{"Votes"}))
}

func TestParseRow(t *testing.T) {
	row, ok := parseRow([]interface{}{"10", "Chess"})
	assert.True(t, ok)
	assert.Equal(t, model.MirrorRow{Votes: 10, Name: "Chess"}, row)

	// 票数解析失败按0处理
	row, ok = parseRow([]interface{}{"abc", "Chess"})
	assert.True(t, ok)
	assert.Equal(t, model.MirrorRow{Votes: 0, Name: "Chess"}, row)

	// 名字为空的行丢弃
	_, ok = parseRow([]interface{}{"10", "  "})
	assert.False(t, ok)

	_, ok = parseRow([]interface{}{"10"})
	assert.False(t, ok)
}
