package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
	"github.com/lvdashuaibi/votetracker/internal/resolver"
)

// fakeGameStore 内存版权威存储
type fakeGameStore struct {
	games      map[string]int
	history    []model.VoteRecord
	applyErr   error
	votesCalls int
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{games: make(map[string]int)}
}

func (s *fakeGameStore) ApplyVote(gameName string, weight int, userName string, kind model.VoteKind) (*model.ApplyResult, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}

	_, exists := s.games[gameName]
	s.games[gameName] += weight
	if userName != "" {
		s.history = append(s.history, model.VoteRecord{
			GameName: gameName,
			UserName: userName,
			Kind:     kind,
			Weight:   weight,
		})
	}

	return &model.ApplyResult{
		GameName: gameName,
		Votes:    s.games[gameName],
		IsNew:    !exists,
		Weight:   weight,
	}, nil
}

func (s *fakeGameStore) GetGameVotes(gameName string) (int, bool, error) {
	s.votesCalls++
	votes, ok := s.games[gameName]
	return votes, ok, nil
}

func (s *fakeGameStore) GetRank(gameName string) (*model.RankInfo, error) {
	votes, ok := s.games[gameName]
	if !ok {
		return nil, nil
	}

	rank := 1
	for name, v := range s.games {
		if v > votes || (v == votes && name < gameName) {
			rank++
		}
	}
	return &model.RankInfo{Rank: rank, Votes: votes, TotalGames: len(s.games)}, nil
}

func (s *fakeGameStore) ListAllSorted() ([]*model.RankedGame, error) {
	names, _ := s.GetGameNames()
	games := make([]*model.RankedGame, len(names))
	for i, name := range names {
		games[i] = &model.RankedGame{Rank: i + 1, Name: name, Votes: s.games[name]}
	}
	return games, nil
}

func (s *fakeGameStore) GetGameNames() ([]string, error) {
	names := make([]string, 0, len(s.games))
	for name := range s.games {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.games[names[i]] != s.games[names[j]] {
			return s.games[names[i]] > s.games[names[j]]
		}
		return names[i] < names[j]
	})
	return names, nil
}

func (s *fakeGameStore) SearchGames(term string, limit int) ([]string, error) {
	return nil, nil
}

func (s *fakeGameStore) GetGameStatistics(gameName string) (*model.GameStatistics, error) {
	stats := &model.GameStatistics{GameName: gameName}
	voters := make(map[string]struct{})
	for _, rec := range s.history {
		if rec.GameName != gameName {
			continue
		}
		stats.VoteCount++
		stats.TotalVotes += rec.Weight
		voters[rec.UserName] = struct{}{}
	}
	stats.UniqueVoters = len(voters)
	return stats, nil
}

func (s *fakeGameStore) GetGlobalStatistics() (*model.GlobalStatistics, error) {
	games := make(map[string]struct{})
	voters := make(map[string]struct{})
	stats := &model.GlobalStatistics{}
	for _, rec := range s.history {
		stats.TotalVotes++
		games[rec.GameName] = struct{}{}
		voters[rec.UserName] = struct{}{}
	}
	stats.UniqueGames = len(games)
	stats.UniqueVoters = len(voters)
	return stats, nil
}

// fakeRankCache 内存版读缓存
type fakeRankCache struct {
	votes       map[string]int
	ranks       map[string]*model.RankInfo
	invalidated []string
}

func newFakeRankCache() *fakeRankCache {
	return &fakeRankCache{
		votes: make(map[string]int),
		ranks: make(map[string]*model.RankInfo),
	}
}

func (c *fakeRankCache) GetGameVotes(gameName string) (int, bool, error) {
	votes, ok := c.votes[gameName]
	return votes, ok, nil
}

func (c *fakeRankCache) SetGameVotes(gameName string, votes int) error {
	c.votes[gameName] = votes
	return nil
}

func (c *fakeRankCache) GetGameRank(gameName string) (*model.RankInfo, bool, error) {
	rank, ok := c.ranks[gameName]
	return rank, ok, nil
}

func (c *fakeRankCache) SetGameRank(gameName string, rank *model.RankInfo) error {
	c.ranks[gameName] = rank
	return nil
}

func (c *fakeRankCache) InvalidateGame(gameName string) error {
	delete(c.votes, gameName)
	delete(c.ranks, gameName)
	c.invalidated = append(c.invalidated, gameName)
	return nil
}

type fakeFulfiller struct {
	fulfilled []string
	err       error
}

func (f *fakeFulfiller) FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error {
	if f.err != nil {
		return f.err
	}
	f.fulfilled = append(f.fulfilled, redemptionID)
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) SendChatMessage(ctx context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

type fakeProcessed struct {
	ids []string
}

func (p *fakeProcessed) Contains(id string) bool {
	for _, known := range p.ids {
		if known == id {
			return true
		}
	}
	return false
}

func (p *fakeProcessed) Add(id string) error {
	p.ids = append(p.ids, id)
	return nil
}

type fakeInaccurate struct {
	records []string
}

func (i *fakeInaccurate) Record(user, rawText string) error {
	i.records = append(i.records, user+":"+rawText)
	return nil
}

type serviceFixture struct {
	service    *VoteService
	store      *fakeGameStore
	cache      *fakeRankCache
	fulfiller  *fakeFulfiller
	notifier   *fakeNotifier
	processed  *fakeProcessed
	inaccurate *fakeInaccurate
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	config.AppConfig.Vote.NormalWeight = 1
	config.AppConfig.Vote.SuperWeight = 10
	config.AppConfig.Vote.UltraWeight = 25
	config.AppConfig.Twitch.Username = "operator"

	f := &serviceFixture{
		store:      newFakeGameStore(),
		cache:      newFakeRankCache(),
		fulfiller:  &fakeFulfiller{},
		notifier:   &fakeNotifier{},
		processed:  &fakeProcessed{},
		inaccurate: &fakeInaccurate{},
	}
	f.service = NewVoteService(
		f.store, f.cache,
		resolver.New(80, time.Hour),
		f.fulfiller, f.notifier, f.processed, f.inaccurate,
	)
	return f
}

func intent(id, user, rawText string, kind model.VoteKind) *model.VoteIntent {
	return &model.VoteIntent{
		EventID:  id,
		RewardID: "reward-1",
		User:     user,
		RawText:  rawText,
		Kind:     kind,
		SeenAt:   time.Now(),
	}
}

func TestProcessVoteIntentNewGame(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.ProcessVoteIntent(intent("evt-1", "alice", "Chess", model.VoteKindNormal))
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.games["Chess"])
	assert.Equal(t, []string{"evt-1"}, f.fulfiller.fulfilled)
	assert.Equal(t, []string{"evt-1"}, f.processed.ids)
	assert.Contains(t, f.cache.invalidated, "Chess")

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Chess")
	assert.Contains(t, f.notifier.messages[0], "alice")
}

func TestProcessVoteIntentReplayedEventNotCounted(t *testing.T) {
	f := newServiceFixture(t)

	first := intent("evt-1", "alice", "Chess", model.VoteKindNormal)
	require.NoError(t, f.service.ProcessVoteIntent(first))
	require.Equal(t, 1, f.store.games["Chess"])

	// 进程重启后队列从头重放：同一事件再次到达，票数不得变化
	replay := intent("evt-1", "alice", "Chess", model.VoteKindNormal)
	require.NoError(t, f.service.ProcessVoteIntent(replay))

	assert.Equal(t, 1, f.store.games["Chess"])
	assert.Len(t, f.store.history, 1)
	assert.Equal(t, []string{"evt-1"}, f.fulfiller.fulfilled)
	assert.Equal(t, []string{"evt-1"}, f.processed.ids)
}

func TestProcessVoteIntentAlreadyProcessedSkipped(t *testing.T) {
	f := newServiceFixture(t)
	f.processed.ids = []string{"evt-1"}

	err := f.service.ProcessVoteIntent(intent("evt-1", "alice", "Chess", model.VoteKindNormal))
	require.NoError(t, err)

	assert.Empty(t, f.store.games)
	assert.Empty(t, f.fulfiller.fulfilled)
	assert.Empty(t, f.notifier.messages)
}

func TestProcessVoteIntentFuzzyMatchAccumulates(t *testing.T) {
	f := newServiceFixture(t)
	f.store.games["Chess"] = 1

	err := f.service.ProcessVoteIntent(intent("evt-2", "bob", "chess", model.VoteKindSuper))
	require.NoError(t, err)

	assert.Equal(t, 11, f.store.games["Chess"])
	require.Len(t, f.store.history, 1)
	assert.Equal(t, model.VoteKindSuper, f.store.history[0].Kind)
	assert.Equal(t, 10, f.store.history[0].Weight)
}

func TestProcessVoteIntentNoMatchCreatesNewGame(t *testing.T) {
	f := newServiceFixture(t)
	f.store.games["Chess"] = 5

	err := f.service.ProcessVoteIntent(intent("evt-3", "carol", "  Zorknorp ", model.VoteKindUltra))
	require.NoError(t, err)

	assert.Equal(t, 25, f.store.games["Zorknorp"])
	assert.Equal(t, 5, f.store.games["Chess"])
	assert.Empty(t, f.inaccurate.records)
}

func TestProcessVoteIntentUnknownKind(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.ProcessVoteIntent(intent("evt-4", "dave", "Chess", model.VoteKind("mystery")))
	require.NoError(t, err)

	// 不计票，但事件被确认且记录为无效输入
	assert.Empty(t, f.store.games)
	assert.Equal(t, []string{"dave:Chess"}, f.inaccurate.records)
	assert.Equal(t, []string{"evt-4"}, f.fulfiller.fulfilled)
	assert.Equal(t, []string{"evt-4"}, f.processed.ids)
}

func TestProcessVoteIntentEmptyInputFulfilledNotCounted(t *testing.T) {
	f := newServiceFixture(t)

	err := f.service.ProcessVoteIntent(intent("evt-7", "alice", "   ", model.VoteKindNormal))
	require.NoError(t, err)

	// 不计票，但事件被确认，不会在源头反复重投
	assert.Empty(t, f.store.games)
	assert.Equal(t, []string{"alice:   "}, f.inaccurate.records)
	assert.Equal(t, []string{"evt-7"}, f.fulfiller.fulfilled)
	assert.Equal(t, []string{"evt-7"}, f.processed.ids)
}

func TestProcessVoteIntentFulfillFailureNotRemembered(t *testing.T) {
	f := newServiceFixture(t)
	f.fulfiller.err = errors.New("helix unavailable")

	err := f.service.ProcessVoteIntent(intent("evt-5", "alice", "Chess", model.VoteKindNormal))
	require.NoError(t, err)

	// 票已计入，但确认失败时不记录事件ID，等事件源重投后由去重拦截
	assert.Equal(t, 1, f.store.games["Chess"])
	assert.Empty(t, f.processed.ids)
}

func TestProcessVoteIntentStoreError(t *testing.T) {
	f := newServiceFixture(t)
	f.store.applyErr = errors.New("connection lost")

	err := f.service.ProcessVoteIntent(intent("evt-6", "alice", "Chess", model.VoteKindNormal))
	require.Error(t, err)
	assert.Empty(t, f.fulfiller.fulfilled)
	assert.Empty(t, f.processed.ids)
}

func TestManualVote(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.service.ManualVote("Chess", 7)
	require.NoError(t, err)
	assert.Equal(t, "Chess", result.GameName)
	assert.Equal(t, 7, result.Votes)
	assert.True(t, result.IsNew)

	require.Len(t, f.store.history, 1)
	assert.Equal(t, model.VoteKindManual, f.store.history[0].Kind)
	assert.Equal(t, "operator", f.store.history[0].UserName)
}

func TestManualVoteRejectsNonPositive(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.ManualVote("Chess", 0)
	require.Error(t, err)
	_, err = f.service.ManualVote("Chess", -3)
	require.Error(t, err)
	assert.Empty(t, f.store.games)
}

func TestManualVoteFuzzyMatch(t *testing.T) {
	f := newServiceFixture(t)
	f.store.games["Chess"] = 2

	result, err := f.service.ManualVote("ches", 3)
	require.NoError(t, err)
	assert.Equal(t, "Chess", result.GameName)
	assert.Equal(t, 5, result.Votes)
}

func TestGetGameVotesCacheMissThenHit(t *testing.T) {
	f := newServiceFixture(t)
	f.store.games["Chess"] = 9

	votes, exists, err := f.service.GetGameVotes("Chess")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 9, votes)
	assert.Equal(t, 1, f.store.votesCalls)

	// 第二次命中缓存，不再读存储
	votes, exists, err = f.service.GetGameVotes("Chess")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 9, votes)
	assert.Equal(t, 1, f.store.votesCalls)
}

func TestGetGameVotesMissing(t *testing.T) {
	f := newServiceFixture(t)

	_, exists, err := f.service.GetGameVotes("Nothing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetRankCached(t *testing.T) {
	f := newServiceFixture(t)
	f.store.games["Chess"] = 10
	f.store.games["Checkers"] = 5

	rank, err := f.service.GetRank("Checkers")
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, 2, rank.Rank)
	assert.Equal(t, 2, rank.TotalGames)

	cached, found, err := f.cache.GetGameRank("Checkers")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, rank, cached)
}
