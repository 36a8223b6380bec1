package graph

import (
	"context"
	"fmt"

	"github.com/lvdashuaibi/votetracker/internal/model"
	"github.com/lvdashuaibi/votetracker/internal/service"
)

// Resolver GraphQL解析器根对象
type Resolver struct {
	voteService *service.VoteService
}

func NewResolver(voteService *service.VoteService) *Resolver {
	return &Resolver{voteService: voteService}
}

// Leaderboard 完整排行榜
func (r *Resolver) Leaderboard(ctx context.Context) ([]*RankedGameResolver, error) {
	games, err := r.voteService.Leaderboard()
	if err != nil {
		return nil, fmt.Errorf("查询排行榜失败: %w", err)
	}

	resolvers := make([]*RankedGameResolver, len(games))
	for i, game := range games {
		resolvers[i] = &RankedGameResolver{game: game}
	}
	return resolvers, nil
}

// GameVotes 查询单个游戏的票数，游戏不存在返回null
func (r *Resolver) GameVotes(ctx context.Context, args struct{ Name string }) (*int32, error) {
	votes, exists, err := r.voteService.GetGameVotes(args.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	v := int32(votes)
	return &v, nil
}

// GameRank 查询单个游戏的排名，游戏不存在返回null
func (r *Resolver) GameRank(ctx context.Context, args struct{ Name string }) (*RankInfoResolver, error) {
	rank, err := r.voteService.GetRank(args.Name)
	if err != nil {
		return nil, err
	}
	if rank == nil {
		return nil, nil
	}
	return &RankInfoResolver{rank: rank}, nil
}

// SearchGames 子串搜索游戏名
func (r *Resolver) SearchGames(ctx context.Context, args struct {
	Term  string
	Limit *int32
}) ([]string, error) {
	limit := 0
	if args.Limit != nil {
		limit = int(*args.Limit)
	}
	return r.voteService.SearchGames(args.Term, limit)
}

// GameStatistics 单个游戏的投票统计
func (r *Resolver) GameStatistics(ctx context.Context, args struct{ Name string }) (*GameStatisticsResolver, error) {
	stats, err := r.voteService.GetGameStatistics(args.Name)
	if err != nil {
		return nil, fmt.Errorf("查询游戏统计失败: %w", err)
	}
	return &GameStatisticsResolver{stats: stats}, nil
}

// GlobalStatistics 全局投票统计
func (r *Resolver) GlobalStatistics(ctx context.Context) (*GlobalStatisticsResolver, error) {
	stats, err := r.voteService.GetGlobalStatistics()
	if err != nil {
		return nil, fmt.Errorf("查询全局统计失败: %w", err)
	}
	return &GlobalStatisticsResolver{stats: stats}, nil
}

// ManualVote 手动录入投票
func (r *Resolver) ManualVote(ctx context.Context, args struct {
	Name  string
	Votes int32
}) (*ManualVoteResponseResolver, error) {
	result, err := r.voteService.ManualVote(args.Name, int(args.Votes))
	if err != nil {
		return &ManualVoteResponseResolver{
			success: false,
			message: err.Error(),
			result:  &model.ApplyResult{},
		}, nil
	}

	return &ManualVoteResponseResolver{
		success: true,
		message: fmt.Sprintf("游戏 %s 当前 %d 票", result.GameName, result.Votes),
		result:  result,
	}, nil
}

// RankedGameResolver 排行榜行解析器
type RankedGameResolver struct {
	game *model.RankedGame
}

func (r *RankedGameResolver) Rank() int32 {
	return int32(r.game.Rank)
}

func (r *RankedGameResolver) Name() string {
	return r.game.Name
}

func (r *RankedGameResolver) Votes() int32 {
	return int32(r.game.Votes)
}

// RankInfoResolver 排名信息解析器
type RankInfoResolver struct {
	rank *model.RankInfo
}

func (r *RankInfoResolver) Rank() int32 {
	return int32(r.rank.Rank)
}

func (r *RankInfoResolver) Votes() int32 {
	return int32(r.rank.Votes)
}

func (r *RankInfoResolver) TotalGames() int32 {
	return int32(r.rank.TotalGames)
}

// GameStatisticsResolver 游戏统计解析器
type GameStatisticsResolver struct {
	stats *model.GameStatistics
}

func (r *GameStatisticsResolver) GameName() string {
	return r.stats.GameName
}

func (r *GameStatisticsResolver) VoteCount() int32 {
	return int32(r.stats.VoteCount)
}

func (r *GameStatisticsResolver) TotalVotes() int32 {
	return int32(r.stats.TotalVotes)
}

func (r *GameStatisticsResolver) UniqueVoters() int32 {
	return int32(r.stats.UniqueVoters)
}

func (r *GameStatisticsResolver) FirstVote() *string {
	if r.stats.FirstVote == nil {
		return nil
	}
	s := r.stats.FirstVote.Format("2006-01-02 15:04:05")
	return &s
}

func (r *GameStatisticsResolver) LastVote() *string {
	if r.stats.LastVote == nil {
		return nil
	}
	s := r.stats.LastVote.Format("2006-01-02 15:04:05")
	return &s
}

// GlobalStatisticsResolver 全局统计解析器
type GlobalStatisticsResolver struct {
	stats *model.GlobalStatistics
}

func (r *GlobalStatisticsResolver) TotalVotes() int32 {
	return int32(r.stats.TotalVotes)
}

func (r *GlobalStatisticsResolver) UniqueGames() int32 {
	return int32(r.stats.UniqueGames)
}

func (r *GlobalStatisticsResolver) UniqueVoters() int32 {
	return int32(r.stats.UniqueVoters)
}

// ManualVoteResponseResolver 手动投票结果解析器
type ManualVoteResponseResolver struct {
	success bool
	message string
	result  *model.ApplyResult
}

func (r *ManualVoteResponseResolver) Success() bool {
	return r.success
}

func (r *ManualVoteResponseResolver) Message() string {
	return r.message
}

func (r *ManualVoteResponseResolver) GameName() string {
	return r.result.GameName
}

func (r *ManualVoteResponseResolver) Votes() int32 {
	return int32(r.result.Votes)
}

func (r *ManualVoteResponseResolver) IsNew() bool {
	return r.result.IsNew
}
