package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
	"github.com/lvdashuaibi/votetracker/internal/resolver"
)

// GameStore 投票服务需要的权威存储操作
type GameStore interface {
	ApplyVote(gameName string, weight int, userName string, kind model.VoteKind) (*model.ApplyResult, error)
	GetGameVotes(gameName string) (int, bool, error)
	GetRank(gameName string) (*model.RankInfo, error)
	ListAllSorted() ([]*model.RankedGame, error)
	GetGameNames() ([]string, error)
	SearchGames(term string, limit int) ([]string, error)
	GetGameStatistics(gameName string) (*model.GameStatistics, error)
	GetGlobalStatistics() (*model.GlobalStatistics, error)
}

// RankCache 票数与排名的读缓存
type RankCache interface {
	GetGameVotes(gameName string) (int, bool, error)
	SetGameVotes(gameName string, votes int) error
	GetGameRank(gameName string) (*model.RankInfo, bool, error)
	SetGameRank(gameName string, rank *model.RankInfo) error
	InvalidateGame(gameName string) error
}

// Fulfiller 向事件源确认事件已处理
type Fulfiller interface {
	FulfillRedemption(ctx context.Context, rewardID, redemptionID string) error
}

// Notifier 对外发送通知消息
type Notifier interface {
	SendChatMessage(ctx context.Context, message string) error
}

// ProcessedRecorder 已处理事件ID的持久化集合
type ProcessedRecorder interface {
	Contains(id string) bool
	Add(id string) error
}

// InaccurateRecorder 记录无法处理的输入
type InaccurateRecorder interface {
	Record(user, rawText string) error
}

const sideEffectTimeout = 10 * time.Second

// VoteService 投票处理核心
// 消费队列中的投票意图：解析游戏名、落库、并发触发两个外部副作用
type VoteService struct {
	store      GameStore
	cache      RankCache
	resolver   *resolver.Resolver
	fulfiller  Fulfiller
	notifier   Notifier
	processed  ProcessedRecorder
	inaccurate InaccurateRecorder

	weights      map[model.VoteKind]int
	operatorName string
}

func NewVoteService(
	store GameStore,
	cache RankCache,
	res *resolver.Resolver,
	fulfiller Fulfiller,
	notifier Notifier,
	processed ProcessedRecorder,
	inaccurate InaccurateRecorder,
) *VoteService {
	return &VoteService{
		store:      store,
		cache:      cache,
		resolver:   res,
		fulfiller:  fulfiller,
		notifier:   notifier,
		processed:  processed,
		inaccurate: inaccurate,
		weights: map[model.VoteKind]int{
			model.VoteKindNormal: config.AppConfig.Vote.NormalWeight,
			model.VoteKindSuper:  config.AppConfig.Vote.SuperWeight,
			model.VoteKindUltra:  config.AppConfig.Vote.UltraWeight,
		},
		operatorName: config.AppConfig.Twitch.Username,
	}
}

// refreshResolver 快照过期时从存储整体刷新游戏名列表
func (s *VoteService) refreshResolver() {
	refreshed, err := s.resolver.RefreshIfStale(s.store.GetGameNames)
	if err != nil {
		log.Printf("刷新游戏名缓存失败: %v", err)
		return
	}
	if refreshed {
		log.Printf("游戏名缓存已刷新: %d 个游戏", s.resolver.Size())
	}
}

// forceRefreshResolver 新游戏落库后立即刷新，避免同一有效期内重复建近似名
func (s *VoteService) forceRefreshResolver() {
	names, err := s.store.GetGameNames()
	if err != nil {
		log.Printf("刷新游戏名缓存失败: %v", err)
		return
	}
	s.resolver.SetNames(names)
}

// resolveGameName 把自由文本解析为规范游戏名
// 没有达到阈值的匹配时返回修剪后的原始输入，视为新游戏
func (s *VoteService) resolveGameName(rawText string) string {
	s.refreshResolver()

	if match := s.resolver.Resolve(rawText); match != nil {
		log.Printf("模糊匹配成功: '%s' -> '%s' (相似度: %d)", rawText, match.Name, match.Score)
		return match.Name
	}

	return strings.TrimSpace(rawText)
}

// ProcessVoteIntent 处理一条投票意图（队列消费者入口）
// 返回错误时事件不会被确认，事件源会重新投递；已处理集合在这里和接入层各查一次，
// 无论重复来自事件源重投还是队列重放都不会重复计票
func (s *VoteService) ProcessVoteIntent(intent *model.VoteIntent) error {
	// 队列重放（如进程重启后从头消费）时靠这里拦截，入队前的去重挡不住已入队的重复
	if s.processed.Contains(intent.EventID) {
		log.Printf("投票意图 %s 已处理过，跳过", intent.EventID)
		return nil
	}

	log.Printf("处理投票: 用户=%s 输入='%s' 类型=%s", intent.User, intent.RawText, intent.Kind)

	weight, ok := s.weights[intent.Kind]
	if !ok {
		// 未知档位不计票，但要把事件确认掉，否则会被无限重投
		log.Printf("投票意图 %s 档位未知: %s", intent.EventID, intent.Kind)
		if err := s.inaccurate.Record(intent.User, intent.RawText); err != nil {
			log.Printf("记录无效输入失败: %v", err)
		}
		s.fulfillAndRemember(intent)
		return nil
	}

	gameName := s.resolveGameName(intent.RawText)
	if gameName == "" {
		if err := s.inaccurate.Record(intent.User, intent.RawText); err != nil {
			log.Printf("记录无效输入失败: %v", err)
		}
		s.fulfillAndRemember(intent)
		return nil
	}

	result, err := s.store.ApplyVote(gameName, weight, intent.User, intent.Kind)
	if err != nil {
		return fmt.Errorf("投票落库失败: %w", err)
	}

	if result.IsNew {
		log.Printf("新游戏 '%s' 已创建，初始 %d 票", result.GameName, result.Votes)
	} else {
		log.Printf("游戏 '%s' 票数更新: %d (+%d)", result.GameName, result.Votes, result.Weight)
	}

	if err := s.cache.InvalidateGame(result.GameName); err != nil {
		log.Printf("删除游戏 %s 缓存失败: %v", result.GameName, err)
	}

	// 两个外部副作用并发执行，互不等待，完成顺序没有约定
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.fulfillAndRemember(intent)
	}()
	go func() {
		defer wg.Done()
		s.notifyRank(result.GameName, result.Votes, intent.User)
	}()
	wg.Wait()

	if result.IsNew {
		s.forceRefreshResolver()
	}

	return nil
}

// fulfillAndRemember 向事件源确认事件，确认成功后才持久化事件ID
func (s *VoteService) fulfillAndRemember(intent *model.VoteIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := s.fulfiller.FulfillRedemption(ctx, intent.RewardID, intent.EventID); err != nil {
		// 确认失败不记录ID，事件源会重新投递，由入队前的去重保证不重复计票
		log.Printf("确认事件 %s 失败: %v", intent.EventID, err)
		return
	}

	if err := s.processed.Add(intent.EventID); err != nil {
		log.Printf("持久化事件ID %s 失败: %v", intent.EventID, err)
	}
}

// notifyRank 计算排名并发送聊天通知，失败只记日志不重试
func (s *VoteService) notifyRank(gameName string, votes int, user string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	var message string
	rank, err := s.store.GetRank(gameName)
	if err != nil || rank == nil {
		if err != nil {
			log.Printf("计算游戏 %s 排名失败: %v", gameName, err)
		}
		message = fmt.Sprintf("🎮 %s 为《%s》投了票！当前共 %d 票！🎮", user, gameName, votes)
	} else {
		message = fmt.Sprintf("🎮 %s 为《%s》投了票！排名: #%d / %d，共 %d 票！🎮",
			user, gameName, rank.Rank, rank.TotalGames, votes)
	}

	if err := s.notifier.SendChatMessage(ctx, message); err != nil {
		log.Printf("发送聊天通知失败: %v", err)
	}
}

// ManualVote 手动录入投票（操作者路径），与自动路径走同一个原子落库契约
func (s *VoteService) ManualVote(rawText string, votes int) (*model.ApplyResult, error) {
	if votes <= 0 {
		return nil, fmt.Errorf("票数必须大于0: %d", votes)
	}

	gameName := s.resolveGameName(rawText)
	if gameName == "" {
		return nil, fmt.Errorf("游戏名不能为空")
	}

	result, err := s.store.ApplyVote(gameName, votes, s.operatorName, model.VoteKindManual)
	if err != nil {
		return nil, fmt.Errorf("手动投票落库失败: %w", err)
	}

	if err := s.cache.InvalidateGame(result.GameName); err != nil {
		log.Printf("删除游戏 %s 缓存失败: %v", result.GameName, err)
	}

	s.notifyRank(result.GameName, result.Votes, s.operatorName)

	if result.IsNew {
		s.forceRefreshResolver()
	}

	return result, nil
}

// GetGameVotes 查询游戏票数，优先走缓存
func (s *VoteService) GetGameVotes(gameName string) (int, bool, error) {
	votes, found, err := s.cache.GetGameVotes(gameName)
	if err != nil {
		log.Printf("读取游戏 %s 票数缓存失败: %v", gameName, err)
	}
	if found {
		return votes, true, nil
	}

	votes, exists, err := s.store.GetGameVotes(gameName)
	if err != nil {
		return 0, false, fmt.Errorf("查询游戏 %s 票数失败: %w", gameName, err)
	}
	if !exists {
		return 0, false, nil
	}

	if err := s.cache.SetGameVotes(gameName, votes); err != nil {
		log.Printf("更新游戏 %s 票数缓存失败: %v", gameName, err)
	}

	return votes, true, nil
}

// GetRank 查询游戏排名，优先走缓存
func (s *VoteService) GetRank(gameName string) (*model.RankInfo, error) {
	rank, found, err := s.cache.GetGameRank(gameName)
	if err != nil {
		log.Printf("读取游戏 %s 排名缓存失败: %v", gameName, err)
	}
	if found {
		return rank, nil
	}

	rank, err = s.store.GetRank(gameName)
	if err != nil {
		return nil, fmt.Errorf("查询游戏 %s 排名失败: %w", gameName, err)
	}
	if rank == nil {
		return nil, nil
	}

	if err := s.cache.SetGameRank(gameName, rank); err != nil {
		log.Printf("更新游戏 %s 排名缓存失败: %v", gameName, err)
	}

	return rank, nil
}

// Leaderboard 返回完整排行榜
func (s *VoteService) Leaderboard() ([]*model.RankedGame, error) {
	return s.store.ListAllSorted()
}

// SearchGames 子串搜索游戏
func (s *VoteService) SearchGames(term string, limit int) ([]string, error) {
	return s.store.SearchGames(term, limit)
}

// GetGameStatistics 单个游戏的投票统计
func (s *VoteService) GetGameStatistics(gameName string) (*model.GameStatistics, error) {
	return s.store.GetGameStatistics(gameName)
}

// GetGlobalStatistics 全局投票统计
func (s *VoteService) GetGlobalStatistics() (*model.GlobalStatistics, error) {
	return s.store.GetGlobalStatistics()
}
