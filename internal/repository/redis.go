package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
)

const (
	// Redis键前缀
	GameVotesKey = "game:votes:"
	GameRankKey  = "game:rank:"

	// 缓存有效期
	cacheTTL = time.Hour
)

// RedisRepository 读缓存，缓存单个游戏的票数与排名
// 写路径每次落库后必须调用InvalidateGame，保证读到的不是旧值
type RedisRepository struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisRepository() (*RedisRepository, error) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.DataAddress,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}

	return &RedisRepository{
		client: client,
		ctx:    ctx,
	}, nil
}

// NewRedisRepositoryWithClient 使用已有客户端构造，供测试注入
func NewRedisRepositoryWithClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
		ctx:    context.Background(),
	}
}

// GetGameVotes 从缓存获取游戏票数
func (r *RedisRepository) GetGameVotes(gameName string) (int, bool, error) {
	key := GameVotesKey + gameName
	votes, err := r.client.Get(r.ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil // 缓存未命中
		}
		return 0, false, fmt.Errorf("获取游戏票数缓存失败: %w", err)
	}
	return votes, true, nil
}

// SetGameVotes 写入游戏票数缓存
func (r *RedisRepository) SetGameVotes(gameName string, votes int) error {
	key := GameVotesKey + gameName
	if err := r.client.Set(r.ctx, key, votes, cacheTTL).Err(); err != nil {
		return fmt.Errorf("设置游戏票数缓存失败: %w", err)
	}
	return nil
}

// GetGameRank 从缓存获取游戏排名
func (r *RedisRepository) GetGameRank(gameName string) (*model.RankInfo, bool, error) {
	key := GameRankKey + gameName
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取游戏排名缓存失败: %w", err)
	}

	var rank model.RankInfo
	if err := json.Unmarshal([]byte(data), &rank); err != nil {
		return nil, false, fmt.Errorf("解析游戏排名缓存失败: %w", err)
	}

	return &rank, true, nil
}

// SetGameRank 写入游戏排名缓存
func (r *RedisRepository) SetGameRank(gameName string, rank *model.RankInfo) error {
	data, err := json.Marshal(rank)
	if err != nil {
		return fmt.Errorf("序列化游戏排名失败: %w", err)
	}

	key := GameRankKey + gameName
	if err := r.client.Set(r.ctx, key, data, cacheTTL).Err(); err != nil {
		return fmt.Errorf("设置游戏排名缓存失败: %w", err)
	}
	return nil
}

// InvalidateGame 删除某个游戏的全部缓存
// 任何投票写入后都会改变该游戏的票数，且可能改变所有游戏的排名，
// 排名缓存按单个游戏失效，其余游戏的排名缓存靠TTL过期，属于可接受的弱一致
func (r *RedisRepository) InvalidateGame(gameName string) error {
	keys := []string{GameVotesKey + gameName, GameRankKey + gameName}
	if err := r.client.Del(r.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("删除游戏 %s 缓存失败: %w", gameName, err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
