package model

import (
	"time"
)

// VoteKind 投票类型，决定票数权重和来源
type VoteKind string

const (
	VoteKindNormal    VoteKind = "normal"
	VoteKindSuper     VoteKind = "super"
	VoteKindUltra     VoteKind = "ultra"
	VoteKindManual    VoteKind = "manual"
	VoteKindMigration VoteKind = "migration"
)

// Valid 校验投票类型是否为已知类型
func (k VoteKind) Valid() bool {
	switch k {
	case VoteKindNormal, VoteKindSuper, VoteKindUltra, VoteKindManual, VoteKindMigration:
		return true
	}
	return false
}

// Game 游戏及其累计票数
type Game struct {
	Name        string    `json:"name"`
	Votes       int       `json:"votes"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// VoteRecord 单条投票历史记录，只追加不修改
type VoteRecord struct {
	ID        int64     `json:"id"`
	GameName  string    `json:"gameName"`
	UserName  string    `json:"userName"`
	Kind      VoteKind  `json:"kind"`
	Weight    int       `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// VoteIntent Kafka中流转的投票意图
type VoteIntent struct {
	EventID  string    `json:"eventId"`
	RewardID string    `json:"rewardId"`
	User     string    `json:"user"`
	RawText  string    `json:"rawText"`
	Kind     VoteKind  `json:"kind"`
	SeenAt   time.Time `json:"seenAt"`
}

// ApplyResult 一次投票落库的结果
type ApplyResult struct {
	GameName string `json:"gameName"`
	Votes    int    `json:"votes"`
	IsNew    bool   `json:"isNew"`
	Weight   int    `json:"weight"`
}

// RankInfo 游戏排名信息，排名从1开始
type RankInfo struct {
	Rank       int `json:"rank"`
	Votes      int `json:"votes"`
	TotalGames int `json:"totalGames"`
}

// RankedGame 排行榜中的一行
type RankedGame struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Votes int    `json:"votes"`
}

// SyncStatus 同步状态单例（数据库中有且仅有一行）
type SyncStatus struct {
	LastSync        *time.Time `json:"lastSync"`
	SyncCount       int        `json:"syncCount"`
	PendingChanges  int        `json:"pendingChanges"`
	SpreadsheetID   string     `json:"spreadsheetId"`
	SpreadsheetHash string     `json:"spreadsheetHash"`
}

// MirrorRow 镜像中的一行数据，列顺序固定为[Votes, Game]
type MirrorRow struct {
	Votes int    `json:"votes"`
	Name  string `json:"name"`
}

// GameStatistics 单个游戏的投票统计
type GameStatistics struct {
	GameName     string     `json:"gameName"`
	VoteCount    int        `json:"voteCount"`
	TotalVotes   int        `json:"totalVotes"`
	UniqueVoters int        `json:"uniqueVoters"`
	FirstVote    *time.Time `json:"firstVote"`
	LastVote     *time.Time `json:"lastVote"`
}

// GlobalStatistics 全局投票统计
type GlobalStatistics struct {
	TotalVotes   int `json:"totalVotes"`
	UniqueGames  int `json:"uniqueGames"`
	UniqueVoters int `json:"uniqueVoters"`
}
