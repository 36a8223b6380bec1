package repository

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
)

// schemaStatements 启动时按顺序执行的建表语句
// 与排行查询配套的索引一并创建
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS games (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		votes INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uk_games_name (name),
		KEY idx_games_votes (votes DESC)
	)`,
	`CREATE TABLE IF NOT EXISTS vote_history (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		game_name VARCHAR(255) NOT NULL,
		user_name VARCHAR(255) NOT NULL,
		vote_kind VARCHAR(32) NOT NULL,
		vote_weight INT NOT NULL,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_history_timestamp (timestamp DESC),
		KEY idx_history_game (game_name)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		id INT PRIMARY KEY,
		last_sync TIMESTAMP NULL,
		sync_count INT NOT NULL DEFAULT 0,
		pending_changes INT NOT NULL DEFAULT 0,
		spreadsheet_id VARCHAR(128) NULL,
		spreadsheet_hash VARCHAR(64) NULL,
		CONSTRAINT chk_sync_singleton CHECK (id = 1)
	)`,
	`INSERT IGNORE INTO sync_status (id, last_sync, sync_count, pending_changes, spreadsheet_id, spreadsheet_hash)
		VALUES (1, NULL, 0, 0, NULL, NULL)`,
}

// MigrationUser 迁移写入历史记录时使用的用户名
const MigrationUser = "[Migration]"

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

func NewMySQLRepository() (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", config.AppConfig.MySQL.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	masterDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB, err := sql.Open("mysql", config.AppConfig.MySQL.Slave)
	if err != nil {
		return nil, fmt.Errorf("连接从数据库失败: %w", err)
	}

	slaveDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	slaveDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	slaveDB.SetConnMaxLifetime(time.Hour)

	if err = slaveDB.Ping(); err != nil {
		log.Printf("从数据库连接测试失败: %v，将使用主数据库代替", err)
		slaveDB = masterDB
	}

	repo := &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
	}

	if err := repo.InitSchema(); err != nil {
		return nil, err
	}

	return repo, nil
}

// InitSchema 初始化数据库表结构，可重复执行
func (r *MySQLRepository) InitSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := r.masterDB.Exec(stmt); err != nil {
			return fmt.Errorf("初始化表结构失败: %w", err)
		}
	}
	return nil
}

// ApplyVote 原子地应用一次投票：
// 票数累加（或新建游戏）、追加投票历史、pending_changes加一，三者在同一事务内完成。
// 同名游戏的并发投票由行锁串行化，不同游戏互不阻塞。
func (r *MySQLRepository) ApplyVote(gameName string, weight int, userName string, kind model.VoteKind) (*model.ApplyResult, error) {
	if gameName == "" {
		return nil, fmt.Errorf("游戏名不能为空")
	}
	if weight <= 0 {
		return nil, fmt.Errorf("票数权重必须为正数: %d", weight)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("未知的投票类型: %s", kind)
	}

	tx, err := r.masterDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("开始事务失败: %w", err)
	}

	var oldVotes int
	var newVotes int
	var isNew bool

	err = tx.QueryRow("SELECT votes FROM games WHERE name = ? FOR UPDATE", gameName).Scan(&oldVotes)
	switch {
	case err == sql.ErrNoRows:
		// 游戏不存在，新建
		newVotes = weight
		isNew = true
		if _, err := tx.Exec(
			"INSERT INTO games (name, votes, created_at, last_updated) VALUES (?, ?, NOW(), NOW())",
			gameName, newVotes,
		); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("新建游戏 %s 失败: %w", gameName, err)
		}
	case err != nil:
		tx.Rollback()
		return nil, fmt.Errorf("查询游戏 %s 票数失败: %w", gameName, err)
	default:
		newVotes = oldVotes + weight
		if _, err := tx.Exec(
			"UPDATE games SET votes = ?, last_updated = NOW() WHERE name = ?",
			newVotes, gameName,
		); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("更新游戏 %s 票数失败: %w", gameName, err)
		}
	}

	// 投票历史只在提供了用户名时记录
	if userName != "" {
		if _, err := tx.Exec(
			"INSERT INTO vote_history (game_name, user_name, vote_kind, vote_weight) VALUES (?, ?, ?, ?)",
			gameName, userName, string(kind), weight,
		); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("记录游戏 %s 投票历史失败: %w", gameName, err)
		}
	}

	if _, err := tx.Exec(
		"UPDATE sync_status SET pending_changes = pending_changes + 1 WHERE id = 1",
	); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("更新待同步计数失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}

	return &model.ApplyResult{
		GameName: gameName,
		Votes:    newVotes,
		IsNew:    isNew,
		Weight:   weight,
	}, nil
}

// SetVotesAbsolute 以覆盖方式写入票数，仅供镜像迁移路径使用
// 普通投票必须走ApplyVote的累加语义
func (r *MySQLRepository) SetVotesAbsolute(gameName string, votes int) error {
	if gameName == "" {
		return fmt.Errorf("游戏名不能为空")
	}
	if votes < 0 {
		return fmt.Errorf("票数不能为负数: %d", votes)
	}

	tx, err := r.masterDB.Begin()
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO games (name, votes, created_at, last_updated) VALUES (?, ?, NOW(), NOW())
		 ON DUPLICATE KEY UPDATE votes = VALUES(votes), last_updated = NOW()`,
		gameName, votes,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("迁移写入游戏 %s 失败: %w", gameName, err)
	}

	if _, err := tx.Exec(
		"INSERT INTO vote_history (game_name, user_name, vote_kind, vote_weight) VALUES (?, ?, ?, ?)",
		gameName, MigrationUser, string(model.VoteKindMigration), votes,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("记录游戏 %s 迁移历史失败: %w", gameName, err)
	}

	if _, err := tx.Exec(
		"UPDATE sync_status SET pending_changes = pending_changes + 1 WHERE id = 1",
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("更新待同步计数失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	return nil
}

// GetGameVotes 获取游戏当前票数，第二个返回值表示游戏是否存在
func (r *MySQLRepository) GetGameVotes(gameName string) (int, bool, error) {
	var votes int
	err := r.slaveDB.QueryRow("SELECT votes FROM games WHERE name = ?", gameName).Scan(&votes)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("查询游戏 %s 票数失败: %w", gameName, err)
	}
	return votes, true, nil
}

// GetRank 计算游戏当前排名（1为最高）
// 并列票数时名字字典序小的排前，与ListAllSorted的排序规则一致
func (r *MySQLRepository) GetRank(gameName string) (*model.RankInfo, error) {
	var votes int
	err := r.slaveDB.QueryRow("SELECT votes FROM games WHERE name = ?", gameName).Scan(&votes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查询游戏 %s 票数失败: %w", gameName, err)
	}

	var rank int
	err = r.slaveDB.QueryRow(
		"SELECT COUNT(*) + 1 FROM games WHERE votes > ? OR (votes = ? AND name < ?)",
		votes, votes, gameName,
	).Scan(&rank)
	if err != nil {
		return nil, fmt.Errorf("计算游戏 %s 排名失败: %w", gameName, err)
	}

	var total int
	if err := r.slaveDB.QueryRow("SELECT COUNT(*) FROM games").Scan(&total); err != nil {
		return nil, fmt.Errorf("查询游戏总数失败: %w", err)
	}

	return &model.RankInfo{
		Rank:       rank,
		Votes:      votes,
		TotalGames: total,
	}, nil
}

// ListAllSorted 返回全部游戏，按票数降序、同票按名字升序，排名按位置赋值
func (r *MySQLRepository) ListAllSorted() ([]*model.RankedGame, error) {
	rows, err := r.slaveDB.Query("SELECT name, votes FROM games ORDER BY votes DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("查询游戏列表失败: %w", err)
	}
	defer rows.Close()

	var games []*model.RankedGame
	rank := 0
	for rows.Next() {
		rank++
		game := &model.RankedGame{Rank: rank}
		if err := rows.Scan(&game.Name, &game.Votes); err != nil {
			return nil, fmt.Errorf("扫描游戏列表失败: %w", err)
		}
		games = append(games, game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代游戏列表失败: %w", err)
	}

	return games, nil
}

// GetGameNames 返回全部游戏名（票数降序、同票按名字升序），供模糊匹配缓存使用
func (r *MySQLRepository) GetGameNames() ([]string, error) {
	rows, err := r.slaveDB.Query("SELECT name FROM games ORDER BY votes DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("查询游戏名列表失败: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("扫描游戏名失败: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代游戏名列表失败: %w", err)
	}

	return names, nil
}

// SearchGames 子串搜索（不区分大小写，依赖MySQL默认排序规则），按票数降序
func (r *MySQLRepository) SearchGames(term string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.slaveDB.Query(
		"SELECT name FROM games WHERE name LIKE ? ORDER BY votes DESC LIMIT ?",
		"%"+term+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("搜索游戏失败: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("扫描搜索结果失败: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代搜索结果失败: %w", err)
	}

	return names, nil
}

// GetSyncStatus 读取同步状态单例
func (r *MySQLRepository) GetSyncStatus() (*model.SyncStatus, error) {
	var status model.SyncStatus
	var lastSync sql.NullTime
	var spreadsheetID sql.NullString
	var spreadsheetHash sql.NullString

	err := r.slaveDB.QueryRow(
		"SELECT last_sync, sync_count, pending_changes, spreadsheet_id, spreadsheet_hash FROM sync_status WHERE id = 1",
	).Scan(&lastSync, &status.SyncCount, &status.PendingChanges, &spreadsheetID, &spreadsheetHash)
	if err != nil {
		return nil, fmt.Errorf("查询同步状态失败: %w", err)
	}

	if lastSync.Valid {
		status.LastSync = &lastSync.Time
	}
	status.SpreadsheetID = spreadsheetID.String
	status.SpreadsheetHash = spreadsheetHash.String

	return &status, nil
}

// GetPendingChanges 返回待同步的变更数
func (r *MySQLRepository) GetPendingChanges() (int, error) {
	var pending int
	err := r.masterDB.QueryRow("SELECT pending_changes FROM sync_status WHERE id = 1").Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("查询待同步计数失败: %w", err)
	}
	return pending, nil
}

// MarkSynced 在一次成功推送后更新同步状态
func (r *MySQLRepository) MarkSynced(spreadsheetID, spreadsheetHash string) error {
	_, err := r.masterDB.Exec(
		`UPDATE sync_status
		 SET last_sync = NOW(),
		     sync_count = sync_count + 1,
		     pending_changes = 0,
		     spreadsheet_id = ?,
		     spreadsheet_hash = ?
		 WHERE id = 1`,
		spreadsheetID, spreadsheetHash,
	)
	if err != nil {
		return fmt.Errorf("更新同步状态失败: %w", err)
	}
	return nil
}

// UpdateSpreadsheetInfo 记录镜像标识和内容指纹，不增加同步计数（迁移路径使用）
func (r *MySQLRepository) UpdateSpreadsheetInfo(spreadsheetID, spreadsheetHash string) error {
	_, err := r.masterDB.Exec(
		"UPDATE sync_status SET spreadsheet_id = ?, spreadsheet_hash = ? WHERE id = 1",
		spreadsheetID, spreadsheetHash,
	)
	if err != nil {
		return fmt.Errorf("更新镜像信息失败: %w", err)
	}
	return nil
}

// CountGames 返回游戏总数
func (r *MySQLRepository) CountGames() (int, error) {
	var count int
	if err := r.slaveDB.QueryRow("SELECT COUNT(*) FROM games").Scan(&count); err != nil {
		return 0, fmt.Errorf("查询游戏总数失败: %w", err)
	}
	return count, nil
}

// TotalVotes 返回全部游戏的票数总和
func (r *MySQLRepository) TotalVotes() (int, error) {
	var total sql.NullInt64
	if err := r.slaveDB.QueryRow("SELECT SUM(votes) FROM games").Scan(&total); err != nil {
		return 0, fmt.Errorf("查询票数总和失败: %w", err)
	}
	return int(total.Int64), nil
}

// CountHistoryEntries 返回投票历史条数
func (r *MySQLRepository) CountHistoryEntries() (int, error) {
	var count int
	if err := r.slaveDB.QueryRow("SELECT COUNT(*) FROM vote_history").Scan(&count); err != nil {
		return 0, fmt.Errorf("查询投票历史条数失败: %w", err)
	}
	return count, nil
}

// GetGameStatistics 返回单个游戏的投票统计
func (r *MySQLRepository) GetGameStatistics(gameName string) (*model.GameStatistics, error) {
	var stats model.GameStatistics
	var totalVotes sql.NullInt64
	var firstVote, lastVote sql.NullTime

	err := r.slaveDB.QueryRow(
		`SELECT COUNT(*), SUM(vote_weight), COUNT(DISTINCT user_name), MIN(timestamp), MAX(timestamp)
		 FROM vote_history WHERE game_name = ?`,
		gameName,
	).Scan(&stats.VoteCount, &totalVotes, &stats.UniqueVoters, &firstVote, &lastVote)
	if err != nil {
		return nil, fmt.Errorf("查询游戏 %s 统计失败: %w", gameName, err)
	}

	stats.GameName = gameName
	stats.TotalVotes = int(totalVotes.Int64)
	if firstVote.Valid {
		stats.FirstVote = &firstVote.Time
	}
	if lastVote.Valid {
		stats.LastVote = &lastVote.Time
	}

	return &stats, nil
}

// GetGlobalStatistics 返回全局投票统计
func (r *MySQLRepository) GetGlobalStatistics() (*model.GlobalStatistics, error) {
	var stats model.GlobalStatistics
	err := r.slaveDB.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT game_name), COUNT(DISTINCT user_name) FROM vote_history",
	).Scan(&stats.TotalVotes, &stats.UniqueGames, &stats.UniqueVoters)
	if err != nil {
		return nil, fmt.Errorf("查询全局统计失败: %w", err)
	}
	return &stats, nil
}

// ResetAll 销毁并重建全部数据表，仅供迁移路径在操作者确认后调用，不可逆
func (r *MySQLRepository) ResetAll() error {
	for _, table := range []string{"vote_history", "games", "sync_status"} {
		if _, err := r.masterDB.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("删除表 %s 失败: %w", table, err)
		}
	}
	return r.InitSchema()
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}
