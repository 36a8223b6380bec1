package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/lvdashuaibi/votetracker/internal/model"
)

// Fingerprint 计算一组(name, votes)数据的内容指纹
// 按名字、票数升序排序后拼接再取md5，与历史数据库中记录的指纹格式保持兼容
func Fingerprint(rows []model.MirrorRow) string {
	if len(rows) == 0 {
		return ""
	}

	sorted := make([]model.MirrorRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Votes < sorted[j].Votes
	})

	parts := make([]string, len(sorted))
	for i, row := range sorted {
		parts[i] = fmt.Sprintf("%s:%d", row.Name, row.Votes)
	}

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// rankedToRows 把排行榜数据转为镜像行
func rankedToRows(games []*model.RankedGame) []model.MirrorRow {
	rows := make([]model.MirrorRow, 0, len(games))
	for _, game := range games {
		rows = append(rows, model.MirrorRow{Votes: game.Votes, Name: game.Name})
	}
	return rows
}

// Comparison 存储与镜像两侧的数据概况
type Comparison struct {
	DBGames     int
	MirrorGames int
	DBTotal     int
	MirrorTotal int
	DBHash      string
	MirrorHash  string
}

func compareSides(dbRows, mirrorRows []model.MirrorRow) *Comparison {
	cmp := &Comparison{
		DBGames:     len(dbRows),
		MirrorGames: len(mirrorRows),
		DBHash:      Fingerprint(dbRows),
		MirrorHash:  Fingerprint(mirrorRows),
	}
	for _, row := range dbRows {
		cmp.DBTotal += row.Votes
	}
	for _, row := range mirrorRows {
		cmp.MirrorTotal += row.Votes
	}
	return cmp
}

// 安全检查的处置结论
const (
	ActionSync    = "sync"    // 可以安全推送
	ActionAbort   = "abort"   // 镜像身份不符，必须人工介入
	ActionMigrate = "migrate" // 镜像数据疑似更新，建议走迁移而不是覆盖
)

// CheckResult 安全检查结果
type CheckResult struct {
	Safe       bool
	Action     string
	Warning    string
	Comparison *Comparison
}

// CheckSyncSafety 推送前的安全检查，防止误覆盖镜像数据
//
// 两条规则：
//  1. 记录的镜像标识与配置不符且本地有数据：怀疑数据库被复制到了别的环境，拒绝推送；
//  2. 本地和镜像的指纹都偏离了上次同步的记录（两边各自被改过），且镜像的总票数
//     明显高于本地：镜像可能是更新的数据，拒绝覆盖，建议迁移。
func (w *Worker) CheckSyncSafety(ctx context.Context) (*CheckResult, error) {
	status, err := w.store.GetSyncStatus()
	if err != nil {
		return nil, err
	}

	games, err := w.store.ListAllSorted()
	if err != nil {
		return nil, err
	}
	dbRows := rankedToRows(games)

	mirrorRows, err := w.mirror.ReadRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取镜像数据失败: %w", err)
	}

	configuredID := w.mirror.Identity()

	if status.SpreadsheetID != "" && status.SpreadsheetID != configuredID && len(dbRows) > 0 {
		cmp := compareSides(dbRows, mirrorRows)
		return &CheckResult{
			Safe:   false,
			Action: ActionAbort,
			Warning: fmt.Sprintf(
				"镜像标识不符！记录: %s 配置: %s。数据库可能是从其它环境复制来的。本地 %d 个游戏（%d 票），镜像 %d 个游戏（%d 票）",
				status.SpreadsheetID, configuredID,
				cmp.DBGames, cmp.DBTotal, cmp.MirrorGames, cmp.MirrorTotal,
			),
			Comparison: cmp,
		}, nil
	}

	if len(dbRows) > 0 && status.SpreadsheetHash != "" {
		dbHash := Fingerprint(dbRows)
		mirrorHash := Fingerprint(mirrorRows)

		if dbHash != status.SpreadsheetHash && mirrorHash != status.SpreadsheetHash {
			cmp := compareSides(dbRows, mirrorRows)
			if float64(cmp.MirrorTotal) > float64(cmp.DBTotal)*w.divergenceRatio {
				return &CheckResult{
					Safe:   false,
					Action: ActionMigrate,
					Warning: fmt.Sprintf(
						"镜像数据疑似比本地新！本地 %d 个游戏（%d 票），镜像 %d 个游戏（%d 票），推送会覆盖镜像数据",
						cmp.DBGames, cmp.DBTotal, cmp.MirrorGames, cmp.MirrorTotal,
					),
					Comparison: cmp,
				}, nil
			}
		}
	}

	return &CheckResult{Safe: true, Action: ActionSync}, nil
}
