package syncer

import (
	"context"
	"fmt"
	"log"
)

// ConfirmFunc 向操作者征求确认，返回true表示同意
type ConfirmFunc func(prompt string) bool

// RunStartupMigration 启动时的一次性迁移，必须在消费者启动之前执行
//
// 三种情况：
//  1. 本地有数据且镜像标识一致（或从未记录过标识）：正常继续，什么都不做；
//  2. 本地有数据但镜像标识与配置不符：展示两侧数据概况，要求操作者确认，
//     同意则销毁重建本地存储后从镜像导入（不可逆），拒绝则继续运行但阻断推送；
//  3. 本地为空：从镜像整块导入，批次内重名的行跳过计数（先出现的生效）。
func (w *Worker) RunStartupMigration(ctx context.Context, confirm ConfirmFunc) error {
	status, err := w.store.GetSyncStatus()
	if err != nil {
		return fmt.Errorf("读取同步状态失败: %w", err)
	}

	count, err := w.store.CountGames()
	if err != nil {
		return fmt.Errorf("查询游戏总数失败: %w", err)
	}

	configuredID := w.mirror.Identity()

	if count > 0 {
		if status.SpreadsheetID == "" || status.SpreadsheetID == configuredID {
			log.Printf("数据库已有 %d 个游戏，跳过迁移", count)
			return nil
		}

		// 镜像身份不符，需要操作者决定
		total, err := w.store.TotalVotes()
		if err != nil {
			return fmt.Errorf("查询票数总和失败: %w", err)
		}

		mirrorRows, err := w.mirror.ReadRows(ctx)
		if err != nil {
			return fmt.Errorf("读取镜像数据失败: %w", err)
		}
		mirrorTotal := 0
		for _, row := range mirrorRows {
			mirrorTotal += row.Votes
		}

		prompt := fmt.Sprintf(
			"镜像标识不符！记录: %s 配置: %s\n本地 %d 个游戏（%d 票），镜像 %d 行（%d 票）。\n"+
				"是否销毁本地数据并从镜像重新导入？此操作不可逆",
			status.SpreadsheetID, configuredID, count, total, len(mirrorRows), mirrorTotal,
		)

		if !confirm(prompt) {
			log.Println("操作者拒绝迁移，继续使用本地数据，镜像推送已阻断")
			w.BlockPushes()
			return nil
		}

		log.Println("操作者确认迁移，销毁并重建本地存储...")
		if err := w.store.ResetAll(); err != nil {
			return fmt.Errorf("重建本地存储失败: %w", err)
		}
	}

	// 到这里本地存储为空（原本为空或刚被重置），从镜像导入
	return w.importFromMirror(ctx)
}

// importFromMirror 把镜像数据整块导入空的本地存储
func (w *Worker) importFromMirror(ctx context.Context) error {
	configuredID := w.mirror.Identity()

	rows, err := w.mirror.ReadRows(ctx)
	if err != nil {
		return fmt.Errorf("读取镜像数据失败: %w", err)
	}

	if len(rows) == 0 {
		log.Println("镜像没有数据，跳过导入")
		// 仍然记录镜像标识，让后续推送通过身份检查
		if err := w.store.UpdateSpreadsheetInfo(configuredID, ""); err != nil {
			return err
		}
		return nil
	}

	seen := make(map[string]struct{}, len(rows))
	imported := 0
	skipped := 0

	for _, row := range rows {
		if row.Name == "" {
			skipped++
			continue
		}
		// 批次内重名只导入第一行，后续的跳过计数而不是累加
		if _, ok := seen[row.Name]; ok {
			skipped++
			continue
		}
		seen[row.Name] = struct{}{}

		if err := w.store.SetVotesAbsolute(row.Name, row.Votes); err != nil {
			return fmt.Errorf("导入游戏 %s 失败: %w", row.Name, err)
		}
		imported++
	}

	games, err := w.store.ListAllSorted()
	if err != nil {
		return err
	}
	hash := Fingerprint(rankedToRows(games))

	if err := w.store.UpdateSpreadsheetInfo(configuredID, hash); err != nil {
		return err
	}

	log.Printf("迁移完成: 导入 %d 行，跳过 %d 行", imported, skipped)
	return nil
}
