package syncer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/mirror"
	"github.com/lvdashuaibi/votetracker/internal/model"
)

// SyncStore 同步器需要的权威存储操作
type SyncStore interface {
	ListAllSorted() ([]*model.RankedGame, error)
	GetPendingChanges() (int, error)
	GetSyncStatus() (*model.SyncStatus, error)
	MarkSynced(spreadsheetID, spreadsheetHash string) error
	UpdateSpreadsheetInfo(spreadsheetID, spreadsheetHash string) error
	SetVotesAbsolute(gameName string, votes int) error
	CountGames() (int, error)
	TotalVotes() (int, error)
	ResetAll() error
}

// Worker 后台同步器
// 周期性把权威存储整块推送到外部镜像；推送前必须通过安全检查，
// 检查不通过只暂停推送路径，投票落库不受影响
type Worker struct {
	store  SyncStore
	mirror mirror.Mirror

	interval        time.Duration
	divergenceRatio float64
	warnAfter       int
	cooldownAfter   int
	cooldownDur     time.Duration

	mu          sync.Mutex
	pushBlocked bool // 镜像身份未确认时阻断推送（迁移被拒绝后置位）

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(store SyncStore, m mirror.Mirror) *Worker {
	return &Worker{
		store:           store,
		mirror:          m,
		interval:        config.AppConfig.Sync.Interval,
		divergenceRatio: config.AppConfig.Sync.DivergenceRatio,
		warnAfter:       config.AppConfig.Sync.WarnAfterErrors,
		cooldownAfter:   config.AppConfig.Sync.CooldownAfter,
		cooldownDur:     config.AppConfig.Sync.CooldownDuration,
		stopChan:        make(chan struct{}),
	}
}

// BlockPushes 阻断推送路径（迁移确认被拒绝时调用）
func (w *Worker) BlockPushes() {
	w.mu.Lock()
	w.pushBlocked = true
	w.mu.Unlock()
}

// UnblockPushes 恢复推送路径
func (w *Worker) UnblockPushes() {
	w.mu.Lock()
	w.pushBlocked = false
	w.mu.Unlock()
}

func (w *Worker) pushesBlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pushBlocked
}

// Start 启动后台同步循环
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runLoop()
	}()

	log.Printf("镜像同步器已启动，同步间隔: %v", w.interval)
}

func (w *Worker) runLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	errorCount := 0

	for {
		select {
		case <-w.stopChan:
			// 退出前尽力做最后一次推送
			ctx, cancel := context.WithTimeout(context.Background(), w.interval*2)
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("退出前的最后一次同步失败: %v", err)
			} else {
				log.Println("退出前的最后一次同步已完成")
			}
			cancel()
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval*2)
			err := w.SyncOnce(ctx)
			cancel()

			if err == nil {
				errorCount = 0
				continue
			}

			errorCount++
			log.Printf("镜像同步失败: %v", err)

			// 连续失败逐级升级：先持续告警，再冷却一段时间
			if errorCount >= w.warnAfter {
				log.Printf("镜像同步已连续失败 %d 次", errorCount)
			}
			if errorCount >= w.cooldownAfter {
				log.Printf("镜像同步失败次数过多，冷却 %v 后重试", w.cooldownDur)
				select {
				case <-time.After(w.cooldownDur):
				case <-w.stopChan:
					return
				}
				errorCount = 0
			}
		}
	}
}

// ErrUnsafe 安全检查未通过时返回的错误
type ErrUnsafe struct {
	Result *CheckResult
}

func (e *ErrUnsafe) Error() string {
	return "同步安全检查未通过: " + e.Result.Warning
}

// SyncOnce 执行一次推送
// 没有待同步变更时直接返回；安全检查未通过时保留pending_changes，下个周期重试
func (w *Worker) SyncOnce(ctx context.Context) error {
	if w.pushesBlocked() {
		return &ErrUnsafe{Result: &CheckResult{
			Safe:    false,
			Action:  ActionAbort,
			Warning: "镜像身份未确认，推送已被阻断",
		}}
	}

	pending, err := w.store.GetPendingChanges()
	if err != nil {
		return err
	}
	if pending == 0 {
		return nil
	}

	check, err := w.CheckSyncSafety(ctx)
	if err != nil {
		return err
	}
	if !check.Safe {
		return &ErrUnsafe{Result: check}
	}

	games, err := w.store.ListAllSorted()
	if err != nil {
		return err
	}

	// 空存储也照常整块推送（只写表头），否则pending_changes永远清不掉
	rows := rankedToRows(games)
	if err := w.mirror.WriteRows(ctx, rows); err != nil {
		return err
	}

	hash := Fingerprint(rows)
	if err := w.store.MarkSynced(w.mirror.Identity(), hash); err != nil {
		return err
	}

	return nil
}

// Stop 停止同步循环（触发最后一次推送后返回）
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
}
