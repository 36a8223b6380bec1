package mirror

import (
	"context"

	"github.com/lvdashuaibi/votetracker/internal/model"
)

// Mirror 外部表格镜像的抽象
// 交换格式固定为[Votes, Game]两列加表头，读写都是整块操作
type Mirror interface {
	// Identity 返回镜像的标识（如Spreadsheet ID）
	Identity() string

	// ReadRows 整块读取镜像数据（不含表头）
	// 名字为空的行被丢弃，票数无法解析按0处理
	ReadRows(ctx context.Context) ([]model.MirrorRow, error)

	// WriteRows 用给定数据整块覆盖镜像的数据区（含表头）
	WriteRows(ctx context.Context, rows []model.MirrorRow) error
}
