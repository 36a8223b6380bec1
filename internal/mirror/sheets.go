package mirror

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lvdashuaibi/votetracker/config"
	"github.com/lvdashuaibi/votetracker/internal/model"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// 固定的交换表头，其它形状一律视为硬错误
var headerVotes = "Votes"
var headerGame = "Game"

// SheetsMirror Google Sheets镜像实现
type SheetsMirror struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetsMirror(ctx context.Context) (*SheetsMirror, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(config.AppConfig.Sheets.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("创建Sheets客户端失败: %w", err)
	}

	return &SheetsMirror{
		service:       service,
		spreadsheetID: config.AppConfig.Sheets.SpreadsheetID,
		sheetName:     config.AppConfig.Sheets.SheetName,
	}, nil
}

// Identity 返回Spreadsheet ID
func (m *SheetsMirror) Identity() string {
	return m.spreadsheetID
}

// ReadRows 读取整个数据区
func (m *SheetsMirror) ReadRows(ctx context.Context) ([]model.MirrorRow, error) {
	readRange := fmt.Sprintf("%s!A1:B", m.sheetName)
	resp, err := m.service.Spreadsheets.Values.Get(m.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("读取镜像数据失败: %w", err)
	}

	if len(resp.Values) == 0 {
		return nil, nil
	}

	values := resp.Values

	// 第一行允许是表头，但如果有表头则必须是约定的[Votes, Game]
	if isHeaderRow(values[0]) {
		if !headerMatches(values[0]) {
			return nil, fmt.Errorf("镜像表头格式错误，期望[%s, %s]，实际: %v", headerVotes, headerGame, values[0])
		}
		values = values[1:]
	}

	var rows []model.MirrorRow
	for _, raw := range values {
		row, ok := parseRow(raw)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// WriteRows 整块覆盖数据区：先清空再写入表头和全部数据
func (m *SheetsMirror) WriteRows(ctx context.Context, rows []model.MirrorRow) error {
	clearRange := fmt.Sprintf("%s!A1:B", m.sheetName)
	if _, err := m.service.Spreadsheets.Values.Clear(m.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("清空镜像数据区失败: %w", err)
	}

	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, []interface{}{headerVotes, headerGame})
	for _, row := range rows {
		values = append(values, []interface{}{row.Votes, row.Name})
	}

	writeRange := fmt.Sprintf("%s!A1:B%d", m.sheetName, len(values))
	valueRange := &sheets.ValueRange{Values: values}

	_, err := m.service.Spreadsheets.Values.
		Update(m.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("写入镜像数据失败: %w", err)
	}

	return nil
}

// isHeaderRow 判断第一行是否像表头（第一列不是数字）
func isHeaderRow(raw []interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	first := strings.TrimSpace(fmt.Sprint(raw[0]))
	if first == "" {
		return false
	}
	_, err := strconv.Atoi(first)
	return err != nil
}

func headerMatches(raw []interface{}) bool {
	if len(raw) < 2 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(fmt.Sprint(raw[0])), headerVotes) &&
		strings.EqualFold(strings.TrimSpace(fmt.Sprint(raw[1])), headerGame)
}

// parseRow 把一行表格数据解析为MirrorRow
// 名字为空返回false，票数解析失败按0处理
func parseRow(raw []interface{}) (model.MirrorRow, bool) {
	var row model.MirrorRow

	if len(raw) < 2 {
		return row, false
	}

	name := strings.TrimSpace(fmt.Sprint(raw[1]))
	if name == "" {
		return row, false
	}

	votes, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(raw[0])))
	if err != nil {
		votes = 0
	}

	row.Name = name
	row.Votes = votes
	return row, true
}
