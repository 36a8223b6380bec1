package storage

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ProcessedIDStore 已处理事件ID集合
// 落盘格式为每行一个ID的追加文件，启动时全量加载，
// 只有事件源确认fulfilled之后才写入，是防止重复计票的唯一防线
type ProcessedIDStore struct {
	path string
	mu   sync.Mutex
	ids  map[string]struct{}
}

// NewProcessedIDStore 加载已处理ID文件，文件不存在视为空集合
func NewProcessedIDStore(path string) (*ProcessedIDStore, error) {
	store := &ProcessedIDStore{
		path: path,
		ids:  make(map[string]struct{}),
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("打开已处理ID文件失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			store.ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取已处理ID文件失败: %w", err)
	}

	return store, nil
}

// Contains 判断事件ID是否已处理
func (s *ProcessedIDStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add 记录一个已处理的事件ID并立即追加到文件
// 重复添加是幂等的，不会重复写文件
func (s *ProcessedIDStore) Add(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return nil
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开已处理ID文件失败: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("写入已处理ID失败: %w", err)
	}

	s.ids[id] = struct{}{}
	return nil
}

// Count 返回已处理ID数量
func (s *ProcessedIDStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// InaccurateLog 无法解析的投票输入记录
// 这些输入不计票，但保留下来供人工整理
type InaccurateLog struct {
	path string
	mu   sync.Mutex
}

func NewInaccurateLog(path string) *InaccurateLog {
	return &InaccurateLog{path: path}
}

// Record 追加一条无法匹配的输入
func (l *InaccurateLog) Record(user, rawText string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开无效输入文件失败: %w", err)
	}
	defer file.Close()

	line := fmt.Sprintf("%s,%s,%s\n", time.Now().Format(time.RFC3339), user, rawText)
	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("写入无效输入失败: %w", err)
	}

	return nil
}
