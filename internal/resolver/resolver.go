package resolver

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Resolver 把用户输入的自由文本解析到已有的规范游戏名
// 内部持有一份游戏名快照，快照按票数降序排列，
// 并列最高分时取快照中先出现的名字，因此热门游戏优先胜出
type Resolver struct {
	mu          sync.RWMutex
	names       []string
	namesLower  []string
	lastRefresh time.Time

	validity time.Duration
	minScore int
	metric   *metrics.SorensenDice
}

// Match 一次解析结果
type Match struct {
	Name  string
	Score int
}

// New 创建解析器
// minScore为0-100的归一化相似度阈值，validity为名字快照的有效期
func New(minScore int, validity time.Duration) *Resolver {
	sd := metrics.NewSorensenDice()
	sd.CaseSensitive = false

	return &Resolver{
		validity: validity,
		minScore: minScore,
		metric:   sd,
	}
}

// SetNames 整体替换名字快照
func (r *Resolver) SetNames(names []string) {
	lower := make([]string, len(names))
	for i, name := range names {
		lower[i] = strings.ToLower(name)
	}

	r.mu.Lock()
	r.names = names
	r.namesLower = lower
	r.lastRefresh = time.Now()
	r.mu.Unlock()
}

// Stale 判断快照是否超过有效期
func (r *Resolver) Stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.lastRefresh) > r.validity
}

// RefreshIfStale 快照过期时用fetch的结果整体替换
func (r *Resolver) RefreshIfStale(fetch func() ([]string, error)) (bool, error) {
	if !r.Stale() {
		return false, nil
	}
	names, err := fetch()
	if err != nil {
		return false, err
	}
	r.SetNames(names)
	return true, nil
}

// Resolve 在快照中寻找与输入最相似的名字
// 相似度达到阈值返回匹配，否则返回nil表示应按新游戏处理
func (r *Resolver) Resolve(input string) *Match {
	inputLower := strings.ToLower(strings.TrimSpace(input))
	if inputLower == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bestIndex := -1
	bestScore := -1
	for i, candidate := range r.namesLower {
		score := int(math.Round(strutil.Similarity(inputLower, candidate, r.metric) * 100))
		if score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}

	if bestIndex < 0 || bestScore < r.minScore {
		return nil
	}

	return &Match{
		Name:  r.names[bestIndex],
		Score: bestScore,
	}
}

// Size 返回快照中的名字数量
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
