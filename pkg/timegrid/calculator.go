package timegrid

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/kebiao/kebiao/pkg/model"
)

// Calculator 带缓存的网格计算器，同一配置只计算一次
type Calculator struct {
	mu    sync.RWMutex
	cache map[uint64]*Grid
}

// NewCalculator 创建计算器
func NewCalculator() *Calculator {
	return &Calculator{cache: make(map[uint64]*Grid)}
}

// Build 返回配置对应的网格，结果只读
func (c *Calculator) Build(t model.CollegeTimings, breaks []model.Break) (*Grid, error) {
	key := ConfigHash(t, breaks)

	c.mu.RLock()
	g, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return g, nil
	}

	g, err := Build(t, breaks)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = g
	c.mu.Unlock()
	return g, nil
}

// Len 缓存条目数
func (c *Calculator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// ConfigHash 计算作息配置的哈希，休息顺序不影响结果
func ConfigHash(t model.CollegeTimings, breaks []model.Break) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%d|%d|%d|%d|", t.Start, t.End, t.NumPeriods, t.PeriodDuration, t.BreakGap, t.LabDuration)
	for _, d := range t.TeachingDays() {
		fmt.Fprintf(h, "%s,", d)
	}

	bs := make([]model.Break, len(breaks))
	copy(bs, breaks)
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Start != bs[j].Start {
			return bs[i].Start < bs[j].Start
		}
		return bs[i].Name < bs[j].Name
	})
	for _, b := range bs {
		fmt.Fprintf(h, "|%s:%d-%d:%s", b.Name, b.Start, b.End, b.Kind)
	}
	return h.Sum64()
}
