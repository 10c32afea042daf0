// Package optimizer 在可行课表上做局部搜索，降低软约束惩罚
package optimizer

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// Config 优化配置
type Config struct {
	MaxIterations   int `json:"max_iterations"`   // 最多接受的移动次数，0 表示不优化
	TabuSize        int `json:"tabu_size"`        // 禁忌表大小
	ParallelWorkers int `json:"parallel_workers"` // 并行评估的协程数
}

// DefaultConfig 默认优化配置
func DefaultConfig() Config {
	return Config{
		MaxIterations:   200,
		TabuSize:        50,
		ParallelWorkers: 4,
	}
}

// Stats 优化统计
type Stats struct {
	Iterations    int `json:"iterations"`
	Moves         int `json:"moves"`
	PenaltyBefore int `json:"penalty_before"`
	PenaltyAfter  int `json:"penalty_after"`
}

// BuildFunc 把候选排课展开为课节
type BuildFunc func(p *constraint.Placement) []*model.ScheduleSlot

// LocalSearch 禁忌局部搜索
// 每轮在全部可移动排课中选出惩罚下降最多的一次移动，没有下降时停止；
// 移动顺序只依赖输入顺序，相同输入得到相同结果
type LocalSearch struct {
	manager *constraint.Manager
	build   BuildFunc
	config  Config
	logger  *logger.EngineLogger
}

// NewLocalSearch 创建局部搜索
func NewLocalSearch(manager *constraint.Manager, build BuildFunc, config Config) *LocalSearch {
	if config.TabuSize <= 0 {
		config.TabuSize = DefaultConfig().TabuSize
	}
	if config.ParallelWorkers <= 0 {
		config.ParallelWorkers = 1
	}
	return &LocalSearch{
		manager: manager,
		build:   build,
		config:  config,
		logger:  logger.NewEngineLogger("optimizer"),
	}
}

// Improve 在 sctx 上移动 items，sctx 和 items 原地更新
func (o *LocalSearch) Improve(ctx context.Context, sctx *constraint.Context, items []*Item) (Stats, error) {
	stats := Stats{PenaltyBefore: o.manager.Evaluate(sctx).TotalPenalty}
	stats.PenaltyAfter = stats.PenaltyBefore
	if o.config.MaxIterations <= 0 || len(items) == 0 {
		return stats, nil
	}

	tabu := NewTabuList(o.config.TabuSize)
	for stats.Iterations < o.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Iterations++

		best, err := o.bestMove(ctx, sctx, items, tabu)
		if err != nil {
			return stats, err
		}
		if best == nil {
			break
		}

		item := items[best.item]
		// 禁止移回原位置
		tabu.Add(moveKey(item, item.Placement))
		item.apply(sctx, best.placement, o.build)
		stats.Moves++
	}

	stats.PenaltyAfter = o.manager.Evaluate(sctx).TotalPenalty
	o.logger.Optimized(stats.Moves, stats.PenaltyBefore, stats.PenaltyAfter)
	return stats, nil
}

// bestMove 找出惩罚下降最多的移动，没有下降时返回 nil
func (o *LocalSearch) bestMove(ctx context.Context, sctx *constraint.Context, items []*Item, tabu *TabuList) (*move, error) {
	var best *move
	for i, item := range items {
		item.detach(sctx)
		current := o.manager.Penalty(sctx, item.Placement)
		moves := neighbors(sctx.Grid, item, i)
		err := o.evaluate(ctx, sctx, moves)
		item.attach(sctx)
		if err != nil {
			return nil, err
		}

		for _, m := range moves {
			if !m.feasible || tabu.Contains(moveKey(item, m.placement)) {
				continue
			}
			m.delta = m.penalty - current
			if m.delta < 0 && (best == nil || m.delta < best.delta) {
				best = m
			}
		}
	}
	return best, nil
}

// moveKey 排课位置的哈希 (使用FNV-1a算法)
func moveKey(item *Item, p *constraint.Placement) uint64 {
	h := fnv.New64a()
	for _, s := range item.Slots {
		h.Write(s.BatchID[:])
		h.Write(s.SubjectID[:])
	}
	h.Write([]byte(p.Day))
	for _, period := range p.Periods {
		h.Write([]byte(strconv.Itoa(period)))
	}
	h.Write(p.RoomID[:])
	return h.Sum64()
}

// TabuList 禁忌表（使用uint64哈希作为键提高性能）
type TabuList struct {
	items   map[uint64]struct{}
	order   []uint64
	maxSize int
}

// NewTabuList 创建禁忌表
func NewTabuList(size int) *TabuList {
	return &TabuList{
		items:   make(map[uint64]struct{}),
		order:   make([]uint64, 0, size),
		maxSize: size,
	}
}

// Add 添加到禁忌表
func (t *TabuList) Add(key uint64) {
	if _, exists := t.items[key]; exists {
		return
	}

	// 超出容量时移除最旧的
	if len(t.order) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.items, oldest)
	}

	t.items[key] = struct{}{}
	t.order = append(t.order, key)
}

// Contains 检查是否在禁忌表中
func (t *TabuList) Contains(key uint64) bool {
	_, exists := t.items[key]
	return exists
}

// Len 禁忌表长度
func (t *TabuList) Len() int {
	return len(t.order)
}
