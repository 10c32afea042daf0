package constraint

import (
	"sort"
	"sync"

	"github.com/kebiao/kebiao/pkg/logger"
)

// Manager 持有已注册的硬约束与软约束，可并发读取
type Manager struct {
	mu   sync.RWMutex
	hard []Constraint
	soft []Constraint
	log  *logger.EngineLogger
}

// NewManager 创建空的约束管理器
func NewManager() *Manager {
	return &Manager{log: logger.NewEngineLogger("constraint")}
}

// byPriority 权重高的在前，权重相同按类型
func byPriority(list []Constraint) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Weight() != list[j].Weight() {
			return list[i].Weight() > list[j].Weight()
		}
		return list[i].Type() < list[j].Type()
	})
}

func without(list []Constraint, t Type) []Constraint {
	out := list[:0]
	for _, c := range list {
		if c.Type() != t {
			out = append(out, c)
		}
	}
	return out
}

// Register 注册约束，已有同类型约束时替换
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hard = without(m.hard, c.Type())
	m.soft = without(m.soft, c.Type())
	if c.Category() == CategoryHard {
		m.hard = append(m.hard, c)
		byPriority(m.hard)
	} else {
		m.soft = append(m.soft, c)
		byPriority(m.soft)
	}
}

// GetConstraint 没有该类型时返回 nil
func (m *Manager) GetConstraint(t Type) Constraint {
	for _, c := range m.GetAll() {
		if c.Type() == t {
			return c
		}
	}
	return nil
}

// GetAll 硬约束在前
func (m *Manager) GetAll() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Constraint, 0, len(m.hard)+len(m.soft))
	return append(append(out, m.hard...), m.soft...)
}

// GetByCategory 返回副本
func (m *Manager) GetByCategory(cat Category) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.soft
	if cat == CategoryHard {
		src = m.hard
	}
	return append([]Constraint(nil), src...)
}

func (m *Manager) Clear() {
	m.mu.Lock()
	m.hard, m.soft = nil, nil
	m.mu.Unlock()
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hard) + len(m.soft)
}

// Evaluate 评估整个课表。硬约束只影响 IsValid，软约束惩罚计入得分，
// 满分按每个约束最多违反 100 次估算
func (m *Manager) Evaluate(ctx *Context) *Result {
	result := &Result{
		IsValid:        true,
		HardViolations: []ViolationDetail{},
		SoftViolations: []ViolationDetail{},
	}

	ceiling := 0
	for _, c := range m.GetByCategory(CategoryHard) {
		ceiling += c.Weight() * 100
		ok, _, details := c.Evaluate(ctx)
		if ok {
			continue
		}
		result.IsValid = false
		result.HardViolations = append(result.HardViolations, details...)
		for _, d := range details {
			m.log.ConstraintViolation(c.Name(), d.Message)
		}
	}
	for _, c := range m.GetByCategory(CategorySoft) {
		ceiling += c.Weight() * 100
		_, penalty, details := c.Evaluate(ctx)
		result.TotalPenalty += penalty
		result.SoftViolations = append(result.SoftViolations, details...)
	}

	result.CalculateScore(ceiling)
	return result
}

// CanPlace 候选排课是否满足全部硬约束，不满足时返回第一个违反的约束名
func (m *Manager) CanPlace(ctx *Context, p *Placement) (bool, string) {
	for _, c := range m.GetByCategory(CategoryHard) {
		if ok, _ := c.EvaluatePlacement(ctx, p); !ok {
			return false, "违反硬约束: " + c.Name()
		}
	}
	return true, ""
}

// Penalty 候选排课的软约束惩罚之和，权重为 0 的约束不参与
func (m *Manager) Penalty(ctx *Context, p *Placement) int {
	total := 0
	for _, c := range m.GetByCategory(CategorySoft) {
		if c.Weight() == 0 {
			continue
		}
		_, penalty := c.EvaluatePlacement(ctx, p)
		total += penalty
	}
	return total
}
