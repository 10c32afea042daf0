// Package builtin 内置的排课硬约束与软约束
package builtin

import (
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// BaseConstraint 嵌入到具体约束中，提供名称、类型、类别和权重。
// 未覆盖 Evaluate/EvaluatePlacement 的约束总是满足
type BaseConstraint struct {
	name     string
	typ      constraint.Type
	category constraint.Category
	weight   int
}

func NewBaseConstraint(name string, typ constraint.Type, cat constraint.Category, weight int) *BaseConstraint {
	return &BaseConstraint{name: name, typ: typ, category: cat, weight: weight}
}

func (c *BaseConstraint) Name() string                  { return c.name }
func (c *BaseConstraint) Type() constraint.Type         { return c.typ }
func (c *BaseConstraint) Category() constraint.Category { return c.category }
func (c *BaseConstraint) Weight() int                   { return c.weight }

func (c *BaseConstraint) Evaluate(*constraint.Context) (bool, int, []constraint.ViolationDetail) {
	return true, 0, nil
}

func (c *BaseConstraint) EvaluatePlacement(*constraint.Context, *constraint.Placement) (bool, int) {
	return true, 0
}

// violation 硬约束为 error，软约束为 warning；s 非空时带上课节的资源与时间
func (c *BaseConstraint) violation(s *model.ScheduleSlot, message string, penalty int) constraint.ViolationDetail {
	v := constraint.ViolationDetail{
		ConstraintType: c.typ,
		ConstraintName: c.name,
		Message:        message,
		Severity:       "warning",
		Penalty:        penalty,
	}
	if c.category == constraint.CategoryHard {
		v.Severity = "error"
	}
	if s == nil {
		return v
	}
	v.FacultyID, v.RoomID, v.BatchID = s.FacultyID, s.RoomID, s.BatchID
	v.Day, v.Period = s.Day, s.Period
	return v
}

// scaled 程度截断到 [0,100] 后乘以权重
func (c *BaseConstraint) scaled(degree int) int {
	return c.weight * min(max(degree, 0), 100)
}
