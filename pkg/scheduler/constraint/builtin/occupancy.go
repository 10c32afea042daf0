package builtin

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// occupancyConstraint 同一格子内资源不可重复占用（教师/教室/教学班）
type occupancyConstraint struct {
	*BaseConstraint
	label    string
	resource func(p *constraint.Placement) uuid.UUID
	busy     func(ctx *constraint.Context, id uuid.UUID, cell constraint.Cell) bool
}

// NewFacultyClashConstraint 教师不可同时上两节课
func NewFacultyClashConstraint() constraint.Constraint {
	return &occupancyConstraint{
		BaseConstraint: NewBaseConstraint("教师时间冲突", constraint.TypeFacultyClash, constraint.CategoryHard, 100),
		label:          "教师",
		resource:       func(p *constraint.Placement) uuid.UUID { return p.FacultyID },
		busy:           (*constraint.Context).FacultyBusy,
	}
}

// NewRoomClashConstraint 教室不可同时被两节课占用
func NewRoomClashConstraint() constraint.Constraint {
	return &occupancyConstraint{
		BaseConstraint: NewBaseConstraint("教室时间冲突", constraint.TypeRoomClash, constraint.CategoryHard, 100),
		label:          "教室",
		resource:       func(p *constraint.Placement) uuid.UUID { return p.RoomID },
		busy:           (*constraint.Context).RoomBusy,
	}
}

// NewBatchClashConstraint 教学班不可同时上两节课
func NewBatchClashConstraint() constraint.Constraint {
	return &occupancyConstraint{
		BaseConstraint: NewBaseConstraint("教学班时间冲突", constraint.TypeBatchClash, constraint.CategoryHard, 100),
		label:          "教学班",
		resource: func(p *constraint.Placement) uuid.UUID {
			if p.Requirement == nil {
				return uuid.Nil
			}
			return p.Requirement.BatchID
		},
		busy: (*constraint.Context).BatchBusy,
	}
}

// Evaluate 评估整个课表
func (c *occupancyConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	totalPenalty := 0

	for _, group := range ctx.Conflicts(c.Type()) {
		first := group[0]
		penalty := c.Weight() * (len(group) - 1)
		totalPenalty += penalty
		violations = append(violations, c.violation(first,
			fmt.Sprintf("%s在 %s 第 %d 节被 %d 节课同时占用", c.label, first.Day, first.Period, len(group)),
			penalty))
	}

	return len(violations) == 0, totalPenalty, violations
}

// EvaluatePlacement 评估候选排课
func (c *occupancyConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	id := c.resource(p)
	if id == uuid.Nil {
		return true, 0
	}
	for _, cell := range p.Cells() {
		if c.busy(ctx, id, cell) {
			return false, c.Weight()
		}
	}
	return true, 0
}
