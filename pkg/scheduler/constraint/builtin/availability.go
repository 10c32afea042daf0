package builtin

import (
	"fmt"

	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// FacultyAvailabilityConstraint 教师不可排课日约束
// 局部重排时，被标记为过期的（教师，星期）不再接受新课
type FacultyAvailabilityConstraint struct {
	*BaseConstraint
}

// NewFacultyAvailabilityConstraint 创建可用性约束
func NewFacultyAvailabilityConstraint() *FacultyAvailabilityConstraint {
	return &FacultyAvailabilityConstraint{
		BaseConstraint: NewBaseConstraint("教师可用性", constraint.TypeFacultyAvailability, constraint.CategoryHard, 100),
	}
}

// EvaluatePlacement 评估候选排课
func (c *FacultyAvailabilityConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	if ctx.IsUnavailable(p.FacultyID, p.Day) {
		return false, c.Weight()
	}
	return true, 0
}

// Evaluate 评估整个课表
func (c *FacultyAvailabilityConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	for _, s := range ctx.Slots {
		if s.IsBreak() || !ctx.IsUnavailable(s.FacultyID, s.Day) {
			continue
		}
		violations = append(violations, c.violation(s,
			fmt.Sprintf("教师在 %s 不可排课", s.Day), c.Weight()))
	}
	return len(violations) == 0, len(violations) * c.Weight(), violations
}
