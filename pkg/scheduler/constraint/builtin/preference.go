package builtin

import (
	"fmt"

	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// PreferredSlotConstraint 教师偏好时段
type PreferredSlotConstraint struct {
	*BaseConstraint
}

// NewPreferredSlotConstraint 创建偏好时段约束
func NewPreferredSlotConstraint(weight int) *PreferredSlotConstraint {
	return &PreferredSlotConstraint{
		BaseConstraint: NewBaseConstraint("偏好时段", constraint.TypePreferredSlot, constraint.CategorySoft, weight),
	}
}

// EvaluatePlacement 命中偏好无惩罚；有偏好但未命中惩罚最大；未声明偏好的教师取中间值
func (c *PreferredSlotConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	f := ctx.GetFaculty(p.FacultyID)
	if f == nil || len(f.Preferences) == 0 {
		return true, c.scaled(50)
	}
	if p.Requirement == nil || len(p.Periods) == 0 {
		return true, c.scaled(100)
	}
	if f.PreferenceWeight(p.Requirement.SubjectID, p.Day, p.Periods[0]) > 0 {
		return true, 0
	}
	return true, c.scaled(100)
}

// Evaluate 统计落在偏好之外的课
func (c *PreferredSlotConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	missed := 0
	for _, s := range ctx.Slots {
		if s.IsBreak() {
			continue
		}
		f := ctx.GetFaculty(s.FacultyID)
		if f == nil || len(f.Preferences) == 0 {
			continue
		}
		if f.PreferenceWeight(s.SubjectID, s.Day, s.Period) > 0 {
			continue
		}
		missed++
		violations = append(violations, c.violation(s,
			fmt.Sprintf("教师 %s 的课未安排在偏好时段", f.Name), c.Weight()))
	}
	return missed == 0, c.scaled(missed), violations
}
