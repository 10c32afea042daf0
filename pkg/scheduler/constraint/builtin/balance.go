package builtin

import (
	"fmt"
	"math"

	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// WorkloadBalanceConstraint 教师工作量均衡
type WorkloadBalanceConstraint struct {
	*BaseConstraint
}

// NewWorkloadBalanceConstraint 创建工作量均衡约束
func NewWorkloadBalanceConstraint(weight int) *WorkloadBalanceConstraint {
	return &WorkloadBalanceConstraint{
		BaseConstraint: NewBaseConstraint("工作量均衡", constraint.TypeWorkloadBalance, constraint.CategorySoft, weight),
	}
}

// EvaluatePlacement 排入后教师课时高于平均值越多，惩罚越大
// 程度按超出部分占周课时上限的百分比计算
func (c *WorkloadBalanceConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	after := float64(ctx.FacultyMinutesInWeek(p.FacultyID) + ctx.PlacementMinutes(p))
	mean := ctx.MeanFacultyMinutes()
	excess := after - mean
	if excess <= 0 {
		return true, 0
	}
	limit := float64(ctx.Workload(p.FacultyID).MaxHoursPerWeek * 60)
	degree := int(math.Round(excess * 100 / limit))
	return true, c.scaled(degree)
}

// Evaluate 以课时标准差占平均值的比例衡量整体均衡度
func (c *WorkloadBalanceConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	if len(ctx.Faculty) < 2 {
		return true, 0, nil
	}

	mean := ctx.MeanFacultyMinutes()
	if mean == 0 {
		return true, 0, nil
	}

	variance := 0.0
	for _, f := range ctx.Faculty {
		diff := float64(ctx.FacultyMinutesInWeek(f.ID)) - mean
		variance += diff * diff
	}
	variance /= float64(len(ctx.Faculty))
	cv := math.Sqrt(variance) / mean

	degree := int(math.Round(cv * 100))
	if degree == 0 {
		return true, 0, nil
	}
	penalty := c.scaled(degree)
	return false, penalty, []constraint.ViolationDetail{{
		ConstraintType: c.Type(),
		ConstraintName: c.Name(),
		Message:        fmt.Sprintf("教师课时变异系数 %.2f", cv),
		Severity:       "warning",
		Penalty:        penalty,
	}}
}
