package builtin

import (
	"fmt"
	"sort"

	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// FacultyWorkloadConstraint 教师工作量上限约束
// 每日课时、每周课时、连续授课时长均不超过教师的工作量配置
type FacultyWorkloadConstraint struct {
	*BaseConstraint
}

// NewFacultyWorkloadConstraint 创建工作量约束
func NewFacultyWorkloadConstraint() *FacultyWorkloadConstraint {
	return &FacultyWorkloadConstraint{
		BaseConstraint: NewBaseConstraint("教师工作量上限", constraint.TypeFacultyWorkload, constraint.CategoryHard, 100),
	}
}

// WorkloadUsage 教师在某天的已有课时
type WorkloadUsage struct {
	Day         []model.Interval // 当天已有课的时间区间
	WeekMinutes int              // 本周已有分钟数
}

// CheckWorkload 检查追加 add 后是否超出工作量配置，返回违反原因
func CheckWorkload(cfg model.WorkloadConfig, usage WorkloadUsage, add []model.Interval) string {
	cfg = cfg.WithDefaults()

	addMinutes := 0
	for _, iv := range add {
		addMinutes += iv.Minutes()
	}

	dayMinutes := addMinutes
	for _, iv := range usage.Day {
		dayMinutes += iv.Minutes()
	}
	if dayMinutes > cfg.MaxHoursPerDay*60 {
		return fmt.Sprintf("当天课时 %.1f 小时超过上限 %d 小时", float64(dayMinutes)/60, cfg.MaxHoursPerDay)
	}

	if usage.WeekMinutes+addMinutes > cfg.MaxHoursPerWeek*60 {
		return fmt.Sprintf("本周课时 %.1f 小时超过上限 %d 小时", float64(usage.WeekMinutes+addMinutes)/60, cfg.MaxHoursPerWeek)
	}

	all := make([]model.Interval, 0, len(usage.Day)+len(add))
	all = append(all, usage.Day...)
	all = append(all, add...)
	if longest := LongestRun(all, cfg.PreferredBreakMinutes); longest > cfg.MaxConsecutiveHours*60 {
		return fmt.Sprintf("连续授课 %.1f 小时超过上限 %d 小时", float64(longest)/60, cfg.MaxConsecutiveHours)
	}
	return ""
}

// LongestRun 返回最长连续授课分钟数
// 两节课之间的间隔短于 preferredBreak 分钟时视为连续
func LongestRun(intervals []model.Interval, preferredBreak int) int {
	if len(intervals) == 0 {
		return 0
	}
	sorted := make([]model.Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	longest, run := 0, sorted[0].Minutes()
	for i := 1; i < len(sorted); i++ {
		gap := int(sorted[i].Start - sorted[i-1].End)
		if gap <= 0 || gap < preferredBreak {
			run += sorted[i].Minutes()
		} else {
			if run > longest {
				longest = run
			}
			run = sorted[i].Minutes()
		}
	}
	if run > longest {
		longest = run
	}
	return longest
}

// EvaluatePlacement 评估候选排课
func (c *FacultyWorkloadConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	existing := ctx.FacultySlotsOnDay(p.FacultyID, p.Day)
	usage := WorkloadUsage{
		Day:         make([]model.Interval, len(existing)),
		WeekMinutes: ctx.FacultyMinutesInWeek(p.FacultyID),
	}
	for i, s := range existing {
		usage.Day[i] = s.Interval()
	}

	add := make([]model.Interval, 0, len(p.Periods))
	for _, idx := range p.Periods {
		if period, ok := ctx.Grid.Period(idx); ok {
			add = append(add, period.Interval())
		}
	}

	if reason := CheckWorkload(ctx.Workload(p.FacultyID), usage, add); reason != "" {
		return false, c.Weight()
	}
	return true, 0
}

// Evaluate 评估整个课表
func (c *FacultyWorkloadConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	totalPenalty := 0

	for _, f := range ctx.Faculty {
		cfg := ctx.Workload(f.ID)
		weekMinutes := ctx.FacultyMinutesInWeek(f.ID)
		if weekMinutes > cfg.MaxHoursPerWeek*60 {
			totalPenalty += c.Weight()
			violations = append(violations, constraint.ViolationDetail{
				ConstraintType: c.Type(),
				ConstraintName: c.Name(),
				FacultyID:      f.ID,
				Message:        fmt.Sprintf("教师 %s 本周课时 %.1f 小时超过上限 %d 小时", f.Name, float64(weekMinutes)/60, cfg.MaxHoursPerWeek),
				Severity:       "error",
				Penalty:        c.Weight(),
			})
		}

		for _, day := range ctx.Grid.Days {
			slots := ctx.FacultySlotsOnDay(f.ID, day)
			if len(slots) == 0 {
				continue
			}
			intervals := make([]model.Interval, len(slots))
			for i, s := range slots {
				intervals[i] = s.Interval()
			}
			// 周课时已单独检查，此处只看当天
			reason := CheckWorkload(cfg, WorkloadUsage{}, intervals)
			if reason == "" {
				continue
			}
			totalPenalty += c.Weight()
			violations = append(violations, c.violation(slots[0],
				fmt.Sprintf("教师 %s 在 %s %s", f.Name, day, reason), c.Weight()))
		}
	}

	return len(violations) == 0, totalPenalty, violations
}
