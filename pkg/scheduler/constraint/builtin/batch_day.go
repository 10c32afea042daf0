package builtin

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// dayKinds 教学班某天各节次的课型
func dayKinds(ctx *constraint.Context, batchID uuid.UUID, day model.Weekday) map[int]model.SlotKind {
	kinds := make(map[int]model.SlotKind)
	for _, s := range ctx.BatchSlotsOnDay(batchID, day) {
		kinds[s.Period] = s.Kind
	}
	return kinds
}

// withPlacement 在课型表上叠加候选排课
func withPlacement(kinds map[int]model.SlotKind, p *constraint.Placement) map[int]model.SlotKind {
	kind := model.SlotTheory
	if p.Requirement != nil && p.Requirement.IsLab() {
		kind = model.SlotLab
	}
	out := make(map[int]model.SlotKind, len(kinds)+len(p.Periods))
	for k, v := range kinds {
		out[k] = v
	}
	for _, idx := range p.Periods {
		out[idx] = kind
	}
	return out
}

// gaps 空堂数：首末节之间未排课的节数
func gaps(kinds map[int]model.SlotKind) int {
	if len(kinds) == 0 {
		return 0
	}
	lo, hi := -1, -1
	for period := range kinds {
		if lo == -1 || period < lo {
			lo = period
		}
		if period > hi {
			hi = period
		}
	}
	return hi - lo + 1 - len(kinds)
}

// heavyLabs 紧跟在两节及以上连续理论课之后的实验课数量
func heavyLabs(kinds map[int]model.SlotKind) int {
	count := 0
	for period, kind := range kinds {
		if kind != model.SlotLab || kinds[period-1] == model.SlotLab {
			continue
		}
		if kinds[period-1] == model.SlotTheory && kinds[period-2] == model.SlotTheory {
			count++
		}
	}
	return count
}

// labStarts 当天实验课的开始节数
func labStarts(kinds map[int]model.SlotKind) int {
	count := 0
	for period, kind := range kinds {
		if kind == model.SlotLab && kinds[period-1] != model.SlotLab {
			count++
		}
	}
	return count
}

type batchDay struct {
	batch uuid.UUID
	day   model.Weekday
}

// batchDays 课表中出现的（教学班，星期）
func batchDays(ctx *constraint.Context) []batchDay {
	seen := make(map[string]bool)
	var result []batchDay
	for _, s := range ctx.Slots {
		if s.IsBreak() {
			continue
		}
		key := s.BatchID.String() + string(s.Day)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, batchDay{batch: s.BatchID, day: s.Day})
	}
	return result
}

// StudentGapConstraint 学生空堂最少
type StudentGapConstraint struct {
	*BaseConstraint
}

// NewStudentGapConstraint 创建空堂约束
func NewStudentGapConstraint(weight int) *StudentGapConstraint {
	return &StudentGapConstraint{
		BaseConstraint: NewBaseConstraint("学生空堂", constraint.TypeStudentGap, constraint.CategorySoft, weight),
	}
}

// EvaluatePlacement 每个空堂计 25 度
func (c *StudentGapConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	if p.Requirement == nil {
		return true, 0
	}
	after := withPlacement(dayKinds(ctx, p.Requirement.BatchID, p.Day), p)
	return true, c.scaled(gaps(after) * 25)
}

// Evaluate 评估整个课表
func (c *StudentGapConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	total := 0
	for _, bd := range batchDays(ctx) {
		n := gaps(dayKinds(ctx, bd.batch, bd.day))
		if n == 0 {
			continue
		}
		penalty := c.scaled(n * 25)
		total += penalty
		violations = append(violations, constraint.ViolationDetail{
			ConstraintType: c.Type(),
			ConstraintName: c.Name(),
			BatchID:        bd.batch,
			Day:            bd.day,
			Message:        fmt.Sprintf("教学班在 %s 有 %d 个空堂", bd.day, n),
			Severity:       "warning",
			Penalty:        penalty,
		})
	}
	return len(violations) == 0, total, violations
}

// LabSpacingConstraint 实验课避开连续理论课之后，并尽量分散到不同天
type LabSpacingConstraint struct {
	*BaseConstraint
}

// NewLabSpacingConstraint 创建实验课间隔约束
func NewLabSpacingConstraint(weight int) *LabSpacingConstraint {
	return &LabSpacingConstraint{
		BaseConstraint: NewBaseConstraint("实验课间隔", constraint.TypeLabSpacing, constraint.CategorySoft, weight),
	}
}

// EvaluatePlacement 新增一个“重课后实验”计 100 度，同日第二个实验计 60 度
func (c *LabSpacingConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	if p.Requirement == nil {
		return true, 0
	}
	before := dayKinds(ctx, p.Requirement.BatchID, p.Day)
	after := withPlacement(before, p)

	degree := (heavyLabs(after) - heavyLabs(before)) * 100
	if p.Requirement.IsLab() && labStarts(before) > 0 {
		degree += 60
	}
	return true, c.scaled(degree)
}

// Evaluate 评估整个课表
func (c *LabSpacingConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	total := 0
	for _, bd := range batchDays(ctx) {
		kinds := dayKinds(ctx, bd.batch, bd.day)
		degree := heavyLabs(kinds) * 100
		if extra := labStarts(kinds) - 1; extra > 0 {
			degree += extra * 60
		}
		if degree == 0 {
			continue
		}
		penalty := c.scaled(degree)
		total += penalty
		violations = append(violations, constraint.ViolationDetail{
			ConstraintType: c.Type(),
			ConstraintName: c.Name(),
			BatchID:        bd.batch,
			Day:            bd.day,
			Message:        fmt.Sprintf("教学班在 %s 的实验课安排过密或紧跟连续理论课", bd.day),
			Severity:       "warning",
			Penalty:        penalty,
		})
	}
	return len(violations) == 0, total, violations
}

// SubjectSpreadConstraint 同一课程尽量不在同一天重复
type SubjectSpreadConstraint struct {
	*BaseConstraint
}

// NewSubjectSpreadConstraint 创建课程分散约束
func NewSubjectSpreadConstraint(weight int) *SubjectSpreadConstraint {
	return &SubjectSpreadConstraint{
		BaseConstraint: NewBaseConstraint("课程分散", constraint.TypeSubjectSpread, constraint.CategorySoft, weight),
	}
}

// EvaluatePlacement 当天已有同课程时，每多一次计 100 度
func (c *SubjectSpreadConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	if p.Requirement == nil {
		return true, 0
	}
	same := 0
	for _, s := range ctx.BatchSlotsOnDay(p.Requirement.BatchID, p.Day) {
		if s.SubjectID == p.Requirement.SubjectID {
			same++
		}
	}
	if same == 0 {
		return true, 0
	}
	// 实验课按连堂整体计
	if p.Requirement.ContiguousBlockSize > 1 {
		same = (same + p.Requirement.ContiguousBlockSize - 1) / p.Requirement.ContiguousBlockSize
	}
	return true, c.scaled(same * 100)
}

// Evaluate 评估整个课表
func (c *SubjectSpreadConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	total := 0
	for _, bd := range batchDays(ctx) {
		counts := make(map[uuid.UUID]int)
		for _, s := range ctx.BatchSlotsOnDay(bd.batch, bd.day) {
			if s.Kind == model.SlotTheory {
				counts[s.SubjectID]++
			}
		}
		subjects := make([]uuid.UUID, 0, len(counts))
		for subject := range counts {
			subjects = append(subjects, subject)
		}
		sort.Slice(subjects, func(i, j int) bool { return subjects[i].String() < subjects[j].String() })
		for _, subject := range subjects {
			n := counts[subject]
			if n < 2 {
				continue
			}
			penalty := c.scaled((n - 1) * 100)
			total += penalty
			violations = append(violations, constraint.ViolationDetail{
				ConstraintType: c.Type(),
				ConstraintName: c.Name(),
				BatchID:        bd.batch,
				Day:            bd.day,
				Message:        fmt.Sprintf("课程 %s 在 %s 重复 %d 次", subject, bd.day, n),
				Severity:       "warning",
				Penalty:        penalty,
			})
		}
	}
	return len(violations) == 0, total, violations
}
