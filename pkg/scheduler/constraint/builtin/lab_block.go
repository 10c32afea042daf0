package builtin

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// LabBlockConstraint 实验课连堂约束
// 实验课占用同一天、同一教室、同一教师的连续节次，且不跨午休
type LabBlockConstraint struct {
	*BaseConstraint
}

// NewLabBlockConstraint 创建实验课连堂约束
func NewLabBlockConstraint() *LabBlockConstraint {
	return &LabBlockConstraint{
		BaseConstraint: NewBaseConstraint("实验课连堂", constraint.TypeLabBlock, constraint.CategoryHard, 100),
	}
}

// EvaluatePlacement 评估候选排课
func (c *LabBlockConstraint) EvaluatePlacement(ctx *constraint.Context, p *constraint.Placement) (bool, int) {
	size := 1
	if p.Requirement != nil && p.Requirement.ContiguousBlockSize > 0 {
		size = p.Requirement.ContiguousBlockSize
	}
	if len(p.Periods) != size {
		return false, c.Weight()
	}
	if !ctx.Grid.HasDay(p.Day) {
		return false, c.Weight()
	}
	for i, idx := range p.Periods {
		if _, ok := ctx.Grid.Period(idx); !ok {
			return false, c.Weight()
		}
		if i == 0 {
			continue
		}
		if idx != p.Periods[i-1]+1 {
			return false, c.Weight()
		}
		if br, ok := ctx.Grid.BreakBetween(p.Periods[i-1], idx); ok && br.Kind == model.BreakLunch {
			return false, c.Weight()
		}
	}
	return true, 0
}

// Evaluate 评估整个课表中的实验课
func (c *LabBlockConstraint) Evaluate(ctx *constraint.Context) (bool, int, []constraint.ViolationDetail) {
	var violations []constraint.ViolationDetail
	totalPenalty := 0

	for _, block := range LabBlocks(ctx.Slots) {
		if msg := c.checkBlock(ctx, block); msg != "" {
			totalPenalty += c.Weight()
			violations = append(violations, c.violation(block[0], msg, c.Weight()))
		}
	}

	return len(violations) == 0, totalPenalty, violations
}

func (c *LabBlockConstraint) checkBlock(ctx *constraint.Context, block []*model.ScheduleSlot) string {
	first := block[0]
	for i, s := range block {
		if s.Day != first.Day || s.RoomID != first.RoomID || s.FacultyID != first.FacultyID {
			return "实验课连堂必须在同一天、同一教室、同一教师"
		}
		if i > 0 {
			prev := block[i-1]
			if s.Period != prev.Period+1 {
				return fmt.Sprintf("实验课第 %d 节与第 %d 节不连续", prev.Period, s.Period)
			}
			if ctx.Grid != nil {
				if br, ok := ctx.Grid.BreakBetween(prev.Period, s.Period); ok && br.Kind == model.BreakLunch {
					return "实验课连堂不能跨越午休"
				}
			}
		}
	}
	if subj := ctx.GetSubject(first.SubjectID); subj != nil && subj.BlockSize > 0 && len(block) != subj.BlockSize {
		return fmt.Sprintf("实验课连堂节数为 %d，应为 %d", len(block), subj.BlockSize)
	}
	return ""
}

// LabBlocks 按连堂标识分组实验课，组内按节次排序
func LabBlocks(slots []*model.ScheduleSlot) [][]*model.ScheduleSlot {
	groups := make(map[uuid.UUID][]*model.ScheduleSlot)
	var singles [][]*model.ScheduleSlot
	for _, s := range slots {
		if s.Kind != model.SlotLab {
			continue
		}
		if s.BlockID == uuid.Nil {
			singles = append(singles, []*model.ScheduleSlot{s})
			continue
		}
		groups[s.BlockID] = append(groups[s.BlockID], s)
	}

	blocks := make([][]*model.ScheduleSlot, 0, len(groups)+len(singles))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return model.SlotLess(g[i], g[j]) })
		blocks = append(blocks, g)
	}
	blocks = append(blocks, singles...)
	sort.Slice(blocks, func(i, j int) bool { return model.SlotLess(blocks[i][0], blocks[j][0]) })
	return blocks
}
