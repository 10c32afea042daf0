// Package timegrid 根据作息配置计算每天的节次
package timegrid

import (
	"sort"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

// Period 一天中的一节课（不含星期）
type Period struct {
	Index int         `json:"period"`
	Start model.Clock `json:"start"`
	End   model.Clock `json:"end"`
	Label string      `json:"label"`
}

// Interval 返回时间区间
func (p Period) Interval() model.Interval {
	return model.Interval{Start: p.Start, End: p.End}
}

// Calculate 从开始时间向后推进生成节次
// 若某休息恰好从游标处开始，先把游标移到休息结束；最后一节之后不加课间
func Calculate(t model.CollegeTimings, breaks []model.Break) ([]Period, error) {
	if err := validate(t, breaks); err != nil {
		return nil, err
	}

	sorted := make([]model.Break, len(breaks))
	copy(sorted, breaks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	periods := make([]Period, 0, t.NumPeriods)
	cursor := t.Start
	for i := 1; i <= t.NumPeriods; i++ {
		for advanced := true; advanced; {
			advanced = false
			for _, b := range sorted {
				if b.Start == cursor {
					cursor = b.End
					advanced = true
				}
			}
		}

		end := cursor.Add(t.PeriodDuration)
		if end > t.End {
			return nil, apperrors.InvalidConfiguration(
				"第 %d 节结束于 %s，超出作息结束时间 %s", i, end, t.End)
		}
		periods = append(periods, Period{
			Index: i,
			Start: cursor,
			End:   end,
			Label: model.Interval{Start: cursor, End: end}.Label(),
		})

		cursor = end
		if i < t.NumPeriods {
			cursor = cursor.Add(t.BreakGap)
		}
	}
	return periods, nil
}

func validate(t model.CollegeTimings, breaks []model.Break) error {
	if t.PeriodDuration <= 0 {
		return apperrors.InvalidConfiguration("每节时长必须大于0，当前为 %d", t.PeriodDuration)
	}
	if t.NumPeriods <= 0 {
		return apperrors.InvalidConfiguration("节数必须大于0，当前为 %d", t.NumPeriods)
	}
	if t.BreakGap < 0 {
		return apperrors.InvalidConfiguration("课间时长不能为负数")
	}
	if t.End <= t.Start {
		return apperrors.InvalidConfiguration("结束时间 %s 必须晚于开始时间 %s", t.End, t.Start)
	}
	for _, b := range breaks {
		if b.End <= b.Start {
			return apperrors.InvalidConfiguration("休息 %q 的结束时间必须晚于开始时间", b.Name)
		}
	}
	for _, d := range t.Days {
		if !d.Valid() {
			return apperrors.InvalidConfiguration("无效的星期: %q", d)
		}
	}
	return nil
}

// Grid 一周的节次网格
type Grid struct {
	Days    []model.Weekday `json:"days"`
	Periods []Period        `json:"periods"`
	Breaks  []model.Break   `json:"breaks"`
}

// Build 计算节次并按教学日展开
func Build(t model.CollegeTimings, breaks []model.Break) (*Grid, error) {
	periods, err := Calculate(t, breaks)
	if err != nil {
		return nil, err
	}
	days := make([]model.Weekday, len(t.TeachingDays()))
	copy(days, t.TeachingDays())
	sort.SliceStable(days, func(i, j int) bool { return days[i].Order() < days[j].Order() })

	bs := make([]model.Break, len(breaks))
	copy(bs, breaks)
	sort.Slice(bs, func(i, j int) bool { return bs[i].Start < bs[j].Start })

	return &Grid{Days: dedupeDays(days), Periods: periods, Breaks: bs}, nil
}

func dedupeDays(days []model.Weekday) []model.Weekday {
	out := make([]model.Weekday, 0, len(days))
	for _, d := range days {
		if len(out) > 0 && out[len(out)-1] == d {
			continue
		}
		out = append(out, d)
	}
	return out
}

// NumPeriods 每天节数
func (g *Grid) NumPeriods() int {
	return len(g.Periods)
}

// Period 返回第 index 节（从1开始）
func (g *Grid) Period(index int) (Period, bool) {
	if index < 1 || index > len(g.Periods) {
		return Period{}, false
	}
	return g.Periods[index-1], true
}

// Slot 返回某天某节的时间段
func (g *Grid) Slot(day model.Weekday, index int) (model.TimeSlot, bool) {
	p, ok := g.Period(index)
	if !ok || !g.HasDay(day) {
		return model.TimeSlot{}, false
	}
	return model.TimeSlot{Day: day, Period: p.Index, Start: p.Start, End: p.End, Label: p.Label}, true
}

// HasDay 是否教学日
func (g *Grid) HasDay(day model.Weekday) bool {
	for _, d := range g.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Slots 按 (星期, 开始时间) 全序返回所有时间段
func (g *Grid) Slots() []model.TimeSlot {
	slots := make([]model.TimeSlot, 0, len(g.Days)*len(g.Periods))
	for _, d := range g.Days {
		for _, p := range g.Periods {
			slots = append(slots, model.TimeSlot{Day: d, Period: p.Index, Start: p.Start, End: p.End, Label: p.Label})
		}
	}
	return slots
}

// BreakBetween 返回位于第 p 节结束与第 q 节开始之间的休息
func (g *Grid) BreakBetween(p, q int) (model.Break, bool) {
	a, okA := g.Period(p)
	b, okB := g.Period(q)
	if !okA || !okB || a.End > b.Start {
		return model.Break{}, false
	}
	for _, br := range g.Breaks {
		if br.Start >= a.End && br.End <= b.Start {
			return br, true
		}
	}
	return model.Break{}, false
}

// Gap 两节之间的间隔分钟数
func (g *Grid) Gap(p, q int) int {
	a, okA := g.Period(p)
	b, okB := g.Period(q)
	if !okA || !okB {
		return 0
	}
	return int(b.Start - a.End)
}
