package optimizer

import (
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
	"github.com/kebiao/kebiao/pkg/timegrid"
)

// Item 一次可移动的排课及其课节
type Item struct {
	Placement *constraint.Placement
	Slots     []*model.ScheduleSlot
}

// move 把某个排课平移到同一教师、同一教室的另一组连续节次
type move struct {
	item      int
	placement *constraint.Placement
	feasible  bool
	penalty   int
	delta     int
}

func (it *Item) detach(sctx *constraint.Context) {
	for _, s := range it.Slots {
		sctx.RemoveSlot(s.ID)
	}
}

func (it *Item) attach(sctx *constraint.Context) {
	for _, s := range it.Slots {
		sctx.AddSlot(s)
	}
}

// apply 用新位置替换原课节
func (it *Item) apply(sctx *constraint.Context, p *constraint.Placement, build BuildFunc) {
	it.detach(sctx)
	it.Placement = p
	it.Slots = build(p)
	it.attach(sctx)
}

// neighbors 按星期、起始节次顺序枚举其他位置
func neighbors(grid *timegrid.Grid, it *Item, index int) []*move {
	size := len(it.Placement.Periods)
	var moves []*move
	for _, day := range grid.Days {
		for start := 1; start+size-1 <= grid.NumPeriods(); start++ {
			if day == it.Placement.Day && start == it.Placement.Periods[0] {
				continue
			}
			periods := make([]int, size)
			for i := range periods {
				periods[i] = start + i
			}
			moves = append(moves, &move{
				item: index,
				placement: &constraint.Placement{
					Requirement: it.Placement.Requirement,
					Day:         day,
					Periods:     periods,
					FacultyID:   it.Placement.FacultyID,
					RoomID:      it.Placement.RoomID,
				},
			})
		}
	}
	return moves
}
