// Package solver 提供排课求解器
package solver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
	"github.com/kebiao/kebiao/pkg/scheduler/optimizer"
	"github.com/kebiao/kebiao/pkg/timegrid"
	"golang.org/x/sync/errgroup"
)

// Mode 排课模式
type Mode string

const (
	ModeFull    Mode = "full"    // 重排范围内教学班的全部课
	ModePartial Mode = "partial" // 只重排被标记过期的课
)

// DefaultBacktrackFactor 回溯次数上限 = 系数 × 排课单元数
const DefaultBacktrackFactor = 3

// slotNamespace 课节 ID 的命名空间，相同输入得到相同 ID
var slotNamespace = uuid.MustParse("3d1f4b2a-9c6e-4e8a-b7d5-2a0c9e1f6b34")

// StaleFilter 局部重排时标记过期课节
// 指定教师时，该教师在指定星期（未指定则全部星期）不再接受新课
type StaleFilter struct {
	FacultyID *uuid.UUID    `json:"faculty_id,omitempty"`
	Day       model.Weekday `json:"day,omitempty"`
	SlotIDs   []uuid.UUID   `json:"slot_ids,omitempty"`
}

// Matches 课节是否过期
func (f *StaleFilter) Matches(s *model.ScheduleSlot) bool {
	if f == nil || s.IsBreak() {
		return false
	}
	for _, id := range f.SlotIDs {
		if id == s.ID {
			return true
		}
	}
	if f.FacultyID != nil {
		return s.FacultyID == *f.FacultyID && (f.Day == "" || f.Day == s.Day)
	}
	return f.Day != "" && f.Day == s.Day
}

// Request 排课请求，所有数据均为只读快照
type Request struct {
	BatchIDs     []uuid.UUID
	Requirements []*model.Requirement
	Pools        map[uuid.UUID]*ResourcePool // 为空时按教师能力和教室类型生成
	Grid         *timegrid.Grid
	Weights      model.Weights

	Faculty  []*model.Faculty
	Rooms    []*model.Room
	Batches  []*model.Batch
	Subjects []*model.Subject

	// 当前已提交的课表（包括范围外教学班）
	Existing []*model.ScheduleSlot

	Mode       Mode
	Stale      *StaleFilter
	EmitBreaks bool // 全量模式下为每个教学班生成休息行

	// 排完后的局部搜索，MaxIterations 为 0 时跳过
	Optimize optimizer.Config
}

// Result 求解结果
type Result struct {
	Slots            []*model.ScheduleSlot          `json:"slots"`
	Replaced         []uuid.UUID                    `json:"replaced"`
	Unsatisfied      []model.UnsatisfiedRequirement `json:"unsatisfied"`
	ConstraintResult *constraint.Result             `json:"constraint_result"`
	Statistics       *Statistics                    `json:"statistics"`
	Duration         time.Duration                  `json:"duration"`
	Success          bool                           `json:"success"`
	Message          string                         `json:"message,omitempty"`
}

// Statistics 排课统计
type Statistics struct {
	Requirements int     `json:"requirements"`
	Units        int     `json:"units"`
	Placed       int     `json:"placed"`
	Fixed        int     `json:"fixed"`
	Backtracks   int     `json:"backtracks"`
	FillRate     float64 `json:"fill_rate"`

	Optimization *optimizer.Stats `json:"optimization,omitempty"`
}

// Engine 排课引擎：最受限优先的贪心 + 有限回溯
type Engine struct {
	manager         *constraint.Manager
	logger          *logger.EngineLogger
	backtrackFactor int
}

// NewEngine 创建排课引擎
func NewEngine(manager *constraint.Manager, backtrackFactor int) *Engine {
	if backtrackFactor <= 0 {
		backtrackFactor = DefaultBacktrackFactor
	}
	return &Engine{
		manager:         manager,
		logger:          logger.NewEngineLogger("solver"),
		backtrackFactor: backtrackFactor,
	}
}

// unit 一次排课单元：某需求的一次（或一组连堂）
type unit struct {
	index     int
	req       *model.Requirement
	seq       int
	size      int
	pool      *ResourcePool
	scarcity  int
	noPoolMsg string
}

func (u *unit) label() string {
	return fmt.Sprintf("%s#%d", u.req.ID, u.seq)
}

// window 一天中的连续节次
type window struct {
	day     model.Weekday
	periods []int
}

type candKey struct {
	day     model.Weekday
	start   int
	faculty uuid.UUID
	room    uuid.UUID
}

type candidate struct {
	placement *constraint.Placement
	penalty   int
}

func (c *candidate) key() candKey {
	return candKey{
		day:     c.placement.Day,
		start:   c.placement.Periods[0],
		faculty: c.placement.FacultyID,
		room:    c.placement.RoomID,
	}
}

// record 已提交的一次排课，用于回溯
type record struct {
	unit   *unit
	cand   *candidate
	margin float64
	slots  []*model.ScheduleSlot
	order  int
}

// Generate 生成课表
// 无法排入的需求作为结果的一部分返回，不视为错误；配置错误在任何修改前返回
func (e *Engine) Generate(ctx context.Context, req *Request) (*Result, error) {
	startTime := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	scope := scopeOf(req)
	fixed, replaced := partition(req, scope)

	sctx := constraint.NewContext(req.Grid, req.Weights)
	sctx.SetFaculty(req.Faculty)
	sctx.SetRooms(req.Rooms)
	sctx.SetBatches(req.Batches)
	sctx.SetSubjects(req.Subjects)
	sctx.SetSlots(fixed)
	if req.Mode == ModePartial && req.Stale != nil && req.Stale.FacultyID != nil {
		days := req.Grid.Days
		if req.Stale.Day != "" {
			days = []model.Weekday{req.Stale.Day}
		}
		for _, day := range days {
			sctx.MarkUnavailable(*req.Stale.FacultyID, day)
		}
	}

	pools := req.Pools
	if pools == nil {
		pools = BuildPools(req.Requirements, req.Faculty, req.Rooms, req.Batches)
	}

	reqs := scopedRequirements(req.Requirements, scope)
	units := expandUnits(reqs, pools, fixed)
	e.logger.StartGenerate(string(req.Mode), len(scope), len(units))

	windows := buildWindows(req.Grid, units)
	if err := e.scoreScarcity(ctx, sctx, units, windows); err != nil {
		return nil, err
	}
	sort.SliceStable(units, func(i, j int) bool { return unitLess(units[i], units[j]) })

	result := &Result{
		Statistics: &Statistics{
			Requirements: len(reqs),
			Units:        len(units),
			Fixed:        countTeaching(fixed),
		},
	}

	placed, unsatisfied, backtracks, err := e.search(ctx, sctx, units, windows)
	if err != nil {
		return nil, err
	}
	if req.Optimize.MaxIterations > 0 && len(placed) > 0 {
		stats, err := e.optimize(ctx, sctx, placed, req.Optimize)
		if err != nil {
			return nil, err
		}
		result.Statistics.Optimization = stats
	}

	var slots []*model.ScheduleSlot
	for _, r := range placed {
		slots = append(slots, r.slots...)
	}
	if req.EmitBreaks && req.Mode == ModeFull {
		breaks := breakRows(req.Grid, scope)
		for _, b := range breaks {
			sctx.AddSlot(b)
		}
		slots = append(slots, breaks...)
	}
	sort.Slice(slots, func(i, j int) bool { return model.SlotLess(slots[i], slots[j]) })

	result.Slots = slots
	result.Replaced = replaced
	result.Unsatisfied = unsatisfied
	result.ConstraintResult = e.manager.Evaluate(sctx)
	result.Statistics.Placed = len(placed)
	result.Statistics.Backtracks = backtracks
	if len(units) > 0 {
		result.Statistics.FillRate = float64(len(placed)) / float64(len(units)) * 100
	}
	result.Success = len(unsatisfied) == 0 && result.ConstraintResult.IsValid
	result.Duration = time.Since(startTime)

	switch {
	case !result.ConstraintResult.IsValid:
		result.Message = fmt.Sprintf("存在 %d 个硬约束违反", len(result.ConstraintResult.HardViolations))
	case len(unsatisfied) > 0:
		result.Message = apperrors.InfeasibleInstance(len(unsatisfied)).Message
	default:
		result.Message = fmt.Sprintf("排课成功，共 %d 节", countTeaching(slots))
	}

	e.logger.GenerateComplete(len(slots), len(unsatisfied), backtracks, result.Duration)
	return result, nil
}

// optimize 只移动本次新排的课，固定课不动
func (e *Engine) optimize(ctx context.Context, sctx *constraint.Context, placed []*record, cfg optimizer.Config) (*optimizer.Stats, error) {
	items := make([]*optimizer.Item, len(placed))
	for i, r := range placed {
		items[i] = &optimizer.Item{Placement: r.cand.placement, Slots: r.slots}
	}
	build := func(p *constraint.Placement) []*model.ScheduleSlot { return materialize(sctx.Grid, p) }
	stats, err := optimizer.NewLocalSearch(e.manager, build, cfg).Improve(ctx, sctx, items)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "排课超时或被取消")
	}
	for i, it := range items {
		placed[i].cand.placement = it.Placement
		placed[i].slots = it.Slots
	}
	return &stats, nil
}

// search 依次为每个单元选择最优候选，无候选时撤销置信度最低的竞争排课
func (e *Engine) search(ctx context.Context, sctx *constraint.Context, units []*unit, windows map[int][]window) ([]*record, []model.UnsatisfiedRequirement, int, error) {
	limit := e.backtrackFactor * len(units)
	tabu := make(map[int]map[candKey]bool)
	queue := make([]*unit, len(units))
	copy(queue, units)

	var placed []*record
	missing := make(map[uuid.UUID]*model.UnsatisfiedRequirement)
	var missingOrder []uuid.UUID
	backtracks, order := 0, 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, backtracks, apperrors.Wrap(err, apperrors.CodeInternal, "排课超时或被取消")
		}

		u := queue[0]
		queue = queue[1:]

		cands := e.candidates(sctx, u, windows[u.size], tabu[u.index])
		if len(cands) == 0 {
			if backtracks < limit && !u.pool.Empty() {
				if i := pickVictim(placed, u); i >= 0 {
					victim := placed[i]
					placed = append(placed[:i], placed[i+1:]...)
					for _, s := range victim.slots {
						sctx.RemoveSlot(s.ID)
					}
					if tabu[victim.unit.index] == nil {
						tabu[victim.unit.index] = make(map[candKey]bool)
					}
					tabu[victim.unit.index][victim.cand.key()] = true
					backtracks++
					e.logger.Backtrack(u.label(), victim.unit.label(), backtracks)
					queue = append([]*unit{u, victim.unit}, queue...)
					continue
				}
			}

			reason := u.noPoolMsg
			if reason == "" {
				reason = "没有满足硬约束的时段、教师和教室组合"
			}
			e.logger.Unsatisfied(u.label(), reason)
			if m, ok := missing[u.req.ID]; ok {
				m.Missing++
			} else {
				missing[u.req.ID] = &model.UnsatisfiedRequirement{
					RequirementID: u.req.ID,
					BatchID:       u.req.BatchID,
					SubjectID:     u.req.SubjectID,
					Missing:       1,
					Reason:        reason,
				}
				missingOrder = append(missingOrder, u.req.ID)
			}
			continue
		}

		best := cands[0]
		margin := math.Inf(1)
		if len(cands) > 1 {
			margin = float64(cands[1].penalty - best.penalty)
		}
		slots := materialize(sctx.Grid, best.placement)
		for _, s := range slots {
			sctx.AddSlot(s)
		}
		order++
		placed = append(placed, &record{unit: u, cand: best, margin: margin, slots: slots, order: order})
	}

	sort.Slice(missingOrder, func(i, j int) bool { return missingOrder[i].String() < missingOrder[j].String() })
	unsatisfied := make([]model.UnsatisfiedRequirement, 0, len(missingOrder))
	for _, id := range missingOrder {
		unsatisfied = append(unsatisfied, *missing[id])
	}
	return placed, unsatisfied, backtracks, nil
}

// candidates 返回满足全部硬约束的候选，按惩罚升序排列
func (e *Engine) candidates(sctx *constraint.Context, u *unit, windows []window, tabu map[candKey]bool) []*candidate {
	if u.pool.Empty() {
		return nil
	}
	var out []*candidate
	for _, w := range windows {
		for _, fid := range u.pool.Faculty {
			for _, rid := range u.pool.Rooms {
				c := &candidate{placement: &constraint.Placement{
					Requirement: u.req,
					Day:         w.day,
					Periods:     w.periods,
					FacultyID:   fid,
					RoomID:      rid,
				}}
				if tabu[c.key()] {
					continue
				}
				if ok, _ := e.manager.CanPlace(sctx, c.placement); !ok {
					continue
				}
				c.penalty = e.manager.Penalty(sctx, c.placement)
				out = append(out, c)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return candidateLess(out[i], out[j]) })
	return out
}

func candidateLess(a, b *candidate) bool {
	if a.penalty != b.penalty {
		return a.penalty < b.penalty
	}
	pa, pb := a.placement, b.placement
	if pa.Day != pb.Day {
		return pa.Day.Order() < pb.Day.Order()
	}
	if pa.Periods[0] != pb.Periods[0] {
		return pa.Periods[0] < pb.Periods[0]
	}
	if pa.FacultyID != pb.FacultyID {
		return pa.FacultyID.String() < pb.FacultyID.String()
	}
	return pa.RoomID.String() < pb.RoomID.String()
}

// pickVictim 在与 u 竞争同一教学班、教师或教室的已排课中，选择差值最小的一次（同值取最近）
func pickVictim(placed []*record, u *unit) int {
	victim := -1
	for i, r := range placed {
		p := r.cand.placement
		competes := r.unit.req.BatchID == u.req.BatchID || u.pool.Has(p.FacultyID, p.RoomID)
		if !competes {
			continue
		}
		if victim == -1 || r.margin < placed[victim].margin ||
			(r.margin == placed[victim].margin && r.order > placed[victim].order) {
			victim = i
		}
	}
	return victim
}

// scoreScarcity 只基于固定课计算每个需求的可行组合数，各需求之间并行
func (e *Engine) scoreScarcity(ctx context.Context, sctx *constraint.Context, units []*unit, windows map[int][]window) error {
	byReq := make(map[uuid.UUID][]*unit)
	var reqOrder []*unit
	for _, u := range units {
		if _, ok := byReq[u.req.ID]; !ok {
			reqOrder = append(reqOrder, u)
		}
		byReq[u.req.ID] = append(byReq[u.req.ID], u)
	}

	counts := make([]int, len(reqOrder))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, u := range reqOrder {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[i] = len(e.candidates(sctx, u, windows[u.size], nil))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "排课超时或被取消")
	}

	for i, u := range reqOrder {
		for _, same := range byReq[u.req.ID] {
			same.scarcity = counts[i]
		}
	}
	return nil
}

func unitLess(a, b *unit) bool {
	if a.scarcity != b.scarcity {
		return a.scarcity < b.scarcity
	}
	if a.req.IsLab() != b.req.IsLab() {
		return a.req.IsLab()
	}
	if a.req.BatchID != b.req.BatchID {
		return a.req.BatchID.String() < b.req.BatchID.String()
	}
	if a.req.SubjectID != b.req.SubjectID {
		return a.req.SubjectID.String() < b.req.SubjectID.String()
	}
	return a.seq < b.seq
}

func validateRequest(req *Request) error {
	if req == nil || req.Grid == nil || req.Grid.NumPeriods() == 0 || len(req.Grid.Days) == 0 {
		return apperrors.InvalidConfiguration("缺少有效的作息网格")
	}
	switch req.Mode {
	case ModeFull, ModePartial:
	case "":
		req.Mode = ModeFull
	default:
		return apperrors.InvalidConfiguration("未知排课模式: %s", req.Mode)
	}
	for _, r := range req.Requirements {
		if r.WeeklyOccurrences < 0 {
			return apperrors.InvalidConfiguration("需求 %s 的每周次数不能为负", r.ID)
		}
		if r.ContiguousBlockSize < 1 || r.ContiguousBlockSize > req.Grid.NumPeriods() {
			return apperrors.InvalidConfiguration("需求 %s 的连堂节数 %d 超出每天节数 %d",
				r.ID, r.ContiguousBlockSize, req.Grid.NumPeriods())
		}
	}
	if req.Stale != nil && req.Stale.Day != "" && !req.Stale.Day.Valid() {
		return apperrors.InvalidConfiguration("无效的星期: %s", req.Stale.Day)
	}
	return nil
}

// scopeOf 本次排课涉及的教学班，未指定时为全部教学班
func scopeOf(req *Request) map[uuid.UUID]bool {
	scope := make(map[uuid.UUID]bool)
	for _, id := range req.BatchIDs {
		scope[id] = true
	}
	if len(scope) == 0 {
		for _, b := range req.Batches {
			scope[b.ID] = true
		}
	}
	return scope
}

// partition 把已有课表分为固定课和被替换的课
// 连堂中任一节被替换时，整组一起替换
func partition(req *Request, scope map[uuid.UUID]bool) ([]*model.ScheduleSlot, []uuid.UUID) {
	stale := make(map[uuid.UUID]bool)
	staleBlocks := make(map[uuid.UUID]bool)
	for _, s := range req.Existing {
		if !scope[s.BatchID] {
			continue
		}
		if req.Mode == ModeFull || req.Stale.Matches(s) {
			stale[s.ID] = true
			if s.BlockID != uuid.Nil {
				staleBlocks[s.BlockID] = true
			}
		}
	}

	var fixed []*model.ScheduleSlot
	var replaced []uuid.UUID
	for _, s := range req.Existing {
		if stale[s.ID] || (s.BlockID != uuid.Nil && staleBlocks[s.BlockID]) {
			replaced = append(replaced, s.ID)
			continue
		}
		fixed = append(fixed, s)
	}
	sortIDs(replaced)
	return fixed, replaced
}

func scopedRequirements(reqs []*model.Requirement, scope map[uuid.UUID]bool) []*model.Requirement {
	var out []*model.Requirement
	for _, r := range reqs {
		if scope[r.BatchID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// expandUnits 为每个需求展开尚缺的次数，固定课已满足的次数扣除
func expandUnits(reqs []*model.Requirement, pools map[uuid.UUID]*ResourcePool, fixed []*model.ScheduleSlot) []*unit {
	type pair struct{ batch, subject uuid.UUID }
	theory := make(map[pair]int)
	blocks := make(map[pair]map[uuid.UUID]bool)
	for _, s := range fixed {
		if s.IsBreak() {
			continue
		}
		k := pair{s.BatchID, s.SubjectID}
		if s.Kind == model.SlotLab {
			if blocks[k] == nil {
				blocks[k] = make(map[uuid.UUID]bool)
			}
			id := s.BlockID
			if id == uuid.Nil {
				id = s.ID
			}
			blocks[k][id] = true
			continue
		}
		theory[k]++
	}

	var units []*unit
	for _, r := range reqs {
		k := pair{r.BatchID, r.SubjectID}
		done := theory[k]
		if r.IsLab() {
			done = len(blocks[k])
		}
		pool := pools[r.ID]
		msg := ""
		switch {
		case pool == nil || len(pool.Faculty) == 0:
			msg = "没有可讲授该课程的教师"
		case len(pool.Rooms) == 0:
			msg = "没有类型和容量合适的教室"
		}
		for seq := done; seq < r.WeeklyOccurrences; seq++ {
			units = append(units, &unit{
				index:     len(units),
				req:       r,
				seq:       seq,
				size:      r.ContiguousBlockSize,
				pool:      pool,
				noPoolMsg: msg,
			})
		}
	}
	return units
}

// buildWindows 按连堂节数生成每天的连续节次窗口
func buildWindows(grid *timegrid.Grid, units []*unit) map[int][]window {
	windows := make(map[int][]window)
	for _, u := range units {
		if _, ok := windows[u.size]; ok {
			continue
		}
		var list []window
		for _, day := range grid.Days {
			for start := 1; start+u.size-1 <= grid.NumPeriods(); start++ {
				periods := make([]int, u.size)
				for i := range periods {
					periods[i] = start + i
				}
				list = append(list, window{day: day, periods: periods})
			}
		}
		windows[u.size] = list
	}
	return windows
}

// materialize 把候选排课展开为课节
func materialize(grid *timegrid.Grid, p *constraint.Placement) []*model.ScheduleSlot {
	batch := p.Requirement.BatchID
	kind := model.SlotTheory
	blockID := uuid.Nil
	if p.Requirement.IsLab() {
		kind = model.SlotLab
		blockID = uuid.NewSHA1(slotNamespace, []byte("block/"+lessonKey(batch, p.Day, p.Periods[0], p.Requirement.SubjectID, p.FacultyID, p.RoomID)))
	}

	slots := make([]*model.ScheduleSlot, 0, len(p.Periods))
	for _, idx := range p.Periods {
		period, _ := grid.Period(idx)
		slot := &model.ScheduleSlot{
			BatchID:   batch,
			Day:       p.Day,
			Period:    idx,
			TimeSlot:  period.Label,
			Start:     period.Start,
			End:       period.End,
			SubjectID: p.Requirement.SubjectID,
			FacultyID: p.FacultyID,
			RoomID:    p.RoomID,
			Kind:      kind,
			BlockID:   blockID,
		}
		slot.ID = SlotID(slot)
		slots = append(slots, slot)
	}
	return slots
}

func lessonKey(batch uuid.UUID, day model.Weekday, period int, subject, faculty, room uuid.UUID) string {
	return strings.Join([]string{
		batch.String(), string(day), strconv.Itoa(period), subject.String(), faculty.String(), room.String(),
	}, "/")
}

// SlotID 课节 ID 由位置和内容共同决定：相同输入得到相同 ID，
// 同一格换了课程、教师、教室或时间后 ID 随之改变，旧的代课记录不会挂到新课上
func SlotID(s *model.ScheduleSlot) uuid.UUID {
	key := lessonKey(s.BatchID, s.Day, s.Period, s.SubjectID, s.FacultyID, s.RoomID)
	return uuid.NewSHA1(slotNamespace, []byte(key+"/"+s.Start.String()+"-"+s.End.String()))
}

// breakRows 为每个教学班每天生成休息行
func breakRows(grid *timegrid.Grid, scope map[uuid.UUID]bool) []*model.ScheduleSlot {
	batches := make([]uuid.UUID, 0, len(scope))
	for id := range scope {
		batches = append(batches, id)
	}
	sortIDs(batches)

	var rows []*model.ScheduleSlot
	for _, batch := range batches {
		for _, day := range grid.Days {
			for _, b := range grid.Breaks {
				iv := b.Interval()
				rows = append(rows, &model.ScheduleSlot{
					ID:       uuid.NewSHA1(slotNamespace, []byte("break/"+batch.String()+"/"+string(day)+"/"+b.Name+"/"+b.Start.String())),
					BatchID:  batch,
					Day:      day,
					TimeSlot: iv.Label(),
					Start:    b.Start,
					End:      b.End,
					Kind:     model.SlotBreak,
				})
			}
		}
	}
	return rows
}

func countTeaching(slots []*model.ScheduleSlot) int {
	n := 0
	for _, s := range slots {
		if !s.IsBreak() {
			n++
		}
	}
	return n
}
