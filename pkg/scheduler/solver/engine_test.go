package solver

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
	"github.com/kebiao/kebiao/pkg/scheduler/optimizer"
	"github.com/kebiao/kebiao/pkg/timegrid"
)

// fixture 两个教学班，一门理论课一门实验课
type fixture struct {
	grid     *timegrid.Grid
	batches  []*model.Batch
	subjects []*model.Subject
	faculty  []*model.Faculty
	rooms    []*model.Room
	reqs     []*model.Requirement
}

func mustGrid(t *testing.T, timings model.CollegeTimings, breaks []model.Break) *timegrid.Grid {
	t.Helper()
	g, err := timegrid.Build(timings, breaks)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// 09:00 起 6 节，12:00-13:00 午休
func defaultGrid(t *testing.T) *timegrid.Grid {
	return mustGrid(t, model.CollegeTimings{
		Start:          model.MustClock("09:00"),
		End:            model.MustClock("17:00"),
		NumPeriods:     6,
		PeriodDuration: 60,
	}, []model.Break{{Name: "午休", Start: model.MustClock("12:00"), End: model.MustClock("13:00"), Kind: model.BreakLunch}})
}

func teaches(subjects ...uuid.UUID) []model.Proficiency {
	out := make([]model.Proficiency, len(subjects))
	for i, s := range subjects {
		out[i] = model.Proficiency{SubjectID: s, Level: model.ProficiencyExpert}
	}
	return out
}

func requirement(batch, subject uuid.UUID, typ model.SubjectType, n, block int) *model.Requirement {
	return &model.Requirement{
		ID:                  model.RequirementID(batch, subject),
		BatchID:             batch,
		SubjectID:           subject,
		SubjectType:         typ,
		WeeklyOccurrences:   n,
		ContiguousBlockSize: block,
	}
}

func newFixture(t *testing.T) *fixture {
	math := &model.Subject{ID: uuid.New(), Code: "MA101", Name: "高等数学", Type: model.SubjectTheory}
	physics := &model.Subject{ID: uuid.New(), Code: "PH101L", Name: "物理实验", Type: model.SubjectLab, BlockSize: 2}
	a := &model.Batch{ID: uuid.New(), Name: "计科1班", Size: 40}
	b := &model.Batch{ID: uuid.New(), Name: "计科2班", Size: 40}

	f := &fixture{
		grid:     defaultGrid(t),
		batches:  []*model.Batch{a, b},
		subjects: []*model.Subject{math, physics},
		faculty: []*model.Faculty{
			{ID: uuid.New(), Name: "张老师", Proficiencies: teaches(math.ID)},
			{ID: uuid.New(), Name: "李老师", Proficiencies: teaches(math.ID, physics.ID)},
			{ID: uuid.New(), Name: "王老师", Proficiencies: teaches(physics.ID)},
		},
		rooms: []*model.Room{
			{ID: uuid.New(), Name: "A101", Type: model.RoomClassroom, Capacity: 60},
			{ID: uuid.New(), Name: "A102", Type: model.RoomClassroom, Capacity: 60},
			{ID: uuid.New(), Name: "实验室1", Type: model.RoomLab, Capacity: 40},
		},
	}
	for _, batch := range f.batches {
		f.reqs = append(f.reqs,
			requirement(batch.ID, math.ID, model.SubjectTheory, 4, 1),
			requirement(batch.ID, physics.ID, model.SubjectLab, 1, 2),
		)
	}
	return f
}

func (f *fixture) request(mode Mode) *Request {
	return &Request{
		Requirements: f.reqs,
		Grid:         f.grid,
		Weights:      model.DefaultWeights(),
		Faculty:      f.faculty,
		Rooms:        f.rooms,
		Batches:      f.batches,
		Subjects:     f.subjects,
		Mode:         mode,
	}
}

func newEngine() *Engine {
	return NewEngine(builtin.NewDefaultManager(model.DefaultWeights()), DefaultBacktrackFactor)
}

func assertNoClashes(t *testing.T, slots []*model.ScheduleSlot) {
	t.Helper()
	seen := make(map[string]bool)
	for _, s := range slots {
		if s.IsBreak() {
			continue
		}
		for dim, id := range map[string]uuid.UUID{"faculty": s.FacultyID, "room": s.RoomID, "batch": s.BatchID} {
			key := fmt.Sprintf("%s/%s/%s/%d", dim, id, s.Day, s.Period)
			if seen[key] {
				t.Errorf("%s double-booked at %s period %d", dim, s.Day, s.Period)
			}
			seen[key] = true
		}
	}
}

func TestEngine_GenerateFull(t *testing.T) {
	f := newFixture(t)
	result, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, unsatisfied = %+v, message = %s", result.Unsatisfied, result.Message)
	}
	// 每个教学班 4 节理论 + 2 节实验
	if got := len(result.Slots); got != 12 {
		t.Errorf("slots = %d, want 12", got)
	}
	assertNoClashes(t, result.Slots)

	for _, s := range result.Slots {
		if s.Kind == model.SlotTheory && s.FacultyID == f.faculty[2].ID {
			t.Error("theory slot assigned to a faculty without proficiency")
		}
		room, _ := findRoom(f.rooms, s.RoomID)
		if s.Kind == model.SlotLab && room.Type != model.RoomLab {
			t.Error("lab slot placed in a classroom")
		}
	}
	if result.ConstraintResult == nil || !result.ConstraintResult.IsValid {
		t.Error("generated schedule must satisfy all hard constraints")
	}
}

func findRoom(rooms []*model.Room, id uuid.UUID) (*model.Room, bool) {
	for _, r := range rooms {
		if r.ID == id {
			return r, true
		}
	}
	return &model.Room{}, false
}

func TestEngine_LabBlocksContiguous(t *testing.T) {
	f := newFixture(t)
	result, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}

	blocks := builtin.LabBlocks(result.Slots)
	if len(blocks) != 2 {
		t.Fatalf("lab blocks = %d, want 2", len(blocks))
	}
	for _, block := range blocks {
		if len(block) != 2 {
			t.Errorf("block size = %d, want 2", len(block))
			continue
		}
		first, second := block[0], block[1]
		if first.Day != second.Day || first.RoomID != second.RoomID || first.FacultyID != second.FacultyID {
			t.Error("lab block must share day, room and faculty")
		}
		if second.Period != first.Period+1 {
			t.Errorf("lab periods %d,%d not consecutive", first.Period, second.Period)
		}
		// 第 3、4 节之间是午休
		if first.Period == 3 {
			t.Error("lab block straddles lunch")
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	f := newFixture(t)
	first, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}
	second, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Slots, second.Slots) {
		t.Error("identical inputs should yield identical schedules")
	}
}

func TestEngine_FullReplacesScopedBatchesOnly(t *testing.T) {
	f := newFixture(t)
	initial, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}

	req := f.request(ModeFull)
	req.BatchIDs = []uuid.UUID{f.batches[0].ID}
	req.Existing = initial.Slots
	result, err := newEngine().Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range result.Replaced {
		for _, s := range initial.Slots {
			if s.ID == id && s.BatchID != f.batches[0].ID {
				t.Error("slots of other batches must not be replaced")
			}
		}
	}
	for _, s := range result.Slots {
		if s.BatchID != f.batches[0].ID {
			t.Error("new slots should only belong to the scoped batch")
		}
	}

	// 范围外的课作为固定课，与新课合并后仍无冲突
	var merged []*model.ScheduleSlot
	for _, s := range initial.Slots {
		if s.BatchID != f.batches[0].ID {
			merged = append(merged, s)
		}
	}
	merged = append(merged, result.Slots...)
	assertNoClashes(t, merged)
}

func TestEngine_Partial(t *testing.T) {
	f := newFixture(t)
	full, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}

	var target *model.ScheduleSlot
	for _, s := range full.Slots {
		if s.Kind == model.SlotTheory {
			target = s
			break
		}
	}
	if target == nil {
		t.Fatal("no theory slot generated")
	}
	fid := target.FacultyID

	req := f.request(ModePartial)
	req.Existing = full.Slots
	req.Stale = &StaleFilter{FacultyID: &fid, Day: target.Day}
	result, err := newEngine().Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	replaced := make(map[uuid.UUID]bool)
	for _, id := range result.Replaced {
		replaced[id] = true
	}
	var kept []*model.ScheduleSlot
	for _, s := range full.Slots {
		stale := s.FacultyID == fid && s.Day == target.Day
		if stale != replaced[s.ID] {
			t.Errorf("slot %s stale=%v replaced=%v", s.ID, stale, replaced[s.ID])
		}
		if !replaced[s.ID] {
			kept = append(kept, s)
		}
	}

	for _, s := range result.Slots {
		if s.FacultyID == fid && s.Day == target.Day {
			t.Error("stale faculty must not be rescheduled on the same day")
		}
	}
	if len(result.Slots) != len(result.Replaced) {
		t.Errorf("new slots = %d, replaced = %d", len(result.Slots), len(result.Replaced))
	}
	assertNoClashes(t, append(kept, result.Slots...))
}

func TestEngine_Unsatisfied(t *testing.T) {
	f := newFixture(t)
	batch := f.batches[0]
	// 每周只有 30 节可用
	f.reqs = []*model.Requirement{requirement(batch.ID, f.subjects[0].ID, model.SubjectTheory, 35, 1)}
	req := f.request(ModeFull)
	req.BatchIDs = []uuid.UUID{batch.ID}

	result, err := newEngine().Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("infeasible instance should not be an error, got %v", err)
	}
	if result.Success {
		t.Fatal("expected partial success")
	}
	if len(result.Unsatisfied) != 1 {
		t.Fatalf("unsatisfied = %+v", result.Unsatisfied)
	}
	if got := len(result.Slots) + result.Unsatisfied[0].Missing; got != 35 {
		t.Errorf("placed + missing = %d, want 35", got)
	}
	if result.Unsatisfied[0].Missing < 5 {
		t.Errorf("missing = %d, want at least 5", result.Unsatisfied[0].Missing)
	}
	assertNoClashes(t, result.Slots)
}

func TestEngine_NoEligibleFaculty(t *testing.T) {
	f := newFixture(t)
	orphan := &model.Subject{ID: uuid.New(), Name: "无人课程", Type: model.SubjectTheory}
	f.subjects = append(f.subjects, orphan)
	f.reqs = []*model.Requirement{requirement(f.batches[0].ID, orphan.ID, model.SubjectTheory, 2, 1)}

	result, err := newEngine().Generate(context.Background(), f.request(ModeFull))
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Unsatisfied) != 1 || result.Unsatisfied[0].Missing != 2 {
		t.Fatalf("unsatisfied = %+v", result.Unsatisfied)
	}
	if result.Unsatisfied[0].Reason == "" {
		t.Error("unsatisfied requirement should carry a reason")
	}
	if result.Statistics.Backtracks != 0 {
		t.Errorf("backtracks = %d, want 0", result.Statistics.Backtracks)
	}
}

// 只有周一 3 节，第 2、3 节之间午休；唯一教师同时教理论课和实验课
// 理论课先排在第 1 节会挡住唯一可行的实验窗口，需要回溯
func TestEngine_Backtracks(t *testing.T) {
	grid := mustGrid(t, model.CollegeTimings{
		Start:          model.MustClock("09:00"),
		End:            model.MustClock("13:00"),
		NumPeriods:     3,
		PeriodDuration: 60,
		Days:           []model.Weekday{model.Monday},
	}, []model.Break{{Name: "午休", Start: model.MustClock("11:00"), End: model.MustClock("12:00"), Kind: model.BreakLunch}})

	theory := &model.Subject{ID: uuid.New(), Type: model.SubjectTheory}
	lab := &model.Subject{ID: uuid.New(), Type: model.SubjectLab}
	a := &model.Batch{ID: uuid.New()}
	b := &model.Batch{ID: uuid.New()}
	tutor := &model.Faculty{ID: uuid.New(), Name: "赵老师", Proficiencies: teaches(theory.ID, lab.ID)}
	rooms := []*model.Room{{ID: uuid.New(), Type: model.RoomClassroom}}
	for i := 0; i < 4; i++ {
		rooms = append(rooms, &model.Room{ID: uuid.New(), Type: model.RoomLab})
	}

	req := &Request{
		Requirements: []*model.Requirement{
			requirement(a.ID, theory.ID, model.SubjectTheory, 1, 1),
			requirement(b.ID, lab.ID, model.SubjectLab, 1, 2),
		},
		Grid:     grid,
		Weights:  model.DefaultWeights(),
		Faculty:  []*model.Faculty{tutor},
		Rooms:    rooms,
		Batches:  []*model.Batch{a, b},
		Subjects: []*model.Subject{theory, lab},
		Mode:     ModeFull,
	}

	result, err := newEngine().Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success after backtracking, unsatisfied = %+v", result.Unsatisfied)
	}
	if result.Statistics.Backtracks == 0 {
		t.Error("expected at least one backtrack")
	}
	for _, s := range result.Slots {
		if s.Kind == model.SlotTheory && s.Period != 3 {
			t.Errorf("theory slot at period %d, want 3", s.Period)
		}
	}
	assertNoClashes(t, result.Slots)
}

func TestEngine_EmitBreaks(t *testing.T) {
	f := newFixture(t)
	req := f.request(ModeFull)
	req.EmitBreaks = true

	result, err := newEngine().Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	breaks := 0
	for _, s := range result.Slots {
		if s.IsBreak() {
			breaks++
			if s.Period != 0 || s.TimeSlot != "12:00-13:00" {
				t.Errorf("unexpected break row %+v", s)
			}
		}
	}
	// 2 个教学班 × 5 天 × 1 个休息
	if breaks != 10 {
		t.Errorf("break rows = %d, want 10", breaks)
	}
}

func TestEngine_InvalidConfiguration(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"缺少网格", func(r *Request) { r.Grid = nil }},
		{"未知模式", func(r *Request) { r.Mode = Mode("weekly") }},
		{"连堂超过每天节数", func(r *Request) {
			r.Requirements = []*model.Requirement{requirement(f.batches[0].ID, f.subjects[1].ID, model.SubjectLab, 1, 9)}
		}},
		{"无效星期", func(r *Request) { r.Mode = ModePartial; r.Stale = &StaleFilter{Day: model.Weekday("funday")} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(ModeFull)
			tt.mutate(req)
			_, err := newEngine().Generate(context.Background(), req)
			if !apperrors.Is(err, apperrors.CodeInvalidConfiguration) {
				t.Errorf("error = %v, want INVALID_CONFIGURATION", err)
			}
		})
	}
}

func TestEngine_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newEngine().Generate(ctx, f.request(ModeFull)); err == nil {
		t.Error("cancelled context should abort generation")
	}
}

func TestStaleFilter_Matches(t *testing.T) {
	fid := uuid.New()
	slot := &model.ScheduleSlot{ID: uuid.New(), FacultyID: fid, Day: model.Tuesday, Kind: model.SlotTheory}
	other := &model.ScheduleSlot{ID: uuid.New(), FacultyID: uuid.New(), Day: model.Tuesday, Kind: model.SlotTheory}

	tests := []struct {
		name   string
		filter *StaleFilter
		slot   *model.ScheduleSlot
		want   bool
	}{
		{"空过滤器", nil, slot, false},
		{"教师+星期", &StaleFilter{FacultyID: &fid, Day: model.Tuesday}, slot, true},
		{"教师+其他星期", &StaleFilter{FacultyID: &fid, Day: model.Monday}, slot, false},
		{"仅教师", &StaleFilter{FacultyID: &fid}, slot, true},
		{"其他教师", &StaleFilter{FacultyID: &fid}, other, false},
		{"仅星期", &StaleFilter{Day: model.Tuesday}, other, true},
		{"指定课节", &StaleFilter{SlotIDs: []uuid.UUID{other.ID}}, other, true},
		{"休息行", &StaleFilter{Day: model.Tuesday}, &model.ScheduleSlot{Day: model.Tuesday, Kind: model.SlotBreak}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.slot); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPickVictim(t *testing.T) {
	batch := uuid.New()
	fid := uuid.New()
	u := &unit{req: &model.Requirement{BatchID: batch}, pool: &ResourcePool{Faculty: []uuid.UUID{fid}}}

	mk := func(b, f uuid.UUID, margin float64, order int) *record {
		return &record{
			unit:   &unit{req: &model.Requirement{BatchID: b}},
			cand:   &candidate{placement: &constraint.Placement{FacultyID: f, RoomID: uuid.New(), Periods: []int{1}}},
			margin: margin,
			order:  order,
		}
	}
	placed := []*record{
		mk(uuid.New(), uuid.New(), 1, 1), // 不竞争
		mk(batch, uuid.New(), 50, 2),
		mk(uuid.New(), fid, 10, 3),
		mk(batch, uuid.New(), 10, 4),
	}
	if got := pickVictim(placed, u); got != 3 {
		t.Errorf("pickVictim() = %d, want 3", got)
	}
	if got := pickVictim(placed[:1], u); got != -1 {
		t.Errorf("pickVictim() = %d, want -1 when nothing competes", got)
	}
}

func TestBuildPools(t *testing.T) {
	f := newFixture(t)
	pools := BuildPools(f.reqs, f.faculty, f.rooms, f.batches)

	theory := pools[f.reqs[0].ID]
	if len(theory.Faculty) != 2 || len(theory.Rooms) != 2 {
		t.Errorf("theory pool = %d faculty, %d rooms", len(theory.Faculty), len(theory.Rooms))
	}
	lab := pools[f.reqs[1].ID]
	if len(lab.Faculty) != 2 || len(lab.Rooms) != 1 {
		t.Errorf("lab pool = %d faculty, %d rooms", len(lab.Faculty), len(lab.Rooms))
	}
	if lab.Size() != 2 || len(lab.Candidates()) != 2 {
		t.Errorf("lab candidates = %d", lab.Size())
	}

	big := &model.Batch{ID: uuid.New(), Size: 100}
	req := requirement(big.ID, f.subjects[0].ID, model.SubjectTheory, 1, 1)
	if pool := BuildPools([]*model.Requirement{req}, f.faculty, f.rooms, []*model.Batch{big})[req.ID]; !pool.Empty() {
		t.Error("rooms below batch size should be filtered out")
	}
}

func TestEngine_Optimize(t *testing.T) {
	f := newFixture(t)
	run := func() *Result {
		req := f.request(ModeFull)
		req.Optimize = optimizer.Config{MaxIterations: 30, ParallelWorkers: 2}
		result, err := newEngine().Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		return result
	}

	first := run()
	if !first.Success {
		t.Fatalf("expected success, message = %s", first.Message)
	}
	if got := len(first.Slots); got != 12 {
		t.Errorf("slots = %d, want 12", got)
	}
	assertNoClashes(t, first.Slots)
	stats := first.Statistics.Optimization
	if stats == nil {
		t.Fatal("expected optimization statistics")
	}
	if stats.Moves > 30 {
		t.Errorf("moves = %d, exceeds limit", stats.Moves)
	}
	if len(builtin.LabBlocks(first.Slots)) != 2 {
		t.Error("lab blocks must survive optimization")
	}

	second := run()
	if !reflect.DeepEqual(first.Slots, second.Slots) {
		t.Error("optimization must be deterministic")
	}
}
