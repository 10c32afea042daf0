package constraint

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/timegrid"
)

func testGrid(t *testing.T) *timegrid.Grid {
	t.Helper()
	g, err := timegrid.Build(model.CollegeTimings{
		Start:          model.MustClock("09:00"),
		End:            model.MustClock("17:00"),
		NumPeriods:     6,
		PeriodDuration: 60,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// stub 固定返回结果的约束
type stub struct {
	typ     Type
	cat     Category
	weight  int
	ok      bool
	penalty int
}

func hardStub(typ string, ok bool) *stub { return &stub{typ: Type(typ), cat: CategoryHard, weight: 100, ok: ok} }

func softStub(typ string, weight, penalty int) *stub {
	return &stub{typ: Type(typ), cat: CategorySoft, weight: weight, ok: penalty == 0, penalty: penalty}
}

func (s *stub) Name() string       { return string(s.typ) }
func (s *stub) Type() Type         { return s.typ }
func (s *stub) Category() Category { return s.cat }
func (s *stub) Weight() int        { return s.weight }

func (s *stub) Evaluate(*Context) (bool, int, []ViolationDetail) {
	if s.ok {
		return true, 0, nil
	}
	return false, s.penalty, []ViolationDetail{{ConstraintType: s.typ, Message: "违反", Penalty: s.penalty}}
}

func (s *stub) EvaluatePlacement(*Context, *Placement) (bool, int) { return s.ok, s.penalty }

func names(list []Constraint) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.Name()
	}
	return out
}

func TestManager_RegisterOrder(t *testing.T) {
	tests := []struct {
		name string
		add  []Constraint
		want []string
	}{
		{
			name: "硬约束在前，软约束按权重",
			add:  []Constraint{softStub("low", 10, 0), hardStub("occupancy", true), softStub("high", 90, 0)},
			want: []string{"occupancy", "high", "low"},
		},
		{
			name: "同权重按类型",
			add:  []Constraint{softStub("b", 50, 0), softStub("a", 50, 0)},
			want: []string{"a", "b"},
		},
		{
			name: "同类型替换",
			add:  []Constraint{softStub("gap", 10, 0), softStub("gap", 70, 0), softStub("spread", 50, 0)},
			want: []string{"gap", "spread"},
		},
		{
			name: "替换时可以改变类别",
			add:  []Constraint{softStub("x", 10, 0), hardStub("x", true)},
			want: []string{"x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			for _, c := range tt.add {
				m.Register(c)
			}
			got := names(m.GetAll())
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	m := NewManager()
	m.Register(softStub("x", 10, 0))
	m.Register(hardStub("x", true))
	if len(m.GetByCategory(CategorySoft)) != 0 || len(m.GetByCategory(CategoryHard)) != 1 {
		t.Error("re-registered constraint should move to its new category")
	}
	if m.GetConstraint("x") == nil || m.GetConstraint("missing") != nil {
		t.Error("GetConstraint lookup")
	}
}

func TestManager_Evaluate(t *testing.T) {
	m := NewManager()
	m.Register(hardStub("occupancy", true))
	m.Register(softStub("gap", 50, 500))
	ctx := NewContext(testGrid(t), model.DefaultWeights())

	r := m.Evaluate(ctx)
	if !r.IsValid || r.TotalPenalty != 500 || len(r.SoftViolations) != 1 {
		t.Errorf("result = %+v", r)
	}
	// 满分 (100+50)*100
	if want := 100.0 * float64(15000-500) / 15000; r.Score != want {
		t.Errorf("score = %v, want %v", r.Score, want)
	}

	m.Register(hardStub("lab_block", false))
	r = m.Evaluate(ctx)
	if r.IsValid || len(r.HardViolations) != 1 {
		t.Errorf("failing hard constraint: %+v", r)
	}
	if r.TotalPenalty != 500 {
		t.Error("hard constraints must not add to the soft penalty")
	}
}

func TestManager_CanPlaceAndPenalty(t *testing.T) {
	m := NewManager()
	m.Register(softStub("s1", 10, 3))
	m.Register(softStub("s2", 10, 4))
	m.Register(softStub("off", 0, 1000))

	ctx := NewContext(testGrid(t), model.DefaultWeights())
	p := &Placement{Day: model.Monday, Periods: []int{1}}

	if ok, _ := m.CanPlace(ctx, p); !ok {
		t.Error("no hard constraint registered, placement should be allowed")
	}
	if got := m.Penalty(ctx, p); got != 7 {
		t.Errorf("penalty = %d, want 7 (zero weight skipped)", got)
	}

	m.Register(hardStub("block", false))
	if ok, reason := m.CanPlace(ctx, p); ok || reason != "违反硬约束: block" {
		t.Errorf("CanPlace = %v %q", ok, reason)
	}
}

func TestManager_Clear(t *testing.T) {
	m := NewManager()
	m.Register(hardStub("a", true))
	m.Register(softStub("b", 1, 0))
	if m.Count() != 2 {
		t.Fatalf("count = %d", m.Count())
	}
	m.Clear()
	if m.Count() != 0 || len(m.GetAll()) != 0 {
		t.Error("manager should be empty after Clear")
	}
}

func TestContext_Indexes(t *testing.T) {
	ctx := NewContext(testGrid(t), model.DefaultWeights())
	fac := &model.Faculty{ID: uuid.New(), Name: "张老师"}
	ctx.SetFaculty([]*model.Faculty{fac, {ID: uuid.New(), Name: "李老师"}})

	batch := uuid.New()
	room := uuid.New()
	slot := &model.ScheduleSlot{
		ID: uuid.New(), BatchID: batch, Day: model.Monday, Period: 2,
		Start: model.MustClock("10:00"), End: model.MustClock("11:00"),
		FacultyID: fac.ID, RoomID: room, Kind: model.SlotTheory,
	}
	brk := &model.ScheduleSlot{ID: uuid.New(), BatchID: batch, Day: model.Monday, Kind: model.SlotBreak,
		Start: model.MustClock("11:00"), End: model.MustClock("11:15")}

	ctx.SetSlots([]*model.ScheduleSlot{slot, brk})
	cell := Cell{Day: model.Monday, Period: 2}

	if !ctx.FacultyBusy(fac.ID, cell) || !ctx.RoomBusy(room, cell) || !ctx.BatchBusy(batch, cell) {
		t.Fatal("slot should occupy faculty, room and batch")
	}
	if ctx.FacultyMinutesOnDay(fac.ID, model.Monday) != 60 || ctx.FacultyMinutesInWeek(fac.ID) != 60 {
		t.Error("break rows must not count as teaching minutes")
	}
	if ctx.MeanFacultyMinutes() != 30 {
		t.Errorf("mean = %v, want 30", ctx.MeanFacultyMinutes())
	}

	dup := *slot
	dup.ID = uuid.New()
	ctx.AddSlot(&dup)
	if len(ctx.Conflicts(TypeFacultyClash)) != 1 {
		t.Error("duplicate faculty cell should be reported")
	}

	ctx.RemoveSlot(dup.ID)
	ctx.RemoveSlot(slot.ID)
	if ctx.FacultyBusy(fac.ID, cell) || ctx.BatchBusy(batch, cell) {
		t.Error("removed slot should free the cell")
	}
	if ctx.FacultyMinutesInWeek(fac.ID) != 0 {
		t.Errorf("minutes = %d after removal", ctx.FacultyMinutesInWeek(fac.ID))
	}
	if len(ctx.Slots) != 1 {
		t.Errorf("only the break row should remain, got %d", len(ctx.Slots))
	}
}
