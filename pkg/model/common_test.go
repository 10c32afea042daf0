package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Clock
		wantErr bool
	}{
		{name: "HH:MM", input: "09:00", want: NewClock(9, 0)},
		{name: "HH:MM:SS", input: "13:15:00", want: NewClock(13, 15)},
		{name: "带空格", input: " 08:05 ", want: NewClock(8, 5)},
		{name: "小时越界", input: "24:00", wantErr: true},
		{name: "分钟越界", input: "10:60", wantErr: true},
		{name: "格式错误", input: "0900", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClock(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestClock_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		At Clock `json:"at"`
	}{At: NewClock(10, 15)})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"at":"10:15"}` {
		t.Errorf("unexpected json: %s", data)
	}

	var out struct {
		At Clock `json:"at"`
	}
	if err := json.Unmarshal([]byte(`{"at":"12:45"}`), &out); err != nil {
		t.Fatal(err)
	}
	if out.At != NewClock(12, 45) {
		t.Errorf("got %s, want 12:45", out.At)
	}
}

func TestClock_Scan(t *testing.T) {
	var c Clock
	if err := c.Scan([]byte("09:30:00")); err != nil {
		t.Fatal(err)
	}
	if c != NewClock(9, 30) {
		t.Errorf("got %s", c)
	}
	if err := c.Scan(time.Date(0, 1, 1, 14, 5, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if c != NewClock(14, 5) {
		t.Errorf("got %s", c)
	}
	if err := c.Scan(42); err == nil {
		t.Error("expected error for int source")
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2024-03-04 是周一
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for i, want := range AllWeekdays {
		if got := WeekdayOf(monday.AddDate(0, 0, i)); got != want {
			t.Errorf("day %d: got %s, want %s", i, got, want)
		}
	}
}

func TestWeekBounds(t *testing.T) {
	thursday := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	start, end := WeekBounds(thursday)
	if start.Format(DateLayout) != "2024-03-04" || end.Format(DateLayout) != "2024-03-10" {
		t.Errorf("got %s..%s", start.Format(DateLayout), end.Format(DateLayout))
	}

	sunday := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	start, _ = WeekBounds(sunday)
	if start.Format(DateLayout) != "2024-03-04" {
		t.Errorf("sunday belongs to week starting %s", start.Format(DateLayout))
	}
}

func TestInterval_Overlaps(t *testing.T) {
	a := Interval{Start: MustClock("09:00"), End: MustClock("10:00")}
	b := Interval{Start: MustClock("10:00"), End: MustClock("11:00")}
	c := Interval{Start: MustClock("09:30"), End: MustClock("10:30")}

	if a.Overlaps(b) {
		t.Error("相邻区间不应重叠")
	}
	if !a.Overlaps(c) || !c.Overlaps(b) {
		t.Error("交叉区间应重叠")
	}
	if a.Label() != "09:00-10:00" {
		t.Errorf("label = %s", a.Label())
	}
}

func TestDeriveRequirements(t *testing.T) {
	batch := &Batch{ID: uuid.New(), Name: "CSE-2A", Department: "CSE", Year: 2, Semester: 3}
	theory := &Subject{ID: uuid.New(), Name: "数据结构", Type: SubjectTheory, Department: "CSE", Year: 2, Semester: 3, WeeklySessions: 4}
	lab := &Subject{ID: uuid.New(), Name: "数据结构实验", Type: SubjectLab, Department: "CSE", Year: 2, Semester: 3, WeeklySessions: 1}
	common := &Subject{ID: uuid.New(), Name: "英语", Type: SubjectTheory, Year: 2, Semester: 3, WeeklySessions: 2}
	other := &Subject{ID: uuid.New(), Name: "电路", Type: SubjectTheory, Department: "EEE", Year: 2, Semester: 3, WeeklySessions: 3}
	wrongSem := &Subject{ID: uuid.New(), Name: "编译原理", Type: SubjectTheory, Department: "CSE", Year: 3, Semester: 5, WeeklySessions: 3}

	timings := CollegeTimings{PeriodDuration: 50, LabDuration: 100}
	reqs := DeriveRequirements([]*Batch{batch}, []*Subject{theory, lab, common, other, wrongSem}, timings)

	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}

	bySubject := make(map[uuid.UUID]*Requirement)
	for _, r := range reqs {
		bySubject[r.SubjectID] = r
	}
	if r := bySubject[theory.ID]; r == nil || r.ContiguousBlockSize != 1 || r.WeeklyOccurrences != 4 {
		t.Errorf("theory requirement wrong: %+v", r)
	}
	if r := bySubject[lab.ID]; r == nil || r.ContiguousBlockSize != 2 {
		t.Errorf("lab requirement wrong: %+v", r)
	}
	if bySubject[common.ID] == nil {
		t.Error("公共课应产生需求")
	}
	if r := bySubject[theory.ID]; r != nil && r.ID != RequirementID(batch.ID, theory.ID) {
		t.Error("需求ID应稳定")
	}
}

func TestWorkloadConfig_WithDefaults(t *testing.T) {
	w := WorkloadConfig{MaxHoursPerDay: 4}.WithDefaults()
	if w.MaxHoursPerDay != 4 || w.MaxHoursPerWeek != 30 || w.MaxConsecutiveHours != 3 {
		t.Errorf("unexpected config: %+v", w)
	}
}

func TestFaculty_PreferenceWeight(t *testing.T) {
	subject := uuid.New()
	f := &Faculty{
		Preferences: []Preference{
			{Day: Monday, Weight: 0.5},
			{SubjectID: &subject, Day: Monday, Period: 2, Weight: 2},
		},
	}
	if got := f.PreferenceWeight(subject, Monday, 2); got != 2 {
		t.Errorf("got %v, want 2", got)
	}
	if got := f.PreferenceWeight(uuid.New(), Monday, 2); got != 0.5 {
		t.Errorf("got %v, want 0.5", got)
	}
	if got := f.PreferenceWeight(subject, Tuesday, 2); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestRoom_Suits(t *testing.T) {
	lab := &Room{Type: RoomLab, Capacity: 30}
	hall := &Room{Type: RoomClassroom, Capacity: 60}

	if !lab.Suits(SubjectLab, 30) || lab.Suits(SubjectLab, 31) {
		t.Error("lab capacity check failed")
	}
	if lab.Suits(SubjectTheory, 10) || !hall.Suits(SubjectTheory, 0) {
		t.Error("room type check failed")
	}
}
