package exam

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

type examWorld struct {
	cs, ma   *model.Batch
	subjects []*model.Subject
	halls    []*model.Room
	faculty  []*model.Faculty
}

func newExamWorld() *examWorld {
	w := &examWorld{
		cs: &model.Batch{ID: uuid.New(), Name: "计科1班", Department: "CS", Year: 1, Semester: 1, Size: 40},
		ma: &model.Batch{ID: uuid.New(), Name: "数学1班", Department: "MA", Year: 1, Semester: 1, Size: 80},
	}
	subject := func(code, dept string) *model.Subject {
		return &model.Subject{ID: uuid.New(), Code: code, Name: code, Type: model.SubjectTheory,
			Department: dept, Year: 1, Semester: 1, WeeklySessions: 2}
	}
	w.subjects = []*model.Subject{
		subject("CS101", "CS"), subject("CS102", "CS"), subject("MA101", "MA"), subject("GE101", ""),
	}
	w.halls = []*model.Room{
		{ID: uuid.New(), Name: "A101", Type: model.RoomClassroom, Capacity: 50},
		{ID: uuid.New(), Name: "大礼堂", Type: model.RoomClassroom, Capacity: 200},
		{ID: uuid.New(), Name: "L201", Type: model.RoomLab, Capacity: 300},
	}
	w.faculty = []*model.Faculty{
		{ID: uuid.New(), Name: "张老师", Proficiencies: []model.Proficiency{{SubjectID: w.subjects[0].ID, Level: model.ProficiencyExpert}}},
		{ID: uuid.New(), Name: "王老师"},
	}
	return w
}

func (w *examWorld) request(start, end string) *Request {
	return &Request{
		StartDate: start, EndDate: end,
		Batches: []*model.Batch{w.cs, w.ma}, Subjects: w.subjects, Halls: w.halls, Faculty: w.faculty,
	}
}

func TestSittings(t *testing.T) {
	// 2026-10-17 周六，2026-10-18 周日
	got, err := Sittings("2026-10-17", "2026-10-19")
	if err != nil {
		t.Fatalf("Sittings() error = %v", err)
	}
	want := []Sitting{
		{Date: "2026-10-17", Day: model.Saturday, Session: Morning},
		{Date: "2026-10-17", Day: model.Saturday, Session: Afternoon},
		{Date: "2026-10-19", Day: model.Monday, Session: Morning},
		{Date: "2026-10-19", Day: model.Monday, Session: Afternoon},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Sittings() = %+v", got)
	}

	tests := []struct {
		name       string
		start, end string
		code       apperrors.Code
	}{
		{"结束早于开始", "2026-10-19", "2026-10-12", apperrors.CodeInvalidTimeRange},
		{"日期格式错误", "10/12/2026", "2026-10-19", apperrors.CodeInvalidInput},
		{"考试周太长", "2026-10-01", "2027-01-01", apperrors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sittings(tt.start, tt.end)
			if !apperrors.Is(err, tt.code) {
				t.Errorf("期望 %s，实际 %v", tt.code, err)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	w := newExamWorld()
	plan, err := NewScheduler().Generate(context.Background(), w.request("2026-10-12", "2026-10-16"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// 计科：CS101 CS102 GE101；数学：MA101 GE101
	if !plan.Success || len(plan.Assignments) != 5 {
		t.Fatalf("期望安排 5 场考试: %+v", plan)
	}

	type key struct {
		date    string
		session Session
	}
	batchAt := make(map[key]map[uuid.UUID]bool)
	hallAt := make(map[key]map[uuid.UUID]bool)
	invAt := make(map[key]map[uuid.UUID]bool)
	mark := func(m map[key]map[uuid.UUID]bool, k key, id uuid.UUID, what string) {
		if m[k] == nil {
			m[k] = make(map[uuid.UUID]bool)
		}
		if m[k][id] {
			t.Errorf("%s 在 %v 重复安排", what, k)
		}
		m[k][id] = true
	}
	for _, a := range plan.Assignments {
		k := key{a.Date, a.Session}
		mark(batchAt, k, a.BatchID, "教学班")
		mark(hallAt, k, a.HallID, "考场")
		mark(invAt, k, a.InvigilatorID, "监考")
		if a.HallID == w.halls[2].ID {
			t.Error("实验室不作考场")
		}
		if a.BatchID == w.ma.ID && a.HallID != w.halls[1].ID {
			t.Error("80 人的班只能安排在大礼堂")
		}
		if a.SubjectID == w.subjects[0].ID && a.InvigilatorID != w.faculty[1].ID {
			t.Error("任课教师不应监考自己的科目")
		}
	}

	// 场次足够时同一教学班隔场安排
	var csSessions []int
	for _, a := range plan.Assignments {
		if a.BatchID == w.cs.ID {
			idx := map[Session]int{Morning: 0, Afternoon: 1}[a.Session]
			d, _ := model.ParseDate(a.Date)
			csSessions = append(csSessions, d.Day()*2+idx)
		}
	}
	for i := 1; i < len(csSessions); i++ {
		if csSessions[i]-csSessions[i-1] < 2 {
			t.Errorf("计科1班考试应隔场安排: %v", csSessions)
		}
	}

	again, err := NewScheduler().Generate(context.Background(), w.request("2026-10-12", "2026-10-16"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !reflect.DeepEqual(plan, again) {
		t.Error("相同输入应得到相同考试安排")
	}
}

func TestGenerate_Unscheduled(t *testing.T) {
	t.Run("场次不足", func(t *testing.T) {
		w := newExamWorld()
		// 单日两场，计科有三门
		plan, err := NewScheduler().Generate(context.Background(), w.request("2026-10-12", "2026-10-12"))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if plan.Success || len(plan.Unscheduled) == 0 {
			t.Fatalf("场次不足时应有未安排的考试: %+v", plan)
		}
		for _, a := range plan.Assignments {
			if a.Date != "2026-10-12" {
				t.Errorf("考试日期超出考试周: %s", a.Date)
			}
		}
	})

	t.Run("没有足够大的考场", func(t *testing.T) {
		w := newExamWorld()
		w.halls = w.halls[:1]
		plan, err := NewScheduler().Generate(context.Background(), w.request("2026-10-12", "2026-10-16"))
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		for _, u := range plan.Unscheduled {
			if u.BatchID != w.ma.ID || u.Reason != "没有容量足够的空闲考场" {
				t.Errorf("只有数学1班缺少考场: %+v", u)
			}
		}
		if len(plan.Unscheduled) != 2 {
			t.Errorf("数学1班两门考试都无法安排，实际 %d", len(plan.Unscheduled))
		}
	})

	t.Run("监考教师缺勤", func(t *testing.T) {
		w := newExamWorld()
		req := w.request("2026-10-12", "2026-10-12")
		req.Batches = []*model.Batch{w.cs}
		req.Absences = []*model.FacultyAbsence{
			{ID: uuid.New(), FacultyID: w.faculty[0].ID, StartDate: "2026-10-12", EndDate: "2026-10-12"},
			{ID: uuid.New(), FacultyID: w.faculty[1].ID, StartDate: "2026-10-12", EndDate: "2026-10-12"},
		}
		plan, err := NewScheduler().Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(plan.Assignments) != 0 || plan.Unscheduled[0].Reason != "没有空闲的监考教师" {
			t.Errorf("全部教师缺勤时不应安排: %+v", plan)
		}
	})
}

func TestGenerate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScheduler().Generate(ctx, newExamWorld().request("2026-10-12", "2026-10-16"))
	if !apperrors.Is(err, apperrors.CodeTimeout) {
		t.Errorf("期望 TIMEOUT，实际 %v", err)
	}
}
