// Package exam 生成考试安排：把每个教学班的考试分散到考试周的上午和下午场次，
// 并为每场考试分配考场和监考教师
package exam

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
)

// Session 考试场次
type Session string

const (
	Morning   Session = "morning"
	Afternoon Session = "afternoon"
)

// MaxWindowDays 考试周最长天数
const MaxWindowDays = 62

// DefaultStudents 教学班未填人数时按 30 人选考场
const DefaultStudents = 30

var examNamespace = uuid.MustParse("8b6c2f0e-41d7-4a93-9e15-c07d3a5b2e86")

// Sitting 一个考试场次
type Sitting struct {
	Date    string        `json:"date"`
	Day     model.Weekday `json:"day"`
	Session Session       `json:"session"`
}

// Assignment 一场考试
type Assignment struct {
	ID            uuid.UUID     `json:"id"`
	BatchID       uuid.UUID     `json:"batch_id"`
	SubjectID     uuid.UUID     `json:"subject_id"`
	Date          string        `json:"date"`
	Day           model.Weekday `json:"day"`
	Session       Session       `json:"session"`
	HallID        uuid.UUID     `json:"hall_id"`
	InvigilatorID uuid.UUID     `json:"invigilator_id"`
	Students      int           `json:"students"`
}

// Unscheduled 无法安排的考试
type Unscheduled struct {
	BatchID   uuid.UUID `json:"batch_id"`
	SubjectID uuid.UUID `json:"subject_id"`
	Reason    string    `json:"reason"`
}

// Request 考试安排输入
type Request struct {
	StartDate string
	EndDate   string
	Batches   []*model.Batch
	Subjects  []*model.Subject
	Halls     []*model.Room
	Faculty   []*model.Faculty
	Absences  []*model.FacultyAbsence // 缺勤当天不安排监考
}

// Plan 考试安排结果
type Plan struct {
	Assignments []Assignment  `json:"assignments"`
	Unscheduled []Unscheduled `json:"unscheduled"`
	Sittings    int           `json:"sittings"`
	Success     bool          `json:"success"`
}

// Sittings 展开考试周的场次，周日不考
func Sittings(start, end string) ([]Sitting, error) {
	from, err := model.ParseDate(start)
	if err != nil {
		return nil, apperrors.InvalidInput("start_date", "日期格式应为 YYYY-MM-DD")
	}
	to, err := model.ParseDate(end)
	if err != nil {
		return nil, apperrors.InvalidInput("end_date", "日期格式应为 YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, apperrors.New(apperrors.CodeInvalidTimeRange,
			fmt.Sprintf("考试结束日期 %s 早于开始日期 %s", end, start))
	}
	if to.Sub(from) >= MaxWindowDays*24*time.Hour {
		return nil, apperrors.InvalidInput("end_date", fmt.Sprintf("考试周不能超过 %d 天", MaxWindowDays))
	}
	var out []Sitting
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := model.WeekdayOf(d)
		if day == model.Sunday {
			continue
		}
		date := d.Format(model.DateLayout)
		out = append(out, Sitting{Date: date, Day: day, Session: Morning}, Sitting{Date: date, Day: day, Session: Afternoon})
	}
	return out, nil
}

// Scheduler 考试安排器
type Scheduler struct {
	logger *logger.EngineLogger
}

// NewScheduler 创建考试安排器
func NewScheduler() *Scheduler {
	return &Scheduler{logger: logger.NewEngineLogger("exam")}
}

type paper struct {
	batch   *model.Batch
	subject *model.Subject
}

type sittingKey struct {
	date    string
	session Session
}

type occupancy struct {
	batches     map[sittingKey]map[uuid.UUID]bool
	halls       map[sittingKey]map[uuid.UUID]bool
	invigilator map[sittingKey]map[uuid.UUID]bool
	duties      map[uuid.UUID]int
}

func take(m map[sittingKey]map[uuid.UUID]bool, k sittingKey, id uuid.UUID) {
	if m[k] == nil {
		m[k] = make(map[uuid.UUID]bool)
	}
	m[k][id] = true
}

// Generate 按教学班依次安排考试
// 同一教学班同一场次最多一场考试；考场和监考教师每场只服务一场考试；
// 教学班考试数不超过场次数一半时隔场安排。相同输入得到相同结果
func (s *Scheduler) Generate(ctx context.Context, req *Request) (*Plan, error) {
	sittings, err := Sittings(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	halls := make([]*model.Room, 0, len(req.Halls))
	for _, h := range req.Halls {
		if h.Type != model.RoomLab {
			halls = append(halls, h)
		}
	}
	// 小考场优先，大考场留给人数多的班
	sort.Slice(halls, func(i, j int) bool {
		if halls[i].Capacity != halls[j].Capacity {
			return halls[i].Capacity < halls[j].Capacity
		}
		return halls[i].Name < halls[j].Name
	})
	faculty := append([]*model.Faculty(nil), req.Faculty...)
	sort.Slice(faculty, func(i, j int) bool { return faculty[i].Name < faculty[j].Name })

	occ := &occupancy{
		batches:     make(map[sittingKey]map[uuid.UUID]bool),
		halls:       make(map[sittingKey]map[uuid.UUID]bool),
		invigilator: make(map[sittingKey]map[uuid.UUID]bool),
		duties:      make(map[uuid.UUID]int),
	}
	plan := &Plan{Assignments: []Assignment{}, Unscheduled: []Unscheduled{}, Sittings: len(sittings)}

	for _, group := range papersByBatch(req.Batches, req.Subjects) {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeTimeout, "考试安排超时")
		}
		step := 1
		if len(sittings) >= 2*len(group) {
			step = 2
		}
		cursor := 0
		for _, p := range group {
			a, at, reason := s.place(p, sittings, cursor, halls, faculty, req.Absences, occ)
			if reason != "" {
				s.logger.Unsatisfied(p.batch.Name+"/"+p.subject.Code, reason)
				plan.Unscheduled = append(plan.Unscheduled, Unscheduled{
					BatchID: p.batch.ID, SubjectID: p.subject.ID, Reason: reason,
				})
				continue
			}
			plan.Assignments = append(plan.Assignments, a)
			cursor = at + step
		}
	}

	sort.SliceStable(plan.Assignments, func(i, j int) bool {
		a, b := plan.Assignments[i], plan.Assignments[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Session != b.Session {
			return a.Session == Morning
		}
		return a.BatchID.String() < b.BatchID.String()
	})
	plan.Success = len(plan.Unscheduled) == 0
	s.logger.ExamsGenerated(len(plan.Assignments), len(plan.Unscheduled), len(sittings))
	return plan, nil
}

// place 从 cursor 开始找第一个可用场次，找不到时从头再找一遍
func (s *Scheduler) place(p paper, sittings []Sitting, cursor int, halls []*model.Room,
	faculty []*model.Faculty, absences []*model.FacultyAbsence, occ *occupancy) (Assignment, int, string) {
	students := p.batch.Size
	if students <= 0 {
		students = DefaultStudents
	}
	reason := "考试场次不足"
	order := make([]int, 0, len(sittings))
	for i := cursor; i < len(sittings); i++ {
		order = append(order, i)
	}
	for i := 0; i < cursor && i < len(sittings); i++ {
		order = append(order, i)
	}

	for _, i := range order {
		st := sittings[i]
		k := sittingKey{st.Date, st.Session}
		if occ.batches[k][p.batch.ID] {
			continue
		}
		hall := pickHall(halls, students, occ.halls[k])
		if hall == nil {
			reason = "没有容量足够的空闲考场"
			continue
		}
		inv := pickInvigilator(faculty, p.subject.ID, st.Date, absences, occ.invigilator[k], occ.duties)
		if inv == nil {
			reason = "没有空闲的监考教师"
			continue
		}
		take(occ.batches, k, p.batch.ID)
		take(occ.halls, k, hall.ID)
		take(occ.invigilator, k, inv.ID)
		occ.duties[inv.ID]++
		return Assignment{
			ID:            AssignmentID(p.batch.ID, p.subject.ID, st),
			BatchID:       p.batch.ID,
			SubjectID:     p.subject.ID,
			Date:          st.Date,
			Day:           st.Day,
			Session:       st.Session,
			HallID:        hall.ID,
			InvigilatorID: inv.ID,
			Students:      students,
		}, i, ""
	}
	return Assignment{}, 0, reason
}

func pickHall(halls []*model.Room, students int, busy map[uuid.UUID]bool) *model.Room {
	for _, h := range halls {
		if busy[h.ID] {
			continue
		}
		if h.Capacity <= 0 || h.Capacity >= students {
			return h
		}
	}
	return nil
}

// pickInvigilator 不任教该科目的教师优先，其次监考次数少的
func pickInvigilator(faculty []*model.Faculty, subject uuid.UUID, date string,
	absences []*model.FacultyAbsence, busy map[uuid.UUID]bool, duties map[uuid.UUID]int) *model.Faculty {
	var best *model.Faculty
	better := func(f *model.Faculty) bool {
		if best == nil {
			return true
		}
		if ft, bt := f.CanTeach(subject), best.CanTeach(subject); ft != bt {
			return !ft
		}
		return duties[f.ID] < duties[best.ID]
	}
	for _, f := range faculty {
		if busy[f.ID] || absentOn(absences, f.ID, date) {
			continue
		}
		if better(f) {
			best = f
		}
	}
	return best
}

func absentOn(absences []*model.FacultyAbsence, faculty uuid.UUID, date string) bool {
	for _, a := range absences {
		if a.FacultyID == faculty && !a.Cancelled && a.Covers(date) {
			return true
		}
	}
	return false
}

// papersByBatch 每个教学班开设的课程各考一场，按班名和课程代码排序
func papersByBatch(batches []*model.Batch, subjects []*model.Subject) [][]paper {
	subjectByID := make(map[uuid.UUID]*model.Subject, len(subjects))
	for _, s := range subjects {
		subjectByID[s.ID] = s
	}
	byBatch := make(map[uuid.UUID][]paper)
	for _, r := range model.DeriveRequirements(batches, subjects, model.CollegeTimings{}) {
		byBatch[r.BatchID] = append(byBatch[r.BatchID], paper{subject: subjectByID[r.SubjectID]})
	}

	sorted := append([]*model.Batch(nil), batches...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	var out [][]paper
	for _, b := range sorted {
		group := byBatch[b.ID]
		if len(group) == 0 {
			continue
		}
		for i := range group {
			group[i].batch = b
		}
		sort.Slice(group, func(i, j int) bool { return group[i].subject.Code < group[j].subject.Code })
		out = append(out, group)
	}
	return out
}

// AssignmentID 由教学班、课程和场次决定
func AssignmentID(batch, subject uuid.UUID, st Sitting) uuid.UUID {
	return uuid.NewSHA1(examNamespace, []byte(batch.String()+"/"+subject.String()+"/"+st.Date+"/"+string(st.Session)))
}
