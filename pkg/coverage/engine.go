// Package coverage 提供教师缺勤后的代课覆盖计算
package coverage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
)

const (
	// DefaultHorizonDays 单个缺勤最多展开的天数
	DefaultHorizonDays = 14
	// DefaultTopK 默认推荐人数
	DefaultTopK = 3
)

// Snapshot 计算所需的只读数据
type Snapshot struct {
	Slots         []*model.ScheduleSlot
	Faculty       []*model.Faculty
	Absences      []*model.FacultyAbsence
	Substitutions []*model.Substitution
}

// Truncation 缺勤超过计算范围时被截断的部分，horizon_end 之后的课节未计算
type Truncation struct {
	AbsenceID  uuid.UUID `json:"absence_id"`
	EndDate    string    `json:"end_date"`
	HorizonEnd string    `json:"horizon_end"`
}

// Recommendation 某个未覆盖课节的推荐结果
type Recommendation struct {
	Slot       model.UncoveredSlot           `json:"slot"`
	Candidates []model.RecommendedSubstitute `json:"candidates"`
	Message    string                        `json:"message,omitempty"`
}

// Engine 代课覆盖引擎
type Engine struct {
	logger      *logger.EngineLogger
	horizonDays int
	topK        int
}

// NewEngine 创建引擎，参数小于等于0时使用默认值
func NewEngine(horizonDays, topK int) *Engine {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{
		logger:      logger.NewEngineLogger("coverage"),
		horizonDays: horizonDays,
		topK:        topK,
	}
}

type slotDate struct {
	slot uuid.UUID
	date string
}

type facultyDay struct {
	faculty uuid.UUID
	day     model.Weekday
}

// index 快照的查询索引，构建后只读
type index struct {
	slots        map[uuid.UUID]*model.ScheduleSlot
	faculty      map[uuid.UUID]*model.Faculty
	facultyOrder []*model.Faculty
	byFacultyDay map[facultyDay][]*model.ScheduleSlot
	weekSessions map[uuid.UUID]int
	weekMinutes  map[uuid.UUID]int
	approved     map[slotDate]*model.Substitution
	subsByDate   map[uuid.UUID]map[string][]*model.Substitution // 代课教师 -> 日期 -> 代课
	absences     map[uuid.UUID][]*model.FacultyAbsence
}

func newIndex(snap *Snapshot) *index {
	idx := &index{
		slots:        make(map[uuid.UUID]*model.ScheduleSlot, len(snap.Slots)),
		faculty:      make(map[uuid.UUID]*model.Faculty, len(snap.Faculty)),
		byFacultyDay: make(map[facultyDay][]*model.ScheduleSlot),
		weekSessions: make(map[uuid.UUID]int),
		weekMinutes:  make(map[uuid.UUID]int),
		approved:     make(map[slotDate]*model.Substitution),
		subsByDate:   make(map[uuid.UUID]map[string][]*model.Substitution),
		absences:     make(map[uuid.UUID][]*model.FacultyAbsence),
	}
	for _, s := range snap.Slots {
		if s.IsBreak() {
			continue
		}
		idx.slots[s.ID] = s
		k := facultyDay{s.FacultyID, s.Day}
		idx.byFacultyDay[k] = append(idx.byFacultyDay[k], s)
		idx.weekSessions[s.FacultyID]++
		idx.weekMinutes[s.FacultyID] += s.Minutes()
	}
	for _, list := range idx.byFacultyDay {
		sort.Slice(list, func(i, j int) bool { return model.SlotLess(list[i], list[j]) })
	}

	idx.facultyOrder = make([]*model.Faculty, len(snap.Faculty))
	copy(idx.facultyOrder, snap.Faculty)
	sort.Slice(idx.facultyOrder, func(i, j int) bool {
		return idx.facultyOrder[i].ID.String() < idx.facultyOrder[j].ID.String()
	})
	for _, f := range snap.Faculty {
		idx.faculty[f.ID] = f
	}

	// 课表重排后旧课节已不存在，这类代课记录只保留历史，不再算覆盖或占用
	for _, sub := range snap.Substitutions {
		if !sub.IsApproved() || idx.slots[sub.ScheduleSlotID] == nil {
			continue
		}
		idx.approved[slotDate{sub.ScheduleSlotID, sub.Date}] = sub
		byDate := idx.subsByDate[sub.SubstituteFacultyID]
		if byDate == nil {
			byDate = make(map[string][]*model.Substitution)
			idx.subsByDate[sub.SubstituteFacultyID] = byDate
		}
		byDate[sub.Date] = append(byDate[sub.Date], sub)
	}
	for _, a := range snap.Absences {
		if !a.Cancelled {
			idx.absences[a.FacultyID] = append(idx.absences[a.FacultyID], a)
		}
	}
	return idx
}

// absentOn 教师在该日期是否缺勤
func (idx *index) absentOn(facultyID uuid.UUID, date string) bool {
	for _, a := range idx.absences[facultyID] {
		if a.Covers(date) {
			return true
		}
	}
	return false
}

// ComputeUncovered 计算缺勤期间没有批准代课的课节
// absenceIDs 为空时计算快照中所有有效缺勤；结果按日期、开始时间、课节ID排序
func (e *Engine) ComputeUncovered(snap *Snapshot, absenceIDs []uuid.UUID) ([]model.UncoveredSlot, error) {
	absences, err := selectAbsences(snap, absenceIDs)
	if err != nil {
		return nil, err
	}
	idx := newIndex(snap)

	seen := make(map[slotDate]bool)
	result := make([]model.UncoveredSlot, 0)
	for _, a := range absences {
		dates, _, err := e.expandDates(a)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			date := d.Format(model.DateLayout)
			day := model.WeekdayOf(d)
			for _, s := range idx.byFacultyDay[facultyDay{a.FacultyID, day}] {
				k := slotDate{s.ID, date}
				if seen[k] || idx.approved[k] != nil {
					continue
				}
				seen[k] = true
				result = append(result, model.UncoveredSlot{
					AbsenceID: a.ID,
					FacultyID: a.FacultyID,
					Date:      date,
					Day:       day,
					Slot:      s,
				})
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool { return uncoveredLess(result[i], result[j]) })
	e.logger.CoverageComputed(len(absences), len(result))
	return result, nil
}

func uncoveredLess(a, b model.UncoveredSlot) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Slot.Start != b.Slot.Start {
		return a.Slot.Start < b.Slot.Start
	}
	return a.Slot.ID.String() < b.Slot.ID.String()
}

func selectAbsences(snap *Snapshot, ids []uuid.UUID) ([]*model.FacultyAbsence, error) {
	if len(ids) == 0 {
		var active []*model.FacultyAbsence
		for _, a := range snap.Absences {
			if !a.Cancelled {
				active = append(active, a)
			}
		}
		return active, nil
	}

	byID := make(map[uuid.UUID]*model.FacultyAbsence, len(snap.Absences))
	for _, a := range snap.Absences {
		byID[a.ID] = a
	}
	out := make([]*model.FacultyAbsence, 0, len(ids))
	picked := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, apperrors.NotFound("缺勤记录", id.String())
		}
		// 已取消的缺勤不产生代课需求
		if a.Cancelled || picked[id] {
			continue
		}
		picked[id] = true
		out = append(out, a)
	}
	return out, nil
}

// expandDates 展开缺勤日期，最多 horizonDays 天；被截断时 cut 为 true
func (e *Engine) expandDates(a *model.FacultyAbsence) (dates []time.Time, cut bool, err error) {
	start, err := model.ParseDate(a.StartDate)
	if err != nil {
		return nil, false, apperrors.InvalidInput("start_date", "日期格式应为 YYYY-MM-DD")
	}
	end, err := model.ParseDate(a.EndDate)
	if err != nil {
		return nil, false, apperrors.InvalidInput("end_date", "日期格式应为 YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, false, apperrors.New(apperrors.CodeInvalidTimeRange,
			fmt.Sprintf("缺勤结束日期 %s 早于开始日期 %s", a.EndDate, a.StartDate))
	}

	if limit := start.AddDate(0, 0, e.horizonDays-1); end.After(limit) {
		end, cut = limit, true
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, cut, nil
}

// Truncations 列出超出计算范围的缺勤，调用方据此提示 horizon_end 之后需要另行计算
func (e *Engine) Truncations(snap *Snapshot, absenceIDs []uuid.UUID) ([]Truncation, error) {
	absences, err := selectAbsences(snap, absenceIDs)
	if err != nil {
		return nil, err
	}
	out := []Truncation{}
	for _, a := range absences {
		dates, cut, err := e.expandDates(a)
		if err != nil {
			return nil, err
		}
		if !cut {
			continue
		}
		out = append(out, Truncation{
			AbsenceID:  a.ID,
			EndDate:    a.EndDate,
			HorizonEnd: dates[len(dates)-1].Format(model.DateLayout),
		})
	}
	return out, nil
}

// Rank 为未覆盖课节推荐代课教师，返回前 topK 个
// 同一快照重复调用结果相同
func (e *Engine) Rank(snap *Snapshot, u model.UncoveredSlot) ([]model.RecommendedSubstitute, error) {
	return e.rank(newIndex(snap), u)
}

func (e *Engine) rank(idx *index, u model.UncoveredSlot) ([]model.RecommendedSubstitute, error) {
	if u.Slot == nil {
		return nil, apperrors.InvalidInput("slot", "缺少课节信息")
	}
	all, err := evaluateAll(idx, u)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		e.logger.NoCandidate(u.Slot.ID.String(), u.Date)
		return nil, apperrors.NoEligibleCandidate(u.Slot.ID.String(), u.Date)
	}
	if len(all) > e.topK {
		all = all[:e.topK]
	}
	return all, nil
}

// Candidate 返回指定教师对该课节的评估，不可代课时返回错误
func (e *Engine) Candidate(snap *Snapshot, u model.UncoveredSlot, facultyID uuid.UUID) (model.RecommendedSubstitute, error) {
	if u.Slot == nil {
		return model.RecommendedSubstitute{}, apperrors.InvalidInput("slot", "缺少课节信息")
	}
	all, err := evaluateAll(newIndex(snap), u)
	if err != nil {
		return model.RecommendedSubstitute{}, err
	}
	for _, c := range all {
		if c.FacultyID == facultyID {
			return c, nil
		}
	}
	return model.RecommendedSubstitute{}, apperrors.New(apperrors.CodeNoEligibleCandidate,
		fmt.Sprintf("教师 %s 不能在 %s 代课节 %s", facultyID, u.Date, u.Slot.ID))
}

// RankAll 并行计算多个未覆盖课节的推荐
// 没有候选人的课节以 Message 说明，不视为错误
func (e *Engine) RankAll(ctx context.Context, snap *Snapshot, uncovered []model.UncoveredSlot) ([]Recommendation, error) {
	idx := newIndex(snap)
	out := make([]Recommendation, len(uncovered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range uncovered {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i].Slot = uncovered[i]
			cands, err := e.rank(idx, uncovered[i])
			switch {
			case err == nil:
				out[i].Candidates = cands
			case apperrors.Is(err, apperrors.CodeNoEligibleCandidate):
				out[i].Candidates = []model.RecommendedSubstitute{}
				out[i].Message = err.Error()
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if apperrors.GetCode(err) != apperrors.CodeUnknown {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "计算代课推荐失败")
	}
	return out, nil
}

// evaluateAll 评估所有可代课教师并排序
// 缺勤教师本人、当时已有课或代课、当天也缺勤的教师不参与，因此返回的候选人 is_free 均为 true
func evaluateAll(idx *index, u model.UncoveredSlot) ([]model.RecommendedSubstitute, error) {
	date, err := model.ParseDate(u.Date)
	if err != nil {
		return nil, apperrors.InvalidInput("date", "日期格式应为 YYYY-MM-DD")
	}
	monday, sunday := model.WeekBounds(date)
	weekStart, weekEnd := monday.Format(model.DateLayout), sunday.Format(model.DateLayout)
	target := u.Slot.Interval()

	var out []model.RecommendedSubstitute
	preferred := make(map[uuid.UUID]bool)
	for _, f := range idx.facultyOrder {
		if f.ID == u.FacultyID || f.ID == u.Slot.FacultyID {
			continue
		}
		prof, ok := f.Proficiency(u.Slot.SubjectID)
		if !ok || idx.absentOn(f.ID, u.Date) {
			continue
		}

		regular := idx.byFacultyDay[facultyDay{f.ID, u.Day}]
		subs := idx.subsByDate[f.ID][u.Date]
		busy := false
		dayLoad := make([]model.Interval, 0, len(regular)+len(subs))
		for _, s := range regular {
			// 该教师当天这节课已由他人代课时不占用时间
			if idx.approved[slotDate{s.ID, u.Date}] != nil {
				continue
			}
			busy = busy || s.Interval().Overlaps(target)
			dayLoad = append(dayLoad, s.Interval())
		}
		for _, sub := range subs {
			if s := idx.slots[sub.ScheduleSlotID]; s != nil {
				busy = busy || s.Interval().Overlaps(target)
				dayLoad = append(dayLoad, s.Interval())
			}
		}
		if busy {
			continue
		}

		weekSubs, weekSubMinutes := 0, 0
		for d, list := range idx.subsByDate[f.ID] {
			if d < weekStart || d > weekEnd {
				continue
			}
			for _, sub := range list {
				weekSubs++
				if s := idx.slots[sub.ScheduleSlotID]; s != nil {
					weekSubMinutes += s.Minutes()
				}
			}
		}
		reason := builtin.CheckWorkload(f.Workload, builtin.WorkloadUsage{
			Day:         dayLoad,
			WeekMinutes: idx.weekMinutes[f.ID] + weekSubMinutes,
		}, []model.Interval{target})

		c := model.RecommendedSubstitute{
			FacultyID:        f.ID,
			Name:             f.Name,
			IsFree:           true,
			WithinWorkload:   reason == "",
			WorkloadScore:    idx.weekSessions[f.ID] + weekSubs,
			PreferenceWeight: f.PreferenceWeight(u.Slot.SubjectID, u.Day, u.Slot.Period),
			Proficiency:      prof.Level,
		}
		if c.WithinWorkload {
			c.Reason = fmt.Sprintf("空闲，本周已有 %d 节", c.WorkloadScore)
		} else {
			c.Reason = reason
		}
		out = append(out, c)
		preferred[f.ID] = prof.Preferred
	}

	sort.SliceStable(out, func(i, j int) bool { return candidateLess(out[i], out[j], preferred) })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// candidateLess 空闲优先，其次不超工作量上限、本周课节少、偏好权重高、熟练度高、首选课程，最后按姓名和ID
func candidateLess(a, b model.RecommendedSubstitute, preferred map[uuid.UUID]bool) bool {
	if a.IsFree != b.IsFree {
		return a.IsFree
	}
	if a.WithinWorkload != b.WithinWorkload {
		return a.WithinWorkload
	}
	if a.WorkloadScore != b.WorkloadScore {
		return a.WorkloadScore < b.WorkloadScore
	}
	if a.PreferenceWeight != b.PreferenceWeight {
		return a.PreferenceWeight > b.PreferenceWeight
	}
	if a.Proficiency.Rank() != b.Proficiency.Rank() {
		return a.Proficiency.Rank() > b.Proficiency.Rank()
	}
	if preferred[a.FacultyID] != preferred[b.FacultyID] {
		return preferred[a.FacultyID]
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.FacultyID.String() < b.FacultyID.String()
}
