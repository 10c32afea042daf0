// Package constraint 定义约束接口和管理器
package constraint

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/timegrid"
)

// Type 约束类型标识
type Type string

const (
	// 硬约束类型
	TypeFacultyClash        Type = "faculty_clash"
	TypeRoomClash           Type = "room_clash"
	TypeBatchClash          Type = "batch_clash"
	TypeLabBlock            Type = "lab_block"
	TypeFacultyWorkload     Type = "faculty_workload"
	TypeFacultyAvailability Type = "faculty_availability"

	// 软约束类型
	TypeWorkloadBalance Type = "workload_balance"
	TypePreferredSlot   Type = "preferred_slot"
	TypeStudentGap      Type = "student_gap"
	TypeLabSpacing      Type = "lab_spacing"
	TypeSubjectSpread   Type = "subject_spread"
)

// Category 约束类别
type Category string

const (
	CategoryHard Category = "hard" // 硬约束（必须满足）
	CategorySoft Category = "soft" // 软约束（尽量满足）
)

// Constraint 约束接口
type Constraint interface {
	// Name 返回约束名称
	Name() string

	// Type 返回约束类型
	Type() Type

	// Category 返回约束类别
	Category() Category

	// Weight 返回约束权重 (0-100)
	Weight() int

	// Evaluate 评估整个课表
	// 返回：是否满足、惩罚值、违反详情
	Evaluate(ctx *Context) (valid bool, penalty int, details []ViolationDetail)

	// EvaluatePlacement 评估一次候选排课
	// 返回：是否满足、惩罚值
	EvaluatePlacement(ctx *Context, p *Placement) (valid bool, penalty int)
}

// ViolationDetail 约束违反详情
type ViolationDetail struct {
	ConstraintType Type          `json:"constraint_type"`
	ConstraintName string        `json:"constraint_name"`
	FacultyID      uuid.UUID     `json:"faculty_id,omitempty"`
	RoomID         uuid.UUID     `json:"room_id,omitempty"`
	BatchID        uuid.UUID     `json:"batch_id,omitempty"`
	Day            model.Weekday `json:"day,omitempty"`
	Period         int           `json:"period,omitempty"`
	Message        string        `json:"message"`
	Severity       string        `json:"severity"` // error/warning
	Penalty        int           `json:"penalty"`
}

// Cell 课表中的一个格子
type Cell struct {
	Day    model.Weekday
	Period int
}

// Placement 一次候选排课：某需求的一次（或一组连堂）落在某天连续节次上
type Placement struct {
	Requirement *model.Requirement
	Day         model.Weekday
	Periods     []int
	FacultyID   uuid.UUID
	RoomID      uuid.UUID
}

// Cells 返回占用的格子
func (p *Placement) Cells() []Cell {
	cells := make([]Cell, len(p.Periods))
	for i, period := range p.Periods {
		cells[i] = Cell{Day: p.Day, Period: period}
	}
	return cells
}

// occKey 资源占用键
type occKey struct {
	id   uuid.UUID
	cell Cell
}

// dayKey 资源-星期键
type dayKey struct {
	id  uuid.UUID
	day model.Weekday
}

// Context 排课上下文，维护当前课表及各维度占用索引
type Context struct {
	Grid    *timegrid.Grid
	Weights model.Weights

	Faculty  []*model.Faculty
	Rooms    []*model.Room
	Batches  []*model.Batch
	Subjects []*model.Subject

	// 当前课表（固定课 + 已排课）
	Slots []*model.ScheduleSlot

	facultyMap map[uuid.UUID]*model.Faculty
	roomMap    map[uuid.UUID]*model.Room
	batchMap   map[uuid.UUID]*model.Batch
	subjectMap map[uuid.UUID]*model.Subject

	slotByID   map[uuid.UUID]*model.ScheduleSlot
	facultyOcc map[occKey][]*model.ScheduleSlot
	roomOcc    map[occKey][]*model.ScheduleSlot
	batchOcc   map[occKey][]*model.ScheduleSlot

	facultyDaySlots map[dayKey][]*model.ScheduleSlot
	batchDaySlots   map[dayKey][]*model.ScheduleSlot

	facultyDayMinutes  map[uuid.UUID]map[model.Weekday]int
	facultyWeekMinutes map[uuid.UUID]int

	unavailable map[uuid.UUID]map[model.Weekday]bool
}

// NewContext 创建新的排课上下文
func NewContext(grid *timegrid.Grid, weights model.Weights) *Context {
	return &Context{
		Grid:               grid,
		Weights:            weights.Clamp(),
		facultyMap:         make(map[uuid.UUID]*model.Faculty),
		roomMap:            make(map[uuid.UUID]*model.Room),
		batchMap:           make(map[uuid.UUID]*model.Batch),
		subjectMap:         make(map[uuid.UUID]*model.Subject),
		slotByID:           make(map[uuid.UUID]*model.ScheduleSlot),
		facultyOcc:         make(map[occKey][]*model.ScheduleSlot),
		roomOcc:            make(map[occKey][]*model.ScheduleSlot),
		batchOcc:           make(map[occKey][]*model.ScheduleSlot),
		facultyDaySlots:    make(map[dayKey][]*model.ScheduleSlot),
		batchDaySlots:      make(map[dayKey][]*model.ScheduleSlot),
		facultyDayMinutes:  make(map[uuid.UUID]map[model.Weekday]int),
		facultyWeekMinutes: make(map[uuid.UUID]int),
		unavailable:        make(map[uuid.UUID]map[model.Weekday]bool),
	}
}

// SetFaculty 设置教师列表
func (c *Context) SetFaculty(faculty []*model.Faculty) {
	c.Faculty = faculty
	c.facultyMap = make(map[uuid.UUID]*model.Faculty, len(faculty))
	for _, f := range faculty {
		c.facultyMap[f.ID] = f
	}
}

// SetRooms 设置教室列表
func (c *Context) SetRooms(rooms []*model.Room) {
	c.Rooms = rooms
	c.roomMap = make(map[uuid.UUID]*model.Room, len(rooms))
	for _, r := range rooms {
		c.roomMap[r.ID] = r
	}
}

// SetBatches 设置教学班列表
func (c *Context) SetBatches(batches []*model.Batch) {
	c.Batches = batches
	c.batchMap = make(map[uuid.UUID]*model.Batch, len(batches))
	for _, b := range batches {
		c.batchMap[b.ID] = b
	}
}

// SetSubjects 设置课程列表
func (c *Context) SetSubjects(subjects []*model.Subject) {
	c.Subjects = subjects
	c.subjectMap = make(map[uuid.UUID]*model.Subject, len(subjects))
	for _, s := range subjects {
		c.subjectMap[s.ID] = s
	}
}

// GetFaculty 获取教师
func (c *Context) GetFaculty(id uuid.UUID) *model.Faculty { return c.facultyMap[id] }

// GetRoom 获取教室
func (c *Context) GetRoom(id uuid.UUID) *model.Room { return c.roomMap[id] }

// GetBatch 获取教学班
func (c *Context) GetBatch(id uuid.UUID) *model.Batch { return c.batchMap[id] }

// GetSubject 获取课程
func (c *Context) GetSubject(id uuid.UUID) *model.Subject { return c.subjectMap[id] }

// GetSlot 获取课节
func (c *Context) GetSlot(id uuid.UUID) *model.ScheduleSlot { return c.slotByID[id] }

// Workload 返回教师工作量配置，未知教师使用默认值
func (c *Context) Workload(facultyID uuid.UUID) model.WorkloadConfig {
	if f := c.facultyMap[facultyID]; f != nil {
		return f.Workload.WithDefaults()
	}
	return model.DefaultWorkloadConfig()
}

// SetSlots 设置课表并重建索引
func (c *Context) SetSlots(slots []*model.ScheduleSlot) {
	c.Slots = nil
	c.slotByID = make(map[uuid.UUID]*model.ScheduleSlot)
	c.facultyOcc = make(map[occKey][]*model.ScheduleSlot)
	c.roomOcc = make(map[occKey][]*model.ScheduleSlot)
	c.batchOcc = make(map[occKey][]*model.ScheduleSlot)
	c.facultyDaySlots = make(map[dayKey][]*model.ScheduleSlot)
	c.batchDaySlots = make(map[dayKey][]*model.ScheduleSlot)
	c.facultyDayMinutes = make(map[uuid.UUID]map[model.Weekday]int)
	c.facultyWeekMinutes = make(map[uuid.UUID]int)
	for _, s := range slots {
		c.AddSlot(s)
	}
}

// AddSlot 加入课节并更新索引，休息行不占用资源
func (c *Context) AddSlot(s *model.ScheduleSlot) {
	c.Slots = append(c.Slots, s)
	c.slotByID[s.ID] = s
	if s.IsBreak() {
		return
	}
	cell := Cell{Day: s.Day, Period: s.Period}
	if s.FacultyID != uuid.Nil {
		k := occKey{id: s.FacultyID, cell: cell}
		c.facultyOcc[k] = append(c.facultyOcc[k], s)
		dk := dayKey{id: s.FacultyID, day: s.Day}
		c.facultyDaySlots[dk] = insertSorted(c.facultyDaySlots[dk], s)
		if c.facultyDayMinutes[s.FacultyID] == nil {
			c.facultyDayMinutes[s.FacultyID] = make(map[model.Weekday]int)
		}
		c.facultyDayMinutes[s.FacultyID][s.Day] += s.Minutes()
		c.facultyWeekMinutes[s.FacultyID] += s.Minutes()
	}
	if s.RoomID != uuid.Nil {
		k := occKey{id: s.RoomID, cell: cell}
		c.roomOcc[k] = append(c.roomOcc[k], s)
	}
	k := occKey{id: s.BatchID, cell: cell}
	c.batchOcc[k] = append(c.batchOcc[k], s)
	dk := dayKey{id: s.BatchID, day: s.Day}
	c.batchDaySlots[dk] = insertSorted(c.batchDaySlots[dk], s)
}

// insertSorted 按开始时间插入
func insertSorted(list []*model.ScheduleSlot, s *model.ScheduleSlot) []*model.ScheduleSlot {
	i := sort.Search(len(list), func(i int) bool { return list[i].Start > s.Start })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// removeByID 从列表中删除课节
func removeByID(list []*model.ScheduleSlot, id uuid.UUID) []*model.ScheduleSlot {
	for i, s := range list {
		if s.ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// RemoveSlot 移除课节
func (c *Context) RemoveSlot(id uuid.UUID) {
	s, ok := c.slotByID[id]
	if !ok {
		return
	}
	delete(c.slotByID, id)
	for i, existing := range c.Slots {
		if existing.ID == id {
			c.Slots = append(c.Slots[:i], c.Slots[i+1:]...)
			break
		}
	}
	if s.IsBreak() {
		return
	}
	cell := Cell{Day: s.Day, Period: s.Period}
	if s.FacultyID != uuid.Nil {
		removeFrom(c.facultyOcc, occKey{id: s.FacultyID, cell: cell}, id)
		dk := dayKey{id: s.FacultyID, day: s.Day}
		c.facultyDaySlots[dk] = removeByID(c.facultyDaySlots[dk], id)
		c.facultyDayMinutes[s.FacultyID][s.Day] -= s.Minutes()
		c.facultyWeekMinutes[s.FacultyID] -= s.Minutes()
	}
	if s.RoomID != uuid.Nil {
		removeFrom(c.roomOcc, occKey{id: s.RoomID, cell: cell}, id)
	}
	removeFrom(c.batchOcc, occKey{id: s.BatchID, cell: cell}, id)
	dk := dayKey{id: s.BatchID, day: s.Day}
	c.batchDaySlots[dk] = removeByID(c.batchDaySlots[dk], id)
}

func removeFrom(index map[occKey][]*model.ScheduleSlot, k occKey, id uuid.UUID) {
	list := index[k]
	for i, s := range list {
		if s.ID == id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(index, k)
		return
	}
	index[k] = list
}

// FacultyBusy 教师在该格子是否已有课
func (c *Context) FacultyBusy(facultyID uuid.UUID, cell Cell) bool {
	return len(c.facultyOcc[occKey{id: facultyID, cell: cell}]) > 0
}

// RoomBusy 教室在该格子是否已被占用
func (c *Context) RoomBusy(roomID uuid.UUID, cell Cell) bool {
	return len(c.roomOcc[occKey{id: roomID, cell: cell}]) > 0
}

// BatchBusy 教学班在该格子是否已有课
func (c *Context) BatchBusy(batchID uuid.UUID, cell Cell) bool {
	return len(c.batchOcc[occKey{id: batchID, cell: cell}]) > 0
}

// FacultyMinutesOnDay 教师某天已排分钟数
func (c *Context) FacultyMinutesOnDay(facultyID uuid.UUID, day model.Weekday) int {
	return c.facultyDayMinutes[facultyID][day]
}

// FacultyMinutesInWeek 教师一周已排分钟数
func (c *Context) FacultyMinutesInWeek(facultyID uuid.UUID) int {
	return c.facultyWeekMinutes[facultyID]
}

// MeanFacultyMinutes 所有教师每周平均分钟数
func (c *Context) MeanFacultyMinutes() float64 {
	if len(c.Faculty) == 0 {
		return 0
	}
	total := 0
	for _, f := range c.Faculty {
		total += c.facultyWeekMinutes[f.ID]
	}
	return float64(total) / float64(len(c.Faculty))
}

// FacultySlotsOnDay 教师某天的课，按开始时间排序，结果只读
func (c *Context) FacultySlotsOnDay(facultyID uuid.UUID, day model.Weekday) []*model.ScheduleSlot {
	return c.facultyDaySlots[dayKey{id: facultyID, day: day}]
}

// BatchSlotsOnDay 教学班某天的课，按开始时间排序，结果只读
func (c *Context) BatchSlotsOnDay(batchID uuid.UUID, day model.Weekday) []*model.ScheduleSlot {
	return c.batchDaySlots[dayKey{id: batchID, day: day}]
}

// MarkUnavailable 标记教师某天不可排课
func (c *Context) MarkUnavailable(facultyID uuid.UUID, day model.Weekday) {
	if c.unavailable[facultyID] == nil {
		c.unavailable[facultyID] = make(map[model.Weekday]bool)
	}
	c.unavailable[facultyID][day] = true
}

// IsUnavailable 教师某天是否不可排课
func (c *Context) IsUnavailable(facultyID uuid.UUID, day model.Weekday) bool {
	return c.unavailable[facultyID][day]
}

// PlacementMinutes 候选排课的总分钟数
func (c *Context) PlacementMinutes(p *Placement) int {
	total := 0
	for _, idx := range p.Periods {
		if period, ok := c.Grid.Period(idx); ok {
			total += int(period.End - period.Start)
		}
	}
	return total
}

// Conflicts 返回占用同一格子的课节组（用于整表评估）
func (c *Context) Conflicts(dimension Type) [][]*model.ScheduleSlot {
	var index map[occKey][]*model.ScheduleSlot
	switch dimension {
	case TypeFacultyClash:
		index = c.facultyOcc
	case TypeRoomClash:
		index = c.roomOcc
	case TypeBatchClash:
		index = c.batchOcc
	default:
		return nil
	}

	var groups [][]*model.ScheduleSlot
	for _, list := range index {
		if len(list) > 1 {
			group := make([]*model.ScheduleSlot, len(list))
			copy(group, list)
			groups = append(groups, group)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return model.SlotLess(groups[i][0], groups[j][0]) })
	return groups
}

// Result 约束评估结果
type Result struct {
	IsValid        bool              `json:"is_valid"`
	TotalPenalty   int               `json:"total_penalty"`
	HardViolations []ViolationDetail `json:"hard_violations"`
	SoftViolations []ViolationDetail `json:"soft_violations"`
	Score          float64           `json:"score"` // 0-100
}

// CalculateScore 计算约束满足度得分
func (r *Result) CalculateScore(maxPenalty int) {
	if maxPenalty == 0 {
		r.Score = 100.0
		return
	}
	r.Score = 100.0 * float64(maxPenalty-r.TotalPenalty) / float64(maxPenalty)
	if r.Score < 0 {
		r.Score = 0
	}
}
