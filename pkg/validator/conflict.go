// Package validator 提供课表验证功能
package validator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
	"github.com/kebiao/kebiao/pkg/timegrid"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictFaculty  ConflictType = "faculty_clash"    // 教师时间重叠
	ConflictRoom     ConflictType = "room_clash"       // 教室时间重叠
	ConflictBatch    ConflictType = "batch_clash"      // 教学班时间重叠
	ConflictLabBlock ConflictType = "lab_block"        // 实验课连堂不合规
	ConflictWorkload ConflictType = "faculty_workload" // 超出工作量上限
	ConflictBreak    ConflictType = "break_overlap"    // 课节占用休息时段
)

// Conflict 冲突信息
type Conflict struct {
	Type      ConflictType  `json:"type"`
	Severity  string        `json:"severity"` // error/warning
	FacultyID uuid.UUID     `json:"faculty_id,omitempty"`
	RoomID    uuid.UUID     `json:"room_id,omitempty"`
	BatchID   uuid.UUID     `json:"batch_id,omitempty"`
	Day       model.Weekday `json:"day,omitempty"`
	Message   string        `json:"message"`
	Slots     []uuid.UUID   `json:"slots,omitempty"` // 相关课节ID
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	config *DetectorConfig
}

// DetectorConfig 检测器配置
type DetectorConfig struct {
	CheckFaculty   bool // 教师重叠
	CheckRoom      bool // 教室重叠
	CheckBatch     bool // 教学班重叠
	CheckLabBlocks bool // 实验课连堂
	CheckWorkload  bool // 教师工作量
	CheckBreaks    bool // 休息时段（需要作息网格）
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		CheckFaculty:   true,
		CheckRoom:      true,
		CheckBatch:     true,
		CheckLabBlocks: true,
		CheckWorkload:  true,
		CheckBreaks:    true,
	}
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config}
}

// DetectAll 检测所有冲突
// 时间重叠按实际起止时间判断，不依赖节次号；grid 为空时跳过午休相关检查
func (d *ConflictDetector) DetectAll(slots []*model.ScheduleSlot, faculty map[uuid.UUID]*model.Faculty, grid *timegrid.Grid) []Conflict {
	teaching := make([]*model.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if !s.IsBreak() {
			teaching = append(teaching, s)
		}
	}
	sort.Slice(teaching, func(i, j int) bool { return model.SlotLess(teaching[i], teaching[j]) })

	var conflicts []Conflict
	if d.config.CheckFaculty {
		conflicts = append(conflicts, detectOverlaps(teaching, ConflictFaculty, "教师",
			func(s *model.ScheduleSlot) uuid.UUID { return s.FacultyID })...)
	}
	if d.config.CheckRoom {
		conflicts = append(conflicts, detectOverlaps(teaching, ConflictRoom, "教室",
			func(s *model.ScheduleSlot) uuid.UUID { return s.RoomID })...)
	}
	if d.config.CheckBatch {
		conflicts = append(conflicts, detectOverlaps(teaching, ConflictBatch, "教学班",
			func(s *model.ScheduleSlot) uuid.UUID { return s.BatchID })...)
	}
	if d.config.CheckLabBlocks {
		conflicts = append(conflicts, d.detectLabBlocks(teaching, grid)...)
	}
	if d.config.CheckWorkload {
		conflicts = append(conflicts, d.detectWorkload(teaching, faculty)...)
	}
	if d.config.CheckBreaks && grid != nil {
		conflicts = append(conflicts, d.detectBreakOverlaps(teaching, grid)...)
	}
	return conflicts
}

// HasErrors 是否存在硬冲突
func HasErrors(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == "error" {
			return true
		}
	}
	return false
}

// Summary 按类型统计冲突
func Summary(conflicts []Conflict) map[ConflictType]int {
	out := make(map[ConflictType]int)
	for _, c := range conflicts {
		out[c.Type]++
	}
	return out
}

type resourceDay struct {
	id  uuid.UUID
	day model.Weekday
}

// groupBy 按（资源，星期）分组，分组顺序与输入一致
func groupBy(slots []*model.ScheduleSlot, key func(*model.ScheduleSlot) uuid.UUID) ([]resourceDay, map[resourceDay][]*model.ScheduleSlot) {
	groups := make(map[resourceDay][]*model.ScheduleSlot)
	var order []resourceDay
	for _, s := range slots {
		id := key(s)
		if id == uuid.Nil {
			continue
		}
		k := resourceDay{id: id, day: s.Day}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}
	return order, groups
}

// detectOverlaps 检测同一资源同一天的时间重叠
func detectOverlaps(slots []*model.ScheduleSlot, typ ConflictType, label string, key func(*model.ScheduleSlot) uuid.UUID) []Conflict {
	var conflicts []Conflict
	order, groups := groupBy(slots, key)
	for _, k := range order {
		list := groups[k]
		for i := 0; i < len(list); i++ {
			for j := i + 1; j < len(list) && list[j].Start < list[i].End; j++ {
				a, b := list[i], list[j]
				c := Conflict{
					Type:     typ,
					Severity: "error",
					Day:      k.day,
					Message:  fmt.Sprintf("%s在 %s %s 与 %s 时间重叠", label, k.day, a.TimeSlot, b.TimeSlot),
					Slots:    []uuid.UUID{a.ID, b.ID},
				}
				switch typ {
				case ConflictFaculty:
					c.FacultyID = k.id
				case ConflictRoom:
					c.RoomID = k.id
				case ConflictBatch:
					c.BatchID = k.id
				}
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

// detectLabBlocks 检测实验课连堂
func (d *ConflictDetector) detectLabBlocks(slots []*model.ScheduleSlot, grid *timegrid.Grid) []Conflict {
	var conflicts []Conflict
	for _, block := range builtin.LabBlocks(slots) {
		first := block[0]
		msg := ""
		for i := 1; i < len(block) && msg == ""; i++ {
			prev, cur := block[i-1], block[i]
			switch {
			case cur.Day != first.Day || cur.RoomID != first.RoomID || cur.FacultyID != first.FacultyID:
				msg = "实验课连堂必须在同一天、同一教室、同一教师"
			case cur.Period != prev.Period+1:
				msg = fmt.Sprintf("实验课第 %d 节与第 %d 节不连续", prev.Period, cur.Period)
			case grid != nil:
				if br, ok := grid.BreakBetween(prev.Period, cur.Period); ok && br.Kind == model.BreakLunch {
					msg = "实验课连堂不能跨越午休"
				}
			}
		}
		if msg == "" {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:      ConflictLabBlock,
			Severity:  "error",
			FacultyID: first.FacultyID,
			RoomID:    first.RoomID,
			BatchID:   first.BatchID,
			Day:       first.Day,
			Message:   msg,
			Slots:     slotIDs(block),
		})
	}
	return conflicts
}

// detectWorkload 检测教师每日、每周、连续授课上限
func (d *ConflictDetector) detectWorkload(slots []*model.ScheduleSlot, faculty map[uuid.UUID]*model.Faculty) []Conflict {
	var conflicts []Conflict
	order, groups := groupBy(slots, func(s *model.ScheduleSlot) uuid.UUID { return s.FacultyID })

	weekMinutes := make(map[uuid.UUID]int)
	var facultyOrder []uuid.UUID
	for _, k := range order {
		cfg := model.DefaultWorkloadConfig()
		name := k.id.String()
		if f := faculty[k.id]; f != nil {
			cfg = f.Workload.WithDefaults()
			name = f.Name
		}

		intervals := make([]model.Interval, len(groups[k]))
		for i, s := range groups[k] {
			intervals[i] = s.Interval()
			weekMinutes[k.id] += s.Minutes()
		}
		facultyOrder = appendUnique(facultyOrder, k.id)

		if reason := builtin.CheckWorkload(cfg, builtin.WorkloadUsage{}, intervals); reason != "" {
			conflicts = append(conflicts, Conflict{
				Type:      ConflictWorkload,
				Severity:  "error",
				FacultyID: k.id,
				Day:       k.day,
				Message:   fmt.Sprintf("教师 %s 在 %s %s", name, k.day, reason),
				Slots:     slotIDs(groups[k]),
			})
		}
	}

	for _, id := range facultyOrder {
		cfg := model.DefaultWorkloadConfig()
		name := id.String()
		if f := faculty[id]; f != nil {
			cfg = f.Workload.WithDefaults()
			name = f.Name
		}
		if weekMinutes[id] > cfg.MaxHoursPerWeek*60 {
			conflicts = append(conflicts, Conflict{
				Type:      ConflictWorkload,
				Severity:  "error",
				FacultyID: id,
				Message:   fmt.Sprintf("教师 %s 本周课时 %.1f 小时超过上限 %d 小时", name, float64(weekMinutes[id])/60, cfg.MaxHoursPerWeek),
			})
		}
	}
	return conflicts
}

// detectBreakOverlaps 检测课节是否占用休息时段
func (d *ConflictDetector) detectBreakOverlaps(slots []*model.ScheduleSlot, grid *timegrid.Grid) []Conflict {
	var conflicts []Conflict
	for _, s := range slots {
		for _, b := range grid.Breaks {
			if !s.Interval().Overlaps(b.Interval()) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:      ConflictBreak,
				Severity:  "error",
				FacultyID: s.FacultyID,
				RoomID:    s.RoomID,
				BatchID:   s.BatchID,
				Day:       s.Day,
				Message:   fmt.Sprintf("%s %s 占用了休息时段 %s", s.Day, s.TimeSlot, b.Name),
				Slots:     []uuid.UUID{s.ID},
			})
		}
	}
	return conflicts
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func slotIDs(slots []*model.ScheduleSlot) []uuid.UUID {
	ids := make([]uuid.UUID, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
	}
	return ids
}
