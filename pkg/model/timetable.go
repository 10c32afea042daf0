package model

import (
	"github.com/google/uuid"
)

// TimeSlot 时间段（某天的第N节课）
type TimeSlot struct {
	Day    Weekday `json:"day"`
	Period int     `json:"period"` // 从1开始
	Start  Clock   `json:"start"`
	End    Clock   `json:"end"`
	Label  string  `json:"label"`
}

// Interval 返回时间区间
func (s TimeSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Minutes 返回时长
func (s TimeSlot) Minutes() int {
	return int(s.End - s.Start)
}

// Before 全序：先比较星期，再比较开始时间
func (s TimeSlot) Before(other TimeSlot) bool {
	if s.Day != other.Day {
		return s.Day.Order() < other.Day.Order()
	}
	return s.Start < other.Start
}

// BreakKind 休息类型
type BreakKind string

const (
	BreakLunch BreakKind = "lunch"
	BreakShort BreakKind = "short"
)

// Break 休息时段
type Break struct {
	ID    uuid.UUID `json:"id,omitempty" db:"id"`
	Name  string    `json:"name" db:"name" validate:"required"`
	Start Clock     `json:"start" db:"start_time"`
	End   Clock     `json:"end" db:"end_time"`
	Kind  BreakKind `json:"kind" db:"kind" validate:"omitempty,oneof=lunch short"`
}

// Interval 返回时间区间
func (b Break) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// CollegeTimings 作息配置
type CollegeTimings struct {
	Start          Clock     `json:"start_time" db:"start_time"`
	End            Clock     `json:"end_time" db:"end_time"`
	NumPeriods     int       `json:"num_periods" db:"num_periods"`
	PeriodDuration int       `json:"period_duration" db:"period_duration"` // 分钟
	BreakGap       int       `json:"break_gap" db:"break_gap"`             // 课间，分钟
	LabDuration    int       `json:"lab_duration" db:"lab_duration"`       // 实验课时长，分钟
	Days           []Weekday `json:"days,omitempty" db:"-"`
}

// TeachingDays 返回教学日，未配置时为周一至周五
func (t CollegeTimings) TeachingDays() []Weekday {
	if len(t.Days) == 0 {
		return DefaultTeachingDays
	}
	return t.Days
}

// LabPeriods 实验课默认连堂节数
func (t CollegeTimings) LabPeriods() int {
	if t.PeriodDuration <= 0 || t.LabDuration <= 0 {
		return 2
	}
	n := (t.LabDuration + t.PeriodDuration - 1) / t.PeriodDuration
	if n < 1 {
		n = 1
	}
	return n
}

// Weights 软约束权重（0-100），对应管理端的权重滑块
type Weights struct {
	FacultyWorkload int `json:"faculty_workload" db:"faculty_workload" validate:"min=0,max=100"`
	PreferredSlot   int `json:"preferred_slot" db:"preferred_slot" validate:"min=0,max=100"`
	StudentGap      int `json:"student_gap" db:"student_gap" validate:"min=0,max=100"`
	LabSpacing      int `json:"lab_spacing" db:"lab_spacing" validate:"min=0,max=100"`
	SubjectSpread   int `json:"subject_spread" db:"subject_spread" validate:"min=0,max=100"`
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	return Weights{
		FacultyWorkload: 70,
		PreferredSlot:   50,
		StudentGap:      50,
		LabSpacing:      80,
		SubjectSpread:   40,
	}
}

// Clamp 把权重限制在 [0,100]
func (w Weights) Clamp() Weights {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}
	return Weights{
		FacultyWorkload: clamp(w.FacultyWorkload),
		PreferredSlot:   clamp(w.PreferredSlot),
		StudentGap:      clamp(w.StudentGap),
		LabSpacing:      clamp(w.LabSpacing),
		SubjectSpread:   clamp(w.SubjectSpread),
	}
}
