package model

import (
	"github.com/google/uuid"
)

// SlotKind 课表格类型
type SlotKind string

const (
	SlotTheory SlotKind = "theory"
	SlotLab    SlotKind = "lab"
	SlotBreak  SlotKind = "break"
)

// ScheduleSlot 已排定的一节课
// 同一 (day, period) 下教师、教室、教学班各至多出现一次
type ScheduleSlot struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BatchID   uuid.UUID `json:"batch_id" db:"batch_id"`
	Day       Weekday   `json:"day" db:"day"`
	Period    int       `json:"period" db:"period"` // 休息行为0
	TimeSlot  string    `json:"time_slot" db:"time_slot"`
	Start     Clock     `json:"start_time" db:"start_time"`
	End       Clock     `json:"end_time" db:"end_time"`
	SubjectID uuid.UUID `json:"subject_id" db:"subject_id"`
	FacultyID uuid.UUID `json:"faculty_id" db:"faculty_id"`
	RoomID    uuid.UUID `json:"room_id" db:"room_id"`
	Kind      SlotKind  `json:"kind" db:"kind"`
	BlockID   uuid.UUID `json:"block_id,omitempty" db:"block_id"` // 实验课连堂标识，理论课为空
}

// IsBreak 是否休息行
func (s *ScheduleSlot) IsBreak() bool {
	return s.Kind == SlotBreak
}

// Interval 返回时间区间
func (s *ScheduleSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Minutes 返回时长
func (s *ScheduleSlot) Minutes() int {
	return int(s.End - s.Start)
}

// SlotLess 按星期、开始时间、教学班、ID 排序
func SlotLess(a, b *ScheduleSlot) bool {
	if a.Day != b.Day {
		return a.Day.Order() < b.Day.Order()
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.BatchID != b.BatchID {
		return a.BatchID.String() < b.BatchID.String()
	}
	return a.ID.String() < b.ID.String()
}

// UnsatisfiedRequirement 未能排入的需求
type UnsatisfiedRequirement struct {
	RequirementID uuid.UUID `json:"requirement_id"`
	BatchID       uuid.UUID `json:"batch_id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	Missing       int       `json:"missing"` // 缺少的次数
	Reason        string    `json:"reason"`
}
