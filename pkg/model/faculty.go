package model

import (
	"github.com/google/uuid"
)

// ProficiencyLevel 教师对课程的熟练程度
type ProficiencyLevel string

const (
	ProficiencyExpert     ProficiencyLevel = "expert"
	ProficiencyProficient ProficiencyLevel = "proficient"
	ProficiencyBasic      ProficiencyLevel = "basic"
)

// Rank 熟练程度排序值，越大越熟练
func (l ProficiencyLevel) Rank() int {
	switch l {
	case ProficiencyExpert:
		return 3
	case ProficiencyProficient:
		return 2
	case ProficiencyBasic:
		return 1
	default:
		return 0
	}
}

// Proficiency 教师-课程映射
type Proficiency struct {
	SubjectID uuid.UUID        `json:"subject_id" db:"subject_id"`
	Level     ProficiencyLevel `json:"proficiency_level" db:"proficiency_level"`
	Preferred bool             `json:"preferred" db:"preferred"`
}

// WorkloadConfig 教师工作量上限
type WorkloadConfig struct {
	MaxHoursPerDay        int `json:"max_hours_per_day" db:"max_hours_per_day"`
	MaxHoursPerWeek       int `json:"max_hours_per_week" db:"max_hours_per_week"`
	MaxConsecutiveHours   int `json:"max_consecutive_hours" db:"max_consecutive_hours"`
	PreferredBreakMinutes int `json:"preferred_break_duration" db:"preferred_break_duration"`
}

// DefaultWorkloadConfig 默认工作量配置
func DefaultWorkloadConfig() WorkloadConfig {
	return WorkloadConfig{
		MaxHoursPerDay:        6,
		MaxHoursPerWeek:       30,
		MaxConsecutiveHours:   3,
		PreferredBreakMinutes: 60,
	}
}

// WithDefaults 未配置的字段使用默认值
func (w WorkloadConfig) WithDefaults() WorkloadConfig {
	d := DefaultWorkloadConfig()
	if w.MaxHoursPerDay <= 0 {
		w.MaxHoursPerDay = d.MaxHoursPerDay
	}
	if w.MaxHoursPerWeek <= 0 {
		w.MaxHoursPerWeek = d.MaxHoursPerWeek
	}
	if w.MaxConsecutiveHours <= 0 {
		w.MaxConsecutiveHours = d.MaxConsecutiveHours
	}
	if w.PreferredBreakMinutes < 0 {
		w.PreferredBreakMinutes = 0
	}
	return w
}

// Preference 教师的时段偏好
type Preference struct {
	SubjectID *uuid.UUID `json:"subject_id,omitempty" db:"subject_id"` // 为空表示任意课程
	Day       Weekday    `json:"preferred_day,omitempty" db:"preferred_day"`
	Period    int        `json:"preferred_period,omitempty" db:"preferred_period"` // 0 表示任意节次
	Weight    float64    `json:"weight" db:"weight"`
}

// Matches 检查偏好是否命中
func (p Preference) Matches(subjectID uuid.UUID, day Weekday, period int) bool {
	if p.SubjectID != nil && *p.SubjectID != subjectID {
		return false
	}
	if p.Day != "" && p.Day != day {
		return false
	}
	if p.Period != 0 && p.Period != period {
		return false
	}
	return true
}

// Faculty 教师
type Faculty struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Department    string         `json:"department" db:"department"`
	Proficiencies []Proficiency  `json:"proficiencies"`
	Workload      WorkloadConfig `json:"workload"`
	Preferences   []Preference   `json:"preferences,omitempty"`
}

// Proficiency 返回对某课程的映射
func (f *Faculty) Proficiency(subjectID uuid.UUID) (Proficiency, bool) {
	for _, p := range f.Proficiencies {
		if p.SubjectID == subjectID {
			return p, true
		}
	}
	return Proficiency{}, false
}

// CanTeach 是否可以讲授某课程
func (f *Faculty) CanTeach(subjectID uuid.UUID) bool {
	_, ok := f.Proficiency(subjectID)
	return ok
}

// PreferenceWeight 返回命中偏好的最大权重，未命中为0
func (f *Faculty) PreferenceWeight(subjectID uuid.UUID, day Weekday, period int) float64 {
	best := 0.0
	for _, p := range f.Preferences {
		if !p.Matches(subjectID, day, period) {
			continue
		}
		w := p.Weight
		if w == 0 {
			w = 1
		}
		if w > best {
			best = w
		}
	}
	return best
}

// RoomType 教室类型
type RoomType string

const (
	RoomClassroom RoomType = "classroom"
	RoomLab       RoomType = "lab"
)

// Room 教室
type Room struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Type     RoomType  `json:"type" db:"type"`
	Capacity int       `json:"capacity" db:"capacity"`
}

// Suits 教室是否适合某类型课程和人数
func (r *Room) Suits(subjectType SubjectType, size int) bool {
	want := RoomClassroom
	if subjectType == SubjectLab {
		want = RoomLab
	}
	if r.Type != want {
		return false
	}
	return size <= 0 || r.Capacity <= 0 || r.Capacity >= size
}

// ResourceCandidate 可选的（教师，教室）组合
type ResourceCandidate struct {
	FacultyID uuid.UUID `json:"faculty_id"`
	RoomID    uuid.UUID `json:"room_id"`
}
