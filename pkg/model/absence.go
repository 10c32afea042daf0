package model

import (
	"time"

	"github.com/google/uuid"
)

// FacultyAbsence 教师缺勤记录，创建后不可修改
type FacultyAbsence struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FacultyID uuid.UUID `json:"faculty_id" db:"faculty_id"`
	StartDate string    `json:"start_date" db:"start_date"`
	EndDate   string    `json:"end_date" db:"end_date"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedBy string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Cancelled bool      `json:"cancelled" db:"cancelled"` // 由取消记录推导，不落库
}

// Covers 检查日期是否在缺勤范围内（日期格式 2006-01-02 可直接比较）
func (a *FacultyAbsence) Covers(date string) bool {
	return date >= a.StartDate && date <= a.EndDate
}

// AbsenceCancellation 缺勤取消记录
type AbsenceCancellation struct {
	ID          uuid.UUID `json:"id" db:"id"`
	AbsenceID   uuid.UUID `json:"absence_id" db:"absence_id"`
	Reason      string    `json:"reason" db:"reason"`
	CancelledBy string    `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// SubstitutionStatus 代课状态
type SubstitutionStatus string

const (
	SubstitutionPending  SubstitutionStatus = "pending"
	SubstitutionApproved SubstitutionStatus = "approved"
	SubstitutionRejected SubstitutionStatus = "rejected"
)

// Substitution 代课记录：某节课在某一天由代课教师承担
// (schedule_slot_id, date) 上至多一条 approved 记录
type Substitution struct {
	ID                  uuid.UUID          `json:"id" db:"id"`
	AbsenceID           uuid.UUID          `json:"absence_id" db:"absence_id"`
	ScheduleSlotID      uuid.UUID          `json:"schedule_slot_id" db:"schedule_slot_id"`
	SubstituteFacultyID uuid.UUID          `json:"substitute_faculty_id" db:"substitute_faculty_id"`
	Date                string             `json:"date" db:"date"`
	Status              SubstitutionStatus `json:"status" db:"status"`
	Note                string             `json:"note,omitempty" db:"note"`
	CreatedBy           string             `json:"created_by,omitempty" db:"created_by"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// IsApproved 是否已批准
func (s *Substitution) IsApproved() bool {
	return s.Status == SubstitutionApproved
}

// UncoveredSlot 缺勤期间某一天无人代课的课
type UncoveredSlot struct {
	AbsenceID uuid.UUID     `json:"absence_id"`
	FacultyID uuid.UUID     `json:"faculty_id"`
	Date      string        `json:"date"`
	Day       Weekday       `json:"day"`
	Slot      *ScheduleSlot `json:"slot"`
}

// RecommendedSubstitute 代课候选人
type RecommendedSubstitute struct {
	FacultyID        uuid.UUID        `json:"faculty_id"`
	Name             string           `json:"name"`
	IsFree           bool             `json:"is_free"`         // 当时没有课、代课或缺勤
	WithinWorkload   bool             `json:"within_workload"` // 接下后仍在工作量上限内
	WorkloadScore    int              `json:"workload_score"`
	PreferenceWeight float64          `json:"preference_weight"`
	Proficiency      ProficiencyLevel `json:"proficiency_level"`
	Rank             int              `json:"rank"`
	Reason           string           `json:"reason"`
}
