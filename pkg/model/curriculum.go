package model

import (
	"sort"

	"github.com/google/uuid"
)

// SubjectType 课程类型
type SubjectType string

const (
	SubjectTheory SubjectType = "theory"
	SubjectLab    SubjectType = "lab"
)

// Batch 教学班
type Batch struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Department string    `json:"department" db:"department"`
	Year       int       `json:"year" db:"year"`
	Semester   int       `json:"semester" db:"semester"`
	Size       int       `json:"size" db:"size"` // 学生人数，0 表示不限制教室容量
}

// Subject 课程
type Subject struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	Code           string      `json:"code" db:"code"`
	Name           string      `json:"name" db:"name"`
	Type           SubjectType `json:"type" db:"type"`
	Department     string      `json:"department" db:"department"`
	Year           int         `json:"year" db:"year"`
	Semester       int         `json:"semester" db:"semester"`
	WeeklySessions int         `json:"weekly_sessions" db:"weekly_sessions"`
	BlockSize      int         `json:"block_size" db:"block_size"` // 实验课连堂节数，0 使用作息配置
	Priority       int         `json:"priority" db:"priority"`
}

// IsLab 是否实验课
func (s *Subject) IsLab() bool {
	return s.Type == SubjectLab
}

// Requirement 排课需求：某课程每周为某教学班上 N 次
type Requirement struct {
	ID                  uuid.UUID   `json:"id"`
	BatchID             uuid.UUID   `json:"batch_id"`
	SubjectID           uuid.UUID   `json:"subject_id"`
	SubjectType         SubjectType `json:"subject_type"`
	WeeklyOccurrences   int         `json:"weekly_occurrences"`
	ContiguousBlockSize int         `json:"contiguous_block_size"`
}

// IsLab 是否实验课需求
func (r *Requirement) IsLab() bool {
	return r.SubjectType == SubjectLab
}

// requirementNamespace 需求ID的命名空间
var requirementNamespace = uuid.MustParse("8f6a2c1e-4b7d-4e59-9a53-6c0f3d2b1a70")

// RequirementID 由教学班和课程生成稳定的需求ID
func RequirementID(batchID, subjectID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(requirementNamespace, []byte(batchID.String()+"/"+subjectID.String()))
}

// DeriveRequirements 根据教学班和课程生成排课需求
// 课程与教学班的院系、年级、学期一致时产生需求；课程院系为空表示公共课
func DeriveRequirements(batches []*Batch, subjects []*Subject, timings CollegeTimings) []*Requirement {
	var result []*Requirement
	for _, b := range batches {
		for _, s := range subjects {
			if s.WeeklySessions <= 0 {
				continue
			}
			if s.Year != b.Year || s.Semester != b.Semester {
				continue
			}
			if s.Department != "" && s.Department != b.Department {
				continue
			}
			block := 1
			if s.IsLab() {
				block = s.BlockSize
				if block <= 0 {
					block = timings.LabPeriods()
				}
			}
			result = append(result, &Requirement{
				ID:                  RequirementID(b.ID, s.ID),
				BatchID:             b.ID,
				SubjectID:           s.ID,
				SubjectType:         s.Type,
				WeeklyOccurrences:   s.WeeklySessions,
				ContiguousBlockSize: block,
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result
}
