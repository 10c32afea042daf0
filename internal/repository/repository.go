// Package repository 提供数据访问层
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kebiao/kebiao/pkg/model"
)

// Catalog 由管理端维护的基础数据，整体导入
type Catalog struct {
	Batches  []*model.Batch   `json:"batches"`
	Subjects []*model.Subject `json:"subjects"`
	Faculty  []*model.Faculty `json:"faculty"`
	Rooms    []*model.Room    `json:"rooms"`
}

// Reader 读取排课和代课所需的数据
type Reader interface {
	ListBatches(ctx context.Context) ([]*model.Batch, error)
	ListSubjects(ctx context.Context) ([]*model.Subject, error)
	ListFaculty(ctx context.Context) ([]*model.Faculty, error)
	ListRooms(ctx context.Context) ([]*model.Room, error)

	// GetTimings 未配置时返回 NOT_FOUND
	GetTimings(ctx context.Context) (*model.CollegeTimings, []model.Break, error)
	// GetWeights 未配置时返回默认权重
	GetWeights(ctx context.Context) (model.Weights, error)

	// ListSlots batchIDs 为空时返回全部课节
	ListSlots(ctx context.Context, batchIDs []uuid.UUID) ([]*model.ScheduleSlot, error)

	GetAbsence(ctx context.Context, id uuid.UUID) (*model.FacultyAbsence, error)
	ListAbsences(ctx context.Context, activeOnly bool) ([]*model.FacultyAbsence, error)
	GetSubstitution(ctx context.Context, id uuid.UUID) (*model.Substitution, error)
	ListSubstitutions(ctx context.Context) ([]*model.Substitution, error)
}

// Writer 写入操作，每个方法都是原子的
type Writer interface {
	SaveCatalog(ctx context.Context, c *Catalog) error
	SaveTimings(ctx context.Context, timings model.CollegeTimings, breaks []model.Break) error
	SaveWeights(ctx context.Context, w model.Weights) error

	// ReplaceSlots 删除 remove 中的课节并写入 insert，失败时保持原课表
	ReplaceSlots(ctx context.Context, remove []uuid.UUID, insert []*model.ScheduleSlot) error

	CreateAbsence(ctx context.Context, a *model.FacultyAbsence) error
	CancelAbsence(ctx context.Context, c *model.AbsenceCancellation) error

	// CreateSubstitution 同一 (课节, 日期) 已有批准记录时返回 DUPLICATE_SUBSTITUTION
	CreateSubstitution(ctx context.Context, s *model.Substitution) error
	// UpdateSubstitutionStatus 仅当当前状态为 from 时更新
	UpdateSubstitutionStatus(ctx context.Context, id uuid.UUID, from, to model.SubstitutionStatus, at time.Time) error
}

// Repository 完整的存储接口
type Repository interface {
	Reader
	Writer
	Ping(ctx context.Context) error
}
