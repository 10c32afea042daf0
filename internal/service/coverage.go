package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/internal/metrics"
	"github.com/kebiao/kebiao/internal/repository"
	"github.com/kebiao/kebiao/pkg/coverage"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
)

// Coverage 缺勤与代课服务
type Coverage struct {
	base
	engine *coverage.Engine
}

// NewCoverage 创建代课服务
func NewCoverage(repo repository.Repository, pub events.Publisher, m *metrics.Collectors, opts Options) *Coverage {
	b := newBase(repo, pub, m, opts)
	return &Coverage{
		base:   b,
		engine: coverage.NewEngine(b.opts.HorizonDays, b.opts.TopK),
	}
}

// AbsenceInput 缺勤上报
type AbsenceInput struct {
	FacultyID uuid.UUID `json:"faculty_id" validate:"required"`
	StartDate string    `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string    `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string    `json:"reason" validate:"max=500"`
}

// ReportAbsence 记录缺勤
func (c *Coverage) ReportAbsence(ctx context.Context, in AbsenceInput) (*model.FacultyAbsence, error) {
	start, err := model.ParseDate(in.StartDate)
	if err != nil {
		return nil, apperrors.InvalidInput("start_date", "日期格式应为 YYYY-MM-DD")
	}
	end, err := model.ParseDate(in.EndDate)
	if err != nil {
		return nil, apperrors.InvalidInput("end_date", "日期格式应为 YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, apperrors.New(apperrors.CodeInvalidTimeRange, "结束日期早于开始日期")
	}

	var faculty []*model.Faculty
	if err := c.call(ctx, "list faculty", func(ctx context.Context) (err error) {
		faculty, err = c.repo.ListFaculty(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if facultyMap(faculty)[in.FacultyID] == nil {
		return nil, apperrors.NotFound("教师", in.FacultyID.String())
	}

	a := &model.FacultyAbsence{
		ID:        uuid.New(),
		FacultyID: in.FacultyID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Reason:    in.Reason,
		CreatedBy: actorOf(ctx),
		CreatedAt: c.now(),
	}
	if err := c.call(ctx, "create absence", func(ctx context.Context) error {
		return c.repo.CreateAbsence(ctx, a)
	}); err != nil {
		return nil, err
	}
	c.publish(ctx, events.AbsenceReported, a)
	return a, nil
}

// CancelAbsence 取消缺勤；原记录保留，另写一条取消记录
func (c *Coverage) CancelAbsence(ctx context.Context, absenceID uuid.UUID, reason string) (*model.AbsenceCancellation, error) {
	rec := &model.AbsenceCancellation{
		ID:          uuid.New(),
		AbsenceID:   absenceID,
		Reason:      reason,
		CancelledBy: actorOf(ctx),
		CreatedAt:   c.now(),
	}
	if err := c.call(ctx, "cancel absence", func(ctx context.Context) error {
		return c.repo.CancelAbsence(ctx, rec)
	}); err != nil {
		return nil, err
	}
	c.publish(ctx, events.AbsenceCancelled, rec)
	return rec, nil
}

// snapshot 读取代课计算所需的数据
func (c *Coverage) snapshot(ctx context.Context) (*coverage.Snapshot, error) {
	snap := &coverage.Snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.call(gctx, "list slots", func(ctx context.Context) (err error) {
			snap.Slots, err = c.repo.ListSlots(ctx, nil)
			return err
		})
	})
	g.Go(func() error {
		return c.call(gctx, "list faculty", func(ctx context.Context) (err error) {
			snap.Faculty, err = c.repo.ListFaculty(ctx)
			return err
		})
	})
	g.Go(func() error {
		// 包含已取消的记录，以区分“已取消”和“不存在”
		return c.call(gctx, "list absences", func(ctx context.Context) (err error) {
			snap.Absences, err = c.repo.ListAbsences(ctx, false)
			return err
		})
	})
	g.Go(func() error {
		return c.call(gctx, "list substitutions", func(ctx context.Context) (err error) {
			snap.Substitutions, err = c.repo.ListSubstitutions(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// UncoveredOutput 未覆盖课节，Truncated 列出超出计算范围的缺勤
type UncoveredOutput struct {
	Uncovered []model.UncoveredSlot `json:"uncovered"`
	Truncated []coverage.Truncation `json:"truncated"`
}

// Uncovered 计算未覆盖课节，absenceIDs 为空时计算全部有效缺勤
func (c *Coverage) Uncovered(ctx context.Context, absenceIDs []uuid.UUID) (*UncoveredOutput, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	uncovered, err := c.engine.ComputeUncovered(snap, absenceIDs)
	if err != nil {
		return nil, err
	}
	truncated, err := c.engine.Truncations(snap, absenceIDs)
	if err != nil {
		return nil, err
	}
	c.metrics.SetUncoveredSlots(len(uncovered))
	return &UncoveredOutput{Uncovered: uncovered, Truncated: truncated}, nil
}

// RecommendInput 推荐请求，指定课节时只推荐该课节
type RecommendInput struct {
	AbsenceIDs     []uuid.UUID `json:"absence_ids"`
	ScheduleSlotID *uuid.UUID  `json:"schedule_slot_id,omitempty"`
	Date           string      `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Recommend 为未覆盖课节推荐代课教师
func (c *Coverage) Recommend(ctx context.Context, in RecommendInput) ([]coverage.Recommendation, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	uncovered, err := c.engine.ComputeUncovered(snap, in.AbsenceIDs)
	if err != nil {
		return nil, err
	}
	if in.ScheduleSlotID != nil {
		u, ok := coverage.Find(uncovered, *in.ScheduleSlotID, in.Date)
		if !ok {
			return nil, apperrors.NotFound("未覆盖课节", in.ScheduleSlotID.String()+"@"+in.Date)
		}
		uncovered = []model.UncoveredSlot{u}
	}
	return c.engine.RankAll(ctx, snap, uncovered)
}

// ConfirmInput 确认代课
type ConfirmInput struct {
	AbsenceID      uuid.UUID `json:"absence_id" validate:"required"`
	ScheduleSlotID uuid.UUID `json:"schedule_slot_id" validate:"required"`
	Date           string    `json:"date" validate:"required,datetime=2006-01-02"`
	FacultyID      uuid.UUID `json:"faculty_id" validate:"required"`
	Note           string    `json:"note" validate:"max=500"`
}

// Confirm 确认代课，同一 (课节, 日期) 只有第一个确认成功
func (c *Coverage) Confirm(ctx context.Context, in ConfirmInput) (*model.Substitution, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	uncovered, err := c.engine.ComputeUncovered(snap, []uuid.UUID{in.AbsenceID})
	if err != nil {
		return nil, err
	}
	u, ok := coverage.Find(uncovered, in.ScheduleSlotID, in.Date)
	if !ok {
		if approvedExists(snap.Substitutions, in.ScheduleSlotID, in.Date) {
			return nil, apperrors.DuplicateSubstitution(in.ScheduleSlotID.String(), in.Date)
		}
		return nil, apperrors.NotFound("未覆盖课节", in.ScheduleSlotID.String()+"@"+in.Date)
	}
	if _, err := c.engine.Candidate(snap, u, in.FacultyID); err != nil {
		return nil, err
	}

	sub := coverage.NewSubstitution(u, in.FacultyID, actorOf(ctx), c.now())
	sub.Note = in.Note
	if err := c.call(ctx, "create substitution", func(ctx context.Context) error {
		return c.repo.CreateSubstitution(ctx, sub)
	}); err != nil {
		return nil, err
	}
	c.metrics.RecordSubstitution(string(sub.Status))
	c.publish(ctx, events.SubstitutionApproved, sub)
	return sub, nil
}

func approvedExists(subs []*model.Substitution, slotID uuid.UUID, date string) bool {
	for _, s := range subs {
		if s.IsApproved() && s.ScheduleSlotID == slotID && s.Date == date {
			return true
		}
	}
	return false
}

// AutoAssignOutput 自动确认结果
type AutoAssignOutput struct {
	Created   []*model.Substitution `json:"created"`
	Remaining []model.UncoveredSlot `json:"remaining"`
	Truncated []coverage.Truncation `json:"truncated"`
}

// AutoAssign 首选候选人空闲时自动确认
func (c *Coverage) AutoAssign(ctx context.Context, absenceIDs []uuid.UUID) (*AutoAssignOutput, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	uncovered, err := c.engine.ComputeUncovered(snap, absenceIDs)
	if err != nil {
		return nil, err
	}
	created, remaining, err := c.engine.AutoAssign(snap, uncovered, actorOf(ctx), c.now())
	if err != nil {
		return nil, err
	}
	truncated, err := c.engine.Truncations(snap, absenceIDs)
	if err != nil {
		return nil, err
	}

	out := &AutoAssignOutput{Created: []*model.Substitution{}, Remaining: remaining, Truncated: truncated}
	if out.Remaining == nil {
		out.Remaining = []model.UncoveredSlot{}
	}
	for _, sub := range created {
		err := c.call(ctx, "create substitution", func(ctx context.Context) error {
			return c.repo.CreateSubstitution(ctx, sub)
		})
		if apperrors.Is(err, apperrors.CodeDuplicateSubstitution) {
			// 并发确认已覆盖该课节
			logger.WithContext(ctx).Info().
				Str("slot_id", sub.ScheduleSlotID.String()).
				Str("date", sub.Date).
				Msg("课节已被其他请求覆盖，跳过")
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Created = append(out.Created, sub)
		c.metrics.RecordSubstitution(string(sub.Status))
		c.publish(ctx, events.SubstitutionApproved, sub)
	}
	c.metrics.SetUncoveredSlots(len(out.Remaining))
	return out, nil
}

// StatusInput 代课状态变更
type StatusInput struct {
	Status model.SubstitutionStatus `json:"status" validate:"required,oneof=pending approved rejected"`
}

// UpdateStatus 变更代课状态，approved -> rejected 表示撤回
func (c *Coverage) UpdateStatus(ctx context.Context, id uuid.UUID, in StatusInput) (*model.Substitution, error) {
	var sub *model.Substitution
	if err := c.call(ctx, "get substitution", func(ctx context.Context) (err error) {
		sub, err = c.repo.GetSubstitution(ctx, id)
		return err
	}); err != nil {
		return nil, err
	}

	from := sub.Status
	next := *sub
	if err := coverage.Transition(&next, in.Status, c.now()); err != nil {
		return nil, err
	}
	if err := c.call(ctx, "update substitution", func(ctx context.Context) error {
		return c.repo.UpdateSubstitutionStatus(ctx, id, from, next.Status, next.UpdatedAt)
	}); err != nil {
		return nil, err
	}
	c.metrics.RecordSubstitution(string(next.Status))
	c.publish(ctx, events.SubstitutionStatusChanged, map[string]interface{}{
		"substitution": next,
		"from":         from,
	})
	return &next, nil
}

// Absences 缺勤列表
func (c *Coverage) Absences(ctx context.Context, activeOnly bool) ([]*model.FacultyAbsence, error) {
	var out []*model.FacultyAbsence
	err := c.call(ctx, "list absences", func(ctx context.Context) (err error) {
		out, err = c.repo.ListAbsences(ctx, activeOnly)
		return err
	})
	return out, err
}
