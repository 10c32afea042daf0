package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/pkg/exam"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
)

// ExamInput 考试安排请求，BatchIDs 为空表示全部教学班
type ExamInput struct {
	StartDate string      `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string      `json:"end_date" validate:"required,datetime=2006-01-02"`
	BatchIDs  []uuid.UUID `json:"batch_ids"`
}

type examPayload struct {
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Assigned    int    `json:"assigned"`
	Unscheduled int    `json:"unscheduled"`
}

// GenerateExams 生成考试安排，考场取非实验室教室，监考取全体教师
// 结果只返回不落库
func (t *Timetable) GenerateExams(ctx context.Context, in ExamInput) (*exam.Plan, error) {
	snap, err := t.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := resolveScope(snap.batches, in.BatchIDs)
	if err != nil {
		return nil, err
	}
	inScope := make(map[uuid.UUID]bool, len(scope))
	for _, id := range scope {
		inScope[id] = true
	}
	var batches []*model.Batch
	for _, b := range snap.batches {
		if inScope[b.ID] {
			batches = append(batches, b)
		}
	}

	var absences []*model.FacultyAbsence
	if err := t.call(ctx, "list absences", func(ctx context.Context) (err error) {
		absences, err = t.repo.ListAbsences(ctx, true)
		return err
	}); err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, t.opts.GenerateTimeout)
	defer cancel()
	plan, err := exam.NewScheduler().Generate(genCtx, &exam.Request{
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Batches:   batches,
		Subjects:  snap.subjects,
		Halls:     snap.rooms,
		Faculty:   snap.faculty,
		Absences:  absences,
	})
	if err != nil {
		return nil, err
	}

	t.publish(ctx, events.ExamsGenerated, examPayload{
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Assigned:    len(plan.Assignments),
		Unscheduled: len(plan.Unscheduled),
	})
	logger.WithContext(ctx).Info().
		Int("assigned", len(plan.Assignments)).
		Int("unscheduled", len(plan.Unscheduled)).
		Msg("考试安排已生成")
	return plan, nil
}
