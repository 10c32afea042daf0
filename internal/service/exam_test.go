package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebiao/kebiao/internal/events"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/exam"
)

func TestTimetable_GenerateExams(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	cov := w.coverage()
	ctx := context.Background()

	// 王老师周一缺勤
	_, err := cov.ReportAbsence(ctx, AbsenceInput{FacultyID: w.wang.ID, StartDate: monday, EndDate: monday})
	require.NoError(t, err)

	plan, err := svc.GenerateExams(ctx, ExamInput{StartDate: monday, EndDate: "2026-10-16"})
	require.NoError(t, err)
	assert.True(t, plan.Success)
	assert.Equal(t, 10, plan.Sittings)
	require.Len(t, plan.Assignments, 2, "计科1班两门课各一场")

	rooms, err := w.repo.ListRooms(ctx)
	require.NoError(t, err)
	lab := map[uuid.UUID]bool{}
	for _, r := range rooms {
		if r.Name == "L201" {
			lab[r.ID] = true
		}
	}
	seen := map[string]bool{}
	for _, a := range plan.Assignments {
		assert.Equal(t, w.batch.ID, a.BatchID)
		assert.False(t, lab[a.HallID], "实验室不作考场")
		assert.False(t, a.Date == monday && a.InvigilatorID == w.wang.ID, "缺勤教师不监考")
		key := a.Date + string(a.Session)
		assert.False(t, seen[key], "同一场次只考一门")
		seen[key] = true
	}
	assert.Equal(t, exam.Morning, plan.Assignments[0].Session)
	assert.Contains(t, w.recorder.Types(), events.ExamsGenerated)

	_, err = svc.GenerateExams(ctx, ExamInput{StartDate: monday, EndDate: monday, BatchIDs: []uuid.UUID{uuid.New()}})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	only, err := svc.GenerateExams(ctx, ExamInput{StartDate: monday, EndDate: monday, BatchIDs: []uuid.UUID{w.other.ID}})
	require.NoError(t, err)
	assert.Empty(t, only.Assignments, "数学1班没有开课")
}
