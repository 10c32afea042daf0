package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebiao/kebiao/internal/events"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

const monday = "2026-10-12"

// seedSlots 张老师周一第1节给计科1班上课，王老师同一时间给数学1班上课
func seedSlots(t *testing.T, w *world) *model.ScheduleSlot {
	t.Helper()
	rooms, err := w.repo.ListRooms(context.Background())
	require.NoError(t, err)
	lesson := func(batch, faculty, room uuid.UUID) *model.ScheduleSlot {
		return &model.ScheduleSlot{
			ID:        uuid.New(),
			BatchID:   batch,
			Day:       model.Monday,
			Period:    1,
			TimeSlot:  "09:00-10:00",
			Start:     model.MustClock("09:00"),
			End:       model.MustClock("10:00"),
			SubjectID: w.math.ID,
			FacultyID: faculty,
			RoomID:    room,
			Kind:      model.SlotTheory,
		}
	}
	target := lesson(w.batch.ID, w.zhang.ID, rooms[0].ID)
	busy := lesson(w.other.ID, w.wang.ID, rooms[1].ID)
	require.NoError(t, w.repo.ReplaceSlots(context.Background(), nil, []*model.ScheduleSlot{target, busy}))
	return target
}

func reportMonday(t *testing.T, svc *Coverage, faculty uuid.UUID) *model.FacultyAbsence {
	t.Helper()
	a, err := svc.ReportAbsence(withActor("office"), AbsenceInput{
		FacultyID: faculty, StartDate: monday, EndDate: monday, Reason: "病假",
	})
	require.NoError(t, err)
	return a
}

func TestCoverage_ConfirmFlow(t *testing.T) {
	w := newWorld(t)
	target := seedSlots(t, w)
	svc := w.coverage()
	ctx := withActor("office")

	absence := reportMonday(t, svc, w.zhang.ID)
	assert.Equal(t, "office", absence.CreatedBy)

	out, err := svc.Uncovered(ctx, []uuid.UUID{absence.ID})
	require.NoError(t, err)
	require.Len(t, out.Uncovered, 1)
	assert.Equal(t, target.ID, out.Uncovered[0].Slot.ID)
	assert.Equal(t, monday, out.Uncovered[0].Date)
	assert.Empty(t, out.Truncated)

	recs, err := svc.Recommend(ctx, RecommendInput{AbsenceIDs: []uuid.UUID{absence.ID}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Len(t, recs[0].Candidates, 1, "王老师同一时间有课，不应推荐")
	assert.Equal(t, w.li.ID, recs[0].Candidates[0].FacultyID)
	assert.True(t, recs[0].Candidates[0].IsFree)

	sub, err := svc.Confirm(ctx, ConfirmInput{
		AbsenceID: absence.ID, ScheduleSlotID: target.ID, Date: monday, FacultyID: w.li.ID, Note: "调课",
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubstitutionApproved, sub.Status)

	out, err = svc.Uncovered(ctx, []uuid.UUID{absence.ID})
	require.NoError(t, err)
	assert.Empty(t, out.Uncovered)

	// 第二次确认失败，原记录不变
	_, err = svc.Confirm(ctx, ConfirmInput{
		AbsenceID: absence.ID, ScheduleSlotID: target.ID, Date: monday, FacultyID: w.wang.ID,
	})
	assert.Equal(t, apperrors.CodeDuplicateSubstitution, apperrors.GetCode(err))
	subs, err := w.repo.ListSubstitutions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, w.li.ID, subs[0].SubstituteFacultyID)

	assert.Equal(t, []string{events.AbsenceReported, events.SubstitutionApproved}, w.recorder.Types())
}

func TestCoverage_ConfirmIneligible(t *testing.T) {
	w := newWorld(t)
	target := seedSlots(t, w)
	svc := w.coverage()
	absence := reportMonday(t, svc, w.zhang.ID)

	_, err := svc.Confirm(context.Background(), ConfirmInput{
		AbsenceID: absence.ID, ScheduleSlotID: target.ID, Date: monday, FacultyID: w.wang.ID,
	})
	assert.Equal(t, apperrors.CodeNoEligibleCandidate, apperrors.GetCode(err))

	_, err = svc.Confirm(context.Background(), ConfirmInput{
		AbsenceID: absence.ID, ScheduleSlotID: target.ID, Date: "2026-10-13", FacultyID: w.li.ID,
	})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestCoverage_Recommend_NoCandidate(t *testing.T) {
	w := newWorld(t)
	target := seedSlots(t, w)
	svc := w.coverage()
	absence := reportMonday(t, svc, w.zhang.ID)
	reportMonday(t, svc, w.li.ID)

	recs, err := svc.Recommend(context.Background(), RecommendInput{
		AbsenceIDs:     []uuid.UUID{absence.ID},
		ScheduleSlotID: &target.ID,
		Date:           monday,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Candidates)
	assert.NotEmpty(t, recs[0].Message)
}

func TestCoverage_AutoAssign(t *testing.T) {
	w := newWorld(t)
	seedSlots(t, w)
	svc := w.coverage()
	absence := reportMonday(t, svc, w.zhang.ID)

	out, err := svc.AutoAssign(context.Background(), []uuid.UUID{absence.ID})
	require.NoError(t, err)
	require.Len(t, out.Created, 1)
	assert.Equal(t, w.li.ID, out.Created[0].SubstituteFacultyID)
	assert.Empty(t, out.Remaining)

	again, err := svc.AutoAssign(context.Background(), []uuid.UUID{absence.ID})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
}

func TestCoverage_UpdateStatus(t *testing.T) {
	w := newWorld(t)
	target := seedSlots(t, w)
	svc := w.coverage()
	absence := reportMonday(t, svc, w.zhang.ID)
	ctx := context.Background()

	sub, err := svc.Confirm(ctx, ConfirmInput{AbsenceID: absence.ID, ScheduleSlotID: target.ID, Date: monday, FacultyID: w.li.ID})
	require.NoError(t, err)

	withdrawn, err := svc.UpdateStatus(ctx, sub.ID, StatusInput{Status: model.SubstitutionRejected})
	require.NoError(t, err)
	assert.Equal(t, model.SubstitutionRejected, withdrawn.Status)

	_, err = svc.UpdateStatus(ctx, sub.ID, StatusInput{Status: model.SubstitutionApproved})
	assert.Equal(t, apperrors.CodeInvalidTransition, apperrors.GetCode(err))

	// 撤回后课节重新变为未覆盖
	out, err := svc.Uncovered(ctx, []uuid.UUID{absence.ID})
	require.NoError(t, err)
	assert.Len(t, out.Uncovered, 1)

	_, err = svc.UpdateStatus(ctx, uuid.New(), StatusInput{Status: model.SubstitutionRejected})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestCoverage_Absences(t *testing.T) {
	w := newWorld(t)
	seedSlots(t, w)
	svc := w.coverage()
	ctx := context.Background()

	_, err := svc.ReportAbsence(ctx, AbsenceInput{FacultyID: uuid.New(), StartDate: monday, EndDate: monday})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	_, err = svc.ReportAbsence(ctx, AbsenceInput{FacultyID: w.zhang.ID, StartDate: monday, EndDate: "2026-10-11"})
	assert.Equal(t, apperrors.CodeInvalidTimeRange, apperrors.GetCode(err))

	_, err = svc.ReportAbsence(ctx, AbsenceInput{FacultyID: w.zhang.ID, StartDate: "10/12/2026", EndDate: monday})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	absence := reportMonday(t, svc, w.zhang.ID)
	_, err = svc.CancelAbsence(ctx, absence.ID, "已返校")
	require.NoError(t, err)

	out, err := svc.Uncovered(ctx, []uuid.UUID{absence.ID})
	require.NoError(t, err)
	assert.Empty(t, out.Uncovered, "已取消的缺勤不产生未覆盖课节")

	_, err = svc.CancelAbsence(ctx, absence.ID, "")
	assert.Equal(t, apperrors.CodeAlreadyExists, apperrors.GetCode(err))

	active, err := svc.Absences(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}
