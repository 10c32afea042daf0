package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

func TestMemory_ReplaceSlots(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	first := testSlot()
	require.NoError(t, repo.ReplaceSlots(ctx, nil, []*model.ScheduleSlot{first}))

	// 同一教师同一节次再排一节应被拒绝，原课表不变
	clash := testSlot()
	clash.FacultyID = first.FacultyID
	err := repo.ReplaceSlots(ctx, nil, []*model.ScheduleSlot{clash})
	assert.True(t, apperrors.Is(err, apperrors.CodeScheduleConflict), "got %v", err)

	slots, err := repo.ListSlots(ctx, nil)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, first.ID, slots[0].ID)

	// 先删除再写入则可以替换
	require.NoError(t, repo.ReplaceSlots(ctx, []uuid.UUID{first.ID}, []*model.ScheduleSlot{clash}))
	slots, err = repo.ListSlots(ctx, []uuid.UUID{clash.BatchID})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, clash.ID, slots[0].ID)
}

func TestMemory_BreakRowsDoNotConflict(t *testing.T) {
	repo := NewMemory()
	batch := uuid.New()
	rows := []*model.ScheduleSlot{
		{ID: uuid.New(), BatchID: batch, Day: model.Monday, Kind: model.SlotBreak},
		{ID: uuid.New(), BatchID: batch, Day: model.Monday, Kind: model.SlotBreak},
	}
	assert.NoError(t, repo.ReplaceSlots(context.Background(), nil, rows))
}

func TestMemory_Substitutions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	now := time.Now()
	slotID := uuid.New()

	first := &model.Substitution{ID: uuid.New(), ScheduleSlotID: slotID, SubstituteFacultyID: uuid.New(),
		Date: "2026-10-12", Status: model.SubstitutionApproved, CreatedAt: now}
	second := &model.Substitution{ID: uuid.New(), ScheduleSlotID: slotID, SubstituteFacultyID: uuid.New(),
		Date: "2026-10-12", Status: model.SubstitutionApproved, CreatedAt: now}

	require.NoError(t, repo.CreateSubstitution(ctx, first))
	err := repo.CreateSubstitution(ctx, second)
	assert.True(t, apperrors.Is(err, apperrors.CodeDuplicateSubstitution), "got %v", err)

	got, err := repo.GetSubstitution(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.SubstituteFacultyID, got.SubstituteFacultyID)

	// 撤回后可以重新批准其他教师
	require.NoError(t, repo.UpdateSubstitutionStatus(ctx, first.ID, model.SubstitutionApproved, model.SubstitutionRejected, now))
	assert.NoError(t, repo.CreateSubstitution(ctx, second))

	err = repo.UpdateSubstitutionStatus(ctx, first.ID, model.SubstitutionApproved, model.SubstitutionRejected, now)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition), "got %v", err)
}

func TestMemory_Absences(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	a := &model.FacultyAbsence{ID: uuid.New(), FacultyID: uuid.New(), StartDate: "2026-10-12", EndDate: "2026-10-13"}
	require.NoError(t, repo.CreateAbsence(ctx, a))

	active, err := repo.ListAbsences(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	cancel := &model.AbsenceCancellation{ID: uuid.New(), AbsenceID: a.ID, Reason: "已返岗"}
	require.NoError(t, repo.CancelAbsence(ctx, cancel))
	err = repo.CancelAbsence(ctx, cancel)
	assert.True(t, apperrors.Is(err, apperrors.CodeAlreadyExists), "got %v", err)

	active, err = repo.ListAbsences(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	got, err := repo.GetAbsence(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)

	err = repo.CancelAbsence(ctx, &model.AbsenceCancellation{ID: uuid.New(), AbsenceID: uuid.New()})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound), "got %v", err)
}

func TestMemory_Config(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()

	_, _, err := repo.GetTimings(ctx)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	w, err := repo.GetWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultWeights(), w)

	require.NoError(t, repo.SaveWeights(ctx, model.Weights{FacultyWorkload: 150, LabSpacing: -3}))
	w, err = repo.GetWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, w.FacultyWorkload)
	assert.Equal(t, 0, w.LabSpacing)
}

func TestMemory_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemory().ReplaceSlots(ctx, nil, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeRepositoryUnavailable))
}
