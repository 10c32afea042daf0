package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/internal/lock"
	"github.com/kebiao/kebiao/internal/metrics"
	"github.com/kebiao/kebiao/internal/repository"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/solver"
)

type world struct {
	repo     *repository.Memory
	recorder *events.Recorder
	batch    *model.Batch
	other    *model.Batch
	math     *model.Subject
	lab      *model.Subject
	zhang    *model.Faculty
	li       *model.Faculty
	wang     *model.Faculty
}

func testOptions() Options {
	return Options{
		RepositoryTimeout: time.Second,
		GenerateTimeout:   10 * time.Second,
		EmitBreaks:        true,
	}
}

func expert(subjects ...uuid.UUID) []model.Proficiency {
	out := make([]model.Proficiency, len(subjects))
	for i, s := range subjects {
		out[i] = model.Proficiency{SubjectID: s, Level: model.ProficiencyExpert}
	}
	return out
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{repo: repository.NewMemory(), recorder: &events.Recorder{}}
	w.batch = &model.Batch{ID: uuid.New(), Name: "计科1班", Department: "CS", Year: 1, Semester: 1, Size: 40}
	w.other = &model.Batch{ID: uuid.New(), Name: "数学1班", Department: "MA", Year: 1, Semester: 1, Size: 40}
	w.math = &model.Subject{ID: uuid.New(), Code: "CS101", Name: "程序设计", Type: model.SubjectTheory,
		Department: "CS", Year: 1, Semester: 1, WeeklySessions: 3}
	w.lab = &model.Subject{ID: uuid.New(), Code: "CS101L", Name: "程序设计实验", Type: model.SubjectLab,
		Department: "CS", Year: 1, Semester: 1, WeeklySessions: 1, BlockSize: 2}
	w.zhang = &model.Faculty{ID: uuid.New(), Name: "张老师", Department: "CS", Proficiencies: expert(w.math.ID)}
	w.li = &model.Faculty{ID: uuid.New(), Name: "李老师", Department: "CS", Proficiencies: expert(w.math.ID, w.lab.ID)}
	w.wang = &model.Faculty{ID: uuid.New(), Name: "王老师", Department: "CS", Proficiencies: expert(w.math.ID)}

	ctx := context.Background()
	require.NoError(t, w.repo.SaveCatalog(ctx, &repository.Catalog{
		Batches:  []*model.Batch{w.batch, w.other},
		Subjects: []*model.Subject{w.math, w.lab},
		Faculty:  []*model.Faculty{w.zhang, w.li, w.wang},
		Rooms: []*model.Room{
			{ID: uuid.New(), Name: "A101", Type: model.RoomClassroom, Capacity: 60},
			{ID: uuid.New(), Name: "A102", Type: model.RoomClassroom, Capacity: 60},
			{ID: uuid.New(), Name: "L201", Type: model.RoomLab, Capacity: 40},
		},
	}))
	require.NoError(t, w.repo.SaveTimings(ctx, model.CollegeTimings{
		Start:          model.MustClock("09:00"),
		End:            model.MustClock("17:00"),
		NumPeriods:     6,
		PeriodDuration: 60,
	}, []model.Break{{Name: "午休", Start: model.MustClock("12:00"), End: model.MustClock("13:00"), Kind: model.BreakLunch}}))
	return w
}

func (w *world) timetable() *Timetable {
	return NewTimetable(w.repo, lock.NewLocal(), w.recorder, metrics.New(), testOptions())
}

func (w *world) coverage() *Coverage {
	return NewCoverage(w.repo, w.recorder, metrics.New(), testOptions())
}

func withActor(actor string) context.Context {
	return context.WithValue(context.Background(), logger.ActorKey, actor)
}

func TestTimetable_Generate(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	ctx := withActor("admin")

	out, err := svc.Generate(ctx, GenerateInput{BatchIDs: []uuid.UUID{w.batch.ID}})
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.True(t, out.Success, out.Message)
	assert.Empty(t, out.Unsatisfied)

	stored, err := svc.Slots(ctx, []uuid.UUID{w.batch.ID})
	require.NoError(t, err)
	assert.Len(t, stored, len(out.Slots))

	teaching := 0
	for _, s := range stored {
		if !s.IsBreak() {
			teaching++
		}
	}
	assert.Equal(t, 5, teaching, "3 节理论课 + 2 节连堂实验")

	report, err := svc.Validate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, report.Valid, "%+v", report.Conflicts)

	evs := w.recorder.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ScheduleGenerated, evs[0].Type)
	assert.Equal(t, "admin", evs[0].Actor)
}

func TestTimetable_GenerateDeterministic(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	ctx := context.Background()

	first, err := svc.Generate(ctx, GenerateInput{Mode: solver.ModeFull})
	require.NoError(t, err)
	second, err := svc.Generate(ctx, GenerateInput{Mode: solver.ModeFull})
	require.NoError(t, err)

	require.Len(t, second.Slots, len(first.Slots))
	for i := range first.Slots {
		assert.Equal(t, *first.Slots[i], *second.Slots[i])
	}
	assert.Len(t, second.Replaced, len(first.Slots))
}

func TestTimetable_GeneratePartialKeepsOthers(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{})
	require.NoError(t, err)
	before, err := svc.Slots(ctx, nil)
	require.NoError(t, err)

	out, err := svc.Generate(ctx, GenerateInput{
		Mode:  solver.ModePartial,
		Stale: &solver.StaleFilter{FacultyID: &w.zhang.ID, Day: model.Monday},
	})
	require.NoError(t, err)
	require.True(t, out.Committed)

	after, err := svc.Slots(ctx, nil)
	require.NoError(t, err)
	replaced := make(map[uuid.UUID]bool)
	for _, id := range out.Replaced {
		replaced[id] = true
	}
	kept := make(map[uuid.UUID]bool)
	for _, s := range after {
		kept[s.ID] = true
		if !s.IsBreak() && s.Day == model.Monday {
			assert.NotEqual(t, w.zhang.ID, s.FacultyID, "张老师周一不应再有课")
		}
	}
	for _, s := range before {
		if !replaced[s.ID] {
			assert.True(t, kept[s.ID], "未过期的课节 %s 不应变化", s.ID)
		}
	}
}

func TestTimetable_GenerateErrors(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{BatchIDs: []uuid.UUID{uuid.New()}})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	_, err = svc.Generate(ctx, GenerateInput{Mode: "weekly"})
	assert.Equal(t, apperrors.CodeInvalidConfiguration, apperrors.GetCode(err))

	empty := NewTimetable(repository.NewMemory(), nil, nil, metrics.New(), testOptions())
	_, err = empty.Generate(ctx, GenerateInput{})
	assert.Equal(t, apperrors.CodeInvalidConfiguration, apperrors.GetCode(err))
}

// slowRepo 读取教学班时一直阻塞到超时
type slowRepo struct {
	*repository.Memory
}

func (s slowRepo) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimetable_RepositoryTimeout(t *testing.T) {
	w := newWorld(t)
	opts := testOptions()
	opts.RepositoryTimeout = 10 * time.Millisecond
	svc := NewTimetable(slowRepo{w.repo}, nil, w.recorder, metrics.New(), opts)

	_, err := svc.Generate(context.Background(), GenerateInput{})
	assert.Equal(t, apperrors.CodeRepositoryUnavailable, apperrors.GetCode(err))

	slots, err := w.repo.ListSlots(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Empty(t, w.recorder.Events())
}

func TestTimetable_SaveTimings(t *testing.T) {
	svc := NewTimetable(repository.NewMemory(), nil, nil, metrics.New(), testOptions())
	ctx := context.Background()

	_, err := svc.SaveTimings(ctx, model.CollegeTimings{Start: model.MustClock("09:00"), End: model.MustClock("12:00"), NumPeriods: 3}, nil)
	assert.Equal(t, apperrors.CodeInvalidConfiguration, apperrors.GetCode(err))
	_, err = svc.Preview(ctx, nil, nil)
	assert.Equal(t, apperrors.CodeInvalidConfiguration, apperrors.GetCode(err), "无效配置不应被保存")

	grid, err := svc.SaveTimings(ctx, model.CollegeTimings{
		Start: model.MustClock("09:00"), End: model.MustClock("14:00"), NumPeriods: 4, PeriodDuration: 60,
	}, []model.Break{{Name: "课间", Start: model.MustClock("10:00"), End: model.MustClock("10:15"), Kind: model.BreakShort}})
	require.NoError(t, err)
	var labels []string
	for _, p := range grid.Periods {
		labels = append(labels, p.Label)
	}
	assert.Equal(t, []string{"09:00-10:00", "10:15-11:15", "11:15-12:15", "12:15-13:15"}, labels)
}

func TestTimetable_Weights(t *testing.T) {
	svc := NewTimetable(repository.NewMemory(), nil, nil, metrics.New(), testOptions())
	ctx := context.Background()

	w, err := svc.Weights(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultWeights(), w)

	saved, err := svc.SaveWeights(ctx, model.Weights{FacultyWorkload: 150, StudentGap: -1})
	require.NoError(t, err)
	assert.Equal(t, 100, saved.FacultyWorkload)
	assert.Equal(t, 0, saved.StudentGap)

	lib, err := svc.Library(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, lib.Weights)
}

func TestTimetable_Workload(t *testing.T) {
	w := newWorld(t)
	svc := w.timetable()
	ctx := context.Background()

	_, err := svc.Generate(ctx, GenerateInput{})
	require.NoError(t, err)

	out, err := svc.Workload(ctx)
	require.NoError(t, err)
	assert.Len(t, out.Fairness.FacultyStats, 3)
	assert.InDelta(t, 100, out.Coverage.OverallCoverage, 0.001)
}
