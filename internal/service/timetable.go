package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kebiao/kebiao/internal/constraints"
	"github.com/kebiao/kebiao/internal/events"
	"github.com/kebiao/kebiao/internal/lock"
	"github.com/kebiao/kebiao/internal/metrics"
	"github.com/kebiao/kebiao/internal/repository"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
	"github.com/kebiao/kebiao/pkg/scheduler/optimizer"
	"github.com/kebiao/kebiao/pkg/scheduler/solver"
	"github.com/kebiao/kebiao/pkg/stats"
	"github.com/kebiao/kebiao/pkg/timegrid"
	"github.com/kebiao/kebiao/pkg/validator"
)

// Timetable 课表服务
type Timetable struct {
	base
	locker lock.Locker
	grids  *timegrid.Calculator
}

// NewTimetable 创建课表服务
func NewTimetable(repo repository.Repository, locker lock.Locker, pub events.Publisher, m *metrics.Collectors, opts Options) *Timetable {
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &Timetable{
		base:   newBase(repo, pub, m, opts),
		locker: locker,
		grids:  timegrid.NewCalculator(),
	}
}

// GenerateInput 排课请求
type GenerateInput struct {
	BatchIDs []uuid.UUID         `json:"batch_ids"`
	Mode     solver.Mode         `json:"mode" validate:"omitempty,oneof=full partial"`
	Stale    *solver.StaleFilter `json:"stale,omitempty"`
}

// GenerateOutput 排课结果，Committed 表示已写入存储
type GenerateOutput struct {
	*solver.Result
	Conflicts []validator.Conflict `json:"conflicts,omitempty"`
	Committed bool                 `json:"committed"`
}

// schedulePayload 排课完成事件
type schedulePayload struct {
	BatchIDs    []uuid.UUID `json:"batch_ids"`
	Mode        solver.Mode `json:"mode"`
	Slots       int         `json:"slots"`
	Replaced    int         `json:"replaced"`
	Unsatisfied int         `json:"unsatisfied"`
}

// Generate 生成课表并原子替换
// 未排入的需求在结果中返回；与新课节相关的冲突会阻止提交
func (t *Timetable) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	log := logger.WithContext(ctx)
	if in.Mode == "" {
		in.Mode = solver.ModeFull
	}
	if in.Mode != solver.ModeFull && in.Mode != solver.ModePartial {
		return nil, apperrors.InvalidConfiguration("未知排课模式: %s", in.Mode)
	}

	var batches []*model.Batch
	if err := t.call(ctx, "list batches", func(ctx context.Context) (err error) {
		batches, err = t.repo.ListBatches(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	scope, err := resolveScope(batches, in.BatchIDs)
	if err != nil {
		return nil, err
	}

	// 同一教学班的排课串行执行，读取快照前加锁
	lockCtx, cancelLock := context.WithTimeout(ctx, t.opts.GenerateTimeout)
	unlock, err := t.locker.Lock(lockCtx, lock.BatchKeys(scope))
	cancelLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	snap, err := t.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	timings, breaks, err := t.timings(ctx)
	if err != nil {
		return nil, err
	}
	grid, err := t.grids.Build(*timings, breaks)
	if err != nil {
		return nil, err
	}

	var weights model.Weights
	var existing []*model.ScheduleSlot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.call(gctx, "get weights", func(ctx context.Context) (err error) {
			weights, err = t.repo.GetWeights(ctx)
			return err
		})
	})
	g.Go(func() error {
		return t.call(gctx, "list slots", func(ctx context.Context) (err error) {
			existing, err = t.repo.ListSlots(ctx, nil)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	req := &solver.Request{
		BatchIDs:     scope,
		Requirements: model.DeriveRequirements(snap.batches, snap.subjects, *timings),
		Grid:         grid,
		Weights:      weights,
		Faculty:      snap.faculty,
		Rooms:        snap.rooms,
		Batches:      snap.batches,
		Subjects:     snap.subjects,
		Existing:     existing,
		Mode:         in.Mode,
		Stale:        in.Stale,
		EmitBreaks:   t.opts.EmitBreaks,
		Optimize:     optimizer.Config{
			MaxIterations:   t.opts.OptimizeMoves,
			ParallelWorkers: t.opts.OptimizeWorkers,
		},
	}

	genCtx, cancel := context.WithTimeout(ctx, t.opts.GenerateTimeout)
	defer cancel()
	engine := solver.NewEngine(builtin.NewDefaultManager(weights), t.opts.BacktrackFactor)
	res, err := engine.Generate(genCtx, req)
	if err != nil {
		t.metrics.RecordGenerationFailure(string(in.Mode))
		if genCtx.Err() != nil && apperrors.GetCode(err) == apperrors.CodeUnknown {
			return nil, apperrors.Wrap(err, apperrors.CodeTimeout, "排课超时")
		}
		return nil, err
	}
	for _, v := range res.ConstraintResult.HardViolations {
		t.metrics.RecordViolation(string(v.ConstraintType), v.Severity)
	}

	out := &GenerateOutput{Result: res}
	out.Conflicts = validator.NewConflictDetector(nil).DetectAll(merge(existing, res), facultyMap(snap.faculty), grid)
	if blocking := blockingConflicts(out.Conflicts, res.Slots); len(blocking) > 0 {
		t.metrics.RecordGenerationFailure(string(in.Mode))
		log.Error().Int("conflicts", len(blocking)).Msg("生成结果未通过冲突检查，未提交")
		return nil, apperrors.ScheduleConflict(blocking[0].Message).
			WithField("conflicts", blocking)
	}

	if err := t.call(ctx, "replace slots", func(ctx context.Context) error {
		return t.repo.ReplaceSlots(ctx, res.Replaced, res.Slots)
	}); err != nil {
		t.metrics.RecordGenerationFailure(string(in.Mode))
		return nil, err
	}
	out.Committed = true

	t.metrics.RecordGeneration(string(in.Mode), res.Success, res.Duration,
		res.Statistics.Backtracks, len(res.Unsatisfied))
	t.publish(ctx, events.ScheduleGenerated, schedulePayload{
		BatchIDs:    scope,
		Mode:        in.Mode,
		Slots:       len(res.Slots),
		Replaced:    len(res.Replaced),
		Unsatisfied: len(res.Unsatisfied),
	})
	log.Info().
		Str("mode", string(in.Mode)).
		Int("batches", len(scope)).
		Int("slots", len(res.Slots)).
		Int("unsatisfied", len(res.Unsatisfied)).
		Msg("课表已提交")
	return out, nil
}

// resolveScope 校验教学班，未指定时返回全部教学班
func resolveScope(batches []*model.Batch, ids []uuid.UUID) ([]uuid.UUID, error) {
	known := make(map[uuid.UUID]bool, len(batches))
	for _, b := range batches {
		known[b.ID] = true
	}
	if len(ids) == 0 {
		out := make([]uuid.UUID, 0, len(batches))
		for _, b := range batches {
			out = append(out, b.ID)
		}
		return out, nil
	}
	for _, id := range ids {
		if !known[id] {
			return nil, apperrors.NotFound("教学班", id.String())
		}
	}
	return ids, nil
}

// merge 提交后的完整课表
func merge(existing []*model.ScheduleSlot, res *solver.Result) []*model.ScheduleSlot {
	replaced := make(map[uuid.UUID]bool, len(res.Replaced))
	for _, id := range res.Replaced {
		replaced[id] = true
	}
	out := make([]*model.ScheduleSlot, 0, len(existing)+len(res.Slots))
	for _, s := range existing {
		if !replaced[s.ID] {
			out = append(out, s)
		}
	}
	return append(out, res.Slots...)
}

// blockingConflicts 与新课节有关的硬冲突；只涉及原有课节的冲突不阻止提交
func blockingConflicts(conflicts []validator.Conflict, fresh []*model.ScheduleSlot) []validator.Conflict {
	ids := make(map[uuid.UUID]bool, len(fresh))
	busyFaculty := make(map[uuid.UUID]bool)
	for _, s := range fresh {
		ids[s.ID] = true
		if !s.IsBreak() {
			busyFaculty[s.FacultyID] = true
		}
	}
	var out []validator.Conflict
	for _, c := range conflicts {
		if c.Severity != "error" {
			continue
		}
		hit := len(c.Slots) == 0 && busyFaculty[c.FacultyID]
		for _, id := range c.Slots {
			hit = hit || ids[id]
		}
		if hit {
			out = append(out, c)
		}
	}
	return out
}

func facultyMap(faculty []*model.Faculty) map[uuid.UUID]*model.Faculty {
	out := make(map[uuid.UUID]*model.Faculty, len(faculty))
	for _, f := range faculty {
		out[f.ID] = f
	}
	return out
}

// timings 读取作息配置，未配置视为配置错误
func (t *Timetable) timings(ctx context.Context) (*model.CollegeTimings, []model.Break, error) {
	var timings *model.CollegeTimings
	var breaks []model.Break
	err := t.call(ctx, "get timings", func(ctx context.Context) (err error) {
		timings, breaks, err = t.repo.GetTimings(ctx)
		return err
	})
	if apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, nil, apperrors.InvalidConfiguration("尚未配置作息时间")
	}
	return timings, breaks, err
}

// Preview 计算作息网格，timings 为空时使用已保存的配置
func (t *Timetable) Preview(ctx context.Context, timings *model.CollegeTimings, breaks []model.Break) (*timegrid.Grid, error) {
	if timings == nil {
		var err error
		timings, breaks, err = t.timings(ctx)
		if err != nil {
			return nil, err
		}
	}
	return t.grids.Build(*timings, breaks)
}

// SaveTimings 校验并保存作息配置
func (t *Timetable) SaveTimings(ctx context.Context, timings model.CollegeTimings, breaks []model.Break) (*timegrid.Grid, error) {
	grid, err := t.grids.Build(timings, breaks)
	if err != nil {
		return nil, err
	}
	if err := t.call(ctx, "save timings", func(ctx context.Context) error {
		return t.repo.SaveTimings(ctx, timings, breaks)
	}); err != nil {
		return nil, err
	}
	return grid, nil
}

// Weights 当前软约束权重
func (t *Timetable) Weights(ctx context.Context) (model.Weights, error) {
	var w model.Weights
	err := t.call(ctx, "get weights", func(ctx context.Context) (err error) {
		w, err = t.repo.GetWeights(ctx)
		return err
	})
	return w, err
}

// SaveWeights 保存软约束权重
func (t *Timetable) SaveWeights(ctx context.Context, w model.Weights) (model.Weights, error) {
	w = w.Clamp()
	if err := t.call(ctx, "save weights", func(ctx context.Context) error {
		return t.repo.SaveWeights(ctx, w)
	}); err != nil {
		return model.Weights{}, err
	}
	return w, nil
}

// SaveCatalog 导入基础数据
func (t *Timetable) SaveCatalog(ctx context.Context, c *repository.Catalog) error {
	return t.call(ctx, "save catalog", func(ctx context.Context) error {
		return t.repo.SaveCatalog(ctx, c)
	})
}

// Slots 当前课表
func (t *Timetable) Slots(ctx context.Context, batchIDs []uuid.UUID) ([]*model.ScheduleSlot, error) {
	var slots []*model.ScheduleSlot
	err := t.call(ctx, "list slots", func(ctx context.Context) (err error) {
		slots, err = t.repo.ListSlots(ctx, batchIDs)
		return err
	})
	return slots, err
}

// ValidateOutput 冲突检查结果
type ValidateOutput struct {
	Valid     bool                           `json:"valid"`
	Conflicts []validator.Conflict           `json:"conflicts"`
	Summary   map[validator.ConflictType]int `json:"summary"`
	Checked   int                            `json:"checked"`
}

// Validate 检查给定课节，未给出时检查已保存的课表
func (t *Timetable) Validate(ctx context.Context, slots []*model.ScheduleSlot) (*ValidateOutput, error) {
	if len(slots) == 0 {
		var err error
		if slots, err = t.Slots(ctx, nil); err != nil {
			return nil, err
		}
	}
	var faculty []*model.Faculty
	if err := t.call(ctx, "list faculty", func(ctx context.Context) (err error) {
		faculty, err = t.repo.ListFaculty(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	// 未配置作息时只检查与网格无关的冲突
	var grid *timegrid.Grid
	timings, breaks, err := t.timings(ctx)
	switch {
	case err == nil:
		if grid, err = t.grids.Build(*timings, breaks); err != nil {
			return nil, err
		}
	case !apperrors.Is(err, apperrors.CodeInvalidConfiguration):
		return nil, err
	}

	conflicts := validator.NewConflictDetector(nil).DetectAll(slots, facultyMap(faculty), grid)
	if conflicts == nil {
		conflicts = []validator.Conflict{}
	}
	return &ValidateOutput{
		Valid:     !validator.HasErrors(conflicts),
		Conflicts: conflicts,
		Summary:   validator.Summary(conflicts),
		Checked:   len(slots),
	}, nil
}

// WorkloadOutput 工作量统计
type WorkloadOutput struct {
	Fairness    *stats.FairnessMetrics `json:"fairness"`
	Coverage    *stats.CoverageMetrics `json:"coverage"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Workload 统计已保存课表的教师工作量和需求满足情况
func (t *Timetable) Workload(ctx context.Context) (*WorkloadOutput, error) {
	snap, err := t.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	var slots []*model.ScheduleSlot
	var subs []*model.Substitution
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.call(gctx, "list slots", func(ctx context.Context) (err error) {
			slots, err = t.repo.ListSlots(ctx, nil)
			return err
		})
	})
	g.Go(func() error {
		return t.call(gctx, "list substitutions", func(ctx context.Context) (err error) {
			subs, err = t.repo.ListSubstitutions(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 未配置作息时实验课按默认连堂节数统计
	timings := model.CollegeTimings{}
	if stored, _, err := t.timings(ctx); err == nil {
		timings = *stored
	} else if !apperrors.Is(err, apperrors.CodeInvalidConfiguration) {
		return nil, err
	}

	fairness := stats.NewFairnessAnalyzer().Analyze(slots, snap.faculty, subs)
	t.metrics.SetFairnessGini(fairness.WorkloadGini)
	return &WorkloadOutput{
		Fairness:    fairness,
		Coverage:    stats.NewCoverageAnalyzer().Analyze(model.DeriveRequirements(snap.batches, snap.subjects, timings), slots),
		GeneratedAt: t.now(),
	}, nil
}

// Library 约束库及当前权重
func (t *Timetable) Library(ctx context.Context) (*constraints.LibraryResponse, error) {
	w, err := t.Weights(ctx)
	if err != nil {
		return nil, err
	}
	return constraints.GetLibrary(w), nil
}
