package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kebiao/kebiao/internal/database"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

// Schema 建表语句
//
//go:embed migrations/001_init.sql
var Schema string

// Postgres PostgreSQL 存储
type Postgres struct {
	db *database.DB
}

// NewPostgres 创建 PostgreSQL 存储
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

var _ Repository = (*Postgres)(nil)

// Migrate 执行建表语句
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return apperrors.RepositoryUnavailable(err, "migrate")
	}
	return nil
}

// Ping 健康检查
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.Health(ctx); err != nil {
		return apperrors.RepositoryUnavailable(err, "ping")
	}
	return nil
}

// mapError 把驱动错误转换为业务错误
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "uq_substitutions_approved" {
				return apperrors.New(apperrors.CodeDuplicateSubstitution, "该课节当天已有批准的代课记录").WithCause(err)
			}
			if pqErr.Constraint == "absence_cancellations_absence_id_key" {
				return apperrors.New(apperrors.CodeAlreadyExists, "缺勤记录已取消").WithCause(err)
			}
			return apperrors.ScheduleConflict(pqErr.Constraint).WithCause(err)
		case "23503":
			return apperrors.New(apperrors.CodeNotFound, "关联记录不存在").WithCause(err)
		}
	}
	return apperrors.RepositoryUnavailable(err, op)
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// ListBatches 列出教学班
func (p *Postgres) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	var out []*model.Batch
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, name, department, year, semester, size FROM batches ORDER BY id`)
	return out, mapError(err, "list batches")
}

// ListSubjects 列出课程
func (p *Postgres) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	var out []*model.Subject
	err := p.db.SelectContext(ctx, &out,
		`SELECT id, code, name, type, department, year, semester, weekly_sessions, block_size, priority
		FROM subjects ORDER BY id`)
	return out, mapError(err, "list subjects")
}

type facultyRow struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	Department string    `db:"department"`
	model.WorkloadConfig
}

type proficiencyRow struct {
	FacultyID uuid.UUID `db:"faculty_id"`
	model.Proficiency
}

type preferenceRow struct {
	FacultyID uuid.UUID `db:"faculty_id"`
	model.Preference
}

// ListFaculty 列出教师，包含授课映射和时段偏好
func (p *Postgres) ListFaculty(ctx context.Context) ([]*model.Faculty, error) {
	var rows []facultyRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT id, name, department, max_hours_per_day, max_hours_per_week,
			max_consecutive_hours, preferred_break_duration
		FROM faculty ORDER BY id`); err != nil {
		return nil, mapError(err, "list faculty")
	}
	var profs []proficiencyRow
	if err := p.db.SelectContext(ctx, &profs,
		`SELECT faculty_id, subject_id, proficiency_level, preferred
		FROM faculty_subjects ORDER BY faculty_id, subject_id`); err != nil {
		return nil, mapError(err, "list faculty subjects")
	}
	var prefs []preferenceRow
	if err := p.db.SelectContext(ctx, &prefs,
		`SELECT faculty_id, subject_id, COALESCE(preferred_day, '') AS preferred_day,
			COALESCE(preferred_period, 0) AS preferred_period, weight
		FROM faculty_preferences ORDER BY faculty_id`); err != nil {
		return nil, mapError(err, "list faculty preferences")
	}

	out := make([]*model.Faculty, len(rows))
	byID := make(map[uuid.UUID]*model.Faculty, len(rows))
	for i, r := range rows {
		out[i] = &model.Faculty{ID: r.ID, Name: r.Name, Department: r.Department, Workload: r.WorkloadConfig}
		byID[r.ID] = out[i]
	}
	for _, r := range profs {
		if f := byID[r.FacultyID]; f != nil {
			f.Proficiencies = append(f.Proficiencies, r.Proficiency)
		}
	}
	for _, r := range prefs {
		if f := byID[r.FacultyID]; f != nil {
			f.Preferences = append(f.Preferences, r.Preference)
		}
	}
	return out, nil
}

// ListRooms 列出教室
func (p *Postgres) ListRooms(ctx context.Context) ([]*model.Room, error) {
	var out []*model.Room
	err := p.db.SelectContext(ctx, &out, `SELECT id, name, type, capacity FROM rooms ORDER BY id`)
	return out, mapError(err, "list rooms")
}

type timingsRow struct {
	Start          model.Clock    `db:"start_time"`
	End            model.Clock    `db:"end_time"`
	NumPeriods     int            `db:"num_periods"`
	PeriodDuration int            `db:"period_duration"`
	BreakGap       int            `db:"break_gap"`
	LabDuration    int            `db:"lab_duration"`
	Days           pq.StringArray `db:"days"`
}

// GetTimings 获取作息配置
func (p *Postgres) GetTimings(ctx context.Context) (*model.CollegeTimings, []model.Break, error) {
	var row timingsRow
	err := p.db.GetContext(ctx, &row,
		`SELECT start_time, end_time, num_periods, period_duration, break_gap, lab_duration, days
		FROM college_timings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.NotFound("作息配置", "default")
	}
	if err != nil {
		return nil, nil, mapError(err, "get timings")
	}

	var breaks []model.Break
	if err := p.db.SelectContext(ctx, &breaks,
		`SELECT id, name, start_time, end_time, kind FROM breaks ORDER BY start_time`); err != nil {
		return nil, nil, mapError(err, "list breaks")
	}

	t := &model.CollegeTimings{
		Start:          row.Start,
		End:            row.End,
		NumPeriods:     row.NumPeriods,
		PeriodDuration: row.PeriodDuration,
		BreakGap:       row.BreakGap,
		LabDuration:    row.LabDuration,
	}
	for _, d := range row.Days {
		t.Days = append(t.Days, model.Weekday(d))
	}
	return t, breaks, nil
}

// GetWeights 获取软约束权重
func (p *Postgres) GetWeights(ctx context.Context) (model.Weights, error) {
	var w model.Weights
	err := p.db.GetContext(ctx, &w,
		`SELECT faculty_workload, preferred_slot, student_gap, lab_spacing, subject_spread
		FROM engine_weights WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultWeights(), nil
	}
	return w, mapError(err, "get weights")
}

const slotColumns = `id, batch_id, day, period, time_slot, start_time, end_time,
	subject_id, faculty_id, room_id, kind, block_id`

// ListSlots 列出课节
func (p *Postgres) ListSlots(ctx context.Context, batchIDs []uuid.UUID) ([]*model.ScheduleSlot, error) {
	var out []*model.ScheduleSlot
	var err error
	if len(batchIDs) == 0 {
		err = p.db.SelectContext(ctx, &out, `SELECT `+slotColumns+` FROM schedule_slots`)
	} else {
		err = p.db.SelectContext(ctx, &out,
			`SELECT `+slotColumns+` FROM schedule_slots WHERE batch_id = ANY($1)`, pq.Array(idStrings(batchIDs)))
	}
	if err != nil {
		return nil, mapError(err, "list slots")
	}
	sortSlots(out)
	return out, nil
}

const absenceColumns = `a.id, a.faculty_id, to_char(a.start_date, 'YYYY-MM-DD') AS start_date,
	to_char(a.end_date, 'YYYY-MM-DD') AS end_date, a.reason, a.created_by, a.created_at,
	EXISTS (SELECT 1 FROM absence_cancellations c WHERE c.absence_id = a.id) AS cancelled`

// GetAbsence 获取缺勤记录
func (p *Postgres) GetAbsence(ctx context.Context, id uuid.UUID) (*model.FacultyAbsence, error) {
	var a model.FacultyAbsence
	err := p.db.GetContext(ctx, &a, `SELECT `+absenceColumns+` FROM faculty_absences a WHERE a.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("缺勤记录", id.String())
	}
	if err != nil {
		return nil, mapError(err, "get absence")
	}
	return &a, nil
}

// ListAbsences 列出缺勤记录
func (p *Postgres) ListAbsences(ctx context.Context, activeOnly bool) ([]*model.FacultyAbsence, error) {
	query := `SELECT ` + absenceColumns + ` FROM faculty_absences a`
	if activeOnly {
		query += ` WHERE NOT EXISTS (SELECT 1 FROM absence_cancellations c WHERE c.absence_id = a.id)`
	}
	query += ` ORDER BY a.id`

	var out []*model.FacultyAbsence
	err := p.db.SelectContext(ctx, &out, query)
	return out, mapError(err, "list absences")
}

const substitutionColumns = `id, absence_id, schedule_slot_id, substitute_faculty_id,
	to_char(date, 'YYYY-MM-DD') AS date, status, note, created_by, created_at, updated_at`

// GetSubstitution 获取代课记录
func (p *Postgres) GetSubstitution(ctx context.Context, id uuid.UUID) (*model.Substitution, error) {
	var s model.Substitution
	err := p.db.GetContext(ctx, &s, `SELECT `+substitutionColumns+` FROM substitutions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("代课记录", id.String())
	}
	if err != nil {
		return nil, mapError(err, "get substitution")
	}
	return &s, nil
}

// ListSubstitutions 列出代课记录
func (p *Postgres) ListSubstitutions(ctx context.Context) ([]*model.Substitution, error) {
	var out []*model.Substitution
	err := p.db.SelectContext(ctx, &out, `SELECT `+substitutionColumns+` FROM substitutions ORDER BY id`)
	return out, mapError(err, "list substitutions")
}

// SaveCatalog 导入基础数据，按ID覆盖
func (p *Postgres) SaveCatalog(ctx context.Context, c *Catalog) error {
	err := p.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, b := range c.Batches {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO batches (id, name, department, year, semester, size)
				VALUES (:id, :name, :department, :year, :semester, :size)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department,
					year = EXCLUDED.year, semester = EXCLUDED.semester, size = EXCLUDED.size`, b); err != nil {
				return err
			}
		}
		for _, s := range c.Subjects {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO subjects (id, code, name, type, department, year, semester, weekly_sessions, block_size, priority)
				VALUES (:id, :code, :name, :type, :department, :year, :semester, :weekly_sessions, :block_size, :priority)
				ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, name = EXCLUDED.name, type = EXCLUDED.type,
					department = EXCLUDED.department, year = EXCLUDED.year, semester = EXCLUDED.semester,
					weekly_sessions = EXCLUDED.weekly_sessions, block_size = EXCLUDED.block_size,
					priority = EXCLUDED.priority`, s); err != nil {
				return err
			}
		}
		for _, f := range c.Faculty {
			if err := saveFaculty(ctx, tx, f); err != nil {
				return err
			}
		}
		for _, r := range c.Rooms {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO rooms (id, name, type, capacity) VALUES (:id, :name, :type, :capacity)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
					capacity = EXCLUDED.capacity`, r); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err, "save catalog")
}

func saveFaculty(ctx context.Context, tx *sqlx.Tx, f *model.Faculty) error {
	row := facultyRow{ID: f.ID, Name: f.Name, Department: f.Department, WorkloadConfig: f.Workload.WithDefaults()}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO faculty (id, name, department, max_hours_per_day, max_hours_per_week,
			max_consecutive_hours, preferred_break_duration)
		VALUES (:id, :name, :department, :max_hours_per_day, :max_hours_per_week,
			:max_consecutive_hours, :preferred_break_duration)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department,
			max_hours_per_day = EXCLUDED.max_hours_per_day, max_hours_per_week = EXCLUDED.max_hours_per_week,
			max_consecutive_hours = EXCLUDED.max_consecutive_hours,
			preferred_break_duration = EXCLUDED.preferred_break_duration`, row); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM faculty_subjects WHERE faculty_id = $1`, f.ID); err != nil {
		return err
	}
	for _, prof := range f.Proficiencies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO faculty_subjects (faculty_id, subject_id, proficiency_level, preferred) VALUES ($1, $2, $3, $4)`,
			f.ID, prof.SubjectID, prof.Level, prof.Preferred); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM faculty_preferences WHERE faculty_id = $1`, f.ID); err != nil {
		return err
	}
	for _, pref := range f.Preferences {
		var day, period interface{}
		if pref.Day != "" {
			day = string(pref.Day)
		}
		if pref.Period != 0 {
			period = pref.Period
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO faculty_preferences (faculty_id, subject_id, preferred_day, preferred_period, weight)
			VALUES ($1, $2, $3, $4, $5)`,
			f.ID, pref.SubjectID, day, period, pref.Weight); err != nil {
			return err
		}
	}
	return nil
}

// SaveTimings 保存作息配置，休息时段整体替换
func (p *Postgres) SaveTimings(ctx context.Context, t model.CollegeTimings, breaks []model.Break) error {
	days := make([]string, len(t.Days))
	for i, d := range t.Days {
		days[i] = string(d)
	}
	err := p.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO college_timings (id, start_time, end_time, num_periods, period_duration, break_gap, lab_duration, days)
			VALUES (1, $1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
				num_periods = EXCLUDED.num_periods, period_duration = EXCLUDED.period_duration,
				break_gap = EXCLUDED.break_gap, lab_duration = EXCLUDED.lab_duration, days = EXCLUDED.days`,
			t.Start, t.End, t.NumPeriods, t.PeriodDuration, t.BreakGap, t.LabDuration, pq.Array(days)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM breaks`); err != nil {
			return err
		}
		for _, b := range breaks {
			if b.ID == uuid.Nil {
				b.ID = uuid.New()
			}
			if b.Kind == "" {
				b.Kind = model.BreakShort
			}
			if _, err := tx.NamedExecContext(ctx,
				`INSERT INTO breaks (id, name, start_time, end_time, kind) VALUES (:id, :name, :start_time, :end_time, :kind)`,
				b); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err, "save timings")
}

// SaveWeights 保存软约束权重
func (p *Postgres) SaveWeights(ctx context.Context, w model.Weights) error {
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO engine_weights (id, faculty_workload, preferred_slot, student_gap, lab_spacing, subject_spread)
		VALUES (1, :faculty_workload, :preferred_slot, :student_gap, :lab_spacing, :subject_spread)
		ON CONFLICT (id) DO UPDATE SET faculty_workload = EXCLUDED.faculty_workload,
			preferred_slot = EXCLUDED.preferred_slot, student_gap = EXCLUDED.student_gap,
			lab_spacing = EXCLUDED.lab_spacing, subject_spread = EXCLUDED.subject_spread`, w.Clamp())
	return mapError(err, "save weights")
}

// ReplaceSlots 在一个事务内删除旧课节并写入新课节
// 唯一索引保证同一 (星期, 节次) 的教师、教室、教学班不重复
func (p *Postgres) ReplaceSlots(ctx context.Context, remove []uuid.UUID, insert []*model.ScheduleSlot) error {
	err := p.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if len(remove) > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM schedule_slots WHERE id = ANY($1)`, pq.Array(idStrings(remove))); err != nil {
				return err
			}
		}
		for _, s := range insert {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO schedule_slots (`+slotColumns+`)
				VALUES (:id, :batch_id, :day, :period, :time_slot, :start_time, :end_time,
					:subject_id, :faculty_id, :room_id, :kind, :block_id)`, s); err != nil {
				return err
			}
		}
		return nil
	})
	return mapError(err, "replace slots")
}

// CreateAbsence 记录缺勤
func (p *Postgres) CreateAbsence(ctx context.Context, a *model.FacultyAbsence) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO faculty_absences (id, faculty_id, start_date, end_date, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.FacultyID, a.StartDate, a.EndDate, a.Reason, a.CreatedBy, a.CreatedAt)
	return mapError(err, "create absence")
}

// CancelAbsence 取消缺勤
func (p *Postgres) CancelAbsence(ctx context.Context, c *model.AbsenceCancellation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO absence_cancellations (id, absence_id, reason, cancelled_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AbsenceID, c.Reason, c.CancelledBy, c.CreatedAt)
	return mapError(err, "cancel absence")
}

// CreateSubstitution 写入代课记录，唯一索引拒绝重复批准
func (p *Postgres) CreateSubstitution(ctx context.Context, s *model.Substitution) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO substitutions (id, absence_id, schedule_slot_id, substitute_faculty_id, date,
			status, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.AbsenceID, s.ScheduleSlotID, s.SubstituteFacultyID, s.Date,
		s.Status, s.Note, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	if err := mapError(err, "create substitution"); err != nil {
		if apperrors.Is(err, apperrors.CodeDuplicateSubstitution) {
			return apperrors.DuplicateSubstitution(s.ScheduleSlotID.String(), s.Date).WithCause(errors.Unwrap(err))
		}
		return err
	}
	return nil
}

// UpdateSubstitutionStatus 按原状态条件更新，并发修改时返回 INVALID_TRANSITION
func (p *Postgres) UpdateSubstitutionStatus(ctx context.Context, id uuid.UUID, from, to model.SubstitutionStatus, at time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE substitutions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, at, id, from)
	if err != nil {
		return mapError(err, "update substitution")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, "update substitution")
	}
	if n == 1 {
		return nil
	}

	current, err := p.GetSubstitution(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.InvalidTransition(string(current.Status), string(to))
}
