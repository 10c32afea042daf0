package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

// Memory 内存存储，语义与 Postgres 一致
type Memory struct {
	mu sync.RWMutex

	batches  map[uuid.UUID]*model.Batch
	subjects map[uuid.UUID]*model.Subject
	faculty  map[uuid.UUID]*model.Faculty
	rooms    map[uuid.UUID]*model.Room

	timings *model.CollegeTimings
	breaks  []model.Break
	weights *model.Weights

	slots         map[uuid.UUID]*model.ScheduleSlot
	absences      map[uuid.UUID]*model.FacultyAbsence
	cancellations map[uuid.UUID]*model.AbsenceCancellation // absence_id -> 取消记录
	substitutions map[uuid.UUID]*model.Substitution
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{
		batches:       make(map[uuid.UUID]*model.Batch),
		subjects:      make(map[uuid.UUID]*model.Subject),
		faculty:       make(map[uuid.UUID]*model.Faculty),
		rooms:         make(map[uuid.UUID]*model.Room),
		slots:         make(map[uuid.UUID]*model.ScheduleSlot),
		absences:      make(map[uuid.UUID]*model.FacultyAbsence),
		cancellations: make(map[uuid.UUID]*model.AbsenceCancellation),
		substitutions: make(map[uuid.UUID]*model.Substitution),
	}
}

var _ Repository = (*Memory)(nil)

// Ping 健康检查
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func sortedValues[T any](items map[uuid.UUID]*T) []*T {
	ids := make([]uuid.UUID, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]*T, len(ids))
	for i, id := range ids {
		v := *items[id]
		out[i] = &v
	}
	return out
}

// ListBatches 列出教学班
func (m *Memory) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.batches), ctx.Err()
}

// ListSubjects 列出课程
func (m *Memory) ListSubjects(ctx context.Context) ([]*model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.subjects), ctx.Err()
}

// ListFaculty 列出教师
func (m *Memory) ListFaculty(ctx context.Context) ([]*model.Faculty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.faculty), ctx.Err()
}

// ListRooms 列出教室
func (m *Memory) ListRooms(ctx context.Context) ([]*model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.rooms), ctx.Err()
}

// GetTimings 获取作息配置
func (m *Memory) GetTimings(ctx context.Context) (*model.CollegeTimings, []model.Break, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.timings == nil {
		return nil, nil, apperrors.NotFound("作息配置", "default")
	}
	t := *m.timings
	return &t, append([]model.Break(nil), m.breaks...), ctx.Err()
}

// GetWeights 获取软约束权重
func (m *Memory) GetWeights(ctx context.Context) (model.Weights, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.weights == nil {
		return model.DefaultWeights(), ctx.Err()
	}
	return *m.weights, ctx.Err()
}

// ListSlots 列出课节
func (m *Memory) ListSlots(ctx context.Context, batchIDs []uuid.UUID) ([]*model.ScheduleSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[uuid.UUID]bool, len(batchIDs))
	for _, id := range batchIDs {
		want[id] = true
	}
	out := make([]*model.ScheduleSlot, 0, len(m.slots))
	for _, s := range m.slots {
		if len(want) > 0 && !want[s.BatchID] {
			continue
		}
		v := *s
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return model.SlotLess(out[i], out[j]) })
	return out, ctx.Err()
}

// GetAbsence 获取缺勤记录
func (m *Memory) GetAbsence(ctx context.Context, id uuid.UUID) (*model.FacultyAbsence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.absences[id]
	if !ok {
		return nil, apperrors.NotFound("缺勤记录", id.String())
	}
	v := *a
	v.Cancelled = m.cancellations[id] != nil
	return &v, ctx.Err()
}

// ListAbsences 列出缺勤记录
func (m *Memory) ListAbsences(ctx context.Context, activeOnly bool) ([]*model.FacultyAbsence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.FacultyAbsence
	for _, a := range sortedValues(m.absences) {
		a.Cancelled = m.cancellations[a.ID] != nil
		if activeOnly && a.Cancelled {
			continue
		}
		out = append(out, a)
	}
	return out, ctx.Err()
}

// GetSubstitution 获取代课记录
func (m *Memory) GetSubstitution(ctx context.Context, id uuid.UUID) (*model.Substitution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.substitutions[id]
	if !ok {
		return nil, apperrors.NotFound("代课记录", id.String())
	}
	v := *s
	return &v, ctx.Err()
}

// ListSubstitutions 列出代课记录
func (m *Memory) ListSubstitutions(ctx context.Context) ([]*model.Substitution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.substitutions), ctx.Err()
}

// SaveCatalog 导入基础数据，按ID覆盖
func (m *Memory) SaveCatalog(ctx context.Context, c *Catalog) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "save catalog")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range c.Batches {
		v := *b
		m.batches[b.ID] = &v
	}
	for _, s := range c.Subjects {
		v := *s
		m.subjects[s.ID] = &v
	}
	for _, f := range c.Faculty {
		v := *f
		v.Proficiencies = append([]model.Proficiency(nil), f.Proficiencies...)
		v.Preferences = append([]model.Preference(nil), f.Preferences...)
		m.faculty[f.ID] = &v
	}
	for _, r := range c.Rooms {
		v := *r
		m.rooms[r.ID] = &v
	}
	return nil
}

// SaveTimings 保存作息配置
func (m *Memory) SaveTimings(ctx context.Context, timings model.CollegeTimings, breaks []model.Break) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "save timings")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	timings.Days = append([]model.Weekday(nil), timings.Days...)
	m.timings = &timings
	m.breaks = append([]model.Break(nil), breaks...)
	return nil
}

// SaveWeights 保存软约束权重
func (m *Memory) SaveWeights(ctx context.Context, w model.Weights) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "save weights")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w = w.Clamp()
	m.weights = &w
	return nil
}

type occupancyKey struct {
	kind   string
	id     uuid.UUID
	day    model.Weekday
	period int
}

// ReplaceSlots 替换课节，结果中 (星期, 节次) 上的教师、教室、教学班必须唯一
func (m *Memory) ReplaceSlots(ctx context.Context, remove []uuid.UUID, insert []*model.ScheduleSlot) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "replace slots")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[uuid.UUID]*model.ScheduleSlot, len(m.slots)+len(insert))
	for id, s := range m.slots {
		next[id] = s
	}
	for _, id := range remove {
		delete(next, id)
	}
	for _, s := range insert {
		if _, exists := next[s.ID]; exists {
			return apperrors.ScheduleConflict(fmt.Sprintf("课节 %s 已存在", s.ID))
		}
		v := *s
		next[s.ID] = &v
	}

	seen := make(map[occupancyKey]uuid.UUID)
	for _, s := range next {
		if s.IsBreak() {
			continue
		}
		for kind, id := range map[string]uuid.UUID{"faculty": s.FacultyID, "room": s.RoomID, "batch": s.BatchID} {
			k := occupancyKey{kind, id, s.Day, s.Period}
			if other, ok := seen[k]; ok {
				return apperrors.ScheduleConflict(fmt.Sprintf("%s %s 在 %s 第 %d 节重复：%s / %s", kind, id, s.Day, s.Period, other, s.ID))
			}
			seen[k] = s.ID
		}
	}
	m.slots = next
	return nil
}

// CreateAbsence 记录缺勤
func (m *Memory) CreateAbsence(ctx context.Context, a *model.FacultyAbsence) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "create absence")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.absences[a.ID]; exists {
		return apperrors.New(apperrors.CodeAlreadyExists, "缺勤记录已存在")
	}
	v := *a
	v.Cancelled = false
	m.absences[a.ID] = &v
	return nil
}

// CancelAbsence 取消缺勤，每条缺勤只能取消一次
func (m *Memory) CancelAbsence(ctx context.Context, c *model.AbsenceCancellation) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "cancel absence")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.absences[c.AbsenceID]; !ok {
		return apperrors.NotFound("缺勤记录", c.AbsenceID.String())
	}
	if m.cancellations[c.AbsenceID] != nil {
		return apperrors.New(apperrors.CodeAlreadyExists, "缺勤记录已取消")
	}
	v := *c
	m.cancellations[c.AbsenceID] = &v
	return nil
}

// approvedFor 返回 (课节, 日期) 上已批准的代课，调用方持有锁
func (m *Memory) approvedFor(slotID uuid.UUID, date string, except uuid.UUID) *model.Substitution {
	for _, s := range m.substitutions {
		if s.ID != except && s.IsApproved() && s.ScheduleSlotID == slotID && s.Date == date {
			return s
		}
	}
	return nil
}

// CreateSubstitution 写入代课记录
func (m *Memory) CreateSubstitution(ctx context.Context, s *model.Substitution) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "create substitution")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.substitutions[s.ID]; exists {
		return apperrors.New(apperrors.CodeAlreadyExists, "代课记录已存在")
	}
	if s.IsApproved() && m.approvedFor(s.ScheduleSlotID, s.Date, s.ID) != nil {
		return apperrors.DuplicateSubstitution(s.ScheduleSlotID.String(), s.Date)
	}
	v := *s
	m.substitutions[s.ID] = &v
	return nil
}

// UpdateSubstitutionStatus 更新代课状态
func (m *Memory) UpdateSubstitutionStatus(ctx context.Context, id uuid.UUID, from, to model.SubstitutionStatus, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.RepositoryUnavailable(err, "update substitution")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.substitutions[id]
	if !ok {
		return apperrors.NotFound("代课记录", id.String())
	}
	if s.Status != from {
		return apperrors.InvalidTransition(string(s.Status), string(to))
	}
	if to == model.SubstitutionApproved && m.approvedFor(s.ScheduleSlotID, s.Date, s.ID) != nil {
		return apperrors.DuplicateSubstitution(s.ScheduleSlotID.String(), s.Date)
	}
	s.Status = to
	s.UpdatedAt = at
	return nil
}
