package coverage

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

// 允许的状态流转，approved -> rejected 即撤回
var transitions = map[model.SubstitutionStatus][]model.SubstitutionStatus{
	model.SubstitutionPending:  {model.SubstitutionApproved, model.SubstitutionRejected},
	model.SubstitutionApproved: {model.SubstitutionRejected},
}

// CanTransition 检查状态流转是否允许
func CanTransition(from, to model.SubstitutionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 变更代课状态
func Transition(sub *model.Substitution, to model.SubstitutionStatus, now time.Time) error {
	if !CanTransition(sub.Status, to) {
		return apperrors.InvalidTransition(string(sub.Status), string(to))
	}
	sub.Status = to
	sub.UpdatedAt = now
	return nil
}

// NewSubstitution 为未覆盖课节创建已批准的代课记录
func NewSubstitution(u model.UncoveredSlot, facultyID uuid.UUID, actor string, now time.Time) *model.Substitution {
	return &model.Substitution{
		ID:                  uuid.New(),
		AbsenceID:           u.AbsenceID,
		ScheduleSlotID:      u.Slot.ID,
		SubstituteFacultyID: facultyID,
		Date:                u.Date,
		Status:              model.SubstitutionApproved,
		CreatedBy:           actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// AutoAssign 按“首选且空闲”规则自动确认代课
// 首选候选人不空闲、会超出工作量上限或没有候选人的课节原样返回；已确认的代课会计入后续课节的评估
func (e *Engine) AutoAssign(snap *Snapshot, uncovered []model.UncoveredSlot, actor string, now time.Time) ([]*model.Substitution, []model.UncoveredSlot, error) {
	working := *snap
	working.Substitutions = append([]*model.Substitution(nil), snap.Substitutions...)

	var created []*model.Substitution
	var remaining []model.UncoveredSlot
	for _, u := range uncovered {
		cands, err := e.Rank(&working, u)
		if err != nil {
			if apperrors.Is(err, apperrors.CodeNoEligibleCandidate) {
				remaining = append(remaining, u)
				continue
			}
			return nil, nil, err
		}
		if !cands[0].IsFree || !cands[0].WithinWorkload {
			remaining = append(remaining, u)
			continue
		}
		sub := NewSubstitution(u, cands[0].FacultyID, actor, now)
		working.Substitutions = append(working.Substitutions, sub)
		created = append(created, sub)
	}
	return created, remaining, nil
}

// Find 在未覆盖列表中查找课节某天的记录
func Find(uncovered []model.UncoveredSlot, slotID uuid.UUID, date string) (model.UncoveredSlot, bool) {
	for _, u := range uncovered {
		if u.Slot != nil && u.Slot.ID == slotID && u.Date == date {
			return u, true
		}
	}
	return model.UncoveredSlot{}, false
}
