package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kebiao/kebiao/internal/service"
	"github.com/kebiao/kebiao/pkg/model"
)

// ReportAbsence 上报缺勤
func (h *Handler) ReportAbsence(w http.ResponseWriter, r *http.Request) {
	var req service.AbsenceInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	absence, err := h.coverage.ReportAbsence(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, absence)
}

// ListAbsences 缺勤列表，active=true 时只返回未取消的
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	list, err := h.coverage.Absences(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if list == nil {
		list = []*model.FacultyAbsence{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"absences": list})
}

// CancelRequest 取消缺勤
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelAbsence 取消缺勤
func (h *Handler) CancelAbsence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req CancelRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.coverage.CancelAbsence(r.Context(), id, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// AbsenceIDsRequest 缺勤ID列表，为空表示全部有效缺勤
type AbsenceIDsRequest struct {
	AbsenceIDs []uuid.UUID `json:"absence_ids"`
}

// Uncovered 计算未覆盖课节
func (h *Handler) Uncovered(w http.ResponseWriter, r *http.Request) {
	var req AbsenceIDsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	out, err := h.coverage.Uncovered(r.Context(), req.AbsenceIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if out.Uncovered == nil {
		out.Uncovered = []model.UncoveredSlot{}
	}
	respondJSON(w, http.StatusOK, out)
}

// Recommend 推荐代课教师
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req service.RecommendInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	recs, err := h.coverage.Recommend(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}

// Confirm 确认代课
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req service.ConfirmInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sub, err := h.coverage.Confirm(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

// AutoAssign 首选候选人空闲时自动确认
func (h *Handler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	var req AbsenceIDsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	out, err := h.coverage.AutoAssign(r.Context(), req.AbsenceIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// UpdateSubstitutionStatus 批准、驳回或撤回代课
func (h *Handler) UpdateSubstitutionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req service.StatusInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sub, err := h.coverage.UpdateStatus(r.Context(), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}
