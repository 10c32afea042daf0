package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kebiao/kebiao/internal/repository"
	"github.com/kebiao/kebiao/internal/service"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/model"
)

// TimingsRequest 作息配置
type TimingsRequest struct {
	Timings *model.CollegeTimings `json:"timings"`
	Breaks  []model.Break         `json:"breaks" validate:"dive"`
}

// PreviewGrid 预览作息网格，未提供配置时使用已保存的配置
func (h *Handler) PreviewGrid(w http.ResponseWriter, r *http.Request) {
	var req TimingsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	grid, err := h.timetable.Preview(r.Context(), req.Timings, req.Breaks)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"grid":  grid,
		"slots": grid.Slots(),
	})
}

// SaveTimings 保存作息配置
func (h *Handler) SaveTimings(w http.ResponseWriter, r *http.Request) {
	var req TimingsRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Timings == nil {
		respondError(w, r, apperrors.InvalidInput("timings", "不能为空"))
		return
	}
	grid, err := h.timetable.SaveTimings(r.Context(), *req.Timings, req.Breaks)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"grid": grid})
}

// GetWeights 当前软约束权重
func (h *Handler) GetWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := h.timetable.Weights(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, weights)
}

// SaveWeights 保存软约束权重（0-100）
func (h *Handler) SaveWeights(w http.ResponseWriter, r *http.Request) {
	req := model.DefaultWeights()
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	weights, err := h.timetable.SaveWeights(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, weights)
}

// SaveCatalog 导入教学班、课程、教师和教室
func (h *Handler) SaveCatalog(w http.ResponseWriter, r *http.Request) {
	var req repository.Catalog
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := checkCatalog(&req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.timetable.SaveCatalog(r.Context(), &req); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"batches":  len(req.Batches),
		"subjects": len(req.Subjects),
		"faculty":  len(req.Faculty),
		"rooms":    len(req.Rooms),
	})
}

// checkCatalog 基础数据必须带ID和名称，取值合法
func checkCatalog(c *repository.Catalog) error {
	ve := &apperrors.ValidationErrors{}
	need := func(field string, id uuid.UUID, name string) {
		if id == uuid.Nil {
			ve.Add(field+".id", "不能为空")
		}
		if strings.TrimSpace(name) == "" {
			ve.Add(field+".name", "不能为空")
		}
	}
	for i, b := range c.Batches {
		need(fmt.Sprintf("batches[%d]", i), b.ID, b.Name)
	}
	for i, s := range c.Subjects {
		field := fmt.Sprintf("subjects[%d]", i)
		need(field, s.ID, s.Name)
		if s.Type != model.SubjectTheory && s.Type != model.SubjectLab {
			ve.Add(field+".type", "必须是 theory 或 lab")
		}
		if s.WeeklySessions < 0 || s.BlockSize < 0 {
			ve.Add(field, "每周次数和连堂节数不能为负")
		}
	}
	for i, f := range c.Faculty {
		field := fmt.Sprintf("faculty[%d]", i)
		need(field, f.ID, f.Name)
		for j, p := range f.Proficiencies {
			if p.SubjectID == uuid.Nil {
				ve.Add(fmt.Sprintf("%s.proficiencies[%d].subject_id", field, j), "不能为空")
			}
			if p.Level.Rank() == 0 {
				ve.Add(fmt.Sprintf("%s.proficiencies[%d].proficiency_level", field, j), "必须是 expert、proficient 或 basic")
			}
		}
	}
	for i, room := range c.Rooms {
		field := fmt.Sprintf("rooms[%d]", i)
		need(field, room.ID, room.Name)
		if room.Type != model.RoomClassroom && room.Type != model.RoomLab {
			ve.Add(field+".type", "必须是 classroom 或 lab")
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError().WithDetails(ve.Error())
	}
	return nil
}

// Generate 生成课表
// 未排入的需求作为数据返回，状态码仍为 200
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req service.GenerateInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	out, err := h.timetable.Generate(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// ValidateRequest 待检查的课节，为空时检查已保存的课表
type ValidateRequest struct {
	Slots []*model.ScheduleSlot `json:"slots"`
}

// Validate 冲突检查
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	out, err := h.timetable.Validate(r.Context(), req.Slots)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// ListSchedule 当前课表，batch_id 可重复或以逗号分隔
func (h *Handler) ListSchedule(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	for _, v := range r.URL.Query()["batch_id"] {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				respondError(w, r, apperrors.InvalidInput("batch_id", "无效的ID格式: "+raw))
				return
			}
			ids = append(ids, id)
		}
	}
	slots, err := h.timetable.Slots(r.Context(), ids)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if slots == nil {
		slots = []*model.ScheduleSlot{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"slots": slots})
}

// Library 约束库
func (h *Handler) Library(w http.ResponseWriter, r *http.Request) {
	lib, err := h.timetable.Library(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lib)
}

// Workload 教师工作量与需求满足情况
func (h *Handler) Workload(w http.ResponseWriter, r *http.Request) {
	out, err := h.timetable.Workload(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

// GenerateExams 生成考试安排
func (h *Handler) GenerateExams(w http.ResponseWriter, r *http.Request) {
	var req service.ExamInput
	if err := h.decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	plan, err := h.timetable.GenerateExams(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}
