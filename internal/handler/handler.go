// Package handler 提供HTTP请求处理器
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/google/uuid"

	"github.com/kebiao/kebiao/internal/service"
	apperrors "github.com/kebiao/kebiao/pkg/errors"
	"github.com/kebiao/kebiao/pkg/logger"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 4 << 20

// Handler 排课与代课接口
type Handler struct {
	timetable  *service.Timetable
	coverage   *service.Coverage
	validate   *validator.Validate
	translator ut.Translator
}

// New 创建处理器
func New(timetable *service.Timetable, coverage *service.Coverage) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	locale := zh.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	return &Handler{
		timetable:  timetable,
		coverage:   coverage,
		validate:   validate,
		translator: trans,
	}, nil
}

// Routes 注册 /api/v1 下的路由
func (h *Handler) Routes(r chi.Router) {
	r.Post("/timegrid/preview", h.PreviewGrid)
	r.Put("/timings", h.SaveTimings)
	r.Put("/weights", h.SaveWeights)
	r.Get("/weights", h.GetWeights)
	r.Put("/catalog", h.SaveCatalog)

	r.Route("/schedule", func(r chi.Router) {
		r.Get("/", h.ListSchedule)
		r.Post("/generate", h.Generate)
		r.Post("/validate", h.Validate)
	})

	r.Post("/exams/generate", h.GenerateExams)

	r.Route("/absences", func(r chi.Router) {
		r.Get("/", h.ListAbsences)
		r.Post("/", h.ReportAbsence)
		r.Post("/{id}/cancel", h.CancelAbsence)
	})

	r.Route("/coverage", func(r chi.Router) {
		r.Post("/uncovered", h.Uncovered)
		r.Post("/recommendations", h.Recommend)
		r.Post("/confirm", h.Confirm)
		r.Post("/auto-assign", h.AutoAssign)
	})

	r.Post("/substitutions/{id}/status", h.UpdateSubstitutionStatus)
	r.Get("/constraints/library", h.Library)
	r.Get("/stats/workload", h.Workload)
}

// decode 解析并校验请求体，空请求体视为空对象
func (h *Handler) decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败").WithDetails(err.Error())
	}
	return h.check(v)
}

// check 结构体校验，错误信息翻译为中文
func (h *Handler) check(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(err, apperrors.CodeInvalidInput, "请求参数无效")
	}
	ve := &apperrors.ValidationErrors{}
	for _, fe := range fieldErrs {
		ve.Add(fe.Namespace(), fe.Translate(h.translator))
	}
	return ve.ToAppError().WithDetails(ve.Error())
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.InvalidInput("id", "无效的ID格式: "+raw)
	}
	return id, nil
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应，非业务错误统一为内部错误
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.CodeInternal, "内部错误")
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("请求失败")
	}
	body := map[string]interface{}{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": appErr.Details,
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	respondJSON(w, appErr.HTTPStatus, body)
}
