// Package errors 排课与代课的业务错误
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误码
type Code string

const (
	CodeUnknown       Code = "UNKNOWN"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeTimeout       Code = "TIMEOUT"
	CodeRateLimited   Code = "RATE_LIMITED"

	// 排课
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeInfeasibleInstance   Code = "INFEASIBLE_INSTANCE"
	CodeConstraintViolation  Code = "CONSTRAINT_VIOLATION"
	CodeScheduleConflict     Code = "SCHEDULE_CONFLICT"
	CodeInvalidTimeRange     Code = "INVALID_TIME_RANGE"

	// 代课
	CodeNoEligibleCandidate   Code = "NO_ELIGIBLE_CANDIDATE"
	CodeDuplicateSubstitution Code = "DUPLICATE_SUBSTITUTION"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"

	// 存储与校验
	CodeRepositoryUnavailable Code = "REPOSITORY_UNAVAILABLE"
	CodeValidationFail        Code = "VALIDATION_FAILED"
)

// statusOf 错误码对应的 HTTP 状态，未列出的为 500
var statusOf = map[Code]int{
	CodeInvalidInput:          http.StatusBadRequest,
	CodeValidationFail:        http.StatusBadRequest,
	CodeInvalidTimeRange:      http.StatusBadRequest,
	CodeInvalidConfiguration:  http.StatusBadRequest,
	CodeNotFound:              http.StatusNotFound,
	CodeAlreadyExists:         http.StatusConflict,
	CodeScheduleConflict:      http.StatusConflict,
	CodeDuplicateSubstitution: http.StatusConflict,
	CodeInvalidTransition:     http.StatusConflict,
	CodeInfeasibleInstance:    http.StatusUnprocessableEntity,
	CodeNoEligibleCandidate:   http.StatusUnprocessableEntity,
	CodeConstraintViolation:   http.StatusUnprocessableEntity,
	CodeRateLimited:           http.StatusTooManyRequests,
	CodeRepositoryUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:               http.StatusGatewayTimeout,
}

// StatusOf 返回错误码对应的 HTTP 状态
func StatusOf(code Code) int {
	if status, ok := statusOf[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError 业务错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 错误码相同即视为同一错误，配合 errors.Is 使用
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetails 附加说明
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 附加底层错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithField 附加结构化字段，随响应返回
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建错误
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: StatusOf(code)}
}

// Newf 按格式创建错误
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 用错误码包装底层错误
func Wrap(err error, code Code, message string) *AppError {
	return New(code, message).WithCause(err)
}

// Is 错误链中是否有指定错误码
func Is(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// GetCode 错误码，非业务错误返回 CodeUnknown
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus HTTP 状态码，非业务错误返回 500
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
