package errors

import "strings"

// ValidationError 单个字段的校验错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors 一次请求的全部校验错误
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	parts := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		parts[i] = e.Field + " " + e.Message
	}
	return "验证失败: " + strings.Join(parts, "; ")
}

// Add 记录一个错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// HasErrors 是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转为 VALIDATION_FAILED，字段名到错误信息放在 Fields 中
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeValidationFail, "验证失败")
	for _, e := range ve.Errors {
		err.WithField(e.Field, e.Message)
	}
	return err
}
