package errors

// InvalidInput 请求字段无效
func InvalidInput(field, reason string) *AppError {
	return Newf(CodeInvalidInput, "字段 '%s' 无效: %s", field, reason).WithField("field", field)
}

// NotFound 资源不存在
func NotFound(resource, id string) *AppError {
	return Newf(CodeNotFound, "%s '%s' 不存在", resource, id)
}

// InvalidConfiguration 作息、需求或资源配置无效，在任何修改之前返回
func InvalidConfiguration(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidConfiguration, format, args...)
}

// InfeasibleInstance 部分需求无法排入
func InfeasibleInstance(unsatisfied int) *AppError {
	return Newf(CodeInfeasibleInstance, "%d 个排课需求无法满足", unsatisfied).
		WithField("unsatisfied", unsatisfied)
}

// ScheduleConflict 课表存在硬冲突
func ScheduleConflict(details string) *AppError {
	return New(CodeScheduleConflict, "课表存在冲突").WithDetails(details)
}

// NoEligibleCandidate 没有可用的代课教师
func NoEligibleCandidate(slotID, date string) *AppError {
	return Newf(CodeNoEligibleCandidate, "课节 %s 在 %s 没有可用的代课教师", slotID, date)
}

// DuplicateSubstitution 同一 (课节, 日期) 已有批准的代课
func DuplicateSubstitution(slotID, date string) *AppError {
	return Newf(CodeDuplicateSubstitution, "课节 %s 在 %s 已有批准的代课记录", slotID, date)
}

// InvalidTransition 代课状态不允许这样变更
func InvalidTransition(from, to string) *AppError {
	return Newf(CodeInvalidTransition, "不允许从 %s 变更为 %s", from, to)
}

// RepositoryUnavailable 存储读写失败或超时
func RepositoryUnavailable(err error, op string) *AppError {
	return Wrap(err, CodeRepositoryUnavailable, "存储不可用: "+op)
}
