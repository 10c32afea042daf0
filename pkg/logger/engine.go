package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// EngineLogger 排课与代课引擎的日志
type EngineLogger struct {
	base zerolog.Logger
}

// NewEngineLogger component 区分排课与代课
func NewEngineLogger(component string) *EngineLogger {
	return &EngineLogger{base: Get().With().Str("component", component).Logger()}
}

func (l *EngineLogger) StartGenerate(mode string, batches, units int) {
	l.base.Info().Str("mode", mode).Int("batches", batches).Int("units", units).Msg("开始生成课表")
}

// Backtrack 调试级别，回溯频繁时不刷屏
func (l *EngineLogger) Backtrack(unit, victim string, depth int) {
	l.base.Debug().Str("unit", unit).Str("victim", victim).Int("depth", depth).Msg("回溯撤销排课")
}

func (l *EngineLogger) Unsatisfied(requirement, reason string) {
	l.base.Warn().Str("requirement", requirement).Str("reason", reason).Msg("排课需求无法满足")
}

func (l *EngineLogger) ConstraintViolation(constraint, details string) {
	l.base.Warn().Str("constraint", constraint).Str("details", details).Msg("约束违反")
}

func (l *EngineLogger) GenerateComplete(slots, unsatisfied, backtracks int, took time.Duration) {
	l.base.Info().
		Int("slots", slots).
		Int("unsatisfied", unsatisfied).
		Int("backtracks", backtracks).
		Dur("duration", took).
		Msg("课表生成完成")
}

func (l *EngineLogger) Optimized(moves, before, after int) {
	l.base.Info().Int("moves", moves).Int("penalty_before", before).Int("penalty_after", after).Msg("课表优化完成")
}

func (l *EngineLogger) ExamsGenerated(assigned, unscheduled, sittings int) {
	l.base.Info().Int("assigned", assigned).Int("unscheduled", unscheduled).Int("sittings", sittings).Msg("考试安排完成")
}

func (l *EngineLogger) CoverageComputed(absences, uncovered int) {
	l.base.Info().Int("absences", absences).Int("uncovered", uncovered).Msg("缺课计算完成")
}

func (l *EngineLogger) NoCandidate(slotID, date string) {
	l.base.Warn().Str("slot_id", slotID).Str("date", date).Msg("没有可用的代课教师")
}
