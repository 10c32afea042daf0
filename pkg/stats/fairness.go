// Package stats 提供课表统计分析功能
package stats

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
)

// FairnessMetrics 教师工作量公平性指标
type FairnessMetrics struct {
	WorkloadGini       float64 `json:"workload_gini"`        // 课时基尼系数 (0=完全公平, 1=完全不公平)
	WorkloadVariance   float64 `json:"workload_variance"`    // 课时方差
	WorkloadStdDev     float64 `json:"workload_std_dev"`     // 课时标准差
	AvgHoursPerFaculty float64 `json:"avg_hours_per_faculty"` // 人均周课时
	MaxHours           float64 `json:"max_hours"`
	MinHours           float64 `json:"min_hours"`
	HoursRange         float64 `json:"hours_range"`

	// 各教学日课时占比
	DayDistribution map[model.Weekday]float64 `json:"day_distribution"`

	FacultyStats []FacultyStat `json:"faculty_stats"`

	// 综合评分 (0-100)
	OverallFairnessScore float64 `json:"overall_fairness_score"`
}

// FacultyStat 单个教师统计
type FacultyStat struct {
	FacultyID     uuid.UUID `json:"faculty_id"`
	FacultyName   string    `json:"faculty_name"`
	TotalHours    float64   `json:"total_hours"`
	SessionCount  int       `json:"session_count"`
	LabSessions   int       `json:"lab_sessions"`
	TeachingDays  int       `json:"teaching_days"`
	MaxDailyHours float64   `json:"max_daily_hours"`
	Substitutions int       `json:"substitutions"` // 已批准的代课次数
	WeeklyLimit   int       `json:"weekly_limit"`
	Utilization   float64   `json:"utilization"` // 占周课时上限的百分比
	Deviation     float64   `json:"deviation"`   // 与平均值的偏差百分比
}

// FairnessAnalyzer 公平性分析器
type FairnessAnalyzer struct{}

// NewFairnessAnalyzer 创建公平性分析器
func NewFairnessAnalyzer() *FairnessAnalyzer {
	return &FairnessAnalyzer{}
}

// Analyze 分析课表中教师工作量的公平性
// 所有传入的教师都参与统计，没有课的教师按 0 课时计
func (f *FairnessAnalyzer) Analyze(slots []*model.ScheduleSlot, faculty []*model.Faculty, subs []*model.Substitution) *FairnessMetrics {
	if len(faculty) == 0 {
		return &FairnessMetrics{
			DayDistribution:      make(map[model.Weekday]float64),
			OverallFairnessScore: 100,
		}
	}

	stats := f.calculateFacultyStats(slots, faculty, subs)

	hours := make([]float64, len(stats))
	for i, s := range stats {
		hours[i] = s.TotalHours
	}

	avg := mean(hours)
	variance := varianceOf(hours, avg)
	stdDev := math.Sqrt(variance)
	maxHours, minHours := valueRange(hours)

	for i := range stats {
		if avg > 0 {
			stats[i].Deviation = (stats[i].TotalHours - avg) / avg * 100
		}
	}

	gini := Gini(hours)
	return &FairnessMetrics{
		WorkloadGini:         gini,
		WorkloadVariance:     variance,
		WorkloadStdDev:       stdDev,
		AvgHoursPerFaculty:   avg,
		MaxHours:             maxHours,
		MinHours:             minHours,
		HoursRange:           maxHours - minHours,
		DayDistribution:      dayDistribution(slots),
		FacultyStats:         stats,
		OverallFairnessScore: overallScore(gini, stdDev, avg),
	}
}

func (f *FairnessAnalyzer) calculateFacultyStats(slots []*model.ScheduleSlot, faculty []*model.Faculty, subs []*model.Substitution) []FacultyStat {
	index := make(map[uuid.UUID]*FacultyStat, len(faculty))
	daily := make(map[uuid.UUID]map[model.Weekday]float64, len(faculty))
	result := make([]FacultyStat, len(faculty))
	for i, fac := range faculty {
		result[i] = FacultyStat{
			FacultyID:   fac.ID,
			FacultyName: fac.Name,
			WeeklyLimit: fac.Workload.WithDefaults().MaxHoursPerWeek,
		}
		index[fac.ID] = &result[i]
		daily[fac.ID] = make(map[model.Weekday]float64)
	}

	for _, s := range slots {
		stat := index[s.FacultyID]
		if stat == nil || s.IsBreak() {
			continue
		}
		h := float64(s.Minutes()) / 60
		stat.TotalHours += h
		stat.SessionCount++
		if s.Kind == model.SlotLab {
			stat.LabSessions++
		}
		daily[s.FacultyID][s.Day] += h
	}
	for _, sub := range subs {
		if stat := index[sub.SubstituteFacultyID]; stat != nil && sub.IsApproved() {
			stat.Substitutions++
		}
	}

	for i := range result {
		stat := &result[i]
		stat.TeachingDays = len(daily[stat.FacultyID])
		for _, h := range daily[stat.FacultyID] {
			if h > stat.MaxDailyHours {
				stat.MaxDailyHours = h
			}
		}
		if stat.WeeklyLimit > 0 {
			stat.Utilization = stat.TotalHours / float64(stat.WeeklyLimit) * 100
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].TotalHours != result[j].TotalHours {
			return result[i].TotalHours > result[j].TotalHours
		}
		return result[i].FacultyName < result[j].FacultyName
	})
	return result
}

func dayDistribution(slots []*model.ScheduleSlot) map[model.Weekday]float64 {
	minutes := make(map[model.Weekday]int)
	total := 0
	for _, s := range slots {
		if s.IsBreak() {
			continue
		}
		minutes[s.Day] += s.Minutes()
		total += s.Minutes()
	}
	out := make(map[model.Weekday]float64, len(minutes))
	if total == 0 {
		return out
	}
	for day, m := range minutes {
		out[day] = float64(m) / float64(total) * 100
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func varianceOf(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - avg
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

func valueRange(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// Gini 计算基尼系数
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}
	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}

// overallScore 基尼系数占 0.7，变异系数占 0.3
func overallScore(gini, stdDev, avg float64) float64 {
	giniScore := (1 - gini) * 100
	cvScore := 100.0
	if avg > 0 {
		cvScore = math.Max(0, 100-stdDev/avg*200)
	}
	score := 0.7*giniScore + 0.3*cvScore
	return math.Max(0, math.Min(100, score))
}
