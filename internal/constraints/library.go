// Package constraints 约束库说明
package constraints

import (
	"strconv"

	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
)

// ConstraintParam 约束参数定义
type ConstraintParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // int, bool
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
	Current     string `json:"current,omitempty"`
	Min         string `json:"min,omitempty"`
	Max         string `json:"max,omitempty"`
	Scope       string `json:"scope"` // engine 引擎配置, faculty 教师配置, subject 课程配置
}

// ConstraintDefinition 约束定义
type ConstraintDefinition struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Type        string            `json:"type"` // hard 硬约束, soft 软约束
	Description string            `json:"description"`
	Params      []ConstraintParam `json:"params"`
}

// LibraryResponse 约束库响应
type LibraryResponse struct {
	Library []ConstraintDefinition `json:"library"`
	Weights model.Weights          `json:"weights"`
}

// GetLibrary 获取完整的约束库，软约束附带当前权重
func GetLibrary(current model.Weights) *LibraryResponse {
	defaults := weightMap(model.DefaultWeights())
	now := weightMap(current.Clamp())

	var library []ConstraintDefinition
	for _, d := range builtin.Catalogue() {
		def := ConstraintDefinition{
			Name:        string(d.Type),
			DisplayName: d.Name,
			Type:        string(d.Category),
			Description: d.Description,
			Params:      paramsFor(d.Type),
		}
		if d.WeightKey != "" {
			def.Params = append(def.Params, ConstraintParam{
				Name:        d.WeightKey,
				Type:        "int",
				Description: "权重",
				Default:     strconv.Itoa(defaults[d.WeightKey]),
				Current:     strconv.Itoa(now[d.WeightKey]),
				Min:         "0",
				Max:         "100",
				Scope:       "engine",
			})
		}
		library = append(library, def)
	}
	return &LibraryResponse{Library: library, Weights: current.Clamp()}
}

func weightMap(w model.Weights) map[string]int {
	return map[string]int{
		"faculty_workload": w.FacultyWorkload,
		"preferred_slot":   w.PreferredSlot,
		"student_gap":      w.StudentGap,
		"lab_spacing":      w.LabSpacing,
		"subject_spread":   w.SubjectSpread,
	}
}

// paramsFor 硬约束的可配置参数
func paramsFor(t constraint.Type) []ConstraintParam {
	wl := model.DefaultWorkloadConfig()
	switch t {
	case constraint.TypeFacultyWorkload:
		return []ConstraintParam{
			{Name: "max_hours_per_day", Type: "int", Description: "每日最多课时(小时)", Default: strconv.Itoa(wl.MaxHoursPerDay), Min: "1", Max: "12", Scope: "faculty"},
			{Name: "max_hours_per_week", Type: "int", Description: "每周最多课时(小时)", Default: strconv.Itoa(wl.MaxHoursPerWeek), Min: "1", Max: "60", Scope: "faculty"},
			{Name: "max_consecutive_hours", Type: "int", Description: "最多连续授课(小时)", Default: strconv.Itoa(wl.MaxConsecutiveHours), Min: "1", Max: "8", Scope: "faculty"},
		}
	case constraint.TypeLabBlock:
		return []ConstraintParam{
			{Name: "block_size", Type: "int", Description: "实验课连堂节数，0 按实验课时长计算", Default: "0", Min: "0", Scope: "subject"},
		}
	case constraint.TypeFacultyAvailability:
		return []ConstraintParam{
			{Name: "stale", Type: "object", Description: "局部重排时标记的教师和星期", Scope: "engine"},
		}
	}
	return []ConstraintParam{}
}
