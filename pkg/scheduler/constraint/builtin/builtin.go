package builtin

import (
	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint"
)

// RegisterDefaults 注册排课使用的全部约束
// 硬约束权重固定为 100，软约束权重来自管理端配置
func RegisterDefaults(manager *constraint.Manager, weights model.Weights) {
	w := weights.Clamp()

	// 硬约束
	manager.Register(NewFacultyClashConstraint())
	manager.Register(NewRoomClashConstraint())
	manager.Register(NewBatchClashConstraint())
	manager.Register(NewLabBlockConstraint())
	manager.Register(NewFacultyWorkloadConstraint())
	manager.Register(NewFacultyAvailabilityConstraint())

	// 软约束
	manager.Register(NewWorkloadBalanceConstraint(w.FacultyWorkload))
	manager.Register(NewPreferredSlotConstraint(w.PreferredSlot))
	manager.Register(NewStudentGapConstraint(w.StudentGap))
	manager.Register(NewLabSpacingConstraint(w.LabSpacing))
	manager.Register(NewSubjectSpreadConstraint(w.SubjectSpread))
}

// NewDefaultManager 创建已注册默认约束的管理器
func NewDefaultManager(weights model.Weights) *constraint.Manager {
	manager := constraint.NewManager()
	RegisterDefaults(manager, weights)
	return manager
}

// Definition 约束说明
type Definition struct {
	Type        constraint.Type     `json:"type"`
	Name        string              `json:"name"`
	Category    constraint.Category `json:"category"`
	Description string              `json:"description"`
	WeightKey   string              `json:"weight_key,omitempty"` // 对应 Weights 字段
}

// Catalogue 返回约束库说明，供管理端展示
func Catalogue() []Definition {
	return []Definition{
		{Type: constraint.TypeFacultyClash, Name: "教师冲突", Category: constraint.CategoryHard,
			Description: "同一教师同一时段只能上一节课"},
		{Type: constraint.TypeRoomClash, Name: "教室冲突", Category: constraint.CategoryHard,
			Description: "同一教室同一时段只能安排一节课"},
		{Type: constraint.TypeBatchClash, Name: "教学班冲突", Category: constraint.CategoryHard,
			Description: "同一教学班同一时段只能上一节课"},
		{Type: constraint.TypeLabBlock, Name: "实验课连堂", Category: constraint.CategoryHard,
			Description: "实验课占用同一天同一教室同一教师的连续节次，不跨午休"},
		{Type: constraint.TypeFacultyWorkload, Name: "教师工作量上限", Category: constraint.CategoryHard,
			Description: "不超过教师的每日课时、每周课时和连续授课上限"},
		{Type: constraint.TypeFacultyAvailability, Name: "教师可用性", Category: constraint.CategoryHard,
			Description: "局部重排时，被标记的教师当天不再排课"},
		{Type: constraint.TypeWorkloadBalance, Name: "工作量均衡", Category: constraint.CategorySoft,
			Description: "教师之间的周课时尽量接近", WeightKey: "faculty_workload"},
		{Type: constraint.TypePreferredSlot, Name: "偏好时段", Category: constraint.CategorySoft,
			Description: "尽量把课安排在教师偏好的时段", WeightKey: "preferred_slot"},
		{Type: constraint.TypeStudentGap, Name: "学生空堂", Category: constraint.CategorySoft,
			Description: "教学班每天首末节之间尽量没有空堂", WeightKey: "student_gap"},
		{Type: constraint.TypeLabSpacing, Name: "实验课间隔", Category: constraint.CategorySoft,
			Description: "实验课不紧跟连续理论课，且尽量分散在不同天", WeightKey: "lab_spacing"},
		{Type: constraint.TypeSubjectSpread, Name: "课程分散", Category: constraint.CategorySoft,
			Description: "同一课程尽量不在同一天重复", WeightKey: "subject_spread"},
	}
}
