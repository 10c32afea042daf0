package constraints

import (
	"testing"

	"github.com/kebiao/kebiao/pkg/model"
	"github.com/kebiao/kebiao/pkg/scheduler/constraint/builtin"
)

func TestGetLibrary(t *testing.T) {
	w := model.DefaultWeights()
	w.StudentGap = 120
	lib := GetLibrary(w)

	if len(lib.Library) != len(builtin.Catalogue()) {
		t.Fatalf("约束数 = %d, 期望 %d", len(lib.Library), len(builtin.Catalogue()))
	}
	if lib.Weights.StudentGap != 100 {
		t.Errorf("权重应限制在 100 以内, got %d", lib.Weights.StudentGap)
	}

	var found bool
	for _, d := range lib.Library {
		if d.Name != "student_gap" {
			continue
		}
		found = true
		if d.Type != "soft" {
			t.Errorf("student_gap 类型 = %s", d.Type)
		}
		last := d.Params[len(d.Params)-1]
		if last.Current != "100" || last.Default != "50" {
			t.Errorf("权重参数 = %+v", last)
		}
	}
	if !found {
		t.Error("缺少 student_gap")
	}
}

func TestGetLibrary_WorkloadParams(t *testing.T) {
	lib := GetLibrary(model.DefaultWeights())
	for _, d := range lib.Library {
		if d.Name == "faculty_workload" {
			if len(d.Params) != 3 {
				t.Errorf("工作量参数数 = %d", len(d.Params))
			}
			return
		}
	}
	t.Error("缺少工作量上限约束")
}
