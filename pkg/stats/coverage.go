package stats

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
)

// CoverageMetrics 排课需求满足情况
type CoverageMetrics struct {
	TotalRequired   int     `json:"total_required"`   // 需要的课次（连堂按一次计）
	Scheduled       int     `json:"scheduled"`        // 已排课次
	OverallCoverage float64 `json:"overall_coverage"` // 百分比

	BatchCoverage map[uuid.UUID]float64 `json:"batch_coverage"`
	Shortfalls    []Shortfall           `json:"shortfalls"`
}

// Shortfall 未排满的需求
type Shortfall struct {
	RequirementID uuid.UUID `json:"requirement_id"`
	BatchID       uuid.UUID `json:"batch_id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	Required      int       `json:"required"`
	Scheduled     int       `json:"scheduled"`
}

// CoverageAnalyzer 需求覆盖分析器
type CoverageAnalyzer struct{}

// NewCoverageAnalyzer 创建需求覆盖分析器
func NewCoverageAnalyzer() *CoverageAnalyzer {
	return &CoverageAnalyzer{}
}

// Analyze 对比需求和课表，统计每个需求已排的次数
func (c *CoverageAnalyzer) Analyze(reqs []*model.Requirement, slots []*model.ScheduleSlot) *CoverageMetrics {
	metrics := &CoverageMetrics{
		BatchCoverage: make(map[uuid.UUID]float64),
		Shortfalls:    make([]Shortfall, 0),
	}
	if len(reqs) == 0 {
		metrics.OverallCoverage = 100
		return metrics
	}

	type pair struct{ batch, subject uuid.UUID }
	theory := make(map[pair]int)
	blocks := make(map[pair]map[uuid.UUID]bool)
	for _, s := range slots {
		if s.IsBreak() {
			continue
		}
		k := pair{s.BatchID, s.SubjectID}
		if s.Kind == model.SlotLab {
			if blocks[k] == nil {
				blocks[k] = make(map[uuid.UUID]bool)
			}
			id := s.BlockID
			if id == uuid.Nil {
				id = s.ID
			}
			blocks[k][id] = true
			continue
		}
		theory[k]++
	}

	batchRequired := make(map[uuid.UUID]int)
	batchScheduled := make(map[uuid.UUID]int)
	for _, r := range reqs {
		k := pair{r.BatchID, r.SubjectID}
		done := theory[k]
		if r.IsLab() {
			done = len(blocks[k])
		}
		if done > r.WeeklyOccurrences {
			done = r.WeeklyOccurrences
		}

		metrics.TotalRequired += r.WeeklyOccurrences
		metrics.Scheduled += done
		batchRequired[r.BatchID] += r.WeeklyOccurrences
		batchScheduled[r.BatchID] += done

		if done < r.WeeklyOccurrences {
			metrics.Shortfalls = append(metrics.Shortfalls, Shortfall{
				RequirementID: r.ID,
				BatchID:       r.BatchID,
				SubjectID:     r.SubjectID,
				Required:      r.WeeklyOccurrences,
				Scheduled:     done,
			})
		}
	}

	metrics.OverallCoverage = percent(metrics.Scheduled, metrics.TotalRequired)
	for batch, required := range batchRequired {
		metrics.BatchCoverage[batch] = percent(batchScheduled[batch], required)
	}
	sort.Slice(metrics.Shortfalls, func(i, j int) bool {
		return metrics.Shortfalls[i].RequirementID.String() < metrics.Shortfalls[j].RequirementID.String()
	})
	return metrics
}

func percent(n, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(n) / float64(total) * 100
}
