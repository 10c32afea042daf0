package solver

import (
	"sort"

	"github.com/google/uuid"
	"github.com/kebiao/kebiao/pkg/model"
)

// ResourcePool 某个需求可用的教师和教室
type ResourcePool struct {
	Faculty []uuid.UUID `json:"faculty"`
	Rooms   []uuid.UUID `json:"rooms"`
}

// Empty 是否无可用资源
func (p *ResourcePool) Empty() bool {
	return p == nil || len(p.Faculty) == 0 || len(p.Rooms) == 0
}

// Size 候选 (教师, 教室) 组合数
func (p *ResourcePool) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Faculty) * len(p.Rooms)
}

// Candidates 展开为候选组合
func (p *ResourcePool) Candidates() []model.ResourceCandidate {
	if p.Empty() {
		return nil
	}
	out := make([]model.ResourceCandidate, 0, p.Size())
	for _, f := range p.Faculty {
		for _, r := range p.Rooms {
			out = append(out, model.ResourceCandidate{FacultyID: f, RoomID: r})
		}
	}
	return out
}

// Has 教师或教室是否在资源池中
func (p *ResourcePool) Has(facultyID, roomID uuid.UUID) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Faculty {
		if f == facultyID {
			return true
		}
	}
	for _, r := range p.Rooms {
		if r == roomID {
			return true
		}
	}
	return false
}

// BuildPools 按教师授课能力和教室类型/容量筛选每个需求的资源池
// 结果按 ID 排序，保证搜索顺序稳定
func BuildPools(reqs []*model.Requirement, faculty []*model.Faculty, rooms []*model.Room, batches []*model.Batch) map[uuid.UUID]*ResourcePool {
	sizes := make(map[uuid.UUID]int, len(batches))
	for _, b := range batches {
		sizes[b.ID] = b.Size
	}

	pools := make(map[uuid.UUID]*ResourcePool, len(reqs))
	for _, req := range reqs {
		pool := &ResourcePool{}
		for _, f := range faculty {
			if f.CanTeach(req.SubjectID) {
				pool.Faculty = append(pool.Faculty, f.ID)
			}
		}
		for _, r := range rooms {
			if r.Suits(req.SubjectType, sizes[req.BatchID]) {
				pool.Rooms = append(pool.Rooms, r.ID)
			}
		}
		sortIDs(pool.Faculty)
		sortIDs(pool.Rooms)
		pools[req.ID] = pool
	}
	return pools
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
