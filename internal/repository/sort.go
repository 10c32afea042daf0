package repository

import (
	"sort"

	"github.com/kebiao/kebiao/pkg/model"
)

func sortSlots(slots []*model.ScheduleSlot) {
	sort.Slice(slots, func(i, j int) bool { return model.SlotLess(slots[i], slots[j]) })
}
