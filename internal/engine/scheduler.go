package engine

import (
	"sort"
	"time"
)

// 未排入原因
const (
	ReasonNoDuration = "sin_duracion"
	ReasonNoSlot     = "sin_franja_disponible"
)

// DefaultTypePriority 活动类型排程优先级，数值越小越先排
var DefaultTypePriority = map[string]int{
	"keynote":    1,
	"conference": 2,
	"panel":      3,
	"workshop":   4,
	"demo":       5,
	"networking": 6,
	"other":      7,
}

const otherTypePriority = 7

// ScheduleOptions 自动排程参数
// PriorityByType 覆盖默认类型优先级；MarginMinutes 为活动结束后在时间段内预留的缓冲
type ScheduleOptions struct {
	PriorityByType map[string]int `json:"priority_by_type,omitempty"`
	MarginMinutes  int            `json:"margin_minutes" validate:"min=0,max=240"`
}

// Placement 一条排程结果，区间为 [slot.start, slot.start+duration)
type Placement struct {
	ActivityID string    `json:"activity_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	SlotStart  time.Time `json:"slot_start"`
	SlotEnd    time.Time `json:"slot_end"`
}

// ScheduleResult 自动排程结果
type ScheduleResult struct {
	Scheduled   []Placement `json:"scheduled"`
	Unscheduled []ItemError `json:"unscheduled"`
}

func (o ScheduleOptions) typePriority(activityType string) int {
	if p, ok := o.PriorityByType[activityType]; ok {
		return p
	}
	if p, ok := DefaultTypePriority[activityType]; ok {
		return p
	}
	return otherTypePriority
}

// AutoSchedule 贪心首次适配：按类型优先级、参与人数降序、ID 排序后，
// 依次占用第一个足够长且未被使用的可用时间段
func AutoSchedule(activities []Activity, slots []Slot, opts ScheduleOptions) (ScheduleResult, error) {
	if err := ValidateOptions(opts); err != nil {
		return ScheduleResult{}, err
	}

	ordered := make([]Activity, len(activities))
	copy(ordered, activities)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := opts.typePriority(ordered[i].Type), opts.typePriority(ordered[j].Type)
		if pi != pj {
			return pi < pj
		}
		if ordered[i].Participants != ordered[j].Participants {
			return ordered[i].Participants > ordered[j].Participants
		}
		return ordered[i].ID < ordered[j].ID
	})

	free := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available && s.Start.Before(s.End) {
			free = append(free, s)
		}
	}
	sort.SliceStable(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })
	used := make([]bool, len(free))

	result := ScheduleResult{Scheduled: make([]Placement, 0), Unscheduled: make([]ItemError, 0)}
	placed := make([]TimeRange, 0, len(ordered))

	for _, a := range ordered {
		duration := a.DurationMinutes
		if duration <= 0 {
			duration = a.RequiredMinutes()
		}
		if duration <= 0 {
			result.Unscheduled = append(result.Unscheduled, ItemError{ItemID: a.ID, Reason: ReasonNoDuration})
			continue
		}
		need := duration + opts.MarginMinutes

		found := false
		for i, s := range free {
			if used[i] || s.Minutes() < need {
				continue
			}
			candidate := TimeRange{Start: s.Start, End: s.Start.Add(time.Duration(duration) * time.Minute)}
			if overlapsAny(candidate, placed) {
				continue
			}
			used[i] = true
			placed = append(placed, candidate)
			result.Scheduled = append(result.Scheduled, Placement{
				ActivityID: a.ID,
				Start:      candidate.Start,
				End:        candidate.End,
				SlotStart:  s.Start,
				SlotEnd:    s.End,
			})
			found = true
			break
		}
		if !found {
			result.Unscheduled = append(result.Unscheduled, ItemError{ItemID: a.ID, Reason: ReasonNoSlot})
		}
	}

	return result, nil
}

func overlapsAny(r TimeRange, ranges []TimeRange) bool {
	for _, o := range ranges {
		if r.Overlaps(o) {
			return true
		}
	}
	return false
}
