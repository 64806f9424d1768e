package engine

import (
	"fmt"
	"sort"
	"time"

	pkgerrors "expo-engine/backend/pkg/errors"
)

// DateLayout 日期参数格式
const DateLayout = "2006-01-02"

// maxSlotDays 单次生成的最大天数
const maxSlotDays = 366

// SlotOptions 时间段生成参数；AllowedWeekdays 为空表示每天都可用（0=周日）
type SlotOptions struct {
	StartDate       string   `json:"start_date" validate:"required"`
	EndDate         string   `json:"end_date" validate:"required"`
	SlotMinutes     int      `json:"slot_minutes" validate:"min=5,max=1440"`
	DayStartHour    int      `json:"day_start_hour" validate:"min=0,max=23"`
	DayEndHour      int      `json:"day_end_hour" validate:"min=1,max=24,gtfield=DayStartHour"`
	AllowedWeekdays []int    `json:"allowed_weekdays,omitempty" validate:"omitempty,dive,min=0,max=6"`
	ExcludedDates   []string `json:"excluded_dates,omitempty"`
}

// Slot 一个候选时间段，区间左闭右开
type Slot struct {
	Date      string    `json:"date"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Minutes 时间段长度
func (s Slot) Minutes() int {
	return TimeRange{Start: s.Start, End: s.End}.Minutes()
}

// SlotSet 时间段生成结果
type SlotSet struct {
	EventID   string      `json:"event_id"`
	Total     int         `json:"total"`
	Available int         `json:"available"`
	Occupied  int         `json:"occupied"`
	Slots     []Slot      `json:"slots"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// AvailableSlots 按时间顺序返回未被占用的时间段
func (s SlotSet) AvailableSlots() []Slot {
	out := make([]Slot, 0, s.Available)
	for _, slot := range s.Slots {
		if slot.Available {
			out = append(out, slot)
		}
	}
	return out
}

// GenerateSlots 在 [start_date, end_date] 的允许日期内按固定步长切分时间段
// 时间段必须完整落在 [day_start, day_end) 内；与 booked 中任一区间重叠的标记为已占用
func GenerateSlots(eventID string, opts SlotOptions, booked []TimeRange, loc *time.Location) (SlotSet, error) {
	if err := ValidateOptions(opts); err != nil {
		return SlotSet{}, err
	}
	if loc == nil {
		loc = time.UTC
	}

	startDate, err := time.ParseInLocation(DateLayout, opts.StartDate, loc)
	if err != nil {
		return SlotSet{}, fmt.Errorf("%w: 开始日期 %q 格式错误", pkgerrors.ErrComputation, opts.StartDate)
	}
	endDate, err := time.ParseInLocation(DateLayout, opts.EndDate, loc)
	if err != nil {
		return SlotSet{}, fmt.Errorf("%w: 结束日期 %q 格式错误", pkgerrors.ErrComputation, opts.EndDate)
	}
	if endDate.Before(startDate) {
		return SlotSet{}, fmt.Errorf("%w: 结束日期早于开始日期", pkgerrors.ErrComputation)
	}
	if days := int(endDate.Sub(startDate).Hours()/24) + 1; days > maxSlotDays {
		return SlotSet{}, fmt.Errorf("%w: 日期跨度 %d 天超过上限 %d 天", pkgerrors.ErrConstraintViolation, days, maxSlotDays)
	}

	set := SlotSet{EventID: eventID, Slots: make([]Slot, 0)}

	excluded := make(map[string]bool, len(opts.ExcludedDates))
	for _, raw := range opts.ExcludedDates {
		d, err := time.ParseInLocation(DateLayout, raw, loc)
		if err != nil {
			set.Errors = append(set.Errors, ItemError{ItemID: raw, Reason: "排除日期格式错误"})
			continue
		}
		excluded[d.Format(DateLayout)] = true
	}

	allowed := make(map[time.Weekday]bool, len(opts.AllowedWeekdays))
	for _, wd := range opts.AllowedWeekdays {
		allowed[time.Weekday(wd)] = true
	}

	ranges := make([]TimeRange, len(booked))
	copy(ranges, booked)
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })

	step := time.Duration(opts.SlotMinutes) * time.Minute
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)
		if excluded[date] {
			continue
		}
		if len(allowed) > 0 && !allowed[day.Weekday()] {
			continue
		}

		dayStart := time.Date(day.Year(), day.Month(), day.Day(), opts.DayStartHour, 0, 0, 0, loc)
		dayEnd := time.Date(day.Year(), day.Month(), day.Day(), opts.DayEndHour, 0, 0, 0, loc)

		for start := dayStart; !start.Add(step).After(dayEnd); start = start.Add(step) {
			slot := Slot{Date: date, Start: start, End: start.Add(step), Available: true}
			for _, r := range ranges {
				if !r.Start.Before(slot.End) {
					break
				}
				if r.Overlaps(TimeRange{Start: slot.Start, End: slot.End}) {
					slot.Available = false
					break
				}
			}
			set.Slots = append(set.Slots, slot)
			set.Total++
			if slot.Available {
				set.Available++
			} else {
				set.Occupied++
			}
		}
	}

	return set, nil
}
