package dto

import "expo-engine/backend/internal/engine"

// ── 排程模块 DTO ──

// GenerateSlotsRequest 时间段生成请求；未填写的数值项取配置默认值
type GenerateSlotsRequest struct {
	StartDate       string   `json:"start_date"       binding:"required"`
	EndDate         string   `json:"end_date"         binding:"required"`
	SlotMinutes     *int     `json:"slot_minutes"     binding:"omitempty,min=5,max=1440"`
	DayStartHour    *int     `json:"day_start_hour"   binding:"omitempty,min=0,max=23"`
	DayEndHour      *int     `json:"day_end_hour"     binding:"omitempty,min=1,max=24"`
	AllowedWeekdays []int    `json:"allowed_weekdays" binding:"omitempty,dive,min=0,max=6"`
	ExcludedDates   []string `json:"excluded_dates"`
}

// AutoScheduleRequest 自动排程请求
// 活动由 ActivityIDs 指定，时间段按 Slots 参数现场生成
type AutoScheduleRequest struct {
	ActivityIDs    []string             `json:"activity_ids"     binding:"required,min=1,dive,required"`
	Slots          GenerateSlotsRequest `json:"slots"            binding:"required"`
	PriorityByType map[string]int       `json:"priority_by_type"`
	MarginMinutes  *int                 `json:"margin_minutes"   binding:"omitempty,min=0,max=240"`
	DryRun         bool                 `json:"dry_run"`
}

// ── 响应 ──

// AutoScheduleResponse 自动排程结果
type AutoScheduleResponse struct {
	EventID     string             `json:"event_id"`
	Scheduled   []engine.Placement `json:"scheduled"`
	Unscheduled []engine.ItemError `json:"unscheduled"`
	Persisted   bool               `json:"persisted"`
	Errors      []engine.ItemError `json:"errors"`
}
