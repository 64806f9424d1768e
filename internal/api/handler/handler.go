package handler

import "expo-engine/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Conflict      *ConflictHandler
	StandConflict *StandConflictHandler
	Scheduling    *SchedulingHandler
	Priority      *PriorityHandler
	Export        *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Conflict:      NewConflictHandler(svc.Conflict),
		StandConflict: NewStandConflictHandler(svc.StandConflict),
		Scheduling:    NewSchedulingHandler(svc.Scheduling),
		Priority:      NewPriorityHandler(svc.Priority),
		Export:        NewExportHandler(svc.Export),
	}
}
