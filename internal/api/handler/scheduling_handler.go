package handler

import (
	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/service"
	"expo-engine/backend/pkg/response"
)

// SchedulingHandler 时间段与自动排程 HTTP 处理器
type SchedulingHandler struct {
	schedulingSvc service.SchedulingService
}

// NewSchedulingHandler 创建 SchedulingHandler
func NewSchedulingHandler(schedulingSvc service.SchedulingService) *SchedulingHandler {
	return &SchedulingHandler{schedulingSvc: schedulingSvc}
}

// GenerateSlots 生成候选时间段
// POST /api/v1/events/:id/slots
func (h *SchedulingHandler) GenerateSlots(c *gin.Context) {
	var req dto.GenerateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	set, err := h.schedulingSvc.GenerateSlots(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, set)
}

// AutoSchedule 自动排程
// POST /api/v1/events/:id/auto-schedule
func (h *SchedulingHandler) AutoSchedule(c *gin.Context) {
	var req dto.AutoScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	result, err := h.schedulingSvc.AutoSchedule(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, result)
}
