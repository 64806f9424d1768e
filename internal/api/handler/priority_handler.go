package handler

import (
	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/service"
	"expo-engine/backend/pkg/response"
)

// PriorityHandler 企业优先级评分 HTTP 处理器
type PriorityHandler struct {
	prioritySvc service.PriorityService
}

// NewPriorityHandler 创建 PriorityHandler
func NewPriorityHandler(prioritySvc service.PriorityService) *PriorityHandler {
	return &PriorityHandler{prioritySvc: prioritySvc}
}

// GetScore 计算企业当前评分
// GET /api/v1/companies/:id/priority-score
func (h *PriorityHandler) GetScore(c *gin.Context) {
	score, err := h.prioritySvc.ComputePriorityScore(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, score)
}

// Refresh 重算展会下竞争中申请的评分
// POST /api/v1/events/:id/priority-scores/refresh
func (h *PriorityHandler) Refresh(c *gin.Context) {
	result, err := h.prioritySvc.RefreshRequestScores(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, result)
}
