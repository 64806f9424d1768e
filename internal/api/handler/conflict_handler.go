package handler

import (
	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/service"
	"expo-engine/backend/pkg/response"
)

// ConflictHandler 活动冲突模块 HTTP 处理器
type ConflictHandler struct {
	conflictSvc service.ConflictService
}

// NewConflictHandler 创建 ConflictHandler
func NewConflictHandler(conflictSvc service.ConflictService) *ConflictHandler {
	return &ConflictHandler{conflictSvc: conflictSvc}
}

// Detect 对展会全部活动执行冲突检测
// POST /api/v1/events/:id/conflicts/detect
func (h *ConflictHandler) Detect(c *gin.Context) {
	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	result, err := h.conflictSvc.DetectActivityConflicts(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, result)
}

// List 获取展会活动冲突
// GET /api/v1/events/:id/conflicts?active=true 返回全部活跃冲突，否则按条件分页
func (h *ConflictHandler) List(c *gin.Context) {
	eventID := c.Param("id")

	if c.Query("active") == "true" {
		list, err := h.conflictSvc.ListActive(c.Request.Context(), eventID)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		response.OK(c, gin.H{"list": list})
		return
	}

	var req dto.ConflictListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, total, err := h.conflictSvc.ListByEvent(c.Request.Context(), eventID, &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Summary 展会冲突汇总
// GET /api/v1/events/:id/conflicts/summary
func (h *ConflictHandler) Summary(c *gin.Context) {
	summary, err := h.conflictSvc.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, summary)
}

// Get 获取冲突详情
// GET /api/v1/conflicts/:id
func (h *ConflictHandler) Get(c *gin.Context) {
	conflict, err := h.conflictSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, conflict)
}

// Transition 执行状态机操作
// POST /api/v1/conflicts/:id/transitions
func (h *ConflictHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	conflict, err := h.conflictSvc.Transition(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, conflict)
}

// Sweep 立即执行一次超期巡检
// POST /api/v1/conflicts/sweep
func (h *ConflictHandler) Sweep(c *gin.Context) {
	result, err := h.conflictSvc.EscalateExpired(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, result)
}
