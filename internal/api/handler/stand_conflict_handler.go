package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/dto"
	"expo-engine/backend/internal/service"
	"expo-engine/backend/pkg/response"
)

// StandConflictHandler 展位冲突模块 HTTP 处理器
type StandConflictHandler struct {
	standSvc service.StandConflictService
}

// NewStandConflictHandler 创建 StandConflictHandler
func NewStandConflictHandler(standSvc service.StandConflictService) *StandConflictHandler {
	return &StandConflictHandler{standSvc: standSvc}
}

// Candidates 检测展位竞争（不落库）
// GET /api/v1/events/:id/stand-conflicts/candidates
func (h *StandConflictHandler) Candidates(c *gin.Context) {
	result, err := h.standSvc.DetectStandConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, result)
}

// Persist 将某展位的竞争候选登记为冲突
// POST /api/v1/events/:id/stand-conflicts
func (h *StandConflictHandler) Persist(c *gin.Context) {
	var req dto.PersistStandConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	conflict, err := h.standSvc.PersistCandidate(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, conflict)
}

// List 获取展会展位冲突列表
// GET /api/v1/events/:id/stand-conflicts
func (h *StandConflictHandler) List(c *gin.Context) {
	var req dto.StandConflictListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, total, err := h.standSvc.ListByEvent(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// Get 获取展位冲突详情
// GET /api/v1/stand-conflicts/:id
func (h *StandConflictHandler) Get(c *gin.Context) {
	conflict, err := h.standSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, conflict)
}

// Transition 执行状态机操作；resolver 需携带获胜企业
// POST /api/v1/stand-conflicts/:id/transitions
func (h *StandConflictHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	conflict, err := h.standSvc.Transition(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, conflict)
}

// History 获取裁决历史
// GET /api/v1/stand-conflicts/:id/history
func (h *StandConflictHandler) History(c *gin.Context) {
	entries, err := h.standSvc.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": entries})
}

// Revert 撤销一条裁决历史
// POST /api/v1/history/:seq/revert
func (h *StandConflictHandler) Revert(c *gin.Context) {
	seq, err := strconv.ParseInt(c.Param("seq"), 10, 64)
	if err != nil || seq <= 0 {
		response.BadRequest(c, codeBadRequest, "历史序号无效")
		return
	}

	var req dto.RevertHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	actorID, ok := MustGetActorID(c)
	if !ok {
		return
	}

	entry, err := h.standSvc.RevertEntry(c.Request.Context(), seq, &req, actorID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.Created(c, entry)
}
