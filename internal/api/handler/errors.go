package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/service"
	pkgerrors "expo-engine/backend/pkg/errors"
	"expo-engine/backend/pkg/response"
)

// 错误码
const (
	codeBadRequest          = 10001
	codeUnauthenticated     = 10002
	codeNotFound            = 40400
	codeInvalidTransition   = 40901
	codeOptimisticLock      = 40902
	codeDetectionInProgress = 40903
	codeConstraintViolation = 42201
	codeComputation         = 42202
)

// handleServiceError 按错误分类映射 HTTP 状态码
// 具体业务哨兵优先于分类判断；未归类错误一律 500，不向外暴露细节
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDetectionInProgress):
		response.Conflict(c, codeDetectionInProgress, err.Error())
	case errors.Is(err, pkgerrors.ErrNotFound),
		errors.Is(err, service.ErrExportNoConflicts),
		errors.Is(err, service.ErrExportNoSchedule):
		response.NotFound(c, codeNotFound, err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, codeOptimisticLock, "记录已被他人修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		response.Conflict(c, codeInvalidTransition, err.Error())
	case errors.Is(err, pkgerrors.ErrConstraintViolation):
		response.Unprocessable(c, codeConstraintViolation, err.Error())
	case errors.Is(err, pkgerrors.ErrComputation):
		response.Unprocessable(c, codeComputation, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}

func badRequest(c *gin.Context, err error) {
	response.ErrorWithDetails(c, http.StatusBadRequest, codeBadRequest, "参数校验失败", err.Error())
}
