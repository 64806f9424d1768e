package handler

import (
	"github.com/gin-gonic/gin"

	"expo-engine/backend/internal/api/middleware"
	"expo-engine/backend/pkg/response"
)

// MustGetActorID 取出认证中间件注入的操作人 ID
// 缺失时写入 401，调用方应在 ok=false 时直接 return
// 所有写操作都以该 ID 记录审计字段与历史条目
func MustGetActorID(c *gin.Context) (string, bool) {
	if actorID := c.GetString(middleware.ActorIDKey); actorID != "" {
		return actorID, true
	}
	response.Unauthorized(c, codeUnauthenticated, "未认证")
	return "", false
}
