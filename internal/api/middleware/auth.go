package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"expo-engine/backend/pkg/jwt"
	"expo-engine/backend/pkg/response"
)

// 上下文键
const (
	ActorIDKey = "actor_id"
	RoleKey    = "role"
)

const codeUnauthorized = 10002

// TokenVerifier 校验 Access Token，由 pkg/jwt.Manager 实现
type TokenVerifier interface {
	ParseToken(tokenString string) (*jwt.Claims, error)
}

// JWTAuth 操作人身份中间件
// 引擎不做登录与签发，只校验上游签发的 Access Token 并注入 actor_id 与 role
func JWTAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, codeUnauthorized, "缺少或无效的 Bearer 认证头")
			c.Abort()
			return
		}

		claims, err := verifier.ParseToken(token)
		if err != nil {
			msg := "Token 无效"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token 已过期"
			}
			response.Unauthorized(c, codeUnauthorized, msg)
			c.Abort()
			return
		}

		c.Set(ActorIDKey, claims.ActorID)
		c.Set(RoleKey, claims.Role)

		c.Next()
	}
}

// bearerToken 解析 "Bearer <token>"，scheme 不区分大小写
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RoleAuth 角色权限中间件
// 检查当前操作人是否具有指定角色之一
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		role, exists := c.Get(RoleKey)
		if !exists {
			response.Unauthorized(c, codeUnauthorized, "未认证")
			c.Abort()
			return
		}

		if r, _ := role.(string); !allowed[r] {
			response.Forbidden(c, 10003, "当前角色无权执行该操作")
			c.Abort()
			return
		}

		c.Next()
	}
}
