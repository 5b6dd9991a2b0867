package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"polybridge.com/internal/session"
)

// bearerToken 取会话 token：优先 Authorization: Bearer，兜底 query 参数
func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("session_token")
}

// authedUser 校验会话并返回 userID
func authedUser(c *gin.Context, v session.Validator) (int64, error) {
	s, err := v.Validate(c.Request.Context(), bearerToken(c))
	if err != nil {
		return 0, err
	}
	return s.UserID, nil
}
