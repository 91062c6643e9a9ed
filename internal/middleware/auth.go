package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/auth"
	apperrors "github.com/wfunc/lifesim/internal/errors"
)

const (
	// ContextOperator 上下文中的调试操作员
	ContextOperator = "operator"
	// ContextToken 上下文中的原始令牌
	ContextToken = "token"
)

// TokenValidator 校验调试令牌
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// DebugAuth 调试接口JWT认证中间件
type DebugAuth struct {
	tokens TokenValidator
}

// NewDebugAuth 创建调试认证中间件
func NewDebugAuth(tokens TokenValidator) *DebugAuth {
	return &DebugAuth{tokens: tokens}
}

// RequireDebug 要求携带有效的调试令牌
func (m *DebugAuth) RequireDebug() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			Abort(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			code := apperrors.ErrTokenInvalid
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				code = apperrors.ErrTokenExpired
			case errors.Is(err, auth.ErrWrongScope):
				code = apperrors.ErrAuthorization
			}
			Abort(c, apperrors.Wrap(err, code))
			return
		}

		c.Set(ContextOperator, claims.Operator)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// Authorization: Bearer <token>
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 浏览器WebSocket无法设置请求头
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetOperator 从上下文获取调试操作员
func GetOperator(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextOperator); exists {
		if op, ok := v.(string); ok {
			return op, true
		}
	}
	return "", false
}
