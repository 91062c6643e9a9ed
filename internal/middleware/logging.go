package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/logger"
	"go.uber.org/zap"
)

const (
	// HeaderRequestID 请求ID头
	HeaderRequestID = "X-Request-ID"
	// ContextRequestID 上下文中的请求ID
	ContextRequestID = "request_id"
)

// RequestID 为每个请求分配ID，沿用客户端传入的值
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(ContextRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}

// RequestLogger 记录请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// Recovery 捕获panic并返回统一错误响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, debug.Stack())
				Abort(c, apperrors.New(apperrors.ErrUnknown, "服务器内部错误"))
			}
		}()
		c.Next()
	}
}

// Abort 以AppError中止请求，非AppError按500处理
func Abort(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	// 调用栈只写日志不返回客户端
	public := *appErr
	public.Stack = nil
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		logger.LogError(err, "request failed", zap.String("path", c.Request.URL.Path))
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(&public, GetRequestID(c)))
}
