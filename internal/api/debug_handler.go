package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/auth"
	"github.com/wfunc/lifesim/internal/config"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/logger"
	"github.com/wfunc/lifesim/internal/middleware"
	"github.com/wfunc/lifesim/internal/optimistic"
	"github.com/wfunc/lifesim/internal/websocket"
	"go.uber.org/zap"
)

// DebugHandler 调试接口
type DebugHandler struct {
	tokens     *auth.TokenManager
	cfg        config.DebugConfig
	optimistic *optimistic.Manager
	hub        *websocket.Hub
}

// NewDebugHandler 创建调试处理器
func NewDebugHandler(tokens *auth.TokenManager, cfg config.DebugConfig, manager *optimistic.Manager, hub *websocket.Hub) *DebugHandler {
	return &DebugHandler{tokens: tokens, cfg: cfg, optimistic: manager, hub: hub}
}

// tokenRequest 调试登录请求
type tokenRequest struct {
	Operator string `json:"operator" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// IssueToken 校验调试口令并签发令牌
func (h *DebugHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if !bind(c, &req) {
		return
	}

	matched, err := auth.VerifySecret(req.Password, h.cfg.PasswordHash)
	if err != nil || !matched {
		fail(c, apperrors.New(apperrors.ErrAuthentication, "口令错误"))
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Operator)
	if err != nil {
		fail(c, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败"))
		return
	}
	ok(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"token_type": "Bearer",
	})
}

// Pending 未回滚的乐观更新
func (h *DebugHandler) Pending(c *gin.Context) {
	ok(c, gin.H{"updates": h.optimistic.Pending()})
}

// RollbackAll 回滚全部未确认的乐观更新，并通知调试客户端
func (h *DebugHandler) RollbackAll(c *gin.Context) {
	operator, _ := middleware.GetOperator(c)
	body := gin.H{
		"action":      "rollback_all",
		"rolled_back": h.optimistic.RollbackAll(),
		"operator":    operator,
	}
	h.notify(c, body)
	ok(c, body)
}

// Prune 清理已确认的记录
func (h *DebugHandler) Prune(c *gin.Context) {
	operator, _ := middleware.GetOperator(c)
	body := gin.H{"action": "prune", "pruned": h.optimistic.Prune(), "operator": operator}
	h.notify(c, body)
	ok(c, body)
}

// notify 推送失败只记录日志
func (h *DebugHandler) notify(c *gin.Context, payload gin.H) {
	if h.hub == nil {
		return
	}
	if err := h.hub.Broadcast(websocket.MessageTypeNotice, payload); err != nil {
		logger.GetModuleLogger(logger.ModuleAPI).Warn("调试通知发送失败",
			zap.String("request_id", middleware.GetRequestID(c)), zap.Error(err))
	}
}

// WebSocket 存储变更推送
func (h *DebugHandler) WebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
