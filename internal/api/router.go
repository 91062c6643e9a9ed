// Package api 生活模拟状态层的HTTP接口
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/auth"
	"github.com/wfunc/lifesim/internal/config"
	"github.com/wfunc/lifesim/internal/game"
	"github.com/wfunc/lifesim/internal/middleware"
	"github.com/wfunc/lifesim/internal/optimistic"
	"github.com/wfunc/lifesim/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Orchestrator *game.Orchestrator
	Optimistic   *optimistic.Manager
	AutoSaver    *game.AutoSaver
	Hub          *websocket.Hub
	Tokens       *auth.TokenManager
	Debug        config.DebugConfig
	Features     config.FeatureFlags
	DB           *gorm.DB // 可为空，健康检查跳过数据库
	Logger       *zap.Logger
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	cfg    RouterConfig
	log    *zap.Logger

	state *StateHandler
	saves *SaveHandler
	batch *BatchHandler
	opt   *OptimisticHandler
	debug *DebugHandler
}

// NewRouter 创建路由器
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Optimistic == nil {
		cfg.Optimistic = optimistic.NewManager(optimistic.WithLogger(cfg.Logger))
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	stores := cfg.Orchestrator.Stores()
	r := &Router{
		engine: engine,
		cfg:    cfg,
		log:    cfg.Logger,
		state:  NewStateHandler(cfg.Orchestrator),
		saves:  NewSaveHandler(cfg.Orchestrator),
		batch:  NewBatchHandler(optimistic.NewBatch(stores, cfg.Logger)),
		opt:    NewOptimisticHandler(cfg.Optimistic, stores),
		debug:  NewDebugHandler(cfg.Tokens, cfg.Debug, cfg.Optimistic, cfg.Hub),
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", r.healthCheck)
		v1.GET("/features", r.features)

		v1.GET("/state", r.state.GetState)
		v1.GET("/player", r.state.GetPlayer)
		v1.GET("/character", r.state.GetCharacter)
		v1.GET("/world", r.state.GetWorld)
		v1.GET("/flags/storylet/:key", r.state.GetStoryletFlag)
		v1.GET("/npcs/:id/relationship", r.state.GetRelationship)
		v1.POST("/npcs/:id/relationship", r.state.UpdateRelationship)
		v1.POST("/character/validate", r.state.ValidateCharacter)
		v1.POST("/character", r.state.CreateCharacter)
		v1.POST("/reset", r.state.Reset)
		v1.GET("/consistency", r.state.Consistency)

		saves := v1.Group("/saves")
		{
			saves.GET("", r.saves.List)
			saves.POST("", r.saves.Save)
			saves.POST("/:id/load", r.saves.Load)
			saves.DELETE("/:id", r.saves.Delete)
		}

		archives := v1.Group("/archives")
		{
			archives.GET("", r.saves.ListArchives)
			archives.POST("/:id/restore", r.saves.RestoreArchive)
		}

		v1.POST("/batch", r.batch.Execute)

		opt := v1.Group("/optimistic")
		{
			opt.POST("/character", r.opt.UpdateCharacter)
			opt.POST("/storylets/:id", r.opt.UpdateStorylet)
			opt.POST("/npcs/:id/relationship", r.opt.UpdateRelationship)
			opt.GET("/:id", r.opt.Get)
			opt.POST("/:id/confirm", r.opt.Confirm)
			opt.POST("/:id/rollback", r.opt.Rollback)
		}
	}

	// 调试接口仅在启用时注册
	if r.cfg.Debug.Enabled && r.cfg.Tokens != nil {
		dbg := r.engine.Group("/debug")
		login := middleware.NewIPRateLimiter(r.cfg.Debug.LoginRate, 3)
		dbg.POST("/token", login.Middleware(), r.debug.IssueToken)

		guarded := dbg.Group("")
		guarded.Use(middleware.NewDebugAuth(r.cfg.Tokens).RequireDebug())
		{
			guarded.GET("/optimistic", r.debug.Pending)
			guarded.POST("/optimistic/rollback-all", r.debug.RollbackAll)
			guarded.POST("/optimistic/prune", r.debug.Prune)
			if r.cfg.Hub != nil {
				guarded.GET("/ws", r.debug.WebSocket)
			}
		}
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	if r.cfg.DB != nil {
		sqlDB, err := r.cfg.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
	}

	resp := gin.H{
		"status":        "healthy",
		"has_character": r.cfg.Orchestrator.Stores().Core.HasCharacter(),
	}
	if r.cfg.Hub != nil {
		resp["debug_clients"] = r.cfg.Hub.OnlineCount()
	}
	if r.cfg.AutoSaver != nil {
		resp["auto_saves"] = r.cfg.AutoSaver.Saves()
	}
	c.JSON(http.StatusOK, resp)
}

// features 返回启动时读取的功能开关
func (r *Router) features(c *gin.Context) {
	ok(c, r.cfg.Features)
}

// Engine 获取Gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Handler 作为http.Handler使用
func (r *Router) Handler() http.Handler {
	return r.engine
}
