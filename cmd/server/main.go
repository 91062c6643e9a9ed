package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/api"
	"github.com/wfunc/lifesim/internal/auth"
	"github.com/wfunc/lifesim/internal/config"
	"github.com/wfunc/lifesim/internal/database"
	"github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/game"
	"github.com/wfunc/lifesim/internal/logger"
	"github.com/wfunc/lifesim/internal/observability"
	"github.com/wfunc/lifesim/internal/optimistic"
	"github.com/wfunc/lifesim/internal/persistence"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
	"github.com/wfunc/lifesim/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	tracing      *observability.TracerProvider
	stores       *store.Set
	orchestrator *game.Orchestrator
	autoSaver    *game.AutoSaver
	optimistic   *optimistic.Manager
	hub          *websocket.Hub
	httpServer   *http.Server
	detachHub    func()

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath   = flag.String("config", "", "配置文件路径")
		showVersion  = flag.Bool("version", false, "显示版本信息")
		showHelp     = flag.Bool("help", false, "显示帮助信息")
		hashPassword = flag.String("hash-password", "", "生成 debug.password_hash 后退出")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if *hashPassword != "" {
		hash, err := auth.HashSecret(*hashPassword)
		if err != nil {
			fmt.Printf("生成口令哈希失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
		logger.Cleanup()
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动生活模拟状态服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	s.startServices()

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.httpServer.Addr),
		zap.Bool("auto_save", s.autoSaver.Enabled()),
		zap.Bool("debug", s.cfg.Debug.Enabled),
	)
	return nil
}

// initComponents 按依赖顺序初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	tracing, err := observability.InitTracing(s.ctx, s.cfg.Telemetry)
	if err != nil {
		return err
	}
	s.tracing = tracing

	if err := s.initDatabase(); err != nil {
		return err
	}

	s.stores = store.NewSet(store.WithLogger(logger.GetModuleLogger(logger.ModuleStore)))

	persister := persistence.NewCachePersister(
		persistence.NewMemoryPersister(),
		persistence.NewDatabasePersister(database.GetDB()),
	)
	orchestratorCfg := &game.OrchestratorConfig{
		Stores:    s.stores,
		Persister: persister,
		Logger:    logger.GetModuleLogger(logger.ModuleGame),
		Tracer:    s.tracing.Tracer("lifesim/game"),
	}
	if s.cfg.Game.ArchiveSaves {
		orchestratorCfg.Archives = repository.NewSaveArchiveRepository(database.GetDB())
	}
	s.orchestrator = game.NewOrchestrator(orchestratorCfg)

	if err := s.orchestrator.HydrateAll(s.ctx); err != nil {
		return errors.Wrap(err, errors.ErrInvalidSnapshot, "恢复存储状态失败")
	}

	features := s.cfg.Game.Features
	s.autoSaver = game.NewAutoSaver(&game.AutoSaverConfig{
		Save:     s.orchestrator.PersistAll,
		Debounce: s.cfg.Game.AutoSaveDebounce,
		Enabled:  features.AutoSave,
		Logger:   logger.GetModuleLogger(logger.ModuleGame),
	})
	s.autoSaver.Attach(s.stores.Bus)

	s.optimistic = optimistic.NewManager(
		optimistic.WithDefaults(optimistic.Options{
			RollbackAfter: s.cfg.Game.Optimistic.RollbackAfter,
			PersistAfter:  s.cfg.Game.Optimistic.PersistAfter,
		}),
		optimistic.WithLogger(logger.GetModuleLogger(logger.ModuleOptimistic)),
	)

	s.hub = websocket.NewHub(logger.GetModuleLogger(logger.ModuleWebSocket))

	s.initHTTPServer()

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	logger.Infof("初始化数据库 (%s)...", s.cfg.Database.Driver)

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(database.GetDB()); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initHTTPServer 创建HTTP服务
func (s *Server) initHTTPServer() {
	gin.SetMode(ginMode(s.cfg.Server.Mode))

	var tokens *auth.TokenManager
	if s.cfg.Debug.Enabled {
		tokens = auth.NewTokenManager(s.cfg.Debug.JWTSecret, s.cfg.Debug.TokenExpiry)
	}

	router := api.NewRouter(api.RouterConfig{
		Orchestrator: s.orchestrator,
		Optimistic:   s.optimistic,
		AutoSaver:    s.autoSaver,
		Hub:          s.hub,
		Tokens:       tokens,
		Debug:        s.cfg.Debug,
		Features:     s.cfg.Game.Features,
		DB:           database.GetDB(),
		Logger:       logger.GetModuleLogger(logger.ModuleAPI),
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// ginMode 把运行模式映射为gin模式
func ginMode(mode string) string {
	switch mode {
	case "production", "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// startServices 启动后台服务
func (s *Server) startServices() {
	s.logger.Info("启动服务...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()
	s.detachHub = s.hub.AttachBus(s.stores.Bus)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("所有服务启动完成")
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭：停止接收请求，落盘存储后关闭组件
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("停止接收新请求...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}

	if err := s.drainState(shutdownCtx); err != nil {
		s.logger.Error("关闭前保存状态失败", zap.Error(err))
	}

	if s.detachHub != nil {
		s.detachHub()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents(shutdownCtx)

	logger.Cleanup()
	return nil
}

// drainState 先回滚未确认的乐观更新，再刷新自动保存并完整落盘
// 未确认的状态不会写入存储，下次启动也不会恢复
func (s *Server) drainState(ctx context.Context) error {
	if n := s.optimistic.RollbackAll(); n > 0 {
		s.logger.Warn("关闭时丢弃未确认的乐观更新", zap.Int("count", n))
	}
	s.autoSaver.Flush(ctx)
	s.autoSaver.Stop()
	return s.orchestrator.PersistAll(ctx)
}

// closeComponents 关闭组件
func (s *Server) closeComponents(ctx context.Context) {
	s.logger.Info("关闭组件...")

	if err := s.tracing.Shutdown(ctx); err != nil {
		s.logger.Error("关闭链路追踪失败", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
}

// reloadConfig 热加载只调整日志级别，功能开关保持启动时的值
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg
	previous := logger.Level()
	logger.SetLevel(newCfg.Log.Level)
	s.logger.Info("配置重新加载完成",
		zap.String("previous_level", previous),
		zap.String("log_level", logger.Level()),
	)
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("生活模拟状态服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("生活模拟状态服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  lifesim-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  LIFESIM_DATABASE_DSN     数据库连接串")
	fmt.Println("  LIFESIM_DEBUG_ENABLED    启用调试接口")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  lifesim-server -config=/path/to/config.yaml")
	fmt.Println("  lifesim-server -hash-password='s3cret'")
	fmt.Println("  lifesim-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("lifesim %s | 模式: %s | 数据库: %s | PID: %d\n",
		Version, cfg.Server.Mode, cfg.Database.Driver, os.Getpid())
	fmt.Printf("启动时间: %s\n", time.Now().Format(time.RFC3339))
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
