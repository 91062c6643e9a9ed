package game

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/logger"
	"github.com/wfunc/lifesim/internal/observability"
	"github.com/wfunc/lifesim/internal/persistence"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "lifesim/game"

// Orchestrator 跨存储的原子操作
type Orchestrator struct {
	stores    *store.Set
	persister persistence.Persister
	archives  repository.SaveArchiveRepository
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	Stores    *store.Set
	Persister persistence.Persister
	// Archives 可选，配置后每次存档都会写入数据库归档
	Archives repository.SaveArchiveRepository
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Now      func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(config *OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		stores:    config.Stores,
		persister: config.Persister,
		archives:  config.Archives,
		logger:    config.Logger,
		tracer:    config.Tracer,
		now:       config.Now,
	}
	if o.stores == nil {
		o.stores = store.NewSet()
	}
	if o.persister == nil {
		o.persister = persistence.NewMemoryPersister()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Stores 存储集合
func (o *Orchestrator) Stores() *store.Set {
	return o.stores
}

// CreateCharacterAtomically 校验输入并一次性提交三个存储的新状态
// 校验失败时返回 ErrValidation，所有存储保持不变
func (o *Orchestrator) CreateCharacterAtomically(ctx context.Context, data CharacterCreationData) (err error) {
	_, span := o.tracer.Start(ctx, "game.create_character",
		trace.WithAttributes(attribute.String("lifesim.background", data.Background)))
	start := o.now()
	defer func() {
		observability.EndSpan(span, err)
		logger.LogTransaction("create_character", o.now().Sub(start), err,
			zap.String("background", data.Background))
	}()

	result := ValidateCharacterCreationData(data)
	if !result.Valid {
		return apperrors.New(apperrors.ErrValidation, result.Errors...)
	}

	next := BuildCharacterView(data, o.now())
	o.stores.Commit("create_character", next)

	o.logger.Info("角色创建完成",
		zap.String("name", next.Core.Character.Name),
		zap.String("background", next.Core.Character.Background))
	return nil
}

// BuildCharacterView 从初始状态计算角色创建后的完整状态，不访问任何存储
func BuildCharacterView(data CharacterCreationData, at time.Time) store.View {
	bg := LookupBackground(data.Background)
	next := store.InitialView()

	next.Core.Character = store.Character{
		Name:             strings.TrimSpace(data.Name),
		Background:       data.Background,
		Attributes:       FinalAttributes(data.Attributes, data.DomainAdjustments),
		DevelopmentStats: copyMap(bg.DevelopmentStats),
	}
	next.Core.Skills = bg.Skills()
	next.Core.World.Day = 1
	next.Core.World.IsTimePaused = false

	next.Narrative.Concerns.Current = copyMap(bg.Concerns)
	next.Narrative.Concerns.History = append(next.Narrative.Concerns.History, store.ConcernEntry{
		Action:    "character_creation",
		Concerns:  copyMap(bg.Concerns),
		Timestamp: at,
	})
	next.Narrative.Flags.Storylet.Set(store.CharacterCreatedFlag, true)
	return next
}

// ResetAllGameState 依次重置 core、narrative、social
func (o *Orchestrator) ResetAllGameState() {
	o.stores.ResetAll()
	o.logger.Info("全部游戏状态已重置")
}
