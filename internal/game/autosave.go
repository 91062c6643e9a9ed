package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/lifesim/internal/store"
	"go.uber.org/zap"
)

// DefaultAutoSaveDebounce 默认防抖窗口
const DefaultAutoSaveDebounce = 100 * time.Millisecond

// AutoSaver 防抖自动保存
// 静默窗口内的多次触发合并为一次保存
type AutoSaver struct {
	save     func(ctx context.Context) error
	debounce time.Duration
	enabled  bool
	logger   *zap.Logger

	mu          sync.Mutex
	timer       *time.Timer
	gen         uint64 // 每次重新计时递增，旧定时器据此识别自己已被取代
	stopped     bool
	unsubscribe func()

	triggers atomic.Int64
	saves    atomic.Int64
}

// AutoSaverConfig 自动保存配置
type AutoSaverConfig struct {
	Save     func(ctx context.Context) error
	Debounce time.Duration
	Enabled  bool
	Logger   *zap.Logger
}

// NewAutoSaver 创建自动保存器
func NewAutoSaver(config *AutoSaverConfig) *AutoSaver {
	a := &AutoSaver{
		save:     config.Save,
		debounce: config.Debounce,
		enabled:  config.Enabled,
		logger:   config.Logger,
	}
	if a.debounce <= 0 {
		a.debounce = DefaultAutoSaveDebounce
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Attach 订阅存储变更事件，每个事件触发一次
func (a *AutoSaver) Attach(bus *store.Bus) {
	if !a.enabled || bus == nil {
		return
	}
	unsubscribe := bus.Subscribe(func(store.Change) { a.Trigger() })

	a.mu.Lock()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.unsubscribe = unsubscribe
	a.mu.Unlock()
}

// Trigger 请求一次保存，重新开始静默窗口
func (a *AutoSaver) Trigger() {
	if !a.enabled {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.triggers.Add(1)
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.debounce, func() { a.fire(gen) })
}

// fire 已被新定时器取代时不保存，也不清除新定时器
func (a *AutoSaver) fire(gen uint64) {
	a.mu.Lock()
	current := gen == a.gen
	if current {
		a.timer = nil
	}
	stopped := a.stopped
	a.mu.Unlock()
	if stopped || !current {
		return
	}
	a.run(context.Background())
}

func (a *AutoSaver) run(ctx context.Context) {
	a.saves.Add(1)
	if err := a.save(ctx); err != nil {
		a.logger.Error("自动保存失败", zap.Error(err))
		return
	}
	a.logger.Debug("自动保存完成", zap.Int64("saves", a.saves.Load()))
}

// Flush 取消等待中的定时器并立即保存，没有待保存内容时不做任何事
func (a *AutoSaver) Flush(ctx context.Context) {
	a.mu.Lock()
	pending := a.timer != nil && a.timer.Stop()
	a.timer = nil
	a.mu.Unlock()
	if pending {
		a.run(ctx)
	}
}

// Stop 停止自动保存并取消订阅，等待中的保存被丢弃
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// Enabled 是否启用
func (a *AutoSaver) Enabled() bool {
	return a.enabled
}

// Triggers 触发次数
func (a *AutoSaver) Triggers() int64 {
	return a.triggers.Load()
}

// Saves 实际保存次数
func (a *AutoSaver) Saves() int64 {
	return a.saves.Load()
}
