package optimistic

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/store"
	"go.uber.org/zap"
)

// Status 乐观更新状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusRolledBack Status = "rolled_back"
)

// Options 定时器选项
// 两项均为零时整体使用管理器默认值；负值（NoTimer）表示该项不调度
type Options struct {
	RollbackAfter time.Duration
	PersistAfter  time.Duration
}

// NoTimer 显式关闭某个定时器
const NoTimer time.Duration = -1

// Update 乐观更新记录
type Update struct {
	ID              string    `json:"id"`
	Store           string    `json:"store"`
	Status          Status    `json:"status"`
	OriginalState   any       `json:"originalState"`
	OptimisticState any       `json:"optimisticState"`
	Persistent      bool      `json:"persistent"`
	CreatedAt       time.Time `json:"createdAt"`
}

type entry struct {
	Update
	seq           uint64
	target        store.Snapshotter
	rollbackTimer *time.Timer
	confirmTimer  *time.Timer
}

func (e *entry) stopTimers() {
	if e.rollbackTimer != nil {
		e.rollbackTimer.Stop()
		e.rollbackTimer = nil
	}
	if e.confirmTimer != nil {
		e.confirmTimer.Stop()
		e.confirmTimer = nil
	}
}

// Manager 乐观更新注册表
// 对同一存储的并发乐观更新按最后回滚者为准
type Manager struct {
	mu       sync.Mutex
	updates  map[string]*entry
	seq      uint64
	defaults Options
	logger   *zap.Logger
	now      func() time.Time
}

// ManagerOption 管理器选项
type ManagerOption func(*Manager)

// WithDefaults 调用方未指定定时器时使用的默认值
func WithDefaults(opts Options) ManagerOption {
	return func(m *Manager) { m.defaults = opts }
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithClock 设置时间源
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager 创建管理器
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		updates: make(map[string]*entry),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply 捕获原状态后执行变更并登记
// 变更返回错误时恢复原状态，不登记任何记录
func (m *Manager) Apply(target store.Snapshotter, mutate func() error, opts Options) (string, error) {
	if opts.RollbackAfter == 0 && opts.PersistAfter == 0 {
		opts = m.defaults
	}

	original := target.Capture()
	if err := mutate(); err != nil {
		if rerr := target.Restore(original); rerr != nil {
			m.logger.Error("变更失败后恢复原状态失败", zap.String("store", target.Key()), zap.Error(rerr))
		}
		return "", err
	}

	e := &entry{
		Update: Update{
			ID:              uuid.New().String(),
			Store:           target.Key(),
			Status:          StatusPending,
			OriginalState:   original,
			OptimisticState: target.Capture(),
			CreatedAt:       m.now(),
		},
		target: target,
	}

	m.mu.Lock()
	m.seq++
	e.seq = m.seq
	m.updates[e.ID] = e
	id := e.ID
	if opts.RollbackAfter > 0 {
		e.rollbackTimer = time.AfterFunc(opts.RollbackAfter, func() {
			if err := m.Rollback(id); err != nil {
				m.logger.Debug("定时回滚跳过", zap.String("id", id), zap.Error(err))
			}
		})
	}
	if opts.PersistAfter > 0 {
		e.confirmTimer = time.AfterFunc(opts.PersistAfter, func() {
			if err := m.Confirm(id); err != nil {
				m.logger.Debug("定时确认跳过", zap.String("id", id), zap.Error(err))
			}
		})
	}
	m.mu.Unlock()

	m.logger.Debug("乐观更新已登记", zap.String("id", id), zap.String("store", e.Store))
	return id, nil
}

// Confirm 确认更新并取消回滚定时器
func (m *Manager) Confirm(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.updates[id]
	if !ok {
		return apperrors.New(apperrors.ErrUpdateNotFound, id)
	}
	e.stopTimers()
	e.Persistent = true
	e.Status = StatusConfirmed
	return nil
}

// Rollback 恢复原状态并删除记录，已确认的更新不能回滚
// 恢复失败只记录日志
func (m *Manager) Rollback(id string) error {
	m.mu.Lock()
	e, ok := m.updates[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrUpdateNotFound, id)
	}
	if e.Persistent {
		m.mu.Unlock()
		return apperrors.Newf(apperrors.ErrRollbackFailed, "update %s already confirmed", id)
	}
	e.stopTimers()
	e.Status = StatusRolledBack
	delete(m.updates, id)
	m.mu.Unlock()

	m.restore(e)
	return nil
}

func (m *Manager) restore(e *entry) {
	if err := e.target.Restore(e.OriginalState); err != nil {
		m.logger.Error("乐观更新回滚失败",
			zap.String("id", e.ID), zap.String("store", e.Store), zap.Error(err))
		return
	}
	m.logger.Info("乐观更新已回滚", zap.String("id", e.ID), zap.String("store", e.Store))
}

// RollbackAll 按从新到旧回滚全部未确认的更新，返回回滚数量
func (m *Manager) RollbackAll() int {
	m.mu.Lock()
	var victims []*entry
	for id, e := range m.updates {
		if e.Persistent {
			continue
		}
		e.stopTimers()
		e.Status = StatusRolledBack
		delete(m.updates, id)
		victims = append(victims, e)
	}
	m.mu.Unlock()

	// 从新到旧，最终每个存储回到最早的原状态
	sort.Slice(victims, func(i, j int) bool { return victims[i].seq > victims[j].seq })
	for _, e := range victims {
		m.restore(e)
	}
	return len(victims)
}

// Cancel 停止定时器，保留当前状态与记录
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.updates[id]
	if !ok {
		return apperrors.New(apperrors.ErrUpdateNotFound, id)
	}
	e.stopTimers()
	return nil
}

// Get 查询更新记录
func (m *Manager) Get(id string) (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.updates[id]
	if !ok {
		return Update{}, false
	}
	return e.Update, true
}

// Pending 未确认的更新，从旧到新
func (m *Manager) Pending() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]*entry, 0, len(m.updates))
	for _, e := range m.updates {
		if !e.Persistent {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Update, len(entries))
	for i, e := range entries {
		out[i] = e.Update
	}
	return out
}

// Len 注册表中的记录数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

// Prune 删除已确认的记录
func (m *Manager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, e := range m.updates {
		if e.Persistent {
			delete(m.updates, id)
			n++
		}
	}
	return n
}
