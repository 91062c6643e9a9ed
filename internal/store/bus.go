package store

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// 存储键，同时用作持久化文档键
const (
	CoreGameKey  = "core-game-store"
	NarrativeKey = "narrative-store"
	SocialKey    = "social-store"
)

// Change 存储变更事件
type Change struct {
	Store  string    `json:"store"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// Bus 变更事件总线
// 事件在存储锁释放之后同步分发给订阅者
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Change)
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Change))}
}

// Subscribe 订阅变更事件，返回取消订阅函数
func (b *Bus) Subscribe(fn func(Change)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish 分发事件
func (b *Bus) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(Change), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(c)
	}
}

// Snapshotter 可整体捕获与恢复状态的存储
type Snapshotter interface {
	Key() string
	Capture() any
	Restore(snapshot any) error
}

// Option 存储构造选项
type Option func(*base)

// WithBus 设置事件总线
func WithBus(bus *Bus) Option {
	return func(b *base) { b.bus = bus }
}

// WithClock 设置时间源
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) { b.logger = logger }
}

type base struct {
	key    string
	bus    *Bus
	now    func() time.Time
	logger *zap.Logger
}

func newBase(key string, opts []Option) base {
	b := base{key: key, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With(zap.String("store", key))
	return b
}

// Key 存储键
func (b *base) Key() string {
	return b.key
}

func (b *base) publish(action string) {
	b.logger.Debug("store_event", zap.String("action", action))
	b.bus.Publish(Change{Store: b.key, Action: action, At: b.now()})
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSlice[T any](s []T) []T {
	return append(make([]T, 0, len(s)), s...)
}

func containsString(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

func removeString(s []string, v string) ([]string, bool) {
	for i, item := range s {
		if item == v {
			return append(s[:i:i], s[i+1:]...), true
		}
	}
	return s, false
}
