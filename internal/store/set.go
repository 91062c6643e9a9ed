package store

import "time"

// Set 三个存储及共享事件总线
// 跨存储操作固定按 core → narrative → social 顺序加锁
type Set struct {
	Core      *CoreGameStore
	Narrative *NarrativeStore
	Social    *SocialStore
	Bus       *Bus
}

// View 三个存储在同一时刻的一致视图
type View struct {
	Core      CoreState      `json:"core"`
	Narrative NarrativeState `json:"narrative"`
	Social    SocialState    `json:"social"`
}

// Clone 深拷贝
func (v View) Clone() View {
	return View{Core: v.Core.Clone(), Narrative: v.Narrative.Clone(), Social: v.Social.Clone()}
}

// InitialView 三个存储的初始状态
func InitialView() View {
	return View{
		Core:      InitialCoreState(),
		Narrative: InitialNarrativeState(),
		Social:    InitialSocialState(),
	}
}

// NewSet 创建存储集合
func NewSet(opts ...Option) *Set {
	bus := NewBus()
	opts = append([]Option{WithBus(bus)}, opts...)
	return &Set{
		Core:      NewCoreGameStore(opts...),
		Narrative: NewNarrativeStore(opts...),
		Social:    NewSocialStore(opts...),
		Bus:       bus,
	}
}

// Stores 按加锁顺序返回全部存储
func (s *Set) Stores() []Snapshotter {
	return []Snapshotter{s.Core, s.Narrative, s.Social}
}

// Lookup 按键查找存储
func (s *Set) Lookup(key string) (Snapshotter, bool) {
	switch key {
	case CoreGameKey:
		return s.Core, true
	case NarrativeKey:
		return s.Narrative, true
	case SocialKey:
		return s.Social, true
	}
	return nil, false
}

func (s *Set) rlockAll() {
	s.Core.mu.RLock()
	s.Narrative.mu.RLock()
	s.Social.mu.RLock()
}

func (s *Set) runlockAll() {
	s.Social.mu.RUnlock()
	s.Narrative.mu.RUnlock()
	s.Core.mu.RUnlock()
}

func (s *Set) lockAll() {
	s.Core.mu.Lock()
	s.Narrative.mu.Lock()
	s.Social.mu.Lock()
}

func (s *Set) unlockAll() {
	s.Social.mu.Unlock()
	s.Narrative.mu.Unlock()
	s.Core.mu.Unlock()
}

// View 返回一致视图
func (s *Set) View() View {
	s.rlockAll()
	defer s.runlockAll()
	return View{
		Core:      s.state().Core.Clone(),
		Narrative: s.state().Narrative.Clone(),
		Social:    s.state().Social.Clone(),
	}
}

// state 调用方必须已持有锁
func (s *Set) state() View {
	return View{Core: s.Core.state, Narrative: s.Narrative.state, Social: s.Social.state}
}

// Commit 一次性安装三个存储的新状态
// 外部观察者只能看到提交前或提交后的完整状态
func (s *Set) Commit(action string, next View) {
	_ = s.Update(action, func(View) (View, error) { return next, nil })
}

// Update 在全部写锁下基于当前状态计算并提交新状态
// fn返回错误或panic时不做任何修改
func (s *Set) Update(action string, fn func(current View) (View, error)) error {
	if err := s.install(fn); err != nil {
		return err
	}
	s.Core.publish(action)
	s.Narrative.publish(action)
	s.Social.publish(action)
	return nil
}

func (s *Set) install(fn func(current View) (View, error)) error {
	s.lockAll()
	defer s.unlockAll()

	next, err := fn(s.state().Clone())
	if err != nil {
		return err
	}
	next = next.Clone()
	s.Core.state = next.Core
	s.Narrative.state = next.Narrative
	s.Social.state = next.Social
	return nil
}

// Now 存储集合使用的时钟
func (s *Set) Now() time.Time {
	return s.Core.now()
}

// ResetAll 依次重置 core、narrative、social
func (s *Set) ResetAll() {
	s.Commit("reset", InitialView())
}
