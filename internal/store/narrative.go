package store

import (
	"sync"
	"time"

	apperrors "github.com/wfunc/lifesim/internal/errors"
)

// CharacterCreatedFlag 角色创建完成标志，教程剧情依赖它
const CharacterCreatedFlag = "character_created"

// Storylets 剧情生命周期
// Active与Completed互斥：完成即从Active移除
type Storylets struct {
	Active      []string             `json:"active"`
	Completed   []string             `json:"completed"`
	Cooldowns   map[string]time.Time `json:"cooldowns"`
	UserCreated []string             `json:"userCreated"`
	NPCRefs     map[string]string    `json:"npcRefs"`
}

// Flags 四个独立的标志命名空间
type Flags struct {
	Storylet     FlagMap[bool]    `json:"storylet"`
	StoryletFlag FlagMap[bool]    `json:"storyletFlag"`
	Concerns     FlagMap[float64] `json:"concerns"`
	StoryArc     FlagMap[string]  `json:"storyArc"`
}

// ConcernEntry 关注点历史记录
type ConcernEntry struct {
	Action    string             `json:"action"`
	Concerns  map[string]float64 `json:"concerns"`
	Timestamp time.Time          `json:"timestamp"`
}

// Concerns 当前关注点与历史
type Concerns struct {
	Current map[string]float64 `json:"current"`
	History []ConcernEntry     `json:"history"`
}

// ArcMetadata 故事线描述
type ArcMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// ArcFailure 故事线失败记录
type ArcFailure struct {
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}

// StoryArcs 故事线进度
type StoryArcs struct {
	Progress map[string]float64     `json:"progress"`
	Metadata map[string]ArcMetadata `json:"metadata"`
	Failures map[string]ArcFailure  `json:"failures"`
}

// NarrativeState 叙事存储的数据投影
type NarrativeState struct {
	Storylets Storylets `json:"storylets"`
	Flags     Flags     `json:"flags"`
	Concerns  Concerns  `json:"concerns"`
	StoryArcs StoryArcs `json:"storyArcs"`
}

// InitialNarrativeState 叙事存储初始状态
func InitialNarrativeState() NarrativeState {
	return NarrativeState{
		Storylets: Storylets{
			Active:      []string{},
			Completed:   []string{},
			Cooldowns:   map[string]time.Time{},
			UserCreated: []string{},
			NPCRefs:     map[string]string{},
		},
		Flags: Flags{
			Storylet:     NewFlagMap[bool](),
			StoryletFlag: NewFlagMap[bool](),
			Concerns:     NewFlagMap[float64](),
			StoryArc:     NewFlagMap[string](),
		},
		Concerns: Concerns{
			Current: map[string]float64{},
			History: []ConcernEntry{},
		},
		StoryArcs: StoryArcs{
			Progress: map[string]float64{},
			Metadata: map[string]ArcMetadata{},
			Failures: map[string]ArcFailure{},
		},
	}
}

// Clone 深拷贝
func (s NarrativeState) Clone() NarrativeState {
	s.Storylets = Storylets{
		Active:      cloneSlice(s.Storylets.Active),
		Completed:   cloneSlice(s.Storylets.Completed),
		Cooldowns:   cloneMap(s.Storylets.Cooldowns),
		UserCreated: cloneSlice(s.Storylets.UserCreated),
		NPCRefs:     cloneMap(s.Storylets.NPCRefs),
	}
	s.Flags = Flags{
		Storylet:     s.Flags.Storylet.Clone(),
		StoryletFlag: s.Flags.StoryletFlag.Clone(),
		Concerns:     s.Flags.Concerns.Clone(),
		StoryArc:     s.Flags.StoryArc.Clone(),
	}
	history := make([]ConcernEntry, len(s.Concerns.History))
	for i, e := range s.Concerns.History {
		e.Concerns = cloneMap(e.Concerns)
		history[i] = e
	}
	s.Concerns = Concerns{Current: cloneMap(s.Concerns.Current), History: history}

	meta := make(map[string]ArcMetadata, len(s.StoryArcs.Metadata))
	for k, m := range s.StoryArcs.Metadata {
		if m.Tags != nil {
			m.Tags = cloneSlice(m.Tags)
		}
		meta[k] = m
	}
	s.StoryArcs = StoryArcs{
		Progress: cloneMap(s.StoryArcs.Progress),
		Metadata: meta,
		Failures: cloneMap(s.StoryArcs.Failures),
	}
	return s
}

// NarrativeStore 剧情、标志、关注点与故事线
type NarrativeStore struct {
	base
	mu    sync.RWMutex
	state NarrativeState
}

// NewNarrativeStore 创建叙事存储
func NewNarrativeStore(opts ...Option) *NarrativeStore {
	return &NarrativeStore{
		base:  newBase(NarrativeKey, opts),
		state: InitialNarrativeState(),
	}
}

func (s *NarrativeStore) mutate(action string, fn func(st *NarrativeState) bool) {
	s.mu.Lock()
	changed := fn(&s.state)
	s.mu.Unlock()
	if changed {
		s.publish(action)
	}
}

// State 返回状态深拷贝
func (s *NarrativeStore) State() NarrativeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Replace 整体替换状态
func (s *NarrativeStore) Replace(state NarrativeState) {
	s.mutate("replace", func(st *NarrativeState) bool {
		*st = state.Clone()
		return true
	})
}

// Capture 捕获快照
func (s *NarrativeStore) Capture() any {
	return s.State()
}

// Restore 从快照恢复
func (s *NarrativeStore) Restore(snapshot any) error {
	switch st := snapshot.(type) {
	case NarrativeState:
		s.Replace(st)
	case *NarrativeState:
		s.Replace(*st)
	default:
		return apperrors.Newf(apperrors.ErrInvalidSnapshot, "%s: %T", s.key, snapshot)
	}
	return nil
}

// Storylets 当前剧情集合
func (s *NarrativeStore) Storylets() Storylets {
	return s.State().Storylets
}

// Concerns 当前关注点
func (s *NarrativeStore) Concerns() Concerns {
	return s.State().Concerns
}

// AddActiveStorylet 激活剧情，已激活或已完成的剧情忽略
func (s *NarrativeStore) AddActiveStorylet(id string) {
	s.AddActiveStoryletWithNPC(id, "")
}

// AddActiveStoryletWithNPC 激活剧情并记录关联NPC
func (s *NarrativeStore) AddActiveStoryletWithNPC(id, npcID string) {
	s.mutate("add_active_storylet", func(st *NarrativeState) bool {
		return st.AddActiveStorylet(id, npcID)
	})
}

// AddActiveStorylet 激活剧情，npcID 非空时记录关联NPC，返回是否变化
func (st *NarrativeState) AddActiveStorylet(id, npcID string) bool {
	if !st.Storylets.activate(id) {
		return false
	}
	if npcID != "" {
		st.Storylets.NPCRefs[id] = npcID
	}
	return true
}

func (st *Storylets) activate(id string) bool {
	if id == "" || containsString(st.Active, id) || containsString(st.Completed, id) {
		return false
	}
	st.Active = append(st.Active, id)
	return true
}

// CompleteStorylet 完成剧情：从Active移除并追加到Completed（仅一次）
func (s *NarrativeStore) CompleteStorylet(id string) {
	s.mutate("complete_storylet", func(st *NarrativeState) bool {
		return st.CompleteStorylet(id)
	})
}

// CompleteStorylet 返回是否变化
func (st *NarrativeState) CompleteStorylet(id string) bool {
	if id == "" {
		return false
	}
	active, removed := removeString(st.Storylets.Active, id)
	st.Storylets.Active = active
	if containsString(st.Storylets.Completed, id) {
		return removed
	}
	st.Storylets.Completed = append(st.Storylets.Completed, id)
	delete(st.Storylets.NPCRefs, id)
	return true
}

// IsStoryletCompleted 剧情是否已完成
func (s *NarrativeStore) IsStoryletCompleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return containsString(s.state.Storylets.Completed, id)
}

// RemoveActiveStorylet 移除激活剧情
func (s *NarrativeStore) RemoveActiveStorylet(id string) {
	s.mutate("remove_active_storylet", func(st *NarrativeState) bool {
		active, removed := removeString(st.Storylets.Active, id)
		st.Storylets.Active = active
		if removed {
			delete(st.Storylets.NPCRefs, id)
		}
		return removed
	})
}

// SetStoryletCooldown 设置剧情冷却截止时间
func (s *NarrativeStore) SetStoryletCooldown(id string, until time.Time) {
	s.mutate("set_storylet_cooldown", func(st *NarrativeState) bool {
		st.Storylets.Cooldowns[id] = until
		return true
	})
}

// IsOnCooldown 剧情是否仍在冷却
func (s *NarrativeStore) IsOnCooldown(id string) bool {
	s.mu.RLock()
	until, ok := s.state.Storylets.Cooldowns[id]
	s.mu.RUnlock()
	return ok && s.now().Before(until)
}

// AddUserStorylet 记录玩家自建剧情
func (s *NarrativeStore) AddUserStorylet(id string) {
	s.mutate("add_user_storylet", func(st *NarrativeState) bool {
		if id == "" || containsString(st.Storylets.UserCreated, id) {
			return false
		}
		st.Storylets.UserCreated = append(st.Storylets.UserCreated, id)
		return true
	})
}

// SetStoryletFlag 设置剧情触发标志
func (s *NarrativeStore) SetStoryletFlag(key string, value bool) {
	s.mutate("set_storylet_flag", func(st *NarrativeState) bool {
		st.Flags.Storylet.Set(key, value)
		return true
	})
}

// GetStoryletFlag 读取剧情触发标志
func (s *NarrativeStore) GetStoryletFlag(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Flags.Storylet.Get(key)
}

// SetStoryletScopedFlag 设置单个剧情内部标志
func (s *NarrativeStore) SetStoryletScopedFlag(key string, value bool) {
	s.mutate("set_storylet_scoped_flag", func(st *NarrativeState) bool {
		st.Flags.StoryletFlag.Set(key, value)
		return true
	})
}

// GetStoryletScopedFlag 读取单个剧情内部标志
func (s *NarrativeStore) GetStoryletScopedFlag(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Flags.StoryletFlag.Get(key)
}

// SetConcernFlag 设置关注点标志
func (s *NarrativeStore) SetConcernFlag(key string, value float64) {
	s.mutate("set_concern_flag", func(st *NarrativeState) bool {
		st.Flags.Concerns.Set(key, value)
		return true
	})
}

// SetArcFlag 设置故事线状态标志
func (s *NarrativeStore) SetArcFlag(key, value string) {
	s.mutate("set_arc_flag", func(st *NarrativeState) bool {
		st.Flags.StoryArc.Set(key, value)
		return true
	})
}

// UpdateConcerns 合并或替换当前关注点，并追加历史
func (s *NarrativeStore) UpdateConcerns(concerns map[string]float64, replace bool, action string) {
	s.mutate("update_concerns", func(st *NarrativeState) bool {
		st.UpdateConcerns(concerns, replace, action, s.now())
		return true
	})
}

// UpdateConcerns 直接修改状态，历史时间为 at
func (st *NarrativeState) UpdateConcerns(concerns map[string]float64, replace bool, action string, at time.Time) {
	if action == "" {
		action = "update"
	}
	st.Concerns = st.Concerns.apply(concerns, replace, action, at)
}

func (c Concerns) apply(concerns map[string]float64, replace bool, action string, at time.Time) Concerns {
	if replace || c.Current == nil {
		c.Current = cloneMap(concerns)
	} else {
		for k, v := range concerns {
			c.Current[k] = v
		}
	}
	c.History = append(c.History, ConcernEntry{
		Action:    action,
		Concerns:  cloneMap(c.Current),
		Timestamp: at,
	})
	return c
}

// UpdateArcProgress 更新故事线进度（百分比，限制在0到100）
func (s *NarrativeStore) UpdateArcProgress(arcID string, percent float64) {
	s.mutate("update_arc_progress", func(st *NarrativeState) bool {
		st.UpdateArcProgress(arcID, percent)
		return true
	})
}

// UpdateArcProgress 直接修改状态
func (st *NarrativeState) UpdateArcProgress(arcID string, percent float64) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	st.StoryArcs.Progress[arcID] = percent
}

// SetArcMetadata 设置故事线描述
func (s *NarrativeStore) SetArcMetadata(arcID string, meta ArcMetadata) {
	s.mutate("set_arc_metadata", func(st *NarrativeState) bool {
		if meta.Tags != nil {
			meta.Tags = cloneSlice(meta.Tags)
		}
		st.StoryArcs.Metadata[arcID] = meta
		return true
	})
}

// RecordArcFailure 记录故事线失败
func (s *NarrativeStore) RecordArcFailure(arcID, reason string) {
	s.mutate("record_arc_failure", func(st *NarrativeState) bool {
		st.StoryArcs.Failures[arcID] = ArcFailure{Reason: reason, FailedAt: s.now()}
		return true
	})
}

// ResetNarrative 恢复初始状态
func (s *NarrativeStore) ResetNarrative() {
	s.mutate("reset", func(st *NarrativeState) bool {
		*st = InitialNarrativeState()
		return true
	})
}

// Normalize 补齐反序列化后缺失的集合字段
func (s *NarrativeState) Normalize() {
	def := InitialNarrativeState()
	if s.Storylets.Active == nil {
		s.Storylets.Active = def.Storylets.Active
	}
	if s.Storylets.Completed == nil {
		s.Storylets.Completed = def.Storylets.Completed
	}
	if s.Storylets.Cooldowns == nil {
		s.Storylets.Cooldowns = def.Storylets.Cooldowns
	}
	if s.Storylets.UserCreated == nil {
		s.Storylets.UserCreated = def.Storylets.UserCreated
	}
	if s.Storylets.NPCRefs == nil {
		s.Storylets.NPCRefs = def.Storylets.NPCRefs
	}
	if s.Flags.Storylet == nil {
		s.Flags.Storylet = def.Flags.Storylet
	}
	if s.Flags.StoryletFlag == nil {
		s.Flags.StoryletFlag = def.Flags.StoryletFlag
	}
	if s.Flags.Concerns == nil {
		s.Flags.Concerns = def.Flags.Concerns
	}
	if s.Flags.StoryArc == nil {
		s.Flags.StoryArc = def.Flags.StoryArc
	}
	if s.Concerns.Current == nil {
		s.Concerns.Current = def.Concerns.Current
	}
	if s.Concerns.History == nil {
		s.Concerns.History = def.Concerns.History
	}
	if s.StoryArcs.Progress == nil {
		s.StoryArcs.Progress = def.StoryArcs.Progress
	}
	if s.StoryArcs.Metadata == nil {
		s.StoryArcs.Metadata = def.StoryArcs.Metadata
	}
	if s.StoryArcs.Failures == nil {
		s.StoryArcs.Failures = def.StoryArcs.Failures
	}
}
