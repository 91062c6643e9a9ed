package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "github.com/wfunc/lifesim/internal/errors"
	"go.uber.org/zap"
)

// NPCMemory NPC对玩家的记忆
type NPCMemory struct {
	Notes           []string  `json:"notes"`
	Sentiment       string    `json:"sentiment,omitempty"`
	LastInteraction time.Time `json:"lastInteraction"`
}

// NPCs NPC关系、记忆与标志
type NPCs struct {
	Relationships map[string]int             `json:"relationships"`
	Memories      map[string]NPCMemory       `json:"memories"`
	Flags         map[string]map[string]bool `json:"flags"`
}

// Clue 线索
type Clue struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	DiscoveryMethod string `json:"discoveryMethod"`
	Importance      string `json:"importance"`
}

// Clues 已发现线索及其关联
type Clues struct {
	Discovered  []Clue              `json:"discovered"`
	Connections map[string][]string `json:"connections"`
	StoryArcs   map[string]string   `json:"storyArcs"`
}

// GameSnapshot 存档内嵌的完整状态
type GameSnapshot struct {
	Core      CoreState      `json:"core"`
	Narrative NarrativeState `json:"narrative"`
	NPCs      NPCs           `json:"npcs"`
	Clues     Clues          `json:"clues"`
}

// Clone 深拷贝
func (g GameSnapshot) Clone() GameSnapshot {
	return GameSnapshot{
		Core:      g.Core.Clone(),
		Narrative: g.Narrative.Clone(),
		NPCs:      g.NPCs.Clone(),
		Clues:     g.Clues.Clone(),
	}
}

// SaveSlot 存档槽
type SaveSlot struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CharacterName string        `json:"characterName"`
	GameDay       int           `json:"gameDay"`
	PlayerLevel   int           `json:"playerLevel"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Snapshot      *GameSnapshot `json:"snapshot,omitempty"`
}

// Clone 深拷贝
func (s SaveSlot) Clone() SaveSlot {
	if s.Snapshot != nil {
		snap := s.Snapshot.Clone()
		s.Snapshot = &snap
	}
	return s
}

// SaveSlotPatch 存档部分更新
type SaveSlotPatch struct {
	Name          *string       `json:"name,omitempty"`
	CharacterName *string       `json:"characterName,omitempty"`
	GameDay       *int          `json:"gameDay,omitempty"`
	PlayerLevel   *int          `json:"playerLevel,omitempty"`
	Snapshot      *GameSnapshot `json:"snapshot,omitempty"`
}

// SaveEvent 存档历史记录
type SaveEvent struct {
	Action    string    `json:"action"`
	SaveID    string    `json:"saveId"`
	Timestamp time.Time `json:"timestamp"`
}

// Saves 存档目录
type Saves struct {
	CurrentSaveID *string             `json:"currentSaveId"`
	SaveSlots     map[string]SaveSlot `json:"saveSlots"`
	SaveHistory   []SaveEvent         `json:"saveHistory"`
}

// SocialState 社交存储的数据投影
type SocialState struct {
	NPCs  NPCs  `json:"npcs"`
	Clues Clues `json:"clues"`
	Saves Saves `json:"saves"`
}

// InitialSocialState 社交存储初始状态
func InitialSocialState() SocialState {
	return SocialState{
		NPCs: NPCs{
			Relationships: map[string]int{},
			Memories:      map[string]NPCMemory{},
			Flags:         map[string]map[string]bool{},
		},
		Clues: Clues{
			Discovered:  []Clue{},
			Connections: map[string][]string{},
			StoryArcs:   map[string]string{},
		},
		Saves: Saves{
			SaveSlots:   map[string]SaveSlot{},
			SaveHistory: []SaveEvent{},
		},
	}
}

// Clone 深拷贝
func (n NPCs) Clone() NPCs {
	memories := make(map[string]NPCMemory, len(n.Memories))
	for k, m := range n.Memories {
		m.Notes = cloneSlice(m.Notes)
		memories[k] = m
	}
	flags := make(map[string]map[string]bool, len(n.Flags))
	for k, f := range n.Flags {
		flags[k] = cloneMap(f)
	}
	return NPCs{
		Relationships: cloneMap(n.Relationships),
		Memories:      memories,
		Flags:         flags,
	}
}

// Clone 深拷贝
func (c Clues) Clone() Clues {
	conns := make(map[string][]string, len(c.Connections))
	for k, v := range c.Connections {
		conns[k] = cloneSlice(v)
	}
	return Clues{
		Discovered:  cloneSlice(c.Discovered),
		Connections: conns,
		StoryArcs:   cloneMap(c.StoryArcs),
	}
}

// Clone 深拷贝
func (s Saves) Clone() Saves {
	slots := make(map[string]SaveSlot, len(s.SaveSlots))
	for k, slot := range s.SaveSlots {
		slots[k] = slot.Clone()
	}
	out := Saves{SaveSlots: slots, SaveHistory: cloneSlice(s.SaveHistory)}
	if s.CurrentSaveID != nil {
		id := *s.CurrentSaveID
		out.CurrentSaveID = &id
	}
	return out
}

// Clone 深拷贝
func (s SocialState) Clone() SocialState {
	return SocialState{NPCs: s.NPCs.Clone(), Clues: s.Clues.Clone(), Saves: s.Saves.Clone()}
}

// Normalize 补齐反序列化后缺失的集合字段
func (s *SocialState) Normalize() {
	def := InitialSocialState()
	if s.NPCs.Relationships == nil {
		s.NPCs.Relationships = def.NPCs.Relationships
	}
	if s.NPCs.Memories == nil {
		s.NPCs.Memories = def.NPCs.Memories
	}
	if s.NPCs.Flags == nil {
		s.NPCs.Flags = def.NPCs.Flags
	}
	if s.Clues.Discovered == nil {
		s.Clues.Discovered = def.Clues.Discovered
	}
	if s.Clues.Connections == nil {
		s.Clues.Connections = def.Clues.Connections
	}
	if s.Clues.StoryArcs == nil {
		s.Clues.StoryArcs = def.Clues.StoryArcs
	}
	if s.Saves.SaveSlots == nil {
		s.Saves.SaveSlots = def.Saves.SaveSlots
	}
	if s.Saves.SaveHistory == nil {
		s.Saves.SaveHistory = def.Saves.SaveHistory
	}
	if s.Saves.CurrentSaveID != nil {
		if _, ok := s.Saves.SaveSlots[*s.Saves.CurrentSaveID]; !ok {
			s.Saves.CurrentSaveID = nil
		}
	}
}

// SocialStore NPC、线索与存档目录
type SocialStore struct {
	base
	mu    sync.RWMutex
	state SocialState
}

// NewSocialStore 创建社交存储
func NewSocialStore(opts ...Option) *SocialStore {
	return &SocialStore{
		base:  newBase(SocialKey, opts),
		state: InitialSocialState(),
	}
}

func (s *SocialStore) mutate(action string, fn func(st *SocialState) error) error {
	s.mu.Lock()
	err := fn(&s.state)
	s.mu.Unlock()
	if err == nil {
		s.publish(action)
	}
	return err
}

// State 返回状态深拷贝
func (s *SocialStore) State() SocialState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Replace 整体替换状态
func (s *SocialStore) Replace(state SocialState) {
	_ = s.mutate("replace", func(st *SocialState) error {
		*st = state.Clone()
		return nil
	})
}

// Capture 捕获快照
func (s *SocialStore) Capture() any {
	return s.State()
}

// Restore 从快照恢复
func (s *SocialStore) Restore(snapshot any) error {
	switch st := snapshot.(type) {
	case SocialState:
		s.Replace(st)
	case *SocialState:
		s.Replace(*st)
	default:
		return apperrors.Newf(apperrors.ErrInvalidSnapshot, "%s: %T", s.key, snapshot)
	}
	return nil
}

// NPCs 当前NPC数据
func (s *SocialStore) NPCs() NPCs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.NPCs.Clone()
}

// Clues 当前线索
func (s *SocialStore) Clues() Clues {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clues.Clone()
}

// UpdateRelationship 累加关系值：新值 = 旧值 + delta
func (s *SocialStore) UpdateRelationship(npcID string, delta int) {
	_ = s.mutate("update_relationship", func(st *SocialState) error {
		st.UpdateRelationship(npcID, delta)
		return nil
	})
}

// UpdateRelationship 直接修改状态
func (st *SocialState) UpdateRelationship(npcID string, delta int) {
	st.NPCs.Relationships[npcID] += delta
}

// Relationship 读取关系值，未知NPC为0
func (s *SocialStore) Relationship(npcID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.NPCs.Relationships[npcID]
}

// SetNPCMemory 设置NPC记忆
func (s *SocialStore) SetNPCMemory(npcID string, memory NPCMemory) {
	memory.Notes = cloneSlice(memory.Notes)
	if memory.LastInteraction.IsZero() {
		memory.LastInteraction = s.now()
	}
	_ = s.mutate("set_npc_memory", func(st *SocialState) error {
		st.NPCs.Memories[npcID] = memory
		return nil
	})
}

// SetNPCFlag 设置NPC标志
func (s *SocialStore) SetNPCFlag(npcID, flag string, value bool) {
	_ = s.mutate("set_npc_flag", func(st *SocialState) error {
		st.SetNPCFlag(npcID, flag, value)
		return nil
	})
}

// SetNPCFlag 直接修改状态
func (st *SocialState) SetNPCFlag(npcID, flag string, value bool) {
	flags, ok := st.NPCs.Flags[npcID]
	if !ok {
		flags = map[string]bool{}
		st.NPCs.Flags[npcID] = flags
	}
	flags[flag] = value
}

// NPCFlag 读取NPC标志
func (s *SocialStore) NPCFlag(npcID, flag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.NPCs.Flags[npcID][flag]
}

// DiscoverClue 记录线索，按ID去重，返回是否新增
func (s *SocialStore) DiscoverClue(clue Clue) bool {
	err := s.mutate("discover_clue", func(st *SocialState) error {
		if !st.DiscoverClue(clue) {
			return errNoChange
		}
		return nil
	})
	return err == nil
}

// DiscoverClue 返回是否新增
func (st *SocialState) DiscoverClue(clue Clue) bool {
	for _, c := range st.Clues.Discovered {
		if c.ID == clue.ID {
			return false
		}
	}
	st.Clues.Discovered = append(st.Clues.Discovered, clue)
	return true
}

// ConnectClues 双向关联两条线索
func (s *SocialStore) ConnectClues(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}
	_ = s.mutate("connect_clues", func(st *SocialState) error {
		changed := link(st.Clues.Connections, a, b)
		changed = link(st.Clues.Connections, b, a) || changed
		if !changed {
			return errNoChange
		}
		return nil
	})
}

func link(conns map[string][]string, from, to string) bool {
	if containsString(conns[from], to) {
		return false
	}
	conns[from] = append(conns[from], to)
	return true
}

// AssociateClueWithArc 关联线索与故事线
func (s *SocialStore) AssociateClueWithArc(clueID, arcID string) {
	_ = s.mutate("associate_clue_arc", func(st *SocialState) error {
		st.Clues.StoryArcs[clueID] = arcID
		return nil
	})
}

// SaveSlots 所有存档槽
func (s *SocialStore) SaveSlots() map[string]SaveSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Saves.Clone().SaveSlots
}

// SortedSaveSlots 按更新时间倒序返回存档
func (s *SocialStore) SortedSaveSlots() []SaveSlot {
	slots := s.SaveSlots()
	out := make([]SaveSlot, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// SaveSlot 读取单个存档
func (s *SocialStore) SaveSlot(id string) (SaveSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.state.Saves.SaveSlots[id]
	if !ok {
		return SaveSlot{}, false
	}
	return slot.Clone(), true
}

// CurrentSaveID 当前存档ID，未设置时返回空字符串和false
func (s *SocialStore) CurrentSaveID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Saves.CurrentSaveID == nil {
		return "", false
	}
	return *s.state.Saves.CurrentSaveID, true
}

// CreateSaveSlot 新建存档槽，ID已存在时报错
func (s *SocialStore) CreateSaveSlot(id string, slot SaveSlot) error {
	return s.mutate("create_save_slot", func(st *SocialState) error {
		return st.CreateSaveSlot(id, slot, s.now())
	})
}

// CreateSaveSlot 直接修改状态
func (st *SocialState) CreateSaveSlot(id string, slot SaveSlot, now time.Time) error {
	if id == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "存档ID不能为空")
	}
	if _, exists := st.Saves.SaveSlots[id]; exists {
		return apperrors.New(apperrors.ErrSaveSlotExists, id)
	}
	st.Saves.put(id, slot, now)
	st.Saves.record("create", id, now)
	return nil
}

// PutSaveSlot 新建或覆盖存档槽
func (s *SocialStore) PutSaveSlot(id string, slot SaveSlot) error {
	if id == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "存档ID不能为空")
	}
	return s.mutate("put_save_slot", func(st *SocialState) error {
		action := "create"
		if prev, exists := st.Saves.SaveSlots[id]; exists {
			action = "overwrite"
			slot.CreatedAt = prev.CreatedAt
		}
		st.Saves.put(id, slot, s.now())
		st.Saves.record(action, id, s.now())
		return nil
	})
}

func (sv *Saves) put(id string, slot SaveSlot, now time.Time) {
	slot = slot.Clone()
	slot.ID = id
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	sv.SaveSlots[id] = slot
}

func (sv *Saves) record(action, id string, now time.Time) {
	sv.SaveHistory = append(sv.SaveHistory, SaveEvent{Action: action, SaveID: id, Timestamp: now})
}

// UpdateSaveSlot 部分更新存档槽，不存在时报错
func (s *SocialStore) UpdateSaveSlot(id string, patch SaveSlotPatch) error {
	return s.mutate("update_save_slot", func(st *SocialState) error {
		return st.UpdateSaveSlot(id, patch, s.now())
	})
}

// UpdateSaveSlot 直接修改状态
func (st *SocialState) UpdateSaveSlot(id string, patch SaveSlotPatch, now time.Time) error {
	slot, ok := st.Saves.SaveSlots[id]
	if !ok {
		return apperrors.New(apperrors.ErrSaveSlotNotFound, id)
	}
	if patch.Name != nil {
		slot.Name = *patch.Name
	}
	if patch.CharacterName != nil {
		slot.CharacterName = *patch.CharacterName
	}
	if patch.GameDay != nil {
		slot.GameDay = *patch.GameDay
	}
	if patch.PlayerLevel != nil {
		slot.PlayerLevel = *patch.PlayerLevel
	}
	if patch.Snapshot != nil {
		snap := patch.Snapshot.Clone()
		slot.Snapshot = &snap
	}
	slot.UpdatedAt = now
	st.Saves.SaveSlots[id] = slot
	st.Saves.record("update", id, now)
	return nil
}

// DeleteSaveSlot 删除存档槽；若删除的是当前存档则清空当前存档
func (s *SocialStore) DeleteSaveSlot(id string) bool {
	err := s.mutate("delete_save_slot", func(st *SocialState) error {
		if !st.DeleteSaveSlot(id, s.now()) {
			return errNoChange
		}
		return nil
	})
	return err == nil
}

// DeleteSaveSlot 返回存档是否存在
func (st *SocialState) DeleteSaveSlot(id string, now time.Time) bool {
	if _, ok := st.Saves.SaveSlots[id]; !ok {
		return false
	}
	delete(st.Saves.SaveSlots, id)
	if st.Saves.CurrentSaveID != nil && *st.Saves.CurrentSaveID == id {
		st.Saves.CurrentSaveID = nil
	}
	st.Saves.record("delete", id, now)
	return true
}

// SetCurrentSave 设置当前存档，存档必须存在
func (s *SocialStore) SetCurrentSave(id string) error {
	return s.mutate("set_current_save", func(st *SocialState) error {
		return st.SetCurrentSave(id, s.now())
	})
}

// SetCurrentSave 直接修改状态
func (st *SocialState) SetCurrentSave(id string, now time.Time) error {
	if _, ok := st.Saves.SaveSlots[id]; !ok {
		return apperrors.New(apperrors.ErrSaveSlotNotFound, id)
	}
	current := id
	st.Saves.CurrentSaveID = &current
	st.Saves.record("set_current", id, now)
	return nil
}

// LoadSaveSlot 切换到指定存档并返回存档内容
// 存档不存在时记录警告并返回false，当前存档保持不变
func (s *SocialStore) LoadSaveSlot(id string) (SaveSlot, bool) {
	var loaded SaveSlot
	err := s.mutate("load_save_slot", func(st *SocialState) error {
		slot, ok := st.Saves.SaveSlots[id]
		if !ok {
			return apperrors.New(apperrors.ErrSaveSlotNotFound, id)
		}
		current := id
		st.Saves.CurrentSaveID = &current
		st.Saves.record("load", id, s.now())
		loaded = slot.Clone()
		return nil
	})
	if err != nil {
		s.logger.Warn("加载存档失败", zap.String("save_id", id), zap.Error(err))
		return SaveSlot{}, false
	}
	return loaded, true
}

// ResetSocial 恢复初始状态
func (s *SocialStore) ResetSocial() {
	_ = s.mutate("reset", func(st *SocialState) error {
		*st = InitialSocialState()
		return nil
	})
}

// errNoChange 内部哨兵：操作未改变状态，不发布事件
var errNoChange = errors.New("no change")
