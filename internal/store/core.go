package store

import (
	"sync"

	apperrors "github.com/wfunc/lifesim/internal/errors"
)

// ExperiencePerLevel 每级所需经验
const ExperiencePerLevel = 100

// Player 玩家成长数据
type Player struct {
	Level       int                `json:"level"`
	Experience  int                `json:"experience"`
	SkillPoints int                `json:"skillPoints"`
	Resources   map[string]float64 `json:"resources"`
}

// Character 当前角色，Name为空表示尚未创建
type Character struct {
	Name             string             `json:"name"`
	Background       string             `json:"background"`
	Attributes       map[string]int     `json:"attributes"`
	DevelopmentStats map[string]float64 `json:"developmentStats"`
}

// Skills 技能与能力
type Skills struct {
	TotalExperience       int             `json:"totalExperience"`
	CoreCompetencies      map[string]int  `json:"coreCompetencies"`
	FoundationExperiences map[string]int  `json:"foundationExperiences"`
	CharacterClasses      map[string]bool `json:"characterClasses"`
}

// World 世界状态
type World struct {
	Day            int               `json:"day"`
	TimeAllocation map[string]string `json:"timeAllocation"`
	IsTimePaused   bool              `json:"isTimePaused"`
}

// CoreState 核心存储的数据投影
type CoreState struct {
	Player    Player    `json:"player"`
	Character Character `json:"character"`
	Skills    Skills    `json:"skills"`
	World     World     `json:"world"`
}

// InitialCoreState 核心存储初始状态
func InitialCoreState() CoreState {
	return CoreState{
		Player: Player{Level: 1, Resources: map[string]float64{}},
		Character: Character{
			Attributes:       map[string]int{},
			DevelopmentStats: map[string]float64{},
		},
		Skills: Skills{
			CoreCompetencies:      map[string]int{},
			FoundationExperiences: map[string]int{},
			CharacterClasses:      map[string]bool{},
		},
		World: World{Day: 1, TimeAllocation: map[string]string{}},
	}
}

// Clone 深拷贝
func (s CoreState) Clone() CoreState {
	s.Player.Resources = cloneMap(s.Player.Resources)
	s.Character.Attributes = cloneMap(s.Character.Attributes)
	s.Character.DevelopmentStats = cloneMap(s.Character.DevelopmentStats)
	s.Skills.CoreCompetencies = cloneMap(s.Skills.CoreCompetencies)
	s.Skills.FoundationExperiences = cloneMap(s.Skills.FoundationExperiences)
	s.Skills.CharacterClasses = cloneMap(s.Skills.CharacterClasses)
	s.World.TimeAllocation = cloneMap(s.World.TimeAllocation)
	return s
}

// Normalize 补齐反序列化后缺失的集合字段
func (s *CoreState) Normalize() {
	if s.Player.Resources == nil {
		s.Player.Resources = map[string]float64{}
	}
	if s.Character.Attributes == nil {
		s.Character.Attributes = map[string]int{}
	}
	if s.Character.DevelopmentStats == nil {
		s.Character.DevelopmentStats = map[string]float64{}
	}
	if s.Skills.CoreCompetencies == nil {
		s.Skills.CoreCompetencies = map[string]int{}
	}
	if s.Skills.FoundationExperiences == nil {
		s.Skills.FoundationExperiences = map[string]int{}
	}
	if s.Skills.CharacterClasses == nil {
		s.Skills.CharacterClasses = map[string]bool{}
	}
	if s.World.TimeAllocation == nil {
		s.World.TimeAllocation = map[string]string{}
	}
	if s.World.Day < 1 {
		s.World.Day = 1
	}
	if s.Player.Level < 1 {
		s.Player.Level = 1
	}
}

// PlayerPatch 玩家部分更新，nil字段保持不变
type PlayerPatch struct {
	Level       *int               `json:"level,omitempty"`
	Experience  *int               `json:"experience,omitempty"`
	SkillPoints *int               `json:"skillPoints,omitempty"`
	Resources   map[string]float64 `json:"resources,omitempty"`
}

// CharacterPatch 角色部分更新
type CharacterPatch struct {
	Name             *string            `json:"name,omitempty"`
	Background       *string            `json:"background,omitempty"`
	Attributes       map[string]int     `json:"attributes,omitempty"`
	DevelopmentStats map[string]float64 `json:"developmentStats,omitempty"`
}

// SkillsPatch 技能部分更新
type SkillsPatch struct {
	TotalExperience       *int            `json:"totalExperience,omitempty"`
	CoreCompetencies      map[string]int  `json:"coreCompetencies,omitempty"`
	FoundationExperiences map[string]int  `json:"foundationExperiences,omitempty"`
	CharacterClasses      map[string]bool `json:"characterClasses,omitempty"`
}

// WorldPatch 世界部分更新
type WorldPatch struct {
	Day            *int              `json:"day,omitempty"`
	TimeAllocation map[string]string `json:"timeAllocation,omitempty"`
	IsTimePaused   *bool             `json:"isTimePaused,omitempty"`
}

// Apply 浅合并到玩家数据
func (p PlayerPatch) Apply(dst *Player) {
	if p.Level != nil {
		dst.Level = *p.Level
	}
	if p.Experience != nil {
		dst.Experience = *p.Experience
	}
	if p.SkillPoints != nil {
		dst.SkillPoints = *p.SkillPoints
	}
	if p.Resources != nil {
		dst.Resources = cloneMap(p.Resources)
	}
}

// Apply 浅合并到角色数据
func (p CharacterPatch) Apply(dst *Character) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Background != nil {
		dst.Background = *p.Background
	}
	if p.Attributes != nil {
		dst.Attributes = cloneMap(p.Attributes)
	}
	if p.DevelopmentStats != nil {
		dst.DevelopmentStats = cloneMap(p.DevelopmentStats)
	}
}

// Apply 浅合并到技能数据
func (p SkillsPatch) Apply(dst *Skills) {
	if p.TotalExperience != nil {
		dst.TotalExperience = *p.TotalExperience
	}
	if p.CoreCompetencies != nil {
		dst.CoreCompetencies = cloneMap(p.CoreCompetencies)
	}
	if p.FoundationExperiences != nil {
		dst.FoundationExperiences = cloneMap(p.FoundationExperiences)
	}
	if p.CharacterClasses != nil {
		dst.CharacterClasses = cloneMap(p.CharacterClasses)
	}
}

// Apply 浅合并到世界数据
func (p WorldPatch) Apply(dst *World) {
	if p.Day != nil {
		dst.Day = *p.Day
	}
	if p.TimeAllocation != nil {
		dst.TimeAllocation = cloneMap(p.TimeAllocation)
	}
	if p.IsTimePaused != nil {
		dst.IsTimePaused = *p.IsTimePaused
	}
}

// CoreGameStore 玩家、角色、技能与世界状态
type CoreGameStore struct {
	base
	mu    sync.RWMutex
	state CoreState
}

// NewCoreGameStore 创建核心存储
func NewCoreGameStore(opts ...Option) *CoreGameStore {
	return &CoreGameStore{
		base:  newBase(CoreGameKey, opts),
		state: InitialCoreState(),
	}
}

func (s *CoreGameStore) mutate(action string, fn func(st *CoreState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.publish(action)
}

// State 返回状态深拷贝
func (s *CoreGameStore) State() CoreState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Replace 整体替换状态
func (s *CoreGameStore) Replace(state CoreState) {
	s.mutate("replace", func(st *CoreState) { *st = state.Clone() })
}

// Capture 捕获快照
func (s *CoreGameStore) Capture() any {
	return s.State()
}

// Restore 从快照恢复
func (s *CoreGameStore) Restore(snapshot any) error {
	switch st := snapshot.(type) {
	case CoreState:
		s.Replace(st)
	case *CoreState:
		s.Replace(*st)
	default:
		return apperrors.Newf(apperrors.ErrInvalidSnapshot, "%s: %T", s.key, snapshot)
	}
	return nil
}

// Player 当前玩家数据
func (s *CoreGameStore) Player() Player {
	return s.State().Player
}

// Character 当前角色
func (s *CoreGameStore) Character() Character {
	return s.State().Character
}

// Skills 当前技能
func (s *CoreGameStore) Skills() Skills {
	return s.State().Skills
}

// World 当前世界状态
func (s *CoreGameStore) World() World {
	return s.State().World
}

// HasCharacter 是否已创建角色
func (s *CoreGameStore) HasCharacter() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Character.Name != ""
}

// UpdatePlayer 合并玩家字段
func (s *CoreGameStore) UpdatePlayer(p PlayerPatch) {
	s.mutate("update_player", func(st *CoreState) { p.Apply(&st.Player) })
}

// UpdateCharacter 合并角色字段
func (s *CoreGameStore) UpdateCharacter(p CharacterPatch) {
	s.mutate("update_character", func(st *CoreState) { p.Apply(&st.Character) })
}

// UpdateSkills 合并技能字段
func (s *CoreGameStore) UpdateSkills(p SkillsPatch) {
	s.mutate("update_skills", func(st *CoreState) { p.Apply(&st.Skills) })
}

// UpdateWorld 合并世界字段
func (s *CoreGameStore) UpdateWorld(p WorldPatch) {
	s.mutate("update_world", func(st *CoreState) { p.Apply(&st.World) })
}

// AdvanceDay 推进天数，n<=0时不变
func (s *CoreGameStore) AdvanceDay(n int) {
	if n <= 0 {
		return
	}
	s.mutate("advance_day", func(st *CoreState) { st.World.Day += n })
}

// AddExperience 增加经验，每满100升一级并获得1技能点
func (s *CoreGameStore) AddExperience(xp int) {
	if xp == 0 {
		return
	}
	s.mutate("add_experience", func(st *CoreState) {
		st.Player.Experience += xp
		if st.Player.Experience < 0 {
			st.Player.Experience = 0
		}
		if xp > 0 {
			st.Skills.TotalExperience += xp
		}
		for st.Player.Experience >= ExperiencePerLevel {
			st.Player.Experience -= ExperiencePerLevel
			st.Player.Level++
			st.Player.SkillPoints++
		}
	})
}

// ResetGame 恢复初始状态
func (s *CoreGameStore) ResetGame() {
	s.mutate("reset", func(st *CoreState) { *st = InitialCoreState() })
}
