package game

import "github.com/wfunc/lifesim/internal/store"

// 角色背景
const (
	BackgroundScholar = "scholar"
	BackgroundAthlete = "athlete"
	BackgroundArtist  = "artist"
	BackgroundSocial  = "social"
	BackgroundDefault = "default"
)

// BaseAttributes 六项基础属性，未指定时为 BaseAttributeValue
var BaseAttributes = []string{"intelligence", "creativity", "charisma", "strength", "dexterity", "wisdom"}

const (
	BaseAttributeValue = 50
	MinAttribute       = 5
	MaxAttribute       = 100
)

// Background 背景决定的初始状态
type Background struct {
	DevelopmentStats      map[string]float64
	CoreCompetencies      map[string]int
	FoundationExperiences map[string]int
	CharacterClasses      map[string]bool
	TotalExperience       int
	Concerns              map[string]float64
}

var backgrounds = map[string]Background{
	BackgroundScholar: {
		DevelopmentStats:      map[string]float64{"academic": 0.7, "physical": 0.3, "creative": 0.4, "social": 0.4},
		CoreCompetencies:      map[string]int{"research": 2, "analysis": 2, "writing": 1},
		FoundationExperiences: map[string]int{"library": 2, "lectures": 1},
		CharacterClasses:      map[string]bool{"scholar": true},
		TotalExperience:       50,
		Concerns:              map[string]float64{"academic": 0.7, "social": 0.4, "health": 0.3, "career": 0.5},
	},
	BackgroundAthlete: {
		DevelopmentStats:      map[string]float64{"academic": 0.3, "physical": 0.8, "creative": 0.3, "social": 0.5},
		CoreCompetencies:      map[string]int{"endurance": 2, "teamwork": 2, "discipline": 1},
		FoundationExperiences: map[string]int{"training": 2, "competition": 1},
		CharacterClasses:      map[string]bool{"athlete": true},
		TotalExperience:       50,
		Concerns:              map[string]float64{"academic": 0.4, "social": 0.5, "health": 0.8, "career": 0.4},
	},
	BackgroundArtist: {
		DevelopmentStats:      map[string]float64{"academic": 0.4, "physical": 0.3, "creative": 0.8, "social": 0.4},
		CoreCompetencies:      map[string]int{"expression": 2, "observation": 2, "craft": 1},
		FoundationExperiences: map[string]int{"studio": 2, "gallery": 1},
		CharacterClasses:      map[string]bool{"artist": true},
		TotalExperience:       50,
		Concerns:              map[string]float64{"academic": 0.3, "social": 0.5, "health": 0.3, "creative": 0.8},
	},
	BackgroundSocial: {
		DevelopmentStats:      map[string]float64{"academic": 0.4, "physical": 0.4, "creative": 0.4, "social": 0.8},
		CoreCompetencies:      map[string]int{"persuasion": 2, "empathy": 2, "networking": 1},
		FoundationExperiences: map[string]int{"events": 2, "volunteering": 1},
		CharacterClasses:      map[string]bool{"socialite": true},
		TotalExperience:       50,
		Concerns:              map[string]float64{"academic": 0.4, "social": 0.8, "health": 0.4, "career": 0.5},
	},
	BackgroundDefault: {
		DevelopmentStats:      map[string]float64{"academic": 0.5, "physical": 0.5, "creative": 0.5, "social": 0.5},
		CoreCompetencies:      map[string]int{},
		FoundationExperiences: map[string]int{},
		CharacterClasses:      map[string]bool{},
		TotalExperience:       0,
		Concerns:              map[string]float64{"academic": 0.5, "social": 0.5, "health": 0.5, "career": 0.5},
	},
}

// IsKnownBackground 是否为已知背景
func IsKnownBackground(name string) bool {
	_, ok := backgrounds[name]
	return ok
}

// LookupBackground 查找背景，未知背景回退到 default
func LookupBackground(name string) Background {
	if bg, ok := backgrounds[name]; ok {
		return bg
	}
	return backgrounds[BackgroundDefault]
}

// Skills 背景对应的初始技能
func (b Background) Skills() store.Skills {
	return store.Skills{
		TotalExperience:       b.TotalExperience,
		CoreCompetencies:      copyMap(b.CoreCompetencies),
		FoundationExperiences: copyMap(b.FoundationExperiences),
		CharacterClasses:      copyMap(b.CharacterClasses),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
