package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCoreGameStore_InitialState(t *testing.T) {
	s := NewCoreGameStore()
	st := s.State()

	assert.Equal(t, 1, st.Player.Level)
	assert.Equal(t, 0, st.Player.Experience)
	assert.Empty(t, st.Character.Name)
	assert.Equal(t, 1, st.World.Day)
	assert.False(t, st.World.IsTimePaused)
	assert.False(t, s.HasCharacter())
	assert.Equal(t, CoreGameKey, s.Key())
}

func TestCoreGameStore_ShallowMerge(t *testing.T) {
	s := NewCoreGameStore()
	s.UpdateCharacter(CharacterPatch{Name: strPtr("Ana"), Background: strPtr("scholar")})
	before := s.State()

	s.UpdatePlayer(PlayerPatch{Experience: intPtr(40)})
	after := s.State()

	assert.Equal(t, 40, after.Player.Experience)
	assert.Equal(t, 1, after.Player.Level, "未指定字段保持不变")
	assert.Equal(t, before.Character, after.Character, "其他子对象不受影响")
	assert.Equal(t, before.World, after.World)

	s.UpdateWorld(WorldPatch{TimeAllocation: map[string]string{"morning": "study"}})
	assert.Equal(t, "study", s.World().TimeAllocation["morning"])
	assert.Equal(t, 1, s.World().Day)
}

func TestCoreGameStore_StateIsCopy(t *testing.T) {
	s := NewCoreGameStore()
	s.UpdatePlayer(PlayerPatch{Resources: map[string]float64{"energy": 80}})

	st := s.State()
	st.Player.Resources["energy"] = 0

	assert.Equal(t, 80.0, s.Player().Resources["energy"])
}

func TestCoreGameStore_AdvanceDayAndExperience(t *testing.T) {
	s := NewCoreGameStore()
	s.AdvanceDay(3)
	s.AdvanceDay(-5)
	assert.Equal(t, 4, s.World().Day)

	s.AddExperience(250)
	p := s.Player()
	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 50, p.Experience)
	assert.Equal(t, 2, p.SkillPoints)
	assert.Equal(t, 250, s.Skills().TotalExperience)

	s.AddExperience(-500)
	assert.Equal(t, 0, s.Player().Experience)
	assert.Equal(t, 3, s.Player().Level)
}

func TestCoreGameStore_ResetAndRestore(t *testing.T) {
	s := NewCoreGameStore()
	s0 := s.Capture()

	s.UpdateCharacter(CharacterPatch{Name: strPtr("Ana")})
	s.AdvanceDay(10)
	s.ResetGame()
	assert.Equal(t, InitialCoreState(), s.State())

	s.UpdateCharacter(CharacterPatch{Name: strPtr("Bo")})
	require.NoError(t, s.Restore(s0))
	assert.Equal(t, s0, s.State())

	assert.Error(t, s.Restore("bogus"))
}
