package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagMap_Basics(t *testing.T) {
	m := NewFlagMap[bool]()
	assert.False(t, m.Has("a"))
	assert.False(t, m.Get("a"))

	m.Set("b", true)
	m.Set("a", false)
	assert.True(t, m.Has("a"))
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"a", "b"}, m.Keys())

	c := m.Clone()
	m.Delete("b")
	assert.False(t, m.Has("b"))
	assert.True(t, c.Has("b"), "克隆不受原表修改影响")
}

func TestFlagMap_MarshalPairs(t *testing.T) {
	m := FlagMap[float64]{"stress": 0.5, "academic": 0.7}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `[["academic",0.7],["stress",0.5]]`, string(data))
}

func TestFlagMap_UnmarshalBothShapes(t *testing.T) {
	t.Run("数组形态", func(t *testing.T) {
		var m FlagMap[bool]
		require.NoError(t, json.Unmarshal([]byte(`[["character_created",true],["seen_intro",false]]`), &m))
		assert.True(t, m.Get("character_created"))
		assert.True(t, m.Has("seen_intro"))
	})

	t.Run("对象形态", func(t *testing.T) {
		var m FlagMap[string]
		require.NoError(t, json.Unmarshal([]byte(`{"main_arc":"active"}`), &m))
		assert.Equal(t, "active", m.Get("main_arc"))
	})

	t.Run("null还原为空表", func(t *testing.T) {
		var m FlagMap[bool]
		require.NoError(t, json.Unmarshal([]byte(`null`), &m))
		require.NotNil(t, m)
		assert.Equal(t, 0, m.Len())
	})

	t.Run("非法形态", func(t *testing.T) {
		var m FlagMap[bool]
		assert.Error(t, json.Unmarshal([]byte(`"oops"`), &m))
		assert.Error(t, json.Unmarshal([]byte(`[["only-key"]]`), &m))
		assert.Error(t, json.Unmarshal([]byte(`[["k","not-bool"]]`), &m))
	})
}

func TestFlags_RoundTripInsideState(t *testing.T) {
	st := InitialNarrativeState()
	st.Flags.Storylet.Set(CharacterCreatedFlag, true)
	st.Flags.Concerns.Set("stress", 0.3)
	st.Flags.StoryArc.Set("mentor", "started")

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var decoded NarrativeState
	require.NoError(t, json.Unmarshal(data, &decoded))
	decoded.Normalize()

	assert.True(t, decoded.Flags.Storylet.Get(CharacterCreatedFlag))
	assert.Equal(t, 0.3, decoded.Flags.Concerns.Get("stress"))
	assert.Equal(t, "started", decoded.Flags.StoryArc.Get("mentor"))
	assert.NotNil(t, decoded.Flags.StoryletFlag)
}
