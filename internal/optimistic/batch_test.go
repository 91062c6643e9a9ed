package optimistic

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/store"
)

func intPtr(v int) *int { return &v }

func TestBatch_AtomicRollback(t *testing.T) {
	// P8: 第二个操作失败后全部恢复，第三个操作不执行
	set := store.NewSet()
	set.Social.UpdateRelationship("mentor", 1)
	before := set.View()

	b := NewBatch(set, nil)
	result := b.BatchStateUpdates([]Operation{
		UpdateWorld{Patch: store.WorldPatch{Day: intPtr(9)}},
		UpdateSaveSlot{ID: "missing", Patch: store.SaveSlotPatch{GameDay: intPtr(3)}},
		UpdateRelationship{NPCID: "mentor", Delta: 10},
	}, BatchOptions{Atomic: true, RollbackOnFailure: true})

	assert.False(t, result.Success)
	assert.True(t, result.RolledBack)
	assert.Equal(t, BatchNone, result.Status)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, "update_save_slot", result.Results[1].Op)
	assert.Contains(t, result.Results[1].Error, "missing")

	assert.Equal(t, before, set.View())
	assert.Equal(t, 1, set.Social.Relationship("mentor"))
}

func TestBatch_FailedAtomicPublishesNothing(t *testing.T) {
	set := store.NewSet()
	var mu sync.Mutex
	var seen []int
	defer set.Bus.Subscribe(func(store.Change) {
		mu.Lock()
		seen = append(seen, set.Social.Relationship("ally"))
		mu.Unlock()
	})()

	b := NewBatch(set, nil)
	result := b.BatchStateUpdates([]Operation{
		UpdateRelationship{NPCID: "ally", Delta: 5},
		DeleteSaveSlot{ID: "missing"},
	}, BatchOptions{Atomic: true, RollbackOnFailure: true})
	require.True(t, result.RolledBack)

	mu.Lock()
	assert.Empty(t, seen, "中途状态不可见")
	mu.Unlock()
	assert.Equal(t, 0, set.Social.Relationship("ally"))

	result = b.BatchStateUpdates([]Operation{
		UpdateRelationship{NPCID: "ally", Delta: 5},
		SetNPCFlag{NPCID: "ally", Flag: "met", Value: true},
	}, BatchOptions{Atomic: true, RollbackOnFailure: true})
	require.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, v := range seen {
		assert.Equal(t, 5, v)
	}
}

func TestBatch_RollbackKeepsConcurrentWrites(t *testing.T) {
	set := store.NewSet()
	b := NewBatch(set, nil)
	paused := true

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.BatchStateUpdates([]Operation{
				UpdateRelationship{NPCID: "ally", Delta: 5},
				UpdateWorld{Patch: store.WorldPatch{Day: intPtr(7)}},
				DeleteSaveSlot{ID: "missing"},
			}, BatchOptions{Atomic: true, RollbackOnFailure: true})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			set.Social.UpdateRelationship("other", 1)
		}
		set.Core.UpdateWorld(store.WorldPatch{IsTimePaused: &paused})
	}()
	wg.Wait()

	assert.True(t, set.Core.World().IsTimePaused)
	assert.Equal(t, 50, set.Social.Relationship("other"))
	assert.Equal(t, 0, set.Social.Relationship("ally"))
	assert.Equal(t, store.InitialCoreState().World.Day, set.Core.World().Day)
}

func TestBatch_NonAtomicContinues(t *testing.T) {
	set := store.NewSet()
	b := NewBatch(set, nil)

	result := b.BatchStateUpdates([]Operation{
		AddActiveStorylet{ID: "intro", NPCRef: "mentor"},
		DeleteSaveSlot{ID: "missing"},
		UpdateRelationship{NPCID: "mentor", Delta: 4},
	}, BatchOptions{})

	assert.False(t, result.Success)
	assert.False(t, result.RolledBack)
	assert.Equal(t, BatchPartial, result.Status)
	assert.Len(t, result.Results, 3)
	assert.Contains(t, set.Narrative.Storylets().Active, "intro")
	assert.Equal(t, "mentor", set.Narrative.Storylets().NPCRefs["intro"])
	assert.Equal(t, 4, set.Social.Relationship("mentor"))
}

func TestBatch_AtomicWithoutRollbackStops(t *testing.T) {
	set := store.NewSet()
	b := NewBatch(set, nil)

	result := b.BatchStateUpdates([]Operation{
		SetStoryletFlag{Key: "seen_intro", Value: true},
		SetCurrentSave{ID: "nope"},
		SetStoryletFlag{Key: "never", Value: true},
	}, BatchOptions{Atomic: true})

	assert.Equal(t, BatchPartial, result.Status)
	assert.False(t, result.RolledBack)
	assert.Len(t, result.Results, 2)
	assert.True(t, set.Narrative.GetStoryletFlag("seen_intro"))
	assert.False(t, set.Narrative.GetStoryletFlag("never"))
}

func TestBatch_AllSucceed(t *testing.T) {
	set := store.NewSet()
	b := NewBatch(set, nil)

	result := b.BatchStateUpdates([]Operation{
		CreateSaveSlot{ID: "s1", Slot: store.SaveSlot{Name: "One"}},
		SetCurrentSave{ID: "s1"},
		UpdateConcerns{Concerns: map[string]float64{"health": 0.4}},
		UpdateArcProgress{ArcID: "main", Percent: 140},
		DiscoverClue{Clue: store.Clue{ID: "c1", Name: "Letter"}},
		SetNPCFlag{NPCID: "mentor", Flag: "met", Value: true},
		UpdatePlayer{Patch: store.PlayerPatch{SkillPoints: intPtr(2)}},
		CompleteStorylet{ID: "intro"},
	}, BatchOptions{Atomic: true, RollbackOnFailure: true})

	assert.True(t, result.Success)
	assert.Equal(t, BatchAll, result.Status)
	current, ok := set.Social.CurrentSaveID()
	require.True(t, ok)
	assert.Equal(t, "s1", current)
	assert.Equal(t, 100.0, set.Narrative.State().StoryArcs.Progress["main"])
	assert.Equal(t, 2, set.Core.Player().SkillPoints)
	assert.True(t, set.Social.NPCFlag("mentor", "met"))
}

func TestBatch_EmptyIsAll(t *testing.T) {
	result := NewBatch(store.NewSet(), nil).BatchStateUpdates(nil, BatchOptions{})
	assert.True(t, result.Success)
	assert.Equal(t, BatchAll, result.Status)
}

func TestDecodeOperations(t *testing.T) {
	var raws []RawOperation
	require.NoError(t, json.Unmarshal([]byte(`[
		{"store":"core-game-store","op":"update_world","args":{"patch":{"day":4}}},
		{"op":"update_relationship","args":{"npcId":"mentor","delta":-2}},
		{"op":"delete_save_slot","args":{"id":"s1"}}
	]`), &raws))

	ops, err := DecodeOperations(raws)
	require.NoError(t, err)
	require.Len(t, ops, 3)

	world, ok := ops[0].(UpdateWorld)
	require.True(t, ok)
	assert.Equal(t, 4, *world.Patch.Day)
	assert.Equal(t, UpdateRelationship{NPCID: "mentor", Delta: -2}, ops[1])
	assert.Equal(t, store.SocialKey, ops[2].Store())

	_, err = DecodeOperation(RawOperation{Op: "launch_rocket"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownOperation))

	_, err = DecodeOperation(RawOperation{Store: store.SocialKey, Op: "update_world"})
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownStore))

	_, err = DecodeOperation(RawOperation{Op: "update_world", Args: json.RawMessage(`[1]`)})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}
