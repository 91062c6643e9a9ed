package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/persistence"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *persistence.MemoryPersister) {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	p := persistence.NewMemoryPersister()
	o := NewOrchestrator(&OrchestratorConfig{
		Stores:    store.NewSet(store.WithClock(clock)),
		Persister: p,
		Now:       clock,
	})
	return o, p
}

func athlete(name string) CharacterCreationData {
	return CharacterCreationData{
		Name:              name,
		Background:        BackgroundAthlete,
		Attributes:        map[string]int{"strength": 70},
		DomainAdjustments: map[string]int{"strength": 10, "intelligence": -10},
	}
}

func TestCreateCharacterAtomically(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("  Test  ")))

	view := o.Stores().View()
	assert.Equal(t, "Test", view.Core.Character.Name)
	assert.Equal(t, BackgroundAthlete, view.Core.Character.Background)
	assert.Equal(t, 80, view.Core.Character.Attributes["strength"])
	assert.Equal(t, 40, view.Core.Character.Attributes["intelligence"])
	assert.Equal(t, 50, view.Core.Character.Attributes["wisdom"])
	assert.Equal(t, 0.8, view.Core.Character.DevelopmentStats["physical"])
	assert.Equal(t, 2, view.Core.Skills.CoreCompetencies["endurance"])
	assert.Equal(t, 1, view.Core.World.Day)
	assert.False(t, view.Core.World.IsTimePaused)

	assert.Equal(t, 0.8, view.Narrative.Concerns.Current["health"])
	require.Len(t, view.Narrative.Concerns.History, 1)
	assert.Equal(t, "character_creation", view.Narrative.Concerns.History[0].Action)
	assert.True(t, o.Stores().Narrative.GetStoryletFlag(store.CharacterCreatedFlag))
}

func TestCreateCharacterAtomically_InvalidLeavesStoresUntouched(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	o.Stores().Core.AdvanceDay(4)
	o.Stores().Social.UpdateRelationship("mentor", 3)
	before := o.Stores().View()

	err := o.CreateCharacterAtomically(ctx, CharacterCreationData{Name: "", Background: "pirate"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, before, o.Stores().View())
}

func TestCreateCharacterAtomically_ReplacesPreviousGame(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("First")))
	o.Stores().Core.AdvanceDay(10)
	o.Stores().Narrative.AddActiveStorylet("intro")

	require.NoError(t, o.CreateCharacterAtomically(ctx, CharacterCreationData{Name: "Second", Background: BackgroundArtist}))
	view := o.Stores().View()
	assert.Equal(t, "Second", view.Core.Character.Name)
	assert.Equal(t, 1, view.Core.World.Day)
	assert.Empty(t, view.Narrative.Storylets.Active)
	assert.Equal(t, 0.8, view.Narrative.Concerns.Current["creative"])
}

func TestCreateCharacterAtomically_NoObserverSeesPartialState(t *testing.T) {
	// P4: 任何观察者都看不到有角色但没有关注点的状态
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	var mu sync.Mutex
	violations := 0
	check := func() {
		v := o.Stores().View()
		if v.Core.Character.Name != "" && len(v.Narrative.Concerns.Current) == 0 {
			mu.Lock()
			violations++
			mu.Unlock()
		}
	}
	unsubscribe := o.Stores().Bus.Subscribe(func(store.Change) { check() })
	defer unsubscribe()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				check()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
		o.ResetAllGameState()
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, violations)
}

func TestResetAllGameState(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
	_, err := o.SaveGame(ctx, "s1", "Slot 1")
	require.NoError(t, err)

	o.ResetAllGameState()
	assert.Equal(t, store.InitialView(), o.Stores().View())

	o.ResetAllGameState()
	assert.Equal(t, store.InitialView(), o.Stores().View())
}

func TestEndToEnd_CreateSaveLoad(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	o.ResetAllGameState()
	require.NoError(t, o.CreateCharacterAtomically(ctx, CharacterCreationData{Name: "Test", Background: BackgroundAthlete}))

	slot, err := o.SaveGame(ctx, "s1", "First")
	require.NoError(t, err)
	assert.Equal(t, "s1", slot.ID)
	assert.Equal(t, "Test", slot.CharacterName)
	assert.Equal(t, 1, slot.GameDay)
	assert.Equal(t, 1, slot.PlayerLevel)
	assert.Equal(t, fixedNow, slot.CreatedAt)
	require.NotNil(t, slot.Snapshot)

	require.NoError(t, o.LoadGame(ctx, "s1"))
	current, ok := o.Stores().Social.CurrentSaveID()
	require.True(t, ok)
	assert.Equal(t, "s1", current)
	assert.Equal(t, "Test", o.Stores().Core.Character().Name)
}

func TestLoadGame_RestoresSnapshot(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
	o.Stores().Social.UpdateRelationship("coach", 5)
	_, err := o.SaveGame(ctx, "s1", "")
	require.NoError(t, err)

	o.Stores().Core.AdvanceDay(6)
	o.Stores().Social.UpdateRelationship("coach", 10)
	o.Stores().Narrative.AddActiveStorylet("rival")

	require.NoError(t, o.LoadGame(ctx, "s1"))
	view := o.Stores().View()
	assert.Equal(t, 1, view.Core.World.Day)
	assert.Equal(t, 5, view.Social.NPCs.Relationships["coach"])
	assert.Empty(t, view.Narrative.Storylets.Active)

	// 存档目录不随快照回退
	assert.Contains(t, view.Social.Saves.SaveSlots, "s1")
	last := view.Social.Saves.SaveHistory[len(view.Social.Saves.SaveHistory)-1]
	assert.Equal(t, "load", last.Action)
	assert.Equal(t, "s1", last.SaveID)
}

func TestLoadGame_MissingSlot(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
	_, err := o.SaveGame(ctx, "s1", "")
	require.NoError(t, err)
	before := o.Stores().View()

	err = o.LoadGame(ctx, "nope")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSaveSlotNotFound))
	assert.Equal(t, before, o.Stores().View())

	current, _ := o.Stores().Social.CurrentSaveID()
	assert.Equal(t, "s1", current)
}

func TestLoadGame_MetadataOnlySlot(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.Stores().Social.CreateSaveSlot("legacy", store.SaveSlot{Name: "Legacy"}))
	o.Stores().Core.AdvanceDay(2)

	require.NoError(t, o.LoadGame(ctx, "legacy"))
	current, _ := o.Stores().Social.CurrentSaveID()
	assert.Equal(t, "legacy", current)
	assert.Equal(t, 3, o.Stores().Core.World().Day, "没有快照时核心状态不变")
}

func TestDeleteSave(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	_, err := o.SaveGame(ctx, "s1", "")
	require.NoError(t, err)

	require.NoError(t, o.DeleteSave(ctx, "s1"))
	_, ok := o.Stores().Social.CurrentSaveID()
	assert.False(t, ok)

	err = o.DeleteSave(ctx, "s1")
	assert.True(t, apperrors.Is(err, apperrors.ErrSaveSlotNotFound))
}

func TestSaveGame_EmptyID(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.SaveGame(context.Background(), "", "x")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}

func TestPersistAndHydrate(t *testing.T) {
	o, p := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
	o.Stores().Social.UpdateRelationship("coach", 4)
	_, err := o.SaveGame(ctx, "s1", "")
	require.NoError(t, err)
	want := o.Stores().View()

	require.NoError(t, o.PersistAll(ctx))
	assert.Equal(t, 3, p.Len())

	restored := NewOrchestrator(&OrchestratorConfig{Persister: p})
	require.NoError(t, restored.HydrateAll(ctx))

	got := restored.Stores().View()
	assert.Equal(t, want.Core, got.Core)
	assert.Equal(t, want.Social.NPCs, got.Social.NPCs)
	assert.Equal(t, want.Narrative.Concerns.Current, got.Narrative.Concerns.Current)
	assert.True(t, restored.Stores().Narrative.GetStoryletFlag(store.CharacterCreatedFlag))
	current, ok := restored.Stores().Social.CurrentSaveID()
	require.True(t, ok)
	assert.Equal(t, "s1", current)
}

func TestHydrateAll_NoDocuments(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	require.NoError(t, o.HydrateAll(context.Background()))
	assert.Equal(t, store.InitialView(), o.Stores().View())
}

func TestHydrateAll_UnsupportedVersion(t *testing.T) {
	o, p := newTestOrchestrator(t)
	ctx := context.Background()

	o.Stores().Core.AdvanceDay(2)
	before := o.Stores().View()

	require.NoError(t, p.Save(ctx, store.CoreGameKey, &persistence.Document{
		Version: persistence.CurrentVersion + 1,
		State:   json.RawMessage(`{}`),
	}))

	err := o.HydrateAll(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSnapshotVersion))
	assert.Equal(t, before, o.Stores().View())
}

func TestSaveGame_Archives(t *testing.T) {
	db := repository.SetupTestDB(t)
	archives := repository.NewSaveArchiveRepository(db)
	o := NewOrchestrator(&OrchestratorConfig{Archives: archives})
	ctx := context.Background()

	require.NoError(t, o.CreateCharacterAtomically(ctx, athlete("Test")))
	_, err := o.SaveGame(ctx, "s1", "Archived")
	require.NoError(t, err)

	archive, err := archives.FindBySaveID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Archived", archive.Name)
	assert.Equal(t, "Test", archive.CharacterName)

	list, err := o.ListArchives(ctx, repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// 本地存档删除后可以从归档恢复
	o.Stores().Social.DeleteSaveSlot("s1")
	slot, err := o.RestoreArchive(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, slot.Snapshot)
	assert.Equal(t, "Test", slot.Snapshot.Core.Character.Name)
	require.NoError(t, o.LoadGame(ctx, "s1"))

	require.NoError(t, o.DeleteSave(ctx, "s1"))
	_, err = archives.FindBySaveID(ctx, "s1")
	assert.Error(t, err)
}

func TestListArchives_Disabled(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	list, err := o.ListArchives(context.Background(), repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = o.RestoreArchive(context.Background(), "s1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotImplemented))
}
