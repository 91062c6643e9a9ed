package game

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/lifesim/internal/persistence"
	"github.com/wfunc/lifesim/internal/store"
)

func TestAutoSaver_CoalescesRapidTriggers(t *testing.T) {
	var calls atomic.Int64
	a := NewAutoSaver(&AutoSaverConfig{
		Save:     func(context.Context) error { calls.Add(1); return nil },
		Debounce: 30 * time.Millisecond,
		Enabled:  true,
	})
	defer a.Stop()

	for i := 0; i < 10; i++ {
		a.Trigger()
	}

	assert.Eventually(t, func() bool { return a.Saves() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(10), a.Triggers())
	assert.Equal(t, int64(1), a.Saves())
	assert.Equal(t, int64(1), calls.Load())
}

func TestAutoSaver_StaleFireKeepsNewTimer(t *testing.T) {
	var calls atomic.Int64
	a := NewAutoSaver(&AutoSaverConfig{
		Save:     func(context.Context) error { calls.Add(1); return nil },
		Debounce: time.Hour,
		Enabled:  true,
	})
	defer a.Stop()

	a.Trigger()
	a.mu.Lock()
	stale := a.gen
	a.mu.Unlock()
	a.Trigger()

	// 旧定时器在重新计时的同时到期
	a.fire(stale)
	assert.Zero(t, calls.Load())

	a.Flush(context.Background())
	assert.Equal(t, int64(1), calls.Load())
}

func TestAutoSaver_Disabled(t *testing.T) {
	a := NewAutoSaver(&AutoSaverConfig{
		Save:     func(context.Context) error { return nil },
		Debounce: time.Millisecond,
		Enabled:  false,
	})
	set := store.NewSet()
	a.Attach(set.Bus)

	set.Core.AdvanceDay(1)
	a.Trigger()
	time.Sleep(20 * time.Millisecond)

	assert.False(t, a.Enabled())
	assert.Zero(t, a.Triggers())
	assert.Zero(t, a.Saves())
}

func TestAutoSaver_AttachAndFlush(t *testing.T) {
	o, p := newTestOrchestrator(t)
	a := NewAutoSaver(&AutoSaverConfig{
		Save:     o.PersistAll,
		Debounce: time.Hour,
		Enabled:  true,
	})
	a.Attach(o.Stores().Bus)
	defer a.Stop()

	o.Stores().Core.AdvanceDay(1)
	o.Stores().Social.UpdateRelationship("coach", 1)
	assert.Equal(t, int64(2), a.Triggers())
	assert.Zero(t, a.Saves())

	a.Flush(context.Background())
	assert.Equal(t, int64(1), a.Saves())
	assert.Equal(t, 3, p.Len())

	doc, err := p.Load(context.Background(), store.CoreGameKey)
	require.NoError(t, err)
	var core store.CoreState
	require.NoError(t, persistence.Decode(doc, &core))
	assert.Equal(t, 2, core.World.Day)

	// 没有待保存内容时Flush不保存
	a.Flush(context.Background())
	assert.Equal(t, int64(1), a.Saves())
}

func TestAutoSaver_StopDropsPending(t *testing.T) {
	a := NewAutoSaver(&AutoSaverConfig{
		Save:     func(context.Context) error { return errors.New("should not run") },
		Debounce: 10 * time.Millisecond,
		Enabled:  true,
	})
	a.Trigger()
	a.Stop()
	time.Sleep(30 * time.Millisecond)

	a.Trigger()
	assert.Equal(t, int64(1), a.Triggers())
	assert.Zero(t, a.Saves())
}
