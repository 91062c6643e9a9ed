package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
)

func TestEncodeDecode(t *testing.T) {
	st := store.InitialNarrativeState()
	st.Flags.Storylet.Set(store.CharacterCreatedFlag, true)

	doc, err := Encode(st)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	assert.Contains(t, string(doc.State), `[["character_created",true]]`)

	var decoded store.NarrativeState
	require.NoError(t, Decode(doc, &decoded))
	assert.True(t, decoded.Flags.Storylet.Get(store.CharacterCreatedFlag))

	err = Decode(&Document{Version: 99, State: doc.State}, &decoded)
	assert.True(t, apperrors.Is(err, apperrors.ErrSnapshotVersion))

	err = Decode(&Document{Version: CurrentVersion, State: []byte(`{"flags":{"storylet":"bad"}}`)}, &decoded)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidSnapshot))

	assert.Error(t, Decode(nil, &decoded))
}

// PersisterTestSuite 对所有实现运行同一组用例
type PersisterTestSuite struct {
	suite.Suite
	newPersister func() Persister
	persister    Persister
	ctx          context.Context
}

func (s *PersisterTestSuite) SetupTest() {
	s.persister = s.newPersister()
	s.ctx = context.Background()
}

func (s *PersisterTestSuite) TestSaveLoadDelete() {
	_, err := s.persister.Load(s.ctx, store.CoreGameKey)
	s.True(IsNotFound(err))

	doc, err := Encode(store.InitialCoreState())
	s.Require().NoError(err)
	s.Require().NoError(s.persister.Save(s.ctx, store.CoreGameKey, doc))

	loaded, err := s.persister.Load(s.ctx, store.CoreGameKey)
	s.Require().NoError(err)
	s.Equal(doc.Version, loaded.Version)
	s.JSONEq(string(doc.State), string(loaded.State))

	s.Require().NoError(s.persister.Delete(s.ctx, store.CoreGameKey))
	_, err = s.persister.Load(s.ctx, store.CoreGameKey)
	s.True(IsNotFound(err))
}

func (s *PersisterTestSuite) TestSaveBatch() {
	view := store.InitialView()
	docs := map[string]*Document{}
	for key, st := range map[string]any{
		store.CoreGameKey:  view.Core,
		store.NarrativeKey: view.Narrative,
		store.SocialKey:    view.Social,
	} {
		doc, err := Encode(st)
		s.Require().NoError(err)
		docs[key] = doc
	}

	s.Require().NoError(s.persister.SaveBatch(s.ctx, docs))
	for key := range docs {
		_, err := s.persister.Load(s.ctx, key)
		s.NoError(err, key)
	}
}

func TestMemoryPersisterSuite(t *testing.T) {
	suite.Run(t, &PersisterTestSuite{newPersister: func() Persister { return NewMemoryPersister() }})
}

func TestDatabasePersisterSuite(t *testing.T) {
	repository.SkipWithoutSQLite(t)
	suite.Run(t, &PersisterTestSuite{newPersister: func() Persister {
		return NewDatabasePersister(repository.SetupTestDB(t))
	}})
}

func TestCachePersisterSuite(t *testing.T) {
	suite.Run(t, &PersisterTestSuite{newPersister: func() Persister {
		return NewCachePersister(NewMemoryPersister(), NewMemoryPersister())
	}})
}

type failingPersister struct {
	*MemoryPersister
}

func (failingPersister) Save(context.Context, string, *Document) error {
	return errors.New("cache down")
}

func (failingPersister) SaveBatch(context.Context, map[string]*Document) error {
	return errors.New("cache down")
}

func TestCachePersister_CacheFailureDoesNotBreakStorage(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryPersister()
	p := NewCachePersister(failingPersister{NewMemoryPersister()}, storage)

	doc := &Document{Version: CurrentVersion, State: []byte(`{}`)}
	require.NoError(t, p.Save(ctx, "k", doc))
	require.NoError(t, p.SaveBatch(ctx, map[string]*Document{"k2": doc}))

	loaded, err := p.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, loaded.Version)
	assert.Equal(t, 2, storage.Len())
}

func TestCachePersister_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryPersister()
	storage := NewMemoryPersister()
	require.NoError(t, storage.Save(ctx, "k", &Document{Version: 1, State: []byte(`{"a":1}`)}))

	p := NewCachePersister(cache, storage)
	_, err := p.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len(), "未命中后回填缓存")
}
