package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/lifesim/internal/auth"
	"github.com/wfunc/lifesim/internal/config"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/game"
	"github.com/wfunc/lifesim/internal/optimistic"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
)

const debugPassword = "open sesame"

// RouterTestSuite API测试套件
type RouterTestSuite struct {
	suite.Suite
	orchestrator *game.Orchestrator
	manager      *optimistic.Manager
	router       *Router
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *RouterTestSuite) SetupTest() {
	db := repository.SetupTestDB(s.T())
	s.orchestrator = game.NewOrchestrator(&game.OrchestratorConfig{
		Archives: repository.NewSaveArchiveRepository(db),
	})
	s.manager = optimistic.NewManager()

	hash, err := auth.HashSecretWithParams(debugPassword, auth.HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16})
	s.Require().NoError(err)

	s.router = NewRouter(RouterConfig{
		Orchestrator: s.orchestrator,
		Optimistic:   s.manager,
		Tokens:       auth.NewTokenManager("test-secret", time.Hour),
		Debug:        config.DebugConfig{Enabled: true, PasswordHash: hash},
		Features:     config.FeatureFlags{AutoSave: true},
		DB:           db,
	})
}

func (s *RouterTestSuite) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.Engine().ServeHTTP(w, req)
	return w
}

// data 解出成功响应的data字段
func (s *RouterTestSuite) data(w *httptest.ResponseRecorder, dst interface{}) {
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	s.Require().NoError(json.Unmarshal(resp.Data, dst))
}

func (s *RouterTestSuite) errorCode(w *httptest.ResponseRecorder) apperrors.ErrorCode {
	var resp apperrors.ErrorResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	s.Require().NotNil(resp.Error)
	return resp.Error.Code
}

func athlete(name string) game.CharacterCreationData {
	return game.CharacterCreationData{
		Name:       name,
		Background: game.BackgroundAthlete,
		Attributes: map[string]int{"strength": 70},
	}
}

func (s *RouterTestSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "healthy")
}

func (s *RouterTestSuite) TestCharacterLifecycle() {
	w := s.do(http.MethodPost, "/api/v1/character/validate", game.CharacterCreationData{Background: "wizard"})
	s.Equal(http.StatusOK, w.Code)
	var result game.ValidationResult
	s.data(w, &result)
	s.False(result.Valid)
	s.Len(result.Errors, 2)

	w = s.do(http.MethodPost, "/api/v1/character", game.CharacterCreationData{Background: "wizard"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrValidation, s.errorCode(w))
	s.False(s.orchestrator.Stores().Core.HasCharacter())

	w = s.do(http.MethodPost, "/api/v1/character", athlete("Test"))
	s.Equal(http.StatusCreated, w.Code)

	var character store.Character
	s.data(s.do(http.MethodGet, "/api/v1/character", nil), &character)
	s.Equal("Test", character.Name)
	s.Equal(70, character.Attributes["strength"])

	var world store.World
	s.data(s.do(http.MethodGet, "/api/v1/world", nil), &world)
	s.Equal(1, world.Day)

	var flag struct{ Value bool }
	s.data(s.do(http.MethodGet, "/api/v1/flags/storylet/"+store.CharacterCreatedFlag, nil), &flag)
	s.True(flag.Value)

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/reset", nil).Code)
	s.False(s.orchestrator.Stores().Core.HasCharacter())
}

func (s *RouterTestSuite) TestRelationship() {
	w := s.do(http.MethodPost, "/api/v1/npcs/mentor/relationship", gin.H{"delta": 5})
	s.Equal(http.StatusOK, w.Code)
	s.do(http.MethodPost, "/api/v1/npcs/mentor/relationship", gin.H{"delta": -2})

	var rel struct{ Relationship int }
	s.data(s.do(http.MethodGet, "/api/v1/npcs/mentor/relationship", nil), &rel)
	s.Equal(3, rel.Relationship)

	w = s.do(http.MethodPost, "/api/v1/npcs/mentor/relationship", gin.H{})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrInvalidParam, s.errorCode(w))
}

func (s *RouterTestSuite) TestSaveLoadDelete() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/api/v1/character", athlete("Test")).Code)

	w := s.do(http.MethodPost, "/api/v1/saves", gin.H{"id": "s1", "name": "第一天"})
	s.Require().Equal(http.StatusCreated, w.Code)

	s.orchestrator.Stores().Core.AdvanceDay(5)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/saves/s1/load", nil).Code)
	s.Equal(1, s.orchestrator.Stores().Core.World().Day)

	var list struct {
		Slots   []store.SaveSlot `json:"slots"`
		Current string           `json:"current"`
	}
	s.data(s.do(http.MethodGet, "/api/v1/saves", nil), &list)
	s.Len(list.Slots, 1)
	s.Equal("s1", list.Current)

	var archives struct {
		Archives   []map[string]interface{} `json:"archives"`
		Pagination repository.Pagination    `json:"pagination"`
	}
	s.data(s.do(http.MethodGet, "/api/v1/archives?page=1&page_size=10", nil), &archives)
	s.Len(archives.Archives, 1)
	s.EqualValues(1, archives.Pagination.Total)

	s.Equal(http.StatusOK, s.do(http.MethodDelete, "/api/v1/saves/s1", nil).Code)
	_, hasCurrent := s.orchestrator.Stores().Social.CurrentSaveID()
	s.False(hasCurrent)

	w = s.do(http.MethodPost, "/api/v1/saves/s1/load", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(apperrors.ErrSaveSlotNotFound, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/saves", gin.H{"name": "无ID"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestConsistency() {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/api/v1/character", athlete("Test")).Code)

	w := s.do(http.MethodGet, "/api/v1/consistency", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"passed":true`)
}

func (s *RouterTestSuite) TestBatch() {
	body := gin.H{
		"operations": []gin.H{
			{"op": "update_relationship", "args": gin.H{"npcId": "mentor", "delta": 4}},
			{"op": "update_save_slot", "args": gin.H{"id": "missing", "patch": gin.H{"gameDay": 3}}},
			{"op": "set_storylet_flag", "args": gin.H{"key": "met_mentor", "value": true}},
		},
		"options": gin.H{"atomic": true, "rollbackOnFailure": true},
	}
	w := s.do(http.MethodPost, "/api/v1/batch", body)
	s.Equal(http.StatusConflict, w.Code)
	var result optimistic.BatchResult
	s.data(w, &result)
	s.True(result.RolledBack)
	s.Len(result.Results, 2)
	s.Equal(0, s.orchestrator.Stores().Social.Relationship("mentor"))
	s.False(s.orchestrator.Stores().Narrative.GetStoryletFlag("met_mentor"))

	body["options"] = gin.H{}
	w = s.do(http.MethodPost, "/api/v1/batch", body)
	s.Equal(http.StatusOK, w.Code)
	s.data(w, &result)
	s.Equal(optimistic.BatchPartial, result.Status)
	s.True(s.orchestrator.Stores().Narrative.GetStoryletFlag("met_mentor"))

	w = s.do(http.MethodPost, "/api/v1/batch", gin.H{"operations": []gin.H{{"op": "spin"}}})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrUnknownOperation, s.errorCode(w))
}

func (s *RouterTestSuite) TestOptimistic() {
	w := s.do(http.MethodPost, "/api/v1/optimistic/npcs/mentor/relationship", gin.H{"delta": 7})
	s.Require().Equal(http.StatusCreated, w.Code)
	var update optimistic.Update
	s.data(w, &update)
	s.Equal(store.SocialKey, update.Store)
	s.Equal(7, s.orchestrator.Stores().Social.Relationship("mentor"))

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/optimistic/"+update.ID+"/rollback", nil).Code)
	s.Equal(0, s.orchestrator.Stores().Social.Relationship("mentor"))
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/v1/optimistic/"+update.ID, nil).Code)

	w = s.do(http.MethodPost, "/api/v1/optimistic/storylets/intro", gin.H{"action": "activate"})
	s.Require().Equal(http.StatusCreated, w.Code)
	s.data(w, &update)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/optimistic/"+update.ID+"/confirm", nil).Code)

	w = s.do(http.MethodPost, "/api/v1/optimistic/"+update.ID+"/rollback", nil)
	s.Equal(apperrors.ErrRollbackFailed, s.errorCode(w))

	w = s.do(http.MethodPost, "/api/v1/optimistic/storylets/intro", gin.H{"action": "dance"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *RouterTestSuite) TestDebugRoutes() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/debug/optimistic/rollback-all", nil).Code)

	w := s.do(http.MethodPost, "/debug/token", gin.H{"operator": "alice", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/debug/token", gin.H{"operator": "alice", "password": debugPassword})
	s.Require().Equal(http.StatusOK, w.Code)
	var token struct{ Token string }
	s.data(w, &token)
	s.NotEmpty(token.Token)

	_, err := s.manager.OptimisticCharacterUpdate(s.orchestrator.Stores().Core,
		store.CharacterPatch{Background: strPtr("artist")}, optimistic.Options{})
	s.Require().NoError(err)

	w = s.do(http.MethodPost, "/debug/optimistic/rollback-all", nil, "Authorization", "Bearer "+token.Token)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"rolled_back":1`)
	s.Empty(s.orchestrator.Stores().Core.Character().Background)
}

func (s *RouterTestSuite) TestDebugDisabled() {
	router := NewRouter(RouterConfig{Orchestrator: game.NewOrchestrator(&game.OrchestratorConfig{})})
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/debug/token", strings.NewReader("{}")))
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterTestSuite) TestOpenAPI() {
	w := s.do(http.MethodGet, "/openapi", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "/api/v1/batch")
}

func strPtr(v string) *string { return &v }

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
