package api

import (
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/optimistic"
	"github.com/wfunc/lifesim/internal/store"
)

// OptimisticHandler 乐观更新接口
type OptimisticHandler struct {
	manager *optimistic.Manager
	stores  *store.Set
}

// NewOptimisticHandler 创建乐观更新处理器
func NewOptimisticHandler(manager *optimistic.Manager, stores *store.Set) *OptimisticHandler {
	return &OptimisticHandler{manager: manager, stores: stores}
}

// timerRequest 毫秒计时器，两项都缺省时使用管理器默认值，负数表示不启用
type timerRequest struct {
	RollbackAfterMS int64 `json:"rollback_after_ms"`
	PersistAfterMS  int64 `json:"persist_after_ms"`
}

func (t timerRequest) options() optimistic.Options {
	return optimistic.Options{
		RollbackAfter: time.Duration(t.RollbackAfterMS) * time.Millisecond,
		PersistAfter:  time.Duration(t.PersistAfterMS) * time.Millisecond,
	}
}

type characterUpdateRequest struct {
	timerRequest
	Patch store.CharacterPatch `json:"patch"`
}

type storyletUpdateRequest struct {
	timerRequest
	Action optimistic.StoryletAction `json:"action" binding:"required"`
}

type relationshipUpdateRequest struct {
	timerRequest
	Delta int `json:"delta"`
}

// UpdateCharacter 乐观合并角色字段
func (h *OptimisticHandler) UpdateCharacter(c *gin.Context) {
	var req characterUpdateRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.manager.OptimisticCharacterUpdate(h.stores.Core, req.Patch, req.options())
	h.respondApplied(c, id, err)
}

// UpdateStorylet 乐观变更剧情状态
func (h *OptimisticHandler) UpdateStorylet(c *gin.Context) {
	var req storyletUpdateRequest
	if !bind(c, &req) {
		return
	}
	id, err := h.manager.OptimisticStoryletUpdate(h.stores.Narrative, c.Param("id"), req.Action, req.options())
	h.respondApplied(c, id, err)
}

// UpdateRelationship 乐观调整NPC关系
func (h *OptimisticHandler) UpdateRelationship(c *gin.Context) {
	var req relationshipUpdateRequest
	if !bind(c, &req) {
		return
	}
	npcID := c.Param("id")
	id, err := h.manager.OptimisticSocialUpdate(h.stores.Social, func(s *store.SocialStore) error {
		s.UpdateRelationship(npcID, req.Delta)
		return nil
	}, req.options())
	h.respondApplied(c, id, err)
}

func (h *OptimisticHandler) respondApplied(c *gin.Context, id string, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	update, _ := h.manager.Get(id)
	created(c, update)
}

// Get 查询乐观更新
func (h *OptimisticHandler) Get(c *gin.Context) {
	update, found := h.manager.Get(c.Param("id"))
	if !found {
		fail(c, apperrors.New(apperrors.ErrUpdateNotFound, c.Param("id")))
		return
	}
	ok(c, update)
}

// Confirm 确认乐观更新
func (h *OptimisticHandler) Confirm(c *gin.Context) {
	if err := h.manager.Confirm(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	update, _ := h.manager.Get(c.Param("id"))
	ok(c, update)
}

// Rollback 回滚乐观更新
func (h *OptimisticHandler) Rollback(c *gin.Context) {
	if err := h.manager.Rollback(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"rolled_back": c.Param("id")})
}
