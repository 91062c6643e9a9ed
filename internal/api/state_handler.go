package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/consistency"
	"github.com/wfunc/lifesim/internal/game"
)

// StateHandler 状态查询与角色生命周期
type StateHandler struct {
	orchestrator *game.Orchestrator
}

// NewStateHandler 创建状态处理器
func NewStateHandler(orchestrator *game.Orchestrator) *StateHandler {
	return &StateHandler{orchestrator: orchestrator}
}

// relationshipRequest 关系变化量
type relationshipRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

// GetState 三个存储的一致视图
func (h *StateHandler) GetState(c *gin.Context) {
	ok(c, h.orchestrator.Stores().View())
}

// GetPlayer 玩家数据
func (h *StateHandler) GetPlayer(c *gin.Context) {
	ok(c, h.orchestrator.Stores().Core.Player())
}

// GetCharacter 当前角色
func (h *StateHandler) GetCharacter(c *gin.Context) {
	ok(c, h.orchestrator.Stores().Core.Character())
}

// GetWorld 世界状态
func (h *StateHandler) GetWorld(c *gin.Context) {
	ok(c, h.orchestrator.Stores().Core.World())
}

// GetStoryletFlag 剧情标志，未设置时为false
func (h *StateHandler) GetStoryletFlag(c *gin.Context) {
	key := c.Param("key")
	ok(c, gin.H{"key": key, "value": h.orchestrator.Stores().Narrative.GetStoryletFlag(key)})
}

// GetRelationship NPC关系值，未知NPC为0
func (h *StateHandler) GetRelationship(c *gin.Context) {
	id := c.Param("id")
	ok(c, gin.H{"npc_id": id, "relationship": h.orchestrator.Stores().Social.Relationship(id)})
}

// UpdateRelationship 关系值累加
func (h *StateHandler) UpdateRelationship(c *gin.Context) {
	var req relationshipRequest
	if !bind(c, &req) {
		return
	}
	id := c.Param("id")
	social := h.orchestrator.Stores().Social
	social.UpdateRelationship(id, *req.Delta)
	ok(c, gin.H{"npc_id": id, "relationship": social.Relationship(id)})
}

// ValidateCharacter 只校验不写入
func (h *StateHandler) ValidateCharacter(c *gin.Context) {
	var data game.CharacterCreationData
	if !bind(c, &data) {
		return
	}
	ok(c, game.ValidateCharacterCreationData(data))
}

// CreateCharacter 原子创建角色
func (h *StateHandler) CreateCharacter(c *gin.Context) {
	var data game.CharacterCreationData
	if !bind(c, &data) {
		return
	}
	if err := h.orchestrator.CreateCharacterAtomically(c.Request.Context(), data); err != nil {
		fail(c, err)
		return
	}
	created(c, h.orchestrator.Stores().Core.Character())
}

// Reset 重置全部游戏状态
func (h *StateHandler) Reset(c *gin.Context) {
	h.orchestrator.ResetAllGameState()
	ok(c, h.orchestrator.Stores().View())
}

// Consistency 跨存储一致性报告
func (h *StateHandler) Consistency(c *gin.Context) {
	ok(c, consistency.Validate(h.orchestrator.Stores().View()))
}
