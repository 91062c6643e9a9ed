package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/lifesim/internal/game"
	"github.com/wfunc/lifesim/internal/repository"
)

// SaveHandler 存档接口
type SaveHandler struct {
	orchestrator *game.Orchestrator
}

// NewSaveHandler 创建存档处理器
func NewSaveHandler(orchestrator *game.Orchestrator) *SaveHandler {
	return &SaveHandler{orchestrator: orchestrator}
}

// saveRequest 保存请求
type saveRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

// List 按更新时间列出存档槽
func (h *SaveHandler) List(c *gin.Context) {
	social := h.orchestrator.Stores().Social
	current, _ := social.CurrentSaveID()
	ok(c, gin.H{
		"slots":   social.SortedSaveSlots(),
		"current": current,
	})
}

// Save 把当前状态写入存档槽
func (h *SaveHandler) Save(c *gin.Context) {
	var req saveRequest
	if !bind(c, &req) {
		return
	}
	slot, err := h.orchestrator.SaveGame(c.Request.Context(), req.ID, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, slot)
}

// Load 从存档槽恢复状态
func (h *SaveHandler) Load(c *gin.Context) {
	if err := h.orchestrator.LoadGame(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, h.orchestrator.Stores().View())
}

// Delete 删除存档槽
func (h *SaveHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.DeleteSave(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}

// ListArchives 分页列出数据库归档
func (h *SaveHandler) ListArchives(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p := repository.NewPagination(page, size)

	list, err := h.orchestrator.ListArchives(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"archives": list, "pagination": p})
}

// RestoreArchive 把归档恢复为存档槽
func (h *SaveHandler) RestoreArchive(c *gin.Context) {
	slot, err := h.orchestrator.RestoreArchive(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, slot)
}
