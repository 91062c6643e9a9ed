package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/optimistic"
)

// BatchHandler 跨存储批量操作
type BatchHandler struct {
	batch *optimistic.Batch
}

// NewBatchHandler 创建批量处理器
func NewBatchHandler(batch *optimistic.Batch) *BatchHandler {
	return &BatchHandler{batch: batch}
}

// batchRequest 批量请求
type batchRequest struct {
	Operations []optimistic.RawOperation `json:"operations"`
	Options    optimistic.BatchOptions   `json:"options"`
}

// Execute 解码并执行批量操作
// 解码失败时不执行任何操作
func (h *BatchHandler) Execute(c *gin.Context) {
	var req batchRequest
	if !bind(c, &req) {
		return
	}
	ops, err := optimistic.DecodeOperations(req.Operations)
	if err != nil {
		fail(c, err)
		return
	}

	result := h.batch.BatchStateUpdates(ops, req.Options)
	if !result.Success && req.Options.Atomic {
		// 原子批次失败返回409及完整报告
		c.JSON(apperrors.New(apperrors.ErrBatchAborted).HTTPStatus(), Response{Success: false, Data: result})
		return
	}
	ok(c, result)
}
