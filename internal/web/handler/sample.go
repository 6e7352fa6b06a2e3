package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/pipeline"
	"github.com/qs3c/edna_go_client/internal/pkg/response"
	"github.com/qs3c/edna_go_client/internal/service"
	"github.com/qs3c/edna_go_client/internal/store"
)

type SampleHandler struct {
	store   *store.Store
	manager *service.Manager
}

func NewSampleHandler(st *store.Store, manager *service.Manager) *SampleHandler {
	return &SampleHandler{store: st, manager: manager}
}

// List 全部样本记录，新的在前
// GET /api/v1/samples
func (h *SampleHandler) List(c *gin.Context) {
	response.Success(c, h.store.List())
}

// Get 单条样本记录（含日志、进度与最新分析结果）
// GET /api/v1/samples/:fileId
func (h *SampleHandler) Get(c *gin.Context) {
	fileID := c.Param("fileId")

	sample, ok := h.store.Get(fileID)
	if !ok {
		response.NotFoundError(c, "样本不存在")
		return
	}
	response.Success(c, sample)
}

// Delete 删除单条样本
// DELETE /api/v1/samples/:fileId
func (h *SampleHandler) Delete(c *gin.Context) {
	fileID := c.Param("fileId")

	h.manager.Stop(fileID)
	if err := h.store.Delete(fileID); err != nil {
		log.Printf("Failed to delete sample %s: %v", fileID, err)
		response.ServerError(c, "删除失败")
		return
	}
	response.Success(c, nil)
}

// Clear 清空全部样本
// DELETE /api/v1/samples
func (h *SampleHandler) Clear(c *gin.Context) {
	h.manager.Shutdown()
	if err := h.store.Clear(); err != nil {
		log.Printf("Failed to clear samples: %v", err)
		response.ServerError(c, "清空失败")
		return
	}
	response.Success(c, nil)
}

// Pipeline 进度界面的阶段机快照
// GET /api/v1/samples/:fileId/pipeline
func (h *SampleHandler) Pipeline(c *gin.Context) {
	fileID := c.Param("fileId")

	if p, ok := h.manager.Pipeline(fileID); ok {
		status, _ := h.manager.Status(fileID)
		response.Success(c, gin.H{
			"stages":            p.Stages(),
			"connection":        status,
			"last_verification": p.LastVerification(),
		})
		return
	}

	// 没有在途任务：已完成的历史记录展示全完成视图
	sample, ok := h.store.Get(fileID)
	if !ok {
		response.NotFoundError(c, "样本不存在")
		return
	}
	if sample.Status != model.StatusComplete {
		response.NotFoundError(c, "任务没有进行中的分析")
		return
	}
	response.Success(c, gin.H{
		"stages":     pipeline.Completed().Stages(),
		"connection": "disconnected",
	})
}
