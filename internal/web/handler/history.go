package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/internal/pkg/response"
	"github.com/qs3c/edna_go_client/internal/repository"
)

type HistoryHandler struct {
	historyRepo *repository.HistoryRepository
}

func NewHistoryHandler(historyRepo *repository.HistoryRepository) *HistoryHandler {
	return &HistoryHandler{historyRepo: historyRepo}
}

// List 上传历史，新的在前
// GET /api/v1/history
func (h *HistoryHandler) List(c *gin.Context) {
	items, err := h.historyRepo.List()
	if err != nil {
		log.Printf("Failed to list history: %v", err)
		response.ServerError(c, "查询失败")
		return
	}
	response.Success(c, items)
}

// Delete 删除单条历史
// DELETE /api/v1/history/:id
func (h *HistoryHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	item, err := h.historyRepo.GetByID(id)
	if err != nil {
		log.Printf("Failed to load history %s: %v", id, err)
		response.ServerError(c, "查询失败")
		return
	}
	if item == nil {
		response.NotFoundError(c, "历史记录不存在")
		return
	}

	if err := h.historyRepo.Delete(id); err != nil {
		log.Printf("Failed to delete history %s: %v", id, err)
		response.ServerError(c, "删除失败")
		return
	}
	response.Success(c, nil)
}

// Clear 清空上传历史
// DELETE /api/v1/history
func (h *HistoryHandler) Clear(c *gin.Context) {
	if err := h.historyRepo.Clear(); err != nil {
		log.Printf("Failed to clear history: %v", err)
		response.ServerError(c, "清空失败")
		return
	}
	response.Success(c, nil)
}
