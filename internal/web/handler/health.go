package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/internal/backend"
	"github.com/qs3c/edna_go_client/internal/pkg/response"
	"github.com/qs3c/edna_go_client/internal/pkg/ws"
)

type HealthHandler struct {
	poller *backend.HealthPoller
	hub    *ws.Hub
}

func NewHealthHandler(poller *backend.HealthPoller, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{poller: poller, hub: hub}
}

// Status 分析后端可达性（来自后台轮询，不现场探测）
// GET /api/v1/health
func (h *HealthHandler) Status(c *gin.Context) {
	data := gin.H{
		"backend_online": h.poller.Online(),
		"viewers":        h.hub.ConnectionCount(),
	}
	if last := h.poller.LastSeen(); !last.IsZero() {
		data["last_seen"] = last
	}
	response.Success(c, data)
}
