package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/config"
	"github.com/qs3c/edna_go_client/internal/pkg/response"
	"github.com/qs3c/edna_go_client/internal/pkg/session"
)

type SessionHandler struct {
	cfg *config.Config
}

func NewSessionHandler(cfg *config.Config) *SessionHandler {
	return &SessionHandler{cfg: cfg}
}

// Login 占位登录：不校验凭据，任何输入都签发会话令牌
// POST /api/v1/session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.DisplayName == "" {
		req.DisplayName = "researcher"
	}

	token, err := session.GenerateToken(req.DisplayName, h.cfg.Session.Secret, h.cfg.Session.ExpireHours)
	if err != nil {
		response.ServerError(c, "登录失败")
		return
	}

	response.Success(c, gin.H{
		"token":        token,
		"display_name": req.DisplayName,
	})
}
