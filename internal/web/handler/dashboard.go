package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/internal/dashboard"
	"github.com/qs3c/edna_go_client/internal/pkg/response"
)

type DashboardHandler struct {
	analytics *dashboard.Analytics
}

func NewDashboardHandler(analytics *dashboard.Analytics) *DashboardHandler {
	return &DashboardHandler{analytics: analytics}
}

// Analysis 仪表盘聚合数据（计数、丰度、最近分析）
// GET /api/v1/dashboard/analysis
func (h *DashboardHandler) Analysis(c *gin.Context) {
	response.Success(c, h.analytics.Snapshot())
}

// Summary 丰度列表的统计汇总
// GET /api/v1/dashboard/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	response.Success(c, h.analytics.Summary())
}
