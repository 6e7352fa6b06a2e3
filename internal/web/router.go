// Package web 仪表盘变体的 HTTP API。
package web

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/edna_go_client/config"
	"github.com/qs3c/edna_go_client/internal/web/handler"
	"github.com/qs3c/edna_go_client/internal/web/middleware"
)

type Router struct {
	sessionHandler   *handler.SessionHandler
	healthHandler    *handler.HealthHandler
	uploadHandler    *handler.UploadHandler
	sampleHandler    *handler.SampleHandler
	historyHandler   *handler.HistoryHandler
	dashboardHandler *handler.DashboardHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	sessionHandler *handler.SessionHandler,
	healthHandler *handler.HealthHandler,
	uploadHandler *handler.UploadHandler,
	sampleHandler *handler.SampleHandler,
	historyHandler *handler.HistoryHandler,
	dashboardHandler *handler.DashboardHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		sessionHandler:   sessionHandler,
		healthHandler:    healthHandler,
		uploadHandler:    uploadHandler,
		sampleHandler:    sampleHandler,
		historyHandler:   historyHandler,
		dashboardHandler: dashboardHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Dashboard.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket 实时事件
		api.GET("/ws/:fileId", r.websocketHandler.Handle)

		// 会话（占位登录）
		api.POST("/session/login", r.sessionHandler.Login)

		// 后端可达性
		api.GET("/health", r.healthHandler.Status)

		// 上传与预测
		api.POST("/upload", r.uploadHandler.Upload)
		api.POST("/predict/sequence", r.uploadHandler.PredictSequence)
		api.POST("/predict/fasta", r.uploadHandler.PredictFasta)
		api.POST("/finetune", r.uploadHandler.Finetune)

		// 样本记录
		samples := api.Group("/samples")
		{
			samples.GET("", r.sampleHandler.List)
			samples.GET("/:fileId", r.sampleHandler.Get)
			samples.GET("/:fileId/pipeline", r.sampleHandler.Pipeline)
			samples.DELETE("/:fileId", r.sampleHandler.Delete)
			samples.DELETE("", r.sampleHandler.Clear)
		}

		// 上传历史
		history := api.Group("/history")
		{
			history.GET("", r.historyHandler.List)
			history.DELETE("/:id", r.historyHandler.Delete)
			history.DELETE("", r.historyHandler.Clear)
		}

		// 仪表盘聚合
		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/analysis", r.dashboardHandler.Analysis)
			dashboard.GET("/summary", r.dashboardHandler.Summary)
		}
	}

	return engine
}
