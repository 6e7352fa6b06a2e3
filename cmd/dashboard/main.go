package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/edna_go_client/config"
	"github.com/qs3c/edna_go_client/internal/backend"
	"github.com/qs3c/edna_go_client/internal/dashboard"
	"github.com/qs3c/edna_go_client/internal/database"
	"github.com/qs3c/edna_go_client/internal/pkg/pubsub"
	"github.com/qs3c/edna_go_client/internal/pkg/ws"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/service"
	"github.com/qs3c/edna_go_client/internal/store"
	"github.com/qs3c/edna_go_client/internal/web"
	"github.com/qs3c/edna_go_client/internal/web/handler"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 可选的 Redis 进度中继
	var publisher *pubsub.Publisher
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect redis: %v", err)
		}
		publisher = pubsub.NewPublisher(rdb)
		log.Println("Redis connected, progress relay enabled")
	}

	// 初始化 Repository 与样本存储
	sampleRepo := repository.NewSampleRepository(db)
	historyRepo := repository.NewHistoryRepository(db, cfg.History.MaxItems)

	st := store.New(sampleRepo)
	if err := st.Initialize(); err != nil {
		log.Fatalf("Failed to initialize sample store: %v", err)
	}
	log.Printf("Sample store initialized, %d records restored", len(st.List()))

	// 后端客户端与健康轮询
	client := backend.NewClient(
		cfg.Backend.BaseURL,
		time.Duration(cfg.Backend.RequestTimeoutSec)*time.Second,
		time.Duration(cfg.Backend.HealthTimeoutSec)*time.Second,
	)
	poller := backend.NewHealthPoller(client, time.Duration(cfg.Backend.HealthIntervalSec)*time.Second, nil)
	go poller.Run(context.Background())

	// WebSocket Hub 与仪表盘聚合
	wsHub := ws.NewHub()
	analytics := dashboard.New()

	// 任务管理器
	manager := service.NewManager(cfg.Backend.WSBaseURL, st, analytics, wsHub, publisher, historyRepo)
	defer manager.Shutdown()

	// 初始化 Handler
	sessionHandler := handler.NewSessionHandler(cfg)
	healthHandler := handler.NewHealthHandler(poller, wsHub)
	uploadHandler := handler.NewUploadHandler(client, st, historyRepo, manager)
	sampleHandler := handler.NewSampleHandler(st, manager)
	historyHandler := handler.NewHistoryHandler(historyRepo)
	dashboardHandler := handler.NewDashboardHandler(analytics)
	websocketHandler := handler.NewWebSocketHandler(wsHub)

	// 初始化 Router
	router := web.NewRouter(
		sessionHandler,
		healthHandler,
		uploadHandler,
		sampleHandler,
		historyHandler,
		dashboardHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Dashboard.Host, cfg.Dashboard.Port)
	log.Printf("Dashboard starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
