// Package service 仪表盘的在途任务管理：每个上传对应一条流式协调任务。
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/qs3c/edna_go_client/internal/dashboard"
	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/pipeline"
	"github.com/qs3c/edna_go_client/internal/pkg/pubsub"
	"github.com/qs3c/edna_go_client/internal/pkg/ws"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/store"
	"github.com/qs3c/edna_go_client/internal/stream"
)

type job struct {
	reconciler *stream.Reconciler
	pipeline   *pipeline.Pipeline
	cancel     context.CancelFunc
}

// Manager 每个 fileId 至多一条活动流。重复启动时先关旧连接
// （连接句柄后写者胜，不排队）。
type Manager struct {
	wsBase      string
	store       *store.Store
	analytics   *dashboard.Analytics
	hub         *ws.Hub
	publisher   *pubsub.Publisher
	historyRepo *repository.HistoryRepository

	mu   sync.Mutex
	jobs map[string]*job
}

func NewManager(
	wsBase string,
	st *store.Store,
	analytics *dashboard.Analytics,
	hub *ws.Hub,
	publisher *pubsub.Publisher,
	historyRepo *repository.HistoryRepository,
) *Manager {
	return &Manager{
		wsBase:      wsBase,
		store:       st,
		analytics:   analytics,
		hub:         hub,
		publisher:   publisher,
		historyRepo: historyRepo,
		jobs:        make(map[string]*job),
	}
}

// Start 为任务开流。historyID 关联上传历史行，终止事件回写统计。
func (m *Manager) Start(fileID, historyID string) {
	m.mu.Lock()
	if existing, ok := m.jobs[fileID]; ok {
		existing.cancel()
		existing.reconciler.Close()
	}

	p := pipeline.New()
	r := stream.New(m.wsBase, fileID, m.store,
		stream.WithObserver(p.Apply),
		stream.WithObserver(func(msg stream.Message) {
			if err := m.hub.Broadcast(fileID, msg); err != nil {
				log.Printf("Job %s: broadcast failed: %v", fileID, err)
			}
		}),
		stream.WithObserver(func(msg stream.Message) {
			if err := m.publisher.Publish(context.Background(), fileID, msg); err != nil {
				log.Printf("Job %s: relay publish failed: %v", fileID, err)
			}
		}),
		stream.OnClusteringResult(func(result *model.AnalysisResult) {
			m.analytics.SetCounts(result.SequenceCount(), result.ClusterCount())
		}),
		stream.OnComplete(func(taxa []stream.TaxaRecord, novelCount int) {
			m.finishJob(fileID, historyID, taxa, novelCount)
		}),
		stream.OnError(func(message string) {
			m.failJob(historyID, message)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	m.jobs[fileID] = &job{reconciler: r, pipeline: p, cancel: cancel}
	m.mu.Unlock()

	go func() {
		defer cancel()
		if err := r.Run(ctx); err != nil {
			if errors.Is(err, stream.ErrStreamInterrupted) {
				// 断在终止帧之前：状态悬置，不自动重试，界面展示 disconnected
				log.Printf("Job %s: stream interrupted before terminal message", fileID)
				return
			}
			log.Printf("Job %s: stream failed: %v", fileID, err)
		}
	}()
}

// Pipeline 返回任务的阶段机；任务未知时 ok 为 false
func (m *Manager) Pipeline(fileID string) (*pipeline.Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[fileID]
	if !ok {
		return nil, false
	}
	return j.pipeline, true
}

// Status 任务的连接状态
func (m *Manager) Status(fileID string) (stream.ConnStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[fileID]
	if !ok {
		return stream.StatusDisconnected, false
	}
	return j.reconciler.Status(), true
}

// Stop 关闭单个任务的连接
func (m *Manager) Stop(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[fileID]; ok {
		j.cancel()
		j.reconciler.Close()
	}
}

// Shutdown 释放全部连接（进程退出路径）
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		j.cancel()
		j.reconciler.Close()
	}
}

func (m *Manager) finishJob(fileID, historyID string, taxa []stream.TaxaRecord, novelCount int) {
	if len(taxa) > 0 {
		m.analytics.SetTaxaAbundance(taxa, novelCount)
		m.analytics.AddRecentAnalysis(dashboard.RecentAnalysis{
			ID:       shortID(fileID),
			Sample:   fmt.Sprintf("Sample-%s", shortID(fileID)),
			Location: "User Upload",
			Status:   "Completed",
			Date:     time.Now().Format("2006-01-02"),
		})
	}

	if historyID == "" {
		return
	}
	fields := map[string]interface{}{
		"status":           model.HistoryCompleted,
		"taxa_count":       len(taxa),
		"novel_taxa_count": novelCount,
	}
	if sample, ok := m.store.Get(fileID); ok && sample.LatestAnalysis != nil {
		fields["total_reads"] = sample.LatestAnalysis.SequenceCount()
		fields["total_clusters"] = sample.LatestAnalysis.ClusterCount()
	}
	if err := m.historyRepo.Update(historyID, fields); err != nil {
		log.Printf("Job %s: failed to update history: %v", fileID, err)
	}
}

func (m *Manager) failJob(historyID, message string) {
	if historyID == "" {
		return
	}
	log.Printf("Analysis failed for history %s: %s", historyID, message)
	err := m.historyRepo.Update(historyID, map[string]interface{}{
		"status": model.HistoryFailed,
	})
	if err != nil {
		log.Printf("Failed to mark history %s failed: %v", historyID, err)
	}
}

func shortID(fileID string) string {
	if len(fileID) > 8 {
		return fileID[:8]
	}
	return fileID
}
