// Package dashboard 维护仪表盘聚合数据：总读数、聚类数、新类群数、
// 属丰度列表与最近分析。会话内存态，不持久化。
package dashboard

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/qs3c/edna_go_client/internal/stream"
)

// 最近分析条目保留上限
const maxRecentAnalyses = 3

type RecentAnalysis struct {
	ID       string `json:"id"`
	Sample   string `json:"sample"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Date     string `json:"date"`
}

type AnalysisData struct {
	TotalReads     int                 `json:"total_reads"`
	TotalClusters  int                 `json:"total_clusters"`
	NovelTaxa      int                 `json:"novel_taxa"`
	RecentAnalyses []RecentAnalysis    `json:"recent_analyses"`
	TaxaAbundance  []stream.TaxaRecord `json:"taxa_abundance"`
	LastUpdated    *time.Time          `json:"last_updated,omitempty"`
}

// AbundanceSummary 丰度列表的汇总统计
type AbundanceSummary struct {
	TaxaCount      int     `json:"taxa_count"`
	TotalSequences int     `json:"total_sequences"`
	MeanMatch      float64 `json:"mean_match"`
	MedianMatch    float64 `json:"median_match"`
}

type Analytics struct {
	mu   sync.RWMutex
	data AnalysisData
}

// New 以演示数据起步，与首屏展示保持一致；
// 首次真实结果到达后被覆盖。
func New() *Analytics {
	return &Analytics{
		data: AnalysisData{
			TotalReads:    1247,
			TotalClusters: 3892,
			NovelTaxa:     156,
			RecentAnalyses: []RecentAnalysis{
				{ID: "1", Sample: "DS-2024-001", Location: "Central Indian Basin", Status: "Completed", Date: "2024-12-07"},
				{ID: "2", Sample: "DS-2024-002", Location: "Carlsberg Ridge", Status: "Processing", Date: "2024-12-08"},
				{ID: "3", Sample: "DS-2024-003", Location: "Arabian Sea", Status: "Completed", Date: "2024-12-06"},
			},
		},
	}
}

func (a *Analytics) Snapshot() AnalysisData {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := a.data
	snapshot.RecentAnalyses = append([]RecentAnalysis(nil), a.data.RecentAnalyses...)
	snapshot.TaxaAbundance = append([]stream.TaxaRecord(nil), a.data.TaxaAbundance...)
	return snapshot
}

// SetCounts 聚类结果帧到达时更新计数
func (a *Analytics) SetCounts(totalReads, totalClusters int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.data.TotalReads = totalReads
	a.data.TotalClusters = totalClusters
	a.touch()
}

// SetTaxaAbundance 终止成功时以累计结果整体替换丰度列表
func (a *Analytics) SetTaxaAbundance(taxa []stream.TaxaRecord, novelCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.data.TaxaAbundance = append([]stream.TaxaRecord(nil), taxa...)
	a.data.NovelTaxa = novelCount
	a.touch()
}

// AddRecentAnalysis 新条目插到最前，超过上限截断
func (a *Analytics) AddRecentAnalysis(entry RecentAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recent := append([]RecentAnalysis{entry}, a.data.RecentAnalyses...)
	if len(recent) > maxRecentAnalyses {
		recent = recent[:maxRecentAnalyses]
	}
	a.data.RecentAnalyses = recent
	a.touch()
}

// Summary 丰度汇总：属数、序列总数、比对百分比的均值与中位数
func (a *Analytics) Summary() AbundanceSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := AbundanceSummary{TaxaCount: len(a.data.TaxaAbundance)}
	if summary.TaxaCount == 0 {
		return summary
	}

	matches := make([]float64, 0, summary.TaxaCount)
	for _, taxa := range a.data.TaxaAbundance {
		summary.TotalSequences += taxa.Count
		matches = append(matches, taxa.Probability)
	}

	if mean, err := stats.Mean(matches); err == nil {
		summary.MeanMatch = mean
	}
	if median, err := stats.Median(matches); err == nil {
		summary.MedianMatch = median
	}
	return summary
}

func (a *Analytics) touch() {
	now := time.Now()
	a.data.LastUpdated = &now
}
