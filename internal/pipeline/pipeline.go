// Package pipeline 维护进度界面用的线性阶段机。纯 UI 派生态，
// 不持久化，随时可从完整事件历史重建。
package pipeline

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/qs3c/edna_go_client/internal/stream"
)

type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageActive   StageStatus = "active"
	StageComplete StageStatus = "complete"
	StageError    StageStatus = "error"
)

// 固定阶段，严格线性：完成第 i 个激活第 i+1 个，不向后跳
const (
	StageReadSequences      = "read_sequences"
	StageGenerateEmbeddings = "generate_embeddings"
	StageUmapHdbscan        = "umap_hdbscan"
	StageClusteringResult   = "clustering_result"
	StageNcbiVerification   = "ncbi_verification"
	StageAnalysisComplete   = "analysis_complete"
)

type Stage struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Status     StageStatus     `json:"status"`
	ResultData json.RawMessage `json:"result_data,omitempty"`
}

func initialStages() []Stage {
	return []Stage{
		{ID: StageReadSequences, Label: "Reading Sequences...", Status: StagePending},
		{ID: StageGenerateEmbeddings, Label: "Generating AI Embeddings...", Status: StagePending},
		{ID: StageUmapHdbscan, Label: "Running UMAP & HDBSCAN...", Status: StagePending},
		{ID: StageClusteringResult, Label: "Clustering Complete", Status: StagePending},
		{ID: StageNcbiVerification, Label: "Starting NCBI Verification (Slow)...", Status: StagePending},
		{ID: StageAnalysisComplete, Label: "Analysis Complete", Status: StagePending},
	}
}

// Pipeline 对事件历史的确定性折叠。Apply 增量折叠与 Replay 全量重放
// 结果一致。
type Pipeline struct {
	mu               sync.RWMutex
	stages           []Stage
	lastVerification *stream.Message
}

func New() *Pipeline {
	return &Pipeline{stages: initialStages()}
}

// Completed 全阶段完成的快照（查看历史上已完成的分析时使用）
func Completed() *Pipeline {
	p := New()
	for i := range p.stages {
		p.stages[i].Status = StageComplete
	}
	return p
}

// Replay 从空状态重放完整历史
func Replay(history []stream.Message) *Pipeline {
	p := New()
	for _, msg := range history {
		p.Apply(msg)
	}
	return p
}

// Stages 当前各阶段状态的副本
func (p *Pipeline) Stages() []Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stages := make([]Stage, len(p.stages))
	copy(stages, p.stages)
	return stages
}

// LastVerification ncbi_verification 阶段内展示的最近一条更新
func (p *Pipeline) LastVerification() *stream.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastVerification
}

// Reset 回到初始态（新一次分析开始时）
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = initialStages()
	p.lastVerification = nil
}

// Apply 把一条流消息折叠进阶段机
func (p *Pipeline) Apply(msg stream.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Type {
	case stream.TypeLog:
		p.applyLogHeuristics(msg.Message)

	case stream.TypeProgress:
		if msg.Status == "complete" && msg.Step != "" {
			p.complete(msg.Step, nil)
		}

	case stream.TypeClusteringResult:
		p.complete(StageUmapHdbscan, nil)
		p.complete(StageClusteringResult, msg.Data)

	case stream.TypeVerificationUpdate:
		// 阶段内更新：保持 active 并展示最近一条，直到 complete 收尾
		copied := msg
		p.lastVerification = &copied
		p.activate(StageNcbiVerification)

	case stream.TypeComplete:
		p.complete(StageNcbiVerification, nil)
		p.complete(StageAnalysisComplete, nil)

	case stream.TypeError:
		p.markActiveError()
	}
}

// applyLogHeuristics 按日志内容推进阶段（后端部分阶段只发日志不发 progress）
func (p *Pipeline) applyLogHeuristics(message string) {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "reading sequences"):
		p.activate(StageReadSequences)
	case strings.Contains(lower, "found") && strings.Contains(lower, "sequences"):
		p.complete(StageReadSequences, nil)
	case strings.Contains(lower, "generating") && strings.Contains(lower, "embeddings"):
		p.activate(StageGenerateEmbeddings)
	case strings.Contains(lower, "running umap"):
		p.complete(StageGenerateEmbeddings, nil)
		p.activate(StageUmapHdbscan)
	case strings.Contains(lower, "clustering complete"):
		p.complete(StageUmapHdbscan, nil)
	case strings.Contains(lower, "ncbi verification"):
		p.activate(StageNcbiVerification)
	}
}

func (p *Pipeline) index(id string) int {
	for i := range p.stages {
		if p.stages[i].ID == id {
			return i
		}
	}
	return -1
}

// complete 完成指定阶段并激活下一个 pending 阶段
func (p *Pipeline) complete(id string, resultData json.RawMessage) {
	i := p.index(id)
	if i == -1 || p.stages[i].Status == StageComplete {
		return
	}
	p.stages[i].Status = StageComplete
	if resultData != nil {
		p.stages[i].ResultData = resultData
	}

	next := i + 1
	if next < len(p.stages) && p.stages[next].Status == StagePending {
		p.stages[next].Status = StageActive
	}
}

// activate 仅从 pending 激活，不打扰已完成/已激活的阶段
func (p *Pipeline) activate(id string) {
	i := p.index(id)
	if i == -1 || p.stages[i].Status != StagePending {
		return
	}
	p.stages[i].Status = StageActive
}

// markActiveError 错误帧把当前活动阶段置为 error
func (p *Pipeline) markActiveError() {
	for i := range p.stages {
		if p.stages[i].Status == StageActive {
			p.stages[i].Status = StageError
			return
		}
	}
}
