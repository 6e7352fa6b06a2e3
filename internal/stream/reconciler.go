package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/store"
)

// ConnStatus 连接生命周期：disconnected → connecting → running → {complete|error}
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusRunning      ConnStatus = "running"
	StatusComplete     ConnStatus = "complete"
	StatusErrored      ConnStatus = "error"
)

// ErrStreamInterrupted 连接在终止帧之前断开。信号含义不明确，
// 记录状态保持不动，是否重试由调用方决定。
var ErrStreamInterrupted = errors.New("stream closed before terminal message")

// Observer 在每条消息落库之后收到回调（流水线状态机、浏览器转发等）
type Observer func(Message)

type Option func(*Reconciler)

func WithDialer(dialer *websocket.Dialer) Option {
	return func(r *Reconciler) { r.dialer = dialer }
}

func WithObserver(observer Observer) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, observer) }
}

// OnClusteringResult 聚类结果到达时回调（仪表盘计数）
func OnClusteringResult(fn func(*model.AnalysisResult)) Option {
	return func(r *Reconciler) { r.onResult = fn }
}

// OnComplete 终止成功时回调，携带累计的属列表与新类群数
func OnComplete(fn func(taxa []TaxaRecord, novelCount int)) Option {
	return func(r *Reconciler) { r.onComplete = fn }
}

// OnError 流内错误帧回调
func OnError(fn func(message string)) Option {
	return func(r *Reconciler) { r.onError = fn }
}

// Reconciler 把一条 ws 连接绑定到一个 fileId，按到达顺序把事件
// 恰好一次地应用到样本存储。不重排、不合批：complete 依赖此前
// verification_update 累计出的状态。
type Reconciler struct {
	fileID string
	wsBase string
	store  *store.Store
	dialer *websocket.Dialer

	observers  []Observer
	onResult   func(*model.AnalysisResult)
	onComplete func([]TaxaRecord, int)
	onError    func(string)

	taxa *taxaAccumulator

	mu     sync.Mutex
	status ConnStatus
	conn   *websocket.Conn
	errMsg string
}

func New(wsBase, fileID string, st *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		fileID: fileID,
		wsBase: wsBase,
		store:  st,
		taxa:   newTaxaAccumulator(),
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Status() ConnStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ErrorMessage 错误帧携带的提示，供界面展示
func (r *Reconciler) ErrorMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// Close 释放底层连接。订阅方卸载时必须调用，所有退出路径都不泄漏连接。
func (r *Reconciler) Close() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Run 建连并消费直到终止帧、连接断开或 ctx 取消。
// 记录已是 complete 时直接跳过建连（对已完成任务重连是无谓功）。
// 消息处理单 goroutine 串行，保证到达顺序。
func (r *Reconciler) Run(ctx context.Context) error {
	if sample, ok := r.store.Get(r.fileID); ok && sample.Status == model.StatusComplete {
		r.setStatus(StatusComplete)
		return nil
	}

	r.setStatus(StatusConnecting)

	dialer := r.dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	url := fmt.Sprintf("%s/ws/%s", r.wsBase, r.fileID)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		r.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to connect stream for %s: %w", r.fileID, err)
	}

	r.swapConn(conn)
	defer r.Close()

	r.setStatus(StatusRunning)
	r.store.SetStatus(r.fileID, model.StatusProcessing)

	// ctx 取消时关闭连接，解除 ReadMessage 阻塞
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				r.setStatus(StatusDisconnected)
				return ctx.Err()
			}
			// 突然断开且无终止帧：状态保持不动，绝不默认成 complete
			r.setStatus(StatusDisconnected)
			return ErrStreamInterrupted
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			// 坏帧只降级为日志，长连接必须挺过孤立的坏帧
			log.Printf("Stream %s: failed to parse frame: %v", r.fileID, err)
			r.store.AppendLog(r.fileID, fmt.Sprintf("Failed to parse log: %s", truncate(payload, 200)))
			continue
		}

		if r.apply(msg, payload) {
			return nil
		}
	}
}

// apply 单条消息的全部效果。返回 true 表示收到终止帧。
func (r *Reconciler) apply(msg Message, raw []byte) bool {
	terminal := false

	switch msg.Type {
	case TypeLog:
		if msg.Message != "" {
			r.store.AppendLog(r.fileID, msg.Message)
		}

	case TypeProgress:
		if msg.Step != "" && msg.Status != "" {
			r.store.AppendProgress(r.fileID, model.ProgressStep{Step: msg.Step, Status: msg.Status})
		}

	case TypeClusteringResult:
		result, err := msg.ClusteringData()
		if err != nil {
			log.Printf("Stream %s: %v", r.fileID, err)
			r.store.AppendLog(r.fileID, fmt.Sprintf("Failed to parse log: %s", truncate(raw, 200)))
			break
		}
		// 整体覆盖上一次结果
		r.store.SetAnalysisResult(r.fileID, result)
		if r.onResult != nil {
			r.onResult(result)
		}

	case TypeVerificationUpdate:
		update, err := msg.VerificationData()
		if err != nil {
			log.Printf("Stream %s: %v", r.fileID, err)
			r.store.AppendLog(r.fileID, fmt.Sprintf("Failed to parse log: %s", truncate(raw, 200)))
			break
		}
		r.store.AppendVerificationUpdate(r.fileID, update)
		// description 不匹配固定格式时跳过累计，记录本身照常追加
		if record, ok := ParseTaxaDescription(update.Description, update.MatchPercentage); ok {
			r.taxa.put(record)
		}

	case TypeComplete:
		r.store.SetStatus(r.fileID, model.StatusComplete)
		records := r.taxa.flush()
		if r.onComplete != nil {
			r.onComplete(records, NovelTaxaCount(records))
		}
		r.setStatus(StatusComplete)
		terminal = true

	case TypeError:
		r.store.SetError(r.fileID, msg.Message)
		r.mu.Lock()
		r.errMsg = msg.Message
		r.status = StatusErrored
		r.mu.Unlock()
		if r.onError != nil {
			r.onError(msg.Message)
		}
		terminal = true

	default:
		// 未识别类型按日志兜底
		r.store.AppendLog(r.fileID, string(raw))
	}

	for _, observer := range r.observers {
		observer(msg)
	}
	return terminal
}

func (r *Reconciler) setStatus(status ConnStatus) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

// swapConn 同一 fileId 最多一条活动连接：新连接顶掉旧连接
func (r *Reconciler) swapConn(conn *websocket.Conn) {
	r.mu.Lock()
	old := r.conn
	r.conn = conn
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
