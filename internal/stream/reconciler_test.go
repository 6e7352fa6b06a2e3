package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/store"
	"github.com/qs3c/edna_go_client/internal/testutil"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamServer 按顺序下发给定帧。frames 为原始 JSON 文本，
// 故意允许坏帧。clean 为 true 时发送正常关闭帧。
func streamServer(t *testing.T, frames []string, clean bool, dials *int64) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if dials != nil {
			atomic.AddInt64(dials, 1)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade: %v", err)
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		if clean {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// 等对端读完
			conn.ReadMessage()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func setupStreamStore(t *testing.T, fileID, status string) *store.Store {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	s := store.New(repository.NewSampleRepository(db))
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Add(&model.Sample{
		FileID:     fileID,
		Status:     status,
		FileName:   "sample.fasta",
		UploadDate: time.Now(),
	}))
	return s
}

func TestReconciler_HappyPath(t *testing.T) {
	frames := []string{
		`{"type":"log","message":"Reading sequences..."}`,
		`{"type":"progress","step":"read_sequences","status":"processing"}`,
		`{"type":"progress","step":"read_sequences","status":"complete"}`,
		`{"type":"clustering_result","data":{"total_sequences":1200,"num_clusters":14,"cluster_summary":[{"cluster_id":"0","size":300,"novelty_score":0.12},{"cluster_id":"1","size":90,"novelty_score":0.88}]}}`,
		`{"type":"verification_update","data":{"cluster_id":"0","match_percentage":92,"description":"Pseudomonas (Class: Gammaproteobacteria, 340 sequences, 92%)"}}`,
		`{"type":"verification_update","data":{"cluster_id":"1","match_percentage":65,"description":"Vibrio (Class: Gammaproteobacteria, 120 sequences, 65%)"}}`,
		`{"type":"verification_update","data":{"cluster_id":"2","match_percentage":45,"description":"Shewanella (Class: Gammaproteobacteria, 44 sequences, 45%)"}}`,
		`{"type":"complete","message":"Analysis complete"}`,
	}
	server := streamServer(t, frames, false, nil)
	s := setupStreamStore(t, "job1", model.StatusUploading)

	var gotTaxa []TaxaRecord
	var gotNovel int
	var observed []Message

	r := New(wsURL(server), "job1", s,
		OnComplete(func(taxa []TaxaRecord, novel int) {
			gotTaxa = taxa
			gotNovel = novel
		}),
		WithObserver(func(msg Message) { observed = append(observed, msg) }),
	)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StatusComplete, r.Status())

	sample, ok := s.Get("job1")
	require.True(t, ok)
	assert.Equal(t, model.StatusComplete, sample.Status)
	assert.Equal(t, []string{"Reading sequences..."}, []string(sample.Logs))
	assert.Equal(t, "complete", sample.Progress.Latest()["read_sequences"])
	require.NotNil(t, sample.LatestAnalysis)
	assert.Equal(t, 1200, sample.LatestAnalysis.TotalSequences)
	assert.Equal(t, 1, sample.LatestAnalysis.NovelClusterCount())
	assert.Len(t, sample.VerificationUpdates, 3)

	// 92 / 65 / 45，阈值 80 之下的是 2 个
	require.Len(t, gotTaxa, 3)
	assert.Equal(t, 2, gotNovel)

	// 观察者按到达顺序看到全部帧
	require.Len(t, observed, len(frames))
	assert.Equal(t, TypeComplete, observed[len(observed)-1].Type)
}

func TestReconciler_MalformedFrameDoesNotKillStream(t *testing.T) {
	frames := []string{
		`{not valid json`,
		`{"type":"log","message":"still alive"}`,
		`{"type":"complete","message":"done"}`,
	}
	server := streamServer(t, frames, false, nil)
	s := setupStreamStore(t, "job1", model.StatusUploading)

	r := New(wsURL(server), "job1", s)
	require.NoError(t, r.Run(context.Background()))

	sample, _ := s.Get("job1")
	assert.Equal(t, model.StatusComplete, sample.Status)

	// 坏帧降级成诊断日志，后续好帧照常处理
	require.Len(t, sample.Logs, 2)
	assert.Contains(t, sample.Logs[0], "Failed to parse log")
	assert.Equal(t, "still alive", sample.Logs[1])
}

func TestReconciler_ErrorFrame(t *testing.T) {
	frames := []string{
		`{"type":"error","message":"clustering failed: out of memory"}`,
	}
	server := streamServer(t, frames, false, nil)
	s := setupStreamStore(t, "job1", model.StatusUploading)

	var gotError string
	r := New(wsURL(server), "job1", s, OnError(func(msg string) { gotError = msg }))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StatusErrored, r.Status())
	assert.Equal(t, "clustering failed: out of memory", r.ErrorMessage())
	assert.Equal(t, "clustering failed: out of memory", gotError)

	sample, _ := s.Get("job1")
	assert.Equal(t, model.StatusError, sample.Status)
	assert.Equal(t, "clustering failed: out of memory", sample.ErrorMessage)
}

func TestReconciler_SkipsConnectWhenAlreadyComplete(t *testing.T) {
	var dials int64
	server := streamServer(t, nil, false, &dials)
	s := setupStreamStore(t, "job1", model.StatusComplete)

	r := New(wsURL(server), "job1", s)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, StatusComplete, r.Status())
	assert.Zero(t, atomic.LoadInt64(&dials), "must not dial for a finished job")
}

func TestReconciler_AbruptCloseLeavesStatusUntouched(t *testing.T) {
	frames := []string{
		`{"type":"log","message":"working"}`,
	}
	server := streamServer(t, frames, true, nil)
	s := setupStreamStore(t, "job1", model.StatusUploading)

	r := New(wsURL(server), "job1", s)
	err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrStreamInterrupted)
	assert.Equal(t, StatusDisconnected, r.Status())

	// 既不是 complete 也不是 error：状态停在 processing，由调用方决定重试
	sample, _ := s.Get("job1")
	assert.Equal(t, model.StatusProcessing, sample.Status)
}

func TestReconciler_DialFailure(t *testing.T) {
	s := setupStreamStore(t, "job1", model.StatusUploading)

	r := New("ws://127.0.0.1:1", "job1", s)
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, r.Status())

	// 建连失败不动记录状态
	sample, _ := s.Get("job1")
	assert.Equal(t, model.StatusUploading, sample.Status)
}

func TestReconciler_ContextCancelClosesConnection(t *testing.T) {
	// 服务端只建连不发终止帧
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	s := setupStreamStore(t, "job1", model.StatusUploading)
	r := New(wsURL(server), "job1", s)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}
