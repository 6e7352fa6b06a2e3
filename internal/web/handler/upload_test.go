package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/edna_go_client/internal/backend"
	"github.com/qs3c/edna_go_client/internal/dashboard"
	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/pkg/ws"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/service"
	"github.com/qs3c/edna_go_client/internal/store"
	"github.com/qs3c/edna_go_client/internal/testutil"
)

type testEnv struct {
	db          *gorm.DB
	store       *store.Store
	historyRepo *repository.HistoryRepository
	manager     *service.Manager
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	// Initialize 留给用例在种入夹具后调用（幂等，首次调用才加载）
	st := store.New(repository.NewSampleRepository(db))

	historyRepo := repository.NewHistoryRepository(db, 50)
	// 流地址不可达：测试里任务启动后台失败即可，不关心流本身
	manager := service.NewManager("ws://127.0.0.1:1", st, dashboard.New(), ws.NewHub(), nil, historyRepo)
	t.Cleanup(manager.Shutdown)

	return &testEnv{db: db, store: st, historyRepo: historyRepo, manager: manager}
}

func multipartFile(t *testing.T, field, name, content string, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func fakeBackend(t *testing.T, fileID string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload":
			fmt.Fprintf(w, `{"file_id":%q,"message":"queued"}`, fileID)
		case "/predict/sequence":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			fmt.Fprintf(w, `{"prediction":"Bathymodiolus","input":%q}`, r.FormValue("sequence"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestUploadHandler_Upload(t *testing.T) {
	gin.SetMode(gin.TestMode)

	backendSrv := fakeBackend(t, "file-abc-123")
	defer backendSrv.Close()

	env := setupEnv(t)
	client := backend.NewClient(backendSrv.URL, 5*time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	body, contentType := multipartFile(t, "file", "sample.fasta", ">seq1\nACGT\n", map[string]string{
		"sample_id": "42",
		"depth":     "1250.5",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/upload", h.Upload)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			FileID    string `json:"file_id"`
			HistoryID string `json:"history_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "file-abc-123", resp.Data.FileID)
	assert.NotEmpty(t, resp.Data.HistoryID)

	// 样本已入缓存，元数据已解析
	sample, ok := env.store.Get("file-abc-123")
	require.True(t, ok)
	assert.Equal(t, model.StatusUploading, sample.Status)
	assert.Equal(t, int64(42), sample.SampleID)
	require.NotNil(t, sample.Depth)
	assert.Equal(t, 1250.5, *sample.Depth)

	// 上传历史已记录
	items, err := env.historyRepo.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "sample.fasta", items[0].FileName)
	assert.Equal(t, model.HistoryInProgress, items[0].Status)
}

func TestUploadHandler_Upload_NoFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	env := setupEnv(t)
	client := backend.NewClient("http://127.0.0.1:1", time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", nil)

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/upload", h.Upload)
	router.ServeHTTP(w, req)

	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1000, resp.Code) // ParamError
}

func TestUploadHandler_Upload_WrongExtension(t *testing.T) {
	gin.SetMode(gin.TestMode)

	env := setupEnv(t)
	client := backend.NewClient("http://127.0.0.1:1", time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	body, contentType := multipartFile(t, "file", "notes.txt", "hello", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/upload", h.Upload)
	router.ServeHTTP(w, req)

	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1000, resp.Code)
}

func TestUploadHandler_Upload_BackendDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	env := setupEnv(t)
	client := backend.NewClient("http://127.0.0.1:1", time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	body, contentType := multipartFile(t, "file", "sample.fasta", ">seq1\nACGT\n", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/upload", h.Upload)
	router.ServeHTTP(w, req)

	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2000, resp.Code) // BackendError

	// 提交失败时不留任何本地痕迹
	assert.Empty(t, env.store.List())
	items, err := env.historyRepo.List()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestUploadHandler_PredictSequence(t *testing.T) {
	gin.SetMode(gin.TestMode)

	backendSrv := fakeBackend(t, "")
	defer backendSrv.Close()

	env := setupEnv(t)
	client := backend.NewClient(backendSrv.URL, 5*time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	payload := bytes.NewBufferString(`{"sequence":"ACGTACGT"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict/sequence", payload)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/predict/sequence", h.PredictSequence)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			Prediction string `json:"prediction"`
			Input      string `json:"input"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "ACGTACGT", resp.Data.Input)
}

func TestUploadHandler_PredictSequence_Empty(t *testing.T) {
	gin.SetMode(gin.TestMode)

	env := setupEnv(t)
	client := backend.NewClient("http://127.0.0.1:1", time.Second, time.Second)
	h := NewUploadHandler(client, env.store, env.historyRepo, env.manager)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict/sequence", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/v1/predict/sequence", h.PredictSequence)
	router.ServeHTTP(w, req)

	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1000, resp.Code)
}
