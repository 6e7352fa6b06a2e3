package handler

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qs3c/edna_go_client/internal/backend"
	"github.com/qs3c/edna_go_client/internal/model"
	"github.com/qs3c/edna_go_client/internal/pkg/response"
	"github.com/qs3c/edna_go_client/internal/repository"
	"github.com/qs3c/edna_go_client/internal/service"
	"github.com/qs3c/edna_go_client/internal/store"
)

// 后端 type 判别字段取值
var fileTypes = map[string]string{
	".fasta": "fasta",
	".fa":    "fasta",
	".fastq": "fastq",
	".fq":    "fastq",
}

type UploadHandler struct {
	client      *backend.Client
	store       *store.Store
	historyRepo *repository.HistoryRepository
	manager     *service.Manager
}

func NewUploadHandler(client *backend.Client, st *store.Store, historyRepo *repository.HistoryRepository, manager *service.Manager) *UploadHandler {
	return &UploadHandler{
		client:      client,
		store:       st,
		historyRepo: historyRepo,
		manager:     manager,
	}
}

// Upload 提交测序文件并开始跟踪分析进度
// POST /api/v1/upload
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请上传文件")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	fileType, ok := fileTypes[ext]
	if !ok {
		response.ParamError(c, "仅支持 FASTA/FASTQ 格式")
		return
	}

	// 提交失败则整体中止：没有 file_id 就没有可跟踪的任务
	result, err := h.client.Upload(c.Request.Context(), header.Filename, file, fileType)
	if err != nil {
		log.Printf("Upload to backend failed: %v", err)
		response.BackendError(c, "上传失败，请确认分析后端在线")
		return
	}

	sample := &model.Sample{
		FileID:     result.FileID,
		Status:     model.StatusUploading,
		FileName:   header.Filename,
		UploadDate: time.Now(),
	}
	applyMetadata(sample, c)

	// 缓存失败不中断上传：任务已在后端排队，本地只少一条记录
	if err := h.store.Add(sample); err != nil {
		log.Printf("Failed to cache sample %s: %v", result.FileID, err)
	}

	historyItem := &model.HistoryItem{
		ID:         uuid.New().String(),
		FileName:   header.Filename,
		FileType:   ext,
		UploadDate: time.Now(),
		FileSize:   header.Size,
		Status:     model.HistoryInProgress,
	}
	if err := h.historyRepo.Add(historyItem); err != nil {
		log.Printf("Failed to record upload history: %v", err)
		historyItem.ID = ""
	}

	h.manager.Start(result.FileID, historyItem.ID)

	response.Success(c, gin.H{
		"file_id":    result.FileID,
		"history_id": historyItem.ID,
		"message":    result.Message,
	})
}

// PredictSequence 单条裸序列快速预测
// POST /api/v1/predict/sequence
func (h *UploadHandler) PredictSequence(c *gin.Context) {
	var req struct {
		Sequence string `json:"sequence" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请提供序列文本")
		return
	}

	result, err := h.client.PredictSequence(c.Request.Context(), req.Sequence)
	if err != nil {
		log.Printf("Sequence prediction failed: %v", err)
		response.BackendError(c, "预测失败")
		return
	}
	response.Success(c, result)
}

// PredictFasta 整个 FASTA 文件的同步预测（不走流式分析）
// POST /api/v1/predict/fasta
func (h *UploadHandler) PredictFasta(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请上传文件")
		return
	}
	defer file.Close()

	result, err := h.client.PredictFasta(c.Request.Context(), header.Filename, file)
	if err != nil {
		log.Printf("Fasta prediction failed: %v", err)
		response.BackendError(c, "预测失败")
		return
	}
	response.Success(c, result)
}

// Finetune 提交 CSV 训练数据微调模型
// POST /api/v1/finetune
func (h *UploadHandler) Finetune(c *gin.Context) {
	file, header, err := c.Request.FormFile("csv_file")
	if err != nil {
		response.ParamError(c, "请上传 CSV 文件")
		return
	}
	defer file.Close()

	epochs, _ := strconv.Atoi(c.PostForm("epochs"))

	result, err := h.client.Finetune(c.Request.Context(), header.Filename, file, epochs)
	if err != nil {
		log.Printf("Finetune failed: %v", err)
		response.BackendError(c, "微调任务提交失败")
		return
	}
	response.Success(c, result)
}

// applyMetadata 采样元数据为可选表单字段，缺省留空
func applyMetadata(sample *model.Sample, c *gin.Context) {
	if v := c.PostForm("sample_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			sample.SampleID = id
		}
	}
	sample.CollectionTime = c.PostForm("collection_time")
	if v := c.PostForm("depth"); v != "" {
		if depth, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Depth = &depth
		}
	}
	if v := c.PostForm("latitude"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Latitude = &lat
		}
	}
	if v := c.PostForm("longitude"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			sample.Longitude = &lon
		}
	}
}
