package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/edna_go_client/internal/model"
)

// TestSample 创建测试样本记录
func TestSample(t *testing.T, db *gorm.DB, opts ...func(*model.Sample)) *model.Sample {
	t.Helper()

	now := time.Now()
	sample := &model.Sample{
		FileID:              fmt.Sprintf("file_%d", now.UnixNano()),
		SampleID:            now.UnixNano() % 100000,
		Status:              model.StatusUploading,
		FileName:            "sample.fasta",
		UploadDate:          now,
		Logs:                model.StringArray{},
		Progress:            model.ProgressSteps{},
		VerificationUpdates: model.VerificationUpdates{},
	}

	for _, opt := range opts {
		opt(sample)
	}

	if err := db.Create(sample).Error; err != nil {
		t.Fatalf("Failed to create test sample: %v", err)
	}

	return sample
}

// WithFileID 设置文件ID
func WithFileID(fileID string) func(*model.Sample) {
	return func(s *model.Sample) {
		s.FileID = fileID
	}
}

// WithStatus 设置状态
func WithStatus(status string) func(*model.Sample) {
	return func(s *model.Sample) {
		s.Status = status
	}
}

// WithFileName 设置文件名
func WithFileName(name string) func(*model.Sample) {
	return func(s *model.Sample) {
		s.FileName = name
	}
}

// WithUploadDate 设置上传时间
func WithUploadDate(date time.Time) func(*model.Sample) {
	return func(s *model.Sample) {
		s.UploadDate = date
	}
}

// WithLocation 设置采样点坐标
func WithLocation(lat, lon float64) func(*model.Sample) {
	return func(s *model.Sample) {
		s.Latitude = &lat
		s.Longitude = &lon
	}
}

// TestHistoryItem 创建测试历史记录
func TestHistoryItem(t *testing.T, db *gorm.DB, opts ...func(*model.HistoryItem)) *model.HistoryItem {
	t.Helper()

	item := &model.HistoryItem{
		ID:         uuid.NewString(),
		FileName:   "sample.fasta",
		FileType:   ".fasta",
		UploadDate: time.Now(),
		Status:     model.HistoryInProgress,
	}

	for _, opt := range opts {
		opt(item)
	}

	if err := db.Create(item).Error; err != nil {
		t.Fatalf("Failed to create test history item: %v", err)
	}

	return item
}

// WithHistoryDate 设置历史时间
func WithHistoryDate(date time.Time) func(*model.HistoryItem) {
	return func(h *model.HistoryItem) {
		h.UploadDate = date
	}
}

// WithHistoryStatus 设置历史状态
func WithHistoryStatus(status string) func(*model.HistoryItem) {
	return func(h *model.HistoryItem) {
		h.Status = status
	}
}
