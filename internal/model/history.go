package model

import (
	"time"
)

// 上传历史状态
const (
	HistoryCompleted  = "completed"
	HistoryInProgress = "in-progress"
	HistoryFailed     = "failed"
)

// HistoryItem 上传历史，独立于 Sample 持久化，超过上限先进先出淘汰
type HistoryItem struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	FileName       string    `gorm:"size:255;not null" json:"file_name"`
	FileType       string    `gorm:"size:10" json:"file_type"` // .fasta, .fastq, text
	UploadDate     time.Time `gorm:"index" json:"upload_date"`
	FileSize       int64     `json:"file_size,omitempty"`
	Status         string    `gorm:"size:20;default:in-progress" json:"status"`
	TotalReads     int       `json:"total_reads,omitempty"`
	TotalClusters  int       `json:"total_clusters,omitempty"`
	TaxaCount      int       `json:"taxa_count,omitempty"`
	NovelTaxaCount int       `json:"novel_taxa_count,omitempty"`
}

func (HistoryItem) TableName() string {
	return "upload_history"
}
