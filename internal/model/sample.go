package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Sample 状态（error 为吸收态，complete 后不再回退）
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, s)
}

// ProgressStep 流水线步骤的一次状态变更。同一 step 可多次出现，
// 消费方必须取每个 step 最新的一条。
type ProgressStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

type ProgressSteps []ProgressStep

func (p ProgressSteps) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

func (p *ProgressSteps) Scan(value interface{}) error {
	if value == nil {
		*p = ProgressSteps{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, p)
}

// Latest 返回每个 step 最近一次的状态
func (p ProgressSteps) Latest() map[string]string {
	latest := make(map[string]string, len(p))
	for _, step := range p {
		latest[step.Step] = step.Status
	}
	return latest
}

type Sample struct {
	FileID              string              `gorm:"primaryKey;size:64" json:"file_id"`
	SampleID            int64               `json:"sample_id"`
	Status              string              `gorm:"size:20;default:uploading;index" json:"status"`
	FileName            string              `gorm:"size:255" json:"file_name,omitempty"`
	UploadDate          time.Time           `gorm:"index" json:"upload_date"`
	CollectionTime      string              `gorm:"size:64" json:"collection_time,omitempty"`
	Depth               *float64            `json:"depth,omitempty"`
	Latitude            *float64            `json:"latitude,omitempty"`
	Longitude           *float64            `json:"longitude,omitempty"`
	ErrorMessage        string              `gorm:"type:text" json:"error_message,omitempty"`
	LatestAnalysis      *AnalysisResult     `gorm:"type:text" json:"latest_analysis,omitempty"`
	Logs                StringArray         `gorm:"type:text" json:"logs"`
	Progress            ProgressSteps       `gorm:"type:text" json:"progress"`
	VerificationUpdates VerificationUpdates `gorm:"type:text" json:"verification_updates"`
}

func (Sample) TableName() string {
	return "samples"
}

// Terminal 终态判断：complete 和 error 之后不再接受前向状态变更
func (s *Sample) Terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusError
}
