// Package stream 消费分析后端的 websocket 事件流，把每条消息按到达顺序
// 恰好一次地落到样本存储上。协议为纯接收：建连后客户端不发送任何帧。
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/qs3c/edna_go_client/internal/model"
)

// 帧类型判别值
const (
	TypeLog                = "log"
	TypeProgress           = "progress"
	TypeClusteringResult   = "clustering_result"
	TypeVerificationUpdate = "verification_update"
	TypeComplete           = "complete"
	TypeError              = "error"
)

// Message 入站帧的带标签联合。payload 按 type 取对应字段。
type Message struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Step    string          `json:"step,omitempty"`
	Status  string          `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ClusteringData 解出聚类结果 payload
func (m *Message) ClusteringData() (*model.AnalysisResult, error) {
	if len(m.Data) == 0 {
		return nil, fmt.Errorf("clustering_result frame without data")
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(m.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode clustering_result: %w", err)
	}
	return &result, nil
}

// VerificationData 解出单聚类校验 payload
func (m *Message) VerificationData() (model.VerificationUpdate, error) {
	var update model.VerificationUpdate
	if len(m.Data) == 0 {
		return update, fmt.Errorf("verification_update frame without data")
	}
	if err := json.Unmarshal(m.Data, &update); err != nil {
		return update, fmt.Errorf("failed to decode verification_update: %w", err)
	}
	return update, nil
}
