package model

import (
	"database/sql/driver"
	"encoding/json"
)

// NoveltyScoreThreshold 之上的聚类视为潜在新物种（移动端派生视图）
const NoveltyScoreThreshold = 0.7

type ClusterSummary struct {
	ClusterID    string  `json:"cluster_id"`
	Size         int     `json:"size"`
	NoveltyScore float64 `json:"novelty_score"`
}

// AnalysisResult 后端聚类结果。已知字段显式建模，
// 其余自由字段收进 Extra，序列化时平铺回同一层。
type AnalysisResult struct {
	TotalSequences   int              `json:"total_sequences,omitempty"`
	TotalReads       int              `json:"total_reads,omitempty"`
	NumClusters      int              `json:"num_clusters,omitempty"`
	TotalClusters    int              `json:"total_clusters,omitempty"`
	NumNovelClusters int              `json:"num_novel_clusters,omitempty"`
	ClusterSummary   []ClusterSummary `json:"cluster_summary,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// 已知字段的 JSON key，反序列化时其余进 Extra
var analysisKnownKeys = map[string]struct{}{
	"total_sequences":    {},
	"total_reads":        {},
	"num_clusters":       {},
	"total_clusters":     {},
	"num_novel_clusters": {},
	"cluster_summary":    {},
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	type alias AnalysisResult
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range analysisKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	known.Extra = raw

	*r = AnalysisResult(known)
	return nil
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type alias AnalysisResult
	data, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

func (r *AnalysisResult) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *AnalysisResult) Scan(value interface{}) error {
	if value == nil {
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
	if len(bytes) == 0 || string(bytes) == "{}" || string(bytes) == "null" {
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// NovelClusterCount novelty_score 超过阈值的聚类数。
// 后端给出 num_novel_clusters 时以其为准。
func (r *AnalysisResult) NovelClusterCount() int {
	if r == nil {
		return 0
	}
	if r.NumNovelClusters > 0 {
		return r.NumNovelClusters
	}
	count := 0
	for _, cluster := range r.ClusterSummary {
		if cluster.NoveltyScore > NoveltyScoreThreshold {
			count++
		}
	}
	return count
}

// SequenceCount total_sequences 与 total_reads 两种命名取其一
func (r *AnalysisResult) SequenceCount() int {
	if r == nil {
		return 0
	}
	if r.TotalSequences > 0 {
		return r.TotalSequences
	}
	return r.TotalReads
}

// ClusterCount num_clusters 与 total_clusters 两种命名取其一
func (r *AnalysisResult) ClusterCount() int {
	if r == nil {
		return 0
	}
	if r.NumClusters > 0 {
		return r.NumClusters
	}
	return r.TotalClusters
}
