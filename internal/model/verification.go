package model

import (
	"database/sql/driver"
	"encoding/json"
)

// VerificationUpdate 单个聚类的 NCBI 比对结果。
// description 形如 "Pseudomonas (Class: Gammaproteobacteria, 340 sequences, 91.2%)"。
type VerificationUpdate struct {
	Step            string  `json:"step,omitempty"`
	ClusterID       string  `json:"cluster_id,omitempty"`
	Status          string  `json:"status,omitempty"`
	MatchPercentage float64 `json:"match_percentage,omitempty"`
	Description     string  `json:"description,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var verificationKnownKeys = map[string]struct{}{
	"step":             {},
	"cluster_id":       {},
	"status":           {},
	"match_percentage": {},
	"description":      {},
}

func (u *VerificationUpdate) UnmarshalJSON(data []byte) error {
	type alias VerificationUpdate
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range verificationKnownKeys {
		delete(raw, key)
	}
	if len(raw) == 0 {
		raw = nil
	}
	known.Extra = raw

	*u = VerificationUpdate(known)
	return nil
}

func (u VerificationUpdate) MarshalJSON() ([]byte, error) {
	type alias VerificationUpdate
	data, err := json.Marshal(alias(u))
	if err != nil {
		return nil, err
	}
	if len(u.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range u.Extra {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

type VerificationUpdates []VerificationUpdate

func (v VerificationUpdates) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	return json.Marshal(v)
}

func (v *VerificationUpdates) Scan(value interface{}) error {
	if value == nil {
		*v = VerificationUpdates{}
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
	return json.Unmarshal(bytes, v)
}
