package evidence

import (
	"github.com/BaSui01/fusiongate/rag/fusion"
	"github.com/BaSui01/fusiongate/rag/gate"
)

// RankRequest 融合请求
type RankRequest struct {
	Query    string                        `json:"query"`
	Channels map[string][]fusion.Candidate `json:"channels"`
	Weights  map[string]float64            `json:"weights,omitempty"`

	// DecisionKey 缓存中的决策身份，为空时使用规范化后的 Query
	DecisionKey string `json:"decision_key,omitempty"`
	// Attributes 额外参与指纹的属性（如草稿哈希、语言）
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RankResponse 融合结果
type RankResponse struct {
	Results     []fusion.FusedResult `json:"results"`
	Mode        fusion.Mode          `json:"mode"`
	Fingerprint string               `json:"fingerprint"`
}

// GateSource 门控请求中的单个来源
type GateSource struct {
	Name     string         `json:"name"`
	K        gate.Matrix    `json:"k"`
	V        gate.Matrix    `json:"v"`
	W        gate.Matrix    `json:"w"`
	Features map[string]any `json:"features,omitempty"`
}

// GateRequest 门控请求
type GateRequest struct {
	Query    gate.Matrix  `json:"q"`
	Residual gate.Matrix  `json:"h_in"`
	Sources  []GateSource `json:"sources"`
}

// GateResponse 门控结果
type GateResponse struct {
	Sources  []string              `json:"sources"`
	Features []gate.SourceFeatures `json:"features"`
	*gate.GateOutput
}
