package gate

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SourceFeatures 单个来源的规范化质量信号
type SourceFeatures struct {
	Authority          float64   `json:"authority"`           // > 0
	Novelty            float64   `json:"novelty"`             // [0,1]
	DistanceCorrection float64   `json:"distance_correction"` // [1e-3, 1e3]
	Match              float64   `json:"match"`               // 有符号对齐分数，不截断
	Extras             []float64 `json:"extras,omitempty"`
}

// 别名表，按顺序取第一个存在的键
var (
	authorityAliases  = []string{"authority", "baseWeight", "weight", "a"}
	noveltyAliases    = []string{"novelty", "u", "noveltyFactor"}
	correctionAliases = []string{"correctionFactor", "F", "Fd"}
	matchAliases      = []string{"match", "m", "alignmentScore"}
)

// ExtraNames 额外特征的检查顺序。MixtureGate 的 WExtras 按下标匹配，顺序不可调整。
var ExtraNames = []string{"recentness", "recency", "reliability", "length", "chunkCount", "coverage", "freshness"}

const (
	minCorrection = 1e-3
	maxCorrection = 1e3
)

// DefaultFeatures 缺失全部信号时的特征
func DefaultFeatures() SourceFeatures {
	return SourceFeatures{
		Authority:          1.0,
		Novelty:            0.0,
		DistanceCorrection: 1.0,
		Match:              0.0,
	}
}

// Collect 从任意命名的元数据中解析 SourceFeatures，缺失或无法解析的字段取默认值，从不失败。
func Collect(raw map[string]any) SourceFeatures {
	f := DefaultFeatures()
	if len(raw) == 0 {
		return f
	}

	if a, ok := lookup(raw, authorityAliases); ok && a > 0 {
		f.Authority = a
	}

	if u, ok := lookup(raw, noveltyAliases); ok {
		// 部分上游把 novelty 编码为 0.5+0.5·u 的因子，[0.5,1] 区间按因子还原
		if u >= 0.5 && u <= 1.0 {
			u = (u - 0.5) * 2
		}
		f.Novelty = clamp(u, 0, 1)
	}

	if c, ok := lookup(raw, correctionAliases); ok {
		f.DistanceCorrection = clamp(c, minCorrection, maxCorrection)
	}

	if m, ok := lookup(raw, matchAliases); ok {
		f.Match = m
	}

	for _, name := range ExtraNames {
		if v, ok := toFloat(raw[name]); ok {
			f.Extras = append(f.Extras, v)
		}
	}
	return f
}

// Sanitize 将手工构造的特征约束到合法区间
func (f SourceFeatures) Sanitize() SourceFeatures {
	out := f
	if !finite(out.Authority) || out.Authority <= 0 {
		out.Authority = 1.0
	}
	if !finite(out.Novelty) {
		out.Novelty = 0
	}
	out.Novelty = clamp(out.Novelty, 0, 1)
	if !finite(out.DistanceCorrection) || out.DistanceCorrection <= 0 {
		out.DistanceCorrection = 1.0
	}
	out.DistanceCorrection = clamp(out.DistanceCorrection, minCorrection, maxCorrection)
	if !finite(out.Match) {
		out.Match = 0
	}
	if len(f.Extras) > 0 {
		out.Extras = make([]float64, len(f.Extras))
		for i, v := range f.Extras {
			if finite(v) {
				out.Extras[i] = v
			}
		}
	}
	return out
}

func lookup(raw map[string]any, aliases []string) (float64, bool) {
	for _, key := range aliases {
		v, present := raw[key]
		if !present {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// toFloat 宽松的数值转换，非有限值视为缺失
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
