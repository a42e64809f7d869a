package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Mode 融合模式
type Mode string

const (
	ModeRRF Mode = "rrf" // 加权倒数排名融合
	ModeWPM Mode = "wpm" // 加权幂平均
)

// ParseMode 解析融合模式（大小写不敏感）
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRRF, "":
		return ModeRRF, nil
	case ModeWPM:
		return ModeWPM, nil
	default:
		return "", fmt.Errorf("unknown fusion mode: %q", s)
	}
}

// Candidate 单个检索通道中的候选
type Candidate struct {
	ID        string  `json:"id"`
	URL       string  `json:"url,omitempty"`
	Source    string  `json:"source"`
	BaseScore float64 `json:"base_score"`
	Rank      int     `json:"rank"` // 通道内 1-based 排名
	Title     string  `json:"title,omitempty"`
	Snippet   string  `json:"snippet,omitempty"`
}

// FusedResult 按规范键合并后的结果
type FusedResult struct {
	Key            string    `json:"key"`
	Score          float64   `json:"fused_score"`
	Rank           int       `json:"rank"`
	Representative Candidate `json:"representative"`
	Sources        []string  `json:"sources"`
}

// FusionConfig 融合配置
type FusionConfig struct {
	Mode Mode    `json:"mode" yaml:"mode"`
	K    int     `json:"k" yaml:"k"` // RRF 常数
	P    float64 `json:"p" yaml:"p"` // WPM 指数

	// 来源修正：候选 Source 含 "kg" 时加 KGBoost，含 "vector" 时加 VectorPenalty
	ProvenanceBoost bool    `json:"provenance_boost" yaml:"provenance_boost"`
	KGBoost         float64 `json:"kg_boost" yaml:"kg_boost"`
	VectorPenalty   float64 `json:"vector_penalty" yaml:"vector_penalty"`

	// WPM 聚合前按通道校准原始分数
	CalibrateWPM bool `json:"calibrate_wpm" yaml:"calibrate_wpm"`

	// BlendAlpha 校准 RRF 混合中 RRF 项的权重
	BlendAlpha float64 `json:"blend_alpha" yaml:"blend_alpha"`
}

// DefaultFusionConfig 默认配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Mode:          ModeRRF,
		K:             60,
		P:             1.5,
		KGBoost:       0.2,
		VectorPenalty: -0.2,
		CalibrateWPM:  true,
		BlendAlpha:    0.6,
	}
}

// Option 融合器选项
type Option func(*Fuser)

// WithCanonicalizer 注入外部 URL 规范化器，nil 时使用默认实现
func WithCanonicalizer(c Canonicalizer) Option {
	return func(f *Fuser) {
		if c != nil {
			f.canon = c
		}
	}
}

// WithCalibrator 注入外部分数校准器，nil 时使用 z-score/tanh
func WithCalibrator(c Calibrator) Option {
	return func(f *Fuser) {
		if c != nil {
			f.calib = c
		}
	}
}

// Fuser 多通道排序融合器。无内部可变状态，可并发使用。
type Fuser struct {
	cfg   FusionConfig
	canon Canonicalizer
	calib Calibrator
}

// NewFuser 创建融合器
func NewFuser(cfg FusionConfig, opts ...Option) *Fuser {
	def := DefaultFusionConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.P == 0 || math.IsNaN(cfg.P) {
		// p=0 无法与“未配置”区分，几何平均请使用极小的正数
		cfg.P = def.P
	}
	if cfg.BlendAlpha <= 0 || cfg.BlendAlpha > 1 {
		cfg.BlendAlpha = def.BlendAlpha
	}

	f := &Fuser{
		cfg:   cfg,
		canon: DefaultCanonicalizer,
		calib: ZScoreCalibrator{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Config 返回生效的配置
func (f *Fuser) Config() FusionConfig {
	return f.cfg
}

// Fuse 以默认配置按指定模式融合，k<=0 时使用 60
func Fuse(channels map[string][]Candidate, weights map[string]float64, mode Mode, k int) map[string]float64 {
	cfg := DefaultFusionConfig()
	cfg.Mode = mode
	cfg.K = k
	return NewFuser(cfg).Fuse(channels, weights)
}

// Fuse 返回规范键 → 融合分数。空通道集合返回空 map。
func (f *Fuser) Fuse(channels map[string][]Candidate, weights map[string]float64) map[string]float64 {
	acc := f.accumulate(channels, weights)
	return acc.scores(f.cfg)
}

// FuseRanked 返回按融合分数降序排列的结果，分数相同按规范键升序
func (f *Fuser) FuseRanked(channels map[string][]Candidate, weights map[string]float64) []FusedResult {
	acc := f.accumulate(channels, weights)
	scores := acc.scores(f.cfg)
	return rankResults(scores, acc)
}

// BlendCalibratedRRF 对每个候选计算 alpha·rrf + (1−alpha)·calibrated，再按规范键累加
func (f *Fuser) BlendCalibratedRRF(channels map[string][]Candidate, weights map[string]float64) []FusedResult {
	acc := f.accumulate(channels, weights)
	alpha := f.cfg.BlendAlpha
	scores := make(map[string]float64, len(acc.order))
	for _, key := range acc.order {
		e := acc.entries[key]
		var s float64
		for _, h := range e.hits {
			rrf := 1.0 / float64(f.cfg.K+h.rank)
			s += h.weight * (alpha*rrf + (1-alpha)*h.calibrated)
		}
		scores[key] = s
	}
	return rankResults(scores, acc)
}

// hit 某个规范键在某个通道中的一次命中
type hit struct {
	channel    string
	rank       int
	weight     float64
	base       float64
	calibrated float64
}

type entry struct {
	representative Candidate
	hits           []hit
}

type accumulator struct {
	entries map[string]*entry
	order   []string // 首次出现顺序
}

// accumulate 规范化并按键归并候选。通道按名称排序遍历，保证结果与 map 迭代顺序无关。
func (f *Fuser) accumulate(channels map[string][]Candidate, weights map[string]float64) *accumulator {
	acc := &accumulator{entries: make(map[string]*entry)}
	if len(channels) == 0 {
		return acc
	}

	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cands := channels[name]
		if len(cands) == 0 {
			continue
		}
		w := channelWeight(weights, name)
		calibrated := calibrateChannel(f.calib, cands)
		seen := make(map[string]bool, len(cands))

		for idx, cand := range cands {
			cand.BaseScore = finiteOrZero(cand.BaseScore)
			rank := cand.Rank
			if rank < 1 {
				rank = idx + 1
				cand.Rank = rank
			}

			key := canonicalKey(f.canon, cand)
			e, ok := acc.entries[key]
			if !ok {
				e = &entry{representative: cand}
				acc.entries[key] = e
				acc.order = append(acc.order, key)
			} else if cand.BaseScore > e.representative.BaseScore {
				e.representative = cand
			}
			if seen[key] {
				// 同一通道内重复出现只计最靠前的一次，但仍参与代表候选的比较
				continue
			}
			seen[key] = true

			e.hits = append(e.hits, hit{
				channel:    name,
				rank:       rank,
				weight:     f.provenanceWeight(w, cand.Source),
				base:       cand.BaseScore,
				calibrated: calibrated[idx],
			})
		}
	}
	return acc
}

func (acc *accumulator) scores(cfg FusionConfig) map[string]float64 {
	out := make(map[string]float64, len(acc.order))
	for _, key := range acc.order {
		e := acc.entries[key]
		switch cfg.Mode {
		case ModeWPM:
			values := make([]float64, len(e.hits))
			ws := make([]float64, len(e.hits))
			for i, h := range e.hits {
				if cfg.CalibrateWPM {
					values[i] = h.calibrated
				} else {
					values[i] = h.base
				}
				ws[i] = h.weight
			}
			out[key] = WeightedPowerMean(values, ws, cfg.P)
		default:
			var s float64
			for _, h := range e.hits {
				s += h.weight / float64(cfg.K+h.rank)
			}
			out[key] = s
		}
	}
	return out
}

func (f *Fuser) provenanceWeight(w float64, source string) float64 {
	if !f.cfg.ProvenanceBoost {
		return w
	}
	s := strings.ToLower(source)
	switch {
	case strings.Contains(s, "kg"):
		w += f.cfg.KGBoost
	case strings.Contains(s, "vector"):
		w += f.cfg.VectorPenalty
	}
	if w < 0 {
		return 0
	}
	return w
}

func channelWeight(weights map[string]float64, name string) float64 {
	w, ok := weights[name]
	if !ok || !isFinite(w) {
		return 1.0
	}
	if w < 0 {
		return 0
	}
	return w
}

func rankResults(scores map[string]float64, acc *accumulator) []FusedResult {
	results := make([]FusedResult, 0, len(scores))
	for _, key := range acc.order {
		e := acc.entries[key]
		sources := make([]string, 0, len(e.hits))
		for _, h := range e.hits {
			sources = append(sources, h.channel)
		}
		results = append(results, FusedResult{
			Key:            key,
			Score:          scores[key],
			Representative: e.representative,
			Sources:        sources,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Key < results[j].Key
		}
		return results[i].Score > results[j].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
