package rerank

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Projection 从调用方的元素类型中取出分数、文本与 ID
type Projection[T any] struct {
	Score func(T) float64
	Text  func(T) string
	ID    func(T) string // 可选，非空时先按 ID 去重
}

// DiversityConfig 多样性重排配置
type DiversityConfig struct {
	K           int     `json:"k" yaml:"k"`                       // 输出条数，<=0 或超过候选池时取满候选池
	PoolCap     int     `json:"pool_cap" yaml:"pool_cap"`         // 候选池上限，<=0 表示不限
	Lambda      float64 `json:"lambda" yaml:"lambda"`             // 相关性权重，1 为纯相关性，0 为纯多样性
	ShingleSize int     `json:"shingle_size" yaml:"shingle_size"` // shingle 字符数
}

// DefaultDiversityConfig 默认配置
func DefaultDiversityConfig() DiversityConfig {
	return DiversityConfig{
		K:           8,
		PoolCap:     30,
		Lambda:      0.7,
		ShingleSize: 3,
	}
}

// DiversityReranker 泛型多样性重排器
type DiversityReranker[T any] struct {
	config DiversityConfig
	proj   Projection[T]
	logger *zap.Logger
}

// NewDiversityReranker 创建多样性重排器
func NewDiversityReranker[T any](config DiversityConfig, proj Projection[T], logger *zap.Logger) *DiversityReranker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiversityReranker[T]{
		config: config,
		proj:   proj,
		logger: logger.With(zap.String("component", "diversity_reranker")),
	}
}

// Rerank 对候选进行多样性重排。query 仅用于日志，相似度只比较候选文本。
func (r *DiversityReranker[T]) Rerank(ctx context.Context, query string, items []T) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := Diversify(items, r.config, r.proj)
	r.logger.Debug("diversity rerank completed",
		zap.Int("input", len(items)),
		zap.Int("output", len(out)),
		zap.Float64("lambda", r.config.Lambda),
		zap.Int("query_len", len(query)))
	return out, nil
}

// Diversify 贪心 MMR 选择。相同收益时保留先出现的候选。
func Diversify[T any](items []T, cfg DiversityConfig, proj Projection[T]) []T {
	if len(items) == 0 {
		return []T{}
	}

	lambda := cfg.Lambda
	if math.IsNaN(lambda) {
		lambda = DefaultDiversityConfig().Lambda
	}
	lambda = math.Max(0, math.Min(1, lambda))

	sorted := dedupAndSort(items, proj)

	poolSize := len(sorted)
	if cfg.PoolCap > 0 && cfg.PoolCap < poolSize {
		poolSize = cfg.PoolCap
	}
	// 输出不超过候选池
	k := cfg.K
	if k <= 0 || k > poolSize {
		k = poolSize
	}
	if k == poolSize || proj.Text == nil {
		return sorted[:k]
	}

	pool := sorted[:poolSize]
	rel := normalizedRelevance(pool, proj)

	fold := cases.Fold()
	sh := make([]map[string]struct{}, len(pool))
	for i, it := range pool {
		sh[i] = shingles(fold, proj.Text(it), cfg.ShingleSize)
	}

	maxSim := make([]float64, len(pool))
	chosen := make([]bool, len(pool))
	out := make([]T, 0, k)

	for len(out) < k {
		best := -1
		bestGain := math.Inf(-1)
		for i := range pool {
			if chosen[i] {
				continue
			}
			gain := lambda*rel[i] + (1-lambda)*(1-maxSim[i])
			if gain > bestGain {
				best, bestGain = i, gain
			}
		}
		if best < 0 {
			break
		}

		chosen[best] = true
		out = append(out, pool[best])
		for i := range pool {
			if chosen[i] {
				continue
			}
			if s := jaccard(sh[i], sh[best]); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}
	return out
}

func dedupAndSort[T any](items []T, proj Projection[T]) []T {
	out := make([]T, 0, len(items))
	var seen map[string]bool
	if proj.ID != nil {
		seen = make(map[string]bool, len(items))
	}
	for _, it := range items {
		if seen != nil {
			id := proj.ID(it)
			if seen[id] {
				continue
			}
			seen[id] = true
		}
		out = append(out, it)
	}

	if proj.Score != nil {
		scores := make([]float64, len(out))
		for i, it := range out {
			scores[i] = sanitize(proj.Score(it))
		}
		idx := make([]int, len(out))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return scores[idx[a]] > scores[idx[b]]
		})
		reordered := make([]T, len(out))
		for i, j := range idx {
			reordered[i] = out[j]
		}
		out = reordered
	}
	return out
}

func normalizedRelevance[T any](pool []T, proj Projection[T]) []float64 {
	rel := make([]float64, len(pool))
	if proj.Score == nil {
		for i := range rel {
			rel[i] = 1
		}
		return rel
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, it := range pool {
		rel[i] = sanitize(proj.Score(it))
		lo = math.Min(lo, rel[i])
		hi = math.Max(hi, rel[i])
	}
	span := hi - lo
	for i := range rel {
		if span <= 0 {
			rel[i] = 1
			continue
		}
		rel[i] = (rel[i] - lo) / span
	}
	return rel
}

func sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
