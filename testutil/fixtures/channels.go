// =============================================================================
// 📦 测试数据工厂 - 多通道候选
// =============================================================================
// 提供预定义的检索通道与融合结果，用于融合、重排与引擎测试
// =============================================================================
package fixtures

import (
	"fmt"
	"math/rand"

	"github.com/BaSui01/fusiongate/rag/fusion"
)

// ExampleQuery 与 ExampleChannels 配套的查询
const ExampleQuery = "how do transformers work"

// ExampleChannels 两通道样例：web [A,B]，vector [B,C]。k=60 时融合顺序为 B, A, C。
func ExampleChannels() map[string][]fusion.Candidate {
	return map[string][]fusion.Candidate{
		"web": {
			{ID: "A", Source: "web", BaseScore: 0.9, Rank: 1, Title: "Attention basics"},
			{ID: "B", Source: "web", BaseScore: 0.8, Rank: 2, Title: "Transformer architecture"},
		},
		"vector": {
			{ID: "B", Source: "vector", BaseScore: 0.7, Rank: 1, Title: "Transformer architecture"},
			{ID: "C", Source: "vector", BaseScore: 0.6, Rank: 2, Title: "Positional encodings"},
		},
	}
}

// ExampleRRFScores ExampleChannels 在 k=60、默认权重下的融合分数（规范键）
func ExampleRRFScores() map[string]float64 {
	return map[string]float64{
		"a": 1.0 / 61,
		"b": 1.0/62 + 1.0/61,
		"c": 1.0 / 62,
	}
}

// URLVariantChannels 同一文档以不同 URL 形式出现在三个通道中
func URLVariantChannels() map[string][]fusion.Candidate {
	return map[string][]fusion.Candidate{
		"web": {
			{ID: "w1", URL: "https://Example.com/docs/rrf/?utm_source=x", Source: "web", BaseScore: 0.7, Rank: 1},
		},
		"kg": {
			{ID: "k1", URL: "https://example.com/docs/rrf#intro", Source: "kg", BaseScore: 0.9, Rank: 1},
		},
		"vector": {
			{ID: "v1", URL: "HTTPS://example.com/docs/rrf", Source: "vector", BaseScore: 0.4, Rank: 1},
		},
	}
}

// NearDuplicateResults 前两条标题几乎相同，第三条分数略低但内容不同
func NearDuplicateResults() []fusion.FusedResult {
	mk := func(key, title string, score float64) fusion.FusedResult {
		return fusion.FusedResult{
			Key:            key,
			Score:          score,
			Representative: fusion.Candidate{ID: key, Title: title},
			Sources:        []string{"web"},
		}
	}
	return []fusion.FusedResult{
		mk("d1", "Reciprocal rank fusion explained", 0.90),
		mk("d2", "Reciprocal rank fusion explained!", 0.89),
		mk("d3", "Maximal marginal relevance for diversity", 0.80),
		mk("d4", "Weighted power mean aggregation", 0.50),
	}
}

// RandomChannels 生成 nChannels 个通道，每个通道 perChannel 个候选，ID 在 [0, 2*perChannel) 内取样
func RandomChannels(rng *rand.Rand, nChannels, perChannel int) map[string][]fusion.Candidate {
	out := make(map[string][]fusion.Candidate, nChannels)
	for c := 0; c < nChannels; c++ {
		name := fmt.Sprintf("ch%d", c)
		cands := make([]fusion.Candidate, perChannel)
		for i := range cands {
			cands[i] = fusion.Candidate{
				ID:        fmt.Sprintf("doc-%d", rng.Intn(2*perChannel)),
				Source:    name,
				BaseScore: rng.Float64(),
				Rank:      i + 1,
				Title:     fmt.Sprintf("document %d in %s", i, name),
			}
		}
		out[name] = cands
	}
	return out
}
