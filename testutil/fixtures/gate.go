// =============================================================================
// 📦 测试数据工厂 - 门控输入
// =============================================================================
package fixtures

import "github.com/BaSui01/fusiongate/rag/gate"

// Identity 返回 n×n 单位矩阵
func Identity(n int) gate.Matrix {
	m := make(gate.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// GateInputs 单行查询与两个来源（kg 权威度高，web 权威度低）。d_k=d_v=d_model=2。
func GateInputs() (q, hIn gate.Matrix, sources []gate.Source) {
	q = gate.Matrix{{1, 0}}
	hIn = gate.Matrix{{0.5, -0.5}}
	sources = []gate.Source{
		{
			K:        gate.Matrix{{1, 0}, {0, 1}},
			V:        gate.Matrix{{1, 2}, {3, 4}},
			W:        Identity(2),
			Features: gate.SourceFeatures{Authority: 0.9, Novelty: 0.2, DistanceCorrection: 1, Match: 0.8},
		},
		{
			K:        gate.Matrix{{0, 1}},
			V:        gate.Matrix{{-1, 1}},
			W:        Identity(2),
			Features: gate.SourceFeatures{Authority: 0.3, Novelty: 0.6, DistanceCorrection: 1, Match: 0.1},
		},
	}
	return q, hIn, sources
}

// SourceMetadata 使用不同别名描述的来源元数据
func SourceMetadata() []map[string]any {
	return []map[string]any{
		{"authority": 0.9, "novelty": 0.1, "match": 0.7},
		{"baseWeight": "0.5", "noveltyFactor": 0.8, "alignmentScore": 0.2},
		{"a": 0.1, "F": 0.5},
	}
}
