package gate

import "math"

// NoveltyLoss 新颖度正则：−Σ g_j·log(0.5+0.5·u_j)，鼓励新颖来源获得更大门控。
// 两个切片长度不一致时按较短者计算。
func NoveltyLoss(g, novelty []float64) float64 {
	n := min(len(g), len(novelty))
	var s float64
	for j := 0; j < n; j++ {
		u := clamp(novelty[j], 0, 1)
		if !finite(novelty[j]) {
			u = 0
		}
		s -= g[j] * math.Log(0.5+0.5*u)
	}
	return s
}

// CoverageLoss 覆盖率正则：gt 为 [T×J] 的门控序列，对平均门控低于 tauC 的部分求和
func CoverageLoss(gt [][]float64, tauC float64) float64 {
	if len(gt) == 0 {
		return 0
	}
	j := len(gt[0])
	avg := make([]float64, j)
	for _, row := range gt {
		for k := 0; k < j && k < len(row); k++ {
			avg[k] += row[k]
		}
	}

	var s float64
	for k := range avg {
		if gap := tauC - avg[k]/float64(len(gt)); gap > 0 {
			s += gap
		}
	}
	return s
}

// DiversityLoss 两组门控向量的平方 L2 距离
func DiversityLoss(g1, g2 []float64) float64 {
	n := min(len(g1), len(g2))
	var s float64
	for i := 0; i < n; i++ {
		d := g1[i] - g2[i]
		s += d * d
	}
	return s
}
