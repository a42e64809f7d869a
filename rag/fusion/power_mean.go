package fusion

import "math"

// geometricThreshold |p| 小于该值时按几何平均处理
const geometricThreshold = 1e-9

// PowerMean 计算 ((1/n) Σ max(x,ε)^p)^(1/p)。
// p 接近 0 时退化为几何平均 exp(mean(log x))，p 为 +Inf 时取最大值。空输入返回 0。
func PowerMean(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	weights := make([]float64, len(values))
	for i := range weights {
		weights[i] = 1
	}
	return WeightedPowerMean(values, weights, p)
}

// WeightedPowerMean 计算 (Σ wᵢ·xᵢ^p / Σ wᵢ)^(1/p)。
// 非正或非有限的权重视为 0；全部权重为 0 时按等权处理。
func WeightedPowerMean(values, weights []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	w := make([]float64, n)
	var wsum float64
	for i := 0; i < n; i++ {
		if i < len(weights) && isFinite(weights[i]) && weights[i] > 0 {
			w[i] = weights[i]
			wsum += w[i]
		}
	}
	if wsum <= 0 {
		for i := range w {
			w[i] = 1
		}
		wsum = float64(n)
	}

	xs := make([]float64, n)
	for i, v := range values {
		xs[i] = math.Max(finiteOrZero(v), epsilon)
	}

	switch {
	case math.IsNaN(p):
		p = 1
	case math.IsInf(p, 1):
		mx := 0.0
		for i, x := range xs {
			if w[i] > 0 && x > mx {
				mx = x
			}
		}
		return mx
	case math.IsInf(p, -1):
		mn := math.Inf(1)
		for i, x := range xs {
			if w[i] > 0 && x < mn {
				mn = x
			}
		}
		return mn
	}

	if math.Abs(p) < geometricThreshold {
		var acc float64
		for i, x := range xs {
			acc += w[i] * math.Log(x)
		}
		return math.Exp(acc / wsum)
	}

	var acc float64
	for i, x := range xs {
		acc += w[i] * math.Pow(x, p)
	}
	return math.Pow(acc/wsum, 1/p)
}
