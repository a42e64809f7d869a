package fusion

import "math"

const epsilon = 1e-12

// Calibrator 把通道内原始分数映射到 [0,1]，sample 为同一通道的全部原始分数
type Calibrator interface {
	Normalize(raw float64, sample []float64) float64
}

// CalibratorFunc 函数适配器
type CalibratorFunc func(raw float64, sample []float64) float64

// Normalize implements Calibrator.
func (f CalibratorFunc) Normalize(raw float64, sample []float64) float64 { return f(raw, sample) }

// ZScoreCalibrator 默认校准：0.5 + 0.5·tanh((x−mean)/(std+ε))
type ZScoreCalibrator struct{}

// Normalize implements Calibrator.
func (ZScoreCalibrator) Normalize(raw float64, sample []float64) float64 {
	x := finiteOrZero(raw)

	var n int
	var sum float64
	for _, v := range sample {
		if isFinite(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sample {
		if isFinite(v) {
			d := v - mean
			sq += d * d
		}
	}
	std := math.Sqrt(sq / float64(n))

	return clamp01(0.5 + 0.5*math.Tanh((x-mean)/(std+epsilon)))
}

// calibrateChannel 对单个通道的分数做校准，返回与 cands 等长的切片
func calibrateChannel(cal Calibrator, cands []Candidate) []float64 {
	sample := make([]float64, len(cands))
	for i, c := range cands {
		sample[i] = finiteOrZero(c.BaseScore)
	}
	out := make([]float64, len(cands))
	for i, x := range sample {
		v := cal.Normalize(x, sample)
		if !isFinite(v) {
			v = 0
		}
		out[i] = clamp01(v)
	}
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func finiteOrZero(x float64) float64 {
	if isFinite(x) {
		return x
	}
	return 0
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
