package gate

import "math"

// Matrix 行主序的小矩阵
type Matrix = [][]float64

const divGuard = 1e-12

// cols 返回矩阵列数，要求所有行等长；不等长时 ok=false
func cols(a Matrix) (n int, ok bool) {
	if len(a) == 0 {
		return 0, true
	}
	n = len(a[0])
	for _, row := range a {
		if len(row) != n {
			return 0, false
		}
	}
	return n, true
}

func zeros(rows, c int) Matrix {
	out := make(Matrix, rows)
	for i := range out {
		out[i] = make([]float64, c)
	}
	return out
}

// matmulABt 计算 A·Bᵀ，A [n×d]，B [m×d]
func matmulABt(a, b Matrix) Matrix {
	out := zeros(len(a), len(b))
	for i, ra := range a {
		for j, rb := range b {
			var s float64
			for k := range ra {
				s += ra[k] * rb[k]
			}
			out[i][j] = s
		}
	}
	return out
}

// matmul 计算 A·B，A [n×m]，B [m×p]
func matmul(a, b Matrix, p int) Matrix {
	out := zeros(len(a), p)
	for i, ra := range a {
		for j, v := range ra {
			if v == 0 {
				continue
			}
			rb := b[j]
			for k := 0; k < p; k++ {
				out[i][k] += v * rb[k]
			}
		}
	}
	return out
}

// softmaxRows 原地按行 softmax，先减去行最大值
func softmaxRows(x Matrix) {
	for _, row := range x {
		if len(row) == 0 {
			continue
		}
		mx := math.Inf(-1)
		for _, v := range row {
			mx = math.Max(mx, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - mx)
			sum += row[j]
		}
		inv := 1 / (sum + divGuard)
		for j := range row {
			row[j] *= inv
		}
	}
}

// softmaxTemp 计算 softmax(z/tau)
func softmaxTemp(z []float64, tau float64) []float64 {
	out := make([]float64, len(z))
	if len(z) == 0 {
		return out
	}
	mx := math.Inf(-1)
	for _, v := range z {
		mx = math.Max(mx, v/tau)
	}
	var sum float64
	for i, v := range z {
		out[i] = math.Exp(v/tau - mx)
		sum += out[i]
	}
	inv := 1 / (sum + divGuard)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// RMSNorm y = x / sqrt(mean(x²) + eps)
func RMSNorm(x []float64, eps float64) []float64 {
	var sumsq float64
	for _, v := range x {
		sumsq += v * v
	}
	rms := math.Sqrt(sumsq/(float64(len(x))+divGuard) + eps)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v / rms
	}
	return out
}

// GELU tanh 近似
func GELU(x float64) float64 {
	return 0.5 * x * (1 + math.Tanh(math.Sqrt(2/math.Pi)*(x+0.044715*x*x*x)))
}

// argsortDesc 降序下标，相等时保持原顺序
func argsortDesc(v []float64) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	// 插入排序，J 通常只有个位数
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && v[idx[j]] > v[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}
