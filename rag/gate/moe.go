package gate

import (
	"math"

	"github.com/BaSui01/fusiongate/types"
)

const (
	logFloor = 1e-12
	rmsEps   = 1e-5
)

// GateConfig 门控超参数
type GateConfig struct {
	Tau     float64   `json:"tau" yaml:"tau"`     // softmax 温度
	TopK    int       `json:"top_k" yaml:"top_k"` // <=0 关闭稀疏化
	W0      float64   `json:"w0" yaml:"w0"`
	WA      float64   `json:"wa" yaml:"wa"` // authority
	WU      float64   `json:"wu" yaml:"wu"` // novelty
	WF      float64   `json:"wf" yaml:"wf"` // distance correction
	WM      float64   `json:"wm" yaml:"wm"` // match
	WExtras []float64 `json:"w_extras,omitempty" yaml:"w_extras"`
}

// DefaultGateConfig 默认门控参数
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Tau:  0.7,
		TopK: 2,
		W0:   0.0,
		WA:   1.0,
		WU:   0.6,
		WF:   0.8,
		WM:   1.2,
	}
}

// FFN 两层前馈网络参数：W1 [d_model×h]，W2 [h×d_model]。偏置可为空。
type FFN struct {
	W1 Matrix    `json:"w1"`
	B1 []float64 `json:"b1,omitempty"`
	W2 Matrix    `json:"w2"`
	B2 []float64 `json:"b2,omitempty"`
}

// Source 单个来源的注意力输入
type Source struct {
	K        Matrix         `json:"k"` // [n_j×d_k]
	V        Matrix         `json:"v"` // [n_j×d_v]
	W        Matrix         `json:"w"` // [d_v×d_model]
	Features SourceFeatures `json:"features"`
}

// GateOutput 前向输出
type GateOutput struct {
	Output    Matrix    `json:"output"`     // [m×d_model]
	Gates     []float64 `json:"gates"`      // [J]
	Logits    []float64 `json:"logits"`     // [J] 温度缩放前
	PerSource []Matrix  `json:"per_source"` // 每个来源混合前的投影 [J][m×d_model]
}

// MixtureGate 多来源交叉注意力 + 对数域门控
type MixtureGate struct {
	config GateConfig
	ffn    *FFN
}

// NewMixtureGate 创建门控。ffn 为 nil 时 FFN 阶段为恒等映射。
func NewMixtureGate(config GateConfig, ffn *FFN) *MixtureGate {
	if config.Tau <= 0 || !finite(config.Tau) {
		config.Tau = DefaultGateConfig().Tau
	}
	return &MixtureGate{config: config, ffn: ffn}
}

// Config 返回生效配置
func (g *MixtureGate) Config() GateConfig {
	return g.config
}

// GateLogit 计算单个来源的对数域门控 logit
func GateLogit(f SourceFeatures, cfg GateConfig) float64 {
	a := math.Max(f.Authority, logFloor)
	u := clamp(f.Novelty, 0, 1)
	fd := math.Max(f.DistanceCorrection, logFloor)

	r := cfg.W0 +
		cfg.WA*math.Log(a) +
		cfg.WU*math.Log(0.5+0.5*u) +
		cfg.WF*math.Log(fd) +
		cfg.WM*f.Match

	n := len(cfg.WExtras)
	if len(f.Extras) < n {
		n = len(f.Extras)
	}
	for t := 0; t < n; t++ {
		r += cfg.WExtras[t] * f.Extras[t]
	}
	if !finite(r) {
		return 0
	}
	return r
}

// GateWeights 根据特征计算门控权重，和为 1；开启 top-k 时未入选来源权重为 0
func GateWeights(features []SourceFeatures, cfg GateConfig) []float64 {
	_, g := gateWeights(features, cfg)
	return g
}

func gateWeights(features []SourceFeatures, cfg GateConfig) (logits, g []float64) {
	tau := cfg.Tau
	if tau <= 0 || !finite(tau) {
		tau = DefaultGateConfig().Tau
	}

	logits = make([]float64, len(features))
	for j, f := range features {
		logits[j] = GateLogit(f.Sanitize(), cfg)
	}
	g = softmaxTemp(logits, tau)

	if cfg.TopK > 0 && cfg.TopK < len(g) {
		order := argsortDesc(g)
		keep := make([]bool, len(g))
		for t := 0; t < cfg.TopK; t++ {
			keep[order[t]] = true
		}
		var sum float64
		for j := range g {
			if !keep[j] {
				g[j] = 0
			}
			sum += g[j]
		}
		inv := 1 / (sum + divGuard)
		for j := range g {
			g[j] *= inv
		}
	}
	return logits, g
}

// Forward 计算 q [m×d_k]、hIn [m×d_model] 与各来源的混合输出。
// 维度不一致时返回 INVALID_DIMENSIONS 错误；没有来源时混合项为 0。
func (g *MixtureGate) Forward(q, hIn Matrix, sources []Source) (*GateOutput, error) {
	m := len(q)
	dk, ok := cols(q)
	if !ok {
		return nil, dimErr("query rows have inconsistent widths")
	}
	if len(hIn) != m {
		return nil, types.Errorf(types.ErrInvalidDimensions, "residual has %d rows, query has %d", len(hIn), m).WithStage("gate")
	}
	dmodel, ok := cols(hIn)
	if !ok {
		return nil, dimErr("residual rows have inconsistent widths")
	}
	if err := g.validateFFN(dmodel); err != nil {
		return nil, err
	}

	features := make([]SourceFeatures, len(sources))
	perSource := make([]Matrix, len(sources))
	scale := 1 / math.Sqrt(float64(dk)+divGuard)

	for j, src := range sources {
		features[j] = src.Features

		proj, err := attend(q, src, dk, dmodel, scale, m)
		if err != nil {
			return nil, err.WithStage("gate")
		}
		perSource[j] = proj
	}

	logits, gates := gateWeights(features, g.config)

	out := zeros(m, dmodel)
	for i := 0; i < m; i++ {
		mix := make([]float64, dmodel)
		for j, p := range perSource {
			w := gates[j]
			if w == 0 {
				continue
			}
			for k := 0; k < dmodel; k++ {
				mix[k] += w * p[i][k]
			}
		}

		normed := RMSNorm(hIn[i], rmsEps)
		hattn := make([]float64, dmodel)
		for k := range hattn {
			hattn[k] = normed[k] + mix[k]
		}

		norm2 := RMSNorm(hattn, rmsEps)
		ff := norm2
		if g.ffn != nil {
			ff = g.ffn.apply(norm2)
		}
		for k := range hattn {
			out[i][k] = hattn[k] + ff[k]
		}
	}

	return &GateOutput{
		Output:    out,
		Gates:     gates,
		Logits:    logits,
		PerSource: perSource,
	}, nil
}

// attend 计算 softmax(Q·Kᵀ·scale)·V·W
func attend(q Matrix, src Source, dk, dmodel int, scale float64, m int) (Matrix, *types.Error) {
	kc, ok := cols(src.K)
	if !ok || (len(src.K) > 0 && kc != dk) {
		return nil, types.Errorf(types.ErrInvalidDimensions, "K must have %d columns", dk)
	}
	if len(src.V) != len(src.K) {
		return nil, types.Errorf(types.ErrInvalidDimensions, "V has %d rows, K has %d", len(src.V), len(src.K))
	}
	dv, ok := cols(src.V)
	if !ok {
		return nil, types.NewError(types.ErrInvalidDimensions, "V rows have inconsistent widths")
	}
	if len(src.K) == 0 {
		// 空来源：注意力输出为 0，只参与门控
		return zeros(m, dmodel), nil
	}
	wc, ok := cols(src.W)
	if !ok || len(src.W) != dv || wc != dmodel {
		return nil, types.Errorf(types.ErrInvalidDimensions, "W must be %dx%d", dv, dmodel)
	}

	logits := matmulABt(q, src.K)
	for _, row := range logits {
		for j := range row {
			row[j] *= scale
		}
	}
	softmaxRows(logits)
	ctx := matmul(logits, src.V, dv)
	return matmul(ctx, src.W, dmodel), nil
}

func (g *MixtureGate) validateFFN(dmodel int) error {
	if g.ffn == nil {
		return nil
	}
	f := g.ffn
	h, ok := cols(f.W1)
	if !ok || len(f.W1) != dmodel {
		return dimErr("FFN W1 must have d_model rows")
	}
	w2c, ok := cols(f.W2)
	if !ok || len(f.W2) != h || w2c != dmodel {
		return dimErr("FFN W2 must be h x d_model")
	}
	if f.B1 != nil && len(f.B1) != h {
		return dimErr("FFN b1 length must equal hidden size")
	}
	if f.B2 != nil && len(f.B2) != dmodel {
		return dimErr("FFN b2 length must equal d_model")
	}
	return nil
}

func (f *FFN) apply(x []float64) []float64 {
	h := len(f.W2)
	d := len(x)
	hidden := make([]float64, h)
	for j := 0; j < h; j++ {
		var s float64
		if f.B1 != nil {
			s = f.B1[j]
		}
		for i := 0; i < d; i++ {
			s += x[i] * f.W1[i][j]
		}
		hidden[j] = GELU(s)
	}

	out := make([]float64, d)
	for k := 0; k < d; k++ {
		var s float64
		if f.B2 != nil {
			s = f.B2[k]
		}
		for j := 0; j < h; j++ {
			s += hidden[j] * f.W2[j][k]
		}
		out[k] = s
	}
	return out
}

func dimErr(msg string) error {
	return types.NewError(types.ErrInvalidDimensions, msg).WithStage("gate")
}
