package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleChannels() map[string][]Candidate {
	return map[string][]Candidate{
		"web": {
			{ID: "A", Source: "web", BaseScore: 0.9, Rank: 1},
			{ID: "B", Source: "web", BaseScore: 0.8, Rank: 2},
		},
		"vector": {
			{ID: "B", Source: "vector", BaseScore: 0.7, Rank: 1},
			{ID: "C", Source: "vector", BaseScore: 0.6, Rank: 2},
		},
	}
}

func TestFuse_RRFExample(t *testing.T) {
	scores := Fuse(exampleChannels(), nil, ModeRRF, 60)

	require.Len(t, scores, 3)
	assert.InDelta(t, 1.0/61, scores["a"], 1e-12)
	assert.InDelta(t, 1.0/62+1.0/61, scores["b"], 1e-12)
	assert.InDelta(t, 1.0/62, scores["c"], 1e-12)
	assert.InDelta(t, 0.01639, scores["a"], 1e-5)
	assert.InDelta(t, 0.03252, scores["b"], 1e-5)
	assert.InDelta(t, 0.01613, scores["c"], 1e-5)
}

func TestFuseRanked_Order(t *testing.T) {
	f := NewFuser(DefaultFusionConfig())
	results := f.FuseRanked(exampleChannels(), nil)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"b", "a", "c"}, []string{results[0].Key, results[1].Key, results[2].Key})
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
	}
	// B 在 web 中分数最高，作为代表候选
	assert.Equal(t, "web", results[0].Representative.Source)
	assert.Equal(t, 0.8, results[0].Representative.BaseScore)
	assert.Equal(t, []string{"vector", "web"}, results[0].Sources)
}

func TestFuse_EmptyInputs(t *testing.T) {
	f := NewFuser(DefaultFusionConfig())

	assert.Empty(t, f.Fuse(nil, nil))
	assert.Empty(t, f.Fuse(map[string][]Candidate{}, nil))
	assert.Empty(t, f.FuseRanked(map[string][]Candidate{"web": {}}, nil))

	scores := f.Fuse(map[string][]Candidate{
		"web": {},
		"kg":  {{ID: "x", Rank: 1, BaseScore: 1}},
	}, nil)
	assert.Len(t, scores, 1)
}

func TestFuse_ChannelWeights(t *testing.T) {
	f := NewFuser(DefaultFusionConfig())
	scores := f.Fuse(exampleChannels(), map[string]float64{"web": 2.0, "vector": 0.5})

	assert.InDelta(t, 2.0/61, scores["a"], 1e-12)
	assert.InDelta(t, 2.0/62+0.5/61, scores["b"], 1e-12)
	assert.InDelta(t, 0.5/62, scores["c"], 1e-12)
}

func TestFuse_ProvenanceBoost(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.ProvenanceBoost = true
	f := NewFuser(cfg)

	scores := f.Fuse(map[string][]Candidate{
		"graph":  {{ID: "k", Source: "kg", Rank: 1}},
		"dense":  {{ID: "v", Source: "vector", Rank: 1}},
		"search": {{ID: "w", Source: "web", Rank: 1}},
	}, nil)

	assert.InDelta(t, 1.2/61, scores["k"], 1e-12)
	assert.InDelta(t, 0.8/61, scores["v"], 1e-12)
	assert.InDelta(t, 1.0/61, scores["w"], 1e-12)
}

func TestFuse_SanitizesMalformedInput(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.Mode = ModeWPM
	cfg.CalibrateWPM = false
	cfg.P = 1
	f := NewFuser(cfg)

	scores := f.Fuse(map[string][]Candidate{
		"web": {
			{ID: "nan", BaseScore: math.NaN(), Rank: 1},
			{ID: "inf", BaseScore: math.Inf(1), Rank: 2},
		},
	}, nil)
	assert.InDelta(t, epsilon, scores["nan"], 1e-15)
	assert.InDelta(t, epsilon, scores["inf"], 1e-15)

	// 非法排名按列表位置修正
	rrf := NewFuser(DefaultFusionConfig()).Fuse(map[string][]Candidate{
		"web": {{ID: "a", Rank: 0}, {ID: "b", Rank: -3}},
	}, nil)
	assert.InDelta(t, 1.0/61, rrf["a"], 1e-12)
	assert.InDelta(t, 1.0/62, rrf["b"], 1e-12)
}

func TestFuse_CanonicalMergeAcrossChannels(t *testing.T) {
	f := NewFuser(DefaultFusionConfig())
	results := f.FuseRanked(map[string][]Candidate{
		"web":     {{ID: "1", URL: "https://Example.com/Docs/", BaseScore: 0.4, Rank: 1}},
		"lexical": {{ID: "2", URL: "https://example.com/docs?utm=x", BaseScore: 0.9, Rank: 3}},
	}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, "https://example.com/docs", results[0].Key)
	assert.Equal(t, "2", results[0].Representative.ID)
	assert.InDelta(t, 1.0/61+1.0/63, results[0].Score, 1e-12)
}

func TestFuse_DuplicateWithinChannelCountsOnce(t *testing.T) {
	scores := Fuse(map[string][]Candidate{
		"web": {{ID: "a", Rank: 1}, {ID: " A ", Rank: 2}},
	}, nil, ModeRRF, 60)
	assert.InDelta(t, 1.0/61, scores["a"], 1e-12)
}

func TestFuseRanked_DuplicateWithinChannelKeepsBestRepresentative(t *testing.T) {
	f := NewFuser(DefaultFusionConfig())
	out := f.FuseRanked(map[string][]Candidate{
		"web": {
			{ID: "a1", URL: "https://x.com/doc", BaseScore: 0.1, Rank: 1},
			{ID: "a2", URL: "https://X.com/doc/", BaseScore: 0.9, Rank: 2},
		},
	}, nil)

	require.Len(t, out, 1)
	assert.Equal(t, "a2", out[0].Representative.ID)
	assert.Equal(t, 0.9, out[0].Representative.BaseScore)
	// RRF 仍只按最靠前的一次计分
	assert.InDelta(t, 1.0/61, out[0].Score, 1e-12)
}

func TestFuse_ExternalCanonicalizer(t *testing.T) {
	byPrefix := CanonicalizerFunc(func(raw string) string {
		if len(raw) > 3 {
			return raw[:3]
		}
		return raw
	})
	f := NewFuser(DefaultFusionConfig(), WithCanonicalizer(byPrefix))
	scores := f.Fuse(map[string][]Candidate{
		"a": {{ID: "doc-1", Rank: 1}},
		"b": {{ID: "doc-2", Rank: 1}},
	}, nil)

	require.Len(t, scores, 1)
	assert.InDelta(t, 2.0/61, scores["doc"], 1e-12)
}

func TestFuse_WPMArithmeticMean(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.Mode = ModeWPM
	cfg.P = 1
	cfg.CalibrateWPM = false
	f := NewFuser(cfg)

	scores := f.Fuse(map[string][]Candidate{
		"web":    {{ID: "a", BaseScore: 0.2, Rank: 1}},
		"vector": {{ID: "a", BaseScore: 0.6, Rank: 1}},
		"kg":     {{ID: "a", BaseScore: 1.0, Rank: 1}},
	}, nil)
	assert.InDelta(t, 0.6, scores["a"], 1e-12)
}

func TestFuse_WPMCalibratedWithExternalCalibrator(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.Mode = ModeWPM
	cfg.P = 1
	half := CalibratorFunc(func(raw float64, _ []float64) float64 { return raw / 2 })
	f := NewFuser(cfg, WithCalibrator(half))

	scores := f.Fuse(map[string][]Candidate{
		"web":    {{ID: "a", BaseScore: 0.4, Rank: 1}},
		"vector": {{ID: "a", BaseScore: 0.8, Rank: 1}},
	}, nil)
	assert.InDelta(t, 0.3, scores["a"], 1e-12)
}

func TestBlendCalibratedRRF(t *testing.T) {
	cfg := DefaultFusionConfig()
	cfg.BlendAlpha = 0.5
	constant := CalibratorFunc(func(float64, []float64) float64 { return 0.2 })
	f := NewFuser(cfg, WithCalibrator(constant))

	results := f.BlendCalibratedRRF(exampleChannels(), nil)
	require.Len(t, results, 3)
	assert.Equal(t, "b", results[0].Key)
	assert.InDelta(t, 0.5/62+0.1+0.5/61+0.1, results[0].Score, 1e-12)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" WPM ")
	require.NoError(t, err)
	assert.Equal(t, ModeWPM, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRRF, m)

	_, err = ParseMode("borda")
	assert.Error(t, err)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.COM/Path/", "https://example.com/path"},
		{"HTTP://example.com", "http://example.com"},
		{"https://example.com/a/b///?q=1#frag", "https://example.com/a/b"},
		{"https://user:pw@example.com:8443/x", "https://example.com:8443/x"},
		{"  Doc-42  ", "doc-42"},
		{"", ""},
		{"ftp://Example.com/", "ftp://example.com/"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.in))
		})
	}
}

func TestZScoreCalibrator(t *testing.T) {
	cal := ZScoreCalibrator{}
	sample := []float64{1, 2, 3}

	assert.InDelta(t, 0.5, cal.Normalize(2, sample), 1e-12)
	assert.Greater(t, cal.Normalize(3, sample), 0.5)
	assert.Less(t, cal.Normalize(1, sample), 0.5)
	assert.Equal(t, 0.5, cal.Normalize(7, nil))

	for _, x := range []float64{-1e9, 0, 1e9, math.NaN()} {
		v := cal.Normalize(x, sample)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestPowerMean(t *testing.T) {
	xs := []float64{1, 4}

	assert.InDelta(t, 2.5, PowerMean(xs, 1), 1e-12)
	assert.InDelta(t, 2.0, PowerMean(xs, 1e-12), 1e-9) // 几何平均
	assert.Equal(t, 4.0, PowerMean(xs, math.Inf(1)))
	assert.InDelta(t, math.Sqrt(8.5), PowerMean(xs, 2), 1e-12)
	assert.Equal(t, 0.0, PowerMean(nil, 1.5))
	assert.InDelta(t, epsilon, PowerMean([]float64{-3, 0}, 1), 1e-15)
}

func TestWeightedPowerMean(t *testing.T) {
	assert.InDelta(t, 3.25, WeightedPowerMean([]float64{1, 4}, []float64{1, 3}, 1), 1e-12)
	// 全部权重无效时按等权
	assert.InDelta(t, 2.5, WeightedPowerMean([]float64{1, 4}, []float64{0, -1}, 1), 1e-12)
	assert.Equal(t, 1.0, WeightedPowerMean([]float64{1, 4}, []float64{1, 0}, math.Inf(1)))
}

func TestNewFuser_Defaults(t *testing.T) {
	f := NewFuser(FusionConfig{})
	cfg := f.Config()
	assert.Equal(t, ModeRRF, cfg.Mode)
	assert.Equal(t, 60, cfg.K)
	assert.Equal(t, 1.5, cfg.P)
	assert.Equal(t, 0.6, cfg.BlendAlpha)
}
