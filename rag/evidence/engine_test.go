package evidence

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/fusiongate/config"
	"github.com/BaSui01/fusiongate/internal/ctxkeys"
	"github.com/BaSui01/fusiongate/internal/metrics"
	"github.com/BaSui01/fusiongate/rag/decision"
	"github.com/BaSui01/fusiongate/rag/fusion"
	"github.com/BaSui01/fusiongate/rag/gate"
	"github.com/BaSui01/fusiongate/types"
)

func exampleRequest() RankRequest {
	return RankRequest{
		Query: "how do transformers work",
		Channels: map[string][]fusion.Candidate{
			"web": {
				{ID: "A", Source: "web", BaseScore: 0.9, Rank: 1, Title: "Attention basics"},
				{ID: "B", Source: "web", BaseScore: 0.8, Rank: 2, Title: "Transformer architecture"},
			},
			"vector": {
				{ID: "B", Source: "vector", BaseScore: 0.7, Rank: 1, Title: "Transformer architecture"},
				{ID: "C", Source: "vector", BaseScore: 0.6, Rank: 2, Title: "Positional encodings"},
			},
		},
	}
}

func newTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Rerank.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return e
}

func keys(results []fusion.FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Key
	}
	return out
}

// =============================================================================
// 🧪 Rank 测试
// =============================================================================

func TestEngine_RankExample(t *testing.T) {
	e := newTestEngine(t, newTestConfig())

	resp, err := e.Rank(context.Background(), exampleRequest())
	require.NoError(t, err)

	assert.Equal(t, fusion.ModeRRF, resp.Mode)
	assert.NotEmpty(t, resp.Fingerprint)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"b", "a", "c"}, keys(resp.Results))
	assert.InDelta(t, 1.0/62+1.0/61, resp.Results[0].Score, 1e-12)
	assert.InDelta(t, 1.0/61, resp.Results[1].Score, 1e-12)
	assert.InDelta(t, 1.0/62, resp.Results[2].Score, 1e-12)
}

func TestEngine_RankEmptyChannels(t *testing.T) {
	e := newTestEngine(t, config.DefaultConfig())

	resp, err := e.Rank(context.Background(), RankRequest{Query: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestEngine_RankWithRerank(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rerank.K = 2
	e := newTestEngine(t, cfg)

	resp, err := e.Rank(context.Background(), exampleRequest())
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	// 相关性最高的结果总是先入选
	assert.Equal(t, "b", resp.Results[0].Key)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestEngine_RankCachesByFingerprint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("rank_cache", reg, zap.NewNop())
	var canonCalls atomic.Int64
	canon := fusion.CanonicalizerFunc(func(raw string) string {
		canonCalls.Add(1)
		return fusion.Canonicalize(raw)
	})
	e := newTestEngine(t, newTestConfig(), WithMetrics(collector), WithFuserOptions(fusion.WithCanonicalizer(canon)))
	ctx := context.Background()

	first, err := e.Rank(ctx, exampleRequest())
	require.NoError(t, err)
	second, err := e.Rank(ctx, exampleRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Results, second.Results)
	// 第二次请求命中 L2，融合只执行一次
	assert.Equal(t, int64(4), canonCalls.Load())
	hits, err := testutil.GatherAndCount(reg, "rank_cache_decision_cache_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	changed := exampleRequest()
	changed.Channels["vector"] = append(changed.Channels["vector"],
		fusion.Candidate{ID: "D", Source: "vector", BaseScore: 0.5, Rank: 3})
	third, err := e.Rank(ctx, changed)
	require.NoError(t, err)

	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
	assert.Len(t, third.Results, 4)
}

func TestEngine_RankFingerprintIgnoresChannelOrder(t *testing.T) {
	e := newTestEngine(t, newTestConfig())
	req := exampleRequest()

	reordered := RankRequest{
		Query:    req.Query,
		Channels: map[string][]fusion.Candidate{},
	}
	reordered.Channels["vector"] = req.Channels["vector"]
	reordered.Channels["web"] = req.Channels["web"]

	assert.Equal(t, e.rankFingerprint(req), e.rankFingerprint(reordered))

	req.Attributes = map[string]string{"draft": decision.DraftHash("v1")}
	assert.NotEqual(t, e.rankFingerprint(reordered), e.rankFingerprint(req))
}

func TestEngine_InvalidateRank(t *testing.T) {
	e := newTestEngine(t, newTestConfig())
	ctx := context.Background()
	req := exampleRequest()
	req.DecisionKey = "plan-1"

	resp, err := e.Rank(ctx, req)
	require.NoError(t, err)

	_, ok := decision.GetIfPresent[[]fusion.FusedResult](ctx, e.Cache(), RankNamespace, "plan-1", resp.Fingerprint)
	require.True(t, ok)

	require.NoError(t, e.InvalidateRank(ctx, "plan-1"))
	_, ok = decision.GetIfPresent[[]fusion.FusedResult](ctx, e.Cache(), RankNamespace, "plan-1", resp.Fingerprint)
	assert.False(t, ok)
}

func TestEngine_RankBatch(t *testing.T) {
	e := newTestEngine(t, newTestConfig())

	other := exampleRequest()
	other.Query = "positional encodings"
	delete(other.Channels, "web")

	out, err := e.RankBatch(context.Background(), []RankRequest{exampleRequest(), other, exampleRequest()})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, []string{"b", "a", "c"}, keys(out[0].Results))
	assert.Equal(t, []string{"b", "c"}, keys(out[1].Results))
	assert.Equal(t, out[0].Results, out[2].Results)
}

func TestEngine_RankBatchEmpty(t *testing.T) {
	e := newTestEngine(t, newTestConfig())

	out, err := e.RankBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEngine_RateLimitAborts(t *testing.T) {
	cfg := newTestConfig()
	cfg.Engine.RateLimitRPS = 0.001
	cfg.Engine.RateLimitBurst = 1
	e := newTestEngine(t, cfg)

	_, err := e.Rank(context.Background(), exampleRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Rank(ctx, exampleRequest())
	require.Error(t, err)
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestEngine_KeepsCallerRequestID(t *testing.T) {
	e := newTestEngine(t, newTestConfig())
	ctx := ctxkeys.WithRequestID(context.Background(), "req-42")

	ctx2, cancel, err := e.begin(ctx, "rank")
	require.NoError(t, err)
	defer cancel()

	id, ok := ctxkeys.RequestID(ctx2)
	require.True(t, ok)
	assert.Equal(t, "req-42", id)
	stage, _ := ctxkeys.Stage(ctx2)
	assert.Equal(t, "rank", stage)
	assert.NotNil(t, decision.ScopeFrom(ctx2))
}

func TestEngine_LogsCallerStage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := newTestEngine(t, newTestConfig(), WithLogger(zap.New(core)))

	ctx := ctxkeys.WithStage(ctxkeys.WithRequestID(context.Background(), "req-7"), "route")
	_, err := e.Rank(ctx, exampleRequest())
	require.NoError(t, err)

	entries := logs.FilterMessage("engine request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rank", fields["operation"])
	assert.Equal(t, "route", fields["stage"])
	assert.Equal(t, "req-7", fields["request_id"])
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fusion.Mode = "borda"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "router.plan.cache", e.Cache().Config().Prefix)
}

// =============================================================================
// 🧪 Gate 测试
// =============================================================================

func identity(n int) gate.Matrix {
	m := make(gate.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func exampleGateRequest() GateRequest {
	return GateRequest{
		Query:    gate.Matrix{{1, 0}},
		Residual: gate.Matrix{{0.5, -0.5}},
		Sources: []GateSource{
			{
				Name:     "kg",
				K:        gate.Matrix{{1, 0}, {0, 1}},
				V:        gate.Matrix{{1, 2}, {3, 4}},
				W:        identity(2),
				Features: map[string]any{"authority": 0.9, "match": 0.8},
			},
			{
				K:        gate.Matrix{{0, 1}},
				V:        gate.Matrix{{-1, 1}},
				W:        identity(2),
				Features: map[string]any{"weight": "0.2", "u": 0.1},
			},
		},
	}
}

func TestEngine_Gate(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("gate_engine", reg, zap.NewNop())
	e := newTestEngine(t, newTestConfig(), WithMetrics(collector))

	resp, err := e.Gate(context.Background(), exampleGateRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"kg", "source-1"}, resp.Sources)
	require.Len(t, resp.Gates, 2)
	assert.InDelta(t, 1.0, resp.Gates[0]+resp.Gates[1], 1e-9)
	assert.Greater(t, resp.Gates[0], resp.Gates[1])
	require.Len(t, resp.Output, 1)
	assert.Len(t, resp.Output[0], 2)
	assert.InDelta(t, 0.9, resp.Features[0].Authority, 1e-12)
	assert.InDelta(t, 0.2, resp.Features[1].Authority, 1e-12)
	n, err := testutil.GatherAndCount(reg, "gate_engine_gate_forward_total", "gate_engine_engine_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngine_GateDimensionError(t *testing.T) {
	e := newTestEngine(t, newTestConfig())
	req := exampleGateRequest()
	req.Sources[0].K = gate.Matrix{{1, 0, 0}}
	req.Sources[0].V = gate.Matrix{{1, 2}}

	_, err := e.Gate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidDimensions, types.GetErrorCode(err))
}

func TestEngine_GateNoSources(t *testing.T) {
	e := newTestEngine(t, newTestConfig())

	resp, err := e.Gate(context.Background(), GateRequest{
		Query:    gate.Matrix{{1, 0}},
		Residual: gate.Matrix{{1, 1}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Gates)
	assert.Len(t, resp.Output, 1)
}

func TestEngine_GateWeights(t *testing.T) {
	e := newTestEngine(t, newTestConfig())

	g := e.GateWeights([]map[string]any{
		{"authority": 0.9},
		{"authority": 0.5},
		{"authority": 0.1},
	})
	require.Len(t, g, 3)
	// 默认 top_k=2，最弱来源被置零
	assert.Zero(t, g[2])
	assert.Greater(t, g[0], g[1])
	assert.InDelta(t, 1.0, g[0]+g[1], 1e-9)
}

// =============================================================================
// 🧪 配置转换与 Redis 缓存
// =============================================================================

func TestConfigConversion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Fusion.Mode = "WPM"
	cfg.Gate.WExtras = []float64{0.5}

	fcfg, err := FusionConfigFrom(cfg.Fusion)
	require.NoError(t, err)
	assert.Equal(t, fusion.ModeWPM, fcfg.Mode)
	assert.Equal(t, 1.5, fcfg.P)

	gcfg := GateConfigFrom(cfg.Gate)
	assert.Equal(t, gate.DefaultGateConfig().Tau, gcfg.Tau)
	assert.Equal(t, []float64{0.5}, gcfg.WExtras)

	dcfg := DecisionConfigFrom(cfg.Cache)
	assert.Equal(t, decision.DefaultConfig(), dcfg)

	rcfg := DiversityConfigFrom(cfg.Rerank)
	assert.Equal(t, 8, rcfg.K)

	cfg.Cache.Redis.TLS = true
	redisCfg := RedisConfigFrom(cfg.Cache)
	assert.True(t, redisCfg.TLS)
	assert.Equal(t, "fusiongate:decision", redisCfg.KeyPrefix)
	assert.Equal(t, cfg.Cache.L2TTL, redisCfg.TTL)

	_, err = FusionConfigFrom(config.FusionConfig{Mode: "borda"})
	assert.Equal(t, types.ErrInvalidConfig, types.GetErrorCode(err))
}

func TestNewDecisionCache_Memory(t *testing.T) {
	c, closer, err := NewDecisionCache(context.Background(), config.DefaultCacheConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, closer())
	assert.True(t, c.Config().L2Enabled)
}

func TestNewDecisionCache_RedisSharedAcrossEngines(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := newTestConfig()
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = mr.Addr()

	ctx := context.Background()
	newEngine := func() *Engine {
		c, closer, err := NewDecisionCache(ctx, cfg.Cache, zap.NewNop(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = closer() })
		return newTestEngine(t, cfg, WithCache(c))
	}

	first, err := newEngine().Rank(ctx, exampleRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	obs := newHitObserver()
	c, closer, err := NewDecisionCache(ctx, cfg.Cache, zap.NewNop(), obs)
	require.NoError(t, err)
	defer closer()
	second, err := newTestEngine(t, cfg, WithCache(c)).Rank(ctx, exampleRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, obs.l2Hits)
}

func TestNewDecisionCache_RedisUnavailable(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	_, _, err := NewDecisionCache(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCacheStore, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

type hitObserver struct {
	l2Hits int
}

func newHitObserver() *hitObserver { return &hitObserver{} }

func (o *hitObserver) CacheHit(_ string, level string) {
	if level == decision.LevelL2 {
		o.l2Hits++
	}
}
func (o *hitObserver) CacheMiss(string)           {}
func (o *hitObserver) FingerprintMismatch(string) {}
func (o *hitObserver) InflightJoin(string)        {}
func (o *hitObserver) ComputeError(string)        {}
