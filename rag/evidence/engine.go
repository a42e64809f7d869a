package evidence

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/fusiongate/config"
	"github.com/BaSui01/fusiongate/internal/ctxkeys"
	"github.com/BaSui01/fusiongate/internal/metrics"
	"github.com/BaSui01/fusiongate/internal/pool"
	"github.com/BaSui01/fusiongate/internal/telemetry"
	"github.com/BaSui01/fusiongate/rag/decision"
	"github.com/BaSui01/fusiongate/rag/fusion"
	"github.com/BaSui01/fusiongate/rag/gate"
	"github.com/BaSui01/fusiongate/rag/rerank"
	"github.com/BaSui01/fusiongate/types"
)

// RankNamespace Rank 结果在决策缓存中的命名空间
const RankNamespace = "rank"

// Option 引擎选项
type Option func(*Engine)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithCache 使用外部构建的决策缓存（如 Redis L2）
func WithCache(c *decision.Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithFuserOptions 透传融合器选项（规范化器、校准器）
func WithFuserOptions(opts ...fusion.Option) Option {
	return func(e *Engine) {
		e.fuserOpts = append(e.fuserOpts, opts...)
	}
}

// WithFFN 为门控设置 FFN 参数
func WithFFN(ffn *gate.FFN) Option {
	return func(e *Engine) {
		e.ffn = ffn
	}
}

// Engine 证据融合与门控引擎。构建后只读，可并发使用。
type Engine struct {
	fuser         *fusion.Fuser
	fuserOpts     []fusion.Option
	rerankEnabled bool
	rerankCfg     rerank.DiversityConfig
	reranker      *rerank.DiversityReranker[fusion.FusedResult]
	gate          *gate.MixtureGate
	ffn           *gate.FFN
	cache         *decision.Cache
	policy        decision.SlicePolicy
	metrics       *metrics.Collector
	limiter       *rate.Limiter

	timeout        time.Duration
	maxConcurrency int
	logger         *zap.Logger
}

// New 根据配置创建引擎
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "invalid engine config").WithCause(err)
	}

	fcfg, err := FusionConfigFrom(cfg.Fusion)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rerankEnabled:  cfg.Rerank.Enabled,
		rerankCfg:      DiversityConfigFrom(cfg.Rerank),
		timeout:        cfg.Engine.Timeout,
		maxConcurrency: cfg.Engine.MaxConcurrency,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "evidence_engine"))

	e.fuser = fusion.NewFuser(fcfg, e.fuserOpts...)
	e.reranker = rerank.NewDiversityReranker(e.rerankCfg, resultProjection, e.logger)
	e.gate = gate.NewMixtureGate(GateConfigFrom(cfg.Gate), e.ffn)

	if e.cache == nil {
		cacheOpts := []decision.Option{decision.WithLogger(e.logger)}
		if e.metrics != nil {
			cacheOpts = append(cacheOpts, decision.WithObserver(e.metrics))
		}
		e.cache = decision.New(DecisionConfigFrom(cfg.Cache), cacheOpts...)
	}

	if cfg.Engine.RateLimitRPS > 0 {
		burst := cfg.Engine.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Engine.RateLimitRPS), burst)
	}

	e.logger.Info("evidence engine initialized",
		zap.String("fusion_mode", string(fcfg.Mode)),
		zap.Bool("rerank", e.rerankEnabled),
		zap.Float64("gate_tau", cfg.Gate.Tau),
		zap.Int("gate_top_k", cfg.Gate.TopK))
	return e, nil
}

// Cache 返回引擎使用的决策缓存
func (e *Engine) Cache() *decision.Cache {
	return e.cache
}

// Rank 融合多通道候选并做多样性重排。相同指纹的请求复用缓存结果。
func (e *Engine) Rank(ctx context.Context, req RankRequest) (resp *RankResponse, err error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, "rank")
	if err != nil {
		return nil, err
	}
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "rank",
		attribute.String("fusion.mode", string(e.fuser.Config().Mode)),
		attribute.Int("fusion.channels", len(req.Channels)))
	defer func() {
		telemetry.EndSpan(span, err)
		e.record(ctx, "rank", err, start)
	}()

	fp := e.rankFingerprint(req)
	key := req.DecisionKey
	if strings.TrimSpace(key) == "" {
		key = decision.NormalizeText(req.Query)
	}

	results, err := decision.GetOrCompute(ctx, e.cache, RankNamespace, key, fp, func(ctx context.Context) ([]fusion.FusedResult, error) {
		return e.fuseAndRerank(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("fusion.results", len(results)))
	return &RankResponse{
		Results:     results,
		Mode:        e.fuser.Config().Mode,
		Fingerprint: fp,
	}, nil
}

// RankBatch 并发执行多个 Rank。任一失败时返回第一个错误。
func (e *Engine) RankBatch(ctx context.Context, reqs []RankRequest) ([]*RankResponse, error) {
	out := make([]*RankResponse, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}

	ctx = decision.WithScope(ctx)
	g, gctx := errgroup.WithContext(ctx)
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i := range reqs {
		g.Go(func() error {
			resp, err := e.Rank(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("rank request %d: %w", i, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Gate 计算多来源门控输出
func (e *Engine) Gate(ctx context.Context, req GateRequest) (resp *GateResponse, err error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, "gate")
	if err != nil {
		return nil, err
	}
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "gate",
		attribute.Int("gate.sources", len(req.Sources)),
		attribute.Int("gate.rows", len(req.Query)))
	defer func() {
		telemetry.EndSpan(span, err)
		e.record(ctx, "gate", err, start)
	}()

	names := make([]string, len(req.Sources))
	features := make([]gate.SourceFeatures, len(req.Sources))
	sources := make([]gate.Source, len(req.Sources))
	for j, s := range req.Sources {
		names[j] = s.Name
		if names[j] == "" {
			names[j] = "source-" + strconv.Itoa(j)
		}
		features[j] = gate.Collect(s.Features)
		sources[j] = gate.Source{K: s.K, V: s.V, W: s.W, Features: features[j]}
	}

	gateStart := time.Now()
	out, err := e.gate.Forward(req.Query, req.Residual, sources)
	if e.metrics != nil {
		e.metrics.RecordGate(metrics.Status(err), activeGates(out), time.Since(gateStart))
	}
	if err != nil {
		return nil, err
	}

	return &GateResponse{
		Sources:    names,
		Features:   features,
		GateOutput: out,
	}, nil
}

// GateWeights 只根据来源元数据计算门控权重，不需要注意力张量
func (e *Engine) GateWeights(raw []map[string]any) []float64 {
	features := make([]gate.SourceFeatures, len(raw))
	for j, r := range raw {
		features[j] = gate.Collect(r)
	}
	return gate.GateWeights(features, e.gate.Config())
}

// InvalidateRank 删除某个决策键下的 Rank 缓存
func (e *Engine) InvalidateRank(ctx context.Context, key string) error {
	return e.cache.Invalidate(ctx, RankNamespace, key)
}

func (e *Engine) fuseAndRerank(ctx context.Context, req RankRequest) ([]fusion.FusedResult, error) {
	fuseStart := time.Now()
	fused := e.fuser.FuseRanked(req.Channels, req.Weights)
	if e.metrics != nil {
		e.metrics.RecordFusion(string(e.fuser.Config().Mode), len(fused), time.Since(fuseStart))
	}
	if !e.rerankEnabled || len(fused) == 0 {
		return fused, nil
	}

	rerankStart := time.Now()
	out, err := e.reranker.Rerank(ctx, req.Query, fused)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	if e.metrics != nil {
		e.metrics.RecordRerank(len(out), time.Since(rerankStart))
	}
	return out, nil
}

var resultProjection = rerank.Projection[fusion.FusedResult]{
	Score: func(r fusion.FusedResult) float64 { return r.Score },
	Text: func(r fusion.FusedResult) string {
		rep := r.Representative
		if rep.Snippet == "" {
			return rep.Title
		}
		return rep.Title + " " + rep.Snippet
	},
	ID: func(r fusion.FusedResult) string { return r.Key },
}

// rankFingerprint 指纹覆盖 query、通道内容、通道权重与融合/重排配置
func (e *Engine) rankFingerprint(req RankRequest) string {
	names := make([]string, 0, len(req.Channels))
	for name := range req.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := pool.SumSHA256(func(h hash.Hash) {
		for _, name := range names {
			w, ok := req.Weights[name]
			fmt.Fprintf(h, "channel=%q weight=%v/%t\n", name, w, ok)
			for _, c := range req.Channels[name] {
				fmt.Fprintf(h, "%q %q %q %v %d %q %q\n", c.ID, c.URL, c.Source, c.BaseScore, c.Rank, c.Title, c.Snippet)
			}
		}
		fmt.Fprintf(h, "fusion=%+v rerank=%+v enabled=%t", e.fuser.Config(), e.rerankCfg, e.rerankEnabled)
	})

	attrs := make(map[string]string, len(req.Attributes)+1)
	for k, v := range req.Attributes {
		attrs[k] = v
	}
	attrs["inputs"] = hex.EncodeToString(sum)
	return e.policy.Fingerprint(RankNamespace, req.Query, attrs)
}

// begin 统一处理请求 ID、限流与超时
func (e *Engine) begin(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	if _, ok := ctxkeys.RequestID(ctx); !ok {
		ctx = ctxkeys.WithRequestID(ctx, uuid.NewString())
	}
	// 调用方已标记所在阶段时保留
	if _, ok := ctxkeys.Stage(ctx); !ok {
		ctx = ctxkeys.WithStage(ctx, op)
	}
	ctx = decision.WithScope(ctx)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, nil, types.NewError(types.ErrTimeout, "rate limit wait aborted").
				WithStage(op).WithRetryable(true).WithCause(err)
		}
	}

	if e.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (e *Engine) record(ctx context.Context, op string, err error, start time.Time) {
	d := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordEngineRequest(op, metrics.Status(err), d)
	}
	fields := []zap.Field{zap.String("operation", op), zap.Duration("duration", d)}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if stage, ok := ctxkeys.Stage(ctx); ok {
		fields = append(fields, zap.String("stage", stage))
	}
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if err != nil {
		e.logger.Warn("engine request failed", append(fields, zap.Error(err))...)
		return
	}
	e.logger.Debug("engine request completed", fields...)
}

func activeGates(out *gate.GateOutput) int {
	if out == nil {
		return 0
	}
	n := 0
	for _, g := range out.Gates {
		if g > 0 {
			n++
		}
	}
	return n
}
