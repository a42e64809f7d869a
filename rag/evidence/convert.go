package evidence

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/fusiongate/config"
	"github.com/BaSui01/fusiongate/rag/decision"
	"github.com/BaSui01/fusiongate/rag/fusion"
	"github.com/BaSui01/fusiongate/rag/gate"
	"github.com/BaSui01/fusiongate/rag/rerank"
	"github.com/BaSui01/fusiongate/types"
)

// FusionConfigFrom 将配置节转换为融合配置
func FusionConfigFrom(c config.FusionConfig) (fusion.FusionConfig, error) {
	mode, err := fusion.ParseMode(c.Mode)
	if err != nil {
		return fusion.FusionConfig{}, types.NewError(types.ErrInvalidConfig, "invalid fusion mode").
			WithStage("fusion").WithCause(err)
	}
	return fusion.FusionConfig{
		Mode:            mode,
		K:               c.K,
		P:               c.P,
		ProvenanceBoost: c.ProvenanceBoost,
		KGBoost:         c.KGBoost,
		VectorPenalty:   c.VectorPenalty,
		CalibrateWPM:    c.CalibrateWPM,
		BlendAlpha:      c.BlendAlpha,
	}, nil
}

// DiversityConfigFrom 将配置节转换为重排配置
func DiversityConfigFrom(c config.RerankConfig) rerank.DiversityConfig {
	return rerank.DiversityConfig{
		K:           c.K,
		PoolCap:     c.PoolCap,
		Lambda:      c.Lambda,
		ShingleSize: c.ShingleSize,
	}
}

// GateConfigFrom 将配置节转换为门控配置
func GateConfigFrom(c config.GateConfig) gate.GateConfig {
	return gate.GateConfig{
		Tau:     c.Tau,
		TopK:    c.TopK,
		W0:      c.W0,
		WA:      c.WA,
		WU:      c.WU,
		WF:      c.WF,
		WM:      c.WM,
		WExtras: append([]float64(nil), c.WExtras...),
	}
}

// DecisionConfigFrom 将配置节转换为决策缓存配置
func DecisionConfigFrom(c config.CacheConfig) decision.Config {
	return decision.Config{
		Prefix:    c.Prefix,
		L2Enabled: c.L2Enabled,
		L2MaxSize: c.L2MaxSize,
		L2TTL:     c.L2TTL,
	}
}

// RedisConfigFrom 将配置节转换为 Redis 连接配置
func RedisConfigFrom(c config.CacheConfig) decision.RedisConfig {
	return decision.RedisConfig{
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		MaxRetries:   c.Redis.MaxRetries,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
		KeyPrefix:    c.Redis.KeyPrefix,
		TTL:          c.L2TTL,
		TLS:          c.Redis.TLS,
	}
}

// NewDecisionCache 按配置构建决策缓存。Backend=redis 时连接 Redis 作为 L2，
// 返回的 closer 用于释放连接。
func NewDecisionCache(ctx context.Context, c config.CacheConfig, logger *zap.Logger, observer decision.Observer) (*decision.Cache, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []decision.Option{decision.WithLogger(logger), decision.WithObserver(observer)}
	closer := func() error { return nil }

	if c.L2Enabled && strings.EqualFold(c.Backend, "redis") {
		rcfg := RedisConfigFrom(c)
		client, err := decision.NewRedisClient(ctx, rcfg)
		if err != nil {
			return nil, nil, types.NewError(types.ErrCacheStore, "failed to connect decision cache backend").
				WithStage("cache").WithRetryable(true).WithCause(err)
		}
		opts = append(opts, decision.WithStore(decision.NewRedisStore(client, rcfg.KeyPrefix, rcfg.TTL, logger)))
		closer = client.Close
		logger.Info("decision cache using redis", zap.String("addr", rcfg.Addr))
	}
	return decision.New(DecisionConfigFrom(c), opts...), closer, nil
}
