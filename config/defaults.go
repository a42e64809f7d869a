// =============================================================================
// 📦 fusiongate 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Fusion:    DefaultFusionConfig(),
		Rerank:    DefaultRerankConfig(),
		Gate:      DefaultGateConfig(),
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Timeout:        10 * time.Second,
		MaxConcurrency: 8,
		RateLimitRPS:   0,
		RateLimitBurst: 16,
	}
}

// DefaultFusionConfig 返回默认融合配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Mode:          "rrf",
		K:             60,
		P:             1.5,
		KGBoost:       0.2,
		VectorPenalty: -0.2,
		CalibrateWPM:  true,
		BlendAlpha:    0.6,
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Enabled:     true,
		K:           8,
		PoolCap:     30,
		Lambda:      0.7,
		ShingleSize: 3,
	}
}

// DefaultGateConfig 返回默认门控配置
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

// DefaultCacheConfig 返回默认决策缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Prefix:    "router.plan.cache",
		L2Enabled: true,
		Backend:   "memory",
		L2MaxSize: 1024,
		L2TTL:     300 * time.Second,
		Redis:     DefaultRedisConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		KeyPrefix:    "fusiongate:decision",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "fusiongate",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "fusiongate",
	}
}
