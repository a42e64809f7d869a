package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 融合指标
	fusionTotal      *prometheus.CounterVec
	fusionDuration   *prometheus.HistogramVec
	fusedCandidates  *prometheus.HistogramVec
	rerankDuration   prometheus.Histogram
	rerankSelected   prometheus.Histogram
	gateForwardTotal *prometheus.CounterVec
	gateDuration     prometheus.Histogram
	gateActive       prometheus.Histogram

	// 决策缓存指标
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheMismatches *prometheus.CounterVec
	cacheJoins      *prometheus.CounterVec
	cacheErrors     *prometheus.CounterVec

	// 引擎入口指标
	engineRequests *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.fusionTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fusion_requests_total",
			Help:      "Total number of rank fusion calls",
		},
		[]string{"mode"},
	)

	c.fusionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fusion_duration_seconds",
			Help:      "Rank fusion duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"mode"},
	)

	c.fusedCandidates = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fused_candidates",
			Help:      "Number of distinct canonical keys after fusion",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"mode"},
	)

	c.rerankDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_duration_seconds",
			Help:      "Diversity rerank duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	c.rerankSelected = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_selected",
			Help:      "Number of items selected by the diversity reranker",
			Buckets:   prometheus.LinearBuckets(1, 4, 8),
		},
	)

	c.gateForwardTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_forward_total",
			Help:      "Total number of mixture gate forward passes",
		},
		[]string{"status"},
	)

	c.gateDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_forward_duration_seconds",
			Help:      "Mixture gate forward duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	c.gateActive = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_active_sources",
			Help:      "Number of sources with a non-zero gate weight",
			Buckets:   prometheus.LinearBuckets(0, 1, 9),
		},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_hits_total",
			Help:      "Total number of decision cache hits",
		},
		[]string{"namespace", "level"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_misses_total",
			Help:      "Total number of decision cache misses",
		},
		[]string{"namespace"},
	)

	c.cacheMismatches = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_fingerprint_mismatch_total",
			Help:      "Total number of cached decisions rejected by fingerprint",
		},
		[]string{"namespace"},
	)

	c.cacheJoins = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_inflight_joins_total",
			Help:      "Total number of callers that shared an in-flight computation",
		},
		[]string{"namespace"},
	)

	c.cacheErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_cache_compute_errors_total",
			Help:      "Total number of failed decision computations",
		},
		[]string{"namespace"},
	)

	c.engineRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of engine requests",
		},
		[]string{"operation", "status"},
	)

	c.engineDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Engine request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordFusion 记录一次融合
func (c *Collector) RecordFusion(mode string, candidates int, duration time.Duration) {
	c.fusionTotal.WithLabelValues(mode).Inc()
	c.fusionDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.fusedCandidates.WithLabelValues(mode).Observe(float64(candidates))
}

// RecordRerank 记录一次多样性重排
func (c *Collector) RecordRerank(selected int, duration time.Duration) {
	c.rerankDuration.Observe(duration.Seconds())
	c.rerankSelected.Observe(float64(selected))
}

// RecordGate 记录一次门控前向
func (c *Collector) RecordGate(status string, active int, duration time.Duration) {
	c.gateForwardTotal.WithLabelValues(status).Inc()
	c.gateDuration.Observe(duration.Seconds())
	if status == "success" {
		c.gateActive.Observe(float64(active))
	}
}

// RecordEngineRequest 记录引擎入口请求
func (c *Collector) RecordEngineRequest(operation, status string, duration time.Duration) {
	c.engineRequests.WithLabelValues(operation, status).Inc()
	c.engineDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// CacheHit 记录缓存命中
func (c *Collector) CacheHit(namespace, level string) {
	c.cacheHits.WithLabelValues(namespace, level).Inc()
}

// CacheMiss 记录缓存未命中
func (c *Collector) CacheMiss(namespace string) {
	c.cacheMisses.WithLabelValues(namespace).Inc()
}

// FingerprintMismatch 记录指纹不一致
func (c *Collector) FingerprintMismatch(namespace string) {
	c.cacheMismatches.WithLabelValues(namespace).Inc()
}

// InflightJoin 记录合并等待
func (c *Collector) InflightJoin(namespace string) {
	c.cacheJoins.WithLabelValues(namespace).Inc()
}

// ComputeError 记录计算失败
func (c *Collector) ComputeError(namespace string) {
	c.cacheErrors.WithLabelValues(namespace).Inc()
}

// Status 将 error 归类为 success / error 标签
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
