// =============================================================================
// 📦 fusiongate 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("fusiongate.yaml").
//	    WithEnvPrefix("FUSIONGATE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 fusiongate 的完整配置结构
type Config struct {
	// Engine 引擎入口配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Fusion 排序融合配置
	Fusion FusionConfig `yaml:"fusion" env:"FUSION"`

	// Rerank 多样性重排配置
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// Gate 门控配置
	Gate GateConfig `yaml:"gate" env:"GATE"`

	// Cache 决策缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// EngineConfig 引擎入口配置
type EngineConfig struct {
	// 单次请求超时，0 表示不限制
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RankBatch 并发上限
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 每秒允许的请求数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// FusionConfig 融合配置
type FusionConfig struct {
	// 模式: rrf, wpm
	Mode string `yaml:"mode" env:"MODE"`
	// RRF 常数
	K int `yaml:"k" env:"K"`
	// WPM 指数
	P float64 `yaml:"p" env:"P"`
	// 是否启用来源修正
	ProvenanceBoost bool `yaml:"provenance_boost" env:"PROVENANCE_BOOST"`
	// kg 来源加成
	KGBoost float64 `yaml:"kg_boost" env:"KG_BOOST"`
	// vector 来源修正
	VectorPenalty float64 `yaml:"vector_penalty" env:"VECTOR_PENALTY"`
	// WPM 前是否按通道校准
	CalibrateWPM bool `yaml:"calibrate_wpm" env:"CALIBRATE_WPM"`
	// 校准 RRF 混合系数
	BlendAlpha float64 `yaml:"blend_alpha" env:"BLEND_ALPHA"`
	// 通道权重
	Weights map[string]float64 `yaml:"weights" env:"-"`
}

// RerankConfig 多样性重排配置
type RerankConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 输出条数
	K int `yaml:"k" env:"K"`
	// 候选池上限
	PoolCap int `yaml:"pool_cap" env:"POOL_CAP"`
	// 相关性/多样性权衡
	Lambda float64 `yaml:"lambda" env:"LAMBDA"`
	// shingle 长度
	ShingleSize int `yaml:"shingle_size" env:"SHINGLE_SIZE"`
}

// GateConfig 门控配置
type GateConfig struct {
	// softmax 温度
	Tau float64 `yaml:"tau" env:"TAU"`
	// top-k，0 表示关闭
	TopK int     `yaml:"top_k" env:"TOP_K"`
	W0   float64 `yaml:"w0" env:"W0"`
	WA   float64 `yaml:"wa" env:"WA"`
	WU   float64 `yaml:"wu" env:"WU"`
	WF   float64 `yaml:"wf" env:"WF"`
	WM   float64 `yaml:"wm" env:"WM"`
	// 额外特征权重，按下标与 extras 对齐
	WExtras []float64 `yaml:"w_extras" env:"W_EXTRAS"`
}

// CacheConfig 决策缓存配置
type CacheConfig struct {
	// 缓存键前缀
	Prefix string `yaml:"prefix" env:"PREFIX"`
	// 是否启用 L2
	L2Enabled bool `yaml:"l2_enabled" env:"L2_ENABLED"`
	// L2 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 内存 L2 容量
	L2MaxSize int `yaml:"l2_max_size" env:"L2_MAX_SIZE"`
	// L2 写入后过期时间
	L2TTL time.Duration `yaml:"l2_ttl" env:"L2_TTL"`
	// Redis 配置（Backend=redis 时生效）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FUSIONGATE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量，最后执行 Validate 与自定义验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔，支持字符串与浮点切片
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch field.Type().Elem().Kind() {
		case reflect.String:
			field.Set(reflect.ValueOf(parts))
		case reflect.Float64:
			fs := make([]float64, len(parts))
			for i, p := range parts {
				f, err := strconv.ParseFloat(p, 64)
				if err != nil {
					return err
				}
				fs[i] = f
			}
			field.Set(reflect.ValueOf(fs))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Fusion.Mode) {
	case "", "rrf", "wpm":
	default:
		errs = append(errs, fmt.Sprintf("unknown fusion mode %q", c.Fusion.Mode))
	}
	if c.Fusion.K < 0 {
		errs = append(errs, "fusion.k must not be negative")
	}
	if c.Fusion.BlendAlpha < 0 || c.Fusion.BlendAlpha > 1 {
		errs = append(errs, "fusion.blend_alpha must be between 0 and 1")
	}

	if c.Rerank.Lambda < 0 || c.Rerank.Lambda > 1 {
		errs = append(errs, "rerank.lambda must be between 0 and 1")
	}
	if c.Rerank.ShingleSize < 0 {
		errs = append(errs, "rerank.shingle_size must not be negative")
	}

	if c.Gate.Tau <= 0 {
		errs = append(errs, "gate.tau must be positive")
	}
	if c.Gate.TopK < 0 {
		errs = append(errs, "gate.top_k must not be negative")
	}

	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, "cache.redis.addr is required for redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.L2TTL < 0 {
		errs = append(errs, "cache.l2_ttl must not be negative")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, "engine.max_concurrency must not be negative")
	}
	if c.Engine.RateLimitRPS < 0 || c.Engine.RateLimitBurst < 0 {
		errs = append(errs, "engine rate limit must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
