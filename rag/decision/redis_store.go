package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/fusiongate/internal/tlsutil"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	TLS          bool          `yaml:"tls" json:"tls"`
}

// NewRedisClient 创建客户端并 Ping 校验连接
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(cfg.Addr)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisStore 跨进程 L2 存储，值以 JSON 编码，过期交给 SET EX
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// redisEntry 线上格式。Value 保留原始 JSON，由调用方按目标类型解码。
type redisEntry struct {
	Fingerprint string          `json:"fingerprint"`
	Value       json.RawMessage `json:"value"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "fusiongate:decision"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "decision_redis_store")),
	}
}

// Get 读取条目，Entry.Value 为 json.RawMessage
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		s.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var re redisEntry
	if err := json.Unmarshal(data, &re); err != nil {
		// 无法解析的条目按未命中处理，后续写入会覆盖
		s.logger.Warn("corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, ErrCacheMiss
	}
	return &Entry{
		Fingerprint: re.Fingerprint,
		Value:       re.Value,
		CreatedAt:   re.CreatedAt,
	}, nil
}

// Set 写入条目
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	value, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	data, err := json.Marshal(redisEntry{
		Fingerprint: entry.Fingerprint,
		Value:       value,
		CreatedAt:   entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(); err != nil {
		s.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete 删除条目
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}
