package decision

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/fusiongate/types"
)

// Config 决策缓存配置
type Config struct {
	Prefix    string        `yaml:"prefix" json:"prefix"`
	L2Enabled bool          `yaml:"l2_enabled" json:"l2_enabled"`
	L2MaxSize int           `yaml:"l2_max_size" json:"l2_max_size"`
	L2TTL     time.Duration `yaml:"l2_ttl" json:"l2_ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Prefix:    "router.plan.cache",
		L2Enabled: true,
		L2MaxSize: 1024,
		L2TTL:     300 * time.Second,
	}
}

// Option 缓存选项
type Option func(*Cache)

// WithStore 指定 L2 存储（如 RedisStore），覆盖默认的 LRUStore
func WithStore(s Store) Option {
	return func(c *Cache) {
		if s != nil {
			c.l2 = s
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver 设置事件回调
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.observer = o
		}
	}
}

// Cache 两级决策缓存。L1 是 ctx 上的 Scope，L2 是可选的 Store。
type Cache struct {
	cfg      Config
	l2       Store
	group    singleflight.Group
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

// New 创建缓存
func New(cfg Config, opts ...Option) *Cache {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.L2MaxSize <= 0 {
		cfg.L2MaxSize = def.L2MaxSize
	}

	c := &Cache{
		cfg:      cfg,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !cfg.L2Enabled {
		c.l2 = nil
	} else if c.l2 == nil {
		c.l2 = NewLRUStore(cfg.L2MaxSize, cfg.L2TTL)
	}
	c.logger = c.logger.With(zap.String("component", "decision_cache"))
	return c
}

// Config 返回生效配置
func (c *Cache) Config() Config {
	return c.cfg
}

// GetOrCompute 查找 (namespace, key) 下指纹一致的值，未命中时执行 compute。
// 同一 (namespace, key, fingerprint) 的并发调用只执行一次 compute，其余调用等待其结果。
// 等待方 ctx 结束时返回 ctx.Err()，计算本身继续完成并写入缓存。
func GetOrCompute[T any](ctx context.Context, c *Cache, namespace, key, fingerprint string, compute func(context.Context) (T, error)) (T, error) {
	if v, ok := GetIfPresent[T](ctx, c, namespace, key, fingerprint); ok {
		return v, nil
	}
	c.observer.CacheMiss(namespace)

	slot := c.slotKey(namespace, key)
	// 计算与发起方的取消解耦，但保留 ctx 上的值
	computeCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey(slot, fingerprint), func() (any, error) {
		// 排队期间可能已有其他进程写入 L2
		if e, ok := c.lookupL2(computeCtx, namespace, slot, fingerprint); ok {
			if v, ok := decodeValue[T](e.Value); ok {
				return v, nil
			}
		}

		v, err := safeCompute(computeCtx, compute)
		if err != nil {
			c.observer.ComputeError(namespace)
			c.logger.Debug("decision compute failed",
				zap.String("namespace", namespace),
				zap.String("key", key),
				zap.Error(err))
			return v, err
		}
		c.storeL2(computeCtx, slot, Entry{Fingerprint: fingerprint, Value: v, CreatedAt: c.now()})
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.observer.InflightJoin(namespace)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := decodeValue[T](res.Val)
		if !ok && res.Val != nil {
			// 同一计算的发起方与加入方声明了不同的 T
			return zero, types.Errorf(types.ErrCacheCompute, "in-flight value has type %T", res.Val).WithStage("cache")
		}
		if s := ScopeFrom(ctx); s != nil {
			s.set(slot, Entry{Fingerprint: fingerprint, Value: v, CreatedAt: c.now()})
		}
		return v, nil
	}
}

// safeCompute 将 compute 中的 panic 转为 CACHE_COMPUTE_FAILED 错误
func safeCompute[T any](ctx context.Context, compute func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.Errorf(types.ErrCacheCompute, "decision compute panicked: %v", r).WithStage("cache")
		}
	}()
	return compute(ctx)
}

// GetIfPresent 只查找不计算。L2 命中会回填当前请求的 L1。
func GetIfPresent[T any](ctx context.Context, c *Cache, namespace, key, fingerprint string) (T, bool) {
	var zero T
	slot := c.slotKey(namespace, key)

	scope := ScopeFrom(ctx)
	if scope != nil {
		if e, ok := scope.get(slot); ok {
			if e.Fingerprint == fingerprint {
				if v, ok := decodeValue[T](e.Value); ok {
					c.observer.CacheHit(namespace, LevelL1)
					return v, true
				}
			} else {
				c.observer.FingerprintMismatch(namespace)
			}
		}
	}

	e, ok := c.lookupL2(ctx, namespace, slot, fingerprint)
	if !ok {
		return zero, false
	}
	v, ok := decodeValue[T](e.Value)
	if !ok {
		c.logger.Warn("cached value has unexpected type",
			zap.String("namespace", namespace),
			zap.String("key", key))
		return zero, false
	}
	c.observer.CacheHit(namespace, LevelL2)
	if scope != nil {
		scope.set(slot, Entry{Fingerprint: fingerprint, Value: v, CreatedAt: e.CreatedAt})
	}
	return v, true
}

// Put 直接写入 L1（如有）与 L2
func (c *Cache) Put(ctx context.Context, namespace, key, fingerprint string, value any) error {
	slot := c.slotKey(namespace, key)
	e := Entry{Fingerprint: fingerprint, Value: value, CreatedAt: c.now()}
	if s := ScopeFrom(ctx); s != nil {
		s.set(slot, e)
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Set(ctx, slot, &e)
}

// Invalidate 删除 (namespace, key) 在 L1 与 L2 中的条目
func (c *Cache) Invalidate(ctx context.Context, namespace, key string) error {
	slot := c.slotKey(namespace, key)
	if s := ScopeFrom(ctx); s != nil {
		s.delete(slot)
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Delete(ctx, slot)
}

func (c *Cache) lookupL2(ctx context.Context, namespace, slot, fingerprint string) (*Entry, bool) {
	if c.l2 == nil {
		return nil, false
	}
	e, err := c.l2.Get(ctx, slot)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("l2 lookup failed", zap.String("slot", slot), zap.Error(err))
		}
		return nil, false
	}
	if e.Fingerprint != fingerprint {
		c.observer.FingerprintMismatch(namespace)
		return nil, false
	}
	return e, true
}

func (c *Cache) storeL2(ctx context.Context, slot string, e Entry) {
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, slot, &e); err != nil {
		// 写入失败只影响复用，不影响本次结果
		c.logger.Warn("l2 store failed", zap.String("slot", slot), zap.Error(err))
	}
}

// slotKey namespace 与 key 分别加引号，含 ":" 的组合不会映射到同一槽位
func (c *Cache) slotKey(namespace, key string) string {
	return c.cfg.Prefix + ":" + strconv.Quote(strings.TrimSpace(namespace)) + ":" + strconv.Quote(strings.TrimSpace(key))
}

func flightKey(slot, fingerprint string) string {
	return slot + "|" + strconv.Quote(fingerprint)
}

// decodeValue 将缓存值转为 T。来自 RedisStore 的值是原始 JSON，按 T 解码。
func decodeValue[T any](v any) (T, bool) {
	if t, ok := v.(T); ok {
		return t, true
	}
	var zero T
	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		raw = x
	case []byte:
		raw = x
	default:
		return zero, false
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false
	}
	return out, true
}
