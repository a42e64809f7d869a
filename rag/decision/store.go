package decision

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 存储中不存在或已过期
var ErrCacheMiss = errors.New("cache miss")

// Entry 缓存槽：切片指纹 + 值
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Value       any       `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store L2 存储接口
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
}
