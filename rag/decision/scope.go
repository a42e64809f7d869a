package decision

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Scope L1 请求级存储。一个请求内的所有阶段共享同一个 Scope。
type Scope struct {
	id      string
	mu      sync.Mutex
	entries map[string]Entry
}

// NewScope 创建空 Scope
func NewScope() *Scope {
	return &Scope{
		id:      uuid.NewString(),
		entries: make(map[string]Entry),
	}
}

// ID 返回 Scope 标识，用于日志关联
func (s *Scope) ID() string {
	return s.id
}

// WithScope 为 ctx 挂载新的 Scope；已挂载时原样返回
func WithScope(ctx context.Context) context.Context {
	if ScopeFrom(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, NewScope())
}

// ScopeFrom 取出 ctx 上的 Scope，没有时返回 nil
func ScopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

func (s *Scope) get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *Scope) set(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (s *Scope) delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len 条目数
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
