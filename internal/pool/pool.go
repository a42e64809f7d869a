// Package pool 提供基于 sync.Pool 的泛型对象池，用于指纹计算等热路径上的临时对象复用。
package pool

import (
	"crypto/sha256"
	"hash"
	"sync"
	"sync/atomic"
)

// Pool 泛型对象池
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)

	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewPool 创建对象池。reset 在对象归还时调用，可为 nil。
func NewPool[T any](newFunc func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get 取出对象
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put 归还对象
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// Stats 返回统计信息
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// Stats 对象池统计
type Stats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate 复用率
func (s Stats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// SHA256 sha256 哈希器池，归还时自动 Reset
var SHA256 = NewPool(sha256.New, func(h hash.Hash) { h.Reset() })

// SumSHA256 用池中的哈希器计算 write 写入内容的摘要
func SumSHA256(write func(h hash.Hash)) []byte {
	h := SHA256.Get()
	defer SHA256.Put(h)
	write(h)
	return h.Sum(nil)
}
