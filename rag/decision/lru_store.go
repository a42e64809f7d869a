package decision

import (
	"context"
	"sync"
	"time"
)

// LRUStore 进程内 L2 存储：容量上限 + 写入后过期（读取不续期）
type LRUStore struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用
	now      func() time.Time
}

type lruNode struct {
	key       string
	entry     *Entry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

// NewLRUStore 创建 LRU 存储。capacity<=0 时使用 1024，ttl<=0 表示不过期。
func NewLRUStore(capacity int, ttl time.Duration) *LRUStore {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRUStore{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruNode),
		now:      time.Now,
	}
}

// Get 读取条目，过期条目被移除并返回 ErrCacheMiss
func (s *LRUStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if s.expired(node) {
		s.removeNode(node)
		delete(s.items, key)
		return nil, ErrCacheMiss
	}

	s.moveToHead(node)
	return node.entry, nil
}

// Set 写入条目并重置过期时间
func (s *LRUStore) Set(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.items[key]; ok {
		node.entry = entry
		node.expiresAt = s.deadline()
		s.moveToHead(node)
		return nil
	}

	if len(s.items) >= s.capacity {
		s.evictTail()
	}

	node := &lruNode{
		key:       key,
		entry:     entry,
		expiresAt: s.deadline(),
	}
	s.items[key] = node
	s.addToHead(node)
	return nil
}

// Delete 删除条目，不存在时无操作
func (s *LRUStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.items[key]; ok {
		s.removeNode(node)
		delete(s.items, key)
	}
	return nil
}

// Clear 清空
func (s *LRUStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*lruNode)
	s.head = nil
	s.tail = nil
}

// Len 当前条目数（含未清理的过期条目）
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *LRUStore) deadline() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

func (s *LRUStore) expired(node *lruNode) bool {
	return !node.expiresAt.IsZero() && s.now().After(node.expiresAt)
}

func (s *LRUStore) addToHead(node *lruNode) {
	node.prev = nil
	node.next = s.head
	if s.head != nil {
		s.head.prev = node
	}
	s.head = node
	if s.tail == nil {
		s.tail = node
	}
}

func (s *LRUStore) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		s.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		s.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

func (s *LRUStore) moveToHead(node *lruNode) {
	if node == s.head {
		return
	}
	s.removeNode(node)
	s.addToHead(node)
}

func (s *LRUStore) evictTail() {
	if s.tail == nil {
		return
	}
	tail := s.tail
	delete(s.items, tail.key)
	s.removeNode(tail)
}
