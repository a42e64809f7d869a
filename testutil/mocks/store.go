// =============================================================================
// 🗄️ MockStore - 决策缓存 L2 模拟实现
// =============================================================================
// 用于测试的 decision.Store 模拟，支持错误注入与调用计数
//
// 使用方法:
//
//	store := mocks.NewMockStore().WithSetError(errors.New("redis down"))
//	cache := decision.New(decision.DefaultConfig(), decision.WithStore(store))
//
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/fusiongate/rag/decision"
)

// MockStore 是 decision.Store 的内存模拟实现
type MockStore struct {
	mu sync.RWMutex

	entries map[string]decision.Entry

	// 错误注入
	getErr    error
	setErr    error
	deleteErr error

	// 调用记录
	getCalls    int
	setCalls    int
	deleteCalls int
}

var _ decision.Store = (*MockStore)(nil)

// NewMockStore 创建新的 MockStore
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]decision.Entry)}
}

// WithEntry 预置条目
func (m *MockStore) WithEntry(key string, e decision.Entry) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return m
}

// WithGetError 设置 Get 方法的错误
func (m *MockStore) WithGetError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithSetError 设置 Set 方法的错误
func (m *MockStore) WithSetError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
	return m
}

// WithDeleteError 设置 Delete 方法的错误
func (m *MockStore) WithDeleteError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
	return m
}

// Get 读取条目
func (m *MockStore) Get(_ context.Context, key string) (*decision.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, decision.ErrCacheMiss
	}
	return &e, nil
}

// Set 写入条目
func (m *MockStore) Set(_ context.Context, key string, e *decision.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = *e
	return nil
}

// Delete 删除条目
func (m *MockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.entries, key)
	return nil
}

// Keys 返回当前所有键
func (m *MockStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// GetCalls 返回 Get 调用次数
func (m *MockStore) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

// SetCalls 返回 Set 调用次数
func (m *MockStore) SetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setCalls
}

// DeleteCalls 返回 Delete 调用次数
func (m *MockStore) DeleteCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleteCalls
}

// Reset 清空条目与调用记录，保留错误注入配置
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]decision.Entry)
	m.getCalls, m.setCalls, m.deleteCalls = 0, 0, 0
}
