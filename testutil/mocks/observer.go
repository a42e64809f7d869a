package mocks

import (
	"sync"

	"github.com/BaSui01/fusiongate/rag/decision"
)

// RecordingObserver 按事件类型记录缓存回调，可并发使用
type RecordingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

var _ decision.Observer = (*RecordingObserver)(nil)

// NewRecordingObserver 创建记录器
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{events: make(map[string]int)}
}

// CacheHit 记录命中，事件名为 "hit:<level>"
func (o *RecordingObserver) CacheHit(_ string, level string) { o.add("hit:" + level) }

// CacheMiss 记录未命中
func (o *RecordingObserver) CacheMiss(string) { o.add("miss") }

// FingerprintMismatch 记录指纹不一致
func (o *RecordingObserver) FingerprintMismatch(string) { o.add("mismatch") }

// InflightJoin 记录合并等待
func (o *RecordingObserver) InflightJoin(string) { o.add("join") }

// ComputeError 记录计算失败
func (o *RecordingObserver) ComputeError(string) { o.add("error") }

// Count 返回事件次数
func (o *RecordingObserver) Count(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[event]
}

func (o *RecordingObserver) add(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events[event]++
}
