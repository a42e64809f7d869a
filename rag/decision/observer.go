package decision

// 缓存层级
const (
	LevelL1 = "l1"
	LevelL2 = "l2"
)

// Observer 缓存事件回调，metrics.Collector 实现该接口
type Observer interface {
	CacheHit(namespace, level string)
	CacheMiss(namespace string)
	FingerprintMismatch(namespace string)
	InflightJoin(namespace string)
	ComputeError(namespace string)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string, string)    {}
func (nopObserver) CacheMiss(string)           {}
func (nopObserver) FingerprintMismatch(string) {}
func (nopObserver) InflightJoin(string)        {}
func (nopObserver) ComputeError(string)        {}
