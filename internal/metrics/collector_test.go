package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/fusiongate/rag/decision"
)

var _ decision.Observer = (*Collector)(nil)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(nextTestNamespace(), reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	c, _ := newTestCollector(t)

	assert.NotNil(t, c.fusionTotal)
	assert.NotNil(t, c.gateForwardTotal)
	assert.NotNil(t, c.cacheHits)
	assert.NotNil(t, c.engineRequests)
}

func TestNewCollector_DefaultRegisterer(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil, nil)
	c.RecordEngineRequest("rank", "success", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.engineRequests.WithLabelValues("rank", "success")))
}

func TestCollector_RecordFusion(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordFusion("rrf", 12, 2*time.Millisecond)
	c.RecordFusion("rrf", 3, time.Millisecond)
	c.RecordFusion("wpm", 5, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.fusionTotal.WithLabelValues("rrf")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fusionTotal.WithLabelValues("wpm")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.fusedCandidates))
}

func TestCollector_RecordRerankAndGate(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordRerank(8, time.Millisecond)
	c.RecordGate("success", 2, time.Millisecond)
	c.RecordGate("error", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.gateForwardTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gateForwardTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.rerankDuration))
}

func TestCollector_DecisionObserver(t *testing.T) {
	c, reg := newTestCollector(t)

	c.CacheHit("plan", decision.LevelL1)
	c.CacheHit("plan", decision.LevelL2)
	c.CacheMiss("plan")
	c.FingerprintMismatch("plan")
	c.InflightJoin("plan")
	c.ComputeError("plan")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("plan", "l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("plan", "l2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("plan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMismatches.WithLabelValues("plan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheJoins.WithLabelValues("plan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheErrors.WithLabelValues("plan")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}
