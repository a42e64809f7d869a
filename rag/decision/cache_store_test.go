package decision_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fusiongate/rag/decision"
	"github.com/BaSui01/fusiongate/types"
	"github.com/BaSui01/fusiongate/testutil"
	"github.com/BaSui01/fusiongate/testutil/mocks"
)

func newMockedCache(store *mocks.MockStore, obs *mocks.RecordingObserver) *decision.Cache {
	return decision.New(decision.DefaultConfig(), decision.WithStore(store), decision.WithObserver(obs))
}

func TestCache_StoreSetFailureDoesNotFailCompute(t *testing.T) {
	store := mocks.NewMockStore().WithSetError(errors.New("redis down"))
	obs := mocks.NewRecordingObserver()
	c := newMockedCache(store, obs)

	v, err := decision.GetOrCompute(testutil.TestContext(t), c, "plan", "q", "fp", func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, store.SetCalls())
	assert.Empty(t, store.Keys())
}

func TestCache_StoreGetFailureTreatedAsMiss(t *testing.T) {
	store := mocks.NewMockStore().WithGetError(errors.New("timeout"))
	obs := mocks.NewRecordingObserver()
	c := newMockedCache(store, obs)

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := decision.GetOrCompute(context.Background(), c, "plan", "q", "fp", func(context.Context) (string, error) {
			calls++
			return "x", nil
		})
		require.NoError(t, err)
	}
	// 每次都是新的 L1，L2 不可读，只能重新计算
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, obs.Count("miss"))
}

func TestCache_PreloadedEntryWithStaleFingerprint(t *testing.T) {
	store := mocks.NewMockStore().WithEntry(`router.plan.cache:"plan":"q"`, decision.Entry{
		Fingerprint: "old",
		Value:       "stale",
		CreatedAt:   time.Now(),
	})
	obs := mocks.NewRecordingObserver()
	c := newMockedCache(store, obs)

	v, err := decision.GetOrCompute(context.Background(), c, "plan", "q", "new", func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.GreaterOrEqual(t, obs.Count("mismatch"), 1)

	v, ok := decision.GetIfPresent[string](context.Background(), c, "plan", "q", "new")
	require.True(t, ok)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, obs.Count("hit:l2"))
}

func TestCache_InvalidateReturnsStoreError(t *testing.T) {
	store := mocks.NewMockStore().WithDeleteError(errors.New("readonly"))
	c := newMockedCache(store, mocks.NewRecordingObserver())

	err := c.Invalidate(context.Background(), "plan", "q")
	require.Error(t, err)
	assert.Equal(t, 1, store.DeleteCalls())
}

func TestCache_WaiterCancelledComputationCompletes(t *testing.T) {
	store := mocks.NewMockStore()
	c := newMockedCache(store, mocks.NewRecordingObserver())

	release := make(chan struct{})
	done := make(chan struct{})
	ctx := testutil.CancelledContext()

	_, err := decision.GetOrCompute(ctx, c, "plan", "slow", "fp", func(context.Context) (string, error) {
		defer close(done)
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	_, ok := testutil.WaitForChannel[struct{}](done, time.Second)
	require.True(t, ok)
	testutil.AssertEventuallyTrue(t, func() bool { return store.SetCalls() == 1 }, time.Second)

	v, ok := decision.GetIfPresent[string](context.Background(), c, "plan", "slow", "fp")
	require.True(t, ok)
	assert.Equal(t, "late", v)
}

func TestCache_ComputePanicBecomesError(t *testing.T) {
	store := mocks.NewMockStore()
	obs := mocks.NewRecordingObserver()
	c := newMockedCache(store, obs)

	_, err := decision.GetOrCompute(context.Background(), c, "plan", "q", "fp", func(context.Context) (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrCacheCompute, types.GetErrorCode(err))
	assert.Equal(t, 1, obs.Count("error"))
	assert.Zero(t, store.SetCalls())
}

func BenchmarkGetOrCompute_Parallel(b *testing.B) {
	c := decision.New(decision.DefaultConfig())
	compute := func(context.Context) (int, error) { return 1, nil }

	h := testutil.NewBenchmarkHelper(b)
	h.ReportAllocs()
	h.ResetTimer()
	h.RunParallel(func() {
		_, _ = decision.GetOrCompute(context.Background(), c, "plan", "hot", "fp", compute)
	})
}
