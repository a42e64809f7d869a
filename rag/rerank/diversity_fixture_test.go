package rerank_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fusiongate/rag/fusion"
	"github.com/BaSui01/fusiongate/rag/rerank"
	"github.com/BaSui01/fusiongate/testutil"
	"github.com/BaSui01/fusiongate/testutil/fixtures"
)

var fusedProjection = rerank.Projection[fusion.FusedResult]{
	Score: func(r fusion.FusedResult) float64 { return r.Score },
	Text:  func(r fusion.FusedResult) string { return r.Representative.Title },
	ID:    func(r fusion.FusedResult) string { return r.Key },
}

func TestDiversityReranker_FusedResults(t *testing.T) {
	r := rerank.NewDiversityReranker(rerank.DiversityConfig{K: 2, Lambda: 0.5, ShingleSize: 3}, fusedProjection, nil)

	out, err := r.Rerank(testutil.TestContext(t), "rrf", fixtures.NearDuplicateResults())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "d1", out[0].Key)
	assert.Equal(t, "d3", out[1].Key)
}

func TestDiversityReranker_CancelledContext(t *testing.T) {
	r := rerank.NewDiversityReranker(rerank.DefaultDiversityConfig(), fusedProjection, nil)

	_, err := r.Rerank(testutil.CancelledContext(), "rrf", fixtures.NearDuplicateResults())
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkDiversify(b *testing.B) {
	items := fusion.NewFuser(fusion.DefaultFusionConfig()).
		FuseRanked(fixtures.RandomChannels(newRand(), 4, 50), nil)
	cfg := rerank.DefaultDiversityConfig()

	h := testutil.NewBenchmarkHelper(b)
	h.ReportAllocs()
	h.ResetTimer()
	for i := 0; i < b.N; i++ {
		rerank.Diversify(items, cfg, fusedProjection)
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}
