package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/store"
)

func TestFuse_CombinesUnionOfSources(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ChunkID: "a:0", Score: 2.0, MatchedTerms: []string{"refund"}},
		{ChunkID: "b:0", Score: 1.0},
	}
	vec := []*store.VectorResult{
		{ChunkID: "b:0", Score: 0.8},
		{ChunkID: "c:0", Score: 0.4},
	}

	results := Fuse(bm25, vec, 0.4, 0.6, 0)
	require.Len(t, results, 3)

	// b: 0.4*0.5 + 0.6*1.0 = 0.8; a: 0.4*1.0 = 0.4; c: 0.6*0.5 = 0.3
	assert.Equal(t, "b:0", results[0].ChunkID)
	assert.InDelta(t, 0.8, results[0].HybridScore, 1e-9)
	assert.Equal(t, "a:0", results[1].ChunkID)
	assert.InDelta(t, 0.4, results[1].HybridScore, 1e-9)
	assert.Equal(t, "c:0", results[2].ChunkID)
	assert.InDelta(t, 0.3, results[2].HybridScore, 1e-9)

	assert.Equal(t, []string{"refund"}, results[1].MatchedTerms)
}

func TestFuse_MinScoreFiltersResults(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ChunkID: "a:0", Score: 2.0},
		{ChunkID: "b:0", Score: 0.2},
	}

	results := Fuse(bm25, nil, 1.0, 0, 0.5)
	require.Len(t, results, 1)
	assert.Equal(t, "a:0", results[0].ChunkID)
}

func TestFuse_ZeroMaxContributesNothing(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ChunkID: "a:0", Score: 0},
		{ChunkID: "b:0", Score: 0},
	}
	vec := []*store.VectorResult{
		{ChunkID: "a:0", Score: 0.5},
	}

	results := Fuse(bm25, vec, 0.4, 0.6, 0)
	require.Len(t, results, 3)
	assert.Equal(t, "a:0", results[0].ChunkID)
	assert.InDelta(t, 0.6, results[0].HybridScore, 1e-9)
	for _, r := range results[1:] {
		assert.Zero(t, r.HybridScore)
	}
}

func TestFuse_TieBreaksOnRawVectorScore(t *testing.T) {
	// With the vector weight at zero the hybrid scores tie; the raw
	// vector similarity decides the order.
	bm25 := []*store.BM25Result{
		{ChunkID: "low:0", Score: 1.0},
		{ChunkID: "high:0", Score: 1.0},
	}
	vec := []*store.VectorResult{
		{ChunkID: "low:0", Score: 0.5},
		{ChunkID: "high:0", Score: 0.9},
	}

	results := Fuse(bm25, vec, 1.0, 0, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "high:0", results[0].ChunkID)
	assert.Equal(t, "low:0", results[1].ChunkID)
}

func TestFuse_TieBreaksOnChunkID(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ChunkID: "b:0", Score: 1.0},
		{ChunkID: "a:0", Score: 1.0},
	}

	results := Fuse(bm25, nil, 1.0, 0, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "a:0", results[0].ChunkID)
	assert.Equal(t, "b:0", results[1].ChunkID)
}

func TestFuse_EmptyInputs(t *testing.T) {
	results := Fuse(nil, nil, 0.4, 0.6, 0)
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuse_ScoreBounds(t *testing.T) {
	bm25 := []*store.BM25Result{
		{ChunkID: "a:0", Score: 7.3},
		{ChunkID: "b:0", Score: 2.1},
		{ChunkID: "c:0", Score: 0.4},
	}
	vec := []*store.VectorResult{
		{ChunkID: "b:0", Score: 0.95},
		{ChunkID: "d:0", Score: 0.62},
	}

	const bm25Weight, vectorWeight, minScore = 0.4, 0.6, 0.1
	results := Fuse(bm25, vec, bm25Weight, vectorWeight, minScore)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.HybridScore, minScore)
		assert.LessOrEqual(t, r.HybridScore, bm25Weight+vectorWeight)
	}
}
