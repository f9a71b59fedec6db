package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorIndexFactories lets every test run against both implementations.
var vectorIndexFactories = map[string]func(dims int) (VectorIndex, error){
	"hnsw": func(dims int) (VectorIndex, error) {
		cfg := DefaultVectorIndexConfig(dims)
		return NewHNSWIndex(cfg)
	},
	"flat": func(dims int) (VectorIndex, error) {
		cfg := DefaultVectorIndexConfig(dims)
		cfg.Kind = VectorIndexFlat
		return NewChromemFlatIndex(cfg)
	},
}

func TestVectorIndex_AddAndSearch(t *testing.T) {
	for name, factory := range vectorIndexFactories {
		t.Run(name, func(t *testing.T) {
			idx, err := factory(3)
			require.NoError(t, err)
			defer idx.Close()

			ctx := context.Background()
			ids := []string{"doc1:0", "doc1:1", "doc2:0"}
			vectors := [][]float32{
				{1, 0, 0},
				{0, 1, 0},
				{0, 0, 1},
			}
			require.NoError(t, idx.Add(ctx, ids, vectors))

			results, err := idx.Search(ctx, []float32{0.9, 0.1, 0}, 2)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "doc1:0", results[0].ChunkID)
			assert.InDelta(t, 1.0, float64(results[0].Score), 0.05)
		})
	}
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	for name, factory := range vectorIndexFactories {
		t.Run(name, func(t *testing.T) {
			idx, err := factory(3)
			require.NoError(t, err)
			defer idx.Close()

			ctx := context.Background()
			err = idx.Add(ctx, []string{"doc1:0"}, [][]float32{{1, 0}})
			var dimErr ErrDimensionMismatch
			require.ErrorAs(t, err, &dimErr)
			assert.Equal(t, 3, dimErr.Expected)
			assert.Equal(t, 2, dimErr.Got)

			_, err = idx.Search(ctx, []float32{1, 0}, 1)
			assert.ErrorAs(t, err, &dimErr)
		})
	}
}

func TestVectorIndex_EmptySearch(t *testing.T) {
	for name, factory := range vectorIndexFactories {
		t.Run(name, func(t *testing.T) {
			idx, err := factory(3)
			require.NoError(t, err)
			defer idx.Close()

			results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestVectorIndex_KLargerThanCount(t *testing.T) {
	for name, factory := range vectorIndexFactories {
		t.Run(name, func(t *testing.T) {
			idx, err := factory(3)
			require.NoError(t, err)
			defer idx.Close()

			ctx := context.Background()
			require.NoError(t, idx.Add(ctx, []string{"doc1:0"}, [][]float32{{1, 0, 0}}))

			results, err := idx.Search(ctx, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}
}

func TestVectorIndex_Count(t *testing.T) {
	for name, factory := range vectorIndexFactories {
		t.Run(name, func(t *testing.T) {
			idx, err := factory(2)
			require.NoError(t, err)
			defer idx.Close()

			assert.Equal(t, 0, idx.Count())
			ctx := context.Background()
			require.NoError(t, idx.Add(ctx, []string{"a:0", "b:0"}, [][]float32{{1, 0}, {0, 1}}))
			assert.Equal(t, 2, idx.Count())
		})
	}
}

func TestNewVectorIndex_SelectsKind(t *testing.T) {
	cfg := DefaultVectorIndexConfig(4)

	idx, err := NewVectorIndex(cfg)
	require.NoError(t, err)
	_, ok := idx.(*HNSWIndex)
	assert.True(t, ok)
	idx.Close()

	cfg.Kind = VectorIndexFlat
	idx, err = NewVectorIndex(cfg)
	require.NoError(t, err)
	_, ok = idx.(*ChromemFlatIndex)
	assert.True(t, ok)
	idx.Close()

	cfg.Kind = "bogus"
	_, err = NewVectorIndex(cfg)
	assert.Error(t, err)
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)

	zero := []float32{0, 0}
	normalizeVectorInPlace(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}
