package store

import (
	"context"
	"testing"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunk(docID string, idx int, text string) *Chunk {
	return &Chunk{
		DocumentID:         docID,
		Index:              idx,
		OriginalText:       text,
		ContextualizedText: text,
		StartOffset:        0,
		Length:             len(text),
	}
}

func TestBleveBM25Index_IndexAndSearch(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	chunks := []*Chunk{
		newTestChunk("doc1", 0, "Refunds: Contact billing@x.com within 30 days."),
		newTestChunk("doc2", 0, "Shipping takes five business days for standard orders."),
		newTestChunk("doc3", 0, "Password reset links expire after one hour."),
	}
	require.NoError(t, idx.Index(ctx, chunks))

	results, err := idx.Search(ctx, "refund", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc1:0", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveBM25Index_StemmingMatchesVariants(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		newTestChunk("doc1", 0, "We process refunds every Friday."),
	}))

	// Porter stemming maps "refunding" and "refunds" to the same term.
	results, err := idx.Search(ctx, "refunding", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1:0", results[0].ChunkID)
}

func TestBleveBM25Index_EmptyQuery(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		newTestChunk("doc1", 0, "some content"),
	}))

	results, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveBM25Index_NoMatchReturnsEmpty(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		newTestChunk("doc1", 0, "Refunds: Contact billing@x.com within 30 days."),
	}))

	results, err := idx.Search(ctx, "xyzzy", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveBM25Index_Count(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	assert.Equal(t, 0, idx.Count())

	require.NoError(t, idx.Index(ctx, []*Chunk{
		newTestChunk("doc1", 0, "first chunk"),
		newTestChunk("doc1", 1, "second chunk"),
	}))
	assert.Equal(t, 2, idx.Count())
}

func TestNewBleveBM25Index_AppliesScoringParameters(t *testing.T) {
	idx, err := NewBleveBM25Index(BM25Config{K1: 1.8, B: 0.6})
	require.NoError(t, err)
	defer idx.Close()

	// Bleve reads k1 and b from package variables at scoring time.
	assert.Equal(t, 1.8, search.BM25_k1)
	assert.Equal(t, 0.6, search.BM25_b)
}

func TestNewBleveBM25Index_ZeroConfigFallsBackToDefaults(t *testing.T) {
	idx, err := NewBleveBM25Index(BM25Config{})
	require.NoError(t, err)
	defer idx.Close()

	want := DefaultBM25Config()
	assert.Equal(t, want.K1, search.BM25_k1)
	assert.Equal(t, want.B, search.BM25_b)
}

func TestBleveBM25Index_SearchAfterClose(t *testing.T) {
	idx, err := NewBleveBM25Index(DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "query", 10)
	assert.Error(t, err)
}

func TestParseChunkID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		docID   string
		index   int
		wantErr bool
	}{
		{name: "simple", id: "doc1:3", docID: "doc1", index: 3},
		{name: "doc id with colon", id: "ns:doc1:0", docID: "ns:doc1", index: 0},
		{name: "missing separator", id: "doc1", wantErr: true},
		{name: "non numeric index", id: "doc1:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID, index, err := ParseChunkID(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.docID, docID)
			assert.Equal(t, tt.index, index)
		})
	}
}
