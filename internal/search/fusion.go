package search

import (
	"sort"

	"github.com/helpbase/kbengine/internal/store"
)

// FusedResult carries one chunk's combined retrieval scores before
// enrichment into a SearchResult.
type FusedResult struct {
	ChunkID string

	// BM25Score and VectorScore are max-scaled to [0,1] within their
	// source lists. RawVectorScore keeps the unscaled cosine
	// similarity for tie-breaking.
	BM25Score      float64
	VectorScore    float64
	RawVectorScore float64
	HybridScore    float64

	MatchedTerms []string
}

// Fuse combines lexical and vector hits into a single ranking. Each
// non-empty list is scaled by its maximum score (a zero maximum
// contributes zero for every chunk), then combined linearly over the
// union of chunk IDs:
//
//	hybrid = bm25Weight*bm25 + vectorWeight*vector
//
// A chunk missing from one source scores 0 for that source. Results
// below minScore are dropped. Ties break toward the higher raw vector
// score, then the smaller chunk ID, so ordering is deterministic.
func Fuse(bm25 []*store.BM25Result, vec []*store.VectorResult, bm25Weight, vectorWeight, minScore float64) []*FusedResult {
	byID := make(map[string]*FusedResult, len(bm25)+len(vec))
	getOrCreate := func(chunkID string) *FusedResult {
		if f, ok := byID[chunkID]; ok {
			return f
		}
		f := &FusedResult{ChunkID: chunkID}
		byID[chunkID] = f
		return f
	}

	var maxBM25 float64
	for _, r := range bm25 {
		if r.Score > maxBM25 {
			maxBM25 = r.Score
		}
	}
	for _, r := range bm25 {
		f := getOrCreate(r.ChunkID)
		if maxBM25 > 0 {
			f.BM25Score = r.Score / maxBM25
		}
		f.MatchedTerms = r.MatchedTerms
	}

	var maxVec float64
	for _, r := range vec {
		if float64(r.Score) > maxVec {
			maxVec = float64(r.Score)
		}
	}
	for _, r := range vec {
		f := getOrCreate(r.ChunkID)
		f.RawVectorScore = float64(r.Score)
		if maxVec > 0 {
			f.VectorScore = float64(r.Score) / maxVec
		}
	}

	results := make([]*FusedResult, 0, len(byID))
	for _, f := range byID {
		f.HybridScore = bm25Weight*f.BM25Score + vectorWeight*f.VectorScore
		if f.HybridScore >= minScore {
			results = append(results, f)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.HybridScore != b.HybridScore {
			return a.HybridScore > b.HybridScore
		}
		if a.RawVectorScore != b.RawVectorScore {
			return a.RawVectorScore > b.RawVectorScore
		}
		return a.ChunkID < b.ChunkID
	})

	return results
}
