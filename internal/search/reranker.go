package search

import (
	"sort"
	"strings"
)

// Reranker adjusts fused result scores for a query. Implementations
// must be pure functions of their inputs so rankings stay
// deterministic; an LLM-backed reranker can replace the heuristic one
// without changing this contract.
type Reranker interface {
	Rerank(query string, results []*SearchResult) []*SearchResult
}

// Reranking weights. The fused score dominates; the relevance estimate
// nudges ordering toward chunks that literally contain the query words
// and away from very long passages.
const (
	rerankHybridWeight    = 0.7
	rerankRelevanceWeight = 0.3

	coverageWeight      = 0.8
	lengthPenaltyWeight = 0.2
	lengthPenaltyLimit  = 1000.0
)

// HeuristicReranker blends the hybrid score with a cheap lexical
// relevance estimate: word coverage of the query plus a penalty for
// long chunks. No I/O, no state.
type HeuristicReranker struct{}

var _ Reranker = HeuristicReranker{}

// Rerank returns a reordered copy of results with adjusted hybrid
// scores. The input slice and its results are left untouched.
func (HeuristicReranker) Rerank(query string, results []*SearchResult) []*SearchResult {
	if len(results) <= 1 {
		return results
	}

	queryWords := wordSet(query)

	reranked := make([]*SearchResult, len(results))
	for i, r := range results {
		adjusted := *r
		relevance := relevanceScore(queryWords, r.Chunk.OriginalText)
		adjusted.HybridScore = rerankHybridWeight*r.HybridScore + rerankRelevanceWeight*relevance
		reranked[i] = &adjusted
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		a, b := reranked[i], reranked[j]
		if a.HybridScore != b.HybridScore {
			return a.HybridScore > b.HybridScore
		}
		return a.VectorScore > b.VectorScore
	})

	return reranked
}

// relevanceScore estimates how well a chunk answers the query: the
// fraction of query words present in the chunk, discounted for chunks
// longer than lengthPenaltyLimit bytes.
func relevanceScore(queryWords map[string]struct{}, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}

	chunkWords := wordSet(text)
	matched := 0
	for w := range queryWords {
		if _, ok := chunkWords[w]; ok {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(queryWords))

	lengthPenalty := 1.0 - float64(len(text))/lengthPenaltyLimit
	if lengthPenalty < 0 {
		lengthPenalty = 0
	}

	score := coverageWeight*coverage + lengthPenaltyWeight*lengthPenalty
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
