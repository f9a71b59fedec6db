package mcpserver

import (
	"fmt"
	"time"

	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/search"
	"github.com/helpbase/kbengine/internal/usage"
)

// SearchInput is the kb_search input schema.
type SearchInput struct {
	Query            string `json:"query" jsonschema:"the support question or keywords to search for"`
	TopK             int    `json:"top_k,omitempty" jsonschema:"maximum number of results, default 5"`
	Category         string `json:"category,omitempty" jsonschema:"restrict results to one document category"`
	UseEffectiveness bool   `json:"use_effectiveness,omitempty" jsonschema:"boost documents with positive usage feedback"`
}

// SearchOutput is the kb_search output schema.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked knowledge base passages"`
}

// SearchResultOutput is one ranked passage.
type SearchResultOutput struct {
	ChunkID      string   `json:"chunk_id" jsonschema:"identifier of the passage, pass it back to kb_record_usage"`
	DocumentID   string   `json:"document_id" jsonschema:"identifier of the source document"`
	DocumentName string   `json:"document_name,omitempty" jsonschema:"human-readable document name"`
	Category     string   `json:"category,omitempty" jsonschema:"document category"`
	Text         string   `json:"text" jsonschema:"the matched passage"`
	Score        float64  `json:"score" jsonschema:"hybrid relevance score"`
	BM25Score    float64  `json:"bm25_score" jsonschema:"normalized keyword score component"`
	VectorScore  float64  `json:"vector_score" jsonschema:"normalized semantic score component"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms found in the passage"`
}

// RecordUsageInput is the kb_record_usage input schema.
type RecordUsageInput struct {
	Query    string              `json:"query" jsonschema:"the query the passages were surfaced for"`
	Feedback string              `json:"feedback,omitempty" jsonschema:"positive, negative or none (default none)"`
	Chunks   []SurfacedChunkSpec `json:"chunks" jsonschema:"the passages that were surfaced"`
}

// SurfacedChunkSpec identifies one surfaced passage, either by its
// source document or by the chunk_id a kb_search result carried.
type SurfacedChunkSpec struct {
	DocumentID string `json:"document_id,omitempty" jsonschema:"identifier of the source document"`
	ChunkID    string `json:"chunk_id,omitempty" jsonschema:"chunk identifier from a kb_search result, used when document_id is absent"`
	Excerpt    string `json:"excerpt,omitempty" jsonschema:"excerpt of the surfaced passage"`
}

// RecordUsageOutput is the kb_record_usage output schema.
type RecordUsageOutput struct {
	Recorded int `json:"recorded" jsonschema:"number of usage records accepted"`
}

// IndexStatusInput is the kb_index_status input schema (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the kb_index_status output schema.
type IndexStatusOutput struct {
	State          string         `json:"state" jsonschema:"lifecycle state: empty, building, ready, rebuilding or failed"`
	DocumentCount  int            `json:"document_count" jsonschema:"documents in the published index"`
	ChunkCount     int            `json:"chunk_count" jsonschema:"chunks in the published index"`
	Strategy       string         `json:"strategy,omitempty" jsonschema:"retrieval strategy: hybrid or lexical_only"`
	EmbeddingModel string         `json:"embedding_model,omitempty" jsonschema:"embedding model of the published index"`
	Generation     uint64         `json:"generation" jsonschema:"monotonic snapshot generation"`
	BuiltAt        string         `json:"built_at,omitempty" jsonschema:"RFC 3339 build timestamp"`
	LastError      string         `json:"last_error,omitempty" jsonschema:"failure message of the most recent rebuild"`
	Categories     map[string]int `json:"categories,omitempty" jsonschema:"document counts per category"`
}

func toSearchOutput(results []*search.SearchResult) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		out.Results = append(out.Results, SearchResultOutput{
			ChunkID:      r.Chunk.ID(),
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Category:     r.Category,
			Text:         r.Chunk.OriginalText,
			Score:        r.HybridScore,
			BM25Score:    r.BM25Score,
			VectorScore:  r.VectorScore,
			MatchedTerms: r.MatchedTerms,
		})
	}
	return out
}

func toIndexStatusOutput(status lifecycle.Status, stats search.Stats) IndexStatusOutput {
	out := IndexStatusOutput{
		State:          string(status.State),
		DocumentCount:  status.DocumentCount,
		ChunkCount:     status.ChunkCount,
		Strategy:       string(status.Strategy),
		EmbeddingModel: status.EmbeddingModel,
		Generation:     status.Generation,
		LastError:      status.LastError,
		Categories:     stats.Categories,
	}
	if !status.BuiltAt.IsZero() {
		out.BuiltAt = status.BuiltAt.Format(time.RFC3339)
	}
	return out
}

func parseFeedback(s string) (usage.Feedback, error) {
	switch s {
	case "", string(usage.FeedbackNone):
		return usage.FeedbackNone, nil
	case string(usage.FeedbackPositive):
		return usage.FeedbackPositive, nil
	case string(usage.FeedbackNegative):
		return usage.FeedbackNegative, nil
	default:
		return "", fmt.Errorf("feedback must be 'positive', 'negative' or 'none', got %q", s)
	}
}
