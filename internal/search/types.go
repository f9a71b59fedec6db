// Package search implements the query path: parallel lexical and
// vector retrieval against a published snapshot, score fusion,
// heuristic reranking, and result assembly.
package search

import (
	"context"

	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/store"
	"github.com/helpbase/kbengine/internal/usage"
)

// SearchResult is a single ranked hit. It is a value type: never
// mutated after creation. The reranker returns adjusted copies.
type SearchResult struct {
	DocumentID   string
	DocumentName string
	Category     string
	Chunk        *store.Chunk

	// BM25Score and VectorScore are the per-source scores scaled to
	// [0,1] within this query's result lists.
	BM25Score   float64
	VectorScore float64
	HybridScore float64

	MatchedTerms []string
}

// SnapshotProvider hands out the currently published snapshot. The
// lifecycle manager implements it.
type SnapshotProvider interface {
	Current() *lifecycle.Snapshot
	Status() lifecycle.Status
}

// UsageRecorder accepts usage records for asynchronous persistence.
type UsageRecorder interface {
	Record(ctx context.Context, query string, chunks []usage.SurfacedChunk, feedback usage.Feedback) error
}

// UsageSource reads aggregated usage data back as a secondary ranking
// and reporting signal.
type UsageSource interface {
	EffectivenessScores(ctx context.Context, documentIDs []string) (map[string]float64, error)
	TopDocuments(ctx context.Context, limit int) ([]usage.DocumentStats, error)
}

// Stats is the aggregate knowledge-base summary served by the stats
// command and MCP surface.
type Stats struct {
	State          lifecycle.State       `json:"state"`
	DocumentCount  int                   `json:"document_count"`
	ChunkCount     int                   `json:"chunk_count"`
	EmbeddingModel string                `json:"embedding_model"`
	Categories     map[string]int        `json:"categories"`
	TopDocuments   []usage.DocumentStats `json:"top_documents,omitempty"`
}
