// Package lifecycle owns index construction and publication. A single
// rebuild worker turns the active document set into an immutable
// Snapshot published by atomic pointer swap; queries keep reading the
// snapshot that was current when they started.
package lifecycle

import (
	"time"

	"github.com/helpbase/kbengine/internal/embed"
	"github.com/helpbase/kbengine/internal/store"
)

// State is the lifecycle manager's externally visible state.
type State string

const (
	StateEmpty      State = "empty"
	StateBuilding   State = "building"
	StateReady      State = "ready"
	StateRebuilding State = "rebuilding"
	StateFailed     State = "failed"
)

// Strategy selects the retrieval mode for a snapshot. It is decided
// once at build time from embedder availability, never per query.
type Strategy string

const (
	// StrategyHybrid fuses BM25 and vector retrieval.
	StrategyHybrid Strategy = "hybrid"

	// StrategyLexicalOnly serves BM25 results alone. Chosen when no
	// embedding provider is available at build time.
	StrategyLexicalOnly Strategy = "lexical_only"
)

// DocumentInfo is the snapshot's read-only view of an indexed document.
type DocumentInfo struct {
	Name     string
	Category string
}

// Snapshot is the atomic bundle served to queries: the chunk set, both
// indexes, and the embedding model identity they were built with.
// Snapshots are immutable after construction and safely shared by any
// number of concurrent readers.
type Snapshot struct {
	Generation     uint64
	BuiltAt        time.Time
	Strategy       Strategy
	EmbeddingModel string

	Lexical  store.LexicalIndex
	Vector   store.VectorIndex
	Embedder embed.Embedder

	chunks     []*store.Chunk
	chunksByID map[string]*store.Chunk
	documents  map[string]DocumentInfo
}

// SnapshotParams collects everything a snapshot is built from.
type SnapshotParams struct {
	Generation     uint64
	BuiltAt        time.Time
	Strategy       Strategy
	EmbeddingModel string
	Chunks         []*store.Chunk
	Documents      map[string]DocumentInfo
	Lexical        store.LexicalIndex
	Vector         store.VectorIndex
	Embedder       embed.Embedder
}

// NewSnapshot assembles an immutable snapshot from built indexes.
func NewSnapshot(p SnapshotParams) *Snapshot {
	byID := make(map[string]*store.Chunk, len(p.Chunks))
	for _, c := range p.Chunks {
		byID[c.ID()] = c
	}
	docs := p.Documents
	if docs == nil {
		docs = map[string]DocumentInfo{}
	}
	return &Snapshot{
		Generation:     p.Generation,
		BuiltAt:        p.BuiltAt,
		Strategy:       p.Strategy,
		EmbeddingModel: p.EmbeddingModel,
		Lexical:        p.Lexical,
		Vector:         p.Vector,
		Embedder:       p.Embedder,
		chunks:         p.Chunks,
		chunksByID:     byID,
		documents:      docs,
	}
}

// Chunk looks up a chunk by its "docID:index" identity.
func (s *Snapshot) Chunk(id string) (*store.Chunk, bool) {
	c, ok := s.chunksByID[id]
	return c, ok
}

// Chunks returns the snapshot's chunk list. Callers must not mutate it.
func (s *Snapshot) Chunks() []*store.Chunk {
	return s.chunks
}

// Document returns the info for an indexed document.
func (s *Snapshot) Document(id string) (DocumentInfo, bool) {
	d, ok := s.documents[id]
	return d, ok
}

// Documents returns the indexed documents keyed by ID. Callers must
// not mutate the map.
func (s *Snapshot) Documents() map[string]DocumentInfo {
	return s.documents
}

// ChunkCount returns the number of indexed chunks.
func (s *Snapshot) ChunkCount() int {
	return len(s.chunks)
}

// DocumentCount returns the number of indexed documents.
func (s *Snapshot) DocumentCount() int {
	return len(s.documents)
}

// Close releases the snapshot's index resources. Only the lifecycle
// manager calls this, and only for snapshots no longer published.
func (s *Snapshot) Close() error {
	var firstErr error
	if s.Lexical != nil {
		if err := s.Lexical.Close(); err != nil {
			firstErr = err
		}
	}
	if s.Vector != nil {
		if err := s.Vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports the manager's state plus the published snapshot's
// identity, shaped for the get_index_status operation.
type Status struct {
	State          State     `json:"state"`
	ChunkCount     int       `json:"chunk_count"`
	DocumentCount  int       `json:"document_count"`
	EmbeddingModel string    `json:"embedding_model"`
	BuiltAt        time.Time `json:"built_at"`
	Strategy       Strategy  `json:"strategy"`
	Generation     uint64    `json:"generation"`
	LastError      string    `json:"last_error,omitempty"`
}
