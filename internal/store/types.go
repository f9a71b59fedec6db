// Package store provides the per-snapshot index structures: a BM25 lexical
// index backed by Bleve and two interchangeable vector indexes (HNSW
// approximate, chromem flat exhaustive).
package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Document is the engine's read-only view of a knowledge-base document.
// The document store owns the entity; the engine only consumes it.
type Document struct {
	ID          string
	Name        string
	Text        string
	Category    string
	Active      bool
	ContentHash string
}

// Chunk is a bounded slice of one document's text, the unit of indexing
// and retrieval. OriginalText is the exact substring of the document;
// ContextualizedText carries the positional prefix used for indexing
// and embedding.
type Chunk struct {
	DocumentID         string
	Index              int
	OriginalText       string
	ContextualizedText string
	StartOffset        int
	Length             int
}

// ID returns the chunk's identity within a snapshot.
func (c *Chunk) ID() string {
	return c.DocumentID + ":" + strconv.Itoa(c.Index)
}

// ParseChunkID splits a chunk ID back into document ID and chunk index.
func ParseChunkID(id string) (docID string, index int, err error) {
	cut := strings.LastIndexByte(id, ':')
	if cut < 0 {
		return "", 0, fmt.Errorf("malformed chunk id %q", id)
	}
	index, err = strconv.Atoi(id[cut+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed chunk id %q: %w", id, err)
	}
	return id[:cut], index, nil
}

// BM25Result is a single lexical search hit.
type BM25Result struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a single semantic search hit.
type VectorResult struct {
	ChunkID  string
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// LexicalIndex scores chunks against a query using BM25.
type LexicalIndex interface {
	// Index adds chunks to the index.
	Index(ctx context.Context, chunks []*Chunk) error

	// Search returns up to limit chunks with positive BM25 score,
	// best first.
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Count returns the number of indexed chunks.
	Count() int

	Close() error
}

// VectorIndex stores chunk embeddings and answers nearest-neighbor queries.
type VectorIndex interface {
	// Add inserts vectors keyed by chunk ID.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Count returns the number of stored vectors.
	Count() int

	Close() error
}

// BM25Config configures lexical scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.5,
		B:  0.75,
	}
}

// Vector index kinds.
const (
	VectorIndexHNSW = "hnsw"
	VectorIndexFlat = "flat"
)

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding dimension; all vectors must match.
	Dimensions int

	// Kind selects the implementation: "hnsw" (approximate) or
	// "flat" (exhaustive).
	Kind string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible defaults for the vector index.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Kind:       VectorIndexHNSW,
		M:          16,
		EfSearch:   20,
	}
}

// NewVectorIndex constructs the vector index named by cfg.Kind.
func NewVectorIndex(cfg VectorIndexConfig) (VectorIndex, error) {
	switch cfg.Kind {
	case VectorIndexFlat:
		return NewChromemFlatIndex(cfg)
	case VectorIndexHNSW, "":
		return NewHNSWIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown vector index kind %q", cfg.Kind)
	}
}

// ErrDimensionMismatch indicates a vector with the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
