package store

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

const flatCollectionName = "chunks"

// ChromemFlatIndex implements VectorIndex with an exhaustive cosine scan
// over a chromem-go in-memory collection. Exact results; fine for the
// corpus sizes a single support knowledge base reaches.
type ChromemFlatIndex struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	config     VectorIndexConfig
	closed     bool
}

// NewChromemFlatIndex creates an empty flat vector index.
func NewChromemFlatIndex(cfg VectorIndexConfig) (*ChromemFlatIndex, error) {
	db := chromem.NewDB()

	// Embeddings are always supplied precomputed, so the collection's
	// embedding function is never invoked.
	collection, err := db.GetOrCreateCollection(flatCollectionName, nil, func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("flat index requires precomputed embeddings")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &ChromemFlatIndex{
		db:         db,
		collection: collection,
		config:     cfg,
	}, nil
}

// Add inserts vectors keyed by chunk ID.
func (s *ChromemFlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}

	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	docs := make([]chromem.Document, 0, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != s.config.Dimensions {
			return ErrDimensionMismatch{
				Expected: s.config.Dimensions,
				Got:      len(vectors[i]),
			}
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   id, // chromem requires content; chunk text lives in the snapshot
			Embedding: vec,
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	return nil
}

// Search finds the k nearest neighbors of the query vector.
func (s *ChromemFlatIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	count := s.collection.Count()
	if count == 0 {
		return []*VectorResult{}, nil
	}

	// chromem rejects nResults larger than the collection.
	if k > count {
		k = count
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	hits, err := s.collection.QueryEmbedding(ctx, normalizedQuery, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	results := make([]*VectorResult, 0, len(hits))
	for _, hit := range hits {
		// chromem reports cosine similarity in [-1,1]; map to the same
		// distance/score convention as the HNSW index.
		distance := 1.0 - hit.Similarity
		results = append(results, &VectorResult{
			ChunkID:  hit.ID,
			Distance: distance,
			Score:    distanceToScore(distance),
		})
	}

	return results, nil
}

// Count returns the number of stored vectors.
func (s *ChromemFlatIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	return s.collection.Count()
}

// Close releases resources.
func (s *ChromemFlatIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.collection = nil
	s.db = nil

	return nil
}

// Verify interface implementation
var _ VectorIndex = (*ChromemFlatIndex)(nil)
