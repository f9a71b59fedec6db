package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	index "github.com/blevesearch/bleve_index_api"
)

// TextAnalyzerName is the name of the analyzer applied to chunk text:
// unicode word tokenization, lowercasing, English stopword removal and
// Porter stemming. Re-analyzing the same text always yields the same
// tokens; queries go through the identical pipeline.
const TextAnalyzerName = "kb_text"

// BleveBM25Index wraps an in-memory Bleve index configured for BM25
// scoring. One instance belongs to exactly one snapshot and is never
// mutated after the snapshot is published.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	config BM25Config
	closed bool
}

// bleveChunkDoc is the document shape handed to Bleve.
type bleveChunkDoc struct {
	Content string `json:"content"`
}

// NewBleveBM25Index creates an empty in-memory BM25 index.
//
// Bleve exposes the BM25 k1 and b parameters as package-level
// variables, so they are process-global: the last index created wins.
// Every index in this process is built from the same loaded config,
// which makes that acceptable.
func NewBleveBM25Index(config BM25Config) (*BleveBM25Index, error) {
	if config.K1 <= 0 {
		config.K1 = DefaultBM25Config().K1
	}
	if config.B <= 0 {
		config.B = DefaultBM25Config().B
	}
	search.BM25_k1 = config.K1
	search.BM25_b = config.B

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BleveBM25Index{
		index:  idx,
		config: config,
	}, nil
}

// createIndexMapping creates the Bleve index mapping with BM25 scoring.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = TextAnalyzerName
	indexMapping.ScoringModel = index.BM25Scoring

	return indexMapping, nil
}

// Index adds chunks to the index. The contextualized text is indexed so
// that the document name and category participate in lexical matching.
func (b *BleveBM25Index) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, chunk := range chunks {
		doc := bleveChunkDoc{Content: chunk.ContextualizedText}
		if err := batch.Index(chunk.ID(), doc); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", chunk.ID(), err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}

// Search returns up to limit chunks matching the query, best first.
// Bleve only returns positive-score hits, so everything returned has
// a BM25 score above zero.
func (b *BleveBM25Index) Search(ctx context.Context, queryStr string, limit int) ([]*BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // for matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}

	return results, nil
}

// Count returns the number of indexed chunks.
func (b *BleveBM25Index) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	docCount, _ := b.index.DocCount()
	return int(docCount)
}

// Close closes the index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// Verify interface implementation
var _ LexicalIndex = (*BleveBM25Index)(nil)
