package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/store"
	"github.com/helpbase/kbengine/internal/usage"
)

// Engine is the query-serving service object. It is constructed with
// explicit dependencies and holds no global state; every search reads
// exactly one published snapshot for its full duration.
type Engine struct {
	snapshots SnapshotProvider
	recorder  UsageRecorder
	usageData UsageSource
	reranker  Reranker
	config    Config
	logger    *slog.Logger
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithReranker sets the post-fusion reranking stage.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithUsageRecorder sets the sink for record_usage calls.
func WithUsageRecorder(r UsageRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithUsageSource sets the read side of the usage store, enabling the
// effectiveness ranking signal and top-document stats.
func WithUsageSource(s UsageSource) EngineOption {
	return func(e *Engine) {
		e.usageData = s
	}
}

// NewEngine creates the search engine. The snapshot provider is
// required; reranker and usage collaborators are optional.
func NewEngine(snapshots SnapshotProvider, config Config, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("%w: snapshot provider is required", ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = DefaultTopK
	}
	if config.MaxTopK <= 0 {
		config.MaxTopK = DefaultMaxTopK
	}
	e := &Engine{
		snapshots: snapshots,
		config:    config,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HybridSearch runs lexical and vector retrieval in parallel against
// the current snapshot, fuses the scores, and returns up to opts.TopK
// results sorted by hybrid score descending. An empty or unbuilt index
// yields an empty slice, never an error; callers can inspect
// IndexStatus for the reason.
func (e *Engine) HybridSearch(ctx context.Context, query string, opts Options) ([]*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return []*SearchResult{}, nil
	}

	snap := e.snapshots.Current()
	if snap == nil || snap.ChunkCount() == 0 {
		return []*SearchResult{}, nil
	}

	opts = e.applyDefaults(opts)
	if opts.TopK <= 0 {
		return []*SearchResult{}, nil
	}

	weights := *opts.Weights
	if snap.Strategy == lifecycle.StrategyLexicalOnly {
		weights.Vector = 0
	}

	candidates := opts.TopK * candidateMultiplier
	bm25Results, vecResults, err := e.retrieve(ctx, snap, query, weights, candidates)
	if err != nil {
		return nil, err
	}

	fused := Fuse(bm25Results, vecResults, weights.BM25, weights.Vector, *opts.MinScore)
	results := e.assemble(snap, fused)

	if opts.Category != "" {
		results = filterCategory(results, opts.Category)
	}

	if e.reranker != nil {
		results = e.reranker.Rerank(query, results)
	}

	if opts.UseEffectiveness {
		results = e.applyEffectiveness(ctx, results)
	}

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	e.logger.Debug("hybrid_search_complete",
		slog.String("query", query),
		slog.Uint64("generation", snap.Generation),
		slog.Int("bm25_hits", len(bm25Results)),
		slog.Int("vector_hits", len(vecResults)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// RecordUsage hands the surfaced chunks to the usage recorder. The
// recorder persists asynchronously; this call only enqueues.
func (e *Engine) RecordUsage(ctx context.Context, query string, results []*SearchResult, feedback usage.Feedback) error {
	if e.recorder == nil || len(results) == 0 {
		return nil
	}

	chunks := make([]usage.SurfacedChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, usage.SurfacedChunk{
			DocumentID: r.DocumentID,
			Excerpt:    usage.TruncateExcerpt(r.Chunk.OriginalText),
		})
	}
	return e.recorder.Record(ctx, query, chunks, feedback)
}

// IndexStatus reports the lifecycle state of the index.
func (e *Engine) IndexStatus() lifecycle.Status {
	return e.snapshots.Status()
}

// Stats summarizes the published snapshot plus usage aggregates.
func (e *Engine) Stats(ctx context.Context) Stats {
	status := e.snapshots.Status()
	stats := Stats{
		State:          status.State,
		DocumentCount:  status.DocumentCount,
		ChunkCount:     status.ChunkCount,
		EmbeddingModel: status.EmbeddingModel,
		Categories:     map[string]int{},
	}

	if snap := e.snapshots.Current(); snap != nil {
		for _, info := range snap.Documents() {
			category := info.Category
			if category == "" {
				category = "general"
			}
			stats.Categories[category]++
		}
	}

	if e.usageData != nil {
		top, err := e.usageData.TopDocuments(ctx, 5)
		if err != nil {
			e.logger.Warn("top_documents_unavailable", slog.String("error", err.Error()))
		} else {
			stats.TopDocuments = top
		}
	}

	return stats
}

// applyDefaults fills unset options from the engine config. TopK is
// honored literally so len(results) <= k holds for every k >= 0; use
// DefaultOptions for the stock value.
func (e *Engine) applyDefaults(opts Options) Options {
	if opts.TopK > e.config.MaxTopK {
		opts.TopK = e.config.MaxTopK
	}
	if opts.Weights == nil {
		w := e.config.DefaultWeights
		opts.Weights = &w
	}
	if opts.MinScore == nil {
		m := e.config.MinScore
		opts.MinScore = &m
	}
	return opts
}

// retrieve runs the two retrieval legs concurrently. A single failing
// leg degrades to the other's results with a warning; only both legs
// failing surfaces an error.
func (e *Engine) retrieve(ctx context.Context, snap *lifecycle.Snapshot, query string, weights Weights, limit int) (
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	err error,
) {
	useVector := weights.Vector > 0 && snap.Vector != nil && snap.Embedder != nil

	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = snap.Lexical.Search(gctx, query, limit)
		if searchErr != nil {
			bm25Err = searchErr
		}
		return nil
	})

	if useVector {
		g.Go(func() error {
			embedding, embedErr := snap.Embedder.Embed(gctx, query)
			if embedErr != nil {
				vecErr = embedErr
				return nil
			}
			var searchErr error
			vecResults, searchErr = snap.Vector.Search(gctx, embedding, limit)
			if searchErr != nil {
				vecErr = searchErr
			}
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if bm25Err != nil && (!useVector || vecErr != nil) {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}
	if bm25Err != nil {
		e.logger.Warn("lexical_search_failed, serving vector results only",
			slog.String("error", bm25Err.Error()))
		bm25Results = nil
	}
	if vecErr != nil {
		e.logger.Warn("vector_search_failed, serving lexical results only",
			slog.String("error", vecErr.Error()))
		vecResults = nil
	}

	return bm25Results, vecResults, nil
}

// assemble resolves fused chunk IDs against the snapshot. A fused hit
// whose chunk is missing from the snapshot is dropped; by construction
// both indexes were built from the same chunk set, so this only guards
// against bugs.
func (e *Engine) assemble(snap *lifecycle.Snapshot, fused []*FusedResult) []*SearchResult {
	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		chunk, ok := snap.Chunk(f.ChunkID)
		if !ok {
			e.logger.Warn("fused_chunk_missing", slog.String("chunk_id", f.ChunkID))
			continue
		}
		info, _ := snap.Document(chunk.DocumentID)
		results = append(results, &SearchResult{
			DocumentID:   chunk.DocumentID,
			DocumentName: info.Name,
			Category:     info.Category,
			Chunk:        chunk,
			BM25Score:    f.BM25Score,
			VectorScore:  f.VectorScore,
			HybridScore:  f.HybridScore,
			MatchedTerms: f.MatchedTerms,
		})
	}
	return results
}

func filterCategory(results []*SearchResult, category string) []*SearchResult {
	filtered := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if strings.EqualFold(r.Category, category) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// applyEffectiveness boosts each result by its document's usage signal
// and re-sorts. Unavailable usage data leaves the ranking unchanged.
func (e *Engine) applyEffectiveness(ctx context.Context, results []*SearchResult) []*SearchResult {
	if e.usageData == nil || len(results) == 0 {
		return results
	}

	seen := make(map[string]struct{}, len(results))
	docIDs := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.DocumentID]; ok {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		docIDs = append(docIDs, r.DocumentID)
	}

	scores, err := e.usageData.EffectivenessScores(ctx, docIDs)
	if err != nil {
		e.logger.Warn("effectiveness_scores_unavailable", slog.String("error", err.Error()))
		return results
	}

	boosted := make([]*SearchResult, len(results))
	for i, r := range results {
		adjusted := *r
		adjusted.HybridScore = r.HybridScore * (1 + effectivenessBoost*scores[r.DocumentID])
		boosted[i] = &adjusted
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		a, b := boosted[i], boosted[j]
		if a.HybridScore != b.HybridScore {
			return a.HybridScore > b.HybridScore
		}
		return a.VectorScore > b.VectorScore
	})

	return boosted
}
