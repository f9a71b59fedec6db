package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helpbase/kbengine/internal/chunk"
	"github.com/helpbase/kbengine/internal/docstore"
	"github.com/helpbase/kbengine/internal/embed"
	"github.com/helpbase/kbengine/internal/kberr"
	"github.com/helpbase/kbengine/internal/store"
)

// ManagerConfig configures index construction.
type ManagerConfig struct {
	// ChunkOptions control document splitting.
	ChunkOptions chunk.Options

	// BM25 tunes lexical scoring.
	BM25 store.BM25Config

	// VectorKind selects the vector index: "hnsw" or "flat".
	VectorKind string
}

// DefaultManagerConfig returns the stock build configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ChunkOptions: chunk.DefaultOptions(),
		BM25:         store.DefaultBM25Config(),
		VectorKind:   store.VectorIndexHNSW,
	}
}

// Manager owns the index lifecycle: Empty -> Building -> Ready ->
// Rebuilding -> Ready, with a failed build retaining the previous
// Ready snapshot. Rebuilds are always full and run on a single
// worker; triggers arriving mid-build coalesce into exactly one
// follow-up rebuild.
type Manager struct {
	config   ManagerConfig
	docs     docstore.DocumentStore
	embedder embed.Embedder // nil forces lexical-only snapshots
	chunker  *chunk.Chunker
	logger   *slog.Logger

	snapshot atomic.Pointer[Snapshot]

	// buildMu serializes builds between the worker and direct Rebuild
	// callers.
	buildMu sync.Mutex

	mu           sync.Mutex
	state        State
	lastErr      string
	generation   uint64
	configWarned bool

	// trigger has capacity 1: a send while a rebuild is in flight
	// parks one follow-up rebuild, further sends are dropped.
	trigger chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// ErrNilDocumentStore is returned when no document store is provided.
var ErrNilDocumentStore = errors.New("nil document store")

// NewManager creates a lifecycle manager. The embedder may be nil, in
// which case every snapshot is built lexical-only.
func NewManager(cfg ManagerConfig, docs docstore.DocumentStore, embedder embed.Embedder, logger *slog.Logger) (*Manager, error) {
	if docs == nil {
		return nil, ErrNilDocumentStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VectorKind == "" {
		cfg.VectorKind = store.VectorIndexHNSW
	}
	return &Manager{
		config:   cfg,
		docs:     docs,
		embedder: embedder,
		chunker:  chunk.New(cfg.ChunkOptions),
		logger:   logger,
		state:    StateEmpty,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the rebuild worker. Calling it more than once is a
// no-op.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.worker(ctx)
	})
}

// Stop shuts the worker down and releases the published snapshot's
// resources. Queries must have drained before Stop.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		select {
		case <-m.doneCh:
		case <-time.After(30 * time.Second):
			m.logger.Warn("rebuild_worker_stop_timeout")
		}
		if snap := m.snapshot.Load(); snap != nil {
			if err := snap.Close(); err != nil {
				m.logger.Warn("snapshot_close_failed", slog.String("error", err.Error()))
			}
		}
	})
}

// NotifyChange requests a rebuild. Duplicate notifications while one
// is in flight coalesce into a single follow-up rebuild.
func (m *Manager) NotifyChange() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Current returns the published snapshot, or nil before the first
// successful build.
func (m *Manager) Current() *Snapshot {
	return m.snapshot.Load()
}

// Status reports the lifecycle state and published snapshot identity.
func (m *Manager) Status() Status {
	m.mu.Lock()
	status := Status{State: m.state, LastError: m.lastErr}
	m.mu.Unlock()

	if snap := m.snapshot.Load(); snap != nil {
		status.ChunkCount = snap.ChunkCount()
		status.DocumentCount = snap.DocumentCount()
		status.EmbeddingModel = snap.EmbeddingModel
		status.BuiltAt = snap.BuiltAt
		status.Strategy = snap.Strategy
		status.Generation = snap.Generation
	}
	return status
}

func (m *Manager) worker(ctx context.Context) {
	defer close(m.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-m.trigger:
			// Failure keeps the previous snapshot serving; it was
			// already logged with its cause.
			_ = m.Rebuild(ctx)
		}
	}
}

// Rebuild runs one full rebuild synchronously and publishes the result
// atomically. On failure the previously published snapshot keeps
// serving and the error is reported without crashing the query path.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	start := time.Now()

	m.mu.Lock()
	if m.snapshot.Load() == nil {
		m.state = StateBuilding
	} else {
		m.state = StateRebuilding
	}
	m.mu.Unlock()

	snap, err := m.build(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateFailed
		m.lastErr = err.Error()
		m.logger.Warn("rebuild_failed, previous snapshot retained",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
		return err
	}

	// Publication is a single pointer swap; readers never observe a
	// half-built index. The replaced snapshot is left for in-flight
	// queries and reclaimed by the garbage collector.
	m.snapshot.Store(snap)
	m.state = StateReady
	m.lastErr = ""

	m.logger.Info("snapshot_published",
		slog.Uint64("generation", snap.Generation),
		slog.Int("documents", snap.DocumentCount()),
		slog.Int("chunks", snap.ChunkCount()),
		slog.String("strategy", string(snap.Strategy)),
		slog.String("embedding_model", snap.EmbeddingModel),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (m *Manager) build(ctx context.Context) (*Snapshot, error) {
	docs, err := m.docs.ListActiveDocuments(ctx)
	if err != nil {
		return nil, kberr.BuildError("list active documents", err)
	}

	var chunks []*store.Chunk
	infos := make(map[string]DocumentInfo, len(docs))
	for _, doc := range docs {
		if !doc.Active {
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			m.logger.Warn("document_skipped",
				slog.String("document_id", doc.ID),
				slog.String("reason", "empty text"))
			continue
		}
		docChunks := m.chunker.Chunk(doc)
		if len(docChunks) == 0 {
			m.logger.Warn("document_skipped",
				slog.String("document_id", doc.ID),
				slog.String("reason", "no chunks produced"))
			continue
		}
		chunks = append(chunks, docChunks...)
		infos[doc.ID] = DocumentInfo{Name: doc.Name, Category: doc.Category}
	}

	strategy := m.selectStrategy(ctx)

	lexical, err := store.NewBleveBM25Index(m.config.BM25)
	if err != nil {
		return nil, kberr.BuildError("create lexical index", err)
	}
	if err := lexical.Index(ctx, chunks); err != nil {
		_ = lexical.Close()
		return nil, kberr.BuildError("index chunks", err)
	}

	var (
		vector         store.VectorIndex
		embedder       embed.Embedder
		embeddingModel string
	)
	if strategy == StrategyHybrid {
		vector, err = m.buildVectorIndex(ctx, chunks)
		if err != nil {
			_ = lexical.Close()
			return nil, err
		}
		embedder = m.embedder
		embeddingModel = m.embedder.ModelName()
	}

	m.mu.Lock()
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	return NewSnapshot(SnapshotParams{
		Generation:     generation,
		BuiltAt:        time.Now(),
		Strategy:       strategy,
		EmbeddingModel: embeddingModel,
		Chunks:         chunks,
		Documents:      infos,
		Lexical:        lexical,
		Vector:         vector,
		Embedder:       embedder,
	}), nil
}

// selectStrategy decides the retrieval mode once per build. The
// lexical-only fallback is logged a single time, not per query.
func (m *Manager) selectStrategy(ctx context.Context) Strategy {
	if m.embedder != nil && m.embedder.Available(ctx) {
		return StrategyHybrid
	}

	m.mu.Lock()
	warned := m.configWarned
	m.configWarned = true
	m.mu.Unlock()
	if !warned {
		m.logger.Warn("no embedding provider available, serving lexical-only search",
			slog.String("code", kberr.CodeNoEmbedder))
	}
	return StrategyLexicalOnly
}

func (m *Manager) buildVectorIndex(ctx context.Context, chunks []*store.Chunk) (store.VectorIndex, error) {
	cfg := store.DefaultVectorIndexConfig(m.embedder.Dimensions())
	cfg.Kind = m.config.VectorKind

	vector, err := store.NewVectorIndex(cfg)
	if err != nil {
		return nil, kberr.BuildError("create vector index", err)
	}
	if len(chunks) == 0 {
		return vector, nil
	}

	// Embeddings use the contextualized text; the positional prefix
	// measurably improves retrieval for context-free fragments.
	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID()
		texts[i] = c.ContextualizedText
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		_ = vector.Close()
		return nil, kberr.New(kberr.CodeEmbeddingFailed, fmt.Sprintf("embed %d chunks", len(chunks)), err)
	}
	if err := vector.Add(ctx, ids, vectors); err != nil {
		_ = vector.Close()
		return nil, kberr.BuildError("add vectors", err)
	}
	return vector, nil
}
