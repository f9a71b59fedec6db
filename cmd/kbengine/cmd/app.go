package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/docstore"
	"github.com/helpbase/kbengine/internal/embed"
	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/search"
	"github.com/helpbase/kbengine/internal/usage"
)

// app wires the engine's collaborators together for one CLI invocation:
// config -> document store -> embedder -> lifecycle manager -> search
// engine, with optional usage tracking and a corpus watcher.
type app struct {
	cfg     *config.Config
	docs    *docstore.FileStore
	manager *lifecycle.Manager
	engine  *search.Engine
	usage   *usage.Store
	tracker *usage.Tracker
	watcher *docstore.Watcher
	logger  *slog.Logger
}

// newApp builds the full engine stack for the knowledge base at root.
// The embedder is optional: when the configured provider cannot be
// reached the stack comes up lexical-only instead of failing.
func newApp(ctx context.Context, root string, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return newAppWithConfig(ctx, cfg, logger)
}

func newAppWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.docs = docstore.NewFileStore(cfg.Paths.DocsDir)

	embedder, err := embed.NewEmbedder(ctx, embed.FactoryConfig{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		OllamaHost: cfg.Embeddings.OllamaHost,
		CacheSize:  cfg.Embeddings.CacheSize,
	}, logger)
	if err != nil {
		// Serve keyword-only rather than refusing to start.
		logger.Warn("embedding provider unavailable, serving lexical-only",
			slog.String("provider", cfg.Embeddings.Provider),
			slog.String("error", err.Error()))
		embedder = nil
	}

	managerCfg := lifecycle.DefaultManagerConfig()
	managerCfg.ChunkOptions.ChunkSize = cfg.Chunking.ChunkSize
	managerCfg.ChunkOptions.Overlap = cfg.Chunking.Overlap
	managerCfg.VectorKind = cfg.Index.VectorKind

	a.manager, err = lifecycle.NewManager(managerCfg, a.docs, embedder, logger)
	if err != nil {
		return nil, err
	}

	var engineOpts []search.EngineOption
	engineOpts = append(engineOpts, search.WithReranker(search.HeuristicReranker{}))

	if cfg.Usage.Enabled {
		store, err := usage.OpenStore(cfg.Paths.DataDir)
		if err != nil {
			// Another process holds the usage lock, or the database is
			// unusable. Search still works without the usage signal.
			logger.Warn("usage store unavailable, tracking disabled",
				slog.String("error", err.Error()))
		} else {
			a.usage = store
			a.tracker = usage.NewTracker(store, cfg.Usage.QueueSize, logger)
			engineOpts = append(engineOpts,
				search.WithUsageRecorder(a.tracker),
				search.WithUsageSource(store))
		}
	}

	a.engine, err = search.NewEngine(a.manager, searchConfig(cfg), logger, engineOpts...)
	if err != nil {
		a.closeUsage()
		return nil, err
	}

	return a, nil
}

// searchConfig maps the file configuration onto engine defaults.
func searchConfig(cfg *config.Config) search.Config {
	return search.Config{
		DefaultTopK: cfg.Search.DefaultTopK,
		MaxTopK:     cfg.Search.MaxTopK,
		DefaultWeights: search.Weights{
			BM25:   cfg.Search.BM25Weight,
			Vector: cfg.Search.VectorWeight,
		},
		MinScore: cfg.Search.MinScore,
	}
}

// startWatcher begins corpus watching, funneling change bursts into
// coalesced rebuild triggers.
func (a *app) startWatcher() error {
	window, err := time.ParseDuration(a.cfg.Index.WatchDebounce)
	if err != nil || window <= 0 {
		window = 500 * time.Millisecond
	}

	watcher, err := docstore.NewWatcher(window, a.manager.NotifyChange, a.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Start(a.cfg.Paths.DocsDir); err != nil {
		_ = watcher.Stop()
		return fmt.Errorf("watch %s: %w", a.cfg.Paths.DocsDir, err)
	}
	a.watcher = watcher
	return nil
}

func (a *app) closeUsage() {
	if a.tracker != nil {
		a.tracker.Stop()
		a.tracker = nil
	}
	if a.usage != nil {
		_ = a.usage.Close()
		a.usage = nil
	}
}

// Close tears the stack down in reverse dependency order.
func (a *app) Close() {
	if a.watcher != nil {
		_ = a.watcher.Stop()
		a.watcher = nil
	}
	if a.manager != nil {
		a.manager.Stop()
	}
	a.closeUsage()
}
