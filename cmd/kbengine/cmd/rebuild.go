package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/lifecycle"
	"github.com/helpbase/kbengine/internal/logging"
)

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Build the index once and report the result",
		Long: `Build a full index from the documents directory and print a summary.

Useful to validate a corpus before wiring the server into a chatbot,
and to surface documents the chunker skips.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd.Context(), cmd)
		},
	}
}

func runRebuild(ctx context.Context, cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		logger = slog.Default()
	} else {
		defer cleanup()
	}

	out := newOutput(cmd)

	root, err := resolveRoot()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, root, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out.Statusf("📚", "Indexing %s", a.cfg.Paths.DocsDir)
	started := time.Now()

	if err := a.manager.Rebuild(ctx); err != nil {
		out.Errorf("Index build failed: %v", err)
		return err
	}

	status := a.manager.Status()
	out.Successf("Indexed %d documents (%d chunks) in %s",
		status.DocumentCount, status.ChunkCount, time.Since(started).Round(time.Millisecond))
	out.KeyValue("Strategy", string(status.Strategy))
	if status.EmbeddingModel != "" {
		out.KeyValue("Embedding model", status.EmbeddingModel)
	}
	if status.Strategy == lifecycle.StrategyLexicalOnly {
		out.Warning("No embedding provider available, semantic search disabled")
	}
	return nil
}
