package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/logging"
	"github.com/helpbase/kbengine/internal/mcpserver"
	"github.com/helpbase/kbengine/internal/preflight"
	"github.com/helpbase/kbengine/internal/search"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the knowledge base over MCP stdio",
		Long: `Start the MCP server on stdio.

The index is built on startup and rebuilt automatically when documents
change. Stdout carries JSON-RPC exclusively; diagnostics go to the log
file under ~/.kbengine/logs/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}

	// Stdout belongs to the protocol from here on: log to file only.
	logger, cleanup, err := logging.SetupServerMode(serverLogLevel(root))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, root, logger)
	if err != nil {
		logger.Error("startup_failed", "error", err.Error())
		return err
	}
	defer a.Close()

	// First-run environment validation, logged rather than printed.
	if preflight.NeedsCheck(a.cfg.Paths.DataDir) {
		checker := preflight.New()
		results := checker.RunAll(ctx, a.cfg)
		if checker.HasCriticalFailures(results) {
			for _, r := range results {
				if r.IsCritical() {
					logger.Error("preflight_failed", "check", r.Name, "message", r.Message)
				}
			}
			return fmt.Errorf("system check failed, run 'kbengine check' for diagnostics")
		}
		if err := preflight.MarkPassed(a.cfg.Paths.DataDir); err != nil {
			logger.Debug("preflight_marker_write_failed", "error", err.Error())
		}
	}

	// Build the first snapshot before accepting queries, then let the
	// worker own subsequent rebuilds.
	if err := a.manager.Rebuild(ctx); err != nil {
		logger.Error("initial_build_failed", "error", err.Error())
		return err
	}
	a.manager.Start(ctx)

	if a.cfg.Index.Watch {
		if err := a.startWatcher(); err != nil {
			logger.Warn("watcher_disabled", "error", err.Error())
		}
	}

	// A typed nil tracker must stay a nil interface so the server can
	// tell usage tracking is off.
	var recorder search.UsageRecorder
	if a.tracker != nil {
		recorder = a.tracker
	}

	server, err := mcpserver.NewServer(a.engine, recorder, searchConfig(a.cfg), logger)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

// serverLogLevel reads the configured log level without failing serve
// when the config is broken; the real load happens in newApp.
func serverLogLevel(root string) string {
	cfg, err := config.Load(root)
	if err != nil {
		return "info"
	}
	return cfg.Server.LogLevel
}
