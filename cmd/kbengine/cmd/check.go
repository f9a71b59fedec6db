package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/preflight"
)

func newCheckCmd() *cobra.Command {
	var verbose bool
	var clear bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run system checks",
		Long: `Validate the environment: disk space, permissions, file descriptor
limits and the embedding provider. Results are cached in the data
directory; pass --clear to force a fresh check on the next serve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, verbose, clear)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the cached check result")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, verbose, clear bool) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	if clear {
		if err := preflight.ClearMarker(cfg.Paths.DataDir); err != nil {
			return err
		}
	}

	checker := preflight.New(
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithVerbose(verbose),
	)
	results := checker.RunAll(ctx, cfg)
	checker.PrintResults(results)

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	if err := preflight.MarkPassed(cfg.Paths.DataDir); err != nil {
		return err
	}
	return nil
}
