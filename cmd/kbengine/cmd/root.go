// Package cmd provides the CLI commands for the knowledge base engine.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/logging"
	"github.com/helpbase/kbengine/internal/output"
	"github.com/helpbase/kbengine/internal/profiling"
	"github.com/helpbase/kbengine/pkg/version"
)

// Profiling flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// kbRoot is the knowledge base root directory flag (default: walk up
// from the working directory).
var kbRoot string

// plainOutput disables styled terminal output.
var plainOutput bool

// NewRootCmd creates the root command for the kbengine CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kbengine",
		Short: "Hybrid document retrieval engine for support chatbots",
		Long: `kbengine indexes a directory of support documents and serves hybrid
search (BM25 + semantic) over the Model Context Protocol.

Running 'kbengine' with no arguments starts the MCP server over stdio,
building the index first if needed.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			// Default action is the MCP server, matching how agent
			// runtimes invoke the binary.
			return runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("kbengine version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&kbRoot, "kb", "", "Knowledge base root directory (default: nearest ancestor with kbengine.yaml or .git)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kbengine/logs/")
	cmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable styled terminal output")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		cfg := logging.DefaultConfig()
		cfg.Level = "debug"
		logger, cleanup, err := logging.Setup(cfg)
		if err != nil {
			return fmt.Errorf("setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("start trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// newOutput returns the command's terminal writer, honoring --plain.
func newOutput(cmd *cobra.Command) *output.Writer {
	if plainOutput {
		return output.NewWithColor(cmd.OutOrStdout(), false)
	}
	return output.New(cmd.OutOrStdout())
}

// resolveRoot returns the knowledge base root: the --kb flag when set,
// otherwise the nearest ancestor carrying a project marker, otherwise
// the working directory.
func resolveRoot() (string, error) {
	if kbRoot != "" {
		return kbRoot, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	root, err := config.FindKnowledgeBaseRoot(cwd)
	if err != nil {
		return cwd, nil
	}
	return root, nil
}
