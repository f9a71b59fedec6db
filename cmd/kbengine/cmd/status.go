package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/docstore"
	"github.com/helpbase/kbengine/internal/preflight"
)

// statusReport is the JSON shape of 'kbengine status'.
type statusReport struct {
	Root             string         `json:"root"`
	DocsDir          string         `json:"docs_dir"`
	DataDir          string         `json:"data_dir"`
	Documents        int            `json:"documents"`
	Categories       map[string]int `json:"categories,omitempty"`
	Provider         string         `json:"embedding_provider"`
	UsageTracking    bool           `json:"usage_tracking"`
	UsageDB          bool           `json:"usage_db_exists"`
	PreflightPassed  bool           `json:"preflight_passed"`
	PreflightAgeDays float64        `json:"preflight_age_days,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show knowledge base and configuration status",
		Long:  `Report the corpus size, category breakdown and configuration without building an index.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	docs, err := docstore.NewFileStore(cfg.Paths.DocsDir).ListActiveDocuments(ctx)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}

	categories := make(map[string]int)
	for _, d := range docs {
		if d.Category != "" {
			categories[d.Category]++
		}
	}

	markerAge := preflight.MarkerAge(cfg.Paths.DataDir)

	report := statusReport{
		Root:            root,
		DocsDir:         cfg.Paths.DocsDir,
		DataDir:         cfg.Paths.DataDir,
		Documents:       len(docs),
		Categories:      categories,
		Provider:        cfg.Embeddings.Provider,
		UsageTracking:   cfg.Usage.Enabled,
		UsageDB:         fileExists(filepath.Join(cfg.Paths.DataDir, "usage.db")),
		PreflightPassed: !preflight.NeedsCheck(cfg.Paths.DataDir),
	}
	if markerAge > 0 {
		report.PreflightAgeDays = markerAge.Hours() / 24
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := newOutput(cmd)
	out.Header("Knowledge Base Status")
	out.KeyValue("Root", report.Root)
	out.KeyValue("Documents dir", report.DocsDir)
	out.KeyValue("Data dir", report.DataDir)
	out.KeyValue("Documents", fmt.Sprintf("%d", report.Documents))
	out.KeyValue("Provider", report.Provider)
	out.KeyValue("Usage tracking", boolWord(report.UsageTracking))

	if len(categories) > 0 {
		out.Newline()
		out.Header("Categories")
		names := make([]string, 0, len(categories))
		for name := range categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.KeyValue(name, fmt.Sprintf("%d", categories[name]))
		}
	}

	out.Newline()
	if report.PreflightPassed {
		out.Successf("System check passed %s ago", markerAge.Round(time.Minute))
	} else {
		out.Status("", "System check has not run yet, try 'kbengine check'")
	}
	return nil
}

func boolWord(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
