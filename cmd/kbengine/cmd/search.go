package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/logging"
	"github.com/helpbase/kbengine/internal/output"
	"github.com/helpbase/kbengine/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK             int
	category         string
	format           string // "text", "json"
	keywordOnly      bool
	useEffectiveness bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base with hybrid retrieval.

BM25 keyword matching and semantic similarity are fused into one
ranking. The index is built fresh from the documents directory.

Examples:
  kbengine search "refund policy"
  kbengine search "cancel subscription" --top-k 3 --category billing
  kbengine search "shipping delays" --format json
  kbengine search "error E1042" --keyword-only`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Restrict results to one document category")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.keywordOnly, "keyword-only", false, "Skip semantic retrieval, rank by BM25 alone")
	cmd.Flags().BoolVar(&opts.useEffectiveness, "use-effectiveness", false, "Boost documents with positive usage feedback")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
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

	if err := a.manager.Rebuild(ctx); err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	searchOpts := search.DefaultOptions(searchConfig(a.cfg))
	if opts.topK > 0 {
		searchOpts.TopK = opts.topK
	}
	searchOpts.Category = opts.category
	searchOpts.UseEffectiveness = opts.useEffectiveness
	if opts.keywordOnly {
		searchOpts.Weights = &search.Weights{BM25: 1.0, Vector: 0}
	}

	results, err := a.engine.HybridSearch(ctx, query, searchOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	logger.Info("search_complete",
		slog.String("query", query),
		slog.Int("results", len(results)))

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(out, query, results)
	}
}

// formatText renders results for a human reader.
func formatText(out *output.Writer, query string, results []*search.SearchResult) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		if r.Chunk == nil {
			continue
		}

		header := fmt.Sprintf("%d. %s", i+1, r.DocumentID)
		if r.Category != "" {
			header += "  " + out.Dim("["+r.Category+"]")
		}
		header += "  (score: " + out.Score(r.HybridScore) + ")"
		out.Status("", header)

		for _, line := range snippet(r.Chunk.OriginalText, 3) {
			out.Status("", "   "+line)
		}
		if len(r.MatchedTerms) > 0 {
			out.Status("", "   "+out.Dim("matched: "+strings.Join(r.MatchedTerms, ", ")))
		}
		out.Newline()
	}
	return nil
}

// formatJSON renders results as machine-readable JSON.
func formatJSON(cmd *cobra.Command, results []*search.SearchResult) error {
	type jsonResult struct {
		DocumentID   string   `json:"document_id"`
		DocumentName string   `json:"document_name,omitempty"`
		Category     string   `json:"category,omitempty"`
		Score        float64  `json:"score"`
		BM25Score    float64  `json:"bm25_score"`
		VectorScore  float64  `json:"vector_score"`
		Text         string   `json:"text"`
		MatchedTerms []string `json:"matched_terms,omitempty"`
	}

	rendered := make([]jsonResult, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		rendered = append(rendered, jsonResult{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Category:     r.Category,
			Score:        r.HybridScore,
			BM25Score:    r.BM25Score,
			VectorScore:  r.VectorScore,
			Text:         r.Chunk.OriginalText,
			MatchedTerms: r.MatchedTerms,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rendered)
}

// snippet returns the first n non-empty-tail lines of text.
func snippet(text string, n int) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
