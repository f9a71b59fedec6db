package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpbase/kbengine/internal/config"
	"github.com/helpbase/kbengine/internal/kberr"
	"github.com/helpbase/kbengine/internal/usage"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var limit int

	cmd := &cobra.Command{
		Use:   "stats [document-id]",
		Short: "Show usage statistics",
		Long: `Display which documents the chatbot surfaces most and how they are
rated. Data comes from the usage database written by kb_record_usage.

With a document ID, show that document's counters instead of the
overview.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := ""
			if len(args) > 0 {
				docID = args[0]
			}
			return runStats(cmd.Context(), cmd, jsonOutput, limit, docID)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of documents and records to show")
	return cmd
}

// statsOutput is the JSON shape of 'kbengine stats'.
type statsOutput struct {
	TopDocuments  []usage.DocumentStats `json:"top_documents"`
	RecentRecords []usage.Record        `json:"recent_records"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool, limit int, docID string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	store, err := usage.OpenStore(cfg.Paths.DataDir)
	if err != nil {
		var kerr *kberr.Error
		if errors.As(err, &kerr) && kerr.Code == kberr.CodeLockHeld {
			return fmt.Errorf("the usage database is locked by a running server; stop 'kbengine serve' first")
		}
		return fmt.Errorf("open usage store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if docID != "" {
		return runDocumentStats(ctx, cmd, store, docID, jsonOutput)
	}

	top, err := store.TopDocuments(ctx, limit)
	if err != nil {
		return fmt.Errorf("read top documents: %w", err)
	}
	recent, err := store.RecentRecords(ctx, limit)
	if err != nil {
		return fmt.Errorf("read recent records: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statsOutput{TopDocuments: top, RecentRecords: recent})
	}

	out := newOutput(cmd)

	if len(top) == 0 {
		out.Status("", "No usage recorded yet")
		return nil
	}

	out.Header("Most Referenced Documents")
	for i, d := range top {
		out.Statusf("", "%d. %s  (%d references, effectiveness %.2f)",
			i+1, d.DocumentID, d.ReferenceCount, d.EffectivenessScore)
	}

	if len(recent) > 0 {
		out.Newline()
		out.Header("Recent Queries")
		for _, r := range recent {
			out.Statusf("", "%s  %q -> %s",
				r.Timestamp.Format(time.RFC3339), r.Query, r.DocumentID)
		}
	}
	return nil
}

// runDocumentStats prints the counters of a single document.
func runDocumentStats(ctx context.Context, cmd *cobra.Command, store *usage.Store, docID string, jsonOutput bool) error {
	d, found, err := store.DocumentStats(ctx, docID)
	if err != nil {
		return fmt.Errorf("read document stats: %w", err)
	}
	if !found {
		return fmt.Errorf("no usage recorded for %q", docID)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	out := newOutput(cmd)
	out.Header(d.DocumentID)
	out.KeyValue("References", fmt.Sprintf("%d", d.ReferenceCount))
	out.KeyValue("Effectiveness", fmt.Sprintf("%.2f", d.EffectivenessScore))
	out.KeyValue("Last referenced", d.LastReferenced.Format(time.RFC3339))
	return nil
}
