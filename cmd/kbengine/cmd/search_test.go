package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/output"
	"github.com/helpbase/kbengine/internal/search"
	"github.com/helpbase/kbengine/internal/store"
)

func fakeResult(docID, category, text string, score float64) *search.SearchResult {
	return &search.SearchResult{
		DocumentID:   docID,
		DocumentName: docID,
		Category:     category,
		Chunk:        &store.Chunk{DocumentID: docID, OriginalText: text},
		HybridScore:  score,
		BM25Score:    score,
		MatchedTerms: []string{"refund"},
	}
}

func TestFormatText(t *testing.T) {
	buf := &bytes.Buffer{}
	out := output.NewWithColor(buf, false)

	results := []*search.SearchResult{
		fakeResult("billing/refunds.md", "billing", "Refunds are issued within 30 days.\nContact support first.", 0.91),
		fakeResult("billing/invoices.md", "billing", "Invoices are emailed monthly.", 0.42),
	}

	require.NoError(t, formatText(out, "refund", results))

	rendered := buf.String()
	assert.Contains(t, rendered, `Found 2 results for "refund"`)
	assert.Contains(t, rendered, "1. billing/refunds.md")
	assert.Contains(t, rendered, "0.910")
	assert.Contains(t, rendered, "Refunds are issued within 30 days.")
	assert.Contains(t, rendered, "matched: refund")
}

func TestFormatText_SkipsNilChunks(t *testing.T) {
	buf := &bytes.Buffer{}
	out := output.NewWithColor(buf, false)

	results := []*search.SearchResult{{DocumentID: "broken.md"}}

	require.NoError(t, formatText(out, "q", results))
	assert.NotContains(t, buf.String(), "broken.md")
}

func TestFormatJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	results := []*search.SearchResult{
		fakeResult("shipping/returns.md", "shipping", "Return labels are prepaid.", 0.8),
	}

	require.NoError(t, formatJSON(cmd, results))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "shipping/returns.md", decoded[0]["document_id"])
	assert.Equal(t, 0.8, decoded[0]["score"])
	assert.Equal(t, "Return labels are prepaid.", decoded[0]["text"])
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, snippet("a\nb\nc\nd", 3))
	assert.Equal(t, []string{"only"}, snippet("only", 3))
	assert.Empty(t, snippet("\n\n\n", 3), "trailing blank lines are trimmed")
}
