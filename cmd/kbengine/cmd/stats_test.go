package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/usage"
)

// seedUsage writes a few usage records into the knowledge base's data
// directory and closes the store so the stats command can open it.
func seedUsage(t *testing.T, root string) {
	t.Helper()
	store, err := usage.OpenStore(filepath.Join(root, ".kbengine"))
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	ctx := context.Background()
	require.NoError(t, store.RecordUsage(ctx, "refund policy",
		[]usage.SurfacedChunk{{DocumentID: "billing/refunds.md", Excerpt: "Refunds are issued within 30 days."}},
		usage.FeedbackPositive))
	require.NoError(t, store.RecordUsage(ctx, "invoice schedule",
		[]usage.SurfacedChunk{{DocumentID: "billing/invoices.md"}},
		usage.FeedbackNone))
}

func runStatsCommand(t *testing.T, root string, args ...string) *bytes.Buffer {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	kbRoot = root
	t.Cleanup(func() { kbRoot = "" })

	cmd := newStatsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return buf
}

func TestRunStats_Overview(t *testing.T) {
	root := newTestKB(t)
	seedUsage(t, root)

	buf := runStatsCommand(t, root, "--json")

	var report statsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	require.Len(t, report.TopDocuments, 2)
	assert.Len(t, report.RecentRecords, 2)
}

func TestRunStats_SingleDocument(t *testing.T) {
	root := newTestKB(t)
	seedUsage(t, root)

	buf := runStatsCommand(t, root, "billing/refunds.md", "--json")

	var d usage.DocumentStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &d))
	assert.Equal(t, "billing/refunds.md", d.DocumentID)
	assert.Equal(t, int64(1), d.ReferenceCount)
	assert.Greater(t, d.EffectivenessScore, 0.0)
}

func TestRunStats_UnknownDocument(t *testing.T) {
	root := newTestKB(t)
	seedUsage(t, root)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	kbRoot = root
	t.Cleanup(func() { kbRoot = "" })

	cmd := newStatsCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"docs/missing.md"})
	assert.Error(t, cmd.Execute())
}
