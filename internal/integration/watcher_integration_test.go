package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/docstore"
	"github.com/helpbase/kbengine/internal/embed"
)

// Watcher integration: file changes on disk flow through the debounced
// watcher into a coalesced full rebuild.

func TestWatcher_NewDocumentTriggersRebuild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := supportCorpus(t)
	mgr := newManager(t, dir, embed.NewStaticEmbedder())
	require.NoError(t, mgr.Rebuild(ctx))
	require.Equal(t, 3, mgr.Status().DocumentCount)

	mgr.Start(ctx)
	defer mgr.Stop()

	w, err := docstore.NewWatcher(50*time.Millisecond, mgr.NotifyChange, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start(dir))
	defer func() { _ = w.Stop() }()

	path := filepath.Join(dir, "billing", "chargebacks.md")
	require.NoError(t, os.WriteFile(path,
		[]byte("# Chargebacks\n\nDisputed charges are reviewed within 10 business days."), 0o644))

	assert.Eventually(t, func() bool {
		return mgr.Status().DocumentCount == 4
	}, 8*time.Second, 50*time.Millisecond, "watcher should trigger a rebuild that picks up the new document")
}

func TestWatcher_BurstOfChangesCoalesces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := supportCorpus(t)
	mgr := newManager(t, dir, embed.NewStaticEmbedder())
	require.NoError(t, mgr.Rebuild(ctx))
	firstGen := mgr.Status().Generation

	mgr.Start(ctx)
	defer mgr.Stop()

	w, err := docstore.NewWatcher(100*time.Millisecond, mgr.NotifyChange, discardLogger())
	require.NoError(t, err)
	require.NoError(t, w.Start(dir))
	defer func() { _ = w.Stop() }()

	// Several writes inside one debounce window.
	for i, name := range []string{"a.md", "b.md", "c.md"} {
		path := filepath.Join(dir, "shipping", name)
		require.NoError(t, os.WriteFile(path,
			[]byte("# Topic\n\nDocument number "+string(rune('0'+i))+" about carrier pickup windows."), 0o644))
	}

	assert.Eventually(t, func() bool {
		return mgr.Status().DocumentCount == 6
	}, 8*time.Second, 50*time.Millisecond)

	// The burst should have produced far fewer rebuilds than writes.
	assert.LessOrEqual(t, mgr.Status().Generation, firstGen+2)
}
