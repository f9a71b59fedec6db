package docstore

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_CoalescesBurstIntoOneNotification(t *testing.T) {
	root := t.TempDir()

	var notifications atomic.Int32
	w, err := NewWatcher(100*time.Millisecond, func() { notifications.Add(1) }, slog.Default())
	require.NoError(t, err)
	require.NoError(t, w.Start(root))
	defer func() { _ = w.Stop() }()

	for i := 0; i < 5; i++ {
		writeDoc(t, root, "faq.md", "content revision")
	}

	assert.Eventually(t, func() bool {
		return notifications.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	// The burst settles into a single trailing-edge notification.
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, notifications.Load(), int32(2))
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()

	var notifications atomic.Int32
	w, err := NewWatcher(50*time.Millisecond, func() { notifications.Add(1) }, slog.Default())
	require.NoError(t, err)
	require.NoError(t, w.Start(root))
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, notifications.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(0, func() {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(t.TempDir()))

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
