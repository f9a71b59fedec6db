package usage

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_PersistsRecordsAsync(t *testing.T) {
	s := openTestStore(t)
	tracker := NewTracker(s, 8, slog.Default())

	chunks := []SurfacedChunk{{DocumentID: "faq.md", Excerpt: "reset your password"}}
	require.NoError(t, tracker.Record(context.Background(), "password reset", chunks, FeedbackPositive))

	// Stop drains the queue, so the write is visible afterwards.
	tracker.Stop()

	stats, ok, err := s.DocumentStats(context.Background(), "faq.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.ReferenceCount)
	assert.InDelta(t, PositiveIncrement, stats.EffectivenessScore, 1e-9)
}

func TestTracker_StopDrainsPendingQueue(t *testing.T) {
	s := openTestStore(t)
	tracker := NewTracker(s, 64, slog.Default())

	const n = 20
	for i := 0; i < n; i++ {
		chunks := []SurfacedChunk{{DocumentID: "faq.md", Excerpt: fmt.Sprintf("chunk %d", i)}}
		require.NoError(t, tracker.Record(context.Background(), "q", chunks, FeedbackNone))
	}
	tracker.Stop()

	stats, ok, err := s.DocumentStats(context.Background(), "faq.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(n), stats.ReferenceCount)

	records, err := s.RecentRecords(context.Background(), n+5)
	require.NoError(t, err)
	assert.Len(t, records, n)
}

func TestTracker_RejectsAfterStop(t *testing.T) {
	s := openTestStore(t)
	tracker := NewTracker(s, 8, nil)
	tracker.Stop()

	err := tracker.Record(context.Background(), "q",
		[]SurfacedChunk{{DocumentID: "faq.md", Excerpt: "x"}}, FeedbackNone)
	assert.ErrorIs(t, err, ErrTrackerStopped)

	// Stop is idempotent.
	tracker.Stop()
}

func TestTracker_EmptyChunksAreNoOp(t *testing.T) {
	s := openTestStore(t)
	tracker := NewTracker(s, 8, nil)
	defer tracker.Stop()

	require.NoError(t, tracker.Record(context.Background(), "q", nil, FeedbackPositive))
}
