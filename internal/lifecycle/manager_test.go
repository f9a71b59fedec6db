package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/embed"
	"github.com/helpbase/kbengine/internal/store"
)

// fakeDocStore serves an in-memory document set and can be switched to
// failing mid-test.
type fakeDocStore struct {
	mu    sync.Mutex
	docs  []*store.Document
	err   error
	calls int

	// gate, when set, blocks ListActiveDocuments until released.
	gate chan struct{}
}

func (f *fakeDocStore) ListActiveDocuments(ctx context.Context) ([]*store.Document, error) {
	f.mu.Lock()
	f.calls++
	docs, err, gate := f.docs, f.err, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]*store.Document, len(docs))
	copy(out, docs)
	return out, nil
}

func (f *fakeDocStore) set(docs []*store.Document, err error) {
	f.mu.Lock()
	f.docs, f.err = docs, err
	f.mu.Unlock()
}

func (f *fakeDocStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func doc(id, category, text string) *store.Document {
	return &store.Document{
		ID:       id,
		Name:     id,
		Text:     text,
		Category: category,
		Active:   true,
	}
}

func newTestManager(t *testing.T, docs *fakeDocStore, embedder embed.Embedder) *Manager {
	t.Helper()
	m, err := NewManager(DefaultManagerConfig(), docs, embedder, slog.Default())
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m
}

func TestManager_RebuildPublishesSnapshot(t *testing.T) {
	docs := &fakeDocStore{}
	docs.set([]*store.Document{
		doc("billing/refunds.md", "billing", "Refunds: Contact billing@x.com within 30 days."),
		doc("shipping/delivery.md", "shipping", "Standard shipping takes five business days."),
	}, nil)

	m := newTestManager(t, docs, embed.NewStaticEmbedder())

	require.Nil(t, m.Current())
	assert.Equal(t, StateEmpty, m.Status().State)

	require.NoError(t, m.Rebuild(context.Background()))

	snap := m.Current()
	require.NotNil(t, snap)
	assert.Equal(t, StrategyHybrid, snap.Strategy)
	assert.Equal(t, "static", snap.EmbeddingModel)
	assert.Equal(t, 2, snap.DocumentCount())
	assert.Positive(t, snap.ChunkCount())
	assert.NotNil(t, snap.Vector)

	status := m.Status()
	assert.Equal(t, StateReady, status.State)
	assert.Equal(t, uint64(1), status.Generation)
	assert.Empty(t, status.LastError)

	// The lexical index answers queries from the published snapshot.
	results, err := snap.Lexical.Search(context.Background(), "refund", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestManager_EmptyCorpusIsValid(t *testing.T) {
	docs := &fakeDocStore{}
	m := newTestManager(t, docs, nil)

	require.NoError(t, m.Rebuild(context.Background()))

	snap := m.Current()
	require.NotNil(t, snap)
	assert.Zero(t, snap.ChunkCount())
	assert.Zero(t, snap.DocumentCount())
	assert.Equal(t, StateReady, m.Status().State)
}

func TestManager_SkipsMalformedDocuments(t *testing.T) {
	docs := &fakeDocStore{}
	docs.set([]*store.Document{
		doc("good.md", "general", "Working document with real content."),
		doc("blank.md", "general", "   \n\t  "),
	}, nil)

	m := newTestManager(t, docs, nil)
	require.NoError(t, m.Rebuild(context.Background()))

	snap := m.Current()
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.DocumentCount())
	_, ok := snap.Document("blank.md")
	assert.False(t, ok)
	assert.Equal(t, StateReady, m.Status().State)
}

func TestManager_FailedRebuildRetainsPreviousSnapshot(t *testing.T) {
	docs := &fakeDocStore{}
	docs.set([]*store.Document{doc("faq.md", "general", "How to reset your password.")}, nil)

	m := newTestManager(t, docs, nil)
	require.NoError(t, m.Rebuild(context.Background()))
	first := m.Current()
	require.NotNil(t, first)

	docs.set(nil, errors.New("disk on fire"))
	err := m.Rebuild(context.Background())
	require.Error(t, err)

	// Queries keep hitting the last good snapshot.
	assert.Same(t, first, m.Current())

	status := m.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.LastError, "disk on fire")
	assert.Equal(t, uint64(1), status.Generation)

	// A later successful rebuild recovers.
	docs.set([]*store.Document{doc("faq.md", "general", "How to reset your password.")}, nil)
	require.NoError(t, m.Rebuild(context.Background()))
	assert.Equal(t, StateReady, m.Status().State)
	assert.Equal(t, uint64(2), m.Status().Generation)
	assert.Empty(t, m.Status().LastError)
}

func TestManager_LexicalOnlyWithoutEmbedder(t *testing.T) {
	docs := &fakeDocStore{}
	docs.set([]*store.Document{doc("faq.md", "general", "Password reset instructions.")}, nil)

	m := newTestManager(t, docs, nil)
	require.NoError(t, m.Rebuild(context.Background()))

	snap := m.Current()
	require.NotNil(t, snap)
	assert.Equal(t, StrategyLexicalOnly, snap.Strategy)
	assert.Nil(t, snap.Vector)
	assert.Nil(t, snap.Embedder)
	assert.Empty(t, snap.EmbeddingModel)
}

func TestManager_SnapshotIsolationAcrossRebuilds(t *testing.T) {
	docs := &fakeDocStore{}
	docs.set([]*store.Document{doc("one.md", "general", "First corpus revision.")}, nil)

	m := newTestManager(t, docs, nil)
	require.NoError(t, m.Rebuild(context.Background()))
	old := m.Current()

	docs.set([]*store.Document{
		doc("one.md", "general", "First corpus revision."),
		doc("two.md", "general", "Second document arrives."),
	}, nil)
	require.NoError(t, m.Rebuild(context.Background()))

	// A reader holding the old snapshot sees a frozen view.
	assert.Equal(t, 1, old.DocumentCount())
	assert.Equal(t, uint64(1), old.Generation)

	fresh := m.Current()
	assert.Equal(t, 2, fresh.DocumentCount())
	assert.Equal(t, uint64(2), fresh.Generation)
	assert.NotSame(t, old, fresh)
}

func TestManager_NotifyChangeCoalescesBursts(t *testing.T) {
	gate := make(chan struct{})
	docs := &fakeDocStore{gate: gate}
	docs.set([]*store.Document{doc("faq.md", "general", "Help topics.")}, nil)

	m := newTestManager(t, docs, nil)
	m.Start(context.Background())

	// First trigger starts a build that parks on the gate.
	m.NotifyChange()
	require.Eventually(t, func() bool { return docs.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// A burst while the build is in flight coalesces into one follow-up.
	m.NotifyChange()
	m.NotifyChange()
	m.NotifyChange()
	close(gate)

	require.Eventually(t, func() bool {
		return docs.callCount() == 2 && m.Status().State == StateReady
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, docs.callCount())
	assert.Equal(t, uint64(2), m.Status().Generation)
}

func TestManager_RequiresDocumentStore(t *testing.T) {
	_, err := NewManager(DefaultManagerConfig(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilDocumentStore)
}
