package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileStore_ListActiveDocuments(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "billing/refunds.md", "Refunds: Contact billing@x.com within 30 days.")
	writeDoc(t, root, "shipping/delivery.txt", "Shipping takes five business days.")
	writeDoc(t, root, "readme.md", "General help topics.")
	writeDoc(t, root, "_drafts/unpublished.md", "Not ready yet.")
	writeDoc(t, root, "billing/.hidden.md", "Hidden file.")
	writeDoc(t, root, "billing/notes.json", "{}")

	docs, err := NewFileStore(root).ListActiveDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	// Sorted by ID.
	assert.Equal(t, "billing/refunds.md", docs[0].ID)
	assert.Equal(t, "readme.md", docs[1].ID)
	assert.Equal(t, "shipping/delivery.txt", docs[2].ID)

	assert.Equal(t, "refunds", docs[0].Name)
	assert.Equal(t, "billing", docs[0].Category)
	assert.Equal(t, "general", docs[1].Category)
	assert.True(t, docs[0].Active)
	assert.NotEmpty(t, docs[0].ContentHash)
	assert.Contains(t, docs[0].Text, "Refunds")
}

func TestFileStore_EmptyDirectory(t *testing.T) {
	docs, err := NewFileStore(t.TempDir()).ListActiveDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFileStore_ContentHashChangesWithText(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "faq.md", "version one")
	fs := NewFileStore(root)

	first, err := fs.ListActiveDocuments(context.Background())
	require.NoError(t, err)

	writeDoc(t, root, "faq.md", "version two")
	second, err := fs.ListActiveDocuments(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first[0].ContentHash, second[0].ContentHash)
}

func TestFileStore_MissingRootErrors(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "missing")).ListActiveDocuments(context.Background())
	assert.Error(t, err)
}
