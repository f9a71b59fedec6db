package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/helpbase/kbengine/internal/kberr"
	"github.com/helpbase/kbengine/internal/store"
)

// Document file extensions served by the file store.
var documentExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// FileStore serves documents from a directory tree. Each file is one
// document; the top-level subdirectory names the category. Files and
// directories starting with "." or "_" are treated as inactive and
// skipped.
type FileStore struct {
	root string
}

var _ DocumentStore = (*FileStore)(nil)

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the store's document directory.
func (s *FileStore) Root() string {
	return s.root
}

// ListActiveDocuments walks the tree and returns every active
// document, sorted by ID for deterministic rebuilds.
func (s *FileStore) ListActiveDocuments(ctx context.Context) ([]*store.Document, error) {
	var docs []*store.Document

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		inactive := strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
		if d.IsDir() {
			if path != s.root && inactive {
				return filepath.SkipDir
			}
			return nil
		}
		if inactive || !documentExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		doc, err := s.readDocument(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, kberr.Wrap(kberr.CodeDocumentStore, fmt.Errorf("list documents in %s: %w", s.root, err))
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *FileStore) readDocument(path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)

	category := "general"
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		category = dir
	}

	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	hash := sha256.Sum256(data)

	return &store.Document{
		ID:          rel,
		Name:        name,
		Text:        string(data),
		Category:    category,
		Active:      true,
		ContentHash: hex.EncodeToString(hash[:]),
	}, nil
}
