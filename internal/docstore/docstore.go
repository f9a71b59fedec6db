// Package docstore defines the document store contract the engine
// consumes, plus a file-backed implementation that watches its
// directory for changes.
package docstore

import (
	"context"

	"github.com/helpbase/kbengine/internal/store"
)

// DocumentStore is the external collaborator that owns documents. The
// engine only reads the active set; creation, update and text
// extraction happen elsewhere.
type DocumentStore interface {
	ListActiveDocuments(ctx context.Context) ([]*store.Document, error)
}
