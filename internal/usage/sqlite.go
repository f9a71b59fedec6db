package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/helpbase/kbengine/internal/kberr"
)

const (
	dbFileName   = "usage.db"
	lockFileName = "usage.lock"
)

// Store persists usage records and per-document statistics in SQLite.
// Opening a store takes an exclusive file lock on the data directory so
// two processes never write the same database.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

// OpenStore opens (creating if needed) the usage database under dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kberr.UsageStoreError(fmt.Sprintf("create data directory %s", dir), err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, kberr.UsageStoreError("acquire data directory lock", err)
	}
	if !locked {
		return nil, kberr.New(kberr.CodeLockHeld,
			fmt.Sprintf("data directory %s is locked by another process", dir), nil)
	}

	dsn := filepath.Join(dir, dbFileName) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, kberr.UsageStoreError("open usage database", err)
	}
	// modernc.org/sqlite is serialized per connection; a single
	// connection avoids table-lock contention under WAL.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return &Store{db: db, lock: lock}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		document_id TEXT NOT NULL,
		chunk_excerpt TEXT NOT NULL,
		feedback TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_records_document ON usage_records(document_id);
	CREATE INDEX IF NOT EXISTS idx_usage_records_timestamp ON usage_records(timestamp DESC);

	CREATE TABLE IF NOT EXISTS document_stats (
		document_id TEXT PRIMARY KEY,
		reference_count INTEGER NOT NULL DEFAULT 0,
		effectiveness_score REAL NOT NULL DEFAULT 0,
		last_referenced TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_document_stats_refs ON document_stats(reference_count DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return kberr.UsageStoreError("create usage schema", err)
	}
	return nil
}

// feedbackDelta maps feedback to the effectiveness adjustment. The
// clamp to [MinEffectiveness, MaxEffectiveness] happens in SQL.
func feedbackDelta(feedback Feedback) float64 {
	switch feedback {
	case FeedbackPositive:
		return PositiveIncrement
	case FeedbackNegative:
		return -NegativeDecrement
	default:
		return 0
	}
}

// RecordUsage appends one record per surfaced chunk and folds the
// feedback into each distinct document's statistics.
func (s *Store) RecordUsage(ctx context.Context, query string, chunks []SurfacedChunk, feedback Feedback) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kberr.UsageStoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO usage_records (id, query, document_id, chunk_excerpt, feedback, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return kberr.UsageStoreError("prepare record insert", err)
	}
	defer insert.Close()

	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		_, err := insert.ExecContext(ctx,
			uuid.NewString(), query, c.DocumentID, TruncateExcerpt(c.Excerpt), string(feedback), now)
		if err != nil {
			return kberr.UsageStoreError("insert usage record", err)
		}
		seen[c.DocumentID] = true
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO document_stats (document_id, reference_count, effectiveness_score, last_referenced)
		VALUES (?, 1, MAX(?, MIN(?, ?)), ?)
		ON CONFLICT(document_id) DO UPDATE SET
			reference_count = reference_count + 1,
			effectiveness_score = MAX(?, MIN(?, effectiveness_score + ?)),
			last_referenced = excluded.last_referenced
	`)
	if err != nil {
		return kberr.UsageStoreError("prepare stats upsert", err)
	}
	defer upsert.Close()

	delta := feedbackDelta(feedback)
	initial := delta
	if initial < MinEffectiveness {
		initial = MinEffectiveness
	}
	for docID := range seen {
		_, err := upsert.ExecContext(ctx,
			docID, MinEffectiveness, MaxEffectiveness, initial, now,
			MinEffectiveness, MaxEffectiveness, delta)
		if err != nil {
			return kberr.UsageStoreError("upsert document stats", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kberr.UsageStoreError("commit transaction", err)
	}
	return nil
}

// EffectivenessScores returns the effectiveness score for each of the
// given documents. Documents with no recorded usage are omitted.
func (s *Store) EffectivenessScores(ctx context.Context, docIDs []string) (map[string]float64, error) {
	scores := make(map[string]float64, len(docIDs))
	if len(docIDs) == 0 {
		return scores, nil
	}

	placeholders := strings.Repeat("?,", len(docIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, effectiveness_score
		FROM document_stats
		WHERE document_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, kberr.UsageStoreError("query effectiveness scores", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, kberr.UsageStoreError("scan effectiveness row", err)
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, kberr.UsageStoreError("iterate effectiveness rows", err)
	}
	return scores, nil
}

// TopDocuments returns the most-referenced documents, ties broken by
// effectiveness then document ID.
func (s *Store) TopDocuments(ctx context.Context, limit int) ([]DocumentStats, error) {
	if limit <= 0 {
		return []DocumentStats{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, reference_count, effectiveness_score, last_referenced
		FROM document_stats
		ORDER BY reference_count DESC, effectiveness_score DESC, document_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, kberr.UsageStoreError("query top documents", err)
	}
	defer rows.Close()

	stats := []DocumentStats{}
	for rows.Next() {
		var d DocumentStats
		if err := rows.Scan(&d.DocumentID, &d.ReferenceCount, &d.EffectivenessScore, &d.LastReferenced); err != nil {
			return nil, kberr.UsageStoreError("scan top documents row", err)
		}
		stats = append(stats, d)
	}
	if err := rows.Err(); err != nil {
		return nil, kberr.UsageStoreError("iterate top documents rows", err)
	}
	return stats, nil
}

// DocumentStats returns the aggregated view of one document, or false
// when it has never been referenced.
func (s *Store) DocumentStats(ctx context.Context, docID string) (DocumentStats, bool, error) {
	var d DocumentStats
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, reference_count, effectiveness_score, last_referenced
		FROM document_stats
		WHERE document_id = ?
	`, docID).Scan(&d.DocumentID, &d.ReferenceCount, &d.EffectivenessScore, &d.LastReferenced)
	if err == sql.ErrNoRows {
		return DocumentStats{}, false, nil
	}
	if err != nil {
		return DocumentStats{}, false, kberr.UsageStoreError("query document stats", err)
	}
	return d, true, nil
}

// RecentRecords returns the newest usage records, most recent first.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, document_id, chunk_excerpt, feedback, timestamp
		FROM usage_records
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, kberr.UsageStoreError("query recent records", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var feedback string
		if err := rows.Scan(&r.ID, &r.Query, &r.DocumentID, &r.ChunkExcerpt, &feedback, &r.Timestamp); err != nil {
			return nil, kberr.UsageStoreError("scan record row", err)
		}
		r.Feedback = Feedback(feedback)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, kberr.UsageStoreError("iterate record rows", err)
	}
	return records, nil
}

// Close closes the database and releases the data directory lock.
func (s *Store) Close() error {
	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if dbErr != nil {
		return dbErr
	}
	return lockErr
}
