// Package usage records which chunks were surfaced per query and folds
// user feedback into a per-document effectiveness score. Records are
// append-only; recording is asynchronous and never blocks the search
// response path.
package usage

import (
	"time"
	"unicode/utf8"
)

// Feedback labels a recorded interaction.
type Feedback string

const (
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
	FeedbackNone     Feedback = "none"
)

// Effectiveness score adjustments. Positive feedback moves the score up
// faster than negative feedback moves it down; the score is clamped to
// [MinEffectiveness, MaxEffectiveness].
const (
	PositiveIncrement = 0.1
	NegativeDecrement = 0.05
	MaxEffectiveness  = 10.0
	MinEffectiveness  = 0.0
)

// MaxExcerptLen caps the stored chunk excerpt, in runes.
const MaxExcerptLen = 200

// Record is one append-only usage entry for a surfaced chunk.
type Record struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	DocumentID   string    `json:"document_id"`
	ChunkExcerpt string    `json:"chunk_excerpt,omitempty"`
	Feedback     Feedback  `json:"feedback"`
	Timestamp    time.Time `json:"timestamp"`
}

// SurfacedChunk identifies a chunk that was returned for a query.
type SurfacedChunk struct {
	DocumentID string
	Excerpt    string
}

// DocumentStats is the aggregated usage view of one document.
type DocumentStats struct {
	DocumentID         string    `json:"document_id"`
	ReferenceCount     int64     `json:"reference_count"`
	EffectivenessScore float64   `json:"effectiveness_score"`
	LastReferenced     time.Time `json:"last_referenced"`
}

// TruncateExcerpt bounds an excerpt to MaxExcerptLen runes.
func TruncateExcerpt(s string) string {
	if utf8.RuneCountInString(s) <= MaxExcerptLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxExcerptLen])
}
