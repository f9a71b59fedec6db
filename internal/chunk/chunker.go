// Package chunk splits document text into overlapping, context-annotated
// passages. Splitting is structure-aware first (section headers, then
// paragraph breaks), falls back to sentence accumulation for oversized
// sections and to fixed word windows when no sentence boundaries exist,
// so chunking never fails to produce coverage.
package chunk

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/helpbase/kbengine/internal/store"
)

// Default chunking parameters, measured in words.
const (
	DefaultChunkSize = 200
	DefaultOverlap   = 30
)

// Options configures the chunker.
type Options struct {
	// ChunkSize is the target chunk size in words.
	ChunkSize int

	// Overlap is the word overlap between consecutive chunks: each
	// chunk after the first starts this many words before the end of
	// the previous one.
	Overlap int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
	}
}

// Chunker splits documents into chunks. Stateless and safe for
// concurrent use.
type Chunker struct {
	opts Options
}

// Structural boundary patterns: bold section headers on their own line,
// markdown headers, and paragraph breaks.
var (
	boldHeaderPattern     = regexp.MustCompile(`(?m)^\*\*[^*\n]+\*\*[ \t]*$`)
	markdownHeaderPattern = regexp.MustCompile(`(?m)^#{1,6}[ \t]+.+$`)
	paragraphBreakPattern = regexp.MustCompile(`\n[ \t]*\n`)

	// Sentence enders followed by whitespace.
	sentenceEndPattern = regexp.MustCompile(`[.!?]+\s+`)
)

// New creates a chunker, applying defaults for zero options.
func New(opts Options) *Chunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Overlap <= 0 || opts.Overlap >= opts.ChunkSize {
		opts.Overlap = opts.ChunkSize / 5
	}
	return &Chunker{opts: opts}
}

// span is a half-open [start, end) range into the document text.
type span struct {
	start int
	end   int
}

// Chunk splits the document's text into ordered, context-annotated
// chunks. Empty or whitespace-only text yields an empty list, not an
// error.
func (c *Chunker) Chunk(doc *store.Document) []*store.Chunk {
	text := doc.Text
	if strings.TrimSpace(text) == "" {
		return []*store.Chunk{}
	}

	var spans []span
	for _, seg := range c.splitStructural(text) {
		spans = append(spans, c.splitOversized(text, seg)...)
	}

	// Drop whitespace-only spans and trim chunk edges, keeping offsets
	// exact against the original text.
	chunks := make([]*store.Chunk, 0, len(spans))
	for _, s := range spans {
		s = trimSpan(text, s)
		if s.start >= s.end {
			continue
		}
		chunks = append(chunks, &store.Chunk{
			DocumentID:   doc.ID,
			Index:        len(chunks),
			OriginalText: text[s.start:s.end],
			StartOffset:  s.start,
			Length:       s.end - s.start,
		})
	}

	annotate(doc, chunks)
	return chunks
}

// splitStructural slices the text at section headers and paragraph
// breaks, then accumulates adjacent segments up to the chunk size.
func (c *Chunker) splitStructural(text string) []span {
	boundaries := map[int]struct{}{0: {}, len(text): {}}
	for _, m := range boldHeaderPattern.FindAllStringIndex(text, -1) {
		boundaries[m[0]] = struct{}{}
	}
	for _, m := range markdownHeaderPattern.FindAllStringIndex(text, -1) {
		boundaries[m[0]] = struct{}{}
	}
	for _, m := range paragraphBreakPattern.FindAllStringIndex(text, -1) {
		boundaries[m[1]] = struct{}{}
	}

	cuts := make([]int, 0, len(boundaries))
	for b := range boundaries {
		cuts = append(cuts, b)
	}
	sort.Ints(cuts)

	// Accumulate segments so small paragraphs share a chunk.
	var out []span
	var current span
	haveCurrent := false
	for i := 0; i+1 < len(cuts); i++ {
		seg := span{start: cuts[i], end: cuts[i+1]}
		if strings.TrimSpace(text[seg.start:seg.end]) == "" {
			continue
		}
		if !haveCurrent {
			current = seg
			haveCurrent = true
			continue
		}
		merged := span{start: current.start, end: seg.end}
		if wordCount(text[merged.start:merged.end]) <= c.opts.ChunkSize {
			current = merged
			continue
		}
		out = append(out, current)
		current = c.withOverlap(text, current, seg)
	}
	if haveCurrent {
		out = append(out, current)
	}
	return out
}

// splitOversized breaks a segment that exceeds the chunk size into
// sentence-accumulated chunks, windowing any single run of text that
// has no usable sentence boundaries.
func (c *Chunker) splitOversized(text string, seg span) []span {
	if wordCount(text[seg.start:seg.end]) <= c.opts.ChunkSize {
		return []span{seg}
	}

	sentences := sentenceSpans(text, seg)

	var out []span
	var current span
	haveCurrent := false
	flush := func() {
		if haveCurrent {
			out = append(out, current)
			haveCurrent = false
		}
	}

	for _, sent := range sentences {
		if wordCount(text[sent.start:sent.end]) > c.opts.ChunkSize {
			flush()
			out = append(out, c.windowSplit(text, sent)...)
			continue
		}
		if !haveCurrent {
			current = sent
			haveCurrent = true
			continue
		}
		merged := span{start: current.start, end: sent.end}
		if wordCount(text[merged.start:merged.end]) <= c.opts.ChunkSize {
			current = merged
			continue
		}
		out = append(out, current)
		current = c.withOverlap(text, current, sent)
	}
	flush()
	return out
}

// withOverlap starts the next chunk Overlap words before the end of
// the previous one, so consecutive chunks share a short run of text.
// Offsets stay exact: the shared words are the previous chunk's own
// tail, re-addressed in the source text.
func (c *Chunker) withOverlap(text string, prev, next span) span {
	if c.opts.Overlap <= 0 {
		return next
	}
	words := wordSpans(text, prev)
	if len(words) == 0 {
		return next
	}
	n := c.opts.Overlap
	if n > len(words) {
		n = len(words)
	}
	if start := words[len(words)-n].start; start < next.start {
		next.start = start
	}
	return next
}

// windowSplit chops a span into fixed-size word windows with overlap.
// Last-resort path for text without punctuation; guarantees coverage.
func (c *Chunker) windowSplit(text string, seg span) []span {
	words := wordSpans(text, seg)
	if len(words) == 0 {
		return nil
	}

	step := c.opts.ChunkSize - c.opts.Overlap
	if step <= 0 {
		step = c.opts.ChunkSize
	}

	var out []span
	for i := 0; i < len(words); i += step {
		end := i + c.opts.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		out = append(out, span{start: words[i].start, end: words[end-1].end})
		if end == len(words) {
			break
		}
	}
	return out
}

// sentenceSpans splits a segment at sentence-ending punctuation,
// keeping the punctuation and trailing whitespace with the sentence so
// consecutive spans stay contiguous.
func sentenceSpans(text string, seg span) []span {
	segment := text[seg.start:seg.end]
	matches := sentenceEndPattern.FindAllStringIndex(segment, -1)

	var out []span
	prev := 0
	for _, m := range matches {
		out = append(out, span{start: seg.start + prev, end: seg.start + m[1]})
		prev = m[1]
	}
	if prev < len(segment) {
		out = append(out, span{start: seg.start + prev, end: seg.end})
	}
	return out
}

// wordSpans returns the offsets of whitespace-delimited words inside a
// segment.
func wordSpans(text string, seg span) []span {
	var out []span
	inWord := false
	start := 0
	for i, r := range text[seg.start:seg.end] {
		if unicode.IsSpace(r) {
			if inWord {
				out = append(out, span{start: seg.start + start, end: seg.start + i})
				inWord = false
			}
			continue
		}
		if !inWord {
			start = i
			inWord = true
		}
	}
	if inWord {
		out = append(out, span{start: seg.start + start, end: seg.end})
	}
	return out
}

// annotate attaches the contextual prefix to every chunk. The prefix
// names the source document, its category and the chunk's position so
// fragments keep enough context for lexical and embedding retrieval.
func annotate(doc *store.Document, chunks []*store.Chunk) {
	n := len(chunks)
	for _, ch := range chunks {
		prefix := fmt.Sprintf("This is chunk %d of %d from Document: %s, Category: %s",
			ch.Index+1, n, doc.Name, doc.Category)
		ch.ContextualizedText = prefix + "\n\n" + ch.OriginalText
	}
}

// trimSpan shrinks a span to exclude leading and trailing whitespace.
func trimSpan(text string, s span) span {
	for s.start < s.end {
		r := rune(text[s.start])
		if !unicode.IsSpace(r) {
			break
		}
		s.start++
	}
	for s.end > s.start {
		r := rune(text[s.end-1])
		if !unicode.IsSpace(r) {
			break
		}
		s.end--
	}
	return s
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
