package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/store"
)

func testDoc(text string) *store.Document {
	return &store.Document{
		ID:       "doc1",
		Name:     "Billing FAQ",
		Category: "billing",
		Text:     text,
		Active:   true,
	}
}

func TestChunk_EmptyText(t *testing.T) {
	c := New(DefaultOptions())

	assert.Empty(t, c.Chunk(testDoc("")))
	assert.Empty(t, c.Chunk(testDoc("   \n\t  ")))
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := New(DefaultOptions())
	text := "Refunds: Contact billing@x.com within 30 days."

	chunks := c.Chunk(testDoc(text))
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].OriginalText)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(text), chunks[0].Length)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunk_ContextAnnotation(t *testing.T) {
	c := New(Options{ChunkSize: 5, Overlap: 1})
	text := "First paragraph about refunds.\n\nSecond paragraph about shipping policies."

	chunks := c.Chunk(testDoc(text))
	require.NotEmpty(t, chunks)

	n := len(chunks)
	for i, ch := range chunks {
		wantPrefix := fmt.Sprintf("This is chunk %d of %d from Document: Billing FAQ, Category: billing", i+1, n)
		assert.True(t, strings.HasPrefix(ch.ContextualizedText, wantPrefix),
			"chunk %d prefix = %q", i, ch.ContextualizedText)
		assert.True(t, strings.HasSuffix(ch.ContextualizedText, ch.OriginalText))
	}
}

func TestChunk_OffsetsMatchSourceText(t *testing.T) {
	c := New(Options{ChunkSize: 10, Overlap: 2})
	text := "**Returns**\nItems can be returned within 30 days of purchase. " +
		"Refunds are issued to the original payment method.\n\n" +
		"**Shipping**\nStandard shipping takes five business days. " +
		"Express shipping is available for an additional fee."

	doc := testDoc(text)
	for _, ch := range c.Chunk(doc) {
		assert.Equal(t, text[ch.StartOffset:ch.StartOffset+ch.Length], ch.OriginalText)
	}
}

func TestChunk_SectionHeadersStartNewChunks(t *testing.T) {
	c := New(Options{ChunkSize: 8, Overlap: 2})
	text := "**Returns**\nReturn items within 30 days.\n\n**Shipping**\nShipping takes five days."

	chunks := c.Chunk(testDoc(text))
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, chunks[0].OriginalText, "Returns")
	assert.NotContains(t, chunks[0].OriginalText, "Shipping")
	found := false
	for _, ch := range chunks {
		if ch.StartOffset > 0 && strings.Contains(ch.OriginalText, "**Shipping**") {
			found = true
		}
	}
	assert.True(t, found, "expected the Shipping header to open a later chunk")
}

func TestChunk_ParagraphChunksOverlap(t *testing.T) {
	c := New(Options{ChunkSize: 8, Overlap: 2})
	text := "**Returns**\nReturn items within 30 days.\n\n**Shipping**\nShipping takes five days."

	chunks := c.Chunk(testDoc(text))
	require.Len(t, chunks, 2)

	// The second chunk repeats the last Overlap words of the first.
	first := strings.Fields(chunks[0].OriginalText)
	second := strings.Fields(chunks[1].OriginalText)
	assert.Equal(t, first[len(first)-2:], second[:2])
	assert.Contains(t, chunks[1].OriginalText, "**Shipping**")
}

func TestChunk_SentenceChunksOverlap(t *testing.T) {
	c := New(Options{ChunkSize: 12, Overlap: 2})

	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about our support policy in detail. ", i)
	}
	chunks := c.Chunk(testDoc(b.String()))
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1].OriginalText)
		cur := strings.Fields(chunks[i].OriginalText)
		assert.Equal(t, prev[len(prev)-2:], cur[:2],
			"chunk %d should repeat the tail of chunk %d", i, i-1)
	}
}

func TestChunk_OversizedSectionSplitsBySentence(t *testing.T) {
	c := New(Options{ChunkSize: 12, Overlap: 2})

	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about our support policy in detail. ", i)
	}
	chunks := c.Chunk(testDoc(b.String()))

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		words := len(strings.Fields(ch.OriginalText))
		assert.LessOrEqual(t, words, 12, "chunk %q too large", ch.OriginalText)
	}
}

func TestChunk_NoPunctuationFallsBackToWindows(t *testing.T) {
	c := New(Options{ChunkSize: 10, Overlap: 3})

	words := make([]string, 50)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	text := strings.Join(words, " ")

	chunks := c.Chunk(testDoc(text))
	require.Greater(t, len(chunks), 1)

	// Consecutive window chunks overlap by the configured word count.
	first := strings.Fields(chunks[0].OriginalText)
	second := strings.Fields(chunks[1].OriginalText)
	assert.Equal(t, first[len(first)-3:], second[:3])
}

func TestChunk_Coverage(t *testing.T) {
	texts := []string{
		"Short single sentence.",
		"**Header**\nBody text under a header. Another sentence follows here.\n\nSecond paragraph content.",
		strings.Repeat("no punctuation here just words ", 40),
		"# Title\nIntro paragraph. More text!\n\n## Subsection\nDeep content? Yes indeed. Final words.",
	}

	c := New(Options{ChunkSize: 10, Overlap: 3})
	for _, text := range texts {
		chunks := c.Chunk(testDoc(text))
		require.NotEmpty(t, chunks, "text: %q", text)

		// Every non-whitespace character must be inside some chunk.
		covered := make([]bool, len(text))
		for _, ch := range chunks {
			for i := ch.StartOffset; i < ch.StartOffset+ch.Length; i++ {
				covered[i] = true
			}
		}
		for i, r := range text {
			if strings.ContainsRune(" \t\n", r) {
				continue
			}
			assert.True(t, covered[i], "character %d (%q) uncovered in %q", i, r, text)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(DefaultOptions())
	text := "**Policies**\nRefunds take five days. Exchanges take three days.\n\nContact support for details."

	first := c.Chunk(testDoc(text))
	second := c.Chunk(testDoc(text))
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, *first[i], *second[i])
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, DefaultChunkSize, c.opts.ChunkSize)
	assert.Equal(t, DefaultChunkSize/5, c.opts.Overlap)

	c = New(Options{ChunkSize: 10, Overlap: 20})
	assert.Equal(t, 2, c.opts.Overlap)
}
