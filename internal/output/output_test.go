package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newPlainWriter() (*Writer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewWithColor(buf, false), buf
}

func TestWriter_Status(t *testing.T) {
	w, buf := newPlainWriter()

	w.Status("🔍", "Searching knowledge base...")

	assert.Contains(t, buf.String(), "🔍")
	assert.Contains(t, buf.String(), "Searching knowledge base...")
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	w, buf := newPlainWriter()

	w.Status("", "3 documents skipped")

	assert.Equal(t, "   3 documents skipped\n", buf.String())
}

func TestWriter_IconMessages(t *testing.T) {
	w, buf := newPlainWriter()

	w.Successf("Indexed %d documents", 12)
	w.Warning("no embedding provider, keyword search only")
	w.Errorf("rebuild failed: %s", "corpus unreadable")

	out := buf.String()
	assert.Contains(t, out, "✅ Indexed 12 documents")
	assert.Contains(t, out, "⚠️  no embedding provider, keyword search only")
	assert.Contains(t, out, "❌ rebuild failed: corpus unreadable")
}

func TestWriter_KeyValue_Aligns(t *testing.T) {
	w, buf := newPlainWriter()

	w.KeyValue("State", "ready")
	w.KeyValue("Documents", "42")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "State:")
	assert.Contains(t, lines[0], "ready")
	assert.Contains(t, lines[1], "Documents:")
}

func TestWriter_Code_IndentsEveryLine(t *testing.T) {
	w, buf := newPlainWriter()

	w.Code("line one\nline two")

	assert.Contains(t, buf.String(), "  line one\n")
	assert.Contains(t, buf.String(), "  line two\n")
}

func TestWriter_Progress(t *testing.T) {
	w, buf := newPlainWriter()

	w.Progress(21, 42, "Embedding chunks")

	out := buf.String()
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "Embedding chunks")
	assert.NotContains(t, out, "\n", "in-flight progress stays on one line")

	w.Progress(42, 42, "Embedding chunks")
	assert.Contains(t, buf.String(), "\n", "completion terminates the line")
}

func TestWriter_Progress_ZeroTotalIsNoOp(t *testing.T) {
	w, buf := newPlainWriter()

	w.Progress(0, 0, "Embedding chunks")

	assert.Empty(t, buf.String())
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		total      int
		width      int
		wantFilled int
	}{
		{"empty", 0, 100, 10, 0},
		{"half", 50, 100, 10, 5},
		{"full", 100, 100, 10, 10},
		{"overshoot clamps", 150, 100, 10, 10},
		{"quarter at width 20", 25, 100, 20, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := renderProgressBar(tt.current, tt.total, tt.width)
			assert.Equal(t, tt.wantFilled, strings.Count(bar, "█"))
			assert.Equal(t, tt.width, len([]rune(bar)))
		})
	}
}

func TestNew_BufferIsNotATerminal(t *testing.T) {
	// A bytes.Buffer is never a TTY, so New must pick plain styles and
	// emit no escape sequences.
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("done")

	assert.NotContains(t, buf.String(), "\x1b[")
}
