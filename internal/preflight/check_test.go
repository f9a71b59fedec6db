package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpbase/kbengine/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.DocsDir = filepath.Join(dir, "docs")
	cfg.Paths.DataDir = filepath.Join(dir, ".kbengine")
	cfg.Embeddings.Provider = "static"
	require.NoError(t, os.MkdirAll(cfg.Paths.DocsDir, 0o755))
	return cfg
}

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
}

func TestRunAll_StaticProviderPasses(t *testing.T) {
	c := New(WithOutput(&bytes.Buffer{}))
	cfg := testConfig(t)

	results := c.RunAll(context.Background(), cfg)

	require.NotEmpty(t, results)
	assert.False(t, c.HasCriticalFailures(results))

	names := make(map[string]CheckResult, len(results))
	for _, r := range results {
		names[r.Name] = r
	}
	assert.Contains(t, names, "disk_space")
	assert.Contains(t, names, "write_permissions")
	assert.Contains(t, names, "docs_dir")
	assert.Contains(t, names, "file_descriptors")
	assert.Equal(t, StatusPass, names["embedder"].Status)
}

func TestCheckDocsDir_MissingDirectoryFails(t *testing.T) {
	c := New()

	result := c.CheckDocsDir(filepath.Join(t.TempDir(), "nope"))

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckDocsDir_FileIsNotADirectory(t *testing.T) {
	c := New()
	path := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	result := c.CheckDocsDir(path)

	assert.Equal(t, StatusFail, result.Status)
}

func TestCheckWritePermissions_CreatesDataDir(t *testing.T) {
	c := New()
	dataDir := filepath.Join(t.TempDir(), "fresh", ".kbengine")

	result := c.CheckWritePermissions(dataDir)

	assert.Equal(t, StatusPass, result.Status)
	assert.DirExists(t, dataDir)
}

func TestSummaryStatus(t *testing.T) {
	c := New()

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{
		{Name: "a", Status: StatusPass, Required: true},
	}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Name: "a", Status: StatusPass, Required: true},
		{Name: "b", Status: StatusWarn},
	}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{
		{Name: "a", Status: StatusFail, Required: true},
		{Name: "b", Status: StatusWarn},
	}))
	// Optional failures degrade to warnings, never abort startup.
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Name: "a", Status: StatusFail, Required: false},
	}))
}

func TestPrintResults(t *testing.T) {
	buf := &bytes.Buffer{}
	c := New(WithOutput(buf), WithVerbose(true))

	c.PrintResults([]CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "12.0 GB free", Required: true},
		{Name: "ollama", Status: StatusWarn, Message: "not reachable", Details: "start it"},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space: 12.0 GB free")
	assert.Contains(t, out, "[WARN] ollama: not reachable")
	assert.Contains(t, out, "start it")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
	assert.Contains(t, out, "1 warning(s):")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "100.0 MB", FormatBytes(100*1024*1024))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}
