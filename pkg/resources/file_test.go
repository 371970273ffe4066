package resources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileProviderCachesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, "first")

	files := NewFileSet(nil, false)
	defer files.Close()
	provider, err := files.Provider(path, false)
	require.NoError(t, err)

	content, err := provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", content)

	writeFile(t, path, "second")
	content, err = provider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", content, "unwatched files stay cached")

	stats := files.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestFileProviderInvalidatesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, path, "# v1")

	files := NewFileSet(nil, true)
	defer files.Close()
	provider, err := files.Provider(path, false)
	require.NoError(t, err)

	content, err := provider(context.Background())
	require.NoError(t, err)
	require.Equal(t, "# v1", content)

	writeFile(t, path, "# v2")

	assert.Eventually(t, func() bool {
		content, err := provider(context.Background())
		return err == nil && content == "# v2"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestFileProviderRendersMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.md")
	writeFile(t, path, "# Guide\n\nSome *text*.\n")

	files := NewFileSet(nil, false)
	provider, err := files.Provider(path, true)
	require.NoError(t, err)

	content, err := provider(context.Background())
	require.NoError(t, err)
	assert.Contains(t, content, "<h1>Guide</h1>")
	assert.Contains(t, content, "<em>text</em>")
}

func TestFileProviderErrors(t *testing.T) {
	files := NewFileSet(nil, false)

	_, err := files.Provider(filepath.Join(t.TempDir(), "missing.txt"), false)
	assert.Error(t, err)

	_, err = files.Provider(t.TempDir(), false)
	assert.Error(t, err)
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "text/markdown", MimeTypeFor("a.md", false))
	assert.Equal(t, "text/html", MimeTypeFor("a.md", true))
	assert.Equal(t, "application/json", MimeTypeFor("a.JSON", false))
	assert.Equal(t, "text/plain", MimeTypeFor("a", false))
}
