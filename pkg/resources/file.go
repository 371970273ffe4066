package resources

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"mcp-toolserver/pkg/cache"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/monitor"
)

const renderedSuffix = "#html"

// FileSet serves files from disk through a shared content cache. Cached
// entries are invalidated when the file changes.
type FileSet struct {
	cache    *cache.ContentCache
	markdown goldmark.Markdown
	logger   *logging.StructuredLogger
	watch    bool

	mu      sync.Mutex
	monitor *monitor.FileSystemMonitor
}

// NewFileSet creates a FileSet. When watch is false files are cached until
// the process exits.
func NewFileSet(logger *logging.StructuredLogger, watch bool) *FileSet {
	return &FileSet{
		cache:    cache.NewContentCache(0, logger),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   logger,
		watch:    watch,
	}
}

// Provider returns a provider for path. With renderMarkdown the file is
// converted to HTML before it is cached.
func (fs *FileSet) Provider(path string, renderMarkdown bool) (Provider, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if fs.watch {
		if err := fs.watchDir(filepath.Dir(abs)); err != nil {
			return nil, err
		}
	}

	key := abs
	if renderMarkdown {
		key += renderedSuffix
	}

	return func(ctx context.Context) (string, error) {
		if entry, ok := fs.cache.Get(key); ok {
			return entry.Content, nil
		}
		raw, err := os.ReadFile(abs)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", filepath.Base(abs), err)
		}
		content := string(raw)
		if renderMarkdown {
			var buf bytes.Buffer
			if err := fs.markdown.Convert(raw, &buf); err != nil {
				return "", fmt.Errorf("failed to render %s: %w", filepath.Base(abs), err)
			}
			content = buf.String()
		}
		fs.cache.Set(key, content)
		return content, nil
	}, nil
}

func (fs *FileSet) watchDir(dir string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var callback func(monitor.FileEvent)
	if fs.monitor == nil {
		m, err := monitor.NewFileSystemMonitor(fs.logger)
		if err != nil {
			return err
		}
		fs.monitor = m
		callback = fs.onFileEvent
	}
	return fs.monitor.WatchDirectory(dir, callback)
}

func (fs *FileSet) onFileEvent(event monitor.FileEvent) {
	path := filepath.Clean(event.Path)
	raw := fs.cache.Invalidate(path)
	rendered := fs.cache.Invalidate(path + renderedSuffix)
	if (raw || rendered) && fs.logger != nil {
		fs.logger.WithContext("fs_event_type", event.Type).
			WithContext("fs_path", filepath.Base(path)).
			Info("Resource cache invalidated")
	}
}

// Stats returns the content cache statistics
func (fs *FileSet) Stats() cache.CacheStats {
	return fs.cache.GetStats()
}

// Close stops watching files
func (fs *FileSet) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.monitor == nil {
		return nil
	}
	return fs.monitor.StopWatching()
}

// MimeTypeFor guesses a MIME type from the file extension
func MimeTypeFor(path string, renderMarkdown bool) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		if renderMarkdown {
			return "text/html"
		}
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".html", ".htm":
		return "text/html"
	default:
		return "text/plain"
	}
}
