// Package scanner walks a directory and describes the files it finds so they
// can be published as resources.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"

	"mcp-toolserver/pkg/errors"
)

// DefaultExtensions is used when a scan names no extensions.
var DefaultExtensions = []string{".md"}

var markdown = goldmark.New()

// Entry describes one file found under the scan root.
type Entry struct {
	Path     string    `json:"path"`
	RelPath  string    `json:"relPath"`
	Title    string    `json:"title"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modTime"`
	Checksum string    `json:"checksum"`
}

// Index is the result of a scan. Entries are ordered by RelPath. Files that
// could not be read, or that are not text, are listed in Errors and left out
// of Entries.
type Index struct {
	Root    string   `json:"root"`
	Entries []Entry  `json:"entries"`
	Errors  []string `json:"errors"`
}

// Scanner finds files by extension.
type Scanner struct {
	extensions map[string]bool
	maxWorkers int
}

// New creates a Scanner matching the given extensions, case-insensitively.
// A leading dot is optional.
func New(extensions ...string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	s := &Scanner{
		extensions: make(map[string]bool, len(extensions)),
		maxWorkers: runtime.NumCPU() * 2,
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extensions[ext] = true
	}
	return s
}

// Scan walks root and describes every matching file. Hidden directories are
// skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (*Index, error) {
	if root == "" {
		return nil, errors.NewRegistrationError("scan root cannot be empty", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.NewRegistrationError("scan root is not accessible", err).WithContext("path", root)
	}
	if !info.IsDir() {
		return nil, errors.NewRegistrationError(fmt.Sprintf("%s is not a directory", root), nil)
	}

	paths, err := s.collect(abs)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(paths))
	failures := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount(len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := describe(path)
			if err != nil {
				failures[i] = err
				return nil
			}
			entry.RelPath, _ = filepath.Rel(abs, path)
			entry.RelPath = filepath.ToSlash(entry.RelPath)
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{Root: abs, Entries: make([]Entry, 0, len(paths)), Errors: []string{}}
	for i := range paths {
		if failures[i] != nil {
			rel, _ := filepath.Rel(abs, paths[i])
			idx.Errors = append(idx.Errors, fmt.Sprintf("%s: %v", filepath.ToSlash(rel), failures[i]))
			continue
		}
		idx.Entries = append(idx.Entries, entries[i])
	}
	return idx, nil
}

// collect returns matching files in lexical order.
func (s *Scanner) collect(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && s.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewRegistrationError("failed to scan directory", err).WithContext("path", root)
	}
	return paths, nil
}

func (s *Scanner) workerCount(files int) int {
	switch {
	case files < 1:
		return 1
	case files < s.maxWorkers:
		return files
	default:
		return s.maxWorkers
	}
}

func describe(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	if !isText(content) {
		return Entry{}, fmt.Errorf("not a text file")
	}

	sum := sha256.Sum256(content)
	entry := Entry{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Checksum: hex.EncodeToString(sum[:]),
	}
	if IsMarkdown(path) {
		entry.Title = Title(content)
	}
	if entry.Title == "" {
		entry.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return entry, nil
}

// IsMarkdown reports whether path has a markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Title returns the text of the first level-one heading, or "" when the
// document has none.
func Title(content []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(content))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !entering || !ok || heading.Level != 1 {
			return ast.WalkContinue, nil
		}
		var buf strings.Builder
		for child := heading.FirstChild(); child != nil; child = child.NextSibling() {
			if t, ok := child.(*ast.Text); ok {
				buf.Write(t.Segment.Value(content))
			}
		}
		title = strings.TrimSpace(buf.String())
		return ast.WalkStop, nil
	})
	return title
}

func isText(content []byte) bool {
	return !bytes.ContainsRune(content, 0) && utf8.Valid(content)
}
