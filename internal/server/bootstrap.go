// Package server assembles the registries from configuration and serves
// them over the envelope, TCP or MCP transport.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/handlers"
	"mcp-toolserver/pkg/handlers/docker"
	"mcp-toolserver/pkg/handlers/github"
	"mcp-toolserver/pkg/handlers/system"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/metrics"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/scanner"
	"mcp-toolserver/pkg/telemetry"
	"mcp-toolserver/pkg/tools"
)

// Options carries everything New needs besides the configuration.
// Zero values select the production defaults.
type Options struct {
	Config   *config.Config
	Manifest *config.Manifest

	LoggingManager *logging.LoggingManager
	Metrics        *metrics.Metrics

	// Runner executes docker and git; defaults to os/exec
	Runner     handlers.Runner
	HTTPClient *http.Client

	// Stdin and Stdout back the envelope transport
	Stdin  io.Reader
	Stdout io.Writer

	// MCPTransport replaces stdio for the mcp transport
	MCPTransport mcp.Transport

	// ExtraSets are registered after the configured handler sets
	ExtraSets []handlers.Set
}

// New builds the registries in a fixed order: handler sets are created and
// checked, tools and resources are registered, the registries are frozen and
// finally the system set is bound to them. Any failure aborts startup.
func New(ctx context.Context, opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("server: missing configuration")
	}
	lm := opts.LoggingManager
	if lm == nil {
		lm = logging.NewLoggingManager()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	info := models.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version}
	lm.SetGlobalContext("service", info.Name)
	lm.SetGlobalContext("version", info.Version)
	logger := lm.GetLogger("server")

	s := &Server{
		info:           info,
		transport:      cfg.Server.Transport,
		listenAddr:     cfg.Server.ListenAddr,
		metricsAddr:    cfg.Server.MetricsAddr,
		metrics:        m,
		loggingManager: lm,
		logger:         logger,
		mcpTransport:   opts.MCPTransport,
	}
	s.stdin, s.stdout = defaultIO(opts.Stdin, opts.Stdout)

	fail := func(err error) (*Server, error) {
		_ = s.Shutdown(context.Background())
		return nil, err
	}

	phaseStart := time.Now()
	tracer, shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		lm.LogStartupSequence("tracing_init", map[string]any{"error": err.Error()}, time.Since(phaseStart), false)
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.closers = append(s.closers, shutdownTracing)

	phaseStart = time.Now()
	systemSet := system.New(info)
	sets, err := buildSets(cfg, systemSet, lm, opts)
	if err != nil {
		return fail(err)
	}
	for _, set := range sets {
		checker, ok := set.(handlers.Checker)
		if !ok {
			continue
		}
		if err := checker.Check(ctx); err != nil {
			lm.LogStartupSequence("dependency_check", map[string]any{
				"handler_set": set.Name(),
				"error":       err.Error(),
			}, time.Since(phaseStart), false)
			return fail(fmt.Errorf("handler set %s: %w", set.Name(), err))
		}
	}
	lm.LogStartupSequence("dependency_check", map[string]any{"handler_sets": setNames(sets)}, time.Since(phaseStart), true)

	phaseStart = time.Now()
	tb, rb := tools.NewBuilder(), resources.NewBuilder()
	if err := handlers.Register(tb, rb, sets...); err != nil {
		return fail(err)
	}
	if opts.Manifest != nil && len(opts.Manifest.Resources) > 0 {
		filesLogger := lm.GetLogger("files")
		files := resources.NewFileSet(filesLogger, cfg.Server.WatchFiles)
		s.closers = append(s.closers, func(context.Context) error { return files.Close() })
		if err := registerManifestResources(ctx, rb, opts.Manifest, files, filesLogger); err != nil {
			return fail(err)
		}
	}

	s.dispatcher = tools.NewDispatcher(tb.Build(), lm,
		tools.WithValidation(cfg.Server.ValidateArguments),
		tools.WithMetrics(m),
		tools.WithTracer(tracer),
	)
	s.resources = rb.Build(
		resources.WithLogging(lm),
		resources.WithMetrics(m),
		resources.WithTracer(tracer),
	)
	systemSet.Bind(s.dispatcher, s.resources)

	lm.LogStartupSequence("registries_built", map[string]any{
		"tools":     s.dispatcher.Registry().Len(),
		"resources": s.resources.Len(),
	}, time.Since(phaseStart), true)

	return s, nil
}

func buildSets(cfg *config.Config, systemSet *system.Set, lm *logging.LoggingManager, opts Options) ([]handlers.Set, error) {
	var sets []handlers.Set
	for _, name := range cfg.HandlerSets() {
		switch name {
		case config.HandlerSystem:
			sets = append(sets, systemSet)
		case config.HandlerDocker:
			sets = append(sets, docker.New(cfg.Docker, opts.Runner))
		case config.HandlerGitHub:
			var ghOpts []github.Option
			if opts.Runner != nil {
				ghOpts = append(ghOpts, github.WithRunner(opts.Runner))
			}
			if opts.HTTPClient != nil {
				ghOpts = append(ghOpts, github.WithHTTPClient(opts.HTTPClient))
			}
			sets = append(sets, github.New(cfg.GitHub, lm, ghOpts...))
		default:
			return nil, fmt.Errorf("unknown handler set %q", name)
		}
	}
	return append(sets, opts.ExtraSets...), nil
}

func setNames(sets []handlers.Set) string {
	names := make([]string, 0, len(sets))
	for _, set := range sets {
		names = append(names, set.Name())
	}
	return strings.Join(names, ",")
}

// registerManifestResources adds the manifest's static, file and directory
// resources. Markdown files without a description use their first heading.
func registerManifestResources(ctx context.Context, rb *resources.Builder, manifest *config.Manifest, files *resources.FileSet, logger *logging.StructuredLogger) error {
	for _, r := range manifest.Resources {
		d := models.ResourceDescriptor{
			Name:        r.Name,
			URI:         r.URI,
			MimeType:    r.MimeType,
			Description: r.Description,
		}

		switch {
		case r.Dir != "":
			if err := registerDirectory(ctx, rb, manifest, r, files, logger); err != nil {
				return err
			}
			continue
		case r.Path != "":
			path := manifest.ResolvePath(r.Path)
			provider, err := files.Provider(path, r.Render)
			if err != nil {
				return fmt.Errorf("resource %s: %w", r.Name, err)
			}
			if d.MimeType == "" {
				d.MimeType = resources.MimeTypeFor(path, r.Render)
			}
			if d.Description == "" && scanner.IsMarkdown(path) {
				if content, err := os.ReadFile(path); err == nil {
					d.Description = scanner.Title(content)
				}
			}
			if err := rb.Register(d, provider); err != nil {
				return err
			}
		default:
			if d.MimeType == "" {
				d.MimeType = config.MimeTypeText
			}
			if err := rb.Register(d, resources.Static(r.Text)); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexEntry is one file in a directory index resource
type indexEntry struct {
	Name     string    `json:"name"`
	URI      string    `json:"uri"`
	Title    string    `json:"title"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"modTime"`
	Checksum string    `json:"checksum"`
}

// registerDirectory publishes every matching file under r.Dir as
// <name>/<relative path>, plus <name> itself as a JSON index of those files.
// URIs hang off r.URI when set.
func registerDirectory(ctx context.Context, rb *resources.Builder, manifest *config.Manifest, r config.ManifestResource, files *resources.FileSet, logger *logging.StructuredLogger) error {
	scan := scanner.New(r.Extensions...)
	root := manifest.ResolvePath(r.Dir)
	idx, err := scan.Scan(ctx, root)
	if err != nil {
		return fmt.Errorf("resource %s: %w", r.Name, err)
	}
	for _, msg := range idx.Errors {
		logger.WithContext("resource", r.Name).WithContext("detail", msg).Warn("Skipping unreadable file")
	}

	base := strings.TrimSuffix(r.URI, "/")
	if base == "" {
		base = config.ResourceURI(r.Name)
	}
	published := make(map[string]bool, len(idx.Entries))
	for _, entry := range idx.Entries {
		published[entry.RelPath] = true
		provider, err := files.Provider(entry.Path, r.Render)
		if err != nil {
			return fmt.Errorf("resource %s: %w", r.Name, err)
		}
		d := models.ResourceDescriptor{
			Name:        r.Name + "/" + entry.RelPath,
			URI:         base + "/" + escapePath(entry.RelPath),
			MimeType:    r.MimeType,
			Description: entry.Title,
		}
		if d.MimeType == "" {
			d.MimeType = resources.MimeTypeFor(entry.Path, r.Render)
		}
		if err := rb.Register(d, provider); err != nil {
			return err
		}
	}

	index := models.ResourceDescriptor{
		Name:        r.Name,
		URI:         base,
		MimeType:    config.MimeTypeJSON,
		Description: r.Description,
	}
	if index.Description == "" {
		index.Description = "Index of files under " + r.Dir
	}
	// Reads rescan so size, modification time and checksum follow edits.
	// Files added after startup are not published and stay out of the index.
	provider := resources.JSON(func(ctx context.Context) (any, error) {
		current, err := scan.Scan(ctx, root)
		if err != nil {
			return nil, err
		}
		entries := make([]indexEntry, 0, len(current.Entries))
		for _, e := range current.Entries {
			if !published[e.RelPath] {
				continue
			}
			entries = append(entries, indexEntry{
				Name:     r.Name + "/" + e.RelPath,
				URI:      base + "/" + escapePath(e.RelPath),
				Title:    e.Title,
				Size:     e.Size,
				ModTime:  e.ModTime.UTC(),
				Checksum: e.Checksum,
			})
		}
		return entries, nil
	})
	if err := rb.Register(index, provider); err != nil {
		return err
	}

	logger.WithContext("resource", r.Name).WithContext("files", len(idx.Entries)).Info("Directory resources registered")
	return nil
}

// escapePath percent-encodes each segment of a slash-separated path
func escapePath(rel string) string {
	segments := strings.Split(rel, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
