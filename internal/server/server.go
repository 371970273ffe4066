package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/metrics"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

const metricsShutdownTimeout = 5 * time.Second

// Server owns the registries and serves them over one transport
type Server struct {
	info        models.ServerInfo
	transport   string
	listenAddr  string
	metricsAddr string

	dispatcher *tools.Dispatcher
	resources  *resources.Registry
	metrics    *metrics.Metrics

	loggingManager *logging.LoggingManager
	logger         *logging.StructuredLogger

	stdin        io.Reader
	stdout       io.Writer
	mcpTransport mcp.Transport

	// closers run in reverse order on Shutdown
	closers []func(context.Context) error

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

// Info returns the server identity
func (s *Server) Info() models.ServerInfo {
	return s.info
}

// Dispatcher returns the tool dispatcher
func (s *Server) Dispatcher() *tools.Dispatcher {
	return s.dispatcher
}

// Resources returns the resource registry
func (s *Server) Resources() *resources.Registry {
	return s.resources
}

// Start serves the configured transport until ctx is cancelled or, for the
// stdio transports, until the input reaches EOF. The metrics and health
// endpoints run alongside the transport when an address is configured.
func (s *Server) Start(ctx context.Context) error {
	startTime := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if s.metricsAddr != "" {
		httpServer := &http.Server{Addr: s.metricsAddr, Handler: s.httpHandler(), ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			s.logger.WithContext("addr", s.metricsAddr).Info("Serving metrics")
			if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer done()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return s.serve(gctx)
	})

	s.loggingManager.LogStartupSequence("server_ready", map[string]any{
		"transport": s.transport,
		"tools":     s.dispatcher.Registry().Len(),
		"resources": s.resources.Len(),
	}, time.Since(startTime), true)

	err := g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) serve(ctx context.Context) error {
	switch s.transport {
	case config.TransportTCP:
		return s.serveTCP(ctx)
	case config.TransportMCP:
		return s.serveMCP(ctx)
	default:
		s.loggingManager.LogTransportEvent(config.TransportEnvelope, "open", nil)
		defer s.loggingManager.LogTransportEvent(config.TransportEnvelope, "close", nil)
		return s.processMessages(ctx, s.stdin, s.stdout)
	}
}

func (s *Server) serveMCP(ctx context.Context) error {
	transport := s.mcpTransport
	if transport == nil {
		transport = &mcp.StdioTransport{}
	}
	s.loggingManager.LogTransportEvent(config.TransportMCP, "open", nil)
	defer s.loggingManager.LogTransportEvent(config.TransportMCP, "close", nil)

	err := newMCPServer(s.info, s.dispatcher, s.resources, s.loggingManager.Slog("mcp")).Run(ctx, transport)
	if err != nil && (stderrors.Is(err, io.EOF) || ctx.Err() != nil) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and releases file watchers and the
// tracer. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownStart := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	closers := s.closers
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	err := stderrors.Join(errs...)

	details := map[string]any{}
	if s.dispatcher != nil {
		details["dispatch"] = s.dispatcher.Stats().String()
	}
	if err != nil {
		details["error"] = err.Error()
	}
	s.loggingManager.LogShutdownSequence("shutdown_complete", details, time.Since(shutdownStart), err == nil)
	return err
}

func defaultIO(in io.Reader, out io.Writer) (io.Reader, io.Writer) {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return in, out
}
