package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/handlers"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/metrics"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

// fixtureSet is a handler set built from literal tools and resources
type fixtureSet struct {
	name      string
	tools     []tools.Tool
	resources []resources.Resource
}

func (f fixtureSet) Name() string                    { return f.name }
func (f fixtureSet) Tools() []tools.Tool             { return f.tools }
func (f fixtureSet) Resources() []resources.Resource { return f.resources }

var _ handlers.Set = fixtureSet{}

func fixtures() fixtureSet {
	return fixtureSet{
		name: "fixtures",
		tools: []tools.Tool{
			tools.NewTool("boom", "Always fails", nil, func(context.Context, map[string]any) (any, error) {
				return nil, fmt.Errorf("bad input")
			}),
		},
		resources: []resources.Resource{{
			Descriptor: models.ResourceDescriptor{Name: "config", MimeType: config.MimeTypeJSON},
			Provider:   resources.Static(`{"ok":true}`),
		}},
	}
}

func testConfig(handlerSets string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Name:              "test-server",
			Version:           "1.2.3",
			Transport:         config.TransportEnvelope,
			ListenAddr:        "127.0.0.1:0",
			Handlers:          handlerSets,
			ValidateArguments: true,
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts Options) *Server {
	t.Helper()
	opts.Config = cfg
	if opts.LoggingManager == nil {
		opts.LoggingManager = logging.NewLoggingManagerWithWriter(io.Discard)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	}
	s, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestStartEnvelopeStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	s := newTestServer(t, testConfig("system"), Options{
		Stdin:  strings.NewReader(`{"tool":"echo","arguments":{"text":"hi"}}`),
		Stdout: &out,
	})

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop at EOF")
	}
	assert.Equal(t, `{"status":"success","result":"hi"}`+"\n", out.String())
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{})

	assert.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServerAccessors(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{ExtraSets: []handlers.Set{fixtures()}})

	assert.Equal(t, models.ServerInfo{Name: "test-server", Version: "1.2.3"}, s.Info())
	assert.Equal(t, 3, s.Dispatcher().Registry().Len())
	assert.Equal(t, 2, s.Resources().Len())
	assert.Nil(t, s.ListenAddr())
}
