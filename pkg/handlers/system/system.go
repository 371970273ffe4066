// Package system provides the built-in tools every server exposes.
package system

import (
	"context"
	"runtime"
	"time"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

// Set implements handlers.Set. Bind must be called once the registries are
// built and before the server starts serving.
type Set struct {
	info    models.ServerInfo
	started time.Time

	dispatcher *tools.Dispatcher
	resources  *resources.Registry
}

// New creates the system handler set
func New(info models.ServerInfo) *Set {
	return &Set{info: info, started: time.Now()}
}

// Bind gives the set access to the running registries
func (s *Set) Bind(dispatcher *tools.Dispatcher, resources *resources.Registry) {
	s.dispatcher = dispatcher
	s.resources = resources
}

// Name implements handlers.Set
func (s *Set) Name() string { return config.HandlerSystem }

type echoInput struct {
	Text string `json:"text" jsonschema:"text to return unchanged"`
}

type noInput struct{}

// Info is the payload of server_info
type Info struct {
	Name          string  `json:"name"`
	Version       string  `json:"version"`
	GoVersion     string  `json:"goVersion"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Tools         int     `json:"tools"`
	Resources     int     `json:"resources"`
}

// Tools implements handlers.Set
func (s *Set) Tools() []tools.Tool {
	return []tools.Tool{
		tools.MustTypedTool("echo", "Returns the given text unchanged",
			func(_ context.Context, in echoInput) (string, error) {
				return in.Text, nil
			}),
		tools.MustTypedTool("server_info", "Describes the running server",
			func(context.Context, noInput) (Info, error) {
				return s.serverInfo(), nil
			}),
	}
}

func (s *Set) serverInfo() Info {
	info := Info{
		Name:          s.info.Name,
		Version:       s.info.Version,
		GoVersion:     runtime.Version(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.dispatcher != nil {
		info.Tools = s.dispatcher.Registry().Len()
	}
	if s.resources != nil {
		info.Resources = s.resources.Len()
	}
	return info
}

// Resources implements handlers.Set
func (s *Set) Resources() []resources.Resource {
	return []resources.Resource{{
		Descriptor: models.ResourceDescriptor{
			Name:        "status",
			URI:         config.ResourceURI("status"),
			MimeType:    config.MimeTypeJSON,
			Description: "Liveness and dispatch statistics",
		},
		Provider: resources.JSON(func(context.Context) (any, error) {
			return s.status(), nil
		}),
	}}
}

type status struct {
	OK            bool                 `json:"ok"`
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	UptimeSeconds float64              `json:"uptimeSeconds"`
	Dispatch      *tools.DispatchStats `json:"dispatch,omitempty"`
}

func (s *Set) status() status {
	st := status{
		OK:            true,
		Name:          s.info.Name,
		Version:       s.info.Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
	}
	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		st.Dispatch = &stats
	}
	return st
}
