// Package resources holds read-only content providers addressed by name or URI.
package resources

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/metrics"
)

// Provider produces the current content of a resource. The returned string
// is passed to callers unmodified.
type Provider func(ctx context.Context) (string, error)

// Resource pairs a descriptor with its provider
type Resource struct {
	Descriptor models.ResourceDescriptor
	Provider   Provider
}

// Builder collects resource registrations during startup
type Builder struct {
	byName map[string]Resource
	byURI  map[string]string
	order  []string
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		byName: make(map[string]Resource),
		byURI:  make(map[string]string),
	}
}

// Register adds a resource. Names and URIs must both be unique. A missing
// URI defaults to toolserver://<name>.
func (b *Builder) Register(descriptor models.ResourceDescriptor, provider Provider) error {
	name := descriptor.Name
	if name == "" {
		return errors.NewRegistrationError("resource name cannot be empty", nil)
	}
	if provider == nil {
		return errors.NewRegistrationError(fmt.Sprintf("resource %s has no provider", name), nil)
	}
	if descriptor.URI == "" {
		descriptor.URI = "toolserver://" + name
	}
	if _, err := url.Parse(descriptor.URI); err != nil {
		return errors.NewRegistrationError(fmt.Sprintf("resource %s has an invalid uri", name), err).
			WithContext("uri", descriptor.URI)
	}
	if _, exists := b.byName[name]; exists {
		return errors.NewDuplicateResourceError(name)
	}
	if owner, exists := b.byURI[descriptor.URI]; exists {
		return errors.NewDuplicateResourceError(name).
			WithDetails(fmt.Sprintf("uri %s is already used by %s", descriptor.URI, owner))
	}

	b.byName[name] = Resource{Descriptor: descriptor, Provider: provider}
	b.byURI[descriptor.URI] = name
	b.order = append(b.order, name)
	return nil
}

// RegisterResource adds a prepared Resource
func (b *Builder) RegisterResource(r Resource) error {
	return b.Register(r.Descriptor, r.Provider)
}

// BuildOption configures the built Registry
type BuildOption func(*Registry)

// WithLogging reports every read through lm
func WithLogging(lm *logging.LoggingManager) BuildOption {
	return func(r *Registry) { r.logging = lm }
}

// WithMetrics counts reads on m
func WithMetrics(m *metrics.Metrics) BuildOption {
	return func(r *Registry) { r.metrics = m }
}

// WithTracer wraps every read in a span
func WithTracer(tracer trace.Tracer) BuildOption {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// Build freezes the registrations into a read-only Registry
func (b *Builder) Build(opts ...BuildOption) *Registry {
	r := &Registry{
		byName: make(map[string]Resource, len(b.byName)),
		byURI:  make(map[string]string, len(b.byURI)),
		order:  append([]string(nil), b.order...),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for k, v := range b.byName {
		r.byName[k] = v
	}
	for k, v := range b.byURI {
		r.byURI[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry serves resource reads. It is immutable after Build.
type Registry struct {
	byName map[string]Resource
	byURI  map[string]string
	order  []string

	logging *logging.LoggingManager
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Read returns the content of the named resource
func (r *Registry) Read(ctx context.Context, name string) (string, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "resources/"+name, trace.WithAttributes(
		attribute.String("resource.name", name),
	))
	defer span.End()

	res, ok := r.byName[name]
	if !ok {
		err := errors.NewUnknownResourceError(name)
		r.finish(span, name, false, err, start)
		return "", err
	}

	content, err := r.provide(ctx, name, res.Provider)
	r.finish(span, name, true, err, start)
	if err != nil {
		return "", err
	}
	return content, nil
}

// ReadURI resolves uri to a registered resource and reads it
func (r *Registry) ReadURI(ctx context.Context, uri string) (string, error) {
	name, ok := r.byURI[uri]
	if !ok {
		return "", errors.NewUnknownResourceError(uri)
	}
	return r.Read(ctx, name)
}

// Lookup returns the descriptor registered under name
func (r *Registry) Lookup(name string) (models.ResourceDescriptor, bool) {
	res, ok := r.byName[name]
	return res.Descriptor, ok
}

// LookupURI returns the descriptor registered under uri
func (r *Registry) LookupURI(uri string) (models.ResourceDescriptor, bool) {
	name, ok := r.byURI[uri]
	if !ok {
		return models.ResourceDescriptor{}, false
	}
	return r.Lookup(name)
}

// List returns descriptors in registration order
func (r *Registry) List() []models.ResourceDescriptor {
	out := make([]models.ResourceDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Descriptor)
	}
	return out
}

// Len returns the number of registered resources
func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) provide(ctx context.Context, name string, provider Provider) (content string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.NewHandlerPanicError(name, rec).WithContext("resource", name)
		}
	}()

	content, err = provider(ctx)
	if err != nil {
		return "", errors.NewHandlerExecutionError(name, err).WithContext("resource", name)
	}
	return content, nil
}

func (r *Registry) finish(span trace.Span, name string, known bool, err error, start time.Time) {
	status := models.StatusSuccess
	message := ""
	if err != nil {
		status = models.StatusError
		message = errors.Message(err)
		span.SetStatus(codes.Error, message)
		span.RecordError(err)
	}
	r.metrics.ObserveResource(name, known, status)
	if r.logging != nil {
		r.logging.LogResourceRead(name, time.Since(start), err == nil, message)
	}
}
