package tools

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
)

type entry struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Builder collects tool registrations during startup. It is not safe for
// concurrent use; registration happens on one goroutine before serving.
type Builder struct {
	entries map[string]*entry
	order   []string
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]*entry)}
}

// Register adds a tool. A second registration under the same name fails
// with a duplicate tool error and leaves the first one in place.
func (b *Builder) Register(descriptor models.ToolDescriptor, handler Handler) error {
	name := descriptor.Name
	if name == "" {
		return errors.NewRegistrationError("tool name cannot be empty", nil)
	}
	if handler == nil {
		return errors.NewRegistrationError(fmt.Sprintf("tool %s has no handler", name), nil)
	}
	if _, exists := b.entries[name]; exists {
		return errors.NewDuplicateToolError(name)
	}

	e := &entry{tool: Tool{Descriptor: descriptor, Handler: handler}}
	if descriptor.InputSchema != nil {
		resolved, err := descriptor.InputSchema.Resolve(nil)
		if err != nil {
			return errors.NewRegistrationError(fmt.Sprintf("tool %s has an invalid input schema", name), err)
		}
		e.resolved = resolved
	}

	b.entries[name] = e
	b.order = append(b.order, name)
	return nil
}

// RegisterTool adds a prepared Tool
func (b *Builder) RegisterTool(tool Tool) error {
	return b.Register(tool.Descriptor, tool.Handler)
}

// RegisterAll adds tools in order and stops at the first failure
func (b *Builder) RegisterAll(tools ...Tool) error {
	for _, tool := range tools {
		if err := b.RegisterTool(tool); err != nil {
			return err
		}
	}
	return nil
}

// Build freezes the registrations into a read-only Registry
func (b *Builder) Build() *Registry {
	r := &Registry{
		entries: make(map[string]*entry, len(b.entries)),
		order:   make([]string, len(b.order)),
	}
	for name, e := range b.entries {
		r.entries[name] = e
	}
	copy(r.order, b.order)
	return r
}

// Registry maps tool names to handlers. It is immutable and safe for
// concurrent lookups.
type Registry struct {
	entries map[string]*entry
	order   []string
}

// Lookup returns the tool registered under name
func (r *Registry) Lookup(name string) (Tool, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

func (r *Registry) lookupEntry(name string) (*entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// List returns descriptors in registration order
func (r *Registry) List() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool.Descriptor)
	}
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	return len(r.order)
}
