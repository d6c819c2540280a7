// Package tools exposes the knowledge-base operations as named, schema-checked
// tools. Every invocation answers with an Envelope, never a bare error, so the
// protocol layer can hand results straight to the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

// Descriptor declares the static interface of a tool.
type Descriptor struct {
	Name        string
	Title       string
	Description string
	InputSchema *jsonschema.Schema
	ReadOnly    bool
	Idempotent  bool
}

// Tool is a callable unit. Invoke receives the raw JSON arguments after they
// have passed schema validation.
type Tool interface {
	Describe() Descriptor
	Invoke(ctx context.Context, args json.RawMessage) (Result, error)
}

// Result is the successful outcome of a tool call.
type Result struct {
	Data    any
	Message string
}

// Envelope is the uniform answer to every tool call.
type Envelope struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   *errmodel.Error `json:"error,omitempty"`
}

// Failure wraps err in a failure envelope.
func Failure(err error) Envelope {
	ce := errmodel.From(err)
	return Envelope{Success: false, Message: ce.Message, Error: ce}
}

// Registry keeps tools by name in registration order.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	order  []string
	logger hclog.Logger
	tracer trace.Tracer
}

type entry struct {
	tool   Tool
	schema *compiledSchema
}

// NewEmptyRegistry returns a registry with no tools.
func NewEmptyRegistry(logger hclog.Logger) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		tools:  map[string]*entry{},
		logger: logger.Named("tools"),
		tracer: otel.Tracer("dify-rag-mcp/tools"),
	}
}

// Register adds t. Names must be unique and schemas must compile.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool is nil")
	}
	d := t.Describe()
	if d.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	cs, err := compileSchema(d.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %q: %w", d.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool %q already registered", d.Name)
	}
	r.tools[d.Name] = &entry{tool: t, schema: cs}
	r.order = append(r.order, d.Name)
	return nil
}

// Resolve returns a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Descriptors lists every tool in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n].tool.Describe())
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke resolves, validates and runs one tool. It never returns an error:
// unknown names, invalid arguments, upstream failures and panics all come back
// as failure envelopes.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (env Envelope) {
	ctx, span := r.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attribute.String("tool.name", name)))
	defer span.End()
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", v)
			env = Failure(errmodel.API(0, fmt.Sprintf("Unexpected error: tool %q panicked: %v", name, v), nil))
		}
		if !env.Success {
			span.SetStatus(codes.Error, env.Message)
			if env.Error != nil {
				span.SetAttributes(attribute.String("error.kind", string(env.Error.Kind)))
			}
		}
	}()

	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Envelope{Success: false, Message: fmt.Sprintf("unknown tool %q", name), Error: errmodel.NotFound(fmt.Sprintf("unknown tool %q", name))}
	}
	args = normalizeArgs(args)
	if err := e.schema.validate(args); err != nil {
		r.logger.Debug("tool arguments rejected", "tool", name, "error", err)
		return Failure(err)
	}
	res, err := e.tool.Invoke(ctx, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "kind", errmodel.KindOf(err), "error", err)
		return Failure(err)
	}
	r.logger.Debug("tool succeeded", "tool", name)
	return Envelope{Success: true, Data: res.Data, Message: res.Message}
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	if len(args) == 0 || string(args) == "null" {
		return json.RawMessage("{}")
	}
	return args
}
