package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tindevelopers/gorgias-mcp-gcr/registry"

// Config configures a Registry.
type Config struct {
	Logger zerolog.Logger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Stats reports registry statistics.
type Stats struct {
	TotalTools  int    `json:"total_tools"`
	TotalGroups int    `json:"total_groups"`
	Fingerprint string `json:"fingerprint"`
}

type entry struct {
	tool    model.Tool
	handler ToolHandler
	schema  *jsonschema.Schema
	group   string
}

// Registry maps exact tool names to handlers. It is populated once by New and
// is read-only afterwards, so it is safe for concurrent use without locking.
type Registry struct {
	logger zerolog.Logger
	tracer trace.Tracer

	entries     map[string]*entry
	order       []string
	groups      []string
	fingerprint string
}

// New builds a Registry from the given groups, in order. It fails if any tool
// is invalid or if a name is registered twice, within a group or across
// groups.
func New(cfg Config, groups ...Group) (*Registry, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	r := &Registry{
		logger:  cfg.Logger,
		tracer:  tp.Tracer(tracerName),
		entries: make(map[string]*entry),
	}
	for _, g := range groups {
		if err := r.register(g); err != nil {
			return nil, err
		}
	}
	r.fingerprint = computeFingerprint(r.List())

	r.logger.Info().
		Int("tools", len(r.order)).
		Strs("groups", r.groups).
		Str("fingerprint", r.fingerprint).
		Msg("tool registry built")
	return r, nil
}

func (r *Registry) register(g Group) error {
	if g.Name == "" {
		return fmt.Errorf("%w: group name is empty", ErrInvalidTool)
	}

	staged := make([]*entry, 0, len(g.Tools))
	seen := make(map[string]struct{}, len(g.Tools))
	for _, t := range g.Tools {
		tool := t.Descriptor
		tool.Namespace = g.Name
		if err := tool.Validate(); err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidTool, g.Name, tool.Name, err)
		}
		if t.Handler == nil {
			return fmt.Errorf("%w: %s/%s: nil handler", ErrInvalidTool, g.Name, tool.Name)
		}
		if prev, ok := r.entries[tool.Name]; ok {
			return fmt.Errorf("%w: %q in group %s already registered by group %s", ErrDuplicateTool, tool.Name, g.Name, prev.group)
		}
		if _, ok := seen[tool.Name]; ok {
			return fmt.Errorf("%w: %q declared twice in group %s", ErrDuplicateTool, tool.Name, g.Name)
		}
		seen[tool.Name] = struct{}{}

		schema, err := compileSchema(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("%w: %s/%s: %v", ErrInvalidTool, g.Name, tool.Name, err)
		}
		staged = append(staged, &entry{tool: tool, handler: t.Handler, schema: schema, group: g.Name})
	}

	for _, e := range staged {
		r.entries[e.tool.Name] = e
		r.order = append(r.order, e.tool.Name)
	}
	r.groups = append(r.groups, g.Name)
	return nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []model.Tool {
	tools := make([]model.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].tool)
	}
	return tools
}

// Names returns every registered tool name in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Groups returns the registered group names in registration order.
func (r *Registry) Groups() []string {
	return append([]string(nil), r.groups...)
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (model.Tool, bool) {
	e, ok := r.entries[name]
	if !ok {
		return model.Tool{}, false
	}
	return e.tool, true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Fingerprint returns a stable hash of the published catalog.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}

// Stats returns registry statistics.
func (r *Registry) Stats() Stats {
	return Stats{
		TotalTools:  len(r.order),
		TotalGroups: len(r.groups),
		Fingerprint: r.fingerprint,
	}
}

// Dispatch runs the tool registered under the exact name. Arguments are
// validated against the tool's input schema before the handler runs.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (result string, err error) {
	e, ok := r.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	ctx, span := r.tracer.Start(ctx, "tool "+name, trace.WithAttributes(
		attribute.String("mcp.tool.name", name),
		attribute.String("mcp.tool.group", e.group),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		r.logger.Debug().
			Str("tool", name).
			Str("group", e.group).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("tool dispatched")
	}()

	if err := validateArgs(e.schema, args); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return "", fmt.Errorf("%w: %s: %s", ErrInvalidParams, name, validationMessage(verr))
		}
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidParams, name, err)
	}

	return r.invoke(ctx, e, args)
}

func (r *Registry) invoke(ctx context.Context, e *entry, args map[string]any) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrExecutionFailed, e.tool.Name, p)
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return e.handler(ctx, args)
}

// validationMessage flattens the validator's multi-line report into one line
// of causes.
func validationMessage(verr *jsonschema.ValidationError) string {
	lines := strings.Split(strings.TrimSpace(verr.Error()), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	causes := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l != "" {
			causes = append(causes, l)
		}
	}
	if len(causes) == 0 {
		return verr.Error()
	}
	return strings.Join(causes, "; ")
}
