package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler executes a tool with the given arguments.
// It receives a context for cancellation and the arguments parsed from the
// tools/call request. It returns the single text result of the call.
//
// Business failures (a backend 404, a rejected update) are reported inside the
// text. A non-nil error is reserved for faults the caller cannot act on.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// Tool binds a descriptor to its handler.
type Tool struct {
	Descriptor model.Tool
	Handler    ToolHandler
}

// Name returns the exact name clients call the tool by.
func (t Tool) Name() string {
	return t.Descriptor.Name
}

// Group is a cohesive set of tools registered together, such as every
// customer operation.
type Group struct {
	Name  string
	Tools []Tool
}

// ToolOption configures a tool built with NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	tags    []string
	version string
}

// WithTags sets the tags for a tool.
func WithTags(tags ...string) ToolOption {
	return func(c *toolConfig) {
		c.tags = tags
	}
}

// WithVersion sets the version for a tool.
func WithVersion(v string) ToolOption {
	return func(c *toolConfig) {
		c.version = v
	}
}

func applyToolOptions(opts []ToolOption) toolConfig {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewTool builds a Tool from its published contract and handler. The
// namespace is filled in from the group at registration.
func NewTool(name, description string, inputSchema map[string]any, handler ToolHandler, opts ...ToolOption) Tool {
	cfg := applyToolOptions(opts)
	return Tool{
		Descriptor: model.Tool{
			Tool: mcp.Tool{
				Name:        name,
				Description: description,
				InputSchema: inputSchema,
			},
			Version: cfg.version,
			Tags:    model.NormalizeTags(cfg.tags),
		},
		Handler: handler,
	}
}

// Typed adapts a handler taking a parameter struct into a ToolHandler.
// Arguments are decoded with encoding/json semantics, so struct tags name the
// schema properties. A decode failure is reported as ErrInvalidParams.
func Typed[T any](fn func(ctx context.Context, in T) (string, error)) ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var in T
		if err := decodeArgs(args, &in); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return fn(ctx, in)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
