package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
)

const (
	// ProtocolVersion is the MCP revision announced by initialize.
	ProtocolVersion = "2024-11-05"

	DefaultChunkSize  = 500
	DefaultFrameDelay = 10 * time.Millisecond

	tracerName = "github.com/tindevelopers/gorgias-mcp-gcr/gateway"
)

const notInitializedMessage = "MCP server not initialized"

// Options configures a Gateway.
type Options struct {
	ServerInfo mcp.Implementation
	Logger     zerolog.Logger

	// ChunkSize is the number of characters added by each streamed frame.
	ChunkSize int
	// FrameDelay is the pause between streamed frames. Zero means none.
	FrameDelay time.Duration

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Gateway answers MCP protocol methods on behalf of a tool registry. It holds
// no per-request state and is safe for concurrent use.
type Gateway struct {
	registry   *registry.Registry
	info       mcp.Implementation
	logger     zerolog.Logger
	tracer     trace.Tracer
	chunkSize  int
	frameDelay time.Duration
}

// New returns a Gateway serving reg. A nil or empty registry is allowed; tool
// calls then fail with an internal error and health reports not ready.
func New(reg *registry.Registry, opts Options) *Gateway {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.FrameDelay < 0 {
		opts.FrameDelay = 0
	}
	if opts.ServerInfo.Name == "" {
		opts.ServerInfo.Name = "gorgias-mcp-server"
	}
	if opts.ServerInfo.Version == "" {
		opts.ServerInfo.Version = "1.0.0"
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Gateway{
		registry:   reg,
		info:       opts.ServerInfo,
		logger:     opts.Logger,
		tracer:     tp.Tracer(tracerName),
		chunkSize:  opts.ChunkSize,
		frameDelay: opts.FrameDelay,
	}
}

// Registry returns the registry the gateway serves.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// Ready reports whether the registry is present and has tools.
func (g *Gateway) Ready() bool {
	return g.registry != nil && g.registry.Len() > 0
}

// Serve processes req. A tools/call asking for streaming writes its frames to
// the writer returned by open and Serve returns nil. Every other request,
// including a streamed call whose envelope is invalid, gets a single
// response. A nil open disables streaming.
func (g *Gateway) Serve(ctx context.Context, req *Request, open StreamOpener) *Response {
	if open != nil && req.Method == MethodToolsCall {
		if call, rerr := g.parseToolCall(req); rerr == nil && truthy(call.Stream) {
			w, err := open()
			if err != nil {
				return errorResponse(req.ID, newError(CodeInternalError, "open stream: %v", err))
			}
			if err := g.stream(ctx, req.ID, call, w); err != nil {
				g.contextLogger(ctx).Debug().Err(err).Str("tool", call.Name).Msg("stream abandoned")
			}
			return nil
		}
	}
	return g.Handle(ctx, req)
}

// Handle processes req and returns its single response. Panics inside a
// method are converted to an internal error.
func (g *Gateway) Handle(ctx context.Context, req *Request) (resp *Response) {
	ctx, span := g.tracer.Start(ctx, "mcp "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			resp = errorResponse(req.ID, newError(CodeInternalError, "%v", p))
		}

		event := g.contextLogger(ctx).Debug()
		if resp.Error != nil {
			span.SetStatus(codes.Error, resp.Error.Message)
			event = g.contextLogger(ctx).Warn().Int("code", resp.Error.Code).Str("error", resp.Error.Message)
		}
		event.Str("method", req.Method).Dur("elapsed", time.Since(start)).Msg("request handled")
	}()

	return g.dispatch(ctx, req)
}

func (g *Gateway) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodInitialize:
		return resultResponse(req.ID, g.initializeResult())
	case MethodToolsList:
		if g.registry == nil {
			return errorResponse(req.ID, newError(CodeInternalError, notInitializedMessage))
		}
		return resultResponse(req.ID, map[string]any{"tools": g.toolList()})
	case MethodToolsCall:
		call, rerr := g.parseToolCall(req)
		if rerr != nil {
			return errorResponse(req.ID, rerr)
		}
		text, rerr := g.callTool(ctx, call)
		if rerr != nil {
			return errorResponse(req.ID, rerr)
		}
		return resultResponse(req.ID, toolResult(text))
	case MethodResourcesList:
		return resultResponse(req.ID, map[string]any{"resources": []any{}})
	case MethodPromptsList:
		return resultResponse(req.ID, map[string]any{"prompts": []any{}})
	case MethodResourcesRead, MethodPromptsGet:
		return errorResponse(req.ID, newError(CodeMethodNotFound, "%s is not supported", req.Method))
	default:
		return errorResponse(req.ID, newError(CodeMethodNotFound, "Method not found: %s", req.Method))
	}
}

func (g *Gateway) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"streaming": true,
		},
		"serverInfo": g.info,
	}
}

func (g *Gateway) toolList() []map[string]any {
	tools := g.registry.List()
	out := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": tool.InputSchema,
		})
	}
	return out
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Stream    any            `json:"stream"`
}

// parseToolCall checks everything a tools/call needs before anything runs,
// so a streamed call can still fail with a plain response.
func (g *Gateway) parseToolCall(req *Request) (*toolCallParams, *Error) {
	var call toolCallParams
	params := bytes.TrimSpace(req.Params)
	if len(params) > 0 && !bytes.Equal(params, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(params))
		dec.UseNumber()
		if err := dec.Decode(&call); err != nil {
			return nil, newError(CodeInvalidParams, "Invalid params: %v", err)
		}
	}
	if call.Name == "" {
		return nil, newError(CodeInvalidParams, "Missing tool name")
	}
	if !g.Ready() {
		return nil, newError(CodeInternalError, notInitializedMessage)
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}
	return &call, nil
}

func (g *Gateway) callTool(ctx context.Context, call *toolCallParams) (string, *Error) {
	text, err := g.registry.Dispatch(ctx, call.Name, call.Arguments)
	if err == nil {
		return text, nil
	}

	switch {
	case errors.Is(err, registry.ErrToolNotFound):
		return "", newError(CodeMethodNotFound, "Tool not found: %s", call.Name)
	case errors.Is(err, registry.ErrInvalidParams):
		return "", newError(CodeInvalidParams, "%s", err.Error())
	default:
		g.contextLogger(ctx).Error().Err(err).Str("tool", call.Name).Msg("tool call failed")
		return "", newError(CodeInternalError, "%s", err.Error())
	}
}

// toolResult wraps a handler's text as a one-element content list.
func toolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// contextLogger prefers the request-scoped logger attached by a transport.
func (g *Gateway) contextLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &g.logger
}

// truthy reports whether a loosely typed flag is set: true, a non-zero
// number, a non-empty collection, or a string other than "", "false" and "0".
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "0"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
