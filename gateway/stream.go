package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FrameWriter receives the frames of a streamed tool call, one response per
// frame. An error stops the stream.
type FrameWriter interface {
	WriteFrame(*Response) error
}

// StreamOpener starts a streamed response. It is called at most once, only
// after the call has been validated.
type StreamOpener func() (FrameWriter, error)

// Cumulative splits text into growing prefixes, each size characters longer
// than the one before. The last prefix is always text itself, and empty text
// yields a single empty frame. Splits fall on rune boundaries.
func Cumulative(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return []string{""}
	}

	var frames []string
	n := 0
	for i := range text {
		if n > 0 && n%size == 0 {
			frames = append(frames, text[:i])
		}
		n++
	}
	return append(frames, text)
}

// stream runs a tool call and writes it as frames: a "Starting" notice, then
// cumulative prefixes of the result paced by the frame delay. A tool error
// becomes one error frame. The returned error is a write or context failure.
func (g *Gateway) stream(ctx context.Context, id json.RawMessage, call *toolCallParams, w FrameWriter) error {
	ctx, span := g.tracer.Start(ctx, "mcp "+MethodToolsCall+" stream",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", MethodToolsCall),
			attribute.String("mcp.tool", call.Name),
		),
	)
	defer span.End()

	logger := g.contextLogger(ctx)
	if err := w.WriteFrame(resultResponse(id, toolResult(fmt.Sprintf("Starting %s...", call.Name)))); err != nil {
		return err
	}

	text, rerr := g.callTool(ctx, call)
	if rerr != nil {
		span.SetStatus(codes.Error, rerr.Message)
		return w.WriteFrame(errorResponse(id, rerr))
	}

	frames := Cumulative(text, g.chunkSize)
	span.SetAttributes(attribute.Int("mcp.frames", len(frames)))
	for i, frame := range frames {
		if i > 0 {
			if err := sleep(ctx, g.frameDelay); err != nil {
				return err
			}
		}
		if err := w.WriteFrame(resultResponse(id, toolResult(frame))); err != nil {
			return err
		}
	}

	logger.Debug().Str("tool", call.Name).Int("frames", len(frames)).Msg("stream complete")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
