package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type recordingWriter struct {
	frames []*Response
	failAt int // 1-based frame index that fails; 0 never fails
}

func (w *recordingWriter) WriteFrame(resp *Response) error {
	if w.failAt > 0 && len(w.frames)+1 == w.failAt {
		return errors.New("client went away")
	}
	w.frames = append(w.frames, resp)
	return nil
}

func (w *recordingWriter) opener() StreamOpener {
	return func() (FrameWriter, error) { return w, nil }
}

func streamCall(t *testing.T, name string, args map[string]any, stream any) *Request {
	t.Helper()
	return request(t, "9", MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
		"stream":    stream,
	})
}

func TestServe_Streams(t *testing.T) {
	g := newTestGateway(t, Options{ChunkSize: 500, FrameDelay: time.Millisecond})
	text := strings.Repeat("a", 1200)
	w := &recordingWriter{}

	if resp := g.Serve(context.Background(), streamCall(t, "echo", map[string]any{"text": text}, true), w.opener()); resp != nil {
		t.Fatalf("expected streamed call to return nil, got %+v", resp)
	}

	if len(w.frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(w.frames))
	}
	if got := resultText(t, w.frames[0]); got != "Starting echo..." {
		t.Errorf("expected starting frame, got %q", got)
	}
	if n := len(resultText(t, w.frames[1])); n != 500 {
		t.Errorf("frame 1: expected 500 chars, got %d", n)
	}
	if n := len(resultText(t, w.frames[2])); n != 1000 {
		t.Errorf("frame 2: expected 1000 chars, got %d", n)
	}
	if resultText(t, w.frames[3]) != text {
		t.Error("final frame is not the full text")
	}
	for i, frame := range w.frames {
		if string(frame.ID) != "9" {
			t.Errorf("frame %d: expected id 9, got %s", i, frame.ID)
		}
	}

	// The final frame is byte-identical to the unstreamed response.
	plain := g.Handle(context.Background(), streamCall(t, "echo", map[string]any{"text": text}, false))
	want, err := json.Marshal(plain)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := json.Marshal(w.frames[3])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(want) != string(got) {
		t.Errorf("final frame differs from the plain response:\nwant %s\ngot  %s", want, got)
	}
}

func TestServe_StreamEmptyResult(t *testing.T) {
	g := newTestGateway(t, Options{})
	w := &recordingWriter{}

	if resp := g.Serve(context.Background(), streamCall(t, "echo", map[string]any{"text": ""}, "true"), w.opener()); resp != nil {
		t.Fatalf("expected nil, got %+v", resp)
	}

	if len(w.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(w.frames))
	}
	if got := resultText(t, w.frames[1]); got != "" {
		t.Errorf("expected empty final frame, got %q", got)
	}
}

func TestServe_StreamToolError(t *testing.T) {
	g := newTestGateway(t, Options{})
	w := &recordingWriter{}

	if resp := g.Serve(context.Background(), streamCall(t, "boom", nil, 1), w.opener()); resp != nil {
		t.Fatalf("expected nil, got %+v", resp)
	}

	if len(w.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(w.frames))
	}
	if got := resultText(t, w.frames[0]); got != "Starting boom..." {
		t.Errorf("expected starting frame, got %q", got)
	}
	rpcErr := expectError(t, w.frames[1], CodeInternalError)
	if !strings.Contains(rpcErr.Message, "backend down") {
		t.Errorf("expected backend error in message, got %q", rpcErr.Message)
	}
}

func TestServe_StreamRejectedEnvelopeIsPlain(t *testing.T) {
	g := newTestGateway(t, Options{})
	opened := false
	open := func() (FrameWriter, error) {
		opened = true
		return &recordingWriter{}, nil
	}

	resp := g.Serve(context.Background(), request(t, "1", MethodToolsCall, map[string]any{"stream": true}), open)
	expectError(t, resp, CodeInvalidParams)
	if opened {
		t.Error("stream opened for a rejected envelope")
	}

	notReady := New(nil, Options{})
	resp = notReady.Serve(context.Background(), streamCall(t, "echo", nil, true), open)
	expectError(t, resp, CodeInternalError)
	if opened {
		t.Error("stream opened before the registry was ready")
	}
}

func TestServe_FalsyStreamIsPlain(t *testing.T) {
	g := newTestGateway(t, Options{})

	for _, flag := range []any{false, "false", "0", 0, "", nil} {
		w := &recordingWriter{}
		resp := g.Serve(context.Background(), streamCall(t, "echo", map[string]any{"text": "hi"}, flag), w.opener())
		if resp == nil {
			t.Fatalf("stream=%#v: expected a plain response", flag)
		}
		if got := resultText(t, resp); got != "hi" {
			t.Errorf("stream=%#v: expected 'hi', got %q", flag, got)
		}
		if len(w.frames) != 0 {
			t.Errorf("stream=%#v: expected no frames, got %d", flag, len(w.frames))
		}
	}
}

func TestServe_StreamWriteFailureStops(t *testing.T) {
	g := newTestGateway(t, Options{ChunkSize: 1})
	w := &recordingWriter{failAt: 3}

	if resp := g.Serve(context.Background(), streamCall(t, "echo", map[string]any{"text": "abcdef"}, true), w.opener()); resp != nil {
		t.Fatalf("expected nil, got %+v", resp)
	}
	if len(w.frames) != 2 {
		t.Errorf("expected 2 frames before the failure, got %d", len(w.frames))
	}
}

func TestServe_StreamStopsOnCancel(t *testing.T) {
	g := newTestGateway(t, Options{ChunkSize: 1, FrameDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	w := &recordingWriter{}
	req := streamCall(t, "echo", map[string]any{"text": "abcdef"}, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Serve(ctx, req, w.opener())
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	// Starting frame and the first chunk, then blocked on the delay.
	if len(w.frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(w.frames))
	}
}

func TestServe_OpenFailure(t *testing.T) {
	g := newTestGateway(t, Options{})
	open := func() (FrameWriter, error) { return nil, errors.New("no flusher") }

	resp := g.Serve(context.Background(), streamCall(t, "echo", map[string]any{"text": "x"}, true), open)
	expectError(t, resp, CodeInternalError)
}
