package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxBodyBytes caps a POST /mcp body.
	DefaultMaxBodyBytes = 4 << 20

	requestIDHeader = "X-Request-ID"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	Logger zerolog.Logger
	// AllowedOrigins lists origins allowed by CORS. "*" or an empty list
	// allows any origin.
	AllowedOrigins []string
	MaxBodyBytes   int64
}

type httpServer struct {
	gateway        *Gateway
	logger         zerolog.Logger
	allowedOrigins []string
	maxBodyBytes   int64
}

// MiddlewareFunc wraps an http.Handler. NewHTTPHandler applies them in
// order, so the last one listed runs first.
type MiddlewareFunc func(http.Handler) http.Handler

func chainMiddleware(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	for _, mw := range middlewares {
		h = mw(h)
	}
	return h
}

// NewHTTPHandler returns the HTTP surface: POST /mcp for JSON-RPC, with SSE
// when a tool call asks to stream, and GET /health (also served at /).
func NewHTTPHandler(g *Gateway, opts HTTPOptions) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &httpServer{
		gateway:        g,
		logger:         opts.Logger,
		allowedOrigins: opts.AllowedOrigins,
		maxBodyBytes:   opts.MaxBodyBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", s.handleMCP)
	mux.HandleFunc("OPTIONS /mcp", s.handlePreflight)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHealth)

	return chainMiddleware(mux,
		s.corsMiddleware,
		s.accessLogMiddleware,
		s.requestIDMiddleware,
		s.recoverMiddleware,
	)
}

func (s *httpServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("read request body")
		writeJSON(w, http.StatusBadRequest, ParseErrorResponse())
		return
	}

	req, err := ParseRequest(body)
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("parse request")
		writeJSON(w, http.StatusBadRequest, ParseErrorResponse())
		return
	}

	resp := s.gateway.Serve(r.Context(), req, func() (FrameWriter, error) {
		return openSSE(w)
	})
	if resp == nil {
		return
	}
	writeJSON(w, statusFor(resp), resp)
}

func (s *httpServer) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status             string   `json:"status"`
	Message            string   `json:"message"`
	ToolsCount         int      `json:"tools_count,omitempty"`
	Tools              []string `json:"tools,omitempty"`
	Streaming          bool     `json:"streaming,omitempty"`
	CatalogFingerprint string   `json:"catalog_fingerprint,omitempty"`
}

func (s *httpServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.gateway.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "error",
			Message: notInitializedMessage,
		})
		return
	}

	reg := s.gateway.Registry()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "healthy",
		Message:            "Gorgias MCP Server is running",
		ToolsCount:         reg.Len(),
		Tools:              reg.Names(),
		Streaming:          true,
		CatalogFingerprint: reg.Fingerprint(),
	})
}

// statusFor maps a JSON-RPC outcome to an HTTP status. Envelope problems are
// client errors, internal failures are server errors, and everything else,
// including unknown methods and tools, is 200.
func statusFor(resp *Response) int {
	if resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Code {
	case CodeParseError, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sseWriter writes each frame as one "data:" event and flushes it.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func openSSE(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported by response writer")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) WriteFrame(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// ===== middleware =====

func (s *httpServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("handler panic")
				writeJSON(w, http.StatusInternalServerError,
					errorResponse(nil, newError(CodeInternalError, "Internal error")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags the request with an id, echoing the caller's when
// present, and attaches a logger carrying it to the request context.
func (s *httpServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *httpServer) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		zerolog.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *httpServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when it is not allowed.
func (s *httpServer) allowOrigin(origin string) string {
	if len(s.allowedOrigins) == 0 || slices.Contains(s.allowedOrigins, "*") {
		return "*"
	}
	if origin == "" {
		return ""
	}
	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return origin
		}
	}
	return ""
}

// statusRecorder remembers the status for the access log. It forwards Flush
// so SSE still works behind it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
