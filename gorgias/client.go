package gorgias

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 30 * time.Second
	maxResponseSizeBytes = 8 << 20
	maxErrorBodyBytes    = 1024
)

// ErrResponseTooLarge is returned when a response body exceeds the size cap.
var ErrResponseTooLarge = errors.New("response too large")

// Document is a decoded backend response. Numbers are kept as json.Number so
// backend-assigned ids survive unchanged.
type Document map[string]any

// Data returns the "data" array of a list response.
func (d Document) Data() []any {
	items, _ := d["data"].([]any)
	return items
}

// APIError is returned for non-2xx backend responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes] + "..."
	}
	return fmt.Sprintf("gorgias %s %s: status=%d body=%s", e.Method, e.Path, e.StatusCode, body)
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// Option customizes Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit caps outbound requests per second. A non-positive limit
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// Client calls the Gorgias REST API.
type Client struct {
	baseURL    *url.URL
	authHeader string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	maxResponseBytes int64
}

// NewClient builds a Client. It does not call Config.Validate, so tests can
// point it at a plain-http server.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", ErrInvalidConfig, raw)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		authHeader: cfg.AuthHeader(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zerolog.Nop(),

		maxResponseBytes: maxResponseSizeBytes,
	}
	WithRateLimit(cfg.RateLimit, cfg.RateBurst)(c)

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Get fetches path with the given query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (Document, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post creates a resource.
func (c *Client) Post(ctx context.Context, path string, body any) (Document, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put replaces a resource.
func (c *Client) Put(ctx context.Context, path string, body any) (Document, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Patch partially updates a resource.
func (c *Client) Patch(ctx context.Context, path string, body any) (Document, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

// GetPaginated walks pages of path using limit/page parameters and collects
// every "data" item. It stops on an empty or short page, or after maxPages
// pages when maxPages is positive. On a failed page the items gathered so far
// are returned with the error.
func (c *Client) GetPaginated(ctx context.Context, path string, query url.Values, pageSize, maxPages int) ([]any, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	var items []any
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		q := cloneValues(query)
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("page", strconv.Itoa(page))

		doc, err := c.Get(ctx, path, q)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}

		data := doc.Data()
		items = append(items, data...)
		if len(data) < pageSize {
			break
		}
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (Document, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gorgias %s %s: rate limit: %w", method, path, err)
		}
	}

	endpoint, err := c.resolve(path, query)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gorgias %s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("gorgias %s %s: build request: %w", method, path, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gorgias %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("gorgias %s %s: read response: %w", method, path, err)
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return nil, fmt.Errorf("gorgias %s %s: status=%d: %w: over %d bytes",
			method, path, resp.StatusCode, ErrResponseTooLarge, c.maxResponseBytes)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("gorgias request")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return decodeDocument(resp.StatusCode, raw), nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	rel, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("gorgias: invalid path %q: %w", path, err)
	}
	u := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeDocument mirrors what the backend sends: an object decodes as is, an
// empty body or a non-object payload is wrapped with its status code.
func decodeDocument(status int, raw []byte) Document {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Document{"status_code": status}
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Document{"status_code": status, "content": string(raw)}
	}
	if obj, ok := v.(map[string]any); ok {
		return Document(obj)
	}
	return Document{"status_code": status, "data": v}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
