package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tindevelopers/gorgias-mcp-gcr/gorgias"
	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
)

type fakeCall struct {
	method   string
	path     string
	query    url.Values
	body     any
	pageSize int
	maxPages int
}

type fakeClient struct {
	mu    sync.Mutex
	calls []fakeCall

	get       func(path string, q url.Values) (gorgias.Document, error)
	write     func(method, path string, body any) (gorgias.Document, error)
	paginated func(path string, q url.Values, pageSize, maxPages int) ([]any, error)
}

func (f *fakeClient) add(c fakeCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeClient) only(t *testing.T) fakeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.calls, 1)
	return f.calls[0]
}

func (f *fakeClient) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method+" "+c.path)
	}
	return out
}

func (f *fakeClient) Get(ctx context.Context, path string, q url.Values) (gorgias.Document, error) {
	f.add(fakeCall{method: http.MethodGet, path: path, query: q})
	if f.get != nil {
		return f.get(path, q)
	}
	return gorgias.Document{"data": []any{}}, nil
}

func (f *fakeClient) doWrite(method, path string, body any) (gorgias.Document, error) {
	f.add(fakeCall{method: method, path: path, body: body})
	if f.write != nil {
		return f.write(method, path, body)
	}
	return gorgias.Document{"id": json.Number("1")}, nil
}

func (f *fakeClient) Post(ctx context.Context, path string, body any) (gorgias.Document, error) {
	return f.doWrite(http.MethodPost, path, body)
}

func (f *fakeClient) Put(ctx context.Context, path string, body any) (gorgias.Document, error) {
	return f.doWrite(http.MethodPut, path, body)
}

func (f *fakeClient) Patch(ctx context.Context, path string, body any) (gorgias.Document, error) {
	return f.doWrite(http.MethodPatch, path, body)
}

func (f *fakeClient) GetPaginated(ctx context.Context, path string, q url.Values, pageSize, maxPages int) ([]any, error) {
	f.add(fakeCall{method: "PAGINATE", path: path, query: q, pageSize: pageSize, maxPages: maxPages})
	if f.paginated != nil {
		return f.paginated(path, q, pageSize, maxPages)
	}
	return nil, nil
}

func newRegistry(t *testing.T, client Client) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Config{Logger: zerolog.Nop()}, Groups(client, zerolog.Nop())...)
	require.NoError(t, err)
	return reg
}

func items(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"id": i + 1}
	}
	return out
}

func TestGroupsCatalog(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, &fakeClient{})
	assert.Equal(t, []string{"customers", "tickets", "orders"}, reg.Groups())
	assert.Equal(t, []string{
		"list_customers", "get_customer", "create_customer", "update_customer",
		"search_customers", "get_customer_tickets", "add_customer_email",
		"list_tickets", "get_ticket", "create_ticket", "update_ticket", "search_tickets",
		"list_orders", "get_order", "search_orders", "get_customer_orders", "get_order_metrics",
	}, reg.Names())

	for _, tool := range reg.List() {
		schema, ok := tool.InputSchema.(map[string]any)
		require.True(t, ok, tool.Name)
		assert.Equal(t, "object", schema["type"], tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
}

func TestListTicketsBuildsQuery(t *testing.T) {
	t.Parallel()

	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return gorgias.Document{"data": items(2)}, nil
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "list_tickets", map[string]any{
		"status":      "open",
		"customer_id": 42,
		"limit":       10,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Found 2 tickets:\n"), text)

	call := client.only(t)
	assert.Equal(t, "tickets", call.path)
	assert.Equal(t, "open", call.query.Get("status"))
	assert.Equal(t, "42", call.query.Get("customer_id"))
	assert.Equal(t, "10", call.query.Get("limit"))
	assert.Empty(t, call.query.Get("priority"))
}

func TestListDefaultsLimit(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	reg := newRegistry(t, client)

	_, err := reg.Dispatch(context.Background(), "list_orders", nil)
	require.NoError(t, err)
	assert.Equal(t, "50", client.only(t).query.Get("limit"))
}

func TestListCustomersPaginatesLargeLimits(t *testing.T) {
	t.Parallel()

	client := &fakeClient{paginated: func(path string, q url.Values, pageSize, maxPages int) ([]any, error) {
		return items(pageSize * maxPages), nil
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "list_customers", map[string]any{"limit": 250})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Found 250 customers:"), text[:40])

	call := client.only(t)
	assert.Equal(t, "PAGINATE", call.method)
	assert.Equal(t, 100, call.pageSize)
	assert.Equal(t, 3, call.maxPages)
}

func TestBackendErrorsBecomeText(t *testing.T) {
	t.Parallel()

	notFound := &gorgias.APIError{Method: http.MethodGet, Path: "tickets/7", StatusCode: http.StatusNotFound, Body: "missing"}
	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return nil, notFound
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "get_ticket", map[string]any{"ticket_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "Error getting ticket 7: not found (gorgias GET tickets/7: status=404 body=missing)", text)
}

func TestBackendFailureKeepsErrorText(t *testing.T) {
	t.Parallel()

	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return nil, &gorgias.APIError{Method: http.MethodGet, Path: path, StatusCode: http.StatusBadGateway, Body: "upstream"}
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "get_customer", map[string]any{"customer_id": 4})
	require.NoError(t, err)
	assert.Equal(t, "Error getting customer 4: gorgias GET customers/4: status=502 body=upstream", text)
	assert.NotContains(t, text, "not found")
}

func TestSchemaViolationsAreInvalidParams(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, &fakeClient{})

	tests := []struct {
		tool string
		args map[string]any
	}{
		{tool: "get_customer", args: nil},
		{tool: "get_ticket", args: map[string]any{"ticket_id": "seven"}},
		{tool: "list_tickets", args: map[string]any{"status": "bogus"}},
		{tool: "create_ticket", args: map[string]any{"subject": "s", "body": "b"}},
		{tool: "create_customer", args: map[string]any{"first_name": "No", "last_name": "Contact"}},
		{tool: "get_order_metrics", args: map[string]any{"period": "decade"}},
		{tool: "search_orders", args: map[string]any{"query": "x", "limit": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			t.Parallel()

			_, err := reg.Dispatch(context.Background(), tt.tool, tt.args)
			assert.ErrorIs(t, err, registry.ErrInvalidParams)
		})
	}
}

func TestCreateCustomerBlankContactIsInvalidParams(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	reg := newRegistry(t, client)

	_, err := reg.Dispatch(context.Background(), "create_customer", map[string]any{"email": "   "})
	require.ErrorIs(t, err, registry.ErrInvalidParams)
	assert.Empty(t, client.methods())
}

func TestCreateCustomerRunsUpsert(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		get: func(path string, q url.Values) (gorgias.Document, error) {
			if path == "customers/501" {
				return gorgias.Document{"id": json.Number("501"), "email": "new@x.com"}, nil
			}
			return gorgias.Document{"data": []any{}}, nil
		},
		write: func(method, path string, body any) (gorgias.Document, error) {
			return gorgias.Document{"id": json.Number("501")}, nil
		},
	}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "create_customer", map[string]any{
		"email":      "new@x.com",
		"first_name": "New",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Created customer 501\nUpdated customer 501:"), text)
	assert.Equal(t, []string{
		"GET customers",
		"POST customers",
		"GET customers/501",
		"PUT customers/501",
	}, client.methods())
}

func TestUpdateCustomerMissingRecord(t *testing.T) {
	t.Parallel()

	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return nil, &gorgias.APIError{Method: http.MethodGet, Path: path, StatusCode: http.StatusNotFound}
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "update_customer", map[string]any{
		"customer_id": 9,
		"language":    "de",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Error updating customer 9: not found ("), text)
	assert.Equal(t, []string{"GET customers/9"}, client.methods())
}

func TestAddCustomerEmailAlreadyPresent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return gorgias.Document{
			"id":       json.Number("3"),
			"channels": []any{map[string]any{"type": "email", "address": "a@x.com", "preferred": true}},
		}, nil
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "add_customer_email", map[string]any{
		"customer_id": 3,
		"email":       "a@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Customer 3 already has email a@x.com", text)
	assert.Equal(t, []string{"GET customers/3"}, client.methods())
}

func TestCreateTicketDefaultsPriority(t *testing.T) {
	t.Parallel()

	client := &fakeClient{write: func(method, path string, body any) (gorgias.Document, error) {
		return gorgias.Document{"id": json.Number("77")}, nil
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "create_ticket", map[string]any{
		"subject":     "Broken leash",
		"body":        "It snapped",
		"customer_id": 5,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Created ticket 77:\n"), text)

	call := client.only(t)
	body, ok := call.body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "normal", body["priority"])
	assert.Equal(t, int64(5), body["customer_id"])
	assert.NotContains(t, body, "assignee_id")
}

func TestUpdateTicketUsesPatch(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	reg := newRegistry(t, client)

	_, err := reg.Dispatch(context.Background(), "update_ticket", map[string]any{"ticket_id": 8, "status": "solved"})
	require.NoError(t, err)

	call := client.only(t)
	assert.Equal(t, http.MethodPatch, call.method)
	assert.Equal(t, "tickets/8", call.path)
	assert.Equal(t, map[string]any{"status": "solved"}, call.body)
}

func TestUpdateTicketNothingToDo(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "update_ticket", map[string]any{"ticket_id": 8})
	require.NoError(t, err)
	assert.Equal(t, "Nothing to update for ticket 8", text)
	assert.Empty(t, client.methods())
}

func TestGetOrderMetricsDefaultsPeriod(t *testing.T) {
	t.Parallel()

	client := &fakeClient{get: func(path string, q url.Values) (gorgias.Document, error) {
		return gorgias.Document{"total": json.Number("12")}, nil
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "get_order_metrics", map[string]any{"start_date": "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "Order metrics:\n{\n  \"total\": 12\n}", text)

	call := client.only(t)
	assert.Equal(t, "orders/metrics", call.path)
	assert.Equal(t, "month", call.query.Get("period"))
	assert.Equal(t, "2024-01-01", call.query.Get("start_date"))
}

func TestSearchPaginationErrorBecomesText(t *testing.T) {
	t.Parallel()

	client := &fakeClient{paginated: func(path string, q url.Values, pageSize, maxPages int) ([]any, error) {
		return items(100), errors.New("page 2: boom")
	}}
	reg := newRegistry(t, client)

	text, err := reg.Dispatch(context.Background(), "search_tickets", map[string]any{"query": "refund", "limit": 150})
	require.NoError(t, err)
	assert.Equal(t, "Error searching tickets: page 2: boom", text)
	assert.Equal(t, "refund", client.only(t).query.Get("q"))
}
