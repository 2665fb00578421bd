package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tindevelopers/gorgias-mcp-gcr/gorgias"
	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
	"github.com/tindevelopers/gorgias-mcp-gcr/upsert"
)

const (
	defaultLimit = 50
	// pageSize is the largest page the backend serves in one request.
	pageSize = 100
)

// Client is the helpdesk API surface the tool handlers use.
type Client interface {
	upsert.Backend
	Patch(ctx context.Context, path string, body any) (gorgias.Document, error)
	GetPaginated(ctx context.Context, path string, query url.Values, pageSize, maxPages int) ([]any, error)
}

// Groups returns every domain group in publication order.
func Groups(client Client, logger zerolog.Logger) []registry.Group {
	engine := upsert.NewEngine(client, logger.With().Str("component", "upsert").Logger())
	return []registry.Group{
		Customers(client, engine, logger),
		Tickets(client, logger),
		Orders(client, logger),
	}
}

// base carries what every handler family shares.
type base struct {
	client Client
	logger zerolog.Logger
}

// list fetches up to limit items from path. Limits above one backend page are
// served by walking pages.
func (b base) list(ctx context.Context, path string, query url.Values, limit int) (gorgias.Document, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if query == nil {
		query = url.Values{}
	}
	if limit <= pageSize {
		query.Set("limit", strconv.Itoa(limit))
		return b.client.Get(ctx, path, query)
	}

	maxPages := (limit + pageSize - 1) / pageSize
	items, err := b.client.GetPaginated(ctx, path, query, pageSize, maxPages)
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return gorgias.Document{"data": items}, nil
}

// failure logs a business failure and renders it as the tool result. A
// backend 404 is reported as "not found" with the backend error attached.
func (b base) failure(tool string, err error, format string, args ...any) (string, error) {
	msg := fmt.Sprintf(format, args...)
	if gorgias.IsNotFound(err) {
		b.logger.Info().Err(err).Str("tool", tool).Msg("resource not found")
		return msg + ": not found (" + err.Error() + ")", nil
	}
	b.logger.Warn().Err(err).Str("tool", tool).Msg("backend call failed")
	return msg + ": " + err.Error(), nil
}

func found(count int, what string, doc gorgias.Document) string {
	return fmt.Sprintf("Found %d %s:\n%s", count, what, gorgias.Format(doc))
}

func details(label string, doc gorgias.Document) string {
	return fmt.Sprintf("%s:\n%s", label, gorgias.Format(doc))
}

func idOf(doc gorgias.Document) string {
	if v, ok := doc["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return "unknown"
}

func setInt(q url.Values, key string, v int64) {
	if v != 0 {
		q.Set(key, strconv.FormatInt(v, 10))
	}
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func itemPath(collection string, id int64) string {
	return collection + "/" + strconv.FormatInt(id, 10)
}
