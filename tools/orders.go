package tools

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
)

type orders struct {
	base
}

type listOrdersArgs struct {
	Limit         int    `json:"limit"`
	CustomerID    int64  `json:"customer_id"`
	Status        string `json:"status"`
	CreatedAfter  string `json:"created_after"`
	CreatedBefore string `json:"created_before"`
}

type orderIDArgs struct {
	OrderID int64 `json:"order_id"`
}

type orderMetricsArgs struct {
	Period    string `json:"period"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Orders returns the order tool group.
func Orders(client Client, logger zerolog.Logger) registry.Group {
	o := &orders{base{client: client, logger: logger.With().Str("group", "orders").Logger()}}

	period := enumProp("Time period for metrics", metricPeriods...)
	period["default"] = "month"

	return registry.Group{
		Name: "orders",
		Tools: []registry.Tool{
			registry.NewTool("list_orders", "List all orders with optional filtering",
				object(map[string]any{
					"limit":          limitProp("Maximum number of orders to return"),
					"customer_id":    idProp("Filter by customer ID"),
					"status":         strProp("Filter by order status"),
					"created_after":  strProp("Filter orders created after this date (ISO format)"),
					"created_before": strProp("Filter orders created before this date (ISO format)"),
				}),
				registry.Typed(o.listOrders), registry.WithTags("read")),
			registry.NewTool("get_order", "Get details of a specific order",
				object(map[string]any{
					"order_id": idProp("ID of the order to retrieve"),
				}, "order_id"),
				registry.Typed(o.getOrder), registry.WithTags("read")),
			registry.NewTool("search_orders", "Search orders by customer, order number, or other criteria",
				object(map[string]any{
					"query": strProp("Search query"),
					"limit": limitProp("Maximum number of results"),
				}, "query"),
				registry.Typed(o.searchOrders), registry.WithTags("read")),
			registry.NewTool("get_customer_orders", "Get all orders for a specific customer",
				object(map[string]any{
					"customer_id": idProp("ID of the customer"),
					"limit":       limitProp("Maximum number of orders to return"),
				}, "customer_id"),
				registry.Typed(o.getCustomerOrders), registry.WithTags("read")),
			registry.NewTool("get_order_metrics", "Get order statistics and metrics",
				object(map[string]any{
					"period":     period,
					"start_date": strProp("Start date for metrics (ISO format)"),
					"end_date":   strProp("End date for metrics (ISO format)"),
				}),
				registry.Typed(o.getOrderMetrics), registry.WithTags("read")),
		},
	}
}

func (o *orders) listOrders(ctx context.Context, in listOrdersArgs) (string, error) {
	q := url.Values{}
	setInt(q, "customer_id", in.CustomerID)
	setString(q, "status", in.Status)
	setString(q, "created_after", in.CreatedAfter)
	setString(q, "created_before", in.CreatedBefore)

	doc, err := o.list(ctx, "orders", q, in.Limit)
	if err != nil {
		return o.failure("list_orders", err, "Error listing orders")
	}
	return found(len(doc.Data()), "orders", doc), nil
}

func (o *orders) getOrder(ctx context.Context, in orderIDArgs) (string, error) {
	doc, err := o.client.Get(ctx, itemPath("orders", in.OrderID), nil)
	if err != nil {
		return o.failure("get_order", err, "Error getting order %d", in.OrderID)
	}
	return details(fmt.Sprintf("Order %d details", in.OrderID), doc), nil
}

func (o *orders) searchOrders(ctx context.Context, in searchArgs) (string, error) {
	doc, err := o.list(ctx, "orders/search", url.Values{"q": {in.Query}}, in.Limit)
	if err != nil {
		return o.failure("search_orders", err, "Error searching orders")
	}
	return found(len(doc.Data()), fmt.Sprintf("orders matching '%s'", in.Query), doc), nil
}

func (o *orders) getCustomerOrders(ctx context.Context, in customerIDArgs) (string, error) {
	q := url.Values{}
	setInt(q, "customer_id", in.CustomerID)

	doc, err := o.list(ctx, "orders", q, in.Limit)
	if err != nil {
		return o.failure("get_customer_orders", err, "Error getting orders for customer %d", in.CustomerID)
	}
	return found(len(doc.Data()), fmt.Sprintf("orders for customer %d", in.CustomerID), doc), nil
}

func (o *orders) getOrderMetrics(ctx context.Context, in orderMetricsArgs) (string, error) {
	q := url.Values{}
	q.Set("period", "month")
	setString(q, "period", in.Period)
	setString(q, "start_date", in.StartDate)
	setString(q, "end_date", in.EndDate)

	doc, err := o.client.Get(ctx, "orders/metrics", q)
	if err != nil {
		return o.failure("get_order_metrics", err, "Error getting order metrics")
	}
	return details("Order metrics", doc), nil
}
