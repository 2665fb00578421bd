package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
	"github.com/tindevelopers/gorgias-mcp-gcr/upsert"
)

type customers struct {
	base
	engine *upsert.Engine
}

type listCustomersArgs struct {
	Limit         int    `json:"limit"`
	Email         string `json:"email"`
	CreatedAfter  string `json:"created_after"`
	CreatedBefore string `json:"created_before"`
}

type customerIDArgs struct {
	CustomerID int64 `json:"customer_id"`
	Limit      int   `json:"limit"`
}

type customerFields struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
	Language  string `json:"language"`
}

func (f customerFields) input() upsert.Input {
	return upsert.Input{
		Email:     f.Email,
		Phone:     f.Phone,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Name:      f.Name,
		Language:  f.Language,
	}
}

type updateCustomerArgs struct {
	CustomerID int64 `json:"customer_id"`
	customerFields
}

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type addCustomerEmailArgs struct {
	CustomerID int64  `json:"customer_id"`
	Email      string `json:"email"`
}

func customerFieldProps(prefix string) map[string]any {
	return map[string]any{
		"email":      strProp(prefix + "customer email address"),
		"phone":      strProp(prefix + "customer phone number"),
		"first_name": strProp(prefix + "customer first name"),
		"last_name":  strProp(prefix + "customer last name"),
		"name":       strProp(prefix + "customer full name; takes precedence over first and last name"),
		"language":   strProp(prefix + "customer language preference"),
	}
}

// Customers returns the customer tool group.
func Customers(client Client, engine *upsert.Engine, logger zerolog.Logger) registry.Group {
	c := &customers{
		base:   base{client: client, logger: logger.With().Str("group", "customers").Logger()},
		engine: engine,
	}

	createSchema := object(customerFieldProps("The "))
	createSchema["anyOf"] = []any{
		map[string]any{"required": []string{"email"}},
		map[string]any{"required": []string{"phone"}},
	}

	updateProps := customerFieldProps("New ")
	updateProps["customer_id"] = idProp("ID of the customer to update")

	return registry.Group{
		Name: "customers",
		Tools: []registry.Tool{
			registry.NewTool("list_customers", "List all customers with optional filtering",
				object(map[string]any{
					"limit":          limitProp("Maximum number of customers to return"),
					"email":          strProp("Filter by customer email"),
					"created_after":  strProp("Filter customers created after this date (ISO format)"),
					"created_before": strProp("Filter customers created before this date (ISO format)"),
				}),
				registry.Typed(c.listCustomers), registry.WithTags("read")),
			registry.NewTool("get_customer", "Get details of a specific customer",
				object(map[string]any{
					"customer_id": idProp("ID of the customer to retrieve"),
				}, "customer_id"),
				registry.Typed(c.getCustomer), registry.WithTags("read")),
			registry.NewTool("create_customer",
				"Create a customer, or update the existing one with the same email or phone",
				createSchema,
				registry.Typed(c.createCustomer), registry.WithTags("write")),
			registry.NewTool("update_customer", "Update an existing customer",
				object(updateProps, "customer_id"),
				registry.Typed(c.updateCustomer), registry.WithTags("write")),
			registry.NewTool("search_customers", "Search customers by email, name, or other criteria",
				object(map[string]any{
					"query": strProp("Search query"),
					"limit": limitProp("Maximum number of results"),
				}, "query"),
				registry.Typed(c.searchCustomers), registry.WithTags("read")),
			registry.NewTool("get_customer_tickets", "Get all tickets for a specific customer",
				object(map[string]any{
					"customer_id": idProp("ID of the customer"),
					"limit":       limitProp("Maximum number of tickets to return"),
				}, "customer_id"),
				registry.Typed(c.getCustomerTickets), registry.WithTags("read")),
			registry.NewTool("add_customer_email", "Add an email address to a customer's contact channels",
				object(map[string]any{
					"customer_id": idProp("ID of the customer"),
					"email":       strProp("Email address to add"),
				}, "customer_id", "email"),
				registry.Typed(c.addCustomerEmail), registry.WithTags("write")),
		},
	}
}

func (c *customers) listCustomers(ctx context.Context, in listCustomersArgs) (string, error) {
	q := url.Values{}
	setString(q, "email", in.Email)
	setString(q, "created_after", in.CreatedAfter)
	setString(q, "created_before", in.CreatedBefore)

	doc, err := c.list(ctx, "customers", q, in.Limit)
	if err != nil {
		return c.failure("list_customers", err, "Error listing customers")
	}
	return found(len(doc.Data()), "customers", doc), nil
}

func (c *customers) getCustomer(ctx context.Context, in customerIDArgs) (string, error) {
	doc, err := c.client.Get(ctx, itemPath("customers", in.CustomerID), nil)
	if err != nil {
		return c.failure("get_customer", err, "Error getting customer %d", in.CustomerID)
	}
	return details(fmt.Sprintf("Customer %d details", in.CustomerID), doc), nil
}

func (c *customers) createCustomer(ctx context.Context, in customerFields) (string, error) {
	res, err := c.engine.Upsert(ctx, in.input())
	switch {
	case errors.Is(err, upsert.ErrValidation):
		return "", fmt.Errorf("%w: %v", registry.ErrInvalidParams, err)
	case err != nil:
		return c.failure("create_customer", err, "Error creating customer")
	}
	return res.Summary(), nil
}

func (c *customers) updateCustomer(ctx context.Context, in updateCustomerArgs) (string, error) {
	res := c.engine.Apply(ctx, strconv.FormatInt(in.CustomerID, 10), in.input())
	if res.FetchErr != nil {
		return c.failure("update_customer", res.FetchErr, "Error updating customer %d", in.CustomerID)
	}
	return res.Summary(), nil
}

func (c *customers) searchCustomers(ctx context.Context, in searchArgs) (string, error) {
	doc, err := c.list(ctx, "customers/search", url.Values{"q": {in.Query}}, in.Limit)
	if err != nil {
		return c.failure("search_customers", err, "Error searching customers")
	}
	return found(len(doc.Data()), fmt.Sprintf("customers matching '%s'", in.Query), doc), nil
}

func (c *customers) getCustomerTickets(ctx context.Context, in customerIDArgs) (string, error) {
	q := url.Values{}
	setInt(q, "customer_id", in.CustomerID)

	doc, err := c.list(ctx, "tickets", q, in.Limit)
	if err != nil {
		return c.failure("get_customer_tickets", err, "Error getting tickets for customer %d", in.CustomerID)
	}
	return found(len(doc.Data()), fmt.Sprintf("tickets for customer %d", in.CustomerID), doc), nil
}

func (c *customers) addCustomerEmail(ctx context.Context, in addCustomerEmailArgs) (string, error) {
	res, err := c.engine.AddEmail(ctx, strconv.FormatInt(in.CustomerID, 10), in.Email)
	switch {
	case errors.Is(err, upsert.ErrValidation):
		return "", fmt.Errorf("%w: %v", registry.ErrInvalidParams, err)
	case err != nil:
		return c.failure("add_customer_email", err, "Error adding email to customer %d", in.CustomerID)
	case res.Skipped:
		return fmt.Sprintf("Customer %d already has email %s", in.CustomerID, in.Email), nil
	}
	return res.Summary(), nil
}
