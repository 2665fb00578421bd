package tools

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/tindevelopers/gorgias-mcp-gcr/registry"
)

type tickets struct {
	base
}

type listTicketsArgs struct {
	Limit      int    `json:"limit"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssigneeID int64  `json:"assignee_id"`
	CustomerID int64  `json:"customer_id"`
}

type ticketIDArgs struct {
	TicketID int64 `json:"ticket_id"`
}

type createTicketArgs struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	CustomerID int64  `json:"customer_id"`
	Priority   string `json:"priority"`
	AssigneeID int64  `json:"assignee_id"`
}

type updateTicketArgs struct {
	TicketID   int64  `json:"ticket_id"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssigneeID int64  `json:"assignee_id"`
	Subject    string `json:"subject"`
}

// Tickets returns the ticket tool group.
func Tickets(client Client, logger zerolog.Logger) registry.Group {
	t := &tickets{base{client: client, logger: logger.With().Str("group", "tickets").Logger()}}

	priority := enumProp("Ticket priority", ticketPriorities...)
	priority["default"] = "normal"

	return registry.Group{
		Name: "tickets",
		Tools: []registry.Tool{
			registry.NewTool("list_tickets", "List all tickets with optional filtering",
				object(map[string]any{
					"limit":       limitProp("Maximum number of tickets to return"),
					"status":      enumProp("Filter by ticket status", ticketStatuses...),
					"priority":    enumProp("Filter by ticket priority", ticketPriorities...),
					"assignee_id": idProp("Filter by assignee ID"),
					"customer_id": idProp("Filter by customer ID"),
				}),
				registry.Typed(t.listTickets), registry.WithTags("read")),
			registry.NewTool("get_ticket", "Get details of a specific ticket",
				object(map[string]any{
					"ticket_id": idProp("ID of the ticket to retrieve"),
				}, "ticket_id"),
				registry.Typed(t.getTicket), registry.WithTags("read")),
			registry.NewTool("create_ticket", "Create a new support ticket",
				object(map[string]any{
					"subject":     strProp("Ticket subject"),
					"body":        strProp("Ticket body content"),
					"customer_id": idProp("ID of the customer creating the ticket"),
					"priority":    priority,
					"assignee_id": idProp("ID of the agent to assign the ticket to"),
				}, "subject", "body", "customer_id"),
				registry.Typed(t.createTicket), registry.WithTags("write")),
			registry.NewTool("update_ticket", "Update an existing ticket",
				object(map[string]any{
					"ticket_id":   idProp("ID of the ticket to update"),
					"status":      enumProp("New ticket status", ticketStatuses...),
					"priority":    enumProp("New ticket priority", ticketPriorities...),
					"assignee_id": idProp("New assignee ID"),
					"subject":     strProp("New ticket subject"),
				}, "ticket_id"),
				registry.Typed(t.updateTicket), registry.WithTags("write")),
			registry.NewTool("search_tickets", "Search tickets by content, customer, or other criteria",
				object(map[string]any{
					"query": strProp("Search query"),
					"limit": limitProp("Maximum number of results"),
				}, "query"),
				registry.Typed(t.searchTickets), registry.WithTags("read")),
		},
	}
}

func (t *tickets) listTickets(ctx context.Context, in listTicketsArgs) (string, error) {
	q := url.Values{}
	setString(q, "status", in.Status)
	setString(q, "priority", in.Priority)
	setInt(q, "assignee_id", in.AssigneeID)
	setInt(q, "customer_id", in.CustomerID)

	doc, err := t.list(ctx, "tickets", q, in.Limit)
	if err != nil {
		return t.failure("list_tickets", err, "Error listing tickets")
	}
	return found(len(doc.Data()), "tickets", doc), nil
}

func (t *tickets) getTicket(ctx context.Context, in ticketIDArgs) (string, error) {
	doc, err := t.client.Get(ctx, itemPath("tickets", in.TicketID), nil)
	if err != nil {
		return t.failure("get_ticket", err, "Error getting ticket %d", in.TicketID)
	}
	return details(fmt.Sprintf("Ticket %d details", in.TicketID), doc), nil
}

func (t *tickets) createTicket(ctx context.Context, in createTicketArgs) (string, error) {
	body := map[string]any{
		"subject":     in.Subject,
		"body":        in.Body,
		"customer_id": in.CustomerID,
		"priority":    "normal",
	}
	if in.Priority != "" {
		body["priority"] = in.Priority
	}
	if in.AssigneeID != 0 {
		body["assignee_id"] = in.AssigneeID
	}

	doc, err := t.client.Post(ctx, "tickets", body)
	if err != nil {
		return t.failure("create_ticket", err, "Error creating ticket")
	}
	return details("Created ticket "+idOf(doc), doc), nil
}

func (t *tickets) updateTicket(ctx context.Context, in updateTicketArgs) (string, error) {
	body := map[string]any{}
	if in.Status != "" {
		body["status"] = in.Status
	}
	if in.Priority != "" {
		body["priority"] = in.Priority
	}
	if in.AssigneeID != 0 {
		body["assignee_id"] = in.AssigneeID
	}
	if in.Subject != "" {
		body["subject"] = in.Subject
	}
	if len(body) == 0 {
		return fmt.Sprintf("Nothing to update for ticket %d", in.TicketID), nil
	}

	doc, err := t.client.Patch(ctx, itemPath("tickets", in.TicketID), body)
	if err != nil {
		return t.failure("update_ticket", err, "Error updating ticket %d", in.TicketID)
	}
	return details(fmt.Sprintf("Updated ticket %d", in.TicketID), doc), nil
}

func (t *tickets) searchTickets(ctx context.Context, in searchArgs) (string, error) {
	doc, err := t.list(ctx, "tickets/search", url.Values{"q": {in.Query}}, in.Limit)
	if err != nil {
		return t.failure("search_tickets", err, "Error searching tickets")
	}
	return found(len(doc.Data()), fmt.Sprintf("tickets matching '%s'", in.Query), doc), nil
}
