// Package registry owns the mapping from tool name to handler.
//
// A Registry is built once from domain groups (customers, tickets, orders)
// and is read-only afterwards. Every tool is published as a
// toolfoundation model.Tool whose namespace is its group. Names are exact and
// unique across all groups; New rejects duplicates instead of letting a later
// group shadow an earlier one.
//
// Input schemas are compiled at construction and enforced on every
// Dispatch, so a missing or mistyped argument surfaces as ErrInvalidParams
// before the handler runs. Handlers usually take a typed parameter struct
// through Typed:
//
//	type getTicketArgs struct {
//	    TicketID int64 `json:"ticket_id"`
//	}
//
//	tickets := registry.Group{
//	    Name: "tickets",
//	    Tools: []registry.Tool{
//	        registry.NewTool(
//	            "get_ticket",
//	            "Get details of a specific ticket",
//	            map[string]any{
//	                "type": "object",
//	                "properties": map[string]any{
//	                    "ticket_id": map[string]any{"type": "integer"},
//	                },
//	                "required": []string{"ticket_id"},
//	            },
//	            registry.Typed(func(ctx context.Context, in getTicketArgs) (string, error) {
//	                return fmt.Sprintf("Ticket %d", in.TicketID), nil
//	            }),
//	        ),
//	    },
//	}
//
//	reg, err := registry.New(registry.Config{Logger: logger}, tickets)
//	if err != nil {
//	    return err
//	}
//	text, err := reg.Dispatch(ctx, "get_ticket", map[string]any{"ticket_id": 7})
package registry
