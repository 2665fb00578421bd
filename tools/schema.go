package tools

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func idProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc, "minimum": 1}
}

func limitProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc, "minimum": 1, "default": defaultLimit}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

var (
	ticketStatuses   = []string{"open", "closed", "pending", "solved"}
	ticketPriorities = []string{"low", "normal", "high", "urgent"}
	metricPeriods    = []string{"day", "week", "month", "year"}
)
