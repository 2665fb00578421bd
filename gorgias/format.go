package gorgias

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Format renders a backend payload as indented JSON for tool results. Values
// that cannot be encoded fall back to their default formatting.
func Format(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
