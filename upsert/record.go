package upsert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/tindevelopers/gorgias-mcp-gcr/gorgias"
)

// Channel types the engine reconciles. Other types pass through untouched.
const (
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Channel is a contact route attached to a customer. A channel decoded from
// the backend keeps every field it was fetched with, including its id, and
// encodes back to the same object unless Type, Address or Preferred changed.
type Channel struct {
	Type      string
	Address   string
	Preferred bool

	fields map[string]any
}

func (c *Channel) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("decode channel: %w", err)
	}
	c.fields = fields
	c.Type, _ = fields["type"].(string)
	c.Address, _ = fields["address"].(string)
	c.Preferred, _ = fields["preferred"].(bool)
	return nil
}

func (c Channel) MarshalJSON() ([]byte, error) {
	if c.fields != nil && c.unchanged() {
		return json.Marshal(c.fields)
	}
	out := make(map[string]any, len(c.fields)+3)
	maps.Copy(out, c.fields)
	out["type"] = c.Type
	out["address"] = c.Address
	out["preferred"] = c.Preferred
	return json.Marshal(out)
}

func (c Channel) unchanged() bool {
	typ, _ := c.fields["type"].(string)
	address, _ := c.fields["address"].(string)
	preferred, _ := c.fields["preferred"].(bool)
	return typ == c.Type && address == c.Address && preferred == c.Preferred
}

// Record is the subset of a backend customer the engine reads.
type Record struct {
	ID        string    `json:"-"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Language  string    `json:"language"`
	Channels  []Channel `json:"channels"`
}

func recordFromDocument(doc gorgias.Document) (Record, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode customer: %w", err)
	}
	rec.ID = documentID(doc)
	return rec, nil
}

// documentID renders the backend id as the path segment used to address the
// record. It returns "" when the document has no usable id.
func documentID(doc gorgias.Document) string {
	switch id := doc["id"].(type) {
	case json.Number:
		return id.String()
	case string:
		return strings.TrimSpace(id)
	case float64:
		return fmt.Sprintf("%.0f", id)
	case int:
		return fmt.Sprint(id)
	case int64:
		return fmt.Sprint(id)
	default:
		return ""
	}
}

// basePayload is the record's currently known core fields. An empty top-level
// email is recovered from the first email channel.
func (r Record) basePayload() map[string]any {
	base := make(map[string]any)
	email := strings.TrimSpace(r.Email)
	if email == "" {
		for _, ch := range r.Channels {
			if ch.Type == ChannelEmail && strings.TrimSpace(ch.Address) != "" {
				email = strings.TrimSpace(ch.Address)
				break
			}
		}
	}
	setIfPresent(base, "email", email)
	setIfPresent(base, "name", r.Name)
	setIfPresent(base, "language", r.Language)
	setIfPresent(base, "firstname", r.Firstname)
	setIfPresent(base, "lastname", r.Lastname)
	return base
}

// reconcileChannels returns the channel list to send with the update. When
// phone is empty every existing channel is kept as fetched. Otherwise existing
// phone channels are replaced by a single preferred channel for the new
// number and every other channel is kept as fetched.
func reconcileChannels(existing []Channel, phone string) []Channel {
	out := make([]Channel, 0, len(existing)+1)
	for _, ch := range existing {
		if phone != "" && ch.Type == ChannelPhone {
			continue
		}
		out = append(out, ch)
	}
	if phone != "" {
		out = append(out, Channel{Type: ChannelPhone, Address: phone, Preferred: true})
	}
	return out
}

// appendEmailChannel adds an email channel unless one with the same address
// exists. The new channel is preferred only if it is the first email channel.
func appendEmailChannel(existing []Channel, email string) ([]Channel, bool) {
	hasEmail := false
	for _, ch := range existing {
		if ch.Type != ChannelEmail {
			continue
		}
		hasEmail = true
		if strings.EqualFold(strings.TrimSpace(ch.Address), email) {
			return existing, false
		}
	}
	out := append(append([]Channel(nil), existing...), Channel{
		Type:      ChannelEmail,
		Address:   email,
		Preferred: !hasEmail,
	})
	return out, true
}

func setIfPresent(m map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}
