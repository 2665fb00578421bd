package upsert

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tindevelopers/gorgias-mcp-gcr/gorgias"
)

var (
	// ErrValidation is returned when the input cannot identify a customer.
	ErrValidation = errors.New("validation error")
	// ErrCreateFailed is returned when a new customer could not be created.
	ErrCreateFailed = errors.New("create customer failed")
	// ErrFetchFailed is returned when the working record could not be read.
	ErrFetchFailed = errors.New("fetch customer failed")
)

const customersPath = "customers"

// Backend is the part of the helpdesk client the engine needs.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) (gorgias.Document, error)
	Post(ctx context.Context, path string, body any) (gorgias.Document, error)
	Put(ctx context.Context, path string, body any) (gorgias.Document, error)
}

// LookupOutcome describes how the existence lookup ended.
type LookupOutcome int

const (
	LookupNotFound LookupOutcome = iota
	LookupFound
	// LookupFailed means every attempted lookup errored. It is handled exactly
	// like LookupNotFound but stays visible in results and logs.
	LookupFailed
)

func (o LookupOutcome) String() string {
	switch o {
	case LookupFound:
		return "found"
	case LookupFailed:
		return "failed"
	default:
		return "not_found"
	}
}

// Input is the partial customer data supplied by a caller.
type Input struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Name      string
	Language  string
}

func (in Input) normalized() Input {
	return Input{
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Name:      strings.TrimSpace(in.Name),
		Language:  strings.TrimSpace(in.Language),
	}
}

// updatePayload holds the supplied core fields. An explicit name wins over
// the first and last name parts.
func (in Input) updatePayload() map[string]any {
	update := make(map[string]any)
	setIfPresent(update, "email", in.Email)
	setIfPresent(update, "firstname", in.FirstName)
	setIfPresent(update, "lastname", in.LastName)
	setIfPresent(update, "language", in.Language)

	name := in.Name
	if name == "" {
		parts := make([]string, 0, 2)
		for _, p := range []string{in.FirstName, in.LastName} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		name = strings.Join(parts, " ")
	}
	setIfPresent(update, "name", name)
	return update
}

// Result reports what an upsert did. Errors after the working identity is
// known are carried here instead of being returned.
type Result struct {
	CustomerID string
	Lookup     LookupOutcome
	LookupErr  error
	Created    bool

	// Skipped is set when there was nothing to send.
	Skipped bool
	Payload map[string]any
	Updated gorgias.Document

	// FetchErr and UpdateErr are warnings; a created customer stays created.
	FetchErr  error
	UpdateErr error

	identified bool
}

// Summary renders the result as the text returned to the client.
func (r Result) Summary() string {
	var b strings.Builder
	if r.identified {
		if r.Created {
			fmt.Fprintf(&b, "Created customer %s", r.CustomerID)
		} else {
			fmt.Fprintf(&b, "Found existing customer %s", r.CustomerID)
		}
		if r.Lookup == LookupFailed && r.LookupErr != nil {
			fmt.Fprintf(&b, " (lookup failed: %v)", r.LookupErr)
		}
		b.WriteString("\n")
	}

	switch {
	case r.FetchErr != nil:
		fmt.Fprintf(&b, "Warning: could not read customer %s, update skipped: %v", r.CustomerID, r.FetchErr)
	case r.Skipped:
		fmt.Fprintf(&b, "Nothing to update for customer %s", r.CustomerID)
	case r.UpdateErr != nil:
		fmt.Fprintf(&b, "Warning: failed to update customer %s: %v", r.CustomerID, r.UpdateErr)
	default:
		fmt.Fprintf(&b, "Updated customer %s:\n%s", r.CustomerID, gorgias.Format(r.Updated))
	}
	return b.String()
}

// Engine creates or updates customers by identity.
type Engine struct {
	backend Backend
	logger  zerolog.Logger
}

// NewEngine returns an Engine backed by the given client.
func NewEngine(backend Backend, logger zerolog.Logger) *Engine {
	return &Engine{backend: backend, logger: logger}
}

// Upsert finds the customer identified by email or phone, creating a minimal
// record when none exists, then merges the supplied fields into it.
func (e *Engine) Upsert(ctx context.Context, in Input) (Result, error) {
	in = in.normalized()
	if in.Email == "" && in.Phone == "" {
		return Result{}, fmt.Errorf("%w: email or phone is required", ErrValidation)
	}

	id, outcome, lookupErr := e.lookup(ctx, in)
	res := Result{CustomerID: id, Lookup: outcome, LookupErr: lookupErr, identified: true}

	if outcome != LookupFound {
		created, err := e.create(ctx, in)
		if err != nil {
			return res, err
		}
		res.CustomerID = created
		res.Created = true
	}

	e.apply(ctx, &res, in)
	return res, nil
}

// Apply merges the supplied fields into the customer with the given id. It
// does not look up or create anything.
func (e *Engine) Apply(ctx context.Context, customerID string, in Input) Result {
	res := Result{CustomerID: customerID, Lookup: LookupFound}
	e.apply(ctx, &res, in.normalized())
	return res
}

// AddEmail appends an email channel to the customer, keeping every existing
// channel. Adding an address the customer already has changes nothing.
func (e *Engine) AddEmail(ctx context.Context, customerID, email string) (Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Result{}, fmt.Errorf("%w: email is required", ErrValidation)
	}

	res := Result{CustomerID: customerID, Lookup: LookupFound}
	rec, err := e.fetch(ctx, customerID)
	if err != nil {
		return res, err
	}

	channels, added := appendEmailChannel(rec.Channels, email)
	if !added {
		res.Skipped = true
		return res, nil
	}

	payload := rec.basePayload()
	if _, ok := payload["email"]; !ok {
		payload["email"] = email
	}
	payload["channels"] = channels
	e.update(ctx, &res, payload)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, res *Result, in Input) {
	rec, err := e.fetch(ctx, res.CustomerID)
	if err != nil {
		res.FetchErr = err
		e.logger.Warn().Err(err).Str("customer_id", res.CustomerID).Msg("customer fetch failed, skipping update")
		return
	}

	payload := rec.basePayload()
	for k, v := range in.updatePayload() {
		payload[k] = v
	}
	if channels := reconcileChannels(rec.Channels, in.Phone); len(channels) > 0 {
		payload["channels"] = channels
	}

	if len(payload) == 0 {
		res.Skipped = true
		return
	}
	e.update(ctx, res, payload)
}

func (e *Engine) update(ctx context.Context, res *Result, payload map[string]any) {
	res.Payload = payload
	doc, err := e.backend.Put(ctx, customersPath+"/"+url.PathEscape(res.CustomerID), payload)
	if err != nil {
		res.UpdateErr = err
		e.logger.Warn().Err(err).Str("customer_id", res.CustomerID).Msg("customer update failed")
		return
	}
	res.Updated = doc
}

// lookup prefers an exact email match and falls back to a phone search. The
// first match is taken; multiple candidates are not disambiguated.
func (e *Engine) lookup(ctx context.Context, in Input) (string, LookupOutcome, error) {
	var errs []error

	if in.Email != "" {
		doc, err := e.backend.Get(ctx, customersPath, url.Values{"email": {in.Email}})
		if err != nil {
			errs = append(errs, fmt.Errorf("by email: %w", err))
			e.logger.Warn().Err(err).Str("email", in.Email).Msg("customer lookup by email failed")
		} else if id := firstID(doc); id != "" {
			return id, LookupFound, nil
		}
	}

	if in.Phone != "" {
		doc, err := e.backend.Get(ctx, customersPath+"/search", url.Values{"q": {in.Phone}})
		if err != nil {
			errs = append(errs, fmt.Errorf("by phone: %w", err))
			e.logger.Warn().Err(err).Str("phone", in.Phone).Msg("customer lookup by phone failed")
		} else if id := firstID(doc); id != "" {
			return id, LookupFound, nil
		}
	}

	attempts := 0
	if in.Email != "" {
		attempts++
	}
	if in.Phone != "" {
		attempts++
	}
	if len(errs) > 0 && len(errs) == attempts {
		return "", LookupFailed, errors.Join(errs...)
	}
	return "", LookupNotFound, nil
}

func (e *Engine) create(ctx context.Context, in Input) (string, error) {
	payload := map[string]any{}
	if in.Email != "" {
		payload["email"] = in.Email
	} else {
		payload["channels"] = []Channel{{Type: ChannelPhone, Address: in.Phone, Preferred: true}}
	}

	doc, err := e.backend.Post(ctx, customersPath, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	id := documentID(doc)
	if id == "" {
		return "", fmt.Errorf("%w: response has no id", ErrCreateFailed)
	}
	e.logger.Info().Str("customer_id", id).Msg("customer created")
	return id, nil
}

func (e *Engine) fetch(ctx context.Context, customerID string) (Record, error) {
	doc, err := e.backend.Get(ctx, customersPath+"/"+url.PathEscape(customerID), nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	rec, err := recordFromDocument(doc)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return rec, nil
}

func firstID(doc gorgias.Document) string {
	items := doc.Data()
	if len(items) == 0 {
		return ""
	}
	obj, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	return documentID(obj)
}
