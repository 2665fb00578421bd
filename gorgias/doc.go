// Package gorgias is a small client for the Gorgias helpdesk REST API.
//
// Requests authenticate with HTTP Basic auth built from the account username
// and API key. Responses are decoded into a Document; non-2xx responses become
// an *APIError. Tool handlers depend on narrow interfaces satisfied by
// *Client rather than on the concrete type.
package gorgias
