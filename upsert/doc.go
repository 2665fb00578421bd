// Package upsert implements create-or-update-by-identity for helpdesk
// customers.
//
// A customer is identified by email (exact match) or, failing that, by the
// first result of a phone search. When nothing matches, a minimal record is
// created. The working record is then re-read and the supplied fields are
// merged over its current values, and the merged payload is sent as one
// update.
//
// Channel reconciliation never drops contact data that the call did not
// supersede: email channels are always kept, and phone channels are replaced
// only when a new phone number is supplied.
package upsert
