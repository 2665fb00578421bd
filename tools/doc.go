// Package tools defines the helpdesk tool groups published by the server:
// customers, tickets and orders.
//
// Each handler takes a typed argument struct and returns one text result.
// Backend failures are caught here and returned as text ("Error getting
// ticket 7: ..."), so a successful tools/call does not by itself mean the
// helpdesk operation succeeded.
package tools
