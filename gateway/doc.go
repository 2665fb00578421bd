// Package gateway speaks the Model Context Protocol for a tool registry.
//
// A Gateway answers initialize, tools/list and tools/call, returns empty
// resource and prompt lists, and rejects everything else with
// method-not-found. Tool calls may ask to stream: the gateway then writes a
// "Starting <tool>..." frame followed by cumulative prefixes of the result,
// the last of which is identical to the non-streamed response.
//
// Two transports are provided:
//
//	http.Handle("/", gateway.NewHTTPHandler(gw, gateway.HTTPOptions{Logger: logger}))
//	err := gateway.ServeStdio(ctx, gw, os.Stdin, os.Stdout, gateway.StdioOptions{Logger: logger})
//
// Over HTTP a streamed call is sent as server-sent events; over stdio each
// frame is its own line.
package gateway
