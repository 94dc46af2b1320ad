// Package dispatch accepts client connections and routes newline-delimited
// JSON-RPC 2.0 requests to tool handlers.
//
// One goroutine serves each connection and processes its requests strictly
// in order: the next request line is not read until the previous response
// has been written, so per-connection response order always matches request
// order. Every per-request failure is converted to a JSON-RPC error object
// and the connection stays usable; only startup failures abort the process.
package dispatch
