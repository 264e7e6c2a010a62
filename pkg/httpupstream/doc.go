// Package httpupstream performs a single JSON-RPC call against an HTTPS MCP
// upstream, handling both plain-JSON and server-sent-event response bodies.
// The SSE state machine is adapted from the hand-rolled SSE facade in
// Dub1n-mcp-proxy's http.go, run in the parsing rather than emitting
// direction.
package httpupstream
