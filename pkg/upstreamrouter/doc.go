// Package upstreamrouter dispatches one JSON-RPC method call to the correct
// transport for a configured upstream: HttpUpstreamCaller for HTTP
// upstreams, or the official MCP SDK's typed ClientSession methods (via
// stdiopool) for stdio upstreams. Any transport-level failure from a stdio
// call evicts the pool entry, mirroring the monitorSession/session-teardown
// split between transport death and application errors.
package upstreamrouter
