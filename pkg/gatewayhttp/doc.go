// Package gatewayhttp implements the GatewayHttpFront: the single loopback
// HTTP listener that authenticates local clients, frames batched JSON-RPC
// requests, dispatches them to CatalogMerger/NamespacedCallRouter, and emits
// plain-JSON or SSE responses. Its graceful-shutdown discipline
// (http.Server.Shutdown driven by signal.NotifyContext) follows the
// errCh/select-on-ctx.Done() shutdown discipline common to long-running
// Go servers in this style.
package gatewayhttp
