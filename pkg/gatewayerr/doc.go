// Package gatewayerr centralizes the JSON-RPC error taxonomy the gateway
// surfaces to local clients. Every failure the core produces is a *Error
// carrying a Kind, the JSON-RPC code to report, and an optional HTTP-level
// auth challenge that bypasses normal JSON-RPC framing.
package gatewayerr
