// Package namespace encodes and decodes the merged-catalog identifier
// format: "<server>.<name>" for tools and prompts, "mcpx://<server>/<urlEncoded(uri)>"
// for resources, with a flat passthrough mode when exactly one upstream is
// in scope. The encode/decode interface shape is grounded on
// mcpgateway.NamespaceStrategy/ServerPrefixNamespace; the concrete wire
// format and flat-mode fallback are this repository's own.
package namespace
