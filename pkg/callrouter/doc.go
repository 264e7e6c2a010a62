// Package callrouter implements the NamespacedCallRouter: it parses a
// namespaced tool/prompt name or resource uri from a tools/call, prompts/get,
// or resources/read request, resolves which configured upstream it targets
// (honoring an optional ?upstream= scope and single-upstream flat mode), and
// forwards the call via upstreamrouter with the upstream-local identifier
// written back into params.
package callrouter
