// Package catalog implements the CatalogMerger: concurrent *_/list fan-out
// across every upstream in scope, namespacing of the merged result, and
// per-upstream failure isolation. Concurrency uses golang.org/x/sync/errgroup,
// mirroring Dub1n-mcp-proxy's startHTTPServer concurrent-connect fan-out.
package catalog
