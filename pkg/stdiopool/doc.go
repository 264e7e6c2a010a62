// Package stdiopool keeps one long-lived child-process MCP client per
// upstream name, shared across concurrent JSON-RPC calls and invalidated
// when the upstream's specification mutates or a transport-level error
// surfaces. The dedup-connect discipline (insert a pending entry before the
// connection completes so concurrent callers share one attempt) is adapted
// from mcpmgr.Manager.ConnectToServer's connect-or-await pattern.
package stdiopool
