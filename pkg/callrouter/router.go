package callrouter

import (
	"context"
	"encoding/json"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
	"github.com/kwonye/mcpx/pkg/namespace"
	"github.com/kwonye/mcpx/pkg/upstreamrouter"
)

// Router is the NamespacedCallRouter.
type Router struct {
	Upstream *upstreamrouter.Router
}

// New builds a Router.
func New(upstream *upstreamrouter.Router) *Router {
	return &Router{Upstream: upstream}
}

// Call resolves and forwards one tools/call, prompts/get, or resources/read
// request. scopeUpstream is the request's ?upstream= query parameter, or
// empty when unscoped. id is the inbound JSON-RPC request id, forwarded
// unchanged to HTTP upstreams; stdio sessions number their own requests.
func (r *Router) Call(ctx context.Context, method string, params json.RawMessage, id any, snapshot mcpxconfig.Snapshot, scopeUpstream, passthroughAuth string) (json.RawMessage, error) {
	var decoded map[string]any
	if len(params) == 0 {
		return nil, gatewayerr.InvalidParams("missing params object for %q", method)
	}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return nil, gatewayerr.InvalidParams("malformed params: %v", err)
	}

	keyField := "name"
	if method == "resources/read" {
		keyField = "uri"
	}
	raw, _ := decoded[keyField].(string)
	if raw == "" {
		return nil, gatewayerr.InvalidParams("%q missing required field %q", method, keyField)
	}

	server, local, namespaced, err := parseIdentifier(method, raw)
	if err != nil {
		return nil, err
	}

	target, localID, err := resolveTarget(snapshot, scopeUpstream, server, local, namespaced)
	if err != nil {
		return nil, err
	}

	decoded[keyField] = localID
	rewritten, err := json.Marshal(decoded)
	if err != nil {
		return nil, gatewayerr.Malformed("re-encode params: %v", err)
	}

	return r.Upstream.Call(ctx, target.Name, target.Spec, method, id, rewritten, passthroughAuth)
}

func parseIdentifier(method, raw string) (server, local string, namespaced bool, err error) {
	if method == "resources/read" {
		parsed, perr := namespace.ParseResourceURI(raw)
		if perr != nil {
			return "", "", false, gatewayerr.InvalidParams("%v", perr)
		}
		return parsed.Server, parsed.Local, parsed.Namespaced, nil
	}
	parsed := namespace.ParseToolName(raw)
	return parsed.Server, parsed.Local, parsed.Namespaced, nil
}

func resolveTarget(snapshot mcpxconfig.Snapshot, scopeUpstream, server, local string, namespaced bool) (mcpxconfig.UpstreamEntry, string, error) {
	if scopeUpstream != "" {
		entry, ok := snapshot.Lookup(scopeUpstream)
		if !ok {
			return mcpxconfig.UpstreamEntry{}, "", gatewayerr.UnknownUpstreamScope(scopeUpstream)
		}
		if namespaced && server != scopeUpstream {
			return mcpxconfig.UpstreamEntry{}, "", gatewayerr.InvalidParams(
				"identifier is namespaced for upstream %q but request is scoped to %q", server, scopeUpstream)
		}
		// local already holds the upstream-local identifier in both the
		// namespaced and flat (whole-identifier) cases.
		return entry, local, nil
	}

	if namespaced {
		entry, ok := snapshot.Lookup(server)
		if !ok {
			return mcpxconfig.UpstreamEntry{}, "", gatewayerr.UnknownUpstreamScope(server)
		}
		return entry, local, nil
	}

	if len(snapshot.Upstreams) == 1 {
		return snapshot.Upstreams[0], local, nil
	}

	return mcpxconfig.UpstreamEntry{}, "", gatewayerr.InvalidParams(
		"identifier %q must be namespaced as \"<server>.<name>\" when more than one upstream is configured", local)
}
