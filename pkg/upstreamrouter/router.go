package upstreamrouter

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/httpupstream"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
	"github.com/kwonye/mcpx/pkg/stdiopool"
)

const defaultTimeoutMS = 30_000
const timeoutEnvVar = "MCPX_UPSTREAM_TIMEOUT_MS"

// Router is the UpstreamRouter: a single dispatch point that sends a JSON-RPC
// method to the right transport for a configured upstream.
type Router struct {
	HTTP    *httpupstream.Caller
	Pool    *stdiopool.Pool
	Secrets *mcpxconfig.Resolver
}

// New builds a Router.
func New(pool *stdiopool.Pool, resolver *mcpxconfig.Resolver) *Router {
	return &Router{HTTP: &httpupstream.Caller{}, Pool: pool, Secrets: resolver}
}

// Call dispatches method against the upstream named name, whose spec is
// spec. passthroughAuth is forwarded to HTTP upstreams only.
func (r *Router) Call(ctx context.Context, name string, spec mcpxconfig.Spec, method string, id any, params json.RawMessage, passthroughAuth string) (json.RawMessage, error) {
	switch mcpxconfig.TransportOf(spec) {
	case mcpxconfig.TransportHTTP:
		httpSpec, _ := mcpxconfig.AsHTTP(spec)
		return r.HTTP.Call(ctx, name, httpSpec, method, id, params, r.Secrets, passthroughAuth)
	case mcpxconfig.TransportStdio:
		stdioSpec, _ := mcpxconfig.AsStdio(spec)
		return r.callStdio(ctx, name, stdioSpec, method, params)
	default:
		return nil, gatewayerr.Malformed("upstream %q has no recognized transport", name)
	}
}

func (r *Router) callStdio(ctx context.Context, name string, spec mcpxconfig.StdioSpec, method string, params json.RawMessage) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS())*time.Millisecond)
	defer cancel()

	session, err := r.Pool.Acquire(callCtx, name, spec)
	if err != nil {
		return nil, err
	}

	result, err := dispatchStdio(callCtx, session, method, params)
	if err != nil {
		if callCtx.Err() != nil {
			r.Pool.Invalidate(name)
			return nil, gatewayerr.UpstreamTimeout(name, method, timeoutMS())
		}
		if gerr, ok := err.(*gatewayerr.Error); ok {
			return nil, gerr
		}
		if !isApplicationError(err, method) {
			r.Pool.Invalidate(name)
			return nil, gatewayerr.StdioTransportError(name, err)
		}
		return nil, gatewayerr.UpstreamRPCError(name, err.Error())
	}
	return result, nil
}

func dispatchStdio(ctx context.Context, session *mcp.ClientSession, method string, params json.RawMessage) (json.RawMessage, error) {
	switch method {
	case "tools/list":
		var p mcp.ListToolsParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.ListTools(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	case "resources/list":
		var p mcp.ListResourcesParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.ListResources(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	case "prompts/list":
		var p mcp.ListPromptsParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.ListPrompts(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	case "tools/call":
		var p mcp.CallToolParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.CallTool(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	case "resources/read":
		var p mcp.ReadResourceParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.ReadResource(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	case "prompts/get":
		var p mcp.GetPromptParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		res, err := session.GetPrompt(ctx, &p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	default:
		return nil, gatewayerr.UnsupportedStdioMethod(method)
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return gatewayerr.InvalidParams("malformed params: %v", err)
	}
	return nil
}

// isApplicationError reports whether err looks like an MCP-level JSON-RPC
// error reply (method unavailable, validation failure) rather than a
// transport-level failure (pipe closed, process exit, protocol framing).
// Grounded on the isMethodUnavailableError heuristic, generalized from
// "unsupported method" detection to the broader transport/application
// split this gateway needs.
func isApplicationError(err error, method string) bool {
	lower := strings.ToLower(err.Error())
	markers := []string{"method not found", "not implemented", "unsupported", "does not support", "unimplemented", "invalid params", "invalid argument"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func timeoutMS() int64 {
	v, ok := os.LookupEnv(timeoutEnvVar)
	if !ok {
		return defaultTimeoutMS
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return defaultTimeoutMS
	}
	return n
}
