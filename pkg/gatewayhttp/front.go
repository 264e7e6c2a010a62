package gatewayhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kwonye/mcpx/pkg/callrouter"
	"github.com/kwonye/mcpx/pkg/catalog"
	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
	"github.com/kwonye/mcpx/pkg/oauthproxy"
	"github.com/kwonye/mcpx/pkg/stdiopool"
	"github.com/kwonye/mcpx/pkg/upstreamrouter"
)

const maxBodyBytes = 2_000_000

const protocolVersion = "2025-11-25"

// ServerName/ServerVersion identify this gateway in synthesized initialize
// responses.
const ServerName = "mcpx"

// Front is the GatewayHttpFront.
type Front struct {
	Source  mcpxconfig.Source
	Secrets *mcpxconfig.Resolver
	Pool    *stdiopool.Pool
	Router  *upstreamrouter.Router
	Merger  *catalog.Merger
	Calls   *callrouter.Router
	OAuth   *oauthproxy.Proxy

	ServerVersion string
	Logger        *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// New wires a Front from a configuration Source and secret Store. It owns
// its StdioConnectionPool, UpstreamRouter, CatalogMerger, NamespacedCallRouter,
// and OAuthPassthrough.
func New(source mcpxconfig.Source, secrets mcpxconfig.Store, logger *slog.Logger) *Front {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := mcpxconfig.NewResolver(secrets)
	pool := stdiopool.New(resolver, stdiopool.WithLogger(logger))
	router := upstreamrouter.New(pool, resolver)
	return &Front{
		Source:        source,
		Secrets:       resolver,
		Pool:          pool,
		Router:        router,
		Merger:        catalog.New(router),
		Calls:         callrouter.New(router),
		OAuth:         oauthproxy.New(source, resolver),
		ServerVersion: "0.1.0",
		Logger:        logger,
	}
}

// Handler builds the routed http.Handler: /mcp plus the well-known OAuth
// discovery prefixes.
func (f *Front) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", f.handleMCP)
	for _, prefix := range oauthproxy.WellKnownPrefixes {
		mux.Handle(prefix, f.OAuth.Handler())
	}
	return mux
}

// ListenAndServe binds to loopback on the configured port and runs until ctx
// is cancelled, then closes the stdio pool, following the errCh/select/
// http.Server.Shutdown discipline used throughout this codebase's
// long-running servers.
func (f *Front) ListenAndServe(ctx context.Context) error {
	snapshot, err := f.Source.Snapshot()
	if err != nil {
		return fmt.Errorf("gatewayhttp: read initial snapshot: %w", err)
	}

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", snapshot.GatewayPort), Handler: f.Handler()}
	f.mu.Lock()
	f.httpServer = srv
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		if f.httpServer == srv {
			f.httpServer = nil
		}
		f.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		f.Pool.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		f.Pool.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (f *Front) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	srv := f.httpServer
	f.httpServer = nil
	f.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (f *Front) handleMCP(w http.ResponseWriter, r *http.Request) {
	snapshot, err := f.Source.Snapshot()
	if err != nil {
		writeUnauthorizedLikeError(w, gatewayerr.Malformed("read configuration: %v", err))
		return
	}

	expectedToken, err := f.Secrets.Resolve(snapshot.LocalTokenRef)
	if err != nil || !authorized(r, expectedToken) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcErrorBody{Code: gatewayerr.CodeUnauthorized, Message: "Unauthorized"},
		})
		return
	}

	if r.Method == http.MethodGet {
		w.Header().Set("content-type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "server": ServerName})
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	passthroughAuth := passthroughAuthorization(r, expectedToken)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONRPCError(w, r, nil, gatewayerr.Malformed("read body: %v", err), false)
		return
	}

	requests, batch, err := parseRequests(body)
	if err != nil {
		writeJSONRPCError(w, r, nil, gatewayerr.Malformed("parse request: %v", err), false)
		return
	}

	f.Pool.Reconcile(snapshot.Fingerprints())

	scopeUpstream := r.URL.Query().Get("upstream")
	sawInitialize := false
	responses := make([]*rpcResponse, 0, len(requests))

	for _, req := range requests {
		if req.Method == "initialize" {
			sawInitialize = true
		}
		resp, challenge := f.dispatch(r.Context(), req, snapshot, scopeUpstream, passthroughAuth)
		if challenge != nil {
			localBase := "http://" + r.Host
			wwwAuth := challenge.WWWAuthenticate
			if wwwAuth != "" {
				wwwAuth = oauthproxy.RewriteWWWAuthenticate(wwwAuth, localBase, scopeUpstream)
			}
			if wwwAuth != "" {
				w.Header().Set("www-authenticate", wwwAuth)
			}
			w.WriteHeader(challenge.Status)
			w.Write([]byte(challenge.BodyText))
			return
		}
		if resp != nil {
			responses = append(responses, resp)
		}
	}

	if sawInitialize {
		id := uuid.NewString()
		w.Header().Set("mcp-session-id", id)
		w.Header().Set("MCP-Session-Id", id)
	}

	writeResponses(w, r, responses, batch)
}

func (f *Front) dispatch(ctx context.Context, req rpcRequest, snapshot mcpxconfig.Snapshot, scopeUpstream, passthroughAuth string) (*rpcResponse, *gatewayerr.AuthChallenge) {
	start := time.Now()
	resp, challenge := f.dispatchMethod(ctx, req, snapshot, scopeUpstream, passthroughAuth)
	if f.Logger != nil {
		outcome := "ok"
		if challenge != nil {
			outcome = "auth_challenge"
		} else if resp != nil && resp.Error != nil {
			outcome = resp.Error.Message
		}
		f.Logger.Debug("dispatch", "upstream", scopeUpstream, "method", req.Method, "duration", time.Since(start), "outcome", outcome)
	}
	return resp, challenge
}

func (f *Front) dispatchMethod(ctx context.Context, req rpcRequest, snapshot mcpxconfig.Snapshot, scopeUpstream, passthroughAuth string) (*rpcResponse, *gatewayerr.AuthChallenge) {
	switch req.Method {
	case "initialize":
		return f.handleInitialize(req), nil
	case "notifications/initialized":
		return nil, nil
	case "ping":
		return okResponse(req.ID, json.RawMessage(`{"ok":true}`)), nil
	case "tools/list", "resources/list", "prompts/list":
		if scopeUpstream != "" {
			if _, ok := snapshot.Lookup(scopeUpstream); !ok {
				return errorResponse(req.ID, gatewayerr.UnknownUpstreamScope(scopeUpstream)), nil
			}
		}
		result, err := f.Merger.List(ctx, req.Method, snapshot, scopeUpstream)
		if err != nil {
			if challenge, ok := gatewayerr.IsAuthChallenge(err); ok {
				return nil, challenge
			}
			return errorResponse(req.ID, err), nil
		}
		return okResponse(req.ID, result), nil
	case "tools/call", "resources/read", "prompts/get":
		result, err := f.Calls.Call(ctx, req.Method, req.Params, req.ID, snapshot, scopeUpstream, passthroughAuth)
		if err != nil {
			if challenge, ok := gatewayerr.IsAuthChallenge(err); ok {
				return nil, challenge
			}
			return errorResponse(req.ID, err), nil
		}
		return okResponse(req.ID, result), nil
	default:
		return errorResponse(req.ID, gatewayerr.UnknownMethod(req.Method)), nil
	}
}

func (f *Front) handleInitialize(req rpcRequest) *rpcResponse {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	version := params.ProtocolVersion
	if version == "" {
		version = protocolVersion
	}
	result, _ := json.Marshal(map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
		"serverInfo": map[string]any{"name": ServerName, "version": f.ServerVersion},
	})
	return okResponse(req.ID, result)
}

func okResponse(id any, result json.RawMessage) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id any, err error) *rpcResponse {
	gerr, ok := err.(*gatewayerr.Error)
	if !ok {
		gerr = gatewayerr.Malformed("%v", err)
	}
	code := gerr.Code
	if code == 0 {
		code = gatewayerr.CodeServerError
	}
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcErrorBody{Code: code, Message: gerr.Message}}
}

func parseRequests(body []byte) ([]rpcRequest, bool, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var reqs []rpcRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			return nil, true, err
		}
		return reqs, true, nil
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, err
	}
	return []rpcRequest{req}, false, nil
}

func writeResponses(w http.ResponseWriter, r *http.Request, responses []*rpcResponse, batch bool) {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		w.Header().Set("content-type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, resp := range responses {
			encoded, _ := json.Marshal(resp)
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", encoded)
			if flusher != nil {
				flusher.Flush()
			}
		}
		return
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	if batch {
		_ = json.NewEncoder(w).Encode(responses)
		return
	}
	if len(responses) == 0 {
		return
	}
	_ = json.NewEncoder(w).Encode(responses[0])
}

func writeJSONRPCError(w http.ResponseWriter, r *http.Request, id any, err error, batch bool) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse(id, err))
}

func writeUnauthorizedLikeError(w http.ResponseWriter, err error) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorResponse(nil, err))
}

func authorized(r *http.Request, expectedToken string) bool {
	if expectedToken == "" {
		return false
	}
	if r.Header.Get("x-mcpx-local-token") == expectedToken {
		return true
	}
	if bearer, ok := bearerToken(r); ok && bearer == expectedToken {
		return true
	}
	return false
}

// passthroughAuthorization determines the Authorization value to offer HTTP
// upstreams: when local auth was satisfied via x-mcpx-local-token, the
// client's Authorization header (if any) is forwarded verbatim; when local
// auth was satisfied via a Bearer token that is NOT the local token, that
// value is the passthrough credential. When the Authorization header itself
// was the local token, no passthrough is offered and the upstream receives
// only its configured header, if any.
func passthroughAuthorization(r *http.Request, expectedToken string) string {
	auth := r.Header.Get("Authorization")
	if r.Header.Get("x-mcpx-local-token") == expectedToken {
		return auth
	}
	if bearer, ok := bearerToken(r); ok && bearer != expectedToken {
		return auth
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimPrefix(auth, prefix), true
}
