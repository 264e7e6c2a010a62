package gatewayhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kwonye/mcpx/pkg/mcpxconfig"
)

type mutableSource struct {
	mu   sync.Mutex
	snap mcpxconfig.Snapshot
}

func (m *mutableSource) Snapshot() (mcpxconfig.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *mutableSource) set(snap mcpxconfig.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[{"name":"echo"}]}}`))
	}))
}

func doMCP(t *testing.T, gw *httptest.Server, token string, payload string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, gw.URL+"/mcp", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("content-type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestDynamicVisibility(t *testing.T) {
	upstream := echoServer(t)
	defer upstream.Close()

	source := &mutableSource{snap: mcpxconfig.Snapshot{
		LocalTokenRef: "local-token",
		Upstreams:     []mcpxconfig.UpstreamEntry{{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: upstream.URL}}},
	}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	resp := doMCP(t, gw, "local-token", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	defer resp.Body.Close()
	var decoded struct {
		Result struct {
			Tools []struct{ Name string } `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Result.Tools) != 1 || decoded.Result.Tools[0].Name != "echo" {
		t.Fatalf("got %+v", decoded)
	}

	source.set(mcpxconfig.Snapshot{LocalTokenRef: "local-token"})
	resp2 := doMCP(t, gw, "local-token", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	defer resp2.Body.Close()
	var decoded2 struct {
		Result struct {
			Tools []struct{ Name string } `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&decoded2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded2.Result.Tools) != 0 {
		t.Fatalf("expected empty catalog after the upstream was removed, got %+v", decoded2)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	source := &mutableSource{snap: mcpxconfig.Snapshot{LocalTokenRef: "local-token"}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	resp, err := http.Post(gw.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestSecretMissingDoesNotContactUpstream(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))
	defer upstream.Close()

	source := &mutableSource{snap: mcpxconfig.Snapshot{
		LocalTokenRef: "local-token",
		Upstreams: []mcpxconfig.UpstreamEntry{{
			Name: "circleback",
			Spec: mcpxconfig.HTTPSpec{URL: upstream.URL, Headers: map[string]string{"Authorization": "secret://missing_token"}},
		}},
	}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	resp := doMCP(t, gw, "local-token", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`)
	defer resp.Body.Close()
	var decoded struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || !strings.Contains(decoded.Error.Message, "Secret not found") {
		t.Fatalf("got %+v", decoded)
	}
	if contacted {
		t.Fatalf("upstream must not be contacted when a header secret is missing")
	}
}

func TestOversizedBodyRejectedWith413(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))
	defer upstream.Close()

	source := &mutableSource{snap: mcpxconfig.Snapshot{
		LocalTokenRef: "local-token",
		Upstreams:     []mcpxconfig.UpstreamEntry{{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: upstream.URL}}},
	}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	oversized := `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{"pad":"` + strings.Repeat("a", maxBodyBytes+1) + `"}}`
	resp := doMCP(t, gw, "local-token", oversized)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}
	if contacted {
		t.Fatalf("upstream must not be contacted when the request body exceeds the size cap")
	}

	source.mu.Lock()
	stillConfigured := len(source.snap.Upstreams) == 1
	source.mu.Unlock()
	if !stillConfigured {
		t.Fatalf("oversized request must not mutate snapshot/pool state")
	}
}

func TestInitializeSetsSessionHeader(t *testing.T) {
	source := &mutableSource{snap: mcpxconfig.Snapshot{LocalTokenRef: "local-token"}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	resp := doMCP(t, gw, "local-token", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	defer resp.Body.Close()
	if resp.Header.Get("mcp-session-id") == "" {
		t.Fatalf("expected a generated mcp-session-id header")
	}
	if resp.Header.Get("MCP-Session-Id") == "" {
		t.Fatalf("expected a generated MCP-Session-Id header")
	}
}

func TestAuthChallengeHoistsHTTPStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("www-authenticate", `Bearer error="invalid_token", resource_metadata="https://mcp.vercel.com/.well-known/oauth-protected-resource"`)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer upstream.Close()

	source := &mutableSource{snap: mcpxconfig.Snapshot{
		LocalTokenRef: "local-token",
		Upstreams:     []mcpxconfig.UpstreamEntry{{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: upstream.URL}}},
	}}
	front := New(source, mcpxconfig.MapStore{}, nil)
	gw := httptest.NewServer(front.Handler())
	defer gw.Close()

	resp := doMCP(t, gw, "local-token", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	wwwAuth := resp.Header.Get("www-authenticate")
	if !strings.Contains(wwwAuth, `resource_metadata="http://`) || !strings.HasSuffix(wwwAuth, `/.well-known/oauth-protected-resource"`) {
		t.Fatalf("www-authenticate = %q", wwwAuth)
	}
	if strings.Contains(wwwAuth, "upstream=") {
		t.Fatalf("request was unscoped, resource_metadata should carry no ?upstream= suffix, got %q", wwwAuth)
	}
	if strings.Contains(wwwAuth, "mcp.vercel.com") {
		t.Fatalf("expected the upstream's resource_metadata to be rewritten, got %q", wwwAuth)
	}
}
