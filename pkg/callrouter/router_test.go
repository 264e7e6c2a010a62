package callrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kwonye/mcpx/pkg/mcpxconfig"
	"github.com/kwonye/mcpx/pkg/stdiopool"
	"github.com/kwonye/mcpx/pkg/upstreamrouter"
)

func newFixture(t *testing.T) (mcpxconfig.UpstreamEntry, func(), *string) {
	t.Helper()
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotName = req.Params.Name
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[]}}`))
	}))
	return mcpxconfig.UpstreamEntry{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: srv.URL}}, srv.Close, &gotName
}

func TestCallFlatModeNoRewrite(t *testing.T) {
	entry, closeFn, gotName := newFixture(t)
	defer closeFn()

	snapshot := mcpxconfig.Snapshot{Upstreams: []mcpxconfig.UpstreamEntry{entry}}
	router := New(upstreamrouter.New(stdiopool.New(mcpxconfig.NewResolver(nil)), mcpxconfig.NewResolver(nil)))

	params, _ := json.Marshal(map[string]any{"name": "explain_vercel_concept"})
	_, err := router.Call(context.Background(), "tools/call", params, float64(1), snapshot, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *gotName != "explain_vercel_concept" {
		t.Fatalf("got %q, want unrewritten flat name", *gotName)
	}
}

func TestCallNamespacedUnscopedRoutesToServer(t *testing.T) {
	entry, closeFn, gotName := newFixture(t)
	defer closeFn()
	other := mcpxconfig.UpstreamEntry{Name: "circleback", Spec: mcpxconfig.HTTPSpec{URL: "http://127.0.0.1:1"}}

	snapshot := mcpxconfig.Snapshot{Upstreams: []mcpxconfig.UpstreamEntry{other, entry}}
	router := New(upstreamrouter.New(stdiopool.New(mcpxconfig.NewResolver(nil)), mcpxconfig.NewResolver(nil)))

	params, _ := json.Marshal(map[string]any{"name": "vercel.echo"})
	_, err := router.Call(context.Background(), "tools/call", params, float64(1), snapshot, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *gotName != "echo" {
		t.Fatalf("got %q, want stripped local name forwarded to vercel", *gotName)
	}
}

func TestCallUnscopedAmbiguousFlatFails(t *testing.T) {
	vercel := mcpxconfig.UpstreamEntry{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: "http://127.0.0.1:1"}}
	circleback := mcpxconfig.UpstreamEntry{Name: "circleback", Spec: mcpxconfig.HTTPSpec{URL: "http://127.0.0.1:1"}}
	snapshot := mcpxconfig.Snapshot{Upstreams: []mcpxconfig.UpstreamEntry{vercel, circleback}}
	router := New(upstreamrouter.New(stdiopool.New(mcpxconfig.NewResolver(nil)), mcpxconfig.NewResolver(nil)))

	params, _ := json.Marshal(map[string]any{"name": "echo"})
	_, err := router.Call(context.Background(), "tools/call", params, float64(1), snapshot, "", "")
	if err == nil {
		t.Fatalf("expected -32602 for an unnamespaced identifier with multiple configured upstreams")
	}
}

func TestCallScopedMismatchFails(t *testing.T) {
	entry, closeFn, _ := newFixture(t)
	defer closeFn()
	snapshot := mcpxconfig.Snapshot{Upstreams: []mcpxconfig.UpstreamEntry{entry}}
	router := New(upstreamrouter.New(stdiopool.New(mcpxconfig.NewResolver(nil)), mcpxconfig.NewResolver(nil)))

	params, _ := json.Marshal(map[string]any{"name": "circleback.echo"})
	_, err := router.Call(context.Background(), "tools/call", params, float64(1), snapshot, "vercel", "")
	if err == nil {
		t.Fatalf("expected a mismatch error when the namespaced server differs from ?upstream=")
	}
}

func TestReadResourceParsesNamespacedURI(t *testing.T) {
	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				URI string `json:"uri"`
			} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotURI = req.Params.URI
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	entry := mcpxconfig.UpstreamEntry{Name: "vercel", Spec: mcpxconfig.HTTPSpec{URL: srv.URL}}
	snapshot := mcpxconfig.Snapshot{Upstreams: []mcpxconfig.UpstreamEntry{entry}}
	router := New(upstreamrouter.New(stdiopool.New(mcpxconfig.NewResolver(nil)), mcpxconfig.NewResolver(nil)))

	params, _ := json.Marshal(map[string]any{"uri": "mcpx://vercel/docs%3A%2F%2Foverview"})
	_, err := router.Call(context.Background(), "resources/read", params, float64(1), snapshot, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotURI != "docs://overview" {
		t.Fatalf("got %q", gotURI)
	}
}
