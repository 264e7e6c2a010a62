package oauthproxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/cors"

	"github.com/kwonye/mcpx/pkg/mcpxconfig"
)

// WellKnownPrefixes are the discovery paths this proxy handles.
var WellKnownPrefixes = []string{
	"/.well-known/oauth-protected-resource",
	"/.well-known/oauth-authorization-server",
	"/.well-known/openid-configuration",
}

// Matches reports whether path starts with one of the well-known prefixes.
func Matches(path string) bool {
	for _, p := range WellKnownPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Proxy is the OAuthPassthrough. Source supplies the current configuration
// snapshot and Client performs the outbound well-known request.
type Proxy struct {
	Source  mcpxconfig.Source
	Secrets *mcpxconfig.Resolver
	Client  *http.Client
	cors    *cors.Cors
}

// New builds a Proxy wrapped in permissive GET CORS, so browser-based OAuth
// consent flows can fetch the well-known discovery documents directly,
// generalized to a scoped per-request upstream.
func New(source mcpxconfig.Source, secrets *mcpxconfig.Resolver) *Proxy {
	return &Proxy{
		Source:  source,
		Secrets: secrets,
		Client:  http.DefaultClient,
		cors: cors.New(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedOrigins: []string{"*"},
		}),
	}
}

// Handler returns an http.Handler for the well-known prefixes, wrapped in
// CORS.
func (p *Proxy) Handler() http.Handler {
	return p.cors.Handler(http.HandlerFunc(p.serve))
}

func (p *Proxy) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scopeUpstream := r.URL.Query().Get("upstream")
	entry, ok, err := p.resolveSingleHTTPUpstream(scopeUpstream)
	if err != nil || !ok {
		http.NotFound(w, r)
		return
	}
	httpSpec, _ := mcpxconfig.AsHTTP(entry.Spec)

	prefix := wellKnownPrefix(r.URL.Path)
	upstreamURL, err := buildUpstreamURL(httpSpec.URL, prefix)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, upstreamURL, nil)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	req.Header.Set("accept", "application/json")
	if v := r.Header.Get("mcp-protocol-version"); v != "" {
		req.Header.Set("mcp-protocol-version", v)
	}
	for k, v := range httpSpec.Headers {
		resolved, rerr := p.Secrets.Resolve(v)
		if rerr != nil {
			continue
		}
		req.Header.Set(k, resolved)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	for _, h := range []string{"content-type", "cache-control", "www-authenticate"} {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	if w.Header().Get("www-authenticate") != "" {
		localBase := "http://" + r.Host
		w.Header().Set("www-authenticate", RewriteWWWAuthenticate(w.Header().Get("www-authenticate"), localBase, scopeUpstream))
	}

	if strings.HasPrefix(r.URL.Path, "/.well-known/oauth-protected-resource") && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if rewritten, ok := rewriteResourceField(body, "http://"+r.Host+mcpPath(scopeUpstream)); ok {
			body = rewritten
		}
	}

	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

func (p *Proxy) resolveSingleHTTPUpstream(scopeUpstream string) (mcpxconfig.UpstreamEntry, bool, error) {
	snapshot, err := p.Source.Snapshot()
	if err != nil {
		return mcpxconfig.UpstreamEntry{}, false, err
	}
	if scopeUpstream != "" {
		entry, ok := snapshot.Lookup(scopeUpstream)
		if !ok || !mcpxconfig.IsHTTP(entry.Spec) {
			return mcpxconfig.UpstreamEntry{}, false, nil
		}
		return entry, true, nil
	}
	if len(snapshot.Upstreams) != 1 || !mcpxconfig.IsHTTP(snapshot.Upstreams[0].Spec) {
		return mcpxconfig.UpstreamEntry{}, false, nil
	}
	return snapshot.Upstreams[0], true, nil
}

func wellKnownPrefix(path string) string {
	for _, p := range WellKnownPrefixes {
		if strings.HasPrefix(path, p) {
			return p
		}
	}
	return ""
}

// buildUpstreamURL computes origin(upstreamURL) + prefix + path(upstreamURL)
// with any trailing slash on the upstream path stripped, e.g.
// "https://host/mcp" + "/.well-known/oauth-protected-resource" →
// "https://host/.well-known/oauth-protected-resource/mcp".
func buildUpstreamURL(upstreamURL, prefix string) (string, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return "", err
	}
	origin := u.Scheme + "://" + u.Host
	path := strings.TrimSuffix(u.Path, "/")
	return origin + prefix + path, nil
}

func mcpPath(scopeUpstream string) string {
	if scopeUpstream == "" {
		return "/mcp"
	}
	return "/mcp?upstream=" + url.QueryEscape(scopeUpstream)
}

func rewriteResourceField(body []byte, resource string) ([]byte, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false
	}
	if _, ok := decoded["resource"]; !ok {
		return nil, false
	}
	decoded["resource"] = resource
	rewritten, err := json.Marshal(decoded)
	if err != nil {
		return nil, false
	}
	return rewritten, true
}

var resourceMetadataPattern = regexp.MustCompile(`resource_metadata="[^"]*"`)

// RewriteWWWAuthenticate replaces (or appends) the resource_metadata="..."
// parameter of a WWW-Authenticate header value so it points back at the
// local gateway's own oauth-protected-resource endpoint.
func RewriteWWWAuthenticate(header, localBase, scopeUpstream string) string {
	local := localBase + "/.well-known/oauth-protected-resource"
	if scopeUpstream != "" {
		local += "?upstream=" + url.QueryEscape(scopeUpstream)
	}
	replacement := `resource_metadata="` + local + `"`
	if resourceMetadataPattern.MatchString(header) {
		return resourceMetadataPattern.ReplaceAllString(header, replacement)
	}
	return header + `, resource_metadata="` + local + `"`
}
