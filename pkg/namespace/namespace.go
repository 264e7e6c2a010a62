package namespace

import (
	"fmt"
	"net/url"
	"strings"
)

const scheme = "mcpx"

// ToolName returns the namespaced form of a tool or prompt name for server.
// When flat is true the name is returned unchanged.
func ToolName(server, name string, flat bool) string {
	if flat {
		return name
	}
	return server + "." + name
}

// ResourceURI returns the namespaced form of a resource URI or uriTemplate
// for server. When flat is true the uri is returned unchanged.
func ResourceURI(server, uri string, flat bool) string {
	if flat {
		return uri
	}
	return fmt.Sprintf("%s://%s/%s", scheme, server, strings.ReplaceAll(url.QueryEscape(uri), "+", "%20"))
}

// ParsedName is the decoded form of a namespaced tool/prompt name.
type ParsedName struct {
	Server     string
	Local      string
	Namespaced bool
}

// ParseToolName splits "server.local" on the first '.'. A name with no '.'
// is reported as not namespaced.
func ParseToolName(name string) ParsedName {
	server, local, ok := strings.Cut(name, ".")
	if !ok {
		return ParsedName{Local: name}
	}
	return ParsedName{Server: server, Local: local, Namespaced: true}
}

// ParsedURI is the decoded form of a namespaced resource URI.
type ParsedURI struct {
	Server     string
	Local      string
	Namespaced bool
}

// ParseResourceURI decodes "mcpx://server/<urlEncoded(uri)>". A uri that
// does not carry the mcpx:// scheme is reported as not namespaced.
func ParseResourceURI(uri string) (ParsedURI, error) {
	prefix := scheme + "://"
	rest, ok := strings.CutPrefix(uri, prefix)
	if !ok {
		return ParsedURI{Local: uri}, nil
	}
	server, encoded, ok := strings.Cut(rest, "/")
	if !ok {
		return ParsedURI{}, fmt.Errorf("namespace: malformed resource uri %q", uri)
	}
	local, err := url.PathUnescape(encoded)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("namespace: malformed resource uri %q: %w", uri, err)
	}
	return ParsedURI{Server: server, Local: local, Namespaced: true}, nil
}
