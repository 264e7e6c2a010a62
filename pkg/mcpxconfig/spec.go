package mcpxconfig

import (
	"fmt"
	"regexp"

	optional "github.com/TBXark/optional-go"
)

// Transport identifies which outbound path an upstream's Spec dispatches
// through.
type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportStdio Transport = "stdio"
)

// Spec is implemented by HTTPSpec and StdioSpec, the tagged variant of an
// upstream specification. Header and env values may carry secret://name
// references, resolved lazily at call time rather than here.
type Spec interface {
	kind() Transport
}

// HTTPSpec describes an upstream reachable over HTTPS JSON-RPC.
type HTTPSpec struct {
	URL     string
	Headers map[string]string
}

func (HTTPSpec) kind() Transport { return TransportHTTP }

// StdioSpec describes an upstream launched as a child process speaking
// JSON-RPC over its stdio pair.
type StdioSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     optional.Field[string]
}

func (StdioSpec) kind() Transport { return TransportStdio }

// TransportOf returns the transport kind for a Spec. Returns an empty string
// for nil or an unrecognized implementation.
func TransportOf(spec Spec) Transport {
	switch spec.(type) {
	case HTTPSpec, *HTTPSpec:
		return TransportHTTP
	case StdioSpec, *StdioSpec:
		return TransportStdio
	default:
		return ""
	}
}

// IsHTTP reports whether spec is an HTTPSpec.
func IsHTTP(spec Spec) bool {
	_, ok := AsHTTP(spec)
	return ok
}

// IsStdio reports whether spec is a StdioSpec.
func IsStdio(spec Spec) bool {
	_, ok := AsStdio(spec)
	return ok
}

// AsHTTP narrows spec to an HTTPSpec, returning (zero, false) otherwise.
func AsHTTP(spec Spec) (HTTPSpec, bool) {
	switch v := spec.(type) {
	case HTTPSpec:
		return v, true
	case *HTTPSpec:
		if v == nil {
			return HTTPSpec{}, false
		}
		return *v, true
	default:
		return HTTPSpec{}, false
	}
}

// AsStdio narrows spec to a StdioSpec, returning (zero, false) otherwise.
func AsStdio(spec Spec) (StdioSpec, bool) {
	switch v := spec.(type) {
	case StdioSpec:
		return v, true
	case *StdioSpec:
		if v == nil {
			return StdioSpec{}, false
		}
		return *v, true
	default:
		return StdioSpec{}, false
	}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// ValidName reports whether name satisfies the upstream naming invariant.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// ValidateName returns an error describing why name is not a valid upstream
// identifier, or nil if it is valid.
func ValidateName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("mcpxconfig: invalid upstream name %q", name)
	}
	return nil
}
