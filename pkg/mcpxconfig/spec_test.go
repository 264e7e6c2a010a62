package mcpxconfig

import (
	"testing"

	optional "github.com/TBXark/optional-go"
)

func TestTransportOfAndNarrowing(t *testing.T) {
	http := HTTPSpec{URL: "https://example.com/mcp"}
	stdio := StdioSpec{Command: "npx", Args: []string{"server-everything"}}

	if !IsHTTP(http) || IsStdio(http) {
		t.Fatalf("IsHTTP/IsStdio mismatch for http spec")
	}
	if !IsStdio(stdio) || IsHTTP(stdio) {
		t.Fatalf("IsHTTP/IsStdio mismatch for stdio spec")
	}
	if TransportOf(http) != TransportHTTP {
		t.Fatalf("TransportOf(http) = %q", TransportOf(http))
	}
	if TransportOf(stdio) != TransportStdio {
		t.Fatalf("TransportOf(stdio) = %q", TransportOf(stdio))
	}

	if v, ok := AsHTTP(http); !ok || v.URL != "https://example.com/mcp" {
		t.Fatalf("AsHTTP failed to narrow: ok=%v v=%#v", ok, v)
	}
	if v, ok := AsStdio(http); ok || v.Command != "" {
		t.Fatalf("AsStdio(http) should not narrow: ok=%v v=%#v", ok, v)
	}
}

func TestValidName(t *testing.T) {
	cases := map[string]bool{
		"vercel":        true,
		"next_devtools": true,
		"a":             true,
		"":              false,
		".leading-dot":  false,
		"bad name":      false,
	}
	for name, want := range cases {
		if got := ValidName(name); got != want {
			t.Fatalf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestStdioSpecCwdOptional(t *testing.T) {
	withCwd := StdioSpec{Command: "node", Cwd: optional.NewField("/srv/app")}
	if cwd, ok := withCwd.Cwd.Get(); !ok || cwd != "/srv/app" {
		t.Fatalf("Cwd.Get() = (%q, %v)", cwd, ok)
	}

	var empty StdioSpec
	if _, ok := empty.Cwd.Get(); ok {
		t.Fatalf("zero-value Cwd should be invalid")
	}
}
