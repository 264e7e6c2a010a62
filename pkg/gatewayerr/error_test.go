package gatewayerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAuthChallengeUnwraps(t *testing.T) {
	base := UpstreamHTTPError("vercel", 401, "nope", `Bearer resource_metadata="https://x"`)
	wrapped := fmt.Errorf("dispatch failed: %w", base)

	challenge, ok := IsAuthChallenge(wrapped)
	if !ok {
		t.Fatalf("expected auth challenge to be found through wrapping")
	}
	if challenge.Status != 401 {
		t.Fatalf("status = %d, want 401", challenge.Status)
	}
}

func TestIsAuthChallengeAbsentForNon4xx(t *testing.T) {
	base := UpstreamHTTPError("vercel", 500, "boom", "")
	if _, ok := IsAuthChallenge(base); ok {
		t.Fatalf("500 must not be reported as an auth challenge")
	}
}

func TestSecretMissingMessage(t *testing.T) {
	err := SecretMissing("missing_token")
	if err.Code != CodeServerError {
		t.Fatalf("code = %d, want %d", err.Code, CodeServerError)
	}
	if got := err.Message; got != "Secret not found: missing_token" {
		t.Fatalf("message = %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("pipe closed")
	err := StdioTransportError("next_devtools", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to find wrapped inner error")
	}
}
