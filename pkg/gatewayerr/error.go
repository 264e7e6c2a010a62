package gatewayerr

import "fmt"

// Kind identifies one row of the error taxonomy. It is compared by value,
// not by Go type, so a single *Error can represent every failure category.
type Kind string

const (
	KindUnauthorizedLocalClient Kind = "unauthorized_local_client"
	KindPayloadTooLarge         Kind = "payload_too_large"
	KindMalformedRequest        Kind = "malformed_request"
	KindUnknownMethod           Kind = "unknown_method"
	KindInvalidParams           Kind = "invalid_params"
	KindUnknownUpstreamScope    Kind = "unknown_upstream_scope"
	KindSecretMissing           Kind = "secret_missing"
	KindUpstreamTimeout         Kind = "upstream_timeout"
	KindUpstreamRPCError        Kind = "upstream_rpc_error"
	KindUpstreamHTTPError       Kind = "upstream_http_error"
	KindStdioTransportError     Kind = "stdio_transport_error"
)

// JSON-RPC error codes named by the specification.
const (
	CodeServerError    = -32000
	CodeUnauthorized   = -32001
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// AuthChallenge carries an upstream 401/403 that must propagate to the local
// client unchanged, bypassing normal JSON-RPC response framing.
type AuthChallenge struct {
	Status          int
	BodyText        string
	WWWAuthenticate string
}

// Error is the single error type used across the gateway core.
type Error struct {
	Kind    Kind
	Code    int
	Message string

	// Challenge is non-nil only for errors that must hoist to the HTTP layer
	// as a raw 401/403 instead of a JSON-RPC error object.
	Challenge *AuthChallenge

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthChallenge reports whether err carries a propagating 401/403.
func IsAuthChallenge(err error) (*AuthChallenge, bool) {
	var gerr *Error
	if !asError(err, &gerr) {
		return nil, false
	}
	if gerr.Challenge == nil {
		return nil, false
	}
	return gerr.Challenge, true
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorizedLocalClient, Code: CodeUnauthorized, Message: "Unauthorized"}
}

func PayloadTooLarge() *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: "payload too large"}
}

func Malformed(format string, args ...any) *Error {
	return &Error{Kind: KindMalformedRequest, Code: CodeServerError, Message: fmt.Sprintf(format, args...)}
}

func UnknownMethod(method string) *Error {
	return &Error{Kind: KindUnknownMethod, Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
}

func InvalidParams(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidParams, Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func UnknownUpstreamScope(name string) *Error {
	return &Error{Kind: KindUnknownUpstreamScope, Code: CodeInvalidParams, Message: fmt.Sprintf("unknown upstream %q", name)}
}

func SecretMissing(name string) *Error {
	return &Error{Kind: KindSecretMissing, Code: CodeServerError, Message: fmt.Sprintf("Secret not found: %s", name)}
}

func UpstreamTimeout(name, method string, ms int64) *Error {
	return &Error{
		Kind:    KindUpstreamTimeout,
		Code:    CodeServerError,
		Message: fmt.Sprintf("upstream %q method %q timed out after %dms", name, method, ms),
	}
}

func UpstreamRPCError(name, message string) *Error {
	return &Error{
		Kind:    KindUpstreamRPCError,
		Code:    CodeServerError,
		Message: fmt.Sprintf("upstream %q returned an error: %s", name, message),
	}
}

// UpstreamHTTPError reports a non-2xx HTTP response from an upstream. When
// status is 401 or 403 the error carries an AuthChallenge so the caller can
// hoist it to the HTTP layer verbatim.
func UpstreamHTTPError(name string, status int, bodyText, wwwAuthenticate string) *Error {
	e := &Error{
		Kind:    KindUpstreamHTTPError,
		Code:    CodeServerError,
		Message: fmt.Sprintf("upstream %q returned HTTP %d", name, status),
	}
	if status == 401 || status == 403 {
		e.Challenge = &AuthChallenge{Status: status, BodyText: bodyText, WWWAuthenticate: wwwAuthenticate}
	}
	return e
}

func StdioTransportError(name string, err error) *Error {
	return &Error{
		Kind:    KindStdioTransportError,
		Code:    CodeServerError,
		Message: fmt.Sprintf("upstream %q transport error", name),
		Err:     err,
	}
}

func UnsupportedStdioMethod(method string) *Error {
	return &Error{
		Kind:    KindInvalidParams,
		Code:    CodeInvalidParams,
		Message: fmt.Sprintf("unsupported stdio method %q", method),
	}
}
