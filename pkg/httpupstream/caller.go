package httpupstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kwonye/mcpx/pkg/gatewayerr"
	"github.com/kwonye/mcpx/pkg/mcpxconfig"
)

const defaultTimeoutMS = 30_000

const timeoutEnvVar = "MCPX_UPSTREAM_TIMEOUT_MS"

// Caller is the HttpUpstreamCaller. The zero value is usable; Client
// defaults to http.DefaultClient if nil.
type Caller struct {
	Client *http.Client
}

// rpcRequest is the on-wire JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is the on-wire JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call performs one JSON-RPC POST against spec for name. passthroughAuth, if
// non-empty, overrides any merged Authorization header. secrets resolves any
// secret://name reference found in spec.Headers.
func (c *Caller) Call(ctx context.Context, name string, spec mcpxconfig.HTTPSpec, method string, id any, params json.RawMessage, secrets *mcpxconfig.Resolver, passthroughAuth string) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, gatewayerr.Malformed("encode request: %v", err)
	}

	ms := timeoutMS()
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, spec.URL, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Malformed("build request: %v", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json, text/event-stream")

	for k, v := range spec.Headers {
		resolved, err := secrets.Resolve(v)
		if err != nil {
			return nil, err
		}
		req.Header.Set(k, resolved)
	}
	if passthroughAuth != "" {
		req.Header.Set("Authorization", passthroughAuth)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, gatewayerr.UpstreamTimeout(name, method, ms)
		}
		return nil, gatewayerr.UpstreamHTTPError(name, 0, err.Error(), "")
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, gatewayerr.UpstreamTimeout(name, method, ms)
		}
		return nil, gatewayerr.UpstreamHTTPError(name, resp.StatusCode, "", resp.Header.Get("www-authenticate"))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, gatewayerr.UpstreamHTTPError(name, resp.StatusCode, string(bodyBytes), resp.Header.Get("www-authenticate"))
	}

	envelope, err := parseBody(resp.Header.Get("content-type"), bodyBytes, id)
	if err != nil {
		return nil, gatewayerr.Malformed("parse upstream %q response: %v", name, err)
	}
	if envelope.Error != nil {
		return nil, gatewayerr.UpstreamRPCError(name, envelope.Error.Message)
	}
	return envelope.Result, nil
}

func timeoutMS() int64 {
	return envIntOr(timeoutEnvVar, defaultTimeoutMS)
}

func envIntOr(name string, fallback int64) int64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseBody dispatches on content-type: application/json parses a single
// response object; text/event-stream runs the SSE state machine; anything
// else (or empty) is a best-effort JSON parse.
func parseBody(contentType string, body []byte, wantID any) (rpcResponse, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "text/event-stream":
		return parseSSE(body, wantID)
	default:
		var resp rpcResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return rpcResponse{}, fmt.Errorf("invalid JSON-RPC response: %w", err)
		}
		return resp, nil
	}
}

// parseSSE runs the await-line / accumulate / flush-on-blank-line state
// machine over an SSE response body, returning the first event whose id
// matches wantID, or the last successfully parsed event if none match.
func parseSSE(body []byte, wantID any) (rpcResponse, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var dataLines []string
	var last *rpcResponse
	var lastErr error

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		raw := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]

		var resp rpcResponse
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			lastErr = err
			return
		}
		r := resp
		last = &r
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			if last != nil && idsEqual(last.ID, wantID) {
				return *last, nil
			}
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(data, " "))
		}
	}
	flush()
	if last != nil && idsEqual(last.ID, wantID) {
		return *last, nil
	}
	if last != nil {
		return *last, nil
	}
	if lastErr != nil {
		return rpcResponse{}, lastErr
	}
	return rpcResponse{}, fmt.Errorf("no SSE event parsed")
}

func idsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
