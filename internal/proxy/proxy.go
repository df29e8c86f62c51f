package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/meshfabric/core/internal/metrics"
)

// authTokenEnv is the environment variable read when auth_required=true
// (spec §6 environment variable table).
const authTokenEnv = "MCP_MESH_AUTH_TOKEN"

// Caller is the callable surface a resolved dependency slot exposes to a
// tool handler. Proxy implements it directly for a single-provider slot;
// MultiCaller implements it for a count>1 slot spanning several providers.
type Caller interface {
	Call(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Proxy represents one remote tool call as a callable local object (spec
// §4.A). One Proxy instance corresponds to one resolved dependency slot;
// its HTTP client, and the connection pool its Transport keeps, are shared
// across every call made through this instance (spec §5: "Per-proxy HTTP
// client/connection pool is shared across calls to the same endpoint").
type Proxy struct {
	capability string
	endpoint   string
	function   string
	cfg        Config

	httpClient *http.Client
	log        *zap.SugaredLogger

	idCounter int64
	sess      *session
}

// New creates a Proxy bound to one resolved provider endpoint/function.
func New(capability, endpoint, function string, cfg Config, log *zap.SugaredLogger) *Proxy {
	return &Proxy{
		capability: capability,
		endpoint:   endpoint,
		function:   function,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
		sess:       newSession(),
	}
}

func (p *Proxy) nextID() int64 {
	return atomic.AddInt64(&p.idCounter, 1)
}

// mcpURL returns <endpoint>/mcp, unless endpoint already carries a path.
func (p *Proxy) mcpURL() string {
	if u, err := parseHasPath(p.endpoint); err == nil && u {
		return p.endpoint
	}
	return strings.TrimRight(p.endpoint, "/") + "/mcp"
}

func parseHasPath(endpoint string) (bool, error) {
	idx := strings.Index(endpoint, "://")
	if idx < 0 {
		return false, fmt.Errorf("invalid endpoint %q", endpoint)
	}
	rest := endpoint[idx+3:]
	slash := strings.Index(rest, "/")
	return slash >= 0 && slash < len(rest)-1, nil
}

// Call performs a synchronous tools/call invocation (spec §4.A call()).
func (p *Proxy) Call(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	result, err := p.doCallWithRetry(ctx, args, "")
	if err != nil {
		return nil, err
	}
	return unwrapContent(result), nil
}

// CallWithSession performs a session-bound invocation. If sessionID is
// empty and auto_session_management is enabled, a session is created and
// reused transparently for the lifetime of this Proxy.
func (p *Proxy) CallWithSession(ctx context.Context, sessionID string, args map[string]interface{}) (interface{}, error) {
	if sessionID == "" {
		if p.cfg.AutoSessionManagement || p.cfg.SessionRequired {
			sessionID = p.sess.ensureCreated()
		}
	}
	p.sess.beginCall()
	result, err := p.doCallWithRetry(ctx, args, sessionID)
	p.sess.endCall()
	if err != nil {
		return nil, err
	}
	return unwrapContent(result), nil
}

// Close releases local resources. Server-side sessions are left to expire
// by TTL, per spec.
func (p *Proxy) Close() {
	p.sess.close()
}

func (p *Proxy) doCallWithRetry(ctx context.Context, args map[string]interface{}, sessionID string) (*callToolResult, error) {
	maxAttempts := p.cfg.RetryCount
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(p.cfg.RetryDelay) * math.Pow(p.cfg.RetryBackoff, float64(attempt-1)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, newCallError(KindTimeout, ctx.Err())
			}
			metrics.RecordProxyRetry(p.capability)
		}

		result, err := p.doCallOnce(ctx, args, sessionID)
		if err == nil {
			metrics.RecordProxyCall(p.capability, "success", time.Since(start).Seconds())
			return result, nil
		}
		lastErr = err

		var ce *CallError
		if ok := asCallError(err, &ce); ok && !ce.retryable() {
			metrics.RecordProxyCall(p.capability, string(ce.Kind), time.Since(start).Seconds())
			return nil, err
		}
	}
	metrics.RecordProxyCall(p.capability, "exhausted", time.Since(start).Seconds())
	return nil, lastErr
}

func asCallError(err error, out **CallError) bool {
	ce, ok := err.(*CallError)
	if ok {
		*out = ce
	}
	return ok
}

func (p *Proxy) doCallOnce(ctx context.Context, args map[string]interface{}, sessionID string) (*callToolResult, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID(),
		Method:  "tools/call",
		Params: callToolParams{
			Name:      p.function,
			Arguments: args,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, newCallError(KindProtocol, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.mcpURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, newCallError(KindTransport, err)
	}
	httpReq.Header.Set("Content-Type", p.cfg.ContentType)
	if len(p.cfg.Accepts) > 0 {
		httpReq.Header.Set("Accept", strings.Join(p.cfg.Accepts, ", "))
	}
	for k, v := range p.cfg.CustomHeaders {
		httpReq.Header.Set(k, v)
	}
	if sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", sessionID)
	}
	if p.cfg.AuthRequired {
		if token := os.Getenv(authTokenEnv); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, newCallError(KindTimeout, err)
		}
		return nil, newCallError(KindTransport, err)
	}
	defer resp.Body.Close()

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > p.cfg.MaxResponseSize {
			return nil, newCallError(KindSizeLimit, fmt.Errorf("response content-length %d exceeds max_response_size %d", n, p.cfg.MaxResponseSize))
		}
	}

	if resp.StatusCode >= 500 {
		return nil, newCallError(KindTransport, fmt.Errorf("agent returned %d", resp.StatusCode))
	}

	limited := io.LimitReader(resp.Body, p.cfg.MaxResponseSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, newCallError(KindTransport, err)
	}
	if int64(len(body)) > p.cfg.MaxResponseSize {
		return nil, newCallError(KindSizeLimit, fmt.Errorf("response body exceeds max_response_size %d", p.cfg.MaxResponseSize))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, newCallError(KindProtocol, err)
	}
	if rpcResp.JSONRPC != "2.0" {
		return nil, newCallError(KindProtocol, fmt.Errorf("unexpected jsonrpc version %q", rpcResp.JSONRPC))
	}
	if rpcResp.Error != nil {
		return nil, newCallError(KindRemote, fmt.Errorf("%d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	var result callToolResult
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			return nil, newCallError(KindProtocol, err)
		}
	}
	return &result, nil
}

// unwrapContent implements spec §4.A's result decoding: "if content is a
// single text block, unwrap to a string; otherwise return the structured
// content."
func unwrapContent(result *callToolResult) interface{} {
	if result == nil {
		return nil
	}
	if len(result.Content) == 1 && result.Content[0].Type == "text" {
		return result.Content[0].Text
	}
	return result.Content
}

// CallStream performs a streaming invocation over SSE (spec §4.A
// call_stream()), only valid when the proxy was configured streaming=true.
// Chunks are delivered on the returned channel; it is closed after the
// stream_end terminator, a transport error, or ctx cancellation.
func (p *Proxy) CallStream(ctx context.Context, args map[string]interface{}) (<-chan interface{}, <-chan error) {
	out := make(chan interface{})
	errCh := make(chan error, 1)

	if !p.cfg.Streaming {
		close(out)
		errCh <- newCallError(KindProtocol, fmt.Errorf("proxy for %s is not configured streaming=true", p.capability))
		return out, errCh
	}

	go p.runStream(ctx, args, out, errCh)
	return out, errCh
}

func (p *Proxy) runStream(ctx context.Context, args map[string]interface{}, out chan<- interface{}, errCh chan<- error) {
	defer close(out)

	streamCtx, cancel := context.WithTimeout(ctx, p.cfg.StreamTimeout)
	defer cancel()

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID(),
		Method:  "tools/call",
		Params:  callToolParams{Name: p.function, Arguments: args},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		errCh <- newCallError(KindProtocol, err)
		return
	}

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.mcpURL(), bytes.NewReader(payload))
	if err != nil {
		errCh <- newCallError(KindTransport, err)
		return
	}
	httpReq.Header.Set("Content-Type", p.cfg.ContentType)
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range p.cfg.CustomHeaders {
		httpReq.Header.Set(k, v)
	}
	if p.cfg.AuthRequired {
		if token := os.Getenv(authTokenEnv); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if streamCtx.Err() != nil {
			errCh <- newCallError(KindTimeout, err)
		} else {
			errCh <- newCallError(KindTransport, err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		errCh <- newCallError(KindTransport, fmt.Errorf("agent returned %d", resp.StatusCode))
		return
	}

	reader := bufio.NewReaderSize(resp.Body, p.cfg.BufferSize)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				errCh <- newCallError(KindTransport, err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			errCh <- newCallError(KindProtocol, err)
			return
		}
		if chunk.StreamEnd {
			return
		}

		select {
		case out <- chunk.Content:
		case <-ctx.Done():
			return
		}
	}
}
