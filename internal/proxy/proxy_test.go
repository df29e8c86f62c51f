package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCallUnwrapsSingleTextBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mustMarshal(t, callToolResult{Content: []contentBlock{{Type: "text", Text: "Hello Alice"}}}),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := New("greeting", srv.URL, "greet", DefaultConfig(), nil)
	result, err := p.Call(context.Background(), map[string]interface{}{"name": "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "Hello Alice" {
		t.Fatalf("expected unwrapped text result, got %v", result)
	}
}

func TestCallRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: mustMarshal(t, callToolResult{Content: []contentBlock{{Type: "text", Text: "ok"}}})}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryCount = 3
	cfg.RetryDelay = time.Millisecond
	cfg.RetryBackoff = 1.0

	p := New("greeting", srv.URL, "greet", cfg, nil)
	result, err := p.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestCallDoesNotRetryOnRemoteError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "boom"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.RetryCount = 3
	cfg.RetryDelay = time.Millisecond

	p := New("greeting", srv.URL, "greet", cfg, nil)
	_, err := p.Call(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an error")
	}
	ce, ok := err.(*CallError)
	if !ok || ce.Kind != KindRemote {
		t.Fatalf("expected a remote CallError, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected exactly one attempt for a non-retryable remote error, got %d", attempts)
	}
}

func TestCallRejectsOversizedContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "999999999")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.MaxResponseSize = 1024

	p := New("greeting", srv.URL, "greet", cfg, nil)
	_, err := p.Call(context.Background(), nil)
	ce, ok := err.(*CallError)
	if !ok || ce.Kind != KindSizeLimit {
		t.Fatalf("expected a size_limit CallError, got %v", err)
	}
}

func TestCallWithSessionReusesSessionID(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Mcp-Session-Id"))
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: mustMarshal(t, callToolResult{})}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := New("chat", srv.URL, "send", DefaultConfig(), nil)
	if _, err := p.CallWithSession(context.Background(), "", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := p.CallWithSession(context.Background(), "", nil); err != nil {
		t.Fatalf("second call: %v", err)
	}

	if len(seen) != 2 || seen[0] == "" || seen[0] != seen[1] {
		t.Fatalf("expected the same auto-managed session id reused across calls, got %v", seen)
	}
}

func TestCallStreamDeliversChunksUntilStreamEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: %s\n\n", mustMarshal(t, streamChunk{Content: i}))
			flusher.Flush()
		}
		fmt.Fprintf(w, "data: %s\n\n", mustMarshal(t, streamChunk{StreamEnd: true}))
		flusher.Flush()
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Streaming = true
	p := New("stream-svc", srv.URL, "tail", cfg, nil)

	out, errCh := p.CallStream(context.Background(), nil)
	var chunks []interface{}
	for c := range out {
		chunks = append(chunks, c)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
	default:
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks before stream_end, got %d: %v", len(chunks), chunks)
	}
}

func TestCallStreamRejectsWhenNotConfiguredStreaming(t *testing.T) {
	p := New("greeting", "http://example.invalid", "greet", DefaultConfig(), nil)
	out, errCh := p.CallStream(context.Background(), nil)

	if _, ok := <-out; ok {
		t.Fatalf("expected output channel to be closed immediately")
	}
	if err := <-errCh; err == nil {
		t.Fatalf("expected an error for a non-streaming proxy")
	}
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
