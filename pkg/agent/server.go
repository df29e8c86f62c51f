// HTTP server setup (spec §4.C stage 4): mounts the Kubernetes-style probe
// endpoints and the MCP JSON-RPC tools/list + tools/call surface this
// agent exposes to other agents' RPC proxies. Grounded on the teacher's
// mcp/handler.go HandleHTTP (the "direct HTTP transport, recommended
// path") and its JSON-RPC request/response envelope in mcp/types.go.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/meshfabric/core/internal/metrics"
)

const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type callToolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type toolDescriptorWire struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

func (a *Agent) startHTTPServer(cfg Config) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", a.handleMCP)
	mux.HandleFunc("/health", a.handleProbe("ok"))
	mux.HandleFunc("/livez", a.handleProbe("alive"))
	mux.HandleFunc("/ready", a.handleProbe("ready"))
	mux.HandleFunc("/metadata", a.handleMetadata)
	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", addr, err)
	}
	boundPort := ln.Addr().(*net.TCPAddr).Port

	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.Errorw("agent HTTP server error", "error", err)
		}
	}()

	endpoint := cfg.HTTPEndpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://%s:%d", advertisedHost(cfg.HTTPHost), boundPort)
	}
	return endpoint, nil
}

func advertisedHost(bindHost string) string {
	if bindHost == "" || bindHost == "0.0.0.0" {
		return "localhost"
	}
	return bindHost
}

func (a *Agent) handleProbe(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

func (a *Agent) handleMetadata(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.buildMetadata())
}

func (a *Agent) handleMCP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeRPCError(w, nil, -32700, "parse error")
		return
	}

	switch req.Method {
	case "initialize":
		a.writeRPCResult(w, req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": a.cfg.Name, "version": a.version},
		})
	case "tools/list":
		a.writeRPCResult(w, req.ID, map[string]interface{}{"tools": a.toolsList()})
	case "tools/call":
		a.handleCallTool(w, r.Context(), req)
	case "ping":
		a.writeRPCResult(w, req.ID, map[string]interface{}{})
	default:
		a.writeRPCError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func (a *Agent) toolsList() []toolDescriptorWire {
	out := make([]toolDescriptorWire, 0, len(a.tools))
	for _, bt := range a.tools {
		out = append(out, toolDescriptorWire{
			Name:        bt.descriptor.FunctionName,
			Description: bt.descriptor.Description,
			InputSchema: bt.descriptor.InputSchema,
		})
	}
	return out
}

func (a *Agent) handleCallTool(w http.ResponseWriter, ctx context.Context, req rpcRequest) {
	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		a.writeRPCError(w, req.ID, -32602, "invalid params")
		return
	}

	bt, ok := a.tools[params.Name]
	if !ok {
		a.writeRPCError(w, req.ID, -32601, "unknown tool: "+params.Name)
		return
	}

	result, err := bt.descriptor.Handler(ctx, params.Arguments, bt.deps)
	if err != nil {
		a.writeRPCError(w, req.ID, -32000, err.Error())
		return
	}

	a.writeRPCResult(w, req.ID, callToolResult{
		Content: []contentBlock{{Type: "text", Text: fmt.Sprintf("%v", result)}},
	})
}

func (a *Agent) writeRPCResult(w http.ResponseWriter, id interface{}, result interface{}) {
	a.writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (a *Agent) writeRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	a.writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (a *Agent) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
