package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshfabric/core/internal/meshid"
	"github.com/meshfabric/core/internal/proxy"
	"github.com/meshfabric/core/internal/wire"
)

func buildStandaloneAgent(t *testing.T, name string) *Agent {
	t.Helper()
	meshid.Reset()

	b := NewAgentBuilder(name).
		WithHTTPEnabled(false).
		WithStandalone(true).
		AddTool(ToolDescriptor{
			FunctionName: "greet",
			Capability:   "greeting",
			Handler: func(ctx context.Context, args map[string]interface{}, deps *Dependencies) (interface{}, error) {
				return "Hello", nil
			},
		})

	a, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return a
}

func TestBuildStandaloneSkipsRegistryTraffic(t *testing.T) {
	a := buildStandaloneAgent(t, "greeter")
	if a.heartbeatCancel != nil {
		t.Fatalf("expected no heartbeat goroutine in standalone mode")
	}
}

func TestBuildDerivesStableAgentIDAcrossCalls(t *testing.T) {
	meshid.Reset()
	id1 := meshid.Derive("greeter")
	id2 := meshid.Derive("some-other-name")
	if id1 != id2 {
		t.Fatalf("expected the memoized agent id to be stable: %s != %s", id1, id2)
	}
}

func TestApplyResolutionSkipsWhenHashUnchanged(t *testing.T) {
	meshid.Reset()
	a := buildStandaloneAgent(t, "greeter")
	a.tools["greet"].descriptor.Dependencies = []wire.DependencyDeclaration{{Capability: "date_service"}}

	resolved := map[string]map[string]wire.ResolvedSet{
		"greet": {"date_service": {Entries: []wire.ResolvedEntry{{AgentID: "date-aaaaaaaa", Endpoint: "http://localhost:9002", FunctionName: "now", Capability: "date_service"}}}},
	}

	a.applyResolution(resolved)
	first := a.tools["greet"].deps.Get("date_service")
	if first == nil {
		t.Fatalf("expected date_service slot to be bound")
	}

	a.applyResolution(resolved)
	second := a.tools["greet"].deps.Get("date_service")
	if first != second {
		t.Fatalf("expected the same proxy instance to survive an unchanged resolution (hash short-circuit)")
	}
}

func TestApplyResolutionUnbindsSlotWhenOmitted(t *testing.T) {
	meshid.Reset()
	a := buildStandaloneAgent(t, "greeter")
	a.tools["greet"].descriptor.Dependencies = []wire.DependencyDeclaration{{Capability: "date_service"}}

	a.applyResolution(map[string]map[string]wire.ResolvedSet{
		"greet": {"date_service": {Entries: []wire.ResolvedEntry{{AgentID: "date-aaaaaaaa", Endpoint: "http://localhost:9002", FunctionName: "now", Capability: "date_service"}}}},
	})
	if a.tools["greet"].deps.Get("date_service") == nil {
		t.Fatalf("expected the slot to be bound before the degrade")
	}

	a.applyResolution(map[string]map[string]wire.ResolvedSet{})
	if a.tools["greet"].deps.Get("date_service") != nil {
		t.Fatalf("expected the slot to become unbound once the registry omits it")
	}
}

func TestTickDoesNotClearBindingsOnFailure(t *testing.T) {
	meshid.Reset()
	a := buildStandaloneAgent(t, "greeter")
	a.tools["greet"].descriptor.Dependencies = []wire.DependencyDeclaration{{Capability: "date_service"}}
	a.applyResolution(map[string]map[string]wire.ResolvedSet{
		"greet": {"date_service": {Entries: []wire.ResolvedEntry{{AgentID: "date-aaaaaaaa", Endpoint: "http://localhost:9002", FunctionName: "now", Capability: "date_service"}}}},
	})

	// Point the registry client at an address nothing listens on, so the
	// heartbeat RPC itself fails.
	a.httpClient = newRegistryClient("http://127.0.0.1:1", 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.tick(ctx); err == nil {
		t.Fatalf("expected the heartbeat RPC to fail against an unreachable registry")
	}

	if a.tools["greet"].deps.Get("date_service") == nil {
		t.Fatalf("a failed heartbeat must never clear a previously bound dependency slot")
	}
}

func TestApplyResolutionWrapsMultipleEntriesInMultiCaller(t *testing.T) {
	meshid.Reset()
	a := buildStandaloneAgent(t, "greeter")
	a.tools["greet"].descriptor.Dependencies = []wire.DependencyDeclaration{{Capability: "storage", Kwargs: wire.DependencyKwargs{Count: 2}}}

	a.applyResolution(map[string]map[string]wire.ResolvedSet{
		"greet": {"storage": {Entries: []wire.ResolvedEntry{
			{AgentID: "store-aaaaaaaa", Endpoint: "http://localhost:9101", FunctionName: "put", Capability: "storage"},
			{AgentID: "store-bbbbbbbb", Endpoint: "http://localhost:9102", FunctionName: "put", Capability: "storage"},
		}}},
	})

	bound := a.tools["greet"].deps.Get("storage")
	if _, ok := bound.(*proxy.MultiCaller); !ok {
		t.Fatalf("expected a count>1 resolution to bind a *proxy.MultiCaller, got %T", bound)
	}
}

func TestHandleMCPToolsCallInvokesHandler(t *testing.T) {
	meshid.Reset()
	invoked := false
	b := NewAgentBuilder("greeter").
		WithHTTPEnabled(false).
		WithStandalone(true).
		AddTool(ToolDescriptor{
			FunctionName: "greet",
			Capability:   "greeting",
			Handler: func(ctx context.Context, args map[string]interface{}, deps *Dependencies) (interface{}, error) {
				invoked = true
				return "Hello Alice", nil
			},
		})
	ag, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(ag.handleMCP))
	defer srv.Close()

	reqBody, _ := json.Marshal(rpcRequest{
		JSONRPC: "2.0", ID: 1, Method: "tools/call",
		Params: mustJSON(t, callToolParams{Name: "greet", Arguments: map[string]interface{}{"name": "Alice"}}),
	})

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", out.Error)
	}
	if !invoked {
		t.Fatalf("expected the greet handler to run")
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
