// Package agent implements the agent runtime's startup and heartbeat
// pipelines (spec §4.B/§4.C): an explicit builder stands in for the
// source runtime's import-time decorator registry (SPEC_FULL.md §14.3
// records this Open Question decision — AddTool order is the only order,
// and slot identity is by name, not position), the HTTP server mounts the
// Kubernetes-style probe endpoints the teacher's gateway command wires up,
// and the heartbeat loop follows the teacher's single-ticker-goroutine
// shape from mcp/handler.go's SSE keep-alive loop.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/meshfabric/core/internal/logging"
	"github.com/meshfabric/core/internal/meshid"
	"github.com/meshfabric/core/internal/wire"
)

// ToolHandler implements one tool's logic. dependencies exposes every
// bound dependency slot for this function, keyed by slot name (usually
// the dependency's capability); a missing key means "unresolved, use the
// caller's own default".
type ToolHandler func(ctx context.Context, args map[string]interface{}, dependencies *Dependencies) (interface{}, error)

// ToolDescriptor describes one function an agent exports, replacing the
// source runtime's @mesh_agent-style decorator with an explicit value.
type ToolDescriptor struct {
	FunctionName string
	Capability   string
	Version      string
	Tags         []string
	Description  string
	InputSchema  map[string]interface{}
	Dependencies []wire.DependencyDeclaration
	Handler      ToolHandler
}

// AgentBuilder assembles an Agent's configuration and tool set before
// Build runs the startup pipeline (spec §4.C).
type AgentBuilder struct {
	name        string
	namespace   string
	version     string
	registryURL string

	httpHost     string
	httpPort     int
	httpEnabled  bool
	httpEndpoint string

	healthInterval    time.Duration
	autoRun           bool
	autoRunInterval   time.Duration
	timeoutThreshold  time.Duration
	evictionThreshold time.Duration
	standalone        bool

	tools []ToolDescriptor
}

// NewAgentBuilder starts a builder for an agent named name.
func NewAgentBuilder(name string) *AgentBuilder {
	return &AgentBuilder{
		name:        name,
		version:     "0.1.0",
		httpEnabled: true,
	}
}

func (b *AgentBuilder) WithNamespace(ns string) *AgentBuilder       { b.namespace = ns; return b }
func (b *AgentBuilder) WithVersion(v string) *AgentBuilder          { b.version = v; return b }
func (b *AgentBuilder) WithRegistryURL(url string) *AgentBuilder    { b.registryURL = url; return b }
func (b *AgentBuilder) WithHTTPHost(host string) *AgentBuilder      { b.httpHost = host; return b }
func (b *AgentBuilder) WithHTTPPort(port int) *AgentBuilder         { b.httpPort = port; return b }
func (b *AgentBuilder) WithHTTPEnabled(enabled bool) *AgentBuilder  { b.httpEnabled = enabled; return b }
func (b *AgentBuilder) WithHTTPEndpoint(ep string) *AgentBuilder    { b.httpEndpoint = ep; return b }
func (b *AgentBuilder) WithHealthInterval(d time.Duration) *AgentBuilder {
	b.healthInterval = d
	return b
}
func (b *AgentBuilder) WithAutoRun(enabled bool) *AgentBuilder { b.autoRun = enabled; return b }
func (b *AgentBuilder) WithThresholds(timeout, eviction time.Duration) *AgentBuilder {
	b.timeoutThreshold = timeout
	b.evictionThreshold = eviction
	return b
}
func (b *AgentBuilder) WithStandalone(standalone bool) *AgentBuilder { b.standalone = standalone; return b }

// AddTool registers one exported function. Declaration order is the only
// order that exists in this runtime; there is no decorator import order
// to preserve.
func (b *AgentBuilder) AddTool(t ToolDescriptor) *AgentBuilder {
	b.tools = append(b.tools, t)
	return b
}

// Build runs the startup pipeline (spec §4.C) and returns a running
// Agent, or an error if a required stage failed.
func (b *AgentBuilder) Build(ctx context.Context) (*Agent, error) {
	if len(b.tools) == 0 {
		// Stage 1 "decorator collection": skip-with-success if empty.
		// An agent with nothing to export is a no-op process, not an error.
	}

	cfg := resolveConfig(b)
	agentID := meshid.Derive(cfg.Name)

	log := logging.NewLogger("agent." + cfg.Name)

	a := &Agent{
		id:            agentID,
		cfg:           cfg,
		version:       b.version,
		tools:         make(map[string]*boundTool, len(b.tools)),
		log:           log,
		httpClient:    newRegistryClient(cfg.RegistryURL, 10*time.Second),
		resolvedHash:  "",
	}

	for _, t := range b.tools {
		a.tools[t.FunctionName] = &boundTool{descriptor: t, deps: newDependencies()}
	}

	a.discoverFastMCP(log)

	if cfg.HTTPEnabled {
		endpoint, err := a.startHTTPServer(cfg)
		if err != nil {
			return nil, fmt.Errorf("stage 4 (FastAPI server setup): %w", err)
		}
		a.endpoint = endpoint
	} else if cfg.HTTPEndpoint != "" {
		a.endpoint = cfg.HTTPEndpoint
	}

	if cfg.RegistryURL != "" && !cfg.Standalone {
		if err := a.register(ctx); err != nil {
			log.Warnw("initial registration failed, continuing unregistered", "error", err)
		}
		a.startHeartbeat(ctx)
	} else if cfg.Standalone {
		log.Infow("standalone mode: skipping registry registration and heartbeat")
	}

	return a, nil
}

// boundTool pairs a tool's static descriptor with its live, atomically
// swappable dependency bindings.
type boundTool struct {
	descriptor ToolDescriptor
	deps       *Dependencies
}

// Dependencies is the read-mostly snapshot of bound proxies for one tool,
// swapped atomically by the heartbeat loop (spec §5: "readers... observe
// it through a read-mostly mechanism").
type Dependencies struct {
	mu      sync.RWMutex
	proxies map[string]interface{} // slot name -> *proxy.Proxy or *proxy.MultiCaller
}

func newDependencies() *Dependencies {
	return &Dependencies{proxies: make(map[string]interface{})}
}

// Get returns the bound proxy for a slot, or nil if unresolved.
func (d *Dependencies) Get(slot string) interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.proxies[slot]
}

func (d *Dependencies) swap(next map[string]interface{}) {
	d.mu.Lock()
	d.proxies = next
	d.mu.Unlock()
}
