// Package registryapi implements the registry HTTP API (spec §4.F):
// register, heartbeat, agent/capability listing, and operational probes.
// It follows the teacher's api/handlers.go ServeHTTP-switch plus
// writeJSON/writeError pattern, generalized from gateway invoke/route
// listing to registration and resolution.
package registryapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshfabric/core/internal/meshid"
	"github.com/meshfabric/core/internal/metrics"
	"github.com/meshfabric/core/internal/resolver"
	"github.com/meshfabric/core/internal/store"
	"github.com/meshfabric/core/internal/wire"
)

// Handler serves the registry's HTTP API.
type Handler struct {
	store    *store.Store
	resolver *resolver.Resolver
	log      *zap.SugaredLogger
	ready    func() bool
}

// NewHandler creates a registry API handler. ready reports readiness for
// /ready; pass nil to always report ready.
func NewHandler(s *store.Store, r *resolver.Resolver, log *zap.SugaredLogger, ready func() bool) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{store: s, resolver: r, log: log, ready: ready}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/agents/register":
		h.handleRegister(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/heartbeat":
		h.handleHeartbeat(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/agents":
		h.handleListAgents(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/agents/"):
		h.handleGetAgent(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/capabilities":
		h.handleCapabilities(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		h.handleHealth(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/ready":
		h.handleReady(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/livez":
		h.handleLivez(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/metrics":
		metrics.Handler().ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	statusCode := http.StatusOK

	defer func() {
		metrics.RecordRegistryRequest("/agents/register", strconv.Itoa(statusCode), time.Since(start).Seconds())
	}()

	var req wire.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		statusCode = http.StatusBadRequest
		metrics.RecordRegister("error")
		h.writeError(w, statusCode, "invalid request body: "+err.Error())
		return
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = meshid.Derive(req.Metadata.Name)
	}

	tools := toStoreTools(req.Metadata.Tools)
	rec := h.store.Register(agentID, req.Metadata, tools)

	resolved := h.resolver.ResolveAgent(req.Metadata)
	metrics.RecordRegister("success")

	h.writeJSON(w, statusCode, wire.RegisterResponse{
		Status:          "success",
		AgentID:         rec.AgentID,
		ResourceVersion: rec.ResourceVersion,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Metadata: wire.ResponseMetadata{
			DependenciesResolved: resolved,
		},
	})
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	statusCode := http.StatusOK

	defer func() {
		metrics.RecordRegistryRequest("/heartbeat", strconv.Itoa(statusCode), time.Since(start).Seconds())
	}()

	var req wire.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		statusCode = http.StatusBadRequest
		metrics.RecordHeartbeat("error")
		h.writeError(w, statusCode, "invalid request body: "+err.Error())
		return
	}

	rec, ok := h.store.Heartbeat(req.AgentID, req.HealthStatus)
	if !ok {
		statusCode = http.StatusNotFound
		metrics.RecordHeartbeat("not_found")
		h.writeError(w, statusCode, "unknown agent_id: "+req.AgentID)
		return
	}

	meta := wire.AgentMetadata{
		Name:     rec.Name,
		Endpoint: rec.Endpoint,
		Version:  rec.Version,
		Tools:    fromStoreTools(rec.Tools),
	}
	resolved := h.resolver.ResolveAgent(meta)
	metrics.RecordHeartbeat("success")

	h.writeJSON(w, statusCode, wire.HeartbeatResponse{
		Status:          "success",
		AgentID:         rec.AgentID,
		ResourceVersion: rec.ResourceVersion,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Metadata: wire.ResponseMetadata{
			DependenciesResolved: resolved,
		},
		DependenciesResolved: resolved,
	})
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{
		Namespace:  r.URL.Query().Get("namespace"),
		Capability: r.URL.Query().Get("capability"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		f.Health = store.HealthState(status)
	}

	agents := h.store.List(f)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": toAgentViews(agents),
		"count":  len(agents),
	})
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/agents/")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing agent id")
		return
	}

	rec, ok := h.store.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown agent_id: "+id)
		return
	}
	h.writeJSON(w, http.StatusOK, toAgentView(rec))
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": h.store.Capabilities(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleLivez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// agentView is the JSON shape returned from the agent listing endpoints;
// it flattens store.AgentRecord's internal duration fields to seconds.
type agentView struct {
	AgentID           string       `json:"agent_id"`
	Name              string       `json:"name"`
	Namespace         string       `json:"namespace,omitempty"`
	Endpoint          string       `json:"endpoint"`
	Version           string       `json:"version,omitempty"`
	Status            string       `json:"status"`
	ResourceVersion   uint64       `json:"resource_version"`
	CreatedAt         string       `json:"created_at"`
	LastHeartbeat     string       `json:"last_heartbeat"`
	TimeoutThreshold  float64      `json:"timeout_threshold"`
	EvictionThreshold float64      `json:"eviction_threshold"`
	Tools             []wire.Tool  `json:"tools"`
}

func toAgentView(rec store.AgentRecord) agentView {
	return agentView{
		AgentID:           rec.AgentID,
		Name:              rec.Name,
		Namespace:         rec.Namespace,
		Endpoint:          rec.Endpoint,
		Version:           rec.Version,
		Status:            string(rec.Health),
		ResourceVersion:   rec.ResourceVersion,
		CreatedAt:         rec.CreatedAt.Format(time.RFC3339),
		LastHeartbeat:     rec.LastHeartbeat.Format(time.RFC3339),
		TimeoutThreshold:  rec.TimeoutThreshold.Seconds(),
		EvictionThreshold: rec.EvictionThreshold.Seconds(),
		Tools:             fromStoreTools(rec.Tools),
	}
}

func toAgentViews(recs []store.AgentRecord) []agentView {
	out := make([]agentView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAgentView(rec))
	}
	return out
}

func toStoreTools(tools []wire.Tool) []store.Tool {
	out := make([]store.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, store.Tool{
			FunctionName: t.FunctionName,
			Capability:   t.Capability,
			Version:      t.Version,
			Tags:         t.Tags,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			Dependencies: t.Dependencies,
		})
	}
	return out
}

func fromStoreTools(tools []store.Tool) []wire.Tool {
	out := make([]wire.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wire.Tool{
			FunctionName: t.FunctionName,
			Capability:   t.Capability,
			Version:      t.Version,
			Tags:         t.Tags,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			Dependencies: t.Dependencies,
		})
	}
	return out
}
