// Package wire defines the JSON payloads exchanged between agents and the
// registry, matching the external interface in §6 of the specification.
package wire

import "encoding/json"

// DependencyKwargs carries per-proxy configuration attached to a dependency
// declaration (§4.A's enumerated option table). Zero values mean "use the
// proxy default".
type DependencyKwargs struct {
	Timeout           float64           `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount        int               `json:"retry_count,omitempty" yaml:"retry_count,omitempty"`
	RetryDelay        float64           `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	RetryBackoff      float64           `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
	CustomHeaders     map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
	AuthRequired      bool              `json:"auth_required,omitempty" yaml:"auth_required,omitempty"`
	Accepts           []string          `json:"accepts,omitempty" yaml:"accepts,omitempty"`
	ContentType       string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	MaxResponseSize   int64             `json:"max_response_size,omitempty" yaml:"max_response_size,omitempty"`
	Streaming         bool              `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	StreamTimeout     float64           `json:"stream_timeout,omitempty" yaml:"stream_timeout,omitempty"`
	BufferSize        int               `json:"buffer_size,omitempty" yaml:"buffer_size,omitempty"`
	SessionRequired   bool              `json:"session_required,omitempty" yaml:"session_required,omitempty"`
	Stateful          bool              `json:"stateful,omitempty" yaml:"stateful,omitempty"`
	AutoSessionMgmt   *bool             `json:"auto_session_management,omitempty" yaml:"auto_session_management,omitempty"`
	Count             int               `json:"count,omitempty" yaml:"count,omitempty"`
}

// DependencyDeclaration is a tool's declared requirement on a capability.
type DependencyDeclaration struct {
	Capability string           `json:"capability"`
	Version    string           `json:"version,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Kwargs     DependencyKwargs `json:"kwargs,omitempty"`
}

// Tool describes a single function exported by an agent.
type Tool struct {
	FunctionName string                   `json:"function_name"`
	Capability   string                   `json:"capability"`
	Version      string                   `json:"version,omitempty"`
	Tags         []string                 `json:"tags,omitempty"`
	Description  string                   `json:"description,omitempty"`
	InputSchema  map[string]interface{}   `json:"input_schema,omitempty"`
	Dependencies []DependencyDeclaration  `json:"dependencies,omitempty"`
}

// AgentMetadata is the body of a register/heartbeat request's metadata.
type AgentMetadata struct {
	Name              string `json:"name"`
	Namespace         string `json:"namespace,omitempty"`
	Endpoint          string `json:"endpoint"`
	Version           string `json:"version,omitempty"`
	TimeoutThreshold  int64  `json:"timeout_threshold,omitempty"`
	EvictionThreshold int64  `json:"eviction_threshold,omitempty"`
	Tools             []Tool `json:"tools"`
}

// RegisterRequest is the body of POST /agents/register.
type RegisterRequest struct {
	AgentID  string        `json:"agent_id"`
	Metadata AgentMetadata `json:"metadata"`
}

// ResolvedEntry is one resolved provider for a dependency slot.
type ResolvedEntry struct {
	AgentID      string           `json:"agent_id"`
	FunctionName string           `json:"function_name"`
	Capability   string           `json:"capability"`
	Version      string           `json:"version,omitempty"`
	Endpoint     string           `json:"endpoint"`
	Kwargs       DependencyKwargs `json:"kwargs,omitempty"`
}

// ResolvedSet is what a single dependency slot resolves to: either exactly
// one entry (the common case) or, when a declaration asked for redundancy
// via kwargs.count > 1, several ordered entries for failover/round-robin.
type ResolvedSet struct {
	Entries []ResolvedEntry
}

// MarshalJSON renders a single-entry set as a bare object (matching the
// literal shape in spec §6/§8) and a multi-entry set as an array.
func (r ResolvedSet) MarshalJSON() ([]byte, error) {
	if len(r.Entries) == 1 {
		return json.Marshal(r.Entries[0])
	}
	return json.Marshal(r.Entries)
}

// UnmarshalJSON accepts either a bare object or an array.
func (r *ResolvedSet) UnmarshalJSON(data []byte) error {
	var one ResolvedEntry
	if err := json.Unmarshal(data, &one); err == nil && one.AgentID != "" {
		r.Entries = []ResolvedEntry{one}
		return nil
	}
	var many []ResolvedEntry
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	r.Entries = many
	return nil
}

// ResponseMetadata carries the resolution for register/heartbeat responses.
type ResponseMetadata struct {
	DependenciesResolved map[string]map[string]ResolvedSet `json:"dependencies_resolved"`
}

// RegisterResponse is the body returned from POST /agents/register.
type RegisterResponse struct {
	Status         string           `json:"status"`
	AgentID        string           `json:"agent_id"`
	ResourceVersion uint64          `json:"resource_version"`
	Timestamp      string           `json:"timestamp"`
	Message        string           `json:"message,omitempty"`
	Metadata       ResponseMetadata `json:"metadata"`
}

// HeartbeatRequest is the body of POST /heartbeat.
type HeartbeatRequest struct {
	AgentID      string `json:"agent_id"`
	HealthStatus string `json:"health_status,omitempty"`
}

// HeartbeatResponse mirrors RegisterResponse and additionally surfaces
// dependencies_resolved at the top level for backward compatibility, per §6.
type HeartbeatResponse struct {
	Status               string                             `json:"status"`
	AgentID              string                             `json:"agent_id"`
	ResourceVersion      uint64                             `json:"resource_version"`
	Timestamp            string                             `json:"timestamp"`
	Message              string                             `json:"message,omitempty"`
	Metadata             ResponseMetadata                    `json:"metadata"`
	DependenciesResolved map[string]map[string]ResolvedSet `json:"dependencies_resolved"`
}
