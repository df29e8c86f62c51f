package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/meshfabric/core/internal/wire"
)

// registryClient is a thin HTTP client for the two registry endpoints an
// agent calls: register and heartbeat.
type registryClient struct {
	baseURL string
	http    *http.Client
}

func newRegistryClient(baseURL string, timeout time.Duration) *registryClient {
	return &registryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *registryClient) register(ctx context.Context, req wire.RegisterRequest) (*wire.RegisterResponse, error) {
	var resp wire.RegisterResponse
	if err := c.postJSON(ctx, "/agents/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *registryClient) heartbeat(ctx context.Context, req wire.HeartbeatRequest) (*wire.HeartbeatResponse, error) {
	var resp wire.HeartbeatResponse
	if err := c.postJSON(ctx, "/heartbeat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *registryClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("registry request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registry %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response from %s: %w", path, err)
	}
	return nil
}

// buildMetadata converts the agent's bound tool descriptors into the wire
// payload shape used by register and the /metadata endpoint.
func (a *Agent) buildMetadata() wire.AgentMetadata {
	tools := make([]wire.Tool, 0, len(a.tools))
	for _, bt := range a.tools {
		d := bt.descriptor
		tools = append(tools, wire.Tool{
			FunctionName: d.FunctionName,
			Capability:   d.Capability,
			Version:      d.Version,
			Tags:         d.Tags,
			Description:  d.Description,
			InputSchema:  d.InputSchema,
			Dependencies: d.Dependencies,
		})
	}

	return wire.AgentMetadata{
		Name:              a.cfg.Name,
		Namespace:         a.cfg.Namespace,
		Endpoint:          a.endpoint,
		Version:           a.version,
		TimeoutThreshold:  int64(a.cfg.TimeoutThreshold.Seconds()),
		EvictionThreshold: int64(a.cfg.EvictionThreshold.Seconds()),
		Tools:             tools,
	}
}

// register performs the one-shot registration stage (spec §4.C stage 5).
func (a *Agent) register(ctx context.Context) error {
	resp, err := a.httpClient.register(ctx, wire.RegisterRequest{
		AgentID:  a.id,
		Metadata: a.buildMetadata(),
	})
	if err != nil {
		return err
	}
	a.applyResolution(resp.Metadata.DependenciesResolved)
	a.log.Infow("registered with mesh registry", "agent_id", a.id, "resource_version", resp.ResourceVersion)
	return nil
}
