package agent

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Agent is a running mesh participant: its HTTP server, bound tools, and
// (unless standalone) its registry heartbeat loop.
type Agent struct {
	id      string
	version string
	cfg     Config
	endpoint string

	tools map[string]*boundTool

	log        *zap.SugaredLogger
	httpClient *registryClient
	httpServer *http.Server

	resolvedHash string

	heartbeatCancel context.CancelFunc
}

// ID returns this process's derived agent_id.
func (a *Agent) ID() string { return a.id }

// Endpoint returns the advertised HTTP endpoint, if any.
func (a *Agent) Endpoint() string { return a.endpoint }

// Shutdown stops the heartbeat loop and drains the HTTP server within the
// given context's deadline (spec §5 cancellation semantics).
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.heartbeatCancel != nil {
		a.heartbeatCancel()
	}
	if a.httpServer != nil {
		return a.httpServer.Shutdown(ctx)
	}
	return nil
}
