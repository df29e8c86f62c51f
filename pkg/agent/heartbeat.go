// Heartbeat pipeline (spec §4.B): a single cooperative task that ticks on
// cfg.HealthInterval, posts a heartbeat, and applies dependency resolution
// deltas. Grounded on the teacher's mcp/handler.go SSE keep-alive
// time.Ticker loop, generalized from a ping frame to a registry RPC.
package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/meshfabric/core/internal/metrics"
	"github.com/meshfabric/core/internal/proxy"
	"github.com/meshfabric/core/internal/wire"
)

// consecutiveFailureThreshold is how many heartbeat failures in a row
// trigger a full re-registration instead of another heartbeat (spec
// §4.B: "Exceeding a configurable failure threshold triggers
// re-registration"), grounded on the original runtime's canonical test
// (test_10_heartbeat_send.py, per SPEC_FULL.md §13).
const consecutiveFailureThreshold = 3

const heartbeatRPCTimeout = 30 * time.Second

// startHeartbeat launches the heartbeat goroutine. Build does not call it
// in standalone mode; it logs a single line instead (spec §4.B).
func (a *Agent) startHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	a.heartbeatCancel = cancel

	go a.runHeartbeatLoop(hbCtx)
}

func (a *Agent) runHeartbeatLoop(ctx context.Context) {
	interval := a.cfg.HealthInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rpcCtx, cancel := context.WithTimeout(ctx, heartbeatRPCTimeout)

			var err error
			if consecutiveFailures >= consecutiveFailureThreshold {
				err = a.register(rpcCtx)
				if err == nil {
					consecutiveFailures = 0
				}
			} else {
				err = a.tick(rpcCtx)
				if err == nil {
					consecutiveFailures = 0
				} else {
					consecutiveFailures++
				}
			}
			cancel()

			if err != nil {
				a.log.Warnw("heartbeat tick failed", "error", err, "consecutive_failures", consecutiveFailures)
				metrics.RecordHeartbeatTick("failure")
			} else {
				metrics.RecordHeartbeatTick("success")
			}
			metrics.SetHeartbeatConsecutiveFailures(consecutiveFailures)
		}
	}
}

// tick performs one heartbeat RPC and, on success, applies any resolution
// delta. On failure it logs and returns without touching bound proxies —
// a failed heartbeat must never clear a previously resolved slot (spec
// §13 graceful-degradation supplement).
func (a *Agent) tick(ctx context.Context) error {
	resp, err := a.httpClient.heartbeat(ctx, wire.HeartbeatRequest{AgentID: a.id})
	if err != nil {
		return err
	}
	a.applyResolution(resp.DependenciesResolved)
	return nil
}

// applyResolution implements the delta-hash optimization from spec §4.B:
// if the serialized resolution is byte-identical to the last-applied one,
// no injection work happens; otherwise every tool's dependency slots are
// rebuilt from scratch, so a slot no longer present in the response
// becomes unbound.
func (a *Agent) applyResolution(resolved map[string]map[string]wire.ResolvedSet) {
	hash, err := hashResolution(resolved)
	if err != nil {
		a.log.Warnw("failed to hash resolution payload, applying unconditionally", "error", err)
	} else if hash == a.resolvedHash {
		return
	}

	for functionName, bt := range a.tools {
		if len(bt.descriptor.Dependencies) == 0 {
			continue
		}
		slots := resolved[functionName] // nil if every dep for this function is now unresolvable
		next := make(map[string]interface{}, len(slots))
		for slotName, set := range slots {
			if len(set.Entries) == 0 {
				continue
			}
			if len(set.Entries) == 1 {
				entry := set.Entries[0]
				next[slotName] = proxy.New(entry.Capability, entry.Endpoint, entry.FunctionName,
					proxy.ConfigFromKwargs(entry.Kwargs), a.log)
				continue
			}

			// count > 1 (spec §13 top-N resolution): wrap every ranked
			// entry behind one round-robin/failover Caller instead of
			// binding only the top candidate.
			callers := make([]proxy.Caller, 0, len(set.Entries))
			for _, entry := range set.Entries {
				callers = append(callers, proxy.New(entry.Capability, entry.Endpoint, entry.FunctionName,
					proxy.ConfigFromKwargs(entry.Kwargs), a.log))
			}
			next[slotName] = proxy.NewMultiCaller(callers)
		}
		bt.deps.swap(next)
	}

	if err == nil {
		a.resolvedHash = hash
	}
	metrics.SetHeartbeatProxiesActive(countBoundProxies(a.tools))
}

func countBoundProxies(tools map[string]*boundTool) int {
	n := 0
	for _, bt := range tools {
		bt.deps.mu.RLock()
		n += len(bt.deps.proxies)
		bt.deps.mu.RUnlock()
	}
	return n
}

func hashResolution(resolved map[string]map[string]wire.ResolvedSet) (string, error) {
	data, err := json.Marshal(resolved)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
