// FastMCP discovery (spec §4.C stage 3, optional): scans for a
// framework-provided MCP server object to mount, acting as a canary for
// framework ABI drift (spec §9). This Go runtime has no dynamically
// loaded module registry to scan, so the canary is reduced to validating
// an optionally-injected Discoverer against the shape the runtime
// expects; a mismatch is logged and the stage is skipped, never aborting
// startup (spec §4.C: "failure of an optional stage is logged and
// skipped").
package agent

import "go.uber.org/zap"

// FastMCPDescriptor is what a discovered MCP server object is expected to
// expose, mirroring the original runtime's introspection of `name`,
// `tools`, `prompts`, and `resources` (original_source
// test_05_fastmcp_discovery.py, per SPEC_FULL.md §13).
type FastMCPDescriptor struct {
	Name      string
	Tools     []string
	Prompts   []string
	Resources []string
}

// Discoverer is implemented by whatever optional component an embedding
// program wants scanned during startup.
type Discoverer interface {
	Discover() (FastMCPDescriptor, error)
}

var registeredDiscoverer Discoverer

// RegisterDiscoverer installs the process-wide FastMCP discoverer to be
// probed at the next Build(). Passing nil disables the stage.
func RegisterDiscoverer(d Discoverer) { registeredDiscoverer = d }

func (a *Agent) discoverFastMCP(log *zap.SugaredLogger) {
	if registeredDiscoverer == nil {
		return
	}
	desc, err := registeredDiscoverer.Discover()
	if err != nil {
		log.Warnw("FastMCP discovery failed; skipping optional stage", "error", err)
		return
	}
	if desc.Name == "" {
		log.Warnw("FastMCP discovery returned an empty descriptor; likely framework ABI drift, skipping")
		return
	}
	log.Infow("FastMCP server discovered", "name", desc.Name, "tools", len(desc.Tools),
		"prompts", len(desc.Prompts), "resources", len(desc.Resources))
}
