// Package meshid derives the process-wide agent identifier described in
// spec §4.C: "<name>-<8 hex>", computed once per process regardless of how
// many times it is requested.
package meshid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	once      sync.Once
	agentID   string
	agentName string
)

// Derive returns the process's agent id, computing it on first call from
// name and memoizing it for every later call. Subsequent calls with a
// different name argument still return the first-computed id, matching the
// source runtime's singleton behavior.
func Derive(name string) string {
	once.Do(func() {
		agentName = name
		agentID = fmt.Sprintf("%s-%s", name, randomSuffix())
	})
	return agentID
}

// Name returns the name that was used to derive the current process's
// agent id, or "" if Derive has not been called yet.
func Name() string {
	return agentName
}

// Reset clears the memoized id. Only meant for use in tests, where each
// test case wants its own fresh agent id.
func Reset() {
	once = sync.Once{}
	agentID = ""
	agentName = ""
}

// randomSuffix draws the 8-hex-digit suffix from the same UUID source the
// proxy layer uses for MCP session ids (spec §11), taking the first 4
// bytes of a fresh v4 UUID rather than pulling in a second randomness
// source just for this.
func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
