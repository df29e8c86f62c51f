package agent

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func noopLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	return zap.NewNop().Sugar()
}

type stubDiscoverer struct {
	desc FastMCPDescriptor
	err  error
}

func (s stubDiscoverer) Discover() (FastMCPDescriptor, error) { return s.desc, s.err }

func TestDiscoverFastMCPSkipsWhenNoDiscovererRegistered(t *testing.T) {
	RegisterDiscoverer(nil)
	a := &Agent{}
	a.discoverFastMCP(noopLogger(t))
}

func TestDiscoverFastMCPLogsAndSkipsOnError(t *testing.T) {
	RegisterDiscoverer(stubDiscoverer{err: errors.New("boom")})
	defer RegisterDiscoverer(nil)

	a := &Agent{}
	a.discoverFastMCP(noopLogger(t))
}

func TestDiscoverFastMCPLogsAndSkipsOnEmptyName(t *testing.T) {
	RegisterDiscoverer(stubDiscoverer{desc: FastMCPDescriptor{}})
	defer RegisterDiscoverer(nil)

	a := &Agent{}
	a.discoverFastMCP(noopLogger(t))
}

func TestDiscoverFastMCPAcceptsValidDescriptor(t *testing.T) {
	RegisterDiscoverer(stubDiscoverer{desc: FastMCPDescriptor{Name: "demo", Tools: []string{"greet"}}})
	defer RegisterDiscoverer(nil)

	a := &Agent{}
	a.discoverFastMCP(noopLogger(t))
}
