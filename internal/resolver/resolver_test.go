package resolver

import (
	"testing"

	"github.com/meshfabric/core/internal/store"
	"github.com/meshfabric/core/internal/wire"
)

func registerAgent(s *store.Store, id string, tools []store.Tool) {
	s.Register(id, wire.AgentMetadata{
		Name: id, Endpoint: "http://" + id + ".local:8080", Version: "1.0.0",
		TimeoutThreshold: 60, EvictionThreshold: 120,
	}, tools)
}

func TestResolveDeclarationRanksByTagsThenVersionThenAgentID(t *testing.T) {
	s := store.New(nil)
	registerAgent(s, "date-aaaaaaaa", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.0.0", Tags: []string{"utc"}}})
	registerAgent(s, "date-bbbbbbbb", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "2.0.0", Tags: []string{"utc", "iso"}}})
	registerAgent(s, "date-cccccccc", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.5.0", Tags: []string{"utc", "iso"}}})

	r := New(s)
	set := r.ResolveDeclaration(wire.DependencyDeclaration{Capability: "date_service", Tags: []string{"utc", "iso"}})

	if len(set.Entries) != 1 {
		t.Fatalf("expected exactly one resolved entry, got %d", len(set.Entries))
	}
	if set.Entries[0].AgentID != "date-bbbbbbbb" {
		t.Fatalf("expected highest tag-match + highest version winner date-bbbbbbbb, got %s", set.Entries[0].AgentID)
	}
}

func TestResolveDeclarationFiltersByVersionConstraint(t *testing.T) {
	s := store.New(nil)
	registerAgent(s, "date-aaaaaaaa", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.0.0"}})
	registerAgent(s, "date-bbbbbbbb", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "2.0.0"}})

	r := New(s)
	set := r.ResolveDeclaration(wire.DependencyDeclaration{Capability: "date_service", Version: "<2.0.0"})

	if len(set.Entries) != 1 || set.Entries[0].AgentID != "date-aaaaaaaa" {
		t.Fatalf("expected only date-aaaaaaaa to satisfy <2.0.0, got %+v", set.Entries)
	}
}

func TestResolveDeclarationExcludesDegradedAgents(t *testing.T) {
	s := store.New(nil)
	registerAgent(s, "date-aaaaaaaa", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.0.0"}})
	s.MarkDegraded("date-aaaaaaaa")

	r := New(s)
	set := r.ResolveDeclaration(wire.DependencyDeclaration{Capability: "date_service"})

	if len(set.Entries) != 0 {
		t.Fatalf("expected degraded-only candidate set to resolve to nothing, got %+v", set.Entries)
	}
}

func TestResolveDeclarationCountReturnsTopN(t *testing.T) {
	s := store.New(nil)
	registerAgent(s, "date-aaaaaaaa", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.0.0"}})
	registerAgent(s, "date-bbbbbbbb", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "2.0.0"}})
	registerAgent(s, "date-cccccccc", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "3.0.0"}})

	r := New(s)
	set := r.ResolveDeclaration(wire.DependencyDeclaration{Capability: "date_service", Kwargs: wire.DependencyKwargs{Count: 2}})

	if len(set.Entries) != 2 {
		t.Fatalf("expected top-2 entries, got %d", len(set.Entries))
	}
	if set.Entries[0].AgentID != "date-cccccccc" || set.Entries[1].AgentID != "date-bbbbbbbb" {
		t.Fatalf("expected entries ordered by descending version, got %+v", set.Entries)
	}
}

func TestResolveAgentOmitsUnresolvableDeclarations(t *testing.T) {
	s := store.New(nil)
	r := New(s)

	meta := wire.AgentMetadata{
		Name: "greeter", Endpoint: "http://greeter.local:8080", Version: "1.0.0",
		Tools: []wire.Tool{
			{
				FunctionName: "greet",
				Capability:   "greeting",
				Dependencies: []wire.DependencyDeclaration{
					{Capability: "date_service"},
				},
			},
		},
	}

	resolved := r.ResolveAgent(meta)
	if len(resolved) != 0 {
		t.Fatalf("expected no resolved entries when date_service has no provider, got %+v", resolved)
	}
}

func TestResolveAgentBuildsPerFunctionSlotMap(t *testing.T) {
	s := store.New(nil)
	registerAgent(s, "date-aaaaaaaa", []store.Tool{{FunctionName: "now", Capability: "date_service", Version: "1.0.0"}})
	r := New(s)

	meta := wire.AgentMetadata{
		Name: "greeter", Endpoint: "http://greeter.local:8080", Version: "1.0.0",
		Tools: []wire.Tool{
			{
				FunctionName: "greet",
				Capability:   "greeting",
				Dependencies: []wire.DependencyDeclaration{{Capability: "date_service"}},
			},
		},
	}

	resolved := r.ResolveAgent(meta)
	slot, ok := resolved["greet"]["date_service"]
	if !ok {
		t.Fatalf("expected greet.date_service slot to be resolved, got %+v", resolved)
	}
	if len(slot.Entries) != 1 || slot.Entries[0].AgentID != "date-aaaaaaaa" {
		t.Fatalf("unexpected resolved entry: %+v", slot.Entries)
	}
}
