// Package resolver implements the registry's dependency resolution
// algorithm (spec §4.E): given a tool's declared dependencies, return the
// best-ranked healthy providers. It is grounded on the teacher's
// routes/table.go match-then-rank structure and routes/selector.go ranking
// helpers, generalized from HTTP route matching to capability/tag/version
// candidate ranking.
package resolver

import (
	"sort"
	"time"

	"github.com/meshfabric/core/internal/metrics"
	"github.com/meshfabric/core/internal/store"
	"github.com/meshfabric/core/internal/verconstraint"
	"github.com/meshfabric/core/internal/wire"
)

// Resolver resolves dependency declarations against the registry store.
type Resolver struct {
	store *store.Store
}

// New creates a Resolver bound to a store.
func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// candidate is one (agent, tool) pairing eligible for a given declaration.
type candidate struct {
	agent        store.AgentRecord
	tool         store.Tool
	tagMatches   int
}

// ResolveDeclaration resolves a single dependency declaration to a
// wire.ResolvedSet containing up to count entries (count <= 0 means 1),
// following the rank order in spec §4.E step 5. It returns a zero-value,
// empty set if nothing matches.
func (r *Resolver) ResolveDeclaration(dep wire.DependencyDeclaration) wire.ResolvedSet {
	count := dep.Kwargs.Count
	if count <= 0 {
		count = 1
	}

	constraint, err := verconstraint.Parse(dep.Version)
	if err != nil {
		metrics.RecordResolution("unresolved")
		return wire.ResolvedSet{}
	}

	candidates := r.candidatesFor(dep, constraint)
	if len(candidates) == 0 {
		metrics.RecordResolution("unresolved")
		return wire.ResolvedSet{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tagMatches != b.tagMatches {
			return a.tagMatches > b.tagMatches // 5a: higher tag match count wins
		}
		if cmp := verconstraint.Compare(a.tool.Version, b.tool.Version); cmp != 0 {
			return cmp > 0 // 5b: higher semver wins
		}
		return a.agent.AgentID < b.agent.AgentID // 5c: lexicographically lower agent_id wins
	})

	if count < len(candidates) {
		candidates = candidates[:count]
	}

	set := wire.ResolvedSet{Entries: make([]wire.ResolvedEntry, 0, len(candidates))}
	for _, c := range candidates {
		set.Entries = append(set.Entries, wire.ResolvedEntry{
			AgentID:      c.agent.AgentID,
			FunctionName: c.tool.FunctionName,
			Capability:   c.tool.Capability,
			Version:      c.tool.Version,
			Endpoint:     c.agent.Endpoint,
			Kwargs:       dep.Kwargs,
		})
	}
	metrics.RecordResolution("resolved")
	return set
}

// candidatesFor implements §4.E steps 1-4: capability lookup, health
// filter, tag filter (conjunctive), and version constraint filter.
func (r *Resolver) candidatesFor(dep wire.DependencyDeclaration, constraint *verconstraint.Constraint) []candidate {
	agents := r.store.CandidatesForCapability(dep.Capability)

	var out []candidate
	for _, agent := range agents {
		if agent.Health != store.Healthy {
			continue
		}
		for _, tool := range agent.Tools {
			if tool.Capability != dep.Capability {
				continue
			}
			if !hasAllTags(tool.Tags, dep.Tags) {
				continue
			}
			if !constraint.Matches(tool.Version) {
				continue
			}
			out = append(out, candidate{agent: agent, tool: tool, tagMatches: len(dep.Tags)})
		}
	}
	return out
}

func hasAllTags(toolTags, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(toolTags))
	for _, t := range toolTags {
		have[t] = struct{}{}
	}
	for _, want := range required {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}

// slotName returns the dependency-slot key used in dependencies_resolved.
// The wire format carries no separate parameter-name field (Open Question
// decision in SPEC_FULL.md §14.1 rejected the legacy single-capability
// shape at the API boundary, but kept capability as the only slot key
// since nothing in the registration payload names a parameter), so the
// capability is always the slot name.
func slotName(dep wire.DependencyDeclaration) string {
	return dep.Capability
}

// ResolveAgent resolves every tool's dependency declarations for one
// agent's metadata, producing the full dependencies_resolved map:
// function_name -> dep_slot_name -> ResolvedSet. Declarations that resolve
// to nothing are omitted entirely (§4.E "empty results").
func (r *Resolver) ResolveAgent(meta wire.AgentMetadata) map[string]map[string]wire.ResolvedSet {
	start := time.Now()
	defer func() { metrics.ObserveResolverDuration(time.Since(start).Seconds()) }()

	out := make(map[string]map[string]wire.ResolvedSet)
	for _, tool := range meta.Tools {
		for _, dep := range tool.Dependencies {
			set := r.ResolveDeclaration(dep)
			if len(set.Entries) == 0 {
				continue
			}
			slot := slotName(dep)
			if out[tool.FunctionName] == nil {
				out[tool.FunctionName] = make(map[string]wire.ResolvedSet)
			}
			out[tool.FunctionName][slot] = set
		}
	}
	return out
}
