// Package bootstrap loads a seed file of pre-registered agents into the
// registry store at startup, and re-applies it on change (SPEC_FULL.md
// §10). The file only seeds registrations; it does not restrict which
// agents may register. The on-disk format is YAML, grounded on the
// teacher's operator module using yaml.v3 for its CRD-adjacent config.
package bootstrap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meshfabric/core/internal/store"
	"github.com/meshfabric/core/internal/wire"
)

// File is the top-level bootstrap document shape.
type File struct {
	Agents []Agent `yaml:"agents"`
}

// Agent is one pre-registered agent entry. Unlike a live registration,
// agent_id is explicit here since there is no running process to derive
// one from.
type Agent struct {
	AgentID           string  `yaml:"agent_id"`
	Name              string  `yaml:"name"`
	Namespace         string  `yaml:"namespace"`
	Endpoint          string  `yaml:"endpoint"`
	Version           string  `yaml:"version"`
	TimeoutThreshold  float64 `yaml:"timeout_threshold"`
	EvictionThreshold float64 `yaml:"eviction_threshold"`
	Tools             []Tool  `yaml:"tools"`
}

// Tool mirrors wire.Tool for the subset a bootstrap file can specify.
type Tool struct {
	FunctionName string                        `yaml:"function_name"`
	Capability   string                        `yaml:"capability"`
	Version      string                        `yaml:"version"`
	Tags         []string                      `yaml:"tags"`
	Description  string                        `yaml:"description"`
	Dependencies []wire.DependencyDeclaration  `yaml:"dependencies"`
}

// Load parses a bootstrap file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bootstrap file %s: %w", path, err)
	}
	return &f, nil
}

// Apply registers every entry in f against st, returning the number of
// agents applied. Entries missing an explicit agent_id are skipped (a
// bootstrap entry with no fixed identity can't be evicted and
// re-registered idempotently on the next reload).
func Apply(st *store.Store, f *File) int {
	applied := 0
	for _, a := range f.Agents {
		if a.AgentID == "" {
			continue
		}
		meta := wire.AgentMetadata{
			Name:              a.Name,
			Namespace:         a.Namespace,
			Endpoint:          a.Endpoint,
			Version:           a.Version,
			TimeoutThreshold:  int64(a.TimeoutThreshold),
			EvictionThreshold: int64(a.EvictionThreshold),
			Tools:             toWireTools(a.Tools),
		}
		st.Register(a.AgentID, meta, toStoreTools(a.Tools))
		applied++
	}
	return applied
}

func toWireTools(tools []Tool) []wire.Tool {
	out := make([]wire.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wire.Tool{
			FunctionName: t.FunctionName,
			Capability:   t.Capability,
			Version:      t.Version,
			Tags:         t.Tags,
			Description:  t.Description,
			Dependencies: t.Dependencies,
		})
	}
	return out
}

func toStoreTools(tools []Tool) []store.Tool {
	out := make([]store.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, store.Tool{
			FunctionName: t.FunctionName,
			Capability:   t.Capability,
			Version:      t.Version,
			Tags:         t.Tags,
			Description:  t.Description,
			Dependencies: t.Dependencies,
		})
	}
	return out
}
