// Package store implements the registry's source of truth for the mesh
// population (spec §4.D): agent records, capability/tag secondary
// indexes, a monotonic resource-version counter, and a bounded watch
// channel. It is generalized from the teacher's Kubernetes informer cache
// (sync.Map plus onAdd/onUpdate/onDelete callbacks) into a plain
// heartbeat-driven store with no cluster dependency.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshfabric/core/internal/metrics"
	"github.com/meshfabric/core/internal/wire"
)

// HealthState is an agent's current liveness classification.
type HealthState string

const (
	Healthy  HealthState = "healthy"
	Degraded HealthState = "degraded"
)

// Default threshold floors (spec §4.D): the registry enforces these as
// lower bounds on whatever an agent declares at registration.
const (
	MinTimeoutThreshold  = 10 * time.Second
	MinEvictionThreshold = 20 * time.Second

	DefaultTimeoutThreshold  = 60 * time.Second
	DefaultEvictionThreshold = 120 * time.Second
)

// Tool is a stored copy of one tool exported by an agent.
type Tool struct {
	FunctionName string
	Capability   string
	Version      string
	Tags         []string
	Description  string
	InputSchema  map[string]interface{}
	Dependencies []wire.DependencyDeclaration
}

// AgentRecord is the registry's full view of one agent.
type AgentRecord struct {
	AgentID           string
	Name              string
	Namespace         string
	Endpoint          string
	Version           string
	Tools             []Tool
	TimeoutThreshold  time.Duration
	EvictionThreshold time.Duration
	CreatedAt         time.Time
	LastHeartbeat     time.Time
	Health            HealthState
	ResourceVersion   uint64
}

// clone returns a deep-enough copy safe to hand to readers outside the lock.
func (r AgentRecord) clone() AgentRecord {
	out := r
	out.Tools = make([]Tool, len(r.Tools))
	copy(out.Tools, r.Tools)
	return out
}

// EventType classifies a watch event.
type EventType string

const (
	Added    EventType = "ADDED"
	Modified EventType = "MODIFIED"
	Deleted  EventType = "DELETED"
)

// Event is one change notification emitted on the watch channel.
type Event struct {
	Type      EventType
	Agent     AgentRecord
	Timestamp time.Time
}

// entry bundles a record with the per-agent keyed lock guarding it.
type entry struct {
	mu     sync.Mutex
	record AgentRecord
}

// Store is the registry's in-memory agent population plus indexes.
type Store struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	agents   map[string]*entry
	byCap    map[string]map[string]struct{} // capability -> set of agent_id
	byTag    map[string]map[string]struct{} // tag -> set of agent_id

	version uint64 // monotonic resource version counter, bumped atomically under a per-agent lock

	watchMu sync.Mutex
	watches []chan Event

	snapshotPath string
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithSnapshotPath enables on-disk snapshotting (the snapshot file is
// rewritten asynchronously after each Register, Heartbeat, MarkDegraded and
// Evict) and attempts to load an existing snapshot immediately.
func WithSnapshotPath(path string) Option {
	return func(s *Store) { s.snapshotPath = path }
}

// New creates an empty store.
func New(log *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		log:    log,
		agents: make(map[string]*entry),
		byCap:  make(map[string]map[string]struct{}),
		byTag:  make(map[string]map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.snapshotPath != "" {
		if err := s.loadSnapshot(); err != nil && s.log != nil {
			s.log.Warnw("store: failed to load snapshot, starting empty", "error", err, "path", s.snapshotPath)
		}
	}
	return s
}

// nextVersion bumps and returns the monotonic resource version. Callers
// must hold the relevant per-agent lock already; the store-level mutex
// additionally protects this single counter since versions must be
// strictly increasing across the whole population (invariant 3/4 in §8).
func (s *Store) nextVersion() uint64 {
	s.mu.Lock()
	s.version++
	v := s.version
	s.mu.Unlock()
	metrics.SetResourceVersion(v)
	return v
}

// clampThreshold enforces the registry-side floor on a declared threshold.
func clampThreshold(declared time.Duration, floor, def time.Duration) time.Duration {
	if declared <= 0 {
		return def
	}
	if declared < floor {
		return floor
	}
	return declared
}

// Register creates or fully replaces an agent record (invariant: replacing
// drops every prior tool atomically with the new resource_version becoming
// visible). Returns the new record.
func (s *Store) Register(agentID string, meta wire.AgentMetadata, tools []Tool) AgentRecord {
	s.mu.Lock()
	e, existed := s.agents[agentID]
	if !existed {
		e = &entry{}
		s.agents[agentID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	createdAt := now
	if existed && !e.record.CreatedAt.IsZero() {
		createdAt = e.record.CreatedAt
	}

	rec := AgentRecord{
		AgentID:           agentID,
		Name:              meta.Name,
		Namespace:         meta.Namespace,
		Endpoint:          meta.Endpoint,
		Version:           meta.Version,
		Tools:             tools,
		TimeoutThreshold:  clampThreshold(time.Duration(meta.TimeoutThreshold)*time.Second, MinTimeoutThreshold, DefaultTimeoutThreshold),
		EvictionThreshold: clampThreshold(time.Duration(meta.EvictionThreshold)*time.Second, MinEvictionThreshold, DefaultEvictionThreshold),
		CreatedAt:         createdAt,
		LastHeartbeat:     now,
		Health:            Healthy,
	}

	s.reindexLocked(agentID, e.record, rec, existed)
	rec.ResourceVersion = s.nextVersion()
	e.record = rec

	evt := Added
	if existed {
		evt = Modified
	}
	s.emit(Event{Type: evt, Agent: rec.clone(), Timestamp: now})
	s.persistAsync()
	return rec.clone()
}

// Heartbeat refreshes an agent's liveness and, if it was degraded,
// restores it to healthy. Returns (record, found).
func (s *Store) Heartbeat(agentID string, healthStatus string) (AgentRecord, bool) {
	s.mu.RLock()
	e, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return AgentRecord{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	wasHealthy := e.record.Health
	e.record.LastHeartbeat = time.Now().UTC()
	e.record.Health = Healthy
	if healthStatus == string(Degraded) {
		// An agent may self-report degraded (e.g. overloaded); honor it
		// without waiting for the sweep to notice.
		e.record.Health = Degraded
	}
	e.record.ResourceVersion = s.nextVersion()

	if wasHealthy != e.record.Health {
		s.emit(Event{Type: Modified, Agent: e.record.clone(), Timestamp: e.record.LastHeartbeat})
	}
	s.persistAsync()
	return e.record.clone(), true
}

// Get returns one agent record by id.
func (s *Store) Get(agentID string) (AgentRecord, bool) {
	s.mu.RLock()
	e, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return AgentRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.clone(), true
}

// ListFilter narrows a List call.
type ListFilter struct {
	Namespace  string
	Health     HealthState
	Capability string
}

// List returns all agents matching the filter (zero-value fields match
// anything).
func (s *Store) List(f ListFilter) []AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidateIDs map[string]struct{}
	if f.Capability != "" {
		candidateIDs = s.byCap[f.Capability]
	}

	out := make([]AgentRecord, 0, len(s.agents))
	for id, e := range s.agents {
		if candidateIDs != nil {
			if _, ok := candidateIDs[id]; !ok {
				continue
			}
		}
		e.mu.Lock()
		rec := e.record.clone()
		e.mu.Unlock()

		if f.Namespace != "" && rec.Namespace != f.Namespace {
			continue
		}
		if f.Health != "" && rec.Health != f.Health {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// CandidatesForCapability returns copies of the live records of every
// agent currently indexed under a capability.
func (s *Store) CandidatesForCapability(capability string) []AgentRecord {
	s.mu.RLock()
	ids := s.byCap[capability]
	agentIDs := make([]string, 0, len(ids))
	for id := range ids {
		agentIDs = append(agentIDs, id)
	}
	s.mu.RUnlock()

	out := make([]AgentRecord, 0, len(agentIDs))
	for _, id := range agentIDs {
		if rec, ok := s.Get(id); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Capabilities returns a snapshot of the capability index: capability name
// to the count of distinct agents providing it.
func (s *Store) Capabilities() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.byCap))
	for cap, ids := range s.byCap {
		out[cap] = len(ids)
	}
	return out
}

// Evict removes an agent record entirely, emitting a DELETED event. The
// health sweep calls it for agents past their eviction threshold.
func (s *Store) Evict(agentID string) bool {
	s.mu.Lock()
	e, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.agents, agentID)
	s.mu.Unlock()

	e.mu.Lock()
	rec := e.record.clone()
	e.mu.Unlock()

	s.mu.Lock()
	s.unindexLocked(agentID, rec)
	s.mu.Unlock()

	metrics.RecordEviction()
	s.emit(Event{Type: Deleted, Agent: rec, Timestamp: time.Now().UTC()})
	s.persistAsync()
	return true
}

// MarkDegraded flips a healthy agent to degraded, emitting MODIFIED. No-op
// if the agent is already degraded or absent.
func (s *Store) MarkDegraded(agentID string) bool {
	s.mu.RLock()
	e, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.record.Health == Degraded {
		e.mu.Unlock()
		return false
	}
	e.record.Health = Degraded
	e.record.ResourceVersion = s.nextVersion()
	rec := e.record.clone()
	e.mu.Unlock()

	s.emit(Event{Type: Modified, Agent: rec, Timestamp: time.Now().UTC()})
	s.persistAsync()
	return true
}

// Watch registers a new bounded event subscription. Slow consumers are
// dropped from future sends rather than blocking the writer (spec §4.D).
func (s *Store) Watch(bufSize int) <-chan Event {
	if bufSize <= 0 {
		bufSize = 64
	}
	ch := make(chan Event, bufSize)
	s.watchMu.Lock()
	s.watches = append(s.watches, ch)
	s.watchMu.Unlock()
	return ch
}

func (s *Store) emit(evt Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watches {
		select {
		case ch <- evt:
		default:
			// Dropped: a full channel means a slow watcher, and core
			// operation must never block on one.
		}
	}
}

// reindexLocked updates the capability/tag indexes for a register/replace.
// Must be called with e.mu held; it takes s.mu internally.
func (s *Store) reindexLocked(agentID string, old AgentRecord, new AgentRecord, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existed {
		s.removeIndexEntriesLocked(agentID, old)
	}
	s.addIndexEntriesLocked(agentID, new)
}

func (s *Store) unindexLocked(agentID string, rec AgentRecord) {
	s.removeIndexEntriesLocked(agentID, rec)
}

func (s *Store) addIndexEntriesLocked(agentID string, rec AgentRecord) {
	seenCaps := make(map[string]struct{})
	seenTags := make(map[string]struct{})
	for _, t := range rec.Tools {
		seenCaps[t.Capability] = struct{}{}
		for _, tag := range t.Tags {
			seenTags[tag] = struct{}{}
		}
	}
	for cap := range seenCaps {
		set, ok := s.byCap[cap]
		if !ok {
			set = make(map[string]struct{})
			s.byCap[cap] = set
		}
		set[agentID] = struct{}{}
	}
	for tag := range seenTags {
		set, ok := s.byTag[tag]
		if !ok {
			set = make(map[string]struct{})
			s.byTag[tag] = set
		}
		set[agentID] = struct{}{}
	}
}

func (s *Store) removeIndexEntriesLocked(agentID string, rec AgentRecord) {
	for _, t := range rec.Tools {
		if set, ok := s.byCap[t.Capability]; ok {
			delete(set, agentID)
			if len(set) == 0 {
				delete(s.byCap, t.Capability)
			}
		}
		for _, tag := range t.Tags {
			if set, ok := s.byTag[tag]; ok {
				delete(set, agentID)
				if len(set) == 0 {
					delete(s.byTag, tag)
				}
			}
		}
	}
}

// SweepOnce runs one health-evaluation pass (spec §4.D): degrade agents
// past their timeout_threshold, evict agents past their eviction_threshold.
// It produces at most one DELETED event per evicted agent per call.
func (s *Store) SweepOnce(now time.Time) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var healthyCount, degradedCount int
	for _, id := range ids {
		s.mu.RLock()
		e, ok := s.agents[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		age := now.Sub(e.record.LastHeartbeat)
		switch {
		case age > e.record.EvictionThreshold:
			e.mu.Unlock()
			s.Evict(id)
			continue
		case age > e.record.TimeoutThreshold:
			if e.record.Health != Degraded {
				e.record.Health = Degraded
				e.record.ResourceVersion = s.nextVersion()
				rec := e.record.clone()
				e.mu.Unlock()
				s.emit(Event{Type: Modified, Agent: rec, Timestamp: now})
				degradedCount++
				continue
			}
			degradedCount++
			e.mu.Unlock()
		default:
			if e.record.Health != Healthy {
				e.record.Health = Healthy
				e.record.ResourceVersion = s.nextVersion()
			}
			healthyCount++
			e.mu.Unlock()
		}
	}

	metrics.SetStoreAgents(string(Healthy), healthyCount)
	metrics.SetStoreAgents(string(Degraded), degradedCount)
}

// snapshot is the on-disk durability format: a flat list of records plus
// the counter, enough to rebuild indexes on load.
type snapshot struct {
	Version uint64        `json:"version"`
	Agents  []AgentRecord `json:"agents"`
}

func (s *Store) persistAsync() {
	if s.snapshotPath == "" {
		return
	}
	go func() {
		if err := s.saveSnapshot(); err != nil && s.log != nil {
			s.log.Warnw("store: failed to persist snapshot", "error", err, "path", s.snapshotPath)
		}
	}()
}

func (s *Store) saveSnapshot() error {
	s.mu.RLock()
	snap := snapshot{Version: s.version}
	for _, e := range s.agents {
		e.mu.Lock()
		snap.Agents = append(snap.Agents, e.record.clone())
		e.mu.Unlock()
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	return os.Rename(tmp, s.snapshotPath)
}

func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	s.mu.Lock()
	s.version = snap.Version
	s.mu.Unlock()

	for _, rec := range snap.Agents {
		e := &entry{record: rec}
		s.mu.Lock()
		s.agents[rec.AgentID] = e
		s.addIndexEntriesLocked(rec.AgentID, rec)
		s.mu.Unlock()
	}
	return nil
}
