// Package registry implements the Source Registry (spec §4.7): handshake
// admission, heartbeat tracking, staleness detection, and revocation for
// connected source processes. Unlike the pure §4.1-§4.6 reducers, the
// registry is a stateful component (grounded on the teacher's
// session.Store mutex-guarded map idiom) because it is the direct owner
// of live source connections, not a value threaded through the daemon
// projection.
package registry

import (
	"sort"
	"sync"
	"time"
)

// SourceId identifies one connected source process.
type SourceId string

// Status is a registry entry's admission state.
type Status int

const (
	Pending Status = iota
	Active
	Stale
	Revoked
)

// DefaultStalenessWindow is the spec's default staleness threshold.
const DefaultStalenessWindow = 30 * time.Second

// Entry is one source's registry record.
type Entry struct {
	Id             SourceId
	SourceKind     string
	ProtocolVersion int
	SocketPath     string
	Status         Status
	LastHeartbeat  time.Time
}

// HelloRequest is the handshake payload a source sends on connect.
type HelloRequest struct {
	SourceId        SourceId
	SourceKind      string
	ProtocolVersion int
	SocketPath      string
}

// HelloOutcome is the handshake result.
type HelloOutcome int

const (
	Accepted HelloOutcome = iota
	Rejected
)

// HelloResponse is the handshake's return value.
type HelloResponse struct {
	Outcome HelloOutcome
	Reason  string
}

// Registry is the stateful, mutex-guarded source table. All methods are
// safe for concurrent use by the gateway's per-source tasks.
type Registry struct {
	mu          sync.RWMutex
	entries     map[SourceId]Entry
	minProtocol int
	maxProtocol int
	staleness   time.Duration
}

// New creates a Registry admitting protocol versions in [minProto, maxProto].
func New(minProto, maxProto int) *Registry {
	return &Registry{
		entries:     make(map[SourceId]Entry),
		minProtocol: minProto,
		maxProtocol: maxProto,
		staleness:   DefaultStalenessWindow,
	}
}

// SetStalenessWindow overrides the default staleness window.
func (r *Registry) SetStalenessWindow(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staleness = d
}

// HandleHello runs the handshake admission rules from spec §4.7.
func (r *Registry) HandleHello(req HelloRequest, now time.Time) HelloResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.ProtocolVersion < r.minProtocol || req.ProtocolVersion > r.maxProtocol {
		return HelloResponse{Outcome: Rejected, Reason: "protocol mismatch"}
	}

	existing, found := r.entries[req.SourceId]
	if found && existing.Status == Revoked {
		return HelloResponse{Outcome: Rejected, Reason: "source revoked"}
	}

	if found && existing.Status == Active {
		existing.LastHeartbeat = now
		existing.SocketPath = req.SocketPath
		r.entries[req.SourceId] = existing
		return HelloResponse{Outcome: Accepted}
	}

	if found && (existing.Status == Stale || existing.Status == Pending) {
		existing.Status = Active
		existing.LastHeartbeat = now
		existing.SocketPath = req.SocketPath
		r.entries[req.SourceId] = existing
		return HelloResponse{Outcome: Accepted}
	}

	r.entries[req.SourceId] = Entry{
		Id:              req.SourceId,
		SourceKind:      req.SourceKind,
		ProtocolVersion: req.ProtocolVersion,
		SocketPath:      req.SocketPath,
		Status:          Active,
		LastHeartbeat:   now,
	}
	return HelloResponse{Outcome: Accepted}
}

// Heartbeat refreshes a known source's last-heartbeat timestamp. Returns
// false if the source is unknown.
func (r *Registry) Heartbeat(id SourceId, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.LastHeartbeat = now
	r.entries[id] = e
	return true
}

// CheckStaleness demotes any Active or Pending source whose heartbeat has
// aged past the staleness window, returning the newly-stale ids.
func (r *Registry) CheckStaleness(now time.Time) []SourceId {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newlyStale []SourceId
	for id, e := range r.entries {
		if e.Status != Active && e.Status != Pending {
			continue
		}
		if e.LastHeartbeat.Add(r.staleness).Before(now) {
			e.Status = Stale
			r.entries[id] = e
			newlyStale = append(newlyStale, id)
		}
	}
	sort.Slice(newlyStale, func(i, j int) bool { return newlyStale[i] < newlyStale[j] })
	return newlyStale
}

// Revoke marks a source Revoked; it can never reconnect afterwards.
func (r *Registry) Revoke(id SourceId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	e.Status = Revoked
	r.entries[id] = e
}

// Cleanup removes all Stale and Revoked entries.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.Status == Stale || e.Status == Revoked {
			delete(r.entries, id)
		}
	}
}

// List returns all entries sorted by id.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// Snapshot is an alias for List, named to match the spec §6/§7
// list_source_health wire method (package wire) that consumes it alongside
// package health's per-source Tracker.Snapshot.
func (r *Registry) Snapshot() []Entry {
	return r.List()
}
