package model

import "time"

// PaneBinding is the per-PaneInstanceId binding record owned exclusively
// by the daemon projection (package daemon). It is mutated only by the
// pure reducer in package binding.
type PaneBinding struct {
	Instance             PaneInstanceId
	BindingState         BindingState
	SessionKey           *SessionKey
	BoundAt              *time.Time
	LastActivityAt       *time.Time
	LastDeterministicAt  *time.Time
	NoAgentStreak        uint32
	TombstoneUntil       *time.Time
}

// IsTombstoned reports whether the binding is within its post-reuse grace
// window at the given time. The boundary now == until is NOT tombstoned.
func (b PaneBinding) IsTombstoned(now time.Time) bool {
	return b.TombstoneUntil != nil && now.Before(*b.TombstoneUntil)
}

// Clone returns a deep copy of b so callers can mutate the result without
// aliasing b's pointer fields.
func (b PaneBinding) Clone() PaneBinding {
	c := b
	if b.SessionKey != nil {
		v := *b.SessionKey
		c.SessionKey = &v
	}
	if b.BoundAt != nil {
		v := *b.BoundAt
		c.BoundAt = &v
	}
	if b.LastActivityAt != nil {
		v := *b.LastActivityAt
		c.LastActivityAt = &v
	}
	if b.LastDeterministicAt != nil {
		v := *b.LastDeterministicAt
		c.LastDeterministicAt = &v
	}
	if b.TombstoneUntil != nil {
		v := *b.TombstoneUntil
		c.TombstoneUntil = &v
	}
	return c
}

// ResolverState is the per-SessionKey state carried between tier-resolver
// invocations (package resolver).
type ResolverState struct {
	CurrentTier      EvidenceTier
	DeterministicLastSeen time.Time // zero value means "never seen"
}

// SessionRuntimeState is a projection output (spec §4.9): the daemon's
// read-model view of a session.
type SessionRuntimeState struct {
	SessionKey            SessionKey
	Presence              PanePresence
	EvidenceMode          EvidenceMode
	DeterministicLastSeen time.Time
	WinnerTier            EvidenceTier
	ActivityState         ActivityState
	ActivitySource        SourceKind
	UpdatedAt             time.Time
}

// PaneRuntimeState is a projection output (spec §4.9): the daemon's
// read-model view of a pane.
type PaneRuntimeState struct {
	Instance             PaneInstanceId
	SignatureClass        PaneSignatureClass
	SignatureConfidence   float64
	SignatureReason       string
	EvidenceMode          EvidenceMode
	ActivityState         ActivityState
	Provider              Provider
	SessionKey            *SessionKey
	Binding               BindingState
	UpdatedAt             time.Time
}

// ChangeKind discriminates the kind of change a StateChange records,
// letting wire-level subscribers (package wire) distinguish a plain
// state update from a topology event (spec §6's pane_added/pane_removed
// notifications).
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeAdded
	ChangeRemoved
)

// StateChange is one entry in the daemon's monotonically versioned change
// log (spec §4.9 / §8).
type StateChange struct {
	Version    uint64
	SessionKey SessionKey
	PaneId     *PaneId
	Kind       ChangeKind
	Timestamp  time.Time
}
