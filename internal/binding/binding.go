// Package binding implements the pane binding state machine (spec §4.1):
// a pure reducer tracking how a pane becomes bound to an agent session,
// including pane-reuse tombstoning.
//
// Like the teacher's session.Store mutation methods, state here is a
// plain struct with no hidden machinery — but unlike Store (which owns
// its state behind a mutex), Apply is a pure function: the daemon
// projection (package daemon) is the sole owner of the PaneBinding values
// this reducer operates on.
package binding

import (
	"time"

	"github.com/g960059/agtmux/internal/model"
)

// NoAgentDemotionStreak is the number of consecutive NoAgentObserved
// events required to demote a ManagedHeuristic binding to Unmanaged.
const NoAgentDemotionStreak = 2

// TombstoneGrace is how long a reused pane id is blocked from rebinding.
const TombstoneGrace = 120 * time.Second

// EventKind discriminates the binding events from spec §4.1.
type EventKind int

const (
	HeuristicDetected EventKind = iota
	DeterministicHandshake
	FreshnessExpired
	DeterministicRecovered
	NoAgentObserved
	AgentObserved
	PaneReused
)

// Event is one input to Apply. Not every field is meaningful for every
// Kind; see the comments on each field.
type Event struct {
	Kind       EventKind
	SessionKey model.SessionKey // HeuristicDetected, DeterministicHandshake
	Confidence float64          // HeuristicDetected
	At         time.Time        // all kinds
	BirthTs    time.Time        // PaneReused
}

// Apply runs the pane binding reducer: given the current binding and an
// event, it returns the next binding. b is never mutated in place; the
// returned value is always a fresh copy.
func Apply(b model.PaneBinding, ev Event) model.PaneBinding {
	next := b.Clone()

	switch ev.Kind {
	case HeuristicDetected:
		if next.BindingState == model.Unmanaged {
			if next.IsTombstoned(ev.At) {
				return next
			}
			next.BindingState = model.ManagedHeuristic
			sk := ev.SessionKey
			next.SessionKey = &sk
			at := ev.At
			next.BoundAt = &at
			next.NoAgentStreak = 0
		}
		// No-op on state for every other current state (but see
		// AgentObserved/NoAgentObserved for timestamp updates — a bare
		// HeuristicDetected doesn't update last-activity by itself).

	case DeterministicHandshake:
		switch next.BindingState {
		case model.Unmanaged:
			if next.IsTombstoned(ev.At) {
				return next
			}
			next.BindingState = model.ManagedDeterministicFresh
			sk := ev.SessionKey
			next.SessionKey = &sk
			at := ev.At
			next.BoundAt = &at
			next.LastDeterministicAt = &at
		case model.ManagedHeuristic, model.ManagedDeterministicStale:
			next.BindingState = model.ManagedDeterministicFresh
			at := ev.At
			next.LastDeterministicAt = &at
			if next.SessionKey == nil {
				sk := ev.SessionKey
				next.SessionKey = &sk
			}
		case model.ManagedDeterministicFresh:
			at := ev.At
			next.LastDeterministicAt = &at
		}

	case FreshnessExpired:
		if next.BindingState == model.ManagedDeterministicFresh {
			next.BindingState = model.ManagedDeterministicStale
		}

	case DeterministicRecovered:
		if next.BindingState == model.ManagedDeterministicStale {
			next.BindingState = model.ManagedDeterministicFresh
		}

	case NoAgentObserved:
		switch next.BindingState {
		case model.ManagedHeuristic:
			next.NoAgentStreak++
			if next.NoAgentStreak >= NoAgentDemotionStreak {
				next.BindingState = model.Unmanaged
				next.SessionKey = nil
				next.BoundAt = nil
			}
		case model.ManagedDeterministicFresh, model.ManagedDeterministicStale:
			next.NoAgentStreak++
		}

	case AgentObserved:
		next.NoAgentStreak = 0
		at := ev.At
		next.LastActivityAt = &at

	case PaneReused:
		tombstoneUntil := ev.At.Add(TombstoneGrace)
		prevGeneration := next.Instance.Generation
		next = model.PaneBinding{
			Instance: model.PaneInstanceId{
				PaneId:     next.Instance.PaneId,
				Generation: prevGeneration + 1,
				BirthTs:    ev.BirthTs,
			},
			BindingState:   model.Unmanaged,
			TombstoneUntil: &tombstoneUntil,
		}
	}

	return next
}

// SelectRepresentative picks the representative pane for a session per
// spec §4.1: among the given bindings (which callers must have already
// filtered to binding.SessionKey == target), pick the maximum under the
// ordering (LastDeterministicAt, LastActivityAt, -PaneId) with
// None < Some — i.e. latest deterministic wins, ties broken by latest
// activity, then by lexicographically smallest PaneId.
//
// Returns false if bindings is empty.
func SelectRepresentative(bindings []model.PaneBinding) (model.PaneBinding, bool) {
	if len(bindings) == 0 {
		return model.PaneBinding{}, false
	}
	best := bindings[0]
	for _, cand := range bindings[1:] {
		if isBetterRepresentative(cand, best) {
			best = cand
		}
	}
	return best, true
}

// isBetterRepresentative reports whether a should be preferred over b
// under the ordering from spec §4.1.
func isBetterRepresentative(a, b model.PaneBinding) bool {
	if cmp := compareOptionalTime(a.LastDeterministicAt, b.LastDeterministicAt); cmp != 0 {
		return cmp > 0
	}
	if cmp := compareOptionalTime(a.LastActivityAt, b.LastActivityAt); cmp != 0 {
		return cmp > 0
	}
	// Tie: lexicographically smallest pane id wins.
	return a.Instance.PaneId < b.Instance.PaneId
}

// compareOptionalTime compares two optional timestamps with None < Some,
// returning -1, 0, or 1.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}
