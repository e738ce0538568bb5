// Package model defines the shared data model for agtmux: identifiers,
// enums, and the wire-level event type that flows between sources, the
// gateway, and the daemon projection.
package model

import "time"

// PaneId is an opaque string assigned by the terminal multiplexer (e.g.
// "%1" in tmux). It is not unique across time: the multiplexer reuses
// pane ids after a pane closes and a new one is created in its place.
type PaneId string

// PaneInstanceId is the stable identity of a single live pane instance.
// Because PaneId is reused, identity requires the triple of id,
// generation, and birth timestamp: Generation increases monotonically
// whenever the pane is observed to have been reused (see PaneReused in
// package binding), and BirthTs records when this particular instance
// started.
type PaneInstanceId struct {
	PaneId     PaneId
	Generation uint64
	BirthTs    time.Time
}

// SessionKey identifies an agent session. It comes from the provider for
// deterministic sources, or is synthesised as "poller-{PaneId}" for
// heuristic-only detections (see package poller).
type SessionKey string

// EventId is unique within (Provider, SessionKey). EventIds that collide
// across different (Provider, SessionKey) pairs are not considered
// duplicates of one another.
type EventId string
