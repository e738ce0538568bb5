package model

import "time"

// SourceEventV2 is the universal event exchanged between sources, the
// gateway, and the daemon. Tier is derived from SourceKind and must
// always satisfy Tier == SourceKind.Tier() — constructors in this package
// enforce the invariant so callers can't construct an inconsistent event.
type SourceEventV2 struct {
	EventId       EventId
	Provider      Provider
	SourceKind    SourceKind
	Tier          EvidenceTier
	ObservedAt    time.Time // UTC, millisecond-monotonic within a source
	SessionKey    SessionKey
	PaneId        *PaneId
	PaneGeneration *uint64
	PaneBirthTs   *time.Time
	SourceEventId *string
	EventType     string // e.g. "activity.running", "lifecycle.start", "turn.completed"
	Payload       map[string]any
	Confidence    float64 // in [0,1]
}

// NewSourceEvent builds a SourceEventV2 with Tier derived from kind,
// enforcing the Tier == SourceKind.Tier() invariant at construction time.
func NewSourceEvent(id EventId, provider Provider, kind SourceKind, observedAt time.Time, session SessionKey, eventType string, payload map[string]any, confidence float64) SourceEventV2 {
	return SourceEventV2{
		EventId:    id,
		Provider:   provider,
		SourceKind: kind,
		Tier:       kind.Tier(),
		ObservedAt: observedAt,
		SessionKey: session,
		EventType:  eventType,
		Payload:    payload,
		Confidence: confidence,
	}
}

// WithPane returns a copy of e with pane identity fields populated.
func (e SourceEventV2) WithPane(id PaneId, generation uint64, birthTs time.Time) SourceEventV2 {
	e.PaneId = &id
	e.PaneGeneration = &generation
	e.PaneBirthTs = &birthTs
	return e
}

// DedupKey returns the key used by the tier resolver (package resolver)
// to drop duplicate events: EventId is only unique within
// (Provider, SessionKey).
func (e SourceEventV2) DedupKey() [3]string {
	return [3]string{e.Provider.String(), string(e.SessionKey), string(e.EventId)}
}

// SourceRank returns the default source rank table from spec §4.5: lower
// wins. Unlisted (provider, kind) pairs rank last.
func SourceRank(provider Provider, kind SourceKind) uint32 {
	switch {
	case provider == ProviderCodex && kind == SourceKindCodexAppserver:
		return 0
	case provider == ProviderCodex && kind == SourceKindPoller:
		return 1
	case provider == ProviderClaude && kind == SourceKindClaudeHooks:
		return 0
	case provider == ProviderClaude && kind == SourceKindPoller:
		return 1
	default:
		return ^uint32(0)
	}
}
