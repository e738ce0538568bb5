package model

import "encoding/json"

// Provider identifies the agent CLI a session belongs to.
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderClaude
	ProviderCodex
)

var providerNames = map[Provider]string{
	ProviderUnknown: "unknown",
	ProviderClaude:  "claude",
	ProviderCodex:   "codex",
}

var providerFromName = map[string]Provider{
	"unknown": ProviderUnknown,
	"claude":  ProviderClaude,
	"codex":   ProviderCodex,
}

func (p Provider) String() string {
	if s, ok := providerNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Provider) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *Provider) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := providerFromName[s]; ok {
		*p = v
	} else {
		*p = ProviderUnknown
	}
	return nil
}

// SourceKind identifies the concrete source implementation an event came
// from. Every SourceKind has a fixed evidence tier: Poller is Heuristic,
// everything else is Deterministic.
type SourceKind int

const (
	SourceKindUnknown SourceKind = iota
	SourceKindCodexAppserver
	SourceKindClaudeHooks
	SourceKindPoller
)

var sourceKindNames = map[SourceKind]string{
	SourceKindUnknown:        "unknown",
	SourceKindCodexAppserver: "codex_appserver",
	SourceKindClaudeHooks:    "claude_hooks",
	SourceKindPoller:         "poller",
}

var sourceKindFromName = map[string]SourceKind{
	"unknown":         SourceKindUnknown,
	"codex_appserver": SourceKindCodexAppserver,
	"claude_hooks":    SourceKindClaudeHooks,
	"poller":          SourceKindPoller,
}

func (k SourceKind) String() string {
	if s, ok := sourceKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Tier returns the fixed evidence tier for this source kind: Poller is
// always Heuristic, every other known kind is Deterministic.
func (k SourceKind) Tier() EvidenceTier {
	if k == SourceKindPoller {
		return Heuristic
	}
	return Deterministic
}

func (k SourceKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *SourceKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := sourceKindFromName[s]; ok {
		*k = v
	} else {
		*k = SourceKindUnknown
	}
	return nil
}

// EvidenceTier distinguishes ground-truth (Deterministic) evidence from
// inferred (Heuristic) evidence.
type EvidenceTier int

const (
	Deterministic EvidenceTier = iota
	Heuristic
)

func (t EvidenceTier) String() string {
	if t == Deterministic {
		return "deterministic"
	}
	return "heuristic"
}

func (t EvidenceTier) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// EvidenceMode mirrors EvidenceTier but adds a third "None" state for
// panes/sessions with no evidence at all.
type EvidenceMode int

const (
	ModeNone EvidenceMode = iota
	ModeHeuristic
	ModeDeterministic
)

var evidenceModeNames = map[EvidenceMode]string{
	ModeNone:          "none",
	ModeHeuristic:      "heuristic",
	ModeDeterministic: "deterministic",
}

func (m EvidenceMode) String() string {
	if s, ok := evidenceModeNames[m]; ok {
		return s
	}
	return "none"
}

func (m EvidenceMode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// ModeForTier converts an EvidenceTier into the corresponding EvidenceMode.
func ModeForTier(t EvidenceTier) EvidenceMode {
	if t == Deterministic {
		return ModeDeterministic
	}
	return ModeHeuristic
}

// ActivityState is the normalized activity classification for a session
// or pane.
type ActivityState int

const (
	Unknown ActivityState = iota
	Idle
	Running
	WaitingInput
	WaitingApproval
	Error
)

var activityStateNames = map[ActivityState]string{
	Unknown:         "unknown",
	Idle:            "idle",
	Running:         "running",
	WaitingInput:    "waiting_input",
	WaitingApproval: "waiting_approval",
	Error:           "error",
}

var activityStateFromName = map[string]ActivityState{
	"unknown":          Unknown,
	"idle":             Idle,
	"running":          Running,
	"waiting_input":    WaitingInput,
	"waiting_approval": WaitingApproval,
	"error":            Error,
}

func (a ActivityState) String() string {
	if s, ok := activityStateNames[a]; ok {
		return s
	}
	return "unknown"
}

func (a ActivityState) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *ActivityState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := activityStateFromName[s]; ok {
		*a = v
	} else {
		*a = Unknown
	}
	return nil
}

// IsInteractive reports whether the state represents the agent actively
// engaging with, or waiting directly on, the user — used by the
// hysteresis FSM's last-interaction bookkeeping (see package hysteresis).
func (a ActivityState) IsInteractive() bool {
	return a == Running || a == WaitingInput || a == WaitingApproval
}

// PaneSignatureClass is the output of the signature classifier (package
// signature): whether a pane shows no agent signal, heuristic signal, or
// deterministic signal.
type PaneSignatureClass int

const (
	SignatureNone PaneSignatureClass = iota
	SignatureHeuristic
	SignatureDeterministic
)

var signatureClassNames = map[PaneSignatureClass]string{
	SignatureNone:          "none",
	SignatureHeuristic:      "heuristic",
	SignatureDeterministic: "deterministic",
}

func (c PaneSignatureClass) String() string {
	if s, ok := signatureClassNames[c]; ok {
		return s
	}
	return "none"
}

func (c PaneSignatureClass) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

// BindingState is the lifecycle state of a pane's binding to an agent
// session (package binding).
type BindingState int

const (
	Unmanaged BindingState = iota
	ManagedHeuristic
	ManagedDeterministicFresh
	ManagedDeterministicStale
)

var bindingStateNames = map[BindingState]string{
	Unmanaged:                 "unmanaged",
	ManagedHeuristic:          "managed_heuristic",
	ManagedDeterministicFresh: "managed_deterministic_fresh",
	ManagedDeterministicStale: "managed_deterministic_stale",
}

var bindingStateFromName = map[string]BindingState{
	"unmanaged":                   Unmanaged,
	"managed_heuristic":           ManagedHeuristic,
	"managed_deterministic_fresh": ManagedDeterministicFresh,
	"managed_deterministic_stale": ManagedDeterministicStale,
}

func (s BindingState) String() string {
	if v, ok := bindingStateNames[s]; ok {
		return v
	}
	return "unmanaged"
}

func (s BindingState) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *BindingState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if v, ok := bindingStateFromName[str]; ok {
		*s = v
	} else {
		*s = Unmanaged
	}
	return nil
}

// IsManagedDeterministic reports whether s is one of the two
// ManagedDeterministic* states.
func (s BindingState) IsManagedDeterministic() bool {
	return s == ManagedDeterministicFresh || s == ManagedDeterministicStale
}

// PanePresence is the coarse managed/unmanaged projection of a pane,
// surfaced to clients (package daemon).
type PanePresence int

const (
	PresenceUnmanaged PanePresence = iota
	PresenceManaged
)

func (p PanePresence) String() string {
	if p == PresenceManaged {
		return "managed"
	}
	return "unmanaged"
}

func (p PanePresence) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }
