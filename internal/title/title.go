// Package title implements the title resolver (spec §4.6): a pure
// function choosing a pane's display label and status-bar quality
// indicator from the best available evidence.
package title

import (
	"strings"
)

// Quality ranks the evidence backing a chosen title; a higher value means
// stronger evidence (Unmanaged lowest, CanonicalSession highest).
type Quality int

const (
	Unmanaged Quality = iota
	HeuristicTitle
	DeterministicBinding
	HandshakeConfirmed
	CanonicalSession
)

// Inputs is the per-pane evidence the resolver chooses among.
type Inputs struct {
	PaneTitle               string
	Provider                *string
	DeterministicSessionKey *string
	HandshakeConfirmed      bool
	CanonicalSessionName    *string
	IsManaged               bool
}

// Result is the resolver's chosen label and its quality tier.
type Result struct {
	Quality Quality
	Label   string
}

// Resolve runs the priority ladder from spec §4.6.
func Resolve(in Inputs) Result {
	if in.CanonicalSessionName != nil && in.IsManaged {
		return Result{Quality: CanonicalSession, Label: *in.CanonicalSessionName}
	}
	if in.HandshakeConfirmed && in.PaneTitle != "" {
		return Result{Quality: HandshakeConfirmed, Label: in.PaneTitle}
	}
	if in.DeterministicSessionKey != nil {
		return Result{Quality: DeterministicBinding, Label: *in.DeterministicSessionKey}
	}
	if in.Provider != nil && in.PaneTitle != "" && in.IsManaged {
		return Result{Quality: HeuristicTitle, Label: in.PaneTitle}
	}
	return Result{Quality: Unmanaged, Label: in.PaneTitle}
}

// Ellipsis is appended when a formatted label is truncated.
const Ellipsis = "…"

// prefixFor returns the status-bar marker for a quality tier.
func prefixFor(q Quality) string {
	switch q {
	case CanonicalSession, HandshakeConfirmed:
		return "●" // ●
	case DeterministicBinding, HeuristicTitle:
		return "○" // ○
	default:
		return "·" // ·
	}
}

// Format renders a status-bar string for r, truncated to maxLen Unicode
// scalars (spec §4.6, §8 boundary behaviours).
func Format(r Result, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	prefix := prefixFor(r.Quality)
	prefixLen := len([]rune(prefix))
	if maxLen <= prefixLen {
		return string([]rune(prefix)[:maxLen])
	}

	full := prefix + " " + r.Label
	runes := []rune(full)
	if len(runes) <= maxLen {
		return full
	}

	// Truncate body, preserving the prefix, and append an ellipsis.
	budget := maxLen - prefixLen - len([]rune(Ellipsis))
	if budget < 0 {
		budget = 0
	}
	bodyRunes := []rune(" " + r.Label)
	if budget > len(bodyRunes) {
		budget = len(bodyRunes)
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(string(bodyRunes[:budget]))
	b.WriteString(Ellipsis)
	return b.String()
}
