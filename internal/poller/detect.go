// Package poller implements the heuristic Poller source (spec §4.11):
// provider detection over a pane snapshot, activity classification from
// capture lines, and the source-server event/cursor bookkeeping shared
// with the gateway's buffering model.
package poller

import "strings"

// ProviderDef is one provider's detection signal set.
type ProviderDef struct {
	Name         string
	ProcessHint  string // substring to match against PaneSnapshot.ProcessHint
	CmdTokens    []string
	TitleTokens  []string
	CaptureTokens []string
	WrapperCmd   bool // true if this provider is typically launched via a wrapper script
}

// Detection weights, matching internal/signature's weight table exactly
// (the poller and the classifier must agree on what each signal is worth).
const (
	WeightProcessHint = 1.00
	WeightCmdMatch     = 0.86
	WeightCaptureMatch = 0.78
	WeightTitleMatch   = 0.66
)

// PaneSnapshot is one tick's raw observation of a pane.
type PaneSnapshot struct {
	PaneId       string
	PaneTitle    string
	CurrentCmd   string
	ProcessHint  string
	CaptureLines []string
	CapturedAt   int64
}

// DetectResult is one provider's per-tick signal evaluation.
type DetectResult struct {
	Provider      string
	ProviderHint  bool
	CmdMatch      bool
	TitleMatch    bool
	CaptureMatch  bool
	MatchedPattern string
	Confidence    float64
}

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func anyTokenMatches(haystack string, tokens []string) (bool, string) {
	for _, tok := range tokens {
		if containsFold(haystack, tok) {
			return true, tok
		}
	}
	return false, ""
}

// Detect evaluates a single provider definition against a snapshot.
func Detect(def ProviderDef, snap PaneSnapshot) DetectResult {
	res := DetectResult{Provider: def.Name}

	res.ProviderHint = containsFold(snap.ProcessHint, def.ProcessHint)
	var matched string
	res.CmdMatch, matched = anyTokenMatches(snap.CurrentCmd, def.CmdTokens)
	if matched != "" {
		res.MatchedPattern = matched
	}
	res.TitleMatch, matched = anyTokenMatches(snap.PaneTitle, def.TitleTokens)
	if matched != "" && res.MatchedPattern == "" {
		res.MatchedPattern = matched
	}

	for _, line := range snap.CaptureLines {
		if ok, tok := anyTokenMatches(line, def.CaptureTokens); ok {
			res.CaptureMatch = true
			if res.MatchedPattern == "" {
				res.MatchedPattern = tok
			}
			break
		}
	}

	// Title-only suppression: pane titles alone are unreliable.
	if res.TitleMatch && !res.ProviderHint && !res.CmdMatch && !res.CaptureMatch {
		return DetectResult{Provider: def.Name}
	}

	var confidence float64
	if res.ProviderHint && WeightProcessHint > confidence {
		confidence = WeightProcessHint
	}
	if res.CmdMatch && WeightCmdMatch > confidence {
		confidence = WeightCmdMatch
	}
	if res.CaptureMatch && WeightCaptureMatch > confidence {
		confidence = WeightCaptureMatch
	}
	if res.TitleMatch && WeightTitleMatch > confidence {
		confidence = WeightTitleMatch
	}
	res.Confidence = confidence
	return res
}

// hasAnySignal reports whether a DetectResult represents a real detection.
func hasAnySignal(r DetectResult) bool {
	return r.ProviderHint || r.CmdMatch || r.TitleMatch || r.CaptureMatch
}

// signalRichness orders results by the lexicographic tiebreak from spec
// §4.11: (provider_hint, cmd_match, capture_match, title_match).
func signalRichness(r DetectResult) [4]int {
	return [4]int{boolToInt(r.ProviderHint), boolToInt(r.CmdMatch), boolToInt(r.CaptureMatch), boolToInt(r.TitleMatch)}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DetectBest runs Detect across every provider definition and returns the
// single best match, preferring higher confidence and, on tie, richer
// signals under the spec's lexicographic order.
func DetectBest(defs []ProviderDef, snap PaneSnapshot) (DetectResult, bool) {
	var best DetectResult
	found := false
	for _, def := range defs {
		res := Detect(def, snap)
		if !hasAnySignal(res) {
			continue
		}
		if !found {
			best = res
			found = true
			continue
		}
		if res.Confidence > best.Confidence {
			best = res
			continue
		}
		if res.Confidence == best.Confidence {
			rr, br := signalRichness(res), signalRichness(best)
			if rr[0] > br[0] || (rr[0] == br[0] && (rr[1] > br[1] || (rr[1] == br[1] && (rr[2] > br[2] || (rr[2] == br[2] && rr[3] > br[3]))))) {
				best = res
			}
		}
	}
	return best, found
}
