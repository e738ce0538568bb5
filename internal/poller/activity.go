package poller

import (
	"regexp"

	"github.com/g960059/agtmux/internal/model"
)

// ActivityPattern is one ordered rule in a provider's capture-line pattern
// list: the first matching pattern (scanning lines in order) wins.
type ActivityPattern struct {
	Pattern *regexp.Regexp
	State   model.ActivityState
}

// ClassifyActivity scans capture lines against an ordered pattern list and
// returns the first match's state, or Unknown if nothing matches.
func ClassifyActivity(patterns []ActivityPattern, lines []string) (model.ActivityState, string) {
	for _, line := range lines {
		for _, p := range patterns {
			if p.Pattern.MatchString(line) {
				return p.State, line
			}
		}
	}
	return model.Unknown, ""
}

// EventTypeFor maps an ActivityState to the poller's event_type string.
func EventTypeFor(s model.ActivityState) string {
	switch s {
	case model.Running:
		return "activity.running"
	case model.Idle:
		return "activity.idle"
	case model.WaitingInput:
		return "activity.waiting_input"
	case model.WaitingApproval:
		return "activity.waiting_approval"
	case model.Error:
		return "activity.error"
	default:
		return "activity.unknown"
	}
}
