// Package hysteresis implements the per-pane activity hysteresis state
// machine (spec §4.3): it stabilises ActivityState transitions against
// flapping by requiring sustained observation before confirming a new
// state, mirroring the teacher's staleness-window idioms in
// Monitor.poll but generalized into a standalone pure reducer.
package hysteresis

import (
	"time"

	"github.com/g960059/agtmux/internal/model"
)

// IdleMinSecs is the minimum dwell time (or 2x poll interval, whichever
// is greater) before an Idle observation is confirmed.
const IdleMinSecs = 4 * time.Second

// RunningPromoteSecs bounds how recently a pane must have seen an
// interactive observation before a Running transition is confirmed.
const RunningPromoteSecs = 8 * time.Second

// RunningDemoteSecs is how long since the last interaction before a
// demotion away from Running is allowed.
const RunningDemoteSecs = 45 * time.Second

// State is the per-pane hysteresis state, owned by the daemon projection.
type State struct {
	Confirmed       model.ActivityState
	ConfirmedAt     time.Time
	Observed        model.ActivityState
	ObservedSince   time.Time
	LastInteraction *time.Time
	NoAgentStreak   uint32
}

// Input is one tick's raw observation.
type Input struct {
	Observed         model.ActivityState
	HasAgentSignal   bool
	PollIntervalSecs time.Duration
	Now              time.Time
}

// Apply runs the hysteresis reducer from spec §4.3, returning the next
// state. s is never mutated in place.
func Apply(s State, in Input) State {
	next := s

	if in.Observed != s.Observed {
		next.Observed = in.Observed
		next.ObservedSince = in.Now
	}

	if in.HasAgentSignal {
		next.NoAgentStreak = 0
	} else {
		next.NoAgentStreak = s.NoAgentStreak + 1
	}

	if in.Observed == s.Confirmed {
		return next
	}

	confirm := false
	switch {
	case in.Observed == model.Error || in.Observed == model.WaitingApproval || in.Observed == model.WaitingInput:
		// Rule 1: immediate, overrides everything else.
		confirm = true

	case in.Observed == model.Idle:
		// Rule 2: confirm only after sustained dwell.
		minDwell := IdleMinSecs
		if twicePoll := 2 * in.PollIntervalSecs; twicePoll > minDwell {
			minDwell = twicePoll
		}
		confirm = in.Now.Sub(next.ObservedSince) >= minDwell
		// Rule 4 also applies: leaving Running needs a stale interaction.
		if confirm && s.Confirmed == model.Running {
			confirm = s.LastInteraction == nil || in.Now.Sub(*s.LastInteraction) > RunningDemoteSecs
		}

	case in.Observed == model.Running:
		// Rule 3: confirm only if interaction was recent (using the
		// PRE-tick last-interaction value).
		if s.LastInteraction != nil && in.Now.Sub(*s.LastInteraction) <= RunningPromoteSecs {
			confirm = true
		}

	case s.Confirmed == model.Running:
		// Rule 4: demotion away from Running requires a sufficiently
		// stale last interaction.
		if s.LastInteraction == nil || in.Now.Sub(*s.LastInteraction) > RunningDemoteSecs {
			confirm = true
		}

	default:
		// Rule 5: any other transition is immediate.
		confirm = true
	}

	if confirm {
		next.Confirmed = in.Observed
		next.ConfirmedAt = in.Now
	}

	// After evaluating the rule, if the (possibly just-confirmed) new
	// observed state is interactive, bump LastInteraction. This uses the
	// post-tick "new observed" value per spec §4.3 rule 3's note, and is
	// independent of whether the transition was actually confirmed.
	if in.Observed.IsInteractive() {
		now := in.Now
		next.LastInteraction = &now
	}

	return next
}
