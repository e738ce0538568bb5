// Package supervisor implements the restart policy and startup gate
// described in spec §4.10: a pure failure-budget/backoff reducer plus a
// small stateful dependency gate for staged startup. No backoff or
// circuit-breaker library appears anywhere in the example corpus (see
// DESIGN.md); the reducer shape here is original to this spec and
// modeled on the teacher's plain-struct state machines elsewhere
// (session.Store, monitor health tracking).
package supervisor

import "time"

// RestartPolicy holds the tunables governing SupervisorTracker.
type RestartPolicy struct {
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
	JitterPct      float64
	FailureBudget  int
	BudgetWindow   time.Duration
	HoldDownFor    time.Duration
}

// DefaultRestartPolicy mirrors the spec's defaults.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		InitialBackoff: 1000 * time.Millisecond,
		Multiplier:     2.0,
		MaxBackoff:     30_000 * time.Millisecond,
		JitterPct:      0.20,
		FailureBudget:  5,
		BudgetWindow:   600_000 * time.Millisecond,
		HoldDownFor:    300_000 * time.Millisecond,
	}
}

// Phase discriminates the tracker's coarse state.
type Phase int

const (
	Ready Phase = iota
	Restarting
	HoldDown
)

// Tracker is the supervisor's per-process state. Apply-style methods
// never mutate in place.
type Tracker struct {
	Phase           Phase
	Attempt         int
	NextRestartAt   time.Time
	HoldDownUntil   time.Time
	FailureTimestamps []time.Time
}

// Outcome is what a caller should do in response to RecordFailure.
type Outcome struct {
	Phase    Phase
	Backoff  time.Duration // valid when Phase == Restarting
	HoldFor  time.Duration // valid when Phase == HoldDown
}

// RecordFailure runs the failure-budget/backoff reducer from spec §4.10.
func RecordFailure(t Tracker, policy RestartPolicy, now time.Time) (Tracker, Outcome) {
	next := t

	if t.Phase == HoldDown {
		if now.Before(t.HoldDownUntil) {
			return next, Outcome{Phase: HoldDown, HoldFor: t.HoldDownUntil.Sub(now)}
		}
		// Hold-down expired: reset before processing this failure.
		next.Phase = Ready
		next.Attempt = 0
		next.FailureTimestamps = nil
	}

	cutoff := now.Add(-policy.BudgetWindow)
	timestamps := make([]time.Time, 0, len(next.FailureTimestamps)+1)
	for _, ts := range next.FailureTimestamps {
		if ts.After(cutoff) {
			timestamps = append(timestamps, ts)
		}
	}
	timestamps = append(timestamps, now)
	next.FailureTimestamps = timestamps

	if policy.FailureBudget > 0 && len(timestamps) >= policy.FailureBudget {
		next.Phase = HoldDown
		next.HoldDownUntil = now.Add(policy.HoldDownFor)
		next.Attempt = 0
		return next, Outcome{Phase: HoldDown, HoldFor: policy.HoldDownFor}
	}

	attempt := 0
	if t.Phase == Restarting {
		attempt = t.Attempt + 1
	}
	backoff := computeBackoff(policy, attempt)

	next.Phase = Restarting
	next.Attempt = attempt
	next.NextRestartAt = now.Add(backoff)

	return next, Outcome{Phase: Restarting, Backoff: backoff}
}

func computeBackoff(policy RestartPolicy, attempt int) time.Duration {
	backoff := float64(policy.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= policy.Multiplier
	}
	max := float64(policy.MaxBackoff)
	if backoff > max {
		backoff = max
	}
	return time.Duration(backoff)
}

// RecordSuccess resets the tracker to Ready, clearing all failure history.
func RecordSuccess() Tracker {
	return Tracker{Phase: Ready}
}

// StartupStage is one of the canonical startup stages, in dependency order.
type StartupStage int

const (
	StageSources StartupStage = iota
	StageGateway
	StageDaemon
	StageUi
)

var startupOrder = []StartupStage{StageSources, StageGateway, StageDaemon, StageUi}

// DependencyGate tracks named dependencies that must all be marked ready
// before a stage is considered complete.
type DependencyGate struct {
	ready map[string]bool
}

// NewDependencyGate creates a gate expecting the given named dependencies.
func NewDependencyGate(deps []string) *DependencyGate {
	g := &DependencyGate{ready: make(map[string]bool, len(deps))}
	for _, d := range deps {
		g.ready[d] = false
	}
	return g
}

// MarkReady records that a named dependency has become ready.
func (g *DependencyGate) MarkReady(name string) {
	if _, ok := g.ready[name]; ok {
		g.ready[name] = true
	}
}

// AllReady reports whether every tracked dependency is ready.
func (g *DependencyGate) AllReady() bool {
	for _, ready := range g.ready {
		if !ready {
			return false
		}
	}
	return true
}

// Stages returns the canonical stage order: Sources -> Gateway -> Daemon -> Ui.
func Stages() []StartupStage { return startupOrder }

// UILabel returns the status-bar label for a (managed, evidence mode)
// pair, per spec §4.10.
func UILabel(managed bool, evidenceMode string) string {
	if !managed {
		return "unmanaged"
	}
	switch evidenceMode {
	case "deterministic":
		return "agents (deterministic)"
	case "heuristic":
		return "agents (heuristic)"
	default:
		return "agents"
	}
}
