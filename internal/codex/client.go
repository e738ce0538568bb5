package codex

import (
	"fmt"
	"time"

	"github.com/g960059/agtmux/internal/model"
)

// MaxCwdQueriesPerTick bounds per-cycle thread/list calls (spec §5's
// per-tick cwd-query cap of 40).
const MaxCwdQueriesPerTick = 40

// PaneRef is a pane identity tuple as cached against a Codex thread id.
type PaneRef struct {
	PaneId     string
	Generation uint64
	BirthTs    time.Time
}

// ThreadBindings caches thread -> pane associations so notifications that
// lack pane info (most of them; the app-server speaks in thread ids, not
// tmux pane ids) can still be enriched before being turned into events.
type ThreadBindings struct {
	byThread map[string]PaneRef
}

// NewThreadBindings creates an empty binding cache.
func NewThreadBindings() *ThreadBindings {
	return &ThreadBindings{byThread: make(map[string]PaneRef)}
}

// Bind records that a thread belongs to a pane, learned out-of-band (e.g.
// by matching the thread's cwd against a pane's working directory, or via
// a capture-line fingerprint match).
func (b *ThreadBindings) Bind(threadId string, ref PaneRef) {
	b.byThread[threadId] = ref
}

// Lookup returns the cached pane for a thread, if any.
func (b *ThreadBindings) Lookup(threadId string) (PaneRef, bool) {
	ref, ok := b.byThread[threadId]
	return ref, ok
}

// SelectCwdQueryTargets picks which pane cwds to query this tick, capped
// at MaxCwdQueriesPerTick and prioritising panes with a codex process
// hint over plain candidates.
func SelectCwdQueryTargets(withHint, withoutHint []string) []string {
	targets := make([]string, 0, MaxCwdQueriesPerTick)
	for _, cwd := range withHint {
		if len(targets) >= MaxCwdQueriesPerTick {
			return targets
		}
		targets = append(targets, cwd)
	}
	for _, cwd := range withoutHint {
		if len(targets) >= MaxCwdQueriesPerTick {
			return targets
		}
		targets = append(targets, cwd)
	}
	return targets
}

// EventTypeForThreadStatus maps a thread status transition to an event
// type, per spec §4.12's event_type set.
func EventTypeForThreadStatus(status ThreadStatus) string {
	switch status {
	case ThreadActive:
		return "thread.active"
	case ThreadIdle:
		return "thread.idle"
	case ThreadError:
		return "thread.error"
	default:
		return "thread.status_changed"
	}
}

// BuildThreadEvent constructs the output-contract event for a thread
// status observation. isHeartbeat distinguishes periodic re-emissions
// (on the 2s heartbeat interval) from genuine status transitions, per
// spec §4.12, so downstream consumers don't mistake a heartbeat for new
// activity.
func BuildThreadEvent(threadId string, status ThreadStatus, pane *PaneRef, isHeartbeat bool, now time.Time, seq int) model.SourceEventV2 {
	eventType := EventTypeForThreadStatus(status)
	id := model.EventId(fmt.Sprintf("codex-%s-%d", threadId, seq))
	session := model.SessionKey("codex-" + threadId)
	payload := map[string]any{
		"thread_id":    threadId,
		"is_heartbeat": isHeartbeat,
	}
	ev := model.NewSourceEvent(id, model.ProviderCodex, model.SourceKindCodexAppserver, now, session, eventType, payload, 1.0)
	if pane != nil {
		ev = ev.WithPane(model.PaneId(pane.PaneId), pane.Generation, pane.BirthTs)
	}
	return ev
}

// BuildTurnEvent constructs an event for a turn/started or turn/completed
// notification.
func BuildTurnEvent(params TurnEventParams, eventType string, pane *PaneRef, now time.Time, seq int) model.SourceEventV2 {
	id := model.EventId(fmt.Sprintf("codex-turn-%s-%d", params.TurnId, seq))
	session := model.SessionKey("codex-" + params.ThreadId)
	payload := map[string]any{"thread_id": params.ThreadId, "turn_id": params.TurnId}
	ev := model.NewSourceEvent(id, model.ProviderCodex, model.SourceKindCodexAppserver, now, session, eventType, payload, 1.0)
	if pane != nil {
		ev = ev.WithPane(model.PaneId(pane.PaneId), pane.Generation, pane.BirthTs)
	}
	return ev
}

// ShouldIgnoreThread reports whether a thread/list entry should be
// skipped entirely: notLoaded threads carry no useful signal.
func ShouldIgnoreThread(status ThreadStatus) bool {
	return status == ThreadNotLoaded
}
