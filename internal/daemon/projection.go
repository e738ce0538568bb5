// Package daemon implements the Daemon Projection (spec §4.9): the sole
// owner of the system's mutable long-lived state (per-session resolver
// state, session/pane runtime projections, and a monotonically versioned
// change log). apply_events itself is written as a pure function of
// (state, events, now) per spec §5; Projection is the thin mutex-guarded
// shell around it, grounded on the teacher's session.Store ownership
// idiom (internal/session/store.go) generalized from a single flat map
// to the three-map projection this spec requires.
package daemon

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/g960059/agtmux/internal/binding"
	"github.com/g960059/agtmux/internal/hysteresis"
	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/resolver"
	"github.com/g960059/agtmux/internal/signature"
)

// DefaultPollIntervalSecs is the hysteresis dwell-time baseline used when a
// Projection is built via New without an explicit poll interval (matching
// config.defaultConfig's poller.interval).
const DefaultPollIntervalSecs = 2 * time.Second

// Snapshot is the pure, immutable state apply_events operates over. A
// Projection holds exactly one Snapshot behind its mutex at any time.
type Snapshot struct {
	ResolverStates map[model.SessionKey]model.ResolverState
	Sessions       map[model.SessionKey]model.SessionRuntimeState
	Panes          map[model.PaneId]model.PaneRuntimeState
	Version        uint64
	ChangeLog      []model.StateChange

	// paneNoAgentStreaks tracks the signature classifier's consecutive
	// no-signal tick count per pane. It isn't part of the client-facing
	// PaneRuntimeState; it's classifier bookkeeping carried alongside it.
	paneNoAgentStreaks map[model.PaneId]uint32

	// paneBindings and paneHysteresis are the projection's exclusive
	// ownership of the per-pane binding (spec §4.1) and activity
	// hysteresis (spec §4.3) FSM state, threaded through Apply calls tick
	// over tick. Neither is part of the client-facing read model directly;
	// PaneRuntimeState.Binding and .ActivityState are derived from them.
	paneBindings   map[model.PaneId]model.PaneBinding
	paneHysteresis map[model.PaneId]hysteresis.State
}

// cloneSnapshot performs a shallow-but-safe copy: map values are structs,
// not pointers, so a fresh top-level map per mutated key is sufficient to
// avoid aliasing between the pre- and post-apply snapshots.
func cloneSnapshot(s Snapshot) Snapshot {
	next := Snapshot{
		ResolverStates:     make(map[model.SessionKey]model.ResolverState, len(s.ResolverStates)),
		Sessions:           make(map[model.SessionKey]model.SessionRuntimeState, len(s.Sessions)),
		Panes:              make(map[model.PaneId]model.PaneRuntimeState, len(s.Panes)),
		Version:            s.Version,
		ChangeLog:          s.ChangeLog,
		paneNoAgentStreaks: make(map[model.PaneId]uint32, len(s.paneNoAgentStreaks)),
		paneBindings:       make(map[model.PaneId]model.PaneBinding, len(s.paneBindings)),
		paneHysteresis:     make(map[model.PaneId]hysteresis.State, len(s.paneHysteresis)),
	}
	for k, v := range s.ResolverStates {
		next.ResolverStates[k] = v
	}
	for k, v := range s.Sessions {
		next.Sessions[k] = v
	}
	for k, v := range s.Panes {
		next.Panes[k] = v
	}
	for k, v := range s.paneNoAgentStreaks {
		next.paneNoAgentStreaks[k] = v
	}
	for k, v := range s.paneBindings {
		next.paneBindings[k] = v.Clone()
	}
	for k, v := range s.paneHysteresis {
		next.paneHysteresis[k] = v
	}
	return next
}

// ApplyResult summarizes one apply_events call's effect.
type ApplyResult struct {
	SessionsChanged   int
	PanesChanged      int
	EventsAccepted    int
	EventsSuppressed  int
	DuplicatesDropped int
}

// ApplyEvents runs the full projection algorithm from spec §4.9. It is a
// pure function of (s, events, now); callers (Projection.Ingest) own
// swapping the result into place.
func ApplyEvents(s Snapshot, events []model.SourceEventV2, now time.Time, pollInterval time.Duration) (Snapshot, ApplyResult) {
	next := cloneSnapshot(s)
	result := ApplyResult{}

	groups := groupBySession(events)
	keys := make([]model.SessionKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, sessionKey := range keys {
		batch := groups[sessionKey]

		prevResolverState := resolverStateFor(next, sessionKey)
		out := resolver.Resolve(batch, now, prevResolverState, model.SourceRank)

		// Always store next_state, even with zero accepted events, so
		// det_last_seen is preserved.
		next.ResolverStates[sessionKey] = model.ResolverState{
			CurrentTier:           out.NextState.CurrentTier,
			DeterministicLastSeen: detLastSeenValue(out.NextState.DetLastSeen),
		}

		result.EventsAccepted += len(out.AcceptedEvents)
		result.EventsSuppressed += len(out.SuppressedEvents)
		result.DuplicatesDropped += out.DuplicatesDropped

		if len(out.AcceptedEvents) == 0 {
			continue
		}

		if projectSession(&next, sessionKey, out.AcceptedEvents, now) {
			result.SessionsChanged++
		}

		paneCount := projectPanes(&next, sessionKey, out.AcceptedEvents, now, pollInterval)
		result.PanesChanged += paneCount
	}

	return next, result
}

func groupBySession(events []model.SourceEventV2) map[model.SessionKey][]model.SourceEventV2 {
	groups := make(map[model.SessionKey][]model.SourceEventV2)
	for _, ev := range events {
		groups[ev.SessionKey] = append(groups[ev.SessionKey], ev)
	}
	return groups
}

func resolverStateFor(s Snapshot, key model.SessionKey) *resolver.State {
	rs, ok := s.ResolverStates[key]
	if !ok {
		return nil
	}
	st := resolver.State{CurrentTier: rs.CurrentTier}
	if !rs.DeterministicLastSeen.IsZero() {
		t := rs.DeterministicLastSeen
		st.DetLastSeen = &t
	}
	return &st
}

func detLastSeenValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// projectSession builds the session's runtime projection from the latest
// accepted event, bumping version and logging a change iff the monitored
// fields differ from the existing projection.
func projectSession(s *Snapshot, sessionKey model.SessionKey, accepted []model.SourceEventV2, now time.Time) bool {
	latest := argmaxByObservedAtThenEventId(accepted)

	next := model.SessionRuntimeState{
		SessionKey:            sessionKey,
		Presence:              model.PresenceManaged,
		EvidenceMode:          model.ModeForTier(latest.Tier),
		DeterministicLastSeen: s.ResolverStates[sessionKey].DeterministicLastSeen,
		WinnerTier:            latest.Tier,
		ActivityState:         ParseActivityState(latest.EventType),
		ActivitySource:        latest.SourceKind,
		UpdatedAt:             now,
	}

	existing, had := s.Sessions[sessionKey]
	changed := !had || existing.ActivityState != next.ActivityState ||
		existing.EvidenceMode != next.EvidenceMode ||
		existing.WinnerTier != next.WinnerTier ||
		existing.ActivitySource != next.ActivitySource

	s.Sessions[sessionKey] = next

	if changed {
		s.Version++
		s.ChangeLog = append(s.ChangeLog, model.StateChange{Version: s.Version, SessionKey: sessionKey, Kind: model.ChangeUpdated, Timestamp: now})
	}
	return changed
}

func argmaxByObservedAtThenEventId(events []model.SourceEventV2) model.SourceEventV2 {
	best := events[0]
	for _, ev := range events[1:] {
		if ev.ObservedAt.After(best.ObservedAt) {
			best = ev
			continue
		}
		if ev.ObservedAt.Equal(best.ObservedAt) && ev.EventId > best.EventId {
			best = ev
		}
	}
	return best
}

// projectPanes builds the pane-level projection for every distinct pane_id
// present in the accepted batch, returning how many panes changed. It also
// advances each pane's binding FSM (package binding, spec §4.1) and
// activity hysteresis FSM (package hysteresis, spec §4.3), both exclusively
// owned by this projection per spec §3's ownership clause.
func projectPanes(s *Snapshot, sessionKey model.SessionKey, accepted []model.SourceEventV2, now time.Time, pollInterval time.Duration) int {
	byPane := make(map[model.PaneId][]model.SourceEventV2)
	order := make([]model.PaneId, 0)
	for _, ev := range accepted {
		if ev.PaneId == nil {
			continue
		}
		if _, ok := byPane[*ev.PaneId]; !ok {
			order = append(order, *ev.PaneId)
		}
		byPane[*ev.PaneId] = append(byPane[*ev.PaneId], ev)
	}

	changedCount := 0
	for _, paneId := range order {
		events := byPane[paneId]
		existing, had := s.Panes[paneId]

		latest := argmaxByObservedAtThenEventId(events)
		birthTs := now
		if latest.PaneBirthTs != nil {
			birthTs = *latest.PaneBirthTs
		} else if had {
			birthTs = existing.Instance.BirthTs
		}
		generation := uint64(0)
		if latest.PaneGeneration != nil {
			generation = *latest.PaneGeneration
		}

		in := signature.Inputs{
			HasDeterministicFields: latest.Tier == model.Deterministic,
			DeterministicExpected:  had && existing.SignatureClass == model.SignatureDeterministic,
		}
		isWrapperCmd := false
		for _, ev := range events {
			if v, ok := ev.Payload["provider_hint"].(bool); ok && v {
				in.ProviderHint = true
			}
			if v, ok := ev.Payload["cmd_match"].(bool); ok && v {
				in.CmdMatch = true
			}
			if v, ok := ev.Payload["poller_match"].(bool); ok && v {
				in.PollerMatch = true
			}
			if v, ok := ev.Payload["capture_match"].(bool); ok && v {
				in.PollerMatch = true
			}
			if v, ok := ev.Payload["title_match"].(bool); ok && v {
				in.TitleMatch = true
			}
			if v, ok := ev.Payload["is_wrapper_cmd"].(bool); ok && v {
				isWrapperCmd = true
			}
		}
		in.IsWrapperCmd = isWrapperCmd
		hasAnySignal := in.ProviderHint || in.CmdMatch || in.PollerMatch || in.TitleMatch

		noAgentStreak := s.paneNoAgentStreaks[paneId]
		if latest.Tier == model.Heuristic && !hasAnySignal {
			noAgentStreak++
		} else {
			noAgentStreak = 0
		}
		in.NoAgentStreak = noAgentStreak

		detLastSeen := s.ResolverStates[sessionKey].DeterministicLastSeen
		var detLastSeenPtr *time.Time
		if !detLastSeen.IsZero() {
			detLastSeenPtr = &detLastSeen
		}
		in.DeterministicFreshActive = resolver.Classify(detLastSeenPtr, now) == resolver.Fresh

		res, err := signature.Classify(in)
		reason := ""
		class := model.SignatureNone
		confidence := 0.0
		if err != nil {
			reason = errReason(err)
		} else {
			class = res.Class
			confidence = res.Confidence
			reason = res.Reason
		}

		observed := ParseActivityState(latest.EventType)

		prevBinding, hadBinding := s.paneBindings[paneId]
		if !hadBinding {
			prevBinding = model.PaneBinding{Instance: model.PaneInstanceId{PaneId: paneId, Generation: generation, BirthTs: birthTs}}
		}
		nextBinding := applyBindingForTick(prevBinding, sessionKey, latest.Tier, generation, birthTs, hasAnySignal, confidence, detLastSeenPtr, now)
		s.paneBindings[paneId] = nextBinding

		prevHyst := s.paneHysteresis[paneId]
		nextHyst := hysteresis.Apply(prevHyst, hysteresis.Input{
			Observed:         observed,
			HasAgentSignal:   hasAnySignal || latest.Tier == model.Deterministic,
			PollIntervalSecs: pollInterval,
			Now:              now,
		})
		s.paneHysteresis[paneId] = nextHyst

		sessKey := sessionKey
		next := model.PaneRuntimeState{
			Instance:            nextBinding.Instance,
			SignatureClass:      class,
			SignatureConfidence: confidence,
			SignatureReason:     reason,
			EvidenceMode:        model.ModeForTier(latest.Tier),
			ActivityState:       nextHyst.Confirmed,
			Provider:            latest.Provider,
			SessionKey:          &sessKey,
			Binding:             nextBinding.BindingState,
			UpdatedAt:           now,
		}

		changed := !had ||
			existing.SignatureClass != next.SignatureClass ||
			existing.EvidenceMode != next.EvidenceMode ||
			!floatEqualEps(existing.SignatureConfidence, next.SignatureConfidence, 1e-9) ||
			existing.ActivityState != next.ActivityState ||
			existing.Provider != next.Provider ||
			existing.Binding != next.Binding

		s.Panes[paneId] = next
		s.paneNoAgentStreaks[paneId] = noAgentStreak

		if changed {
			s.Version++
			pid := paneId
			kind := model.ChangeUpdated
			if !had {
				kind = model.ChangeAdded
			}
			s.ChangeLog = append(s.ChangeLog, model.StateChange{Version: s.Version, SessionKey: sessionKey, PaneId: &pid, Kind: kind, Timestamp: now})
			changedCount++
		}
	}
	return changedCount
}

// applyBindingForTick folds one tick's evidence into the pane binding FSM
// (package binding, spec §4.1): pane-reuse detection first, then the
// freshness-transition events, then the detection/no-detection event for
// this tick, then an AgentObserved timestamp bump when any signal fired.
func applyBindingForTick(b model.PaneBinding, sessionKey model.SessionKey, tier model.EvidenceTier, generation uint64, birthTs time.Time, hasAnySignal bool, confidence float64, detLastSeen *time.Time, now time.Time) model.PaneBinding {
	next := b

	if generation > next.Instance.Generation {
		next = binding.Apply(next, binding.Event{Kind: binding.PaneReused, At: now, BirthTs: birthTs})
	}

	freshness := resolver.Classify(detLastSeen, now)
	if next.BindingState == model.ManagedDeterministicFresh && freshness != resolver.Fresh {
		next = binding.Apply(next, binding.Event{Kind: binding.FreshnessExpired, At: now})
	} else if next.BindingState == model.ManagedDeterministicStale && freshness == resolver.Fresh {
		next = binding.Apply(next, binding.Event{Kind: binding.DeterministicRecovered, At: now})
	}

	switch {
	case tier == model.Deterministic:
		next = binding.Apply(next, binding.Event{Kind: binding.DeterministicHandshake, SessionKey: sessionKey, At: now})
	case hasAnySignal:
		next = binding.Apply(next, binding.Event{Kind: binding.HeuristicDetected, SessionKey: sessionKey, Confidence: confidence, At: now})
	default:
		next = binding.Apply(next, binding.Event{Kind: binding.NoAgentObserved, At: now})
	}

	if tier == model.Deterministic || hasAnySignal {
		next = binding.Apply(next, binding.Event{Kind: binding.AgentObserved, At: now})
	}

	return next
}

func floatEqualEps(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func errReason(err error) string {
	if err == signature.ErrInconclusive {
		return "inconclusive"
	}
	return err.Error()
}

// ParseActivityState maps an event_type string to ActivityState, per spec
// §4.9's activity-event parsing rules. Only "activity.*" and
// "lifecycle.*" prefixes are recognized; anything else (e.g. a raw
// "thread.idle" from package codex) falls through to Unknown rather than
// matching on suffix alone.
func ParseActivityState(eventType string) model.ActivityState {
	var rest string
	switch {
	case strings.HasPrefix(eventType, "activity."):
		rest = strings.TrimPrefix(eventType, "activity.")
	case strings.HasPrefix(eventType, "lifecycle."):
		rest = strings.TrimPrefix(eventType, "lifecycle.")
	default:
		return model.Unknown
	}
	switch {
	case rest == "start" || strings.HasSuffix(rest, "running"):
		return model.Running
	case strings.HasSuffix(rest, "idle") || strings.HasSuffix(rest, "end") || strings.HasSuffix(rest, "stop"):
		return model.Idle
	case strings.HasSuffix(rest, "waiting_input"):
		return model.WaitingInput
	case strings.HasSuffix(rest, "waiting_approval"):
		return model.WaitingApproval
	case strings.HasSuffix(rest, "error"):
		return model.Error
	default:
		return model.Unknown
	}
}

// Projection is the stateful, mutex-guarded owner of one Snapshot.
type Projection struct {
	mu           sync.RWMutex
	snapshot     Snapshot
	pollInterval time.Duration
}

// New creates an empty Projection using DefaultPollIntervalSecs as the
// hysteresis dwell-time baseline.
func New() *Projection {
	return NewWithPollInterval(DefaultPollIntervalSecs)
}

// NewWithPollInterval creates an empty Projection using the given poll
// interval for the hysteresis reducer's dwell-time rules (spec §4.3),
// matching the caller's actual configured poller.interval
// (internal/config.Config.Poller.Interval).
func NewWithPollInterval(pollInterval time.Duration) *Projection {
	return &Projection{
		pollInterval: pollInterval,
		snapshot: Snapshot{
			ResolverStates:     make(map[model.SessionKey]model.ResolverState),
			Sessions:           make(map[model.SessionKey]model.SessionRuntimeState),
			Panes:              make(map[model.PaneId]model.PaneRuntimeState),
			paneNoAgentStreaks: make(map[model.PaneId]uint32),
			paneBindings:       make(map[model.PaneId]model.PaneBinding),
			paneHysteresis:     make(map[model.PaneId]hysteresis.State),
		},
	}
}

// Ingest applies a batch of events, swapping the resulting snapshot into
// place under the write lock.
func (p *Projection) Ingest(events []model.SourceEventV2, now time.Time) ApplyResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, result := ApplyEvents(p.snapshot, events, now, p.pollInterval)
	p.snapshot = next
	return result
}

// SyncPaneTopology reconciles the projection's pane set against the set of
// pane ids a source server currently observes live (spec §6's pane_added /
// pane_removed topology notifications have no corresponding apply_events
// trigger in spec §4.9, since topology is driven by the runtime scaffolding's
// tmux scan, not by any accepted event). Panes present in the projection but
// absent from activePaneIds are dropped and logged as ChangeRemoved; no
// ChangeAdded entry is produced here since a pane's first sighting is
// already logged as ChangeAdded by projectPanes on its first accepted event.
func (p *Projection) SyncPaneTopology(activePaneIds []model.PaneId, now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make(map[model.PaneId]bool, len(activePaneIds))
	for _, id := range activePaneIds {
		live[id] = true
	}

	removed := 0
	ids := make([]model.PaneId, 0, len(p.snapshot.Panes))
	for id := range p.snapshot.Panes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if live[id] {
			continue
		}
		pane := p.snapshot.Panes[id]
		delete(p.snapshot.Panes, id)
		delete(p.snapshot.paneNoAgentStreaks, id)
		delete(p.snapshot.paneBindings, id)
		delete(p.snapshot.paneHysteresis, id)

		p.snapshot.Version++
		pid := id
		sessionKey := model.SessionKey("")
		if pane.SessionKey != nil {
			sessionKey = *pane.SessionKey
		}
		p.snapshot.ChangeLog = append(p.snapshot.ChangeLog, model.StateChange{
			Version:    p.snapshot.Version,
			SessionKey: sessionKey,
			PaneId:     &pid,
			Kind:       model.ChangeRemoved,
			Timestamp:  now,
		})
		removed++
	}
	return removed
}

// ListPanes returns every pane's runtime state, sorted by pane_id.
func (p *Projection) ListPanes() []model.PaneRuntimeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.PaneRuntimeState, 0, len(p.snapshot.Panes))
	for _, v := range p.snapshot.Panes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance.PaneId < out[j].Instance.PaneId })
	return out
}

// ListSessions returns every session's runtime state, sorted by session_key.
func (p *Projection) ListSessions() []model.SessionRuntimeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.SessionRuntimeState, 0, len(p.snapshot.Sessions))
	for _, v := range p.snapshot.Sessions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionKey < out[j].SessionKey })
	return out
}

// ChangesSince returns every change with version > v, via binary
// partition on the monotonically ordered change log.
func (p *Projection) ChangesSince(v uint64) []model.StateChange {
	p.mu.RLock()
	defer p.mu.RUnlock()
	log := p.snapshot.ChangeLog
	idx := sort.Search(len(log), func(i int) bool { return log[i].Version > v })
	out := make([]model.StateChange, len(log)-idx)
	copy(out, log[idx:])
	return out
}

// TrimChangesBefore prunes acknowledged log entries with version <= v.
// Callers must coordinate the trim point across all subscribers.
func (p *Projection) TrimChangesBefore(v uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	log := p.snapshot.ChangeLog
	idx := sort.Search(len(log), func(i int) bool { return log[i].Version > v })
	p.snapshot.ChangeLog = append([]model.StateChange(nil), log[idx:]...)
}

// Version returns the projection's current monotonic version.
func (p *Projection) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Version
}
