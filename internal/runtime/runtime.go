// Package runtime wires the pull-based event-flow architecture from spec
// §5 together: one goroutine per Source Server (poller, codex), one for
// the Gateway's per-source ingest, and one for the Daemon's ingest from
// the Gateway — each a cooperative task pulling from the last, mirroring
// the teacher's Monitor.Run goroutine-per-concern startup
// (internal/monitor/monitor.go) generalized from a single poll loop into
// the spec's Source -> Gateway -> Daemon pipeline.
package runtime

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/g960059/agtmux/internal/codex"
	"github.com/g960059/agtmux/internal/config"
	"github.com/g960059/agtmux/internal/daemon"
	"github.com/g960059/agtmux/internal/gateway"
	"github.com/g960059/agtmux/internal/health"
	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/poller"
	"github.com/g960059/agtmux/internal/registry"
	"github.com/g960059/agtmux/internal/supervisor"
	"github.com/g960059/agtmux/internal/wire"
)

const (
	sourceIdPoller = registry.SourceId("poller")
	sourceIdCodex  = registry.SourceId("codex")

	// protocolVersion is the single version this runtime's sources and
	// registry agree on; spec §4.7 leaves multi-version negotiation open,
	// so both ends are pinned to 1 until a second source version exists.
	protocolVersion = 1
)

// knownProviders is the static provider-detection table the poller runs
// against every tick, grounded on spec §4.11's named providers (claude,
// codex — gemini is an explicit Non-goal).
var knownProviders = []poller.ProviderDef{
	{
		Name:          "claude",
		ProcessHint:   "claude",
		CmdTokens:     []string{"claude"},
		TitleTokens:   []string{"claude"},
		CaptureTokens: []string{"Claude"},
	},
	{
		Name:          "codex",
		ProcessHint:   "codex",
		CmdTokens:     []string{"codex"},
		TitleTokens:   []string{"codex"},
		CaptureTokens: []string{"Codex"},
	},
}

// activityPatterns is the poller's default per-capture-line activity
// classifier table (spec §4.3, §4.11): the ordered rules ClassifyActivity
// scans against a pane's captured lines. Patterns are intentionally
// provider-agnostic — the poller classifies activity from generic CLI
// agent chrome (spinners, prompts), not per-provider wording.
var activityPatterns = []poller.ActivityPattern{
	{Pattern: regexp.MustCompile(`(?i)waiting for (your )?approval`), State: model.WaitingApproval},
	{Pattern: regexp.MustCompile(`(?i)allow this (command|action)\?`), State: model.WaitingApproval},
	{Pattern: regexp.MustCompile(`(?i)\(y/n\)`), State: model.WaitingApproval},
	{Pattern: regexp.MustCompile(`(?i)^(>|│)\s*$`), State: model.WaitingInput},
	{Pattern: regexp.MustCompile(`(?i)human:\s*$`), State: model.WaitingInput},
	{Pattern: regexp.MustCompile(`(?i)(error|exception|traceback|panic:)`), State: model.Error},
	{Pattern: regexp.MustCompile(`(?i)(esc to interrupt|thinking|running|working)`), State: model.Running},
	{Pattern: regexp.MustCompile(`(?i)\$\s*$`), State: model.Idle},
}

// reverseLines returns lines in newest-first order so ClassifyActivity's
// first-match-wins scan favors the pane's most recent chrome over stale
// scrollback from earlier in the capture window.
func reverseLines(lines []string) []string {
	reversed := make([]string, len(lines))
	for i, l := range lines {
		reversed[len(lines)-1-i] = l
	}
	return reversed
}

// Runtime owns every stateful component spec §5's pipeline needs outside
// the daemon projection itself: the Source Registry, per-source Health
// and Supervisor trackers, the Gateway buffer, and each Source Server's
// own event store.
type Runtime struct {
	cfg        *config.Config
	projection *daemon.Projection
	hub        *wire.Hub

	reg *registry.Registry

	mu                 sync.Mutex
	healthTrackers     map[registry.SourceId]health.Tracker
	supervisorTrackers map[registry.SourceId]supervisor.Tracker
	gatewayTrackers    map[registry.SourceId]*gateway.Tracker
	buffer             *gateway.Buffer
	daemonCursor       string
	activePaneIds      []model.PaneId

	pollerStore *poller.Store
	codexStore  *codex.Store

	threadBindings   *codex.ThreadBindings
	seenFingerprints map[model.PaneId]*codex.SeenFingerprints

	pollSeq  int
	codexSeq int
}

// NewRuntime builds a Runtime over the given config, wiring its health
// hook into hub so list_source_health (spec §7) reflects live state.
func NewRuntime(cfg *config.Config, projection *daemon.Projection, hub *wire.Hub) *Runtime {
	rt := &Runtime{
		cfg:                cfg,
		projection:         projection,
		hub:                hub,
		reg:                registry.New(protocolVersion, protocolVersion),
		healthTrackers:     make(map[registry.SourceId]health.Tracker),
		supervisorTrackers: make(map[registry.SourceId]supervisor.Tracker),
		gatewayTrackers:    make(map[registry.SourceId]*gateway.Tracker),
		buffer:             &gateway.Buffer{},
		pollerStore:        &poller.Store{},
		codexStore:         &codex.Store{},
		threadBindings:     codex.NewThreadBindings(),
		seenFingerprints:   make(map[model.PaneId]*codex.SeenFingerprints),
	}
	rt.reg.SetStalenessWindow(cfg.Health.ProbeInterval * 3)
	hub.SetHealthHook(rt.SourceHealthSnapshot)
	return rt
}

// Run registers the enabled sources and starts their pipeline goroutines,
// returning once ctx is cancelled.
func (rt *Runtime) Run(ctx context.Context) {
	now := time.Now()
	if rt.cfg.Sources.Poller {
		rt.admit(sourceIdPoller, "poller", now)
		go rt.pollerSourceLoop(ctx)
	}
	if rt.cfg.Sources.CodexAppserver {
		rt.admit(sourceIdCodex, "codex", now)
		go rt.codexSourceLoop(ctx)
	}
	go rt.gatewayIngestLoop(ctx)
	go rt.daemonIngestLoop(ctx)
	<-ctx.Done()
}

func (rt *Runtime) admit(id registry.SourceId, kind string, now time.Time) {
	rt.reg.HandleHello(registry.HelloRequest{SourceId: id, SourceKind: kind, ProtocolVersion: protocolVersion}, now)
	rt.mu.Lock()
	rt.healthTrackers[id] = health.Tracker{FailureThreshold: rt.cfg.Health.FailureThreshold, RecoveryThreshold: rt.cfg.Health.RecoveryThreshold}
	rt.supervisorTrackers[id] = supervisor.Tracker{}
	rt.gatewayTrackers[id] = &gateway.Tracker{}
	rt.mu.Unlock()
}

// recordProbe folds a probe outcome into a source's health and supervisor
// trackers (spec §4.4, §4.10), heartbeating the registry on success.
func (rt *Runtime) recordProbe(id registry.SourceId, signal health.ProbeSignal, now time.Time) {
	rt.mu.Lock()
	next := health.Apply(rt.healthTrackers[id], signal)
	rt.healthTrackers[id] = next
	if signal == health.Success {
		rt.supervisorTrackers[id] = supervisor.RecordSuccess()
	} else {
		policy := supervisor.RestartPolicy{
			InitialBackoff: rt.cfg.Supervisor.InitialBackoff,
			Multiplier:     rt.cfg.Supervisor.Multiplier,
			MaxBackoff:     rt.cfg.Supervisor.MaxBackoff,
			JitterPct:      rt.cfg.Supervisor.JitterPct,
			FailureBudget:  rt.cfg.Supervisor.FailureBudget,
			BudgetWindow:   rt.cfg.Supervisor.BudgetWindow,
			HoldDownFor:    rt.cfg.Supervisor.HoldDownFor,
		}
		tr, _ := supervisor.RecordFailure(rt.supervisorTrackers[id], policy, now)
		rt.supervisorTrackers[id] = tr
	}
	rt.mu.Unlock()
	if signal == health.Success {
		rt.reg.Heartbeat(id, now)
	}
}

// SourceHealthSnapshot joins the registry's admission state with each
// source's health tracker, implementing spec §7's list_source_health.
func (rt *Runtime) SourceHealthSnapshot() []wire.SourceHealthEntry {
	entries := rt.reg.Snapshot()
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make([]wire.SourceHealthEntry, 0, len(entries))
	for _, e := range entries {
		snap := rt.healthTrackers[e.Id].Snapshot()
		out = append(out, wire.SourceHealthEntry{
			SourceId:             string(e.Id),
			SourceKind:           e.SourceKind,
			RegistryStatus:       registryStatusString(e.Status),
			HealthState:          snap.State.String(),
			ConsecutiveFailures:  snap.ConsecutiveFailures,
			ConsecutiveSuccesses: snap.ConsecutiveSuccesses,
		})
	}
	return out
}

func registryStatusString(s registry.Status) string {
	switch s {
	case registry.Active:
		return "Active"
	case registry.Stale:
		return "Stale"
	case registry.Revoked:
		return "Revoked"
	default:
		return "Pending"
	}
}

// pollerSourceLoop is the heuristic tmux poller Source Server: it scans
// live panes, classifies activity, and appends events to pollerStore for
// the gateway ingest loop to pull. Also publishes the currently observed
// pane id set, which the daemon ingest loop uses to evict topology no
// longer live (spec §6's pane_removed).
func (rt *Runtime) pollerSourceLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			panes, err := poller.ListPanes()
			if err != nil {
				rt.recordProbe(sourceIdPoller, health.Error, now)
				continue
			}

			ids := make([]model.PaneId, 0, len(panes))
			var events []model.SourceEventV2
			for _, p := range panes {
				ids = append(ids, model.PaneId(p.Target))

				lines, _ := poller.CapturePane(p.Target, rt.cfg.Poller.CaptureLines)
				snap := poller.PaneSnapshot{
					PaneId:       p.Target,
					PaneTitle:    p.Title,
					CurrentCmd:   p.CurrentCmd,
					CaptureLines: lines,
					CapturedAt:   now.Unix(),
				}
				if hint, ok := poller.ProcessHint(int32(p.PanePID)); ok {
					snap.ProcessHint = hint
				}

				det, found := poller.DetectBest(knownProviders, snap)
				if !found {
					continue
				}
				activity, _ := poller.ClassifyActivity(activityPatterns, reverseLines(snap.CaptureLines))
				rt.pollSeq++
				events = append(events, poller.BuildEvent(snap, det, activity, now, rt.pollSeq))
			}

			rt.mu.Lock()
			rt.activePaneIds = ids
			rt.mu.Unlock()

			if len(events) > 0 {
				rt.pollerStore.Append(events...)
			}
			rt.recordProbe(sourceIdPoller, health.Success, now)
		}
	}
}

// codexSourceLoop is the deterministic Codex Source Server (spec §4.12):
// it first tries a live NDJSON-over-stdio app-server connection, and
// falls back to scanning the same tmux captures for structured NDJSON
// lines when no app-server is reachable.
func (rt *Runtime) codexSourceLoop(ctx context.Context) {
	conn, err := codex.Dial(ctx, "codex", []string{"app-server"})
	if err != nil {
		log.Printf("codex: app-server unavailable, using capture fallback: %v", err)
		conn = nil
	}
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	ticker := time.NewTicker(rt.cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if conn != nil {
				if err := rt.pollCodexAppserver(conn, now); err != nil {
					rt.recordProbe(sourceIdCodex, health.Error, now)
					continue
				}
				rt.recordProbe(sourceIdCodex, health.Success, now)
				continue
			}
			rt.pollCodexCaptureFallback(now)
			rt.recordProbe(sourceIdCodex, health.Success, now)
		}
	}
}

func (rt *Runtime) pollCodexAppserver(conn *codex.Conn, now time.Time) error {
	resp, err := conn.Call("thread/list", struct{}{})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	var result codex.ThreadListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return err
	}

	var events []model.SourceEventV2
	for _, th := range result.Threads {
		if codex.ShouldIgnoreThread(th.Status) {
			continue
		}
		var pane *codex.PaneRef
		if ref, ok := rt.threadBindings.Lookup(th.ThreadId); ok {
			pane = &ref
		}
		rt.codexSeq++
		events = append(events, codex.BuildThreadEvent(th.ThreadId, th.Status, pane, false, now, rt.codexSeq))
	}
	if len(events) > 0 {
		rt.codexStore.Append(events...)
	}
	return nil
}

// pollCodexCaptureFallback scans the same panes the poller observes for
// NDJSON lines the codex CLI itself writes to its own pane (spec §4.12.2).
func (rt *Runtime) pollCodexCaptureFallback(now time.Time) {
	panes, err := poller.ListPanes()
	if err != nil || len(panes) == 0 {
		return
	}

	var events []model.SourceEventV2
	for _, p := range panes {
		paneId := model.PaneId(p.Target)
		lines, _ := poller.CapturePane(p.Target, rt.cfg.Poller.CaptureLines)

		rt.mu.Lock()
		seen, ok := rt.seenFingerprints[paneId]
		if !ok {
			seen = codex.NewSeenFingerprints()
			rt.seenFingerprints[paneId] = seen
		}
		rt.mu.Unlock()

		for _, line := range lines {
			obj, ok := codex.ParseCaptureLine(line)
			if !ok {
				continue
			}
			if seen.CheckAndMark(codex.Fingerprint(line)) {
				continue
			}
			threadId, _ := obj["thread_id"].(string)
			statusStr, _ := obj["status"].(string)
			if threadId == "" || statusStr == "" {
				continue
			}
			status := codex.ThreadStatus(statusStr)
			ref := codex.PaneRef{PaneId: p.Target, BirthTs: now}
			rt.threadBindings.Bind(threadId, ref)
			rt.codexSeq++
			events = append(events, codex.BuildThreadEvent(threadId, status, &ref, false, now, rt.codexSeq))
		}
	}
	if len(events) > 0 {
		rt.codexStore.Append(events...)
	}
}

// gatewayIngestLoop pulls every enabled source's pending events and
// merges them into the shared Gateway buffer (spec §4.8), one tick per
// poll interval so it never runs ahead of the sources it drains.
func (rt *Runtime) gatewayIngestLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if rt.cfg.Sources.Poller {
				srcHealth := rt.healthState(sourceIdPoller)
				rt.ingestFromStore(sourceIdPoller, now, func(cursor string) gateway.SourceResponse {
					resp := rt.pollerStore.PullEvents(poller.PullRequest{Cursor: cursor, Limit: 500})
					return gateway.SourceResponse{Events: resp.Events, NextCursor: resp.NextCursor, HeartbeatTs: now, SourceHealth: srcHealth}
				})
			}
			if rt.cfg.Sources.CodexAppserver {
				srcHealth := rt.healthState(sourceIdCodex)
				rt.ingestFromStore(sourceIdCodex, now, func(cursor string) gateway.SourceResponse {
					resp := rt.codexStore.PullEvents(codex.PullRequest{Cursor: cursor, Limit: 500})
					return gateway.SourceResponse{Events: resp.Events, NextCursor: resp.NextCursor, HeartbeatTs: now, SourceHealth: srcHealth}
				})
			}
		}
	}
}

func (rt *Runtime) healthState(id registry.SourceId) health.State {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.healthTrackers[id].State
}

func (rt *Runtime) ingestFromStore(id registry.SourceId, now time.Time, pull func(cursor string) gateway.SourceResponse) {
	rt.mu.Lock()
	tr := rt.gatewayTrackers[id]
	resp := pull(tr.Cursor)
	rt.buffer.IngestSourceResponse(tr, resp)
	rt.mu.Unlock()
}

// daemonIngestLoop pulls merged events out of the Gateway, applies them
// to the daemon projection, reconciles pane topology, and notifies the
// wire hub — mirroring spec §5's "one task for Daemon ingest (awaits
// Gateway pull_events)".
func (rt *Runtime) daemonIngestLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()

			rt.mu.Lock()
			cursor := rt.daemonCursor
			panesLive := append([]model.PaneId(nil), rt.activePaneIds...)
			resp := rt.buffer.PullEvents(gateway.PullRequest{Cursor: cursor, Limit: 500})
			rt.daemonCursor = resp.NextCursor
			rt.buffer.CommitCursor(resp.NextCursor)
			rt.mu.Unlock()

			changed := false
			if len(resp.Events) > 0 {
				rt.projection.Ingest(resp.Events, now)
				changed = true
			}
			if len(panesLive) > 0 && rt.projection.SyncPaneTopology(panesLive, now) > 0 {
				changed = true
			}
			if changed {
				rt.hub.NotifyChanged()
			}
		}
	}
}
