package runtime

import (
	"testing"
	"time"

	"github.com/g960059/agtmux/internal/health"
	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/poller"
	"github.com/g960059/agtmux/internal/registry"
)

func TestReverseLinesPutsNewestFirst(t *testing.T) {
	got := reverseLines([]string{"a", "b", "c"})
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRegistryStatusStringCoversEveryStatus(t *testing.T) {
	cases := map[registry.Status]string{
		registry.Pending: "Pending",
		registry.Active:  "Active",
		registry.Stale:   "Stale",
		registry.Revoked: "Revoked",
	}
	for status, want := range cases {
		if got := registryStatusString(status); got != want {
			t.Fatalf("status %v: got %q want %q", status, got, want)
		}
	}
}

func TestActivityPatternsClassifyRunningOverIdle(t *testing.T) {
	state, _ := poller.ClassifyActivity(activityPatterns, reverseLines([]string{"$ ", "esc to interrupt"}))
	if state != model.Running {
		t.Fatalf("expected Running to win over a stale idle prompt, got %v", state)
	}
}

func TestKnownProvidersDetectClaudeAndCodex(t *testing.T) {
	claude, found := poller.DetectBest(knownProviders, poller.PaneSnapshot{ProcessHint: "claude"})
	if !found || claude.Provider != "claude" {
		t.Fatalf("expected claude detection, got %+v", claude)
	}
	codexRes, found := poller.DetectBest(knownProviders, poller.PaneSnapshot{ProcessHint: "codex"})
	if !found || codexRes.Provider != "codex" {
		t.Fatalf("expected codex detection, got %+v", codexRes)
	}
}

func TestSourceHealthSnapshotJoinsRegistryAndHealth(t *testing.T) {
	cfg := &Runtime{
		reg:            registry.New(1, 1),
		healthTrackers: map[registry.SourceId]health.Tracker{},
	}
	cfg.reg.HandleHello(registry.HelloRequest{SourceId: sourceIdPoller, SourceKind: "poller", ProtocolVersion: 1}, time.Unix(0, 0))
	cfg.healthTrackers[sourceIdPoller] = health.Tracker{State: health.Healthy, ConsecutiveSuccesses: 3}

	entries := cfg.SourceHealthSnapshot()
	if len(entries) != 1 {
		t.Fatalf("got %+v", entries)
	}
	if entries[0].SourceId != "poller" || entries[0].HealthState != "Healthy" || entries[0].ConsecutiveSuccesses != 3 {
		t.Fatalf("got %+v", entries[0])
	}
	if entries[0].RegistryStatus != "Active" {
		t.Fatalf("got %+v", entries[0])
	}
}
