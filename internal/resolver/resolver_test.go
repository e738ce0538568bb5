package resolver

import (
	"testing"
	"time"

	"github.com/g960059/agtmux/internal/model"
)

func det(id string, at time.Time) model.SourceEventV2 {
	return model.NewSourceEvent(model.EventId(id), model.ProviderCodex, model.SourceKindCodexAppserver, at, "s1", "activity.running", nil, 1.0)
}

func poll(id string, at time.Time) model.SourceEventV2 {
	return model.NewSourceEvent(model.EventId(id), model.ProviderCodex, model.SourceKindPoller, at, "s1", "activity.running", nil, 0.8)
}

func TestFreshnessBoundaries(t *testing.T) {
	now := time.Unix(1000, 0)
	cases := []struct {
		delta time.Duration
		want  Freshness
	}{
		{FreshThreshold, Fresh},
		{FreshThreshold + time.Second, Stale},
		{DownThreshold, Stale},
		{DownThreshold + time.Second, Down},
	}
	for _, c := range cases {
		seen := now.Add(-c.delta)
		got := Classify(&seen, now)
		if got != c.want {
			t.Fatalf("delta=%v: got %v want %v", c.delta, got, c.want)
		}
	}
}

func TestDuplicateDrop(t *testing.T) {
	now := time.Unix(0, 10)
	e1 := det("e1", now)
	e2 := det("e1", now) // exact dup (same provider/session/id)
	e3 := e1
	e3.Provider = model.ProviderClaude // same id, different provider: not a dup
	e3.SourceKind = model.SourceKindClaudeHooks
	e3.Tier = model.Deterministic

	out := Resolve([]model.SourceEventV2{e1, e2, e3}, now, nil, nil)
	if out.DuplicatesDropped != 1 {
		t.Fatalf("expected 1 duplicate dropped, got %d", out.DuplicatesDropped)
	}
	if len(out.AcceptedEvents) != 2 {
		t.Fatalf("expected 2 accepted, got %d", len(out.AcceptedEvents))
	}
}

func TestEmptyBatchPreservesDetLastSeenAndStaysDeterministic(t *testing.T) {
	now := time.Unix(100, 0)
	prevSeen := now.Add(-1 * time.Second)
	prev := &State{CurrentTier: model.Deterministic, DetLastSeen: &prevSeen}

	out := Resolve(nil, now, prev, nil)
	if out.Result.WinnerTier != model.Deterministic || out.Result.IsFallback {
		t.Fatalf("got %+v", out.Result)
	}
	if out.Result.RePromoted {
		t.Fatalf("should not flag re-promotion when already deterministic")
	}
	if out.NextState.DetLastSeen == nil || !out.NextState.DetLastSeen.Equal(prevSeen) {
		t.Fatalf("det_last_seen must be preserved across empty batches")
	}
}

func TestDetLastSeenNeverRegresses(t *testing.T) {
	now := time.Unix(100, 0)
	newer := now.Add(-50 * time.Second)
	prev := &State{DetLastSeen: &newer}

	older := now.Add(-90 * time.Second)
	out := Resolve([]model.SourceEventV2{det("e1", older)}, now, prev, nil)
	if !out.NextState.DetLastSeen.Equal(newer) {
		t.Fatalf("det_last_seen regressed: got %v want %v", out.NextState.DetLastSeen, newer)
	}
}

// Seed scenario 2: poller alongside a stale deterministic event; stale det
// does not rank-suppress the poller because rank suppression only applies
// within the winner tier.
func TestPollerAlongsideStaleDeterministic(t *testing.T) {
	now := time.Unix(1000, 0)
	staleDet := det("d1", now.Add(-5*time.Second))
	freshPoll := poll("p1", now.Add(-1*time.Second))

	out := Resolve([]model.SourceEventV2{staleDet, freshPoll}, now, nil, nil)
	if out.Result.WinnerTier != model.Heuristic || !out.Result.IsFallback {
		t.Fatalf("expected heuristic fallback, got %+v", out.Result)
	}
	if len(out.AcceptedEvents) != 1 || out.AcceptedEvents[0].EventId != "p1" {
		t.Fatalf("expected only poller accepted, got %+v", out.AcceptedEvents)
	}
	if len(out.SuppressedEvents) != 1 || out.SuppressedEvents[0].EventId != "d1" {
		t.Fatalf("expected det event in suppressed, got %+v", out.SuppressedEvents)
	}
}

// Seed scenario 1: deterministic -> stale -> recovery with re-promotion.
func TestDeterministicStaleRecoverySequence(t *testing.T) {
	t0 := time.Unix(0, 0)

	out1 := Resolve([]model.SourceEventV2{det("d0", t0)}, t0, nil, nil)
	if out1.Result.WinnerTier != model.Deterministic || out1.Result.RePromoted {
		t.Fatalf("t0: got %+v", out1.Result)
	}

	t5 := t0.Add(5 * time.Second)
	pollEvt := poll("p1", t5)
	out2 := Resolve([]model.SourceEventV2{pollEvt}, t5, &out1.NextState, nil)
	if out2.Result.WinnerTier != model.Heuristic || !out2.Result.IsFallback {
		t.Fatalf("t5: expected heuristic fallback, got %+v", out2.Result)
	}

	t6 := t0.Add(6 * time.Second)
	out3 := Resolve([]model.SourceEventV2{det("d1", t6)}, t6, &out2.NextState, nil)
	if out3.Result.WinnerTier != model.Deterministic || !out3.Result.RePromoted {
		t.Fatalf("t6: expected re-promotion, got %+v", out3.Result)
	}
}

func TestRankSuppressionWithinWinnerTier(t *testing.T) {
	now := time.Unix(0, 0)
	best := det("d1", now)
	worse := det("d2", now)
	worse.SourceKind = model.SourceKindPoller
	worse.Tier = model.Deterministic // contrived: same tier, worse rank

	out := Resolve([]model.SourceEventV2{best, worse}, now, nil, nil)
	if len(out.AcceptedEvents) != 1 || out.AcceptedEvents[0].EventId != "d1" {
		t.Fatalf("expected only best-ranked event accepted, got %+v", out.AcceptedEvents)
	}
}
