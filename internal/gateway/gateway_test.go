package gateway

import (
	"testing"
	"time"

	"github.com/g960059/agtmux/internal/health"
	"github.com/g960059/agtmux/internal/model"
)

func ev(id string, at time.Time) model.SourceEventV2 {
	return model.NewSourceEvent(model.EventId(id), model.ProviderCodex, model.SourceKindCodexAppserver, at, "s1", "activity.running", nil, 1.0)
}

func TestIngestOverwritesCursorUnconditionally(t *testing.T) {
	var buf Buffer
	var tr Tracker
	t0 := time.Unix(0, 0)
	buf.IngestSourceResponse(&tr, SourceResponse{NextCursor: "poller:5", HeartbeatTs: t0, SourceHealth: health.Healthy})
	if tr.Cursor != "poller:5" {
		t.Fatalf("got %q", tr.Cursor)
	}
	buf.IngestSourceResponse(&tr, SourceResponse{NextCursor: "poller:5", HeartbeatTs: t0.Add(time.Second), SourceHealth: health.Healthy})
	if tr.Cursor != "poller:5" {
		t.Fatalf("caught-up source should keep its cursor, got %q", tr.Cursor)
	}
}

func TestIngestStableSortsByObservedAt(t *testing.T) {
	var buf Buffer
	t0 := time.Unix(100, 0)
	// Same timestamp for e1 and e2: ingest order must be preserved.
	e1 := ev("e1", t0)
	e2 := ev("e2", t0)
	e3 := ev("e3", t0.Add(-time.Second))

	var tr Tracker
	buf.IngestSourceResponse(&tr, SourceResponse{Events: []model.SourceEventV2{e1, e2}})
	buf.IngestSourceResponse(&tr, SourceResponse{Events: []model.SourceEventV2{e3}})

	resp := buf.PullEvents(PullRequest{Limit: 100})
	if len(resp.Events) != 3 {
		t.Fatalf("got %d events", len(resp.Events))
	}
	if resp.Events[0].EventId != "e3" {
		t.Fatalf("earliest timestamp should come first, got %v", resp.Events[0].EventId)
	}
	if resp.Events[1].EventId != "e1" || resp.Events[2].EventId != "e2" {
		t.Fatalf("ties must preserve ingest order, got %v, %v", resp.Events[1].EventId, resp.Events[2].EventId)
	}
}

func TestPullEventsComplementNoRedeliveryNoSkip(t *testing.T) {
	var buf Buffer
	var tr Tracker
	t0 := time.Unix(0, 0)
	events := []model.SourceEventV2{ev("e1", t0), ev("e2", t0.Add(time.Second)), ev("e3", t0.Add(2 * time.Second))}
	buf.IngestSourceResponse(&tr, SourceResponse{Events: events})

	first := buf.PullEvents(PullRequest{Limit: 2})
	if len(first.Events) != 2 || first.Events[0].EventId != "e1" || first.Events[1].EventId != "e2" {
		t.Fatalf("got %+v", first.Events)
	}

	second := buf.PullEvents(PullRequest{Cursor: first.NextCursor, Limit: 2})
	if len(second.Events) != 1 || second.Events[0].EventId != "e3" {
		t.Fatalf("expected complement (just e3), got %+v", second.Events)
	}
}

func TestPullEventsWithNoResultsPreservesInputCursor(t *testing.T) {
	var buf Buffer
	resp := buf.PullEvents(PullRequest{Cursor: "gw:7", Limit: 10})
	if resp.NextCursor != "gw:7" {
		t.Fatalf("got %q", resp.NextCursor)
	}
	if resp.Events != nil {
		t.Fatalf("expected no events")
	}
}

func TestStaleCursorSafeAfterCompaction(t *testing.T) {
	var buf Buffer
	var tr Tracker
	t0 := time.Unix(0, 0)
	events := []model.SourceEventV2{ev("e1", t0), ev("e2", t0.Add(time.Second)), ev("e3", t0.Add(2 * time.Second))}
	buf.IngestSourceResponse(&tr, SourceResponse{Events: events})

	// A consumer pulled and committed through e2 (absolute position 2).
	buf.CompactBefore(2)
	if buf.CompactOffset() != 2 || buf.Len() != 1 {
		t.Fatalf("got offset=%d len=%d", buf.CompactOffset(), buf.Len())
	}

	// A stale cursor from before the compaction must not re-deliver e1/e2.
	stale := buf.PullEvents(PullRequest{Cursor: "gw:0", Limit: 100})
	if len(stale.Events) != 1 || stale.Events[0].EventId != "e3" {
		t.Fatalf("stale cursor must skip compacted events, got %+v", stale.Events)
	}
	if stale.NextCursor != "gw:3" {
		t.Fatalf("got %q", stale.NextCursor)
	}
}

func TestCompactBeforeIsSafeToOverCommit(t *testing.T) {
	var buf Buffer
	var tr Tracker
	buf.IngestSourceResponse(&tr, SourceResponse{Events: []model.SourceEventV2{ev("e1", time.Unix(0, 0))}})
	buf.CompactBefore(1000)
	if buf.Len() != 0 {
		t.Fatalf("over-commit should drain the whole buffer, got len=%d", buf.Len())
	}
}

func TestCommitCursorParsesGwFormat(t *testing.T) {
	var buf Buffer
	var tr Tracker
	buf.IngestSourceResponse(&tr, SourceResponse{Events: []model.SourceEventV2{
		ev("e1", time.Unix(0, 0)), ev("e2", time.Unix(1, 0)),
	}})
	buf.CommitCursor("gw:1")
	if buf.CompactOffset() != 1 {
		t.Fatalf("got %d", buf.CompactOffset())
	}
}
