// Package gateway implements the per-source event tracker and buffer
// (spec §4.8): ingest from sources, a compacting ring buffer, and
// stale-cursor-safe pagination. Grounded on the teacher's
// ws.broadcast buffering idiom, generalized to carry absolute cursor
// positions rather than the teacher's simple append-only log.
package gateway

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/agtmux/internal/health"
	"github.com/g960059/agtmux/internal/model"
)

// CursorPrefix is the gateway's cursor format prefix: "gw:{abs_position}".
const CursorPrefix = "gw:"

// Tracker is the per-source ingest state.
type Tracker struct {
	Cursor        string
	Health        health.State
	LastHeartbeat time.Time
}

// SourceResponse is what a source returns from a pull.
type SourceResponse struct {
	Events       []model.SourceEventV2
	NextCursor   string
	HeartbeatTs  time.Time
	SourceHealth health.State
}

// Buffer is the chronologically ordered event ring with absolute
// compaction bookkeeping. Not safe for concurrent use; the owning
// gateway task serializes access.
type Buffer struct {
	events        []model.SourceEventV2
	compactOffset int
}

// IngestSourceResponse appends a source's batch, advances the tracker,
// and keeps the buffer sorted by ObservedAt (stable, so ties preserve
// ingest order).
func (b *Buffer) IngestSourceResponse(tr *Tracker, resp SourceResponse) {
	if len(resp.Events) > 0 {
		b.events = append(b.events, resp.Events...)
		sort.SliceStable(b.events, func(i, j int) bool {
			return b.events[i].ObservedAt.Before(b.events[j].ObservedAt)
		})
	}
	// Cursor is overwritten unconditionally, even when empty, so a
	// caught-up source keeps its last known position.
	tr.Cursor = resp.NextCursor
	tr.Health = resp.SourceHealth
	tr.LastHeartbeat = resp.HeartbeatTs
}

// PullRequest is a client's request for a page of events.
type PullRequest struct {
	Cursor string
	Limit  int
}

// PullResponse is the page returned to the puller.
type PullResponse struct {
	Events     []model.SourceEventV2
	NextCursor string
}

// ParseCursor decodes a "gw:{n}" cursor; an empty cursor is position 0.
func ParseCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, CursorPrefix))
	if err != nil {
		return 0
	}
	return n
}

func formatCursor(pos int) string {
	return CursorPrefix + strconv.Itoa(pos)
}

// PullEvents implements the stale-cursor-safe pagination from spec §4.8.
func (b *Buffer) PullEvents(req PullRequest) PullResponse {
	absStart := ParseCursor(req.Cursor)
	effectiveStart := absStart
	if b.compactOffset > effectiveStart {
		effectiveStart = b.compactOffset
	}

	localStart := effectiveStart - b.compactOffset
	if localStart < 0 {
		localStart = 0
	}
	if localStart > len(b.events) {
		localStart = len(b.events)
	}

	end := localStart + req.Limit
	if req.Limit <= 0 || end > len(b.events) {
		end = len(b.events)
	}
	page := b.events[localStart:end]

	if len(page) == 0 {
		// No events returned: preserve the input cursor unchanged.
		return PullResponse{Events: nil, NextCursor: req.Cursor}
	}

	returned := make([]model.SourceEventV2, len(page))
	copy(returned, page)
	return PullResponse{
		Events:     returned,
		NextCursor: formatCursor(effectiveStart + len(page)),
	}
}

// CommitCursor and CompactBefore both drain the buffer up to the local
// equivalent of an absolute position; safe to over-commit past the end.
func (b *Buffer) CompactBefore(pos int) {
	local := pos - b.compactOffset
	if local <= 0 {
		return
	}
	if local > len(b.events) {
		local = len(b.events)
	}
	b.events = b.events[local:]
	b.compactOffset += local
}

// CommitCursor is an alias for CompactBefore taking a cursor string,
// matching the spec's "commit_cursor(cursor)" entrypoint.
func (b *Buffer) CommitCursor(cursor string) {
	b.CompactBefore(ParseCursor(cursor))
}

// CompactOffset exposes the buffer's current absolute compaction
// watermark, for tests and metrics.
func (b *Buffer) CompactOffset() int { return b.compactOffset }

// Len exposes the buffer's current in-memory event count.
func (b *Buffer) Len() int { return len(b.events) }
