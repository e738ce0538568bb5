package codex

import (
	"strconv"
	"strings"

	"github.com/g960059/agtmux/internal/model"
)

// StoreCursorPrefix is the codex source's cursor format prefix, mirroring
// package poller's Store (internal/poller/source.go) so the gateway's
// per-source ingest loop treats every Source Server uniformly.
const StoreCursorPrefix = "codex:"

// Store is the codex source server's event buffer: an absolute-offset
// ring, identical in shape to poller.Store, so cursors issued before a
// compaction remain valid (spec §4.8).
type Store struct {
	events        []model.SourceEventV2
	compactOffset int
}

// Append adds events to the store in arrival order.
func (s *Store) Append(events ...model.SourceEventV2) {
	s.events = append(s.events, events...)
}

// PullRequest is a page request against the store.
type PullRequest struct {
	Cursor string
	Limit  int
}

// PullResponse always carries a non-empty cursor, even at the tail, so
// callers never regress to an absent cursor.
type PullResponse struct {
	Events     []model.SourceEventV2
	NextCursor string
}

func parseStoreCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, StoreCursorPrefix))
	if err != nil {
		return 0
	}
	return n
}

// PullEvents pages through the store using the same stale-cursor-safe
// logic as package poller's Store and the gateway.Buffer.
func (s *Store) PullEvents(req PullRequest) PullResponse {
	absStart := parseStoreCursor(req.Cursor)
	effectiveStart := absStart
	if s.compactOffset > effectiveStart {
		effectiveStart = s.compactOffset
	}
	localStart := effectiveStart - s.compactOffset
	if localStart < 0 {
		localStart = 0
	}
	if localStart > len(s.events) {
		localStart = len(s.events)
	}
	end := localStart + req.Limit
	if req.Limit <= 0 || end > len(s.events) {
		end = len(s.events)
	}
	page := s.events[localStart:end]
	returned := make([]model.SourceEventV2, len(page))
	copy(returned, page)

	return PullResponse{
		Events:     returned,
		NextCursor: StoreCursorPrefix + strconv.Itoa(effectiveStart+len(page)),
	}
}

// Compact drains events up to the absolute sequence upToSeq.
func (s *Store) Compact(upToSeq int) {
	local := upToSeq - s.compactOffset
	if local <= 0 {
		return
	}
	if local > len(s.events) {
		local = len(s.events)
	}
	s.events = s.events[local:]
	s.compactOffset += local
}

// Len exposes the store's current in-memory event count.
func (s *Store) Len() int { return len(s.events) }
