package poller

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/agtmux/internal/model"
)

// SourceCursorPrefix is the poller's cursor format prefix.
const SourceCursorPrefix = "poller:"

// BuildEvent constructs the SourceEventV2 for a successful detection +
// classification, per spec §4.11. session_key is "poller-{pane_id}".
func BuildEvent(snap PaneSnapshot, det DetectResult, activity model.ActivityState, observedAt time.Time, seq int) model.SourceEventV2 {
	eventType := EventTypeFor(activity)
	payload := map[string]any{
		"provider_hint":   det.ProviderHint,
		"cmd_match":       det.CmdMatch,
		"capture_match":   det.CaptureMatch,
		"title_match":     det.TitleMatch,
		"matched_pattern": det.MatchedPattern,
	}
	id := model.EventId(fmt.Sprintf("poller-%s-%d", snap.PaneId, seq))
	session := model.SessionKey("poller-" + snap.PaneId)
	ev := model.NewSourceEvent(id, providerFor(det.Provider), model.SourceKindPoller, observedAt, session, eventType, payload, det.Confidence)
	return ev
}

func providerFor(name string) model.Provider {
	switch strings.ToLower(name) {
	case "claude":
		return model.ProviderClaude
	case "codex":
		return model.ProviderCodex
	default:
		return model.ProviderUnknown
	}
}

// Store is the poller's source-server state: an absolute-offset ring of
// events, mirroring the Gateway's buffering semantics (spec §4.8, §4.11)
// so cursors issued before a compaction remain valid.
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

func parsePollerCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cursor, SourceCursorPrefix))
	if err != nil {
		return 0
	}
	return n
}

// PullEvents pages through the store using the same stale-cursor-safe
// logic as the Gateway buffer.
func (s *Store) PullEvents(req PullRequest) PullResponse {
	absStart := parsePollerCursor(req.Cursor)
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
		NextCursor: SourceCursorPrefix + strconv.Itoa(effectiveStart+len(page)),
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
