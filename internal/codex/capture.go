package codex

import (
	"encoding/json"
	"hash/fnv"
)

// ParseCaptureLine scans one tmux capture line for an NDJSON object with a
// "type" field, the capture fallback's detection condition (spec §4.12.2).
// Lines that aren't valid single-line JSON, or that parse but lack a
// "type" key, are not Codex events.
func ParseCaptureLine(line string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil, false
	}
	if _, ok := obj["type"]; !ok {
		return nil, false
	}
	return obj, true
}

// Fingerprint computes a non-cryptographic content hash used to dedup
// capture-fallback lines across polling ticks (the same NDJSON line can
// remain on-screen for several ticks before scrolling off).
func Fingerprint(line string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(line))
	return h.Sum64()
}

// SeenFingerprints is a small ring-free dedup set for capture-fallback
// fingerprints, owned per-pane by the runtime's codex capture-fallback loop.
type SeenFingerprints struct {
	seen map[uint64]bool
}

// NewSeenFingerprints creates an empty dedup set.
func NewSeenFingerprints() *SeenFingerprints {
	return &SeenFingerprints{seen: make(map[uint64]bool)}
}

// CheckAndMark reports whether fp was already seen, marking it seen
// either way.
func (s *SeenFingerprints) CheckAndMark(fp uint64) bool {
	wasSeen := s.seen[fp]
	s.seen[fp] = true
	return wasSeen
}
