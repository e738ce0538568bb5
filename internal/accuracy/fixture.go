// Package accuracy implements the poller's quality-gate evaluator (spec
// §4.11, §6): loads a labelled fixture dataset, runs detection against
// each window, and computes per-class and weighted F1 plus the
// WaitingApproval recall the gate specifically cares about.
package accuracy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/poller"
)

// rawFixture mirrors the fixture file's JSON shape exactly (spec §6).
type rawFixture struct {
	PaneId             string   `json:"pane_id"`
	PaneTitle          string   `json:"pane_title"`
	CurrentCmd         string   `json:"current_cmd"`
	ProcessHint        *string  `json:"process_hint"`
	CaptureLines       []string `json:"capture_lines"`
	ExpectedDetected   bool     `json:"expected_detected"`
	ExpectedProvider   *string  `json:"expected_provider"`
	ExpectedActivity   *string  `json:"expected_activity"`
}

// Window is one loaded, validated fixture entry.
type Window struct {
	Snapshot         poller.PaneSnapshot
	ExpectedDetected bool
	ExpectedProvider model.Provider
	HasProvider      bool
	ExpectedActivity model.ActivityState
	HasActivity      bool
}

var activityFromLabel = map[string]model.ActivityState{
	"unknown":          model.Unknown,
	"idle":             model.Idle,
	"running":          model.Running,
	"waiting_input":    model.WaitingInput,
	"waiting_approval": model.WaitingApproval,
	"error":            model.Error,
}

var providerFromLabel = map[string]model.Provider{
	"unknown": model.ProviderUnknown,
	"claude":  model.ProviderClaude,
	"codex":   model.ProviderCodex,
}

// LoadFixtures reads and validates a fixture file. Unknown enum label
// strings are rejected as load errors, never silently coerced to Unknown.
func LoadFixtures(path string) ([]Window, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}
	var raws []rawFixture
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("parsing fixture file: %w", err)
	}

	windows := make([]Window, 0, len(raws))
	for i, raw := range raws {
		w := Window{
			Snapshot: poller.PaneSnapshot{
				PaneId:       raw.PaneId,
				PaneTitle:    raw.PaneTitle,
				CurrentCmd:   raw.CurrentCmd,
				CaptureLines: raw.CaptureLines,
			},
			ExpectedDetected: raw.ExpectedDetected,
		}
		if raw.ProcessHint != nil {
			w.Snapshot.ProcessHint = *raw.ProcessHint
		}
		if raw.ExpectedProvider != nil {
			p, ok := providerFromLabel[*raw.ExpectedProvider]
			if !ok {
				return nil, fmt.Errorf("fixture[%d]: unknown expected_provider %q", i, *raw.ExpectedProvider)
			}
			w.ExpectedProvider = p
			w.HasProvider = true
		}
		if raw.ExpectedActivity != nil {
			a, ok := activityFromLabel[*raw.ExpectedActivity]
			if !ok {
				return nil, fmt.Errorf("fixture[%d]: unknown expected_activity %q", i, *raw.ExpectedActivity)
			}
			w.ExpectedActivity = a
			w.HasActivity = true
		}
		windows = append(windows, w)
	}
	return windows, nil
}
