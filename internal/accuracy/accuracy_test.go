package accuracy

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/poller"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadFixturesRejectsUnknownActivityLabel(t *testing.T) {
	path := writeFixture(t, `[{"pane_id":"%1","expected_activity":"not_a_real_state"}]`)
	if _, err := LoadFixtures(path); err == nil {
		t.Fatalf("expected error for unknown activity label")
	}
}

func TestLoadFixturesRejectsUnknownProviderLabel(t *testing.T) {
	path := writeFixture(t, `[{"pane_id":"%1","expected_provider":"gemini"}]`)
	if _, err := LoadFixtures(path); err == nil {
		t.Fatalf("expected error for unknown provider label (gemini is out of scope)")
	}
}

func TestLoadFixturesRoundTrip(t *testing.T) {
	path := writeFixture(t, `[
		{"pane_id":"%1","pane_title":"t","current_cmd":"claude","process_hint":"claude",
		 "capture_lines":["running tests"],"expected_detected":true,
		 "expected_provider":"claude","expected_activity":"running"}
	]`)
	windows, err := LoadFixtures(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(windows) != 1 || !windows[0].HasProvider || windows[0].ExpectedProvider != model.ProviderClaude {
		t.Fatalf("got %+v", windows)
	}
	if !windows[0].HasActivity || windows[0].ExpectedActivity != model.Running {
		t.Fatalf("got %+v", windows[0])
	}
}

func testDetector() Detector {
	defs := []poller.ProviderDef{{Name: "claude", ProcessHint: "claude", CmdTokens: []string{"claude"}}}
	patterns := map[string][]poller.ActivityPattern{
		"claude": {
			{Pattern: regexp.MustCompile(`(?i)waiting for your approval`), State: model.WaitingApproval},
			{Pattern: regexp.MustCompile(`(?i)running`), State: model.Running},
		},
	}
	return Detector{ProviderDefs: defs, PatternsByProvider: patterns}
}

func TestEvaluatePerfectClassificationPassesGate(t *testing.T) {
	windows := []Window{
		{Snapshot: poller.PaneSnapshot{ProcessHint: "claude", CaptureLines: []string{"running now"}}, HasActivity: true, ExpectedActivity: model.Running},
		{Snapshot: poller.PaneSnapshot{ProcessHint: "claude", CaptureLines: []string{"waiting for your approval"}}, HasActivity: true, ExpectedActivity: model.WaitingApproval},
	}
	report := Evaluate(testDetector(), windows)
	if !report.GatePassed {
		t.Fatalf("expected gate to pass, got %+v", report)
	}
	if report.WaitingApprovalRecall != 1.0 {
		t.Fatalf("got %v", report.WaitingApprovalRecall)
	}
}

func TestEvaluateMisclassificationFailsGate(t *testing.T) {
	windows := []Window{
		{Snapshot: poller.PaneSnapshot{ProcessHint: "claude", CaptureLines: []string{"nothing useful"}}, HasActivity: true, ExpectedActivity: model.WaitingApproval},
	}
	report := Evaluate(testDetector(), windows)
	if report.GatePassed {
		t.Fatalf("expected gate to fail on total miss")
	}
	if report.WaitingApprovalRecall != 0 {
		t.Fatalf("got %v", report.WaitingApprovalRecall)
	}
}

func TestInsufficientDataFlaggedBelowMinimum(t *testing.T) {
	report := Evaluate(testDetector(), []Window{})
	if !report.InsufficientData {
		t.Fatalf("expected InsufficientData for an empty dataset")
	}
}
