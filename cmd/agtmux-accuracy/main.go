// Command agtmux-accuracy runs the poller's quality gate (spec §4.11, §6)
// against a labelled fixture file and exits non-zero if the gate fails.
// Kept deliberately thin: all of the real work lives in internal/accuracy.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"

	"github.com/g960059/agtmux/internal/accuracy"
	"github.com/g960059/agtmux/internal/model"
	"github.com/g960059/agtmux/internal/poller"
)

func main() {
	fixturePath := flag.String("fixtures", "", "Path to a labelled fixture JSON file")
	verbose := flag.Bool("v", false, "Print per-class precision/recall/F1")
	flag.Parse()

	if *fixturePath == "" {
		log.Fatal("usage: agtmux-accuracy -fixtures <path>")
	}

	windows, err := accuracy.LoadFixtures(*fixturePath)
	if err != nil {
		log.Fatalf("loading fixtures: %v", err)
	}

	report := accuracy.Evaluate(detector(), windows)

	if *verbose {
		printReport(report)
	}

	fmt.Printf("windows=%d weighted_f1=%.4f waiting_approval_recall=%.4f gate_passed=%v insufficient_data=%v\n",
		report.TotalWindows, report.WeightedF1, report.WaitingApprovalRecall, report.GatePassed, report.InsufficientData)

	if report.InsufficientData {
		fmt.Fprintf(os.Stderr, "warning: fixture set has %d windows, below the %d minimum\n", report.TotalWindows, accuracy.MinFixtureWindows)
	}
	if !report.GatePassed {
		os.Exit(1)
	}
}

func printReport(report accuracy.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report.PerClass)
}

// detector mirrors internal/runtime's provider/activity tables exactly —
// the evaluator must score the same detection+classification logic the
// daemon runs in production, not a stand-in.
func detector() accuracy.Detector {
	providerDefs := []poller.ProviderDef{
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

	patterns := []poller.ActivityPattern{
		{Pattern: regexp.MustCompile(`(?i)waiting for (your )?approval`), State: model.WaitingApproval},
		{Pattern: regexp.MustCompile(`(?i)allow this (command|action)\?`), State: model.WaitingApproval},
		{Pattern: regexp.MustCompile(`(?i)\(y/n\)`), State: model.WaitingApproval},
		{Pattern: regexp.MustCompile(`(?i)^(>|│)\s*$`), State: model.WaitingInput},
		{Pattern: regexp.MustCompile(`(?i)human:\s*$`), State: model.WaitingInput},
		{Pattern: regexp.MustCompile(`(?i)(error|exception|traceback|panic:)`), State: model.Error},
		{Pattern: regexp.MustCompile(`(?i)(esc to interrupt|thinking|running|working)`), State: model.Running},
		{Pattern: regexp.MustCompile(`(?i)\$\s*$`), State: model.Idle},
	}

	return accuracy.Detector{
		ProviderDefs: providerDefs,
		PatternsByProvider: map[string][]poller.ActivityPattern{
			"claude": patterns,
			"codex":  patterns,
		},
	}
}
