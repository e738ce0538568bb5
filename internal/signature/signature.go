// Package signature implements the pane signature classifier (spec §4.2):
// a pure reducer mapping per-tick capability signals into
// model.PaneSignatureClass, with guardrails against unreliable single
// signals.
package signature

import (
	"errors"

	"github.com/g960059/agtmux/internal/model"
)

// Weights, strictly descending by signal reliability (spec §4.2).
const (
	WeightProcessHint = 1.00
	WeightCmdMatch    = 0.86
	WeightPollerMatch = 0.78
	WeightTitleMatch  = 0.66
)

// NoAgentDemotionStreak mirrors binding.NoAgentDemotionStreak: the same
// streak threshold gates classifier demotion (spec §4.2 rule 5).
const NoAgentDemotionStreak = 2

// ErrInconclusive is returned when there are no signals at all on a pane
// that was expected to be deterministic — the projection maps this to
// PaneSignatureClass_None with reason "inconclusive" rather than
// silently demoting (spec §7, §9).
var ErrInconclusive = errors.New("signature: inconclusive")

// GuardRejectedError is returned when only a title match is present
// alongside a wrapper command — pane titles alone are not trustworthy
// enough to classify a wrapper-launched pane (spec §4.2 rule 4).
type GuardRejectedError struct {
	Msg string
}

func (e *GuardRejectedError) Error() string { return "signature: guard rejected: " + e.Msg }

// Inputs is the per-pane per-tick capability set the classifier consumes.
type Inputs struct {
	ProviderHint bool
	CmdMatch     bool
	PollerMatch  bool
	TitleMatch   bool

	HasDeterministicFields   bool
	IsWrapperCmd             bool
	NoAgentStreak            uint32
	DeterministicExpected    bool
	DeterministicFreshActive bool
}

// Result is the classifier's output on success.
type Result struct {
	Class          model.PaneSignatureClass
	Confidence     float64
	TitleOnlyGuard bool // only TitleMatch matched; callers must not promote to Managed on this alone
	Reason         string
}

// Classify runs the decision table from spec §4.2.
func Classify(in Inputs) (Result, error) {
	// 1. Deterministic fields short-circuit everything, including the
	// no-agent streak.
	if in.HasDeterministicFields {
		return Result{Class: model.SignatureDeterministic, Confidence: 1.0}, nil
	}

	hasAnySignal := in.ProviderHint || in.CmdMatch || in.PollerMatch || in.TitleMatch

	// 2 & 3. No signals at all.
	if !hasAnySignal {
		if in.DeterministicExpected {
			return Result{}, ErrInconclusive
		}
		return Result{Class: model.SignatureNone, Confidence: 0}, nil
	}

	// 4. Title-only + wrapper command guard.
	titleOnly := in.TitleMatch && !in.ProviderHint && !in.CmdMatch && !in.PollerMatch
	if titleOnly && in.IsWrapperCmd {
		return Result{}, &GuardRejectedError{Msg: "title-only match on wrapper command"}
	}

	// 5. No-agent streak demotion, suppressed while deterministic is fresh.
	if in.NoAgentStreak >= NoAgentDemotionStreak && !in.DeterministicFreshActive {
		return Result{Class: model.SignatureNone, Confidence: 0, Reason: "no-agent streak"}, nil
	}

	// 6. Heuristic classification: confidence is the max matched weight.
	var confidence float64
	if in.ProviderHint && WeightProcessHint > confidence {
		confidence = WeightProcessHint
	}
	if in.CmdMatch && WeightCmdMatch > confidence {
		confidence = WeightCmdMatch
	}
	if in.PollerMatch && WeightPollerMatch > confidence {
		confidence = WeightPollerMatch
	}
	if in.TitleMatch && WeightTitleMatch > confidence {
		confidence = WeightTitleMatch
	}

	return Result{
		Class:          model.SignatureHeuristic,
		Confidence:     confidence,
		TitleOnlyGuard: titleOnly,
	}, nil
}
