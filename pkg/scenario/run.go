package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SuiteName titles reports of the built-in scenarios.
const SuiteName = "Liveboard Scenario Suite"

// Run executes one scenario with a timeout. Setup and Run failures produce
// a failed result; Teardown always runs once Setup has started.
func Run(ctx context.Context, s Scenario, timeout time.Duration) (result *Result) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	failed := func(stage string, err error) *Result {
		r := NewResult(s.Name(), s.Category())
		r.AddError(fmt.Errorf("%s failed: %w", stage, err))
		r.Finish()
		return r
	}

	defer func() {
		if err := s.Teardown(); err != nil {
			result.AddWarning(fmt.Sprintf("teardown: %v", err))
		}
	}()

	if err := s.Setup(ctx); err != nil {
		return failed("setup", err)
	}
	if err := s.Run(ctx); err != nil {
		return failed("run", err)
	}
	return s.Validate()
}

// All returns fresh instances of every built-in scenario.
func All() []Scenario {
	return []Scenario{
		NewCountdownTraffic(),
		NewPauseResume(),
		NewSoundHold(),
		NewNoFlap(),
		NewPeerSync(),
		NewTwoViewers(),
	}
}

// Filter keeps scenarios whose name or category starts with the given
// prefix. Empty filters keep everything.
func Filter(list []Scenario, category, name string) []Scenario {
	out := make([]Scenario, 0, len(list))
	for _, s := range list {
		if name != "" && !strings.HasPrefix(s.Name(), name) {
			continue
		}
		if category != "" && !strings.HasPrefix(s.Category(), category) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RunAll runs the scenarios in order and returns the finished report. It
// stops early when ctx is cancelled. progress, if not nil, is called after
// each scenario.
func RunAll(ctx context.Context, list []Scenario, timeout time.Duration, progress func(i int, r *Result)) *Report {
	report := NewReport(SuiteName)
	for i, s := range list {
		if ctx.Err() != nil {
			break
		}
		r := Run(ctx, s, timeout)
		report.AddResult(r)
		if progress != nil {
			progress(i, r)
		}
	}
	report.Finish()
	return report
}
