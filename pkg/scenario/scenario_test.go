package scenario

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInScenariosPass(t *testing.T) {
	for _, s := range All() {
		t.Run(s.Name(), func(t *testing.T) {
			r := Run(context.Background(), s, time.Minute)
			for _, a := range r.Assertions {
				assert.True(t, a.Passed, "%s: %s", a.Name, a.Message)
			}
			assert.Empty(t, r.Errors)
			assert.Empty(t, r.Warnings)
			assert.True(t, r.Passed)
			assert.Positive(t, r.Simulated)
		})
	}
}

func TestFilter(t *testing.T) {
	all := All()
	assert.Len(t, Filter(all, "", ""), len(all))

	byName := Filter(all, "", "two")
	require.Len(t, byName, 1)
	assert.Equal(t, "two-viewers", byName[0].Name())

	auto := Filter(all, "Auto", "")
	assert.Len(t, auto, 4)
	assert.Empty(t, Filter(all, "Time Tool", "no-flap"))
}

type brokenScenario struct {
	*Base
	tornDown bool
}

func (s *brokenScenario) Setup(context.Context) error { return errors.New("no board today") }
func (s *brokenScenario) Run(context.Context) error   { return nil }
func (s *brokenScenario) Teardown() error {
	s.tornDown = true
	return nil
}
func (s *brokenScenario) Validate() *Result { return s.Finish() }

func TestRun_SetupFailure(t *testing.T) {
	s := &brokenScenario{Base: NewBase("broken", "Failures", "always fails")}
	r := Run(context.Background(), s, time.Second)

	assert.False(t, r.Passed)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "setup failed: no board today")
	assert.True(t, s.tornDown)
}

func TestRunAll_Report(t *testing.T) {
	list := Filter(All(), "", "pause")
	var seen []string
	report := RunAll(context.Background(), list, time.Minute, func(i int, r *Result) {
		seen = append(seen, r.Name)
	})
	broken := &brokenScenario{Base: NewBase("broken", "Failures", "always fails")}
	report.AddResult(Run(context.Background(), broken, time.Second))

	assert.Equal(t, []string{"pause-resume"}, seen)
	assert.Equal(t, 2, report.Total())
	assert.Equal(t, 1, report.Passed())
	assert.Equal(t, 1, report.Failed())
	assert.InDelta(t, 50.0, report.PassRate(), 1e-9)

	var summary bytes.Buffer
	report.PrintSummary(&summary)
	assert.Contains(t, summary.String(), "pause-resume")
	assert.Contains(t, summary.String(), "Some scenarios FAILED")

	var detailed bytes.Buffer
	report.PrintDetailed(&detailed)
	assert.Contains(t, detailed.String(), "Paused near 25s")
	assert.Contains(t, detailed.String(), "setup failed: no board today")

	var md bytes.Buffer
	report.PrintMarkdown(&md)
	assert.Contains(t, md.String(), "## Time Tool")
	assert.Contains(t, md.String(), "**1 scenario(s) FAILED**")

	var out bytes.Buffer
	require.NoError(t, report.PrintJSON(&out))
	var decoded struct {
		Suite   string `json:"suite"`
		Results []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, SuiteName, decoded.Suite)
	require.Len(t, decoded.Results, 2)
	assert.True(t, decoded.Results[0].Passed)
	assert.False(t, decoded.Results[1].Passed)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Run(ctx, NewCountdownTraffic(), time.Minute)
	assert.False(t, r.Passed)
	require.NotEmpty(t, r.Errors)
	assert.Contains(t, r.Errors[0], "context canceled")
}
