package scenario

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/BYTE-6D65/liveboard/pkg/registry"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	categoryStyle = lipgloss.NewStyle().Bold(true)
	passStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// Report collects the results of a suite run.
type Report struct {
	SuiteName string        `json:"suite"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration,format:nano"`
	Results   []*Result     `json:"results"`
}

// NewReport creates an empty report.
func NewReport(suiteName string) *Report {
	return &Report{
		SuiteName: suiteName,
		StartTime: time.Now(),
		Results:   make([]*Result, 0),
	}
}

// AddResult appends a result.
func (r *Report) AddResult(result *Result) {
	r.Results = append(r.Results, result)
}

// Finish marks the report as complete.
func (r *Report) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

func (r *Report) Total() int { return len(r.Results) }

// Passed returns the number of passed scenarios.
func (r *Report) Passed() int {
	count := 0
	for _, result := range r.Results {
		if result.Passed {
			count++
		}
	}
	return count
}

func (r *Report) Failed() int { return r.Total() - r.Passed() }

// PassRate returns the percentage of passed scenarios.
func (r *Report) PassRate() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Passed()) / float64(r.Total()) * 100
}

// byCategory groups results in the order categories first appear.
func (r *Report) byCategory() []registry.Entry[[]*Result] {
	groups := registry.New[[]*Result]()
	for _, result := range r.Results {
		list, _ := groups.Get(result.Category)
		groups.Set(result.Category, append(list, result))
	}
	return groups.List()
}

func status(passed bool) string {
	if passed {
		return passStyle.Render("PASS")
	}
	return failStyle.Render("FAIL")
}

// PrintSummary prints one line per scenario and the totals.
func (r *Report) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("=== "+r.SuiteName+" ==="))
	fmt.Fprintln(w)

	for _, group := range r.byCategory() {
		fmt.Fprintln(w, categoryStyle.Render(group.Key))
		for _, result := range group.Value {
			fmt.Fprintf(w, "  [%s] %s %s\n", status(result.Passed), result.Name,
				dimStyle.Render(fmt.Sprintf("(%s simulated, %s)", result.Simulated, result.Duration.Round(time.Microsecond))))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, titleStyle.Render("=== Summary ==="))
	fmt.Fprintf(w, "Total:     %d\n", r.Total())
	fmt.Fprintf(w, "Passed:    %d\n", r.Passed())
	fmt.Fprintf(w, "Failed:    %d\n", r.Failed())
	fmt.Fprintf(w, "Pass Rate: %.1f%%\n", r.PassRate())
	fmt.Fprintf(w, "Duration:  %s\n\n", r.Duration.Round(time.Microsecond))

	if r.Failed() == 0 {
		fmt.Fprintln(w, passStyle.Render("All scenarios PASSED"))
	} else {
		fmt.Fprintln(w, failStyle.Render("Some scenarios FAILED"))
	}
}

// PrintDetailed prints every assertion, metric and error, then the summary.
func (r *Report) PrintDetailed(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("=== "+r.SuiteName+" - Detailed Results ==="))
	fmt.Fprintln(w)

	for _, result := range r.Results {
		printResult(w, result)
		fmt.Fprintln(w)
	}
	r.PrintSummary(w)
}

func printResult(w io.Writer, result *Result) {
	fmt.Fprintf(w, "[%s] %s\n", status(result.Passed), result.Name)
	fmt.Fprintf(w, "Category:  %s\n", result.Category)
	fmt.Fprintf(w, "Simulated: %s\n\n", result.Simulated)

	if len(result.Assertions) > 0 {
		fmt.Fprintln(w, "Assertions:")
		for i, a := range result.Assertions {
			mark := passStyle.Render("✓")
			if !a.Passed {
				mark = failStyle.Render("✗")
			}
			fmt.Fprintf(w, "  %d. %s %s\n", i+1, mark, a.Name)
			if !a.Passed {
				fmt.Fprintf(w, "     Expected: %v\n", a.Expected)
				fmt.Fprintf(w, "     Actual:   %v\n", a.Actual)
				if a.Message != "" {
					fmt.Fprintf(w, "     %s\n", a.Message)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w, "Metrics:")
		for _, k := range slices.Sorted(maps.Keys(result.Metrics)) {
			fmt.Fprintf(w, "  %s: %v\n", k, result.Metrics[k])
		}
		fmt.Fprintln(w)
	}

	for i, err := range result.Errors {
		if i == 0 {
			fmt.Fprintln(w, "Errors:")
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, err)
	}
	for i, warning := range result.Warnings {
		if i == 0 {
			fmt.Fprintln(w, "Warnings:")
		}
		fmt.Fprintf(w, "  %d. %s\n", i+1, warning)
	}

	fmt.Fprintln(w, dimStyle.Render(strings.Repeat("-", 80)))
}

// PrintJSON writes the report as indented JSON.
func (r *Report) PrintJSON(w io.Writer) error {
	if err := json.MarshalWrite(w, r, jsontext.WithIndent("  ")); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// PrintMarkdown writes a summary table per category.
func (r *Report) PrintMarkdown(w io.Writer) {
	fmt.Fprintf(w, "# %s\n\n", r.SuiteName)
	fmt.Fprintf(w, "**Date**: %s\n", r.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "**Duration**: %s\n\n", r.Duration)

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n")
	fmt.Fprintf(w, "|--------|-------|\n")
	fmt.Fprintf(w, "| Total | %d |\n", r.Total())
	fmt.Fprintf(w, "| Passed | %d |\n", r.Passed())
	fmt.Fprintf(w, "| Failed | %d |\n", r.Failed())
	fmt.Fprintf(w, "| Pass Rate | %.1f%% |\n\n", r.PassRate())

	for _, group := range r.byCategory() {
		fmt.Fprintf(w, "## %s\n\n", group.Key)
		fmt.Fprintf(w, "| Scenario | Status | Simulated |\n")
		fmt.Fprintf(w, "|----------|--------|-----------|\n")
		for _, result := range group.Value {
			s := "PASS"
			if !result.Passed {
				s = "FAIL"
			}
			fmt.Fprintf(w, "| %s | %s | %s |\n", result.Name, s, result.Simulated)
		}
		fmt.Fprintln(w)
	}

	if r.Failed() == 0 {
		fmt.Fprintf(w, "## Result\n\n**All scenarios PASSED**\n")
	} else {
		fmt.Fprintf(w, "## Result\n\n**%d scenario(s) FAILED**\n", r.Failed())
	}
}
