package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BYTE-6D65/liveboard/pkg/board"
	"github.com/BYTE-6D65/liveboard/pkg/scenario"
)

var (
	flagCategory string
	flagName     string
	flagReport   string
	flagTimeout  time.Duration
	flagList     bool
)

var errScenariosFailed = errors.New("scenarios failed")

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Run the built-in classroom scenarios",
	Long: `Run scripted sessions against real boards on a synthetic clock and
check the outcome: countdown automation, pause and resume, sound hold,
flapping levels, peer sync and two viewers with skewed clocks.

Scenarios run with the loaded config, so a changed stabilization delay or
frame interval is exercised too.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := scenario.Filter(scenario.All(), flagCategory, flagName)
		if len(list) == 0 {
			return fmt.Errorf("no scenario matches category %q name %q", flagCategory, flagName)
		}
		out := cmd.OutOrStdout()

		if flagList {
			for _, s := range list {
				fmt.Fprintf(out, "%-18s %-18s %s\n", s.Name(), s.Category(), s.Description())
			}
			return nil
		}

		for _, s := range list {
			if b, ok := s.(interface{ Config() *board.Config }); ok {
				c := cfg
				// Scenarios read the in-memory journal.
				c.Store = board.DefaultConfig().Store
				*b.Config() = c
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report := scenario.RunAll(ctx, list, flagTimeout, func(i int, r *scenario.Result) {
			logger.Info("scenario finished", "n", fmt.Sprintf("%d/%d", i+1, len(list)),
				"name", r.Name, "passed", r.Passed, "simulated", r.Simulated)
		})

		switch flagReport {
		case "summary":
			report.PrintSummary(out)
		case "detailed":
			report.PrintDetailed(out)
		case "json":
			if err := report.PrintJSON(out); err != nil {
				return err
			}
		case "markdown":
			report.PrintMarkdown(out)
		default:
			return fmt.Errorf("unknown report type %q", flagReport)
		}

		if report.Failed() > 0 || report.Total() < len(list) {
			return errScenariosFailed
		}
		return nil
	},
}

func init() {
	scenariosCmd.Flags().StringVar(&flagCategory, "category", "", "run scenarios whose category starts with this")
	scenariosCmd.Flags().StringVar(&flagName, "name", "", "run scenarios whose name starts with this")
	scenariosCmd.Flags().StringVar(&flagReport, "report", "summary", "report type: summary, detailed, json, markdown")
	scenariosCmd.Flags().DurationVar(&flagTimeout, "timeout", time.Minute, "timeout per scenario")
	scenariosCmd.Flags().BoolVar(&flagList, "list", false, "list matching scenarios without running them")
}
