// Command liveboard runs classroom boards: an interactive demo, a headless
// runner for board files, and the scenario suite.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BYTE-6D65/liveboard/pkg/board"
)

const version = "0.1.0"

var (
	// configFile is set by the --config flag.
	configFile string
	verbose    bool

	// cfg is loaded once by PersistentPreRunE.
	cfg    board.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "liveboard",
	Short: "Liveboard runs shared classroom boards",
	Long: `Liveboard runs a board of classroom widgets (time tools, traffic
lights, sound meters, expectations) on a frame loop. Timers count against
the clock, and automation links let one widget drive another: a finished
countdown turns the light red, a loud room does the same after a short
hold, and the expected voice level retunes the microphone.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./liveboard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug diagnostics")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(scenariosCmd)
}

// setup loads the config and the logger every command shares.
func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if cmd.Name() == "version" {
		return nil
	}

	loaded, err := board.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	logger.Debug("config loaded", "origin", cfg.Origin, "store", cfg.Store.Driver, "policy", cfg.TargetPolicy)
	return nil
}
