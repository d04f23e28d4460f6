package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/BYTE-6D65/liveboard/pkg/board"
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/telemetry"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

var (
	flagBoard  string
	flagFor    time.Duration
	flagStatus time.Duration
	flagExport string
	flagSilent bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a board headless",
	Long: `Run a board on the real clock until interrupted (or for --for).

With --board, widgets are seeded from a YAML board file, scripted sound
sources drive the meters, and the file's actions are played on schedule.
With store.driver=sqlite the board survives restarts. Diagnostics are
logged; /metrics is served when metrics_addr is set.`,
	Example: `  liveboard run --board classroom.yaml --for 2m
  LIVEBOARD_STORE_DRIVER=sqlite liveboard run --board classroom.yaml --export out.yaml`,
	Args: cobra.NoArgs,
	RunE: runBoard,
}

func init() {
	runCmd.Flags().StringVar(&flagBoard, "board", "", "board file to seed and play")
	runCmd.Flags().DurationVar(&flagFor, "for", 0, "stop after this long (0 runs until interrupted)")
	runCmd.Flags().DurationVar(&flagStatus, "status", 5*time.Second, "status line interval (0 disables)")
	runCmd.Flags().StringVar(&flagExport, "export", "", "write the final board to this file")
	runCmd.Flags().BoolVar(&flagSilent, "silent", false, "do not ring the terminal bell on alerts")
}

func runBoard(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagFor)
		defer cancel()
	}

	var file *board.File
	if flagBoard != "" {
		f, err := board.LoadFile(flagBoard)
		if err != nil {
			return err
		}
		file = &f
	}

	errs := event.NewErrorBus(cfg.ErrorBusBuffer)
	defer errs.Close()
	if _, err := logErrors(ctx, errs, logger); err != nil {
		return fmt.Errorf("log sink: %w", err)
	}

	clk := clock.NewSystemClock()
	opts := []board.Option{board.WithClock(clk), board.WithErrorBus(errs)}
	if !flagSilent {
		opts = append(opts, board.WithAlertPlayer(&bell{w: cmd.OutOrStdout()}))
	}
	if file != nil {
		opts = append(opts, board.WithSoundSources(file.Sources(clk.Now())))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, board.WithMetrics(telemetry.InitMetrics(reg)))
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer srv.Close()
	}

	b, err := board.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if file != nil {
		if err := file.Seed(ctx, b.Store()); err != nil {
			return err
		}
	}
	if err := b.Mount(ctx); err != nil {
		return err
	}
	if file != nil {
		b.Do(func() { b.Play(file.Actions) })
	}
	if flagStatus > 0 {
		var status func()
		status = func() {
			logger.Info("board", "widgets", statusLine(b))
			b.Loop().ScheduleDelay(flagStatus, status)
		}
		b.Loop().ScheduleDelay(flagStatus, status)
	}

	logger.Info("board running", "origin", b.Origin(), "widgets", len(b.Mounted()), "store", cfg.Store.Driver)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Info("board stopping", "widgets", statusLine(b))

	if flagExport != "" {
		b.Flush()
		out, err := board.Export(context.Background(), b.Store())
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := out.Save(flagExport); err != nil {
			return err
		}
		logger.Info("board exported", "path", flagExport)
	}
	return nil
}

// statusLine summarizes every mounted widget in mount order.
func statusLine(b *board.Board) string {
	parts := make([]string, 0, len(b.Mounted()))
	for _, e := range b.Mounted() {
		id := e.Key
		switch e.Value {
		case widget.KindTimeTool:
			if t, ok := b.Timer(id); ok {
				parts = append(parts, fmt.Sprintf("%s=%s", id, t.Formatted()))
			}
		case widget.KindSound:
			if m, ok := b.Meter(id); ok {
				parts = append(parts, fmt.Sprintf("%s=%s(%.0f)", id, m.Band().Name, m.Volume()))
			}
		case widget.KindTraffic:
			w, err := b.Store().Widget(context.Background(), id)
			if err != nil {
				continue
			}
			if tc, ok := widget.As[widget.TrafficConfig](w); ok {
				parts = append(parts, fmt.Sprintf("%s=%s", id, lamp(tc.Active)))
			}
		}
	}
	return strings.Join(parts, " ")
}

func lamp(c widget.TrafficColor) string {
	if c == widget.TrafficNone {
		return "off"
	}
	return string(c)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}
