package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a board.
//
// Every Record* helper is safe on a nil *Metrics, so components can take an
// optional metrics handle without guarding each call site.
type Metrics struct {
	// Clock engine
	TimerTicks       *prometheus.CounterVec
	TimerOperations  *prometheus.CounterVec
	TimerCompletions prometheus.Counter
	AlertFailures    prometheus.Counter

	// Automation
	AutomationWrites      *prometheus.CounterVec
	StabilizationRestarts *prometheus.CounterVec

	// Store
	StoreWrites        *prometheus.CounterVec
	StoreWriteDuration *prometheus.HistogramVec

	// Scheduler
	FrameDuration    prometheus.Histogram
	PendingCallbacks *prometheus.GaugeVec

	// Sound
	SoundVolume *prometheus.GaugeVec
	SoundLevel  *prometheus.GaugeVec

	// Diagnostics
	ErrorEvents *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
)

// InitMetrics registers the board metrics on registry (the default registerer
// when nil). Call it once per registry.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	// Frames are budgeted at 16ms; buckets resolve 10µs to 100ms.
	frameBuckets := []float64{
		0.00001, // 10µs
		0.00005, // 50µs
		0.0001,  // 100µs
		0.0005,  // 500µs
		0.001,   // 1ms
		0.002,   // 2ms
		0.005,   // 5ms
		0.008,   // 8ms
		0.016,   // 16ms
		0.033,   // 33ms
		0.1,     // 100ms
	}

	f := promauto.With(registry)
	m := &Metrics{
		TimerTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_timer_ticks_total",
				Help: "Frame callbacks evaluated by running time tools",
			},
			[]string{"mode"},
		),

		TimerOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_timer_operations_total",
				Help: "Clock engine operations (start, stop, reset, set_time, set_mode, sync)",
			},
			[]string{"operation"},
		),

		TimerCompletions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "liveboard_timer_completions_total",
				Help: "Countdowns that reached zero",
			},
		),

		AlertFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "liveboard_alert_failures_total",
				Help: "Alert sounds the host failed to play",
			},
		),

		AutomationWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_automation_writes_total",
				Help: "Automation link outcomes per target (written, suppressed, failed, inert, ambiguous)",
			},
			[]string{"link", "result"},
		),

		StabilizationRestarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_stabilization_restarts_total",
				Help: "Stabilization windows restarted because the desired value changed again",
			},
			[]string{"link"},
		),

		StoreWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_store_writes_total",
				Help: "Widget config writes by kind and status",
			},
			[]string{"kind", "status"},
		),

		StoreWriteDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "liveboard_store_write_duration_seconds",
				Help:    "Time taken to apply a widget config write",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		FrameDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "liveboard_frame_duration_seconds",
				Help:    "Time taken to run one scheduler frame",
				Buckets: frameBuckets,
			},
		),

		PendingCallbacks: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liveboard_pending_callbacks",
				Help: "Scheduled callbacks still outstanding after a frame",
			},
			[]string{"type"},
		),

		SoundVolume: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liveboard_sound_volume",
				Help: "Last normalized sound volume (0-100)",
			},
			[]string{"widget_id"},
		),

		SoundLevel: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "liveboard_sound_level",
				Help: "Last quantized sound band (0-4)",
			},
			[]string{"widget_id"},
		),

		ErrorEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "liveboard_error_events_total",
				Help: "Diagnostics published on the error bus",
			},
			[]string{"component", "code"},
		),
	}

	defaultMetrics = m
	return m
}

// Default returns the default metrics instance.
// If InitMetrics hasn't been called, it will initialize with the default registry.
func Default() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics(nil)
	}
	return defaultMetrics
}

// RecordTick counts one evaluated frame of a running time tool.
func (m *Metrics) RecordTick(mode string) {
	if m == nil {
		return
	}
	m.TimerTicks.WithLabelValues(mode).Inc()
}

// RecordTimerOperation counts one clock engine operation.
func (m *Metrics) RecordTimerOperation(op string) {
	if m == nil {
		return
	}
	m.TimerOperations.WithLabelValues(op).Inc()
}

// RecordCompletion counts a countdown reaching zero.
func (m *Metrics) RecordCompletion() {
	if m == nil {
		return
	}
	m.TimerCompletions.Inc()
}

// RecordAlertFailure counts an alert the host could not play.
func (m *Metrics) RecordAlertFailure() {
	if m == nil {
		return
	}
	m.AlertFailures.Inc()
}

// RecordAutomation counts one link outcome for one target.
func (m *Metrics) RecordAutomation(link, result string) {
	if m == nil {
		return
	}
	m.AutomationWrites.WithLabelValues(link, result).Inc()
}

// RecordRestart counts a superseded stabilization window.
func (m *Metrics) RecordRestart(link string) {
	if m == nil {
		return
	}
	m.StabilizationRestarts.WithLabelValues(link).Inc()
}

// RecordStoreWrite counts a store write and its latency.
func (m *Metrics) RecordStoreWrite(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreWrites.WithLabelValues(kind, status).Inc()
	m.StoreWriteDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// RecordFrame records one scheduler frame. Its signature matches
// schedule.WithFrameObserver.
func (m *Metrics) RecordFrame(frames, delays int, took time.Duration) {
	if m == nil {
		return
	}
	m.FrameDuration.Observe(took.Seconds())
	m.PendingCallbacks.WithLabelValues("frame").Set(float64(frames))
	m.PendingCallbacks.WithLabelValues("delay").Set(float64(delays))
}

// RecordSound records a meter reading.
func (m *Metrics) RecordSound(widgetID string, level int, volume float64) {
	if m == nil {
		return
	}
	m.SoundVolume.WithLabelValues(widgetID).Set(volume)
	m.SoundLevel.WithLabelValues(widgetID).Set(float64(level))
}

// RecordError counts a diagnostic event.
func (m *Metrics) RecordError(component, code string) {
	if m == nil {
		return
	}
	m.ErrorEvents.WithLabelValues(component, code).Inc()
}

// Stopwatch is a helper for timing operations.
type Stopwatch struct {
	start time.Time
}

// NewStopwatch creates a stopwatch started now.
func NewStopwatch() *Stopwatch {
	return &Stopwatch{start: time.Now()}
}

// Observe records the elapsed time in seconds to the given histogram.
func (s *Stopwatch) Observe(histogram prometheus.Observer) {
	histogram.Observe(time.Since(s.start).Seconds())
}

// Elapsed returns the time elapsed since the stopwatch started.
func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}
