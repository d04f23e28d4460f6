package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// recorder captures every patch before passing it to the store.
type recorder struct {
	next store.Writer

	mu      sync.Mutex
	patches []widget.Patch
	fail    error
}

func (r *recorder) Write(ctx context.Context, id string, p widget.Patch) error {
	r.mu.Lock()
	r.patches = append(r.patches, p.Clone())
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.next.Write(ctx, id, p)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patches)
}

type countingPlayer struct {
	unlocks int
	played  []string
	err     error
}

func (p *countingPlayer) Unlock() error { p.unlocks++; return nil }

func (p *countingPlayer) Play(sound string) error {
	p.played = append(p.played, sound)
	return p.err
}

type fixture struct {
	clk   *clock.DeltaClock
	loop  *schedule.Loop
	store *store.MemoryStore
	rec   *recorder
}

func newFixture(t *testing.T, cfg widget.TimeToolConfig) *fixture {
	t.Helper()
	clk := clock.NewDeltaClock(clock.FromDuration(1000 * time.Hour))
	s := store.NewMemoryStore()
	require.NoError(t, s.Add(context.Background(), widget.New("timer-1", cfg)))
	return &fixture{
		clk:   clk,
		loop:  schedule.NewLoop(clk),
		store: s,
		rec:   &recorder{next: s},
	}
}

func (f *fixture) timer(cfg widget.TimeToolConfig, opts ...Option) *Timer {
	return New("timer-1", cfg, f.clk, f.loop, f.rec, opts...)
}

// run steps the clock by frame and runs one loop frame until d has passed.
func (f *fixture) run(d, frame time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		f.clk.Step(frame)
		f.loop.Frame()
	}
}

func (f *fixture) persisted(t *testing.T) widget.TimeToolConfig {
	t.Helper()
	w, err := f.store.Widget(context.Background(), "timer-1")
	require.NoError(t, err)
	cfg, ok := widget.As[widget.TimeToolConfig](w)
	require.True(t, ok)
	return cfg
}

func countdown(d float64) widget.TimeToolConfig {
	return widget.TimeToolConfig{Mode: widget.ModeTimer, Duration: d, ElapsedTime: d, SelectedSound: widget.SoundGong}
}

func TestTimer_DriftInvariant(t *testing.T) {
	f := newFixture(t, countdown(60))
	tm := f.timer(countdown(60))
	tm.Mount()

	t0 := f.clk.Now()
	tm.Start()

	for _, d := range clock.Jitter(400, 16*time.Millisecond, 11*time.Millisecond, 7) {
		f.clk.Step(d)
		f.loop.Frame()
		k := f.clk.Now().Seconds(t0)
		require.InDelta(t, max(0, 60-k), tm.Display(), 1e-9)
	}
}

func TestTimer_PauseResume(t *testing.T) {
	tests := []struct {
		name string
		cfg  widget.TimeToolConfig
		want float64
	}{
		{"timer", countdown(100), 100 - 3 - 2},
		{"stopwatch", widget.TimeToolConfig{Mode: widget.ModeStopwatch}, 3 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			tm := f.timer(tt.cfg)
			tm.Mount()

			tm.Start()
			f.run(3*time.Second, 100*time.Millisecond)
			tm.Stop()
			f.clk.Step(5 * time.Second) // paused time does not count
			tm.Start()
			f.run(2*time.Second, 100*time.Millisecond)
			tm.Stop()

			assert.InDelta(t, tt.want, tm.Snapshot().BaseElapsed, 1e-6)
			assert.InDelta(t, tt.want, f.persisted(t).ElapsedTime, 1e-6)
			assert.False(t, f.persisted(t).IsRunning)
			assert.Nil(t, f.persisted(t).StartTime)
		})
	}
}

func TestTimer_StartWhileRunningResumesFromNow(t *testing.T) {
	f := newFixture(t, countdown(10))
	tm := f.timer(countdown(10))
	tm.Mount()

	tm.Start()
	f.clk.Step(2 * time.Second)
	tm.Start()

	s := tm.Snapshot()
	assert.True(t, s.Running)
	assert.InDelta(t, 8, s.BaseElapsed, 1e-9)
	assert.Equal(t, f.clk.Now(), s.StartInstant)

	f.clk.Step(time.Second)
	assert.InDelta(t, 7, tm.Display(), 1e-9)

	frames, _ := f.loop.Pending()
	assert.Equal(t, 1, frames, "only one tick chain")
}

func TestTimer_CompletionFiresOnce(t *testing.T) {
	f := newFixture(t, countdown(60))
	player := &countingPlayer{}
	tm := f.timer(countdown(60), WithAlertPlayer(player))

	var completions []Completion
	tm.OnComplete(func(c Completion) {
		// observers see the terminal value
		assert.Zero(t, tm.Display())
		completions = append(completions, c)
	})
	tm.Mount()
	tm.Start()

	f.run(60100*time.Millisecond, 16*time.Millisecond)
	f.run(2*time.Second, 16*time.Millisecond)

	require.Len(t, completions, 1)
	assert.Equal(t, "timer-1", completions[0].WidgetID)
	assert.Equal(t, []string{widget.SoundGong}, player.played)
	assert.Equal(t, 1, player.unlocks)
	assert.Equal(t, "00:00", tm.Formatted())
	assert.False(t, tm.Ticking())

	frames, delays := f.loop.Pending()
	assert.Zero(t, frames)
	assert.Zero(t, delays)

	cfg := f.persisted(t)
	assert.False(t, cfg.IsRunning)
	assert.Zero(t, cfg.ElapsedTime)
	assert.Equal(t, 2, f.rec.count(), "start, then the stop at zero")

	// Restarting at zero is a no-op and does not replay completion.
	tm.Start()
	f.run(time.Second, 16*time.Millisecond)
	assert.False(t, tm.Snapshot().Running)
	assert.Equal(t, 2, f.rec.count())
	assert.Len(t, completions, 1)
	assert.Len(t, player.played, 1)
}

func TestTimer_StaleRemoteEchoDoesNotRefire(t *testing.T) {
	f := newFixture(t, countdown(1))
	tm := f.timer(countdown(1))
	fired := 0
	tm.OnComplete(func(Completion) { fired++ })
	tm.Mount()

	tm.Start()
	start := int64(f.clk.Now())
	f.run(1500*time.Millisecond, 100*time.Millisecond)
	require.Equal(t, 1, fired)

	// Another viewer still has the running document.
	tm.Sync(widget.TimeToolConfig{Mode: widget.ModeTimer, Duration: 1, ElapsedTime: 1, IsRunning: true, StartTime: &start})
	f.run(time.Second, 100*time.Millisecond)

	assert.Equal(t, 1, fired)
	assert.False(t, tm.Ticking())
}

func TestTimer_StopAndResetCancelTick(t *testing.T) {
	f := newFixture(t, countdown(30))
	tm := f.timer(countdown(30))
	tm.Mount()

	tm.Start()
	f.run(time.Second, 100*time.Millisecond)
	assert.True(t, tm.Ticking())

	tm.Stop()
	assert.False(t, tm.Ticking())
	frames, _ := f.loop.Pending()
	assert.Zero(t, frames)

	before := tm.Snapshot()
	tm.Stop()
	assert.Equal(t, before, tm.Snapshot(), "stop is idempotent")

	tm.Start()
	tm.Reset()
	assert.False(t, tm.Ticking())
	assert.Equal(t, 30.0, tm.Display())
	assert.Equal(t, 30.0, tm.Snapshot().BaseDuration)
}

func TestTimer_SetTimeAndMode(t *testing.T) {
	f := newFixture(t, countdown(30))
	tm := f.timer(countdown(30))
	tm.Mount()

	tm.Start()
	tm.SetTime(-4)
	s := tm.Snapshot()
	assert.False(t, s.Running)
	assert.Zero(t, s.BaseDuration)

	tm.SetTime(125)
	assert.Equal(t, "02:05", tm.Formatted())
	assert.Equal(t, 125.0, f.persisted(t).Duration)

	tm.SetMode(widget.ModeStopwatch)
	assert.Equal(t, "00:00.0", tm.Formatted())
	tm.Start()
	f.run(1500*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, "00:01.5", tm.Formatted())

	tm.Reset()
	assert.Zero(t, tm.Display())
	assert.Equal(t, widget.ModeStopwatch, f.persisted(t).Mode)
}

func TestTimer_UnmountKeepsState(t *testing.T) {
	f := newFixture(t, countdown(30))
	tm := f.timer(countdown(30))
	tm.Mount()
	tm.Start()

	tm.Unmount()
	frames, _ := f.loop.Pending()
	assert.Zero(t, frames)
	assert.True(t, tm.Snapshot().Running)

	f.clk.Step(10 * time.Second)
	tm.Mount()
	tm.Mount()
	frames, _ = f.loop.Pending()
	assert.Equal(t, 1, frames)
	assert.InDelta(t, 20, tm.Display(), 1e-9)
}

func TestTimer_Sync(t *testing.T) {
	f := newFixture(t, countdown(10))
	tm := f.timer(countdown(10))
	tm.Mount()

	start := int64(f.clk.Now().Add(-2 * time.Second))
	tm.Sync(widget.TimeToolConfig{Mode: widget.ModeTimer, Duration: 10, ElapsedTime: 10, IsRunning: true, StartTime: &start})

	assert.InDelta(t, 8, tm.Display(), 1e-9)
	assert.True(t, tm.Ticking())
	assert.Zero(t, f.rec.count(), "sync never writes back")

	tm.Sync(countdown(10))
	assert.False(t, tm.Ticking())
}

func TestTimer_FailuresAreReported(t *testing.T) {
	f := newFixture(t, countdown(1))
	errs := event.NewErrorBus(64)
	defer errs.Close()
	sub, err := errs.Subscribe(context.Background())
	require.NoError(t, err)

	player := &countingPlayer{err: errors.New("blocked by host")}
	tm := f.timer(countdown(1), WithAlertPlayer(player), WithErrorBus(errs))
	tm.Mount()

	f.rec.fail = errors.New("offline")
	tm.Start()
	assert.True(t, tm.Snapshot().Running, "write failure does not stop the clock")

	f.run(2*time.Second, 100*time.Millisecond)
	assert.Len(t, player.played, 1)

	codes := map[string]int{}
	for {
		select {
		case evt := <-sub.Events():
			codes[evt.Code]++
			assert.Equal(t, "timer:timer-1", evt.Component)
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, codes[event.CodeWriteFail])
	assert.Equal(t, 1, codes[event.CodeAlertFail])
	assert.Equal(t, 1, codes[event.CodeTimerComplete])
}

func TestTimer_PublishesCompletion(t *testing.T) {
	ctx := context.Background()
	bus := event.NewInMemoryBus()
	defer bus.Close()
	sub, err := bus.Subscribe(ctx, event.Filter{Types: []string{event.EventTypeTimerCompleted}})
	require.NoError(t, err)

	f := newFixture(t, countdown(1))
	tm := f.timer(countdown(1), WithBus(bus))
	tm.Mount()
	tm.Start()
	f.run(1100*time.Millisecond, 100*time.Millisecond)

	select {
	case evt := <-sub.Events():
		var payload event.TimerCompleted
		require.NoError(t, evt.DecodePayload(&payload, event.JSONCodec{}))
		assert.Equal(t, "timer-1", payload.WidgetID)
		assert.Equal(t, widget.SoundGong, payload.Sound)
	case <-time.After(time.Second):
		t.Fatal("expected timer.completed")
	}
}

func TestTimer_NoSoundNoUnlock(t *testing.T) {
	cfg := countdown(5)
	cfg.SelectedSound = ""
	f := newFixture(t, cfg)
	player := &countingPlayer{}
	tm := f.timer(cfg, WithAlertPlayer(player))
	tm.Mount()
	tm.Start()
	f.run(6*time.Second, 250*time.Millisecond)

	assert.Zero(t, player.unlocks)
	assert.Empty(t, player.played)
}
