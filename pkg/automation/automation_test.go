package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/timer"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

type entry struct {
	id    string
	patch widget.Patch
	at    clock.MonoTime
}

// writeLog records link writes and forwards them to the store.
type writeLog struct {
	next store.Writer
	clk  clock.Clock

	mu      sync.Mutex
	entries []entry
}

func (l *writeLog) Write(ctx context.Context, id string, p widget.Patch) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry{id: id, patch: p.Clone(), at: l.clk.Now()})
	l.mu.Unlock()
	return l.next.Write(ctx, id, p)
}

func (l *writeLog) all() []entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entry(nil), l.entries...)
}

type board struct {
	clk   *clock.DeltaClock
	loop  *schedule.Loop
	store *store.MemoryStore
	ws    *store.Workspace
	log   *writeLog
}

func newBoard(t *testing.T, policy store.TargetPolicy, widgets ...widget.Widget) *board {
	t.Helper()
	clk := clock.NewDeltaClock(clock.FromDuration(500 * time.Hour))
	s := store.NewMemoryStore()
	for _, w := range widgets {
		require.NoError(t, s.Add(context.Background(), w))
	}
	return &board{
		clk:   clk,
		loop:  schedule.NewLoop(clk),
		store: s,
		ws:    store.NewWorkspace(s, policy),
		log:   &writeLog{next: s, clk: clk},
	}
}

func (b *board) frames(d, frame time.Duration, each func(elapsed time.Duration)) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += frame {
		if each != nil {
			each(elapsed)
		}
		b.clk.Step(frame)
		b.loop.Frame()
	}
}

func (b *board) config(t *testing.T, id string) widget.Config {
	t.Helper()
	w, err := b.store.Widget(context.Background(), id)
	require.NoError(t, err)
	return w.Config
}

func drain(sub *event.ErrorSubscription) map[string]int {
	codes := map[string]int{}
	for {
		select {
		case evt := <-sub.Events():
			codes[evt.Code]++
		default:
			return codes
		}
	}
}

func TestCompletion_CountdownTurnsLightRed(t *testing.T) {
	cfg := widget.TimeToolConfig{
		Mode:                 widget.ModeTimer,
		Duration:             60,
		ElapsedTime:          60,
		SelectedSound:        widget.SoundGong,
		TimerEndTrafficLight: widget.Color(widget.TrafficRed),
	}
	b := newBoard(t, store.TargetAll,
		widget.New("timer-1", cfg),
		widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}),
	)

	tm := timer.New("timer-1", cfg, b.clk, b.loop, b.store)
	link := NewCompletionLink("timer-1", CompletionEffects(cfg), b.ws, b.log)
	link.Attach(tm)
	tm.Mount()
	tm.Start()

	b.frames(60100*time.Millisecond, 16*time.Millisecond, nil)

	writes := b.log.all()
	require.Len(t, writes, 1)
	assert.Equal(t, "traffic-1", writes[0].id)
	assert.Equal(t, widget.Patch{"active": "red"}, writes[0].patch)
	assert.Equal(t, "00:00", tm.Formatted())
	assert.Equal(t, widget.TrafficRed, b.config(t, "traffic-1").(widget.TrafficConfig).Active)
	assert.Equal(t, Fired, link.State())
}

func TestCompletion_BothTargets(t *testing.T) {
	cfg := widget.TimeToolConfig{
		Mode:                 widget.ModeTimer,
		TimerEndVoiceLevel:   widget.Int(widget.VoiceSilence),
		TimerEndTrafficLight: widget.Color(widget.TrafficYellow),
	}
	b := newBoard(t, store.TargetAll,
		widget.New("e", widget.ExpectationsConfig{VoiceLevel: widget.Int(2)}),
		widget.New("light", widget.TrafficConfig{}),
	)
	link := NewCompletionLink("timer-1", CompletionEffects(cfg), b.ws, b.log)

	assert.Equal(t, 2, link.Fire(timer.Completion{WidgetID: "timer-1", At: 1}))
	assert.Zero(t, link.Fire(timer.Completion{WidgetID: "timer-1", At: 1}), "same completion twice")
	assert.Equal(t, 0, *b.config(t, "e").(widget.ExpectationsConfig).VoiceLevel)
	assert.Equal(t, widget.TrafficYellow, b.config(t, "light").(widget.TrafficConfig).Active)

	// The next completion finds both targets converged.
	assert.Zero(t, link.Fire(timer.Completion{WidgetID: "timer-1", At: 2}))
	assert.Len(t, b.log.all(), 2)
}

func TestCompletionEffects(t *testing.T) {
	assert.Empty(t, CompletionEffects(widget.TimeToolConfig{}))
	assert.Empty(t, CompletionEffects(widget.TimeToolConfig{
		TimerEndVoiceLevel:   widget.Int(9),
		TimerEndTrafficLight: widget.Color(widget.TrafficNone),
	}))

	effs := CompletionEffects(widget.TimeToolConfig{TimerEndVoiceLevel: widget.Int(3)})
	require.Len(t, effs, 1)
	assert.True(t, effs[0].Equal(VoiceLevelEffect(3)))
	assert.False(t, effs[0].Equal(VoiceLevelEffect(2)))
}

func TestCompletion_TargetResolution(t *testing.T) {
	twoLights := []widget.Widget{
		widget.New("light-a", widget.TrafficConfig{Active: widget.TrafficGreen}),
		widget.New("light-b", widget.TrafficConfig{Active: widget.TrafficRed}),
	}
	tests := []struct {
		name    string
		policy  store.TargetPolicy
		widgets []widget.Widget
		want    []string
		code    string
	}{
		{"missing target is inert", store.TargetAll, nil, nil, event.CodeTargetMissing},
		{"all writes every light that differs", store.TargetAll, twoLights, []string{"light-a"}, event.CodeWriteSuppressed},
		{"first writes the first light", store.TargetFirst, twoLights, []string{"light-a"}, event.CodeLinkFired},
		{"unique refuses to guess", store.TargetUnique, twoLights, nil, event.CodeAmbiguousTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := event.NewErrorBus(32)
			defer errs.Close()
			sub, err := errs.Subscribe(context.Background())
			require.NoError(t, err)

			b := newBoard(t, tt.policy, tt.widgets...)
			link := NewCompletionLink("timer-1", []Effect{TrafficEffect(widget.TrafficRed)}, b.ws, b.log, WithErrorBus(errs))
			link.Fire(timer.Completion{WidgetID: "timer-1", At: 5})

			var got []string
			for _, w := range b.log.all() {
				got = append(got, w.id)
			}
			assert.Equal(t, tt.want, got)
			assert.Positive(t, drain(sub)[tt.code])
		})
	}
}

func TestThreshold_SoundHold(t *testing.T) {
	b := newBoard(t, store.TargetAll, widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}))
	cfg := SoundTrafficThreshold(widget.SoundConfig{AutoTrafficLight: true, TrafficLightThreshold: 4})
	link := NewThresholdLink("sound-1", cfg, b.loop, b.ws, b.log)

	t0 := b.clk.Now()
	b.frames(1500*time.Millisecond, 16*time.Millisecond, func(time.Duration) { link.Observe(4) })

	writes := b.log.all()
	require.Len(t, writes, 1)
	assert.Equal(t, widget.Patch{"active": "red"}, writes[0].patch)
	assert.InDelta(t, 1.0, writes[0].at.Seconds(t0), 0.02, "written after the stabilization window")
	assert.Equal(t, Fired, link.State())
}

func TestThreshold_NoFlap(t *testing.T) {
	b := newBoard(t, store.TargetAll, widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}))
	cfg := SoundTrafficThreshold(widget.SoundConfig{AutoTrafficLight: true, TrafficLightThreshold: 3})
	link := NewThresholdLink("sound-1", cfg, b.loop, b.ws, b.log)

	flapping := func(e time.Duration) {
		if (e/(300*time.Millisecond))%2 == 0 {
			link.Observe(4)
		} else {
			link.Observe(1)
		}
	}
	b.frames(5*time.Second, 16*time.Millisecond, flapping)
	assert.Empty(t, b.log.all())
	assert.Equal(t, Armed, link.State())

	b.frames(1500*time.Millisecond, 16*time.Millisecond, func(time.Duration) { link.Observe(4) })
	writes := b.log.all()
	require.Len(t, writes, 1)
	assert.Equal(t, "red", writes[0].patch["active"])
}

func TestThreshold_IdempotentConvergence(t *testing.T) {
	errs := event.NewErrorBus(64)
	defer errs.Close()
	sub, err := errs.Subscribe(context.Background())
	require.NoError(t, err)

	b := newBoard(t, store.TargetAll, widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficRed}))
	cfg := SoundTrafficThreshold(widget.SoundConfig{AutoTrafficLight: true, TrafficLightThreshold: 4})
	link := NewThresholdLink("sound-1", cfg, b.loop, b.ws, b.log, WithErrorBus(errs))

	b.frames(3*time.Second, 16*time.Millisecond, func(time.Duration) { link.Observe(4) })

	assert.Empty(t, b.log.all())
	assert.Equal(t, Fired, link.State(), "re-observing the same level does not re-arm")
	codes := drain(sub)
	assert.Equal(t, 1, codes[event.CodeWriteSuppressed])
	assert.Equal(t, 1, codes[event.CodeLinkArmed])
}

func TestThreshold_DisabledAndReconfigured(t *testing.T) {
	b := newBoard(t, store.TargetAll, widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}))
	cfg := SoundTrafficThreshold(widget.SoundConfig{AutoTrafficLight: false, TrafficLightThreshold: 4})
	link := NewThresholdLink("sound-1", cfg, b.loop, b.ws, b.log, WithDelay(500*time.Millisecond))

	link.Observe(4)
	eff, ok := link.Desired()
	require.True(t, ok)
	assert.True(t, eff.Equal(TrafficEffect(widget.TrafficRed)), "computed for display")
	_, delays := b.loop.Pending()
	assert.Zero(t, delays)
	assert.Equal(t, Idle, link.State())

	cfg.Enabled = true
	link.Configure(cfg)
	link.Configure(cfg)
	assert.Equal(t, Armed, link.State())
	assert.Equal(t, 500*time.Millisecond, link.Delay())

	b.frames(time.Second, 16*time.Millisecond, nil)
	require.Len(t, b.log.all(), 1)
}

func TestThreshold_CloseCancelsPendingWrite(t *testing.T) {
	b := newBoard(t, store.TargetAll, widget.New("traffic-1", widget.TrafficConfig{Active: widget.TrafficGreen}))
	cfg := SoundTrafficThreshold(widget.SoundConfig{AutoTrafficLight: true, TrafficLightThreshold: 2})
	link := NewThresholdLink("sound-1", cfg, b.loop, b.ws, b.log)

	link.Observe(3)
	b.frames(500*time.Millisecond, 16*time.Millisecond, nil)
	link.Close()
	link.Close()

	_, delays := b.loop.Pending()
	assert.Zero(t, delays)
	b.frames(2*time.Second, 16*time.Millisecond, nil)
	assert.Empty(t, b.log.all())
	assert.Equal(t, Idle, link.State())
}

func TestPeerSync_TracksVoiceLevel(t *testing.T) {
	b := newBoard(t, store.TargetAll,
		widget.New("expect", widget.ExpectationsConfig{VoiceLevel: widget.Int(widget.VoiceSilence)}),
		widget.New("sound-1", widget.SoundConfig{Sensitivity: 1, SyncExpectations: true}),
	)
	ps := NewPeerSync("sound-1", true, b.ws, b.log)

	assert.Equal(t, 1, ps.Refresh())
	assert.Zero(t, ps.Refresh(), "unchanged source")
	writes := b.log.all()
	require.Len(t, writes, 1)
	assert.Equal(t, "sound-1", writes[0].id)
	assert.Equal(t, widget.Patch{"sensitivity": 4.0}, writes[0].patch)

	ctx := context.Background()
	require.NoError(t, b.store.Write(ctx, "expect", widget.VoiceLevel(widget.VoiceConversation)))
	assert.Equal(t, 1, ps.Refresh())
	assert.Equal(t, 1.5, b.config(t, "sound-1").(widget.SoundConfig).Sensitivity)

	// A user moved the slider to the mapped value already: nothing to write.
	require.NoError(t, b.store.Write(ctx, "sound-1", widget.Sensitivity(1.0)))
	assert.Zero(t, ps.Observe(widget.VoicePresenter))
	assert.Len(t, b.log.all(), 2)
}

func TestPeerSync_InertCases(t *testing.T) {
	b := newBoard(t, store.TargetAll,
		widget.New("expect", widget.ExpectationsConfig{}),
		widget.New("sound-1", widget.SoundConfig{Sensitivity: 1}),
	)
	ps := NewPeerSync("sound-1", false, b.ws, b.log, WithTable(SensitivityTable{0: 9}))

	assert.Zero(t, ps.Observe(0), "disabled")
	ps.SetEnabled(true)
	assert.True(t, ps.Enabled())
	assert.Zero(t, ps.Refresh(), "voice level unset")
	assert.Zero(t, ps.Observe(4), "not in table")
	assert.Equal(t, 1, ps.Observe(0))
	assert.Equal(t, 9.0, b.config(t, "sound-1").(widget.SoundConfig).Sensitivity)

	ps.Close()
	assert.False(t, ps.Enabled())
	assert.Equal(t, Idle, ps.State())
}

func TestDefaultSensitivityTable(t *testing.T) {
	want := map[int]float64{0: 4.0, 1: 2.5, 2: 1.5, 3: 1.0, 4: 0.5}
	for level, v := range want {
		got, ok := DefaultSensitivityTable.Lookup(level)
		require.True(t, ok)
		assert.Equal(t, v, got)
	}
	_, ok := DefaultSensitivityTable.Lookup(5)
	assert.False(t, ok)
}
