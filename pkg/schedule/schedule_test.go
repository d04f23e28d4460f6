package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
)

func newTestLoop() (*Loop, *clock.DeltaClock) {
	clk := clock.NewDeltaClock(clock.MonoTime(time.Hour))
	return NewLoop(clk), clk
}

func TestLoop_FrameRunsOnce(t *testing.T) {
	loop, clk := newTestLoop()

	var seen []clock.MonoTime
	loop.ScheduleFrame(func(now clock.MonoTime) { seen = append(seen, now) })

	clk.Step(16 * time.Millisecond)
	assert.Equal(t, 1, loop.Frame())
	assert.Equal(t, 0, loop.Frame())
	require.Len(t, seen, 1)
	assert.Equal(t, clk.Now(), seen[0])
}

func TestLoop_ReRegistrationRunsNextFrame(t *testing.T) {
	loop, _ := newTestLoop()

	count := 0
	var tick FrameFunc
	tick = func(clock.MonoTime) {
		count++
		if count < 3 {
			loop.ScheduleFrame(tick)
		}
	}
	loop.ScheduleFrame(tick)

	for i := 0; i < 5; i++ {
		loop.Frame()
	}
	assert.Equal(t, 3, count)
}

func TestLoop_FrameOrder(t *testing.T) {
	loop, _ := newTestLoop()

	var order []string
	loop.ScheduleDelay(0, func() { order = append(order, "delay") })
	loop.ScheduleFrame(func(clock.MonoTime) { order = append(order, "frame-1") })
	loop.ScheduleFrame(func(clock.MonoTime) { order = append(order, "frame-2") })

	loop.Frame()
	assert.Equal(t, []string{"frame-1", "frame-2", "delay"}, order)
}

func TestLoop_DelayFiresAtDeadline(t *testing.T) {
	loop, clk := newTestLoop()

	fired := 0
	loop.ScheduleDelay(time.Second, func() { fired++ })

	clk.Step(999 * time.Millisecond)
	loop.Frame()
	assert.Equal(t, 0, fired)

	clk.Step(time.Millisecond)
	loop.Frame()
	assert.Equal(t, 1, fired)

	clk.Step(time.Second)
	loop.Frame()
	assert.Equal(t, 1, fired, "delay must fire once")
}

func TestLoop_DelaysRunInDeadlineOrder(t *testing.T) {
	loop, clk := newTestLoop()

	var order []int
	loop.ScheduleDelay(300*time.Millisecond, func() { order = append(order, 3) })
	loop.ScheduleDelay(100*time.Millisecond, func() { order = append(order, 1) })
	loop.ScheduleDelay(200*time.Millisecond, func() { order = append(order, 2) })

	clk.Step(time.Second)
	loop.Frame()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestLoop_CancelIsIdempotent(t *testing.T) {
	loop, clk := newTestLoop()

	fired := false
	h := loop.ScheduleDelay(10*time.Millisecond, func() { fired = true })
	loop.Cancel(h)
	loop.Cancel(h)
	loop.Cancel(0)

	clk.Step(time.Second)
	loop.Frame()
	assert.False(t, fired)

	frames, delays := loop.Pending()
	assert.Zero(t, frames)
	assert.Zero(t, delays)
}

func TestLoop_HandlesAreUnique(t *testing.T) {
	loop, _ := newTestLoop()

	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		var h Handle
		if i%2 == 0 {
			h = loop.ScheduleFrame(func(clock.MonoTime) {})
		} else {
			h = loop.ScheduleDelay(time.Millisecond, func() {})
		}
		require.NotZero(t, h)
		require.False(t, seen[h], "handle %d reused", h)
		seen[h] = true
	}
}

func TestLoop_CancelWithinFrame(t *testing.T) {
	loop, _ := newTestLoop()

	ran := false
	var second Handle
	loop.ScheduleFrame(func(clock.MonoTime) { loop.Cancel(second) })
	second = loop.ScheduleFrame(func(clock.MonoTime) { ran = true })

	assert.Equal(t, 1, loop.Frame())
	assert.False(t, ran, "callback cancelled earlier in the frame must not run")
}

func TestLoop_CloseDropsCallbacks(t *testing.T) {
	loop, clk := newTestLoop()

	ran := false
	loop.ScheduleFrame(func(clock.MonoTime) { ran = true })
	loop.Close()
	loop.Close()

	h := loop.ScheduleDelay(0, func() { ran = true })
	assert.NotZero(t, h)

	clk.Step(time.Second)
	assert.Equal(t, 0, loop.Frame())
	assert.False(t, ran)

	assert.ErrorIs(t, loop.Run(context.Background()), ErrLoopClosed)
}

func TestLoop_RunStopsOnContext(t *testing.T) {
	loop := NewLoop(clock.NewSystemClock(), WithFramePeriod(time.Millisecond))

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted callback never ran")
	}
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestLoop_FrameObserver(t *testing.T) {
	var frames, delays int
	clk := clock.NewDeltaClock(0)
	loop := NewLoop(clk, WithFrameObserver(func(f, d int, _ time.Duration) {
		frames, delays = f, d
	}))

	loop.ScheduleFrame(func(clock.MonoTime) {
		loop.ScheduleFrame(func(clock.MonoTime) {})
	})
	loop.ScheduleDelay(time.Minute, func() {})
	loop.Frame()

	assert.Equal(t, 1, frames)
	assert.Equal(t, 1, delays)
}
