// Package schedule provides the two cooperative scheduling primitives the
// clock engine and the automation links run on: "call me on the next frame"
// and "call me after a delay". Both return a Handle that can be cancelled
// any number of times.
package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
)

// ErrLoopClosed is returned by Run after Close.
var ErrLoopClosed = errors.New("schedule: loop closed")

// Handle identifies one scheduled callback. Handles are never reused.
// The zero Handle is never issued and cancelling it is a no-op.
type Handle uint64

// FrameFunc is called once on the next frame with the frame's instant.
type FrameFunc func(now clock.MonoTime)

// Scheduler is the host scheduling capability.
type Scheduler interface {
	// ScheduleFrame runs fn once on the next frame. Callbacks registered
	// while a frame is running run on the following frame.
	ScheduleFrame(fn FrameFunc) Handle

	// ScheduleDelay runs fn once, on the first frame at or after now+d.
	ScheduleDelay(d time.Duration, fn func()) Handle

	// Cancel drops a pending callback. Idempotent.
	Cancel(h Handle)
}

type delayed struct {
	handle   Handle
	deadline clock.MonoTime
	fn       func()
}

// Loop is a single-goroutine Scheduler. Every callback runs on the goroutine
// calling Frame (directly, or through Run), one after another, so callbacks
// never race each other.
type Loop struct {
	mu     sync.Mutex
	clock  clock.Clock
	period time.Duration
	last   Handle
	frames map[Handle]FrameFunc
	delays map[Handle]delayed
	closed bool
	done   chan struct{}

	observer func(frames, delays int, took time.Duration)
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithFramePeriod sets the frame period used by Run (default 16ms).
func WithFramePeriod(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.period = d
		}
	}
}

// WithFrameObserver registers a hook called after every frame with the
// number of callbacks still pending and how long the frame took.
func WithFrameObserver(fn func(frames, delays int, took time.Duration)) LoopOption {
	return func(l *Loop) {
		l.observer = fn
	}
}

// NewLoop creates a Loop reading time from clk.
func NewLoop(clk clock.Clock, opts ...LoopOption) *Loop {
	l := &Loop{
		clock:  clk,
		period: 16 * time.Millisecond,
		frames: make(map[Handle]FrameFunc),
		delays: make(map[Handle]delayed),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ScheduleFrame implements Scheduler.
func (l *Loop) ScheduleFrame(fn FrameFunc) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last++
	if !l.closed {
		l.frames[l.last] = fn
	}
	return l.last
}

// ScheduleDelay implements Scheduler.
func (l *Loop) ScheduleDelay(d time.Duration, fn func()) Handle {
	deadline := l.clock.Now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.last++
	if !l.closed {
		l.delays[l.last] = delayed{handle: l.last, deadline: deadline, fn: fn}
	}
	return l.last
}

// Post runs fn on the loop goroutine during the next frame.
func (l *Loop) Post(fn func()) Handle {
	return l.ScheduleDelay(0, fn)
}

// Cancel implements Scheduler.
func (l *Loop) Cancel(h Handle) {
	if h == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.frames, h)
	delete(l.delays, h)
}

// Pending reports how many frame and delay callbacks are outstanding.
func (l *Loop) Pending() (frames, delays int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames), len(l.delays)
}

// Frame runs one frame: every frame callback registered before the frame
// started, in registration order, then every delay that is due, in deadline
// order. It returns the number of callbacks run.
//
// A callback cancelled by an earlier callback in the same frame does not run.
func (l *Loop) Frame() int {
	started := time.Now()
	now := l.clock.Now()

	l.mu.Lock()
	frameHandles := make([]Handle, 0, len(l.frames))
	for h := range l.frames {
		frameHandles = append(frameHandles, h)
	}
	var due []delayed
	for _, d := range l.delays {
		if d.deadline <= now {
			due = append(due, d)
		}
	}
	l.mu.Unlock()

	sort.Slice(frameHandles, func(i, j int) bool { return frameHandles[i] < frameHandles[j] })
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline < due[j].deadline
		}
		return due[i].handle < due[j].handle
	})

	ran := 0
	for _, h := range frameHandles {
		if fn, ok := l.take(h); ok {
			fn.(FrameFunc)(now)
			ran++
		}
	}
	for _, d := range due {
		if fn, ok := l.take(d.handle); ok {
			fn.(func())()
			ran++
		}
	}

	if l.observer != nil {
		frames, delays := l.Pending()
		l.observer(frames, delays, time.Since(started))
	}
	return ran
}

// take removes a pending callback, reporting whether it was still pending.
func (l *Loop) take(h Handle) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn, ok := l.frames[h]; ok {
		delete(l.frames, h)
		return fn, true
	}
	if d, ok := l.delays[h]; ok {
		delete(l.delays, h)
		return d.fn, true
	}
	return nil, false
}

// Run drives Frame at the configured period until ctx is cancelled or the
// loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrLoopClosed
		case <-ticker.C:
			l.Frame()
		}
	}
}

// Close drops every pending callback and stops Run. Scheduling after Close
// still returns unique handles but the callbacks never run.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.frames = make(map[Handle]FrameFunc)
	l.delays = make(map[Handle]delayed)
	close(l.done)
}
