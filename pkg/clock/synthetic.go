package clock

import (
	"sync"
	"time"
)

// SyntheticClock is a Clock driven by the caller. It replays a recorded
// sequence of frame deltas (including irregular ones) so the clock engine
// can be exercised against jittery frame timing deterministically.
type SyntheticClock interface {
	Clock

	// Load sets the start instant and the sequence of frame deltas to replay
	Load(start MonoTime, deltas []time.Duration)

	// Advance moves to the next delta, optionally sleeping in real time
	Advance()

	// Step moves the clock forward by d without consuming a delta
	Step(d time.Duration)

	// Set jumps the clock to t
	Set(t MonoTime)

	// HasNext returns true if there are more deltas to replay
	HasNext() bool
}

// DeltaClock implements SyntheticClock.
type DeltaClock struct {
	mu sync.RWMutex

	start   MonoTime
	deltas  []time.Duration
	current MonoTime
	index   int
	speed   float64 // playback multiplier when sleeping
	sleep   bool    // if true, Advance sleeps for the (scaled) delta
}

// NewDeltaClock creates a DeltaClock positioned at start. It does not
// sleep unless SetRealtime is enabled.
func NewDeltaClock(start MonoTime) *DeltaClock {
	return &DeltaClock{
		start:   start,
		current: start,
		speed:   1.0,
	}
}

// Load replaces the replay sequence and rewinds to start.
func (d *DeltaClock) Load(start MonoTime, deltas []time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.start = start
	d.current = start
	d.deltas = append([]time.Duration(nil), deltas...)
	d.index = 0
}

// Now returns the current instant.
func (d *DeltaClock) Now() MonoTime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Since returns the duration elapsed since t.
func (d *DeltaClock) Since(t MonoTime) time.Duration {
	return ToDuration(d.Now() - t)
}

// Advance consumes the next delta. With realtime enabled it sleeps for the
// delta scaled by the playback speed, outside the lock.
func (d *DeltaClock) Advance() {
	d.mu.Lock()
	if d.index >= len(d.deltas) {
		d.mu.Unlock()
		return
	}

	delta := d.deltas[d.index]
	d.index++
	d.current += FromDuration(delta)

	var pause time.Duration
	if d.sleep && d.speed > 0 {
		pause = time.Duration(float64(delta) / d.speed)
	}
	d.mu.Unlock()

	if pause > 0 {
		time.Sleep(pause)
	}
}

// Step moves the clock forward by delta.
func (d *DeltaClock) Step(delta time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current += FromDuration(delta)
}

// Set jumps to t. Used to model a late frame or a resumed tab.
func (d *DeltaClock) Set(t MonoTime) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = t
}

// SetRealtime enables sleeping in Advance at the given speed multiplier.
func (d *DeltaClock) SetRealtime(enabled bool, speed float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if speed <= 0 {
		speed = 1.0
	}
	d.sleep = enabled
	d.speed = speed
}

// Rewind returns to the start instant and the first delta.
func (d *DeltaClock) Rewind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = d.start
	d.index = 0
}

// HasNext returns true if there are more deltas to replay.
func (d *DeltaClock) HasNext() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index < len(d.deltas)
}

// Remaining returns the number of deltas left to replay.
func (d *DeltaClock) Remaining() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.deltas) - d.index
}

// Jitter builds a replay sequence of n frames around nominal, alternating
// short and long frames and dropping every dropEvery-th frame into a
// double-length one (dropEvery <= 0 disables drops).
func Jitter(n int, nominal, spread time.Duration, dropEvery int) []time.Duration {
	deltas := make([]time.Duration, n)
	for i := range deltas {
		d := nominal
		if i%2 == 0 {
			d += spread
		} else {
			d -= spread
		}
		if dropEvery > 0 && (i+1)%dropEvery == 0 {
			d += nominal
		}
		if d <= 0 {
			d = time.Millisecond
		}
		deltas[i] = d
	}
	return deltas
}
