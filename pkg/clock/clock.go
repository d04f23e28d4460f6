package clock

import "time"

// MonoTime is an absolute instant in nanoseconds since the Unix epoch.
//
// Instants are persisted into widget documents (a running timer's start
// instant) and read back by other viewers, so they are anchored to wall time.
// Within one process a Clock still advances monotonically.
type MonoTime int64

// Clock provides the time source for the clock engine and the schedulers.
// Every elapsed/remaining value is derived from two MonoTime readings,
// never accumulated frame by frame.
type Clock interface {
	// Now returns the current instant
	Now() MonoTime

	// Since returns the duration elapsed since the given instant
	Since(t MonoTime) time.Duration
}

// ToDuration converts a MonoTime span (nanoseconds) to a time.Duration.
func ToDuration(ns MonoTime) time.Duration {
	return time.Duration(ns)
}

// FromDuration converts a time.Duration to a MonoTime span.
func FromDuration(d time.Duration) MonoTime {
	return MonoTime(d.Nanoseconds())
}

// FromSeconds converts fractional seconds to a MonoTime span.
func FromSeconds(s float64) MonoTime {
	return MonoTime(s * float64(time.Second))
}

// FromTime converts a wall-clock time to a MonoTime instant.
func FromTime(t time.Time) MonoTime {
	return MonoTime(t.UnixNano())
}

// Time converts the instant back to a wall-clock time.
func (m MonoTime) Time() time.Time {
	return time.Unix(0, int64(m))
}

// Add returns the instant shifted by d.
func (m MonoTime) Add(d time.Duration) MonoTime {
	return m + FromDuration(d)
}

// Sub returns the duration m - o.
func (m MonoTime) Sub(o MonoTime) time.Duration {
	return ToDuration(m - o)
}

// Seconds returns the span m - o in fractional seconds.
func (m MonoTime) Seconds(o MonoTime) float64 {
	return float64(m-o) / float64(time.Second)
}

// SystemClock reads wall time once at creation and advances from there on
// the process monotonic clock, so wall-clock steps (NTP, manual changes)
// never make a running timer jump.
type SystemClock struct {
	epoch time.Time // carries the monotonic reading
	base  MonoTime  // wall instant of epoch
}

// NewSystemClock creates a SystemClock anchored at the current time.
func NewSystemClock() *SystemClock {
	now := time.Now()
	return &SystemClock{
		epoch: now,
		base:  FromTime(now),
	}
}

// Now returns the current instant.
func (s *SystemClock) Now() MonoTime {
	return s.base + FromDuration(time.Since(s.epoch))
}

// Since returns the duration elapsed since the given instant.
func (s *SystemClock) Since(t MonoTime) time.Duration {
	return ToDuration(s.Now() - t)
}
