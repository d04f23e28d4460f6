package clock

import "sync"

// Truer maps instants written by another host (a remote viewer persisting a
// timer's start instant) onto this host's clock using an affine fit:
// local = a*remote + b.
type Truer interface {
	// Observe records a pair of (remote, local) readings of the same moment
	Observe(remote MonoTime, local MonoTime)

	// True maps a remote instant to local time using the current fit
	True(remote MonoTime) MonoTime

	// Snapshot returns the current (a, b) coefficients
	Snapshot() (a float64, b float64)
}

// AffineTruer fits the mapping over a rolling window of observations.
//
// Unix-nanosecond instants are ~1.7e18, so sums of squares lose all
// precision in float64. The fit is computed on offsets from the newest
// observation instead.
type AffineTruer struct {
	mu sync.RWMutex

	a      float64
	origin MonoTime // remote instant the fit is centered on
	offset float64  // local - remote at origin

	window []pair
	next   int
	count  int
}

type pair struct {
	remote MonoTime
	local  MonoTime
}

// NewAffineTruer creates a Truer with the given window size (minimum 2).
func NewAffineTruer(windowSize int) *AffineTruer {
	if windowSize < 2 {
		windowSize = 10
	}
	return &AffineTruer{
		a:      1.0,
		window: make([]pair, windowSize),
	}
}

// Observe adds a (remote, local) pair and refits.
func (t *AffineTruer) Observe(remote MonoTime, local MonoTime) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window[t.next] = pair{remote: remote, local: local}
	t.next = (t.next + 1) % len(t.window)
	if t.count < len(t.window) {
		t.count++
	}
	t.refit(remote)
}

// refit must be called with the lock held.
func (t *AffineTruer) refit(origin MonoTime) {
	n := float64(t.count)
	var sumX, sumY float64
	for i := 0; i < t.count; i++ {
		p := t.window[i]
		sumX += float64(p.remote - origin)
		sumY += float64(p.local - p.remote)
	}
	meanX := sumX / n
	meanY := sumY / n

	t.origin = origin
	t.offset = meanY

	if t.count < 2 {
		t.a = 1.0
		return
	}

	// Regress the offset (local-remote) on the remote reading: its slope is a-1.
	var sxx, sxy float64
	for i := 0; i < t.count; i++ {
		p := t.window[i]
		dx := float64(p.remote-origin) - meanX
		dy := float64(p.local-p.remote) - meanY
		sxx += dx * dx
		sxy += dx * dy
	}
	if sxx < 1 {
		t.a = 1.0
		return
	}

	slope := sxy / sxx
	// Real oscillators drift well under 100ppm.
	if slope < -0.001 {
		slope = -0.001
	}
	if slope > 0.001 {
		slope = 0.001
	}
	t.a = 1.0 + slope
	t.offset = meanY - slope*meanX
}

// True maps a remote instant onto the local clock.
func (t *AffineTruer) True(remote MonoTime) MonoTime {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.count == 0 {
		return remote
	}
	dx := float64(remote - t.origin)
	return remote + MonoTime(t.offset+(t.a-1.0)*dx)
}

// Snapshot returns (a, b) such that local ≈ a*remote + b.
func (t *AffineTruer) Snapshot() (a float64, b float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.a, t.offset - (t.a-1.0)*float64(t.origin)
}

// IdentityTruer performs no mapping. Used for writes from this host.
type IdentityTruer struct{}

// NewIdentityTruer creates a no-op Truer.
func NewIdentityTruer() *IdentityTruer {
	return &IdentityTruer{}
}

// Observe does nothing.
func (t *IdentityTruer) Observe(remote MonoTime, local MonoTime) {}

// True returns the instant unchanged.
func (t *IdentityTruer) True(remote MonoTime) MonoTime {
	return remote
}

// Snapshot returns the identity transform.
func (t *IdentityTruer) Snapshot() (a float64, b float64) {
	return 1.0, 0.0
}
