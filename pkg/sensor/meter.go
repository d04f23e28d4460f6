package sensor

import (
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
)

// LevelFunc observes a meter's band. It is called on the frame the band
// changes, and once on the first frame after Mount.
type LevelFunc func(level int, volume float64)

// Meter samples a Source every frame while mounted.
type Meter struct {
	id    string
	src   Source
	sched schedule.Scheduler
	quant *Quantizer

	mu          sync.Mutex
	sensitivity float64
	volume      float64
	level       int
	seen        bool
	history     []float64
	historyLen  int
	handle      schedule.Handle
	mounted     bool
	observers   []LevelFunc
	buf         []uint8
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithQuantizer replaces the default bands.
func WithQuantizer(q *Quantizer) MeterOption {
	return func(m *Meter) {
		if q != nil {
			m.quant = q
		}
	}
}

// WithSensitivity sets the initial sensitivity (default 1).
func WithSensitivity(v float64) MeterOption {
	return func(m *Meter) { m.sensitivity = v }
}

// WithHistory sets how many recent volumes History keeps (default 50).
func WithHistory(n int) MeterOption {
	return func(m *Meter) {
		if n > 0 {
			m.historyLen = n
		}
	}
}

// NewMeter creates an unmounted meter for widget id.
func NewMeter(id string, src Source, sched schedule.Scheduler, opts ...MeterOption) *Meter {
	m := &Meter{
		id:          id,
		src:         src,
		sched:       sched,
		quant:       MustQuantizer(DefaultBands),
		sensitivity: 1,
		historyLen:  50,
		buf:         make([]uint8, Bins),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ID returns the sound widget's ID.
func (m *Meter) ID() string { return m.id }

// OnLevel registers an observer.
func (m *Meter) OnLevel(fn LevelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Mount starts sampling on the next frame. Mounting twice is a no-op.
func (m *Meter) Mount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mounted {
		return
	}
	m.mounted = true
	m.seen = false
	m.handle = m.sched.ScheduleFrame(m.tick)
}

// Unmount stops sampling and cancels the pending frame.
func (m *Meter) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = false
	m.sched.Cancel(m.handle)
	m.handle = 0
}

// SetSensitivity changes the gain from the next frame on.
func (m *Meter) SetSensitivity(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensitivity = v
}

// Sensitivity returns the current gain.
func (m *Meter) Sensitivity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sensitivity
}

// Volume returns the last sampled volume.
func (m *Meter) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Level returns the last sampled band level.
func (m *Meter) Level() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Band returns the last sampled band.
func (m *Meter) Band() Band {
	return m.quant.Band(m.Volume())
}

// History returns recent volumes, oldest first.
func (m *Meter) History() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Meter) tick(now clock.MonoTime) {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return
	}
	m.src.Spectrum(now, m.buf)
	vol := Normalize(m.buf, m.sensitivity)
	level := m.quant.Level(vol)

	m.volume = vol
	m.history = append(m.history, vol)
	if len(m.history) > m.historyLen {
		m.history = m.history[len(m.history)-m.historyLen:]
	}
	changed := !m.seen || level != m.level
	m.seen = true
	m.level = level
	observers := m.observers
	m.handle = m.sched.ScheduleFrame(m.tick)
	m.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(level, vol)
		}
	}
}
