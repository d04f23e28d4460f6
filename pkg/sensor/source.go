package sensor

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
)

// Source fills buf with the spectrum heard at now.
type Source interface {
	Spectrum(now clock.MonoTime, buf []uint8)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(now clock.MonoTime, buf []uint8)

// Spectrum implements Source.
func (f SourceFunc) Spectrum(now clock.MonoTime, buf []uint8) { f(now, buf) }

func fill(buf []uint8, v uint8) {
	for i := range buf {
		buf[i] = v
	}
}

// Constant is a flat spectrum of one value.
type Constant uint8

// Spectrum implements Source.
func (c Constant) Spectrum(_ clock.MonoTime, buf []uint8) { fill(buf, uint8(c)) }

// Step holds Value from After (relative to the script start) until the next
// step.
type Step struct {
	After time.Duration
	Value uint8
}

// Script is a piecewise-constant flat spectrum. Before the first step it is
// silent.
type Script struct {
	start clock.MonoTime
	steps []Step
}

// NewScript builds a script starting at start. Steps are sorted by After.
func NewScript(start clock.MonoTime, steps ...Step) *Script {
	s := make([]Step, len(steps))
	copy(s, steps)
	sort.SliceStable(s, func(i, j int) bool { return s[i].After < s[j].After })
	return &Script{start: start, steps: s}
}

// Spectrum implements Source.
func (s *Script) Spectrum(now clock.MonoTime, buf []uint8) {
	fill(buf, s.At(now.Sub(s.start)))
}

// At returns the scripted value at offset d.
func (s *Script) At(d time.Duration) uint8 {
	var v uint8
	for _, st := range s.steps {
		if st.After > d {
			break
		}
		v = st.Value
	}
	return v
}

// Square alternates between Low and High every half Period, starting Low.
type Square struct {
	Start  clock.MonoTime
	Period time.Duration
	Low    uint8
	High   uint8
}

// Spectrum implements Source.
func (s Square) Spectrum(now clock.MonoTime, buf []uint8) {
	if s.Period <= 0 {
		fill(buf, s.Low)
		return
	}
	phase := now.Sub(s.Start) % s.Period
	if phase < 0 {
		phase += s.Period
	}
	if phase < s.Period/2 {
		fill(buf, s.Low)
	} else {
		fill(buf, s.High)
	}
}

// Noise is a seeded random spectrum around Mean, each bin within ±Spread.
type Noise struct {
	rng    *rand.Rand
	Mean   uint8
	Spread uint8
}

// NewNoise creates a reproducible noise source.
func NewNoise(seed uint64, mean, spread uint8) *Noise {
	return &Noise{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), Mean: mean, Spread: spread}
}

// Spectrum implements Source.
func (n *Noise) Spectrum(_ clock.MonoTime, buf []uint8) {
	for i := range buf {
		v := int(n.Mean)
		if n.Spread > 0 {
			v += n.rng.IntN(2*int(n.Spread)+1) - int(n.Spread)
		}
		buf[i] = uint8(max(0, min(255, v)))
	}
}
