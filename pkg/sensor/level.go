// Package sensor turns a raw sound spectrum into the sound meter's volume
// and quantized voice band.
package sensor

import (
	"errors"
	"fmt"
)

// Bins is the spectrum size a meter samples each frame.
const Bins = 128

// Band is one quantization band: volumes at or above Min (and below the next
// band's Min) map to Level.
type Band struct {
	Level int
	Name  string
	Color string
	Min   float64
}

// DefaultBands are the five voice bands shown on the meter.
var DefaultBands = []Band{
	{Level: 0, Name: "Silence", Color: "blue", Min: 0},
	{Level: 1, Name: "Whisper", Color: "green", Min: 20},
	{Level: 2, Name: "Conversation", Color: "yellow", Min: 40},
	{Level: 3, Name: "Presenter", Color: "orange", Min: 60},
	{Level: 4, Name: "Outside", Color: "red", Min: 80},
}

// ErrBadBands is returned for an empty or unsorted band table.
var ErrBadBands = errors.New("sensor: bands must be non-empty with ascending Min")

// Quantizer maps a volume in [0, 100] to a band.
type Quantizer struct {
	bands []Band
}

// NewQuantizer validates bands. A nil table uses DefaultBands.
func NewQuantizer(bands []Band) (*Quantizer, error) {
	if bands == nil {
		bands = DefaultBands
	}
	if len(bands) == 0 {
		return nil, ErrBadBands
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].Min <= bands[i-1].Min {
			return nil, fmt.Errorf("%w: band %d min %.1f after %.1f", ErrBadBands, i, bands[i].Min, bands[i-1].Min)
		}
	}
	out := make([]Band, len(bands))
	copy(out, bands)
	return &Quantizer{bands: out}, nil
}

// MustQuantizer is NewQuantizer for static tables.
func MustQuantizer(bands []Band) *Quantizer {
	q, err := NewQuantizer(bands)
	if err != nil {
		panic(err)
	}
	return q
}

// Band returns the band volume falls in. Volumes below the first band's Min
// fall in the first band.
func (q *Quantizer) Band(volume float64) Band {
	for i := len(q.bands) - 1; i >= 0; i-- {
		if volume >= q.bands[i].Min {
			return q.bands[i]
		}
	}
	return q.bands[0]
}

// Level returns the band level for volume.
func (q *Quantizer) Level(volume float64) int {
	return q.Band(volume).Level
}

// Bands returns a copy of the band table.
func (q *Quantizer) Bands() []Band {
	out := make([]Band, len(q.bands))
	copy(out, q.bands)
	return out
}

// Normalize converts a byte spectrum to a volume: the mean bin value scaled
// by twice the sensitivity, capped at 100.
func Normalize(spectrum []uint8, sensitivity float64) float64 {
	if len(spectrum) == 0 || sensitivity <= 0 {
		return 0
	}
	sum := 0
	for _, v := range spectrum {
		sum += int(v)
	}
	avg := float64(sum) / float64(len(spectrum))
	return min(100, avg*sensitivity*2)
}

// ValueFor returns the flat spectrum value that normalizes to at least
// volume at sensitivity.
func ValueFor(volume, sensitivity float64) uint8 {
	if sensitivity <= 0 || volume <= 0 {
		return 0
	}
	v := volume / (2 * sensitivity)
	if v >= 255 {
		return 255
	}
	n := uint8(v)
	if float64(n) < v {
		n++
	}
	return n
}
