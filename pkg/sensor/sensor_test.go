package sensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
)

func TestQuantizer_DefaultBands(t *testing.T) {
	q := MustQuantizer(nil)

	tests := []struct {
		volume float64
		want   int
	}{
		{0, 0}, {19.9, 0}, {20, 1}, {39, 1}, {40, 2}, {60, 3}, {79.99, 3}, {80, 4}, {100, 4}, {-5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, q.Level(tt.volume), "volume %.2f", tt.volume)
	}
	assert.Equal(t, "Outside", q.Band(95).Name)
	assert.Len(t, q.Bands(), 5)
}

func TestNewQuantizer_Validates(t *testing.T) {
	_, err := NewQuantizer([]Band{})
	assert.ErrorIs(t, err, ErrBadBands)

	_, err = NewQuantizer([]Band{{Level: 0, Min: 0}, {Level: 1, Min: 0}})
	assert.ErrorIs(t, err, ErrBadBands)

	q, err := NewQuantizer([]Band{{Level: 0, Min: 0}, {Level: 1, Min: 50}})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Level(50))
}

func TestNormalize(t *testing.T) {
	flat := func(v uint8) []uint8 {
		buf := make([]uint8, Bins)
		fill(buf, v)
		return buf
	}

	assert.Equal(t, 20.0, Normalize(flat(10), 1))
	assert.Equal(t, 40.0, Normalize(flat(10), 2))
	assert.Equal(t, 100.0, Normalize(flat(200), 1), "capped")
	assert.Zero(t, Normalize(nil, 1))
	assert.Zero(t, Normalize(flat(100), 0), "zero sensitivity mutes")

	mixed := []uint8{0, 20}
	assert.Equal(t, 20.0, Normalize(mixed, 1))
}

func TestValueFor(t *testing.T) {
	for _, sens := range []float64{0.5, 1, 1.5, 2.5, 4} {
		for _, vol := range []float64{20, 40, 60, 80} {
			v := ValueFor(vol, sens)
			buf := make([]uint8, Bins)
			fill(buf, v)
			assert.GreaterOrEqual(t, Normalize(buf, sens), vol, "vol %.0f sens %.1f", vol, sens)
		}
	}
	assert.Zero(t, ValueFor(10, 0))
	assert.Equal(t, uint8(255), ValueFor(1000, 0.1))
}

func TestScript(t *testing.T) {
	s := NewScript(0,
		Step{After: 2 * time.Second, Value: 50},
		Step{After: time.Second, Value: 10},
	)
	assert.Equal(t, uint8(0), s.At(500*time.Millisecond))
	assert.Equal(t, uint8(10), s.At(time.Second))
	assert.Equal(t, uint8(50), s.At(time.Hour))
}

func TestSquare(t *testing.T) {
	sq := Square{Period: time.Second, Low: 1, High: 9}
	buf := make([]uint8, 4)

	sq.Spectrum(clock.FromDuration(100*time.Millisecond), buf)
	assert.Equal(t, uint8(1), buf[0])
	sq.Spectrum(clock.FromDuration(600*time.Millisecond), buf)
	assert.Equal(t, uint8(9), buf[3])
	sq.Spectrum(clock.FromDuration(1100*time.Millisecond), buf)
	assert.Equal(t, uint8(1), buf[2])
}

func TestNoise_Reproducible(t *testing.T) {
	a, b := NewNoise(7, 40, 10), NewNoise(7, 40, 10)
	ba, bb := make([]uint8, Bins), make([]uint8, Bins)
	a.Spectrum(0, ba)
	b.Spectrum(0, bb)
	assert.Equal(t, ba, bb)
	for _, v := range ba {
		assert.InDelta(t, 40, int(v), 10)
	}
}

func TestMeter_ReportsLevelChanges(t *testing.T) {
	clk := clock.NewDeltaClock(0)
	loop := schedule.NewLoop(clk)
	src := NewScript(0,
		Step{After: 0, Value: ValueFor(5, 1)},
		Step{After: time.Second, Value: ValueFor(85, 1)},
	)
	m := NewMeter("sound-1", src, loop, WithHistory(3))

	var levels []int
	m.OnLevel(func(level int, _ float64) { levels = append(levels, level) })
	m.Mount()
	m.Mount()

	for i := 0; i < 120; i++ {
		clk.Step(16 * time.Millisecond)
		loop.Frame()
	}

	assert.Equal(t, []int{0, 4}, levels, "first frame plus one change")
	assert.Equal(t, 4, m.Level())
	assert.Equal(t, "Outside", m.Band().Name)
	assert.Len(t, m.History(), 3)

	m.Unmount()
	frames, _ := loop.Pending()
	assert.Zero(t, frames)
}

func TestMeter_Sensitivity(t *testing.T) {
	clk := clock.NewDeltaClock(0)
	loop := schedule.NewLoop(clk)
	m := NewMeter("s", Constant(10), loop, WithSensitivity(1))
	m.Mount()

	loop.Frame()
	assert.Equal(t, 20.0, m.Volume())
	assert.Equal(t, 1, m.Level())

	m.SetSensitivity(4)
	loop.Frame()
	assert.Equal(t, 80.0, m.Volume())
	assert.Equal(t, 4, m.Level())
	assert.Equal(t, 4.0, m.Sensitivity())
}
