package radar_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/testutil"
)

func TestSampleCubeLayout(t *testing.T) {
	t.Parallel()

	c := radar.NewSampleCube(2, 3, 4, 5)
	testutil.AssertNoError(t, c.Validate())
	assert.Len(t, c.Data, 2*3*4*5)

	c.Set(1, 2, 3, 4, 7+1i)
	assert.Equal(t, len(c.Data)-1, c.Idx(1, 2, 3, 4))
	assert.Equal(t, 7+1i, c.At(1, 2, 3, 4))

	copy(c.Pulse(0, 1, 2), testutil.Tone(5, 0.2))
	assert.Equal(t, complex128(1), c.At(0, 1, 2, 0))
	assert.Len(t, c.Pulse(0, 1, 2), 5)
	assert.Equal(t, 5, cap(c.Pulse(0, 1, 2)), "pulse views cannot grow into the next pulse")
}

func TestSampleCubeValidate(t *testing.T) {
	t.Parallel()

	var nilCube *radar.SampleCube
	assert.ErrorIs(t, nilCube.Validate(), radar.ErrInvalidConfiguration)

	c := radar.NewSampleCube(1, 1, 2, 2)
	c.Data = c.Data[:3]
	testutil.AssertError(t, c.Validate())

	assert.ErrorIs(t, (&radar.SampleCube{Tx: 1, Rx: 0, Pulses: 1, Samples: 1}).Validate(), radar.ErrInvalidConfiguration)
}

func TestRangeProfilePair(t *testing.T) {
	t.Parallel()

	p := radar.NewRangeProfile(2, 2, 3, 4)
	p.Pulse(1, 0, 2)[3] = 9
	rows := p.Pair(1, 0)
	assert.Len(t, rows, 3)
	assert.Equal(t, complex128(9), rows[2][3])
	assert.Equal(t, complex128(9), p.Data[p.Idx(1, 0, 2, 3)])
}

func TestRangeDopplerMapPeak(t *testing.T) {
	t.Parallel()

	m := radar.NewRangeDopplerMap(0, 1, 3, 8)
	row := m.Row(1)
	row[5], row[6] = 4, 4
	assert.Equal(t, 5, m.PeakDopplerBin(1), "ties resolve to the lowest bin")
	assert.Equal(t, 0, m.PeakDopplerBin(2))
	assert.Equal(t, testutil.Argmax(row), m.PeakDopplerBin(1))
	assert.Equal(t, float64(4), m.Magnitude[m.Idx(1, 5)])
}

func TestDetectionMaskCounts(t *testing.T) {
	t.Parallel()

	m := radar.NewDetectionMask(2, 4)
	m.Cells[1], m.Cells[6] = true, true
	m.Skipped[0] = true
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, 1, m.SkippedCount())
}

func TestQualityFlag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flags radar.QualityFlag
		want  string
	}{
		{0, "ok"},
		{radar.FlagAmbiguityUnresolved, "ambiguous"},
		{radar.FlagPartialDoA | radar.FlagIllConditioned, "partial-doa|ill-conditioned"},
		{radar.FlagAmbiguityUnresolved | radar.FlagPartialDoA | radar.FlagIllConditioned, "ambiguous|partial-doa|ill-conditioned"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.flags.String())
	}
	f := radar.FlagAmbiguityUnresolved | radar.FlagIllConditioned
	assert.True(t, f.Has(radar.FlagIllConditioned))
	assert.False(t, f.Has(radar.FlagPartialDoA))
	assert.False(t, f.Has(radar.FlagPartialDoA|radar.FlagIllConditioned))
}

func TestTargetProjections(t *testing.T) {
	t.Parallel()

	tg := radar.Target{
		Detection:   radar.Detection{Magnitude: 12},
		RangeMeters: 40,
		DopplerMps:  -3,
		AzimuthDeg:  math.NaN(),
	}
	f := tg.Features()
	assert.Equal(t, 40.0, f.RangeMeters)
	assert.Equal(t, -3.0, f.DopplerMps)
	assert.Equal(t, 12.0, f.Magnitude)
	assert.True(t, math.IsNaN(f.AzimuthDeg))

	m := tg.Measurement()
	assert.Equal(t, 40.0, m.RangeMeters)
	assert.True(t, m.Time.IsZero())
}
