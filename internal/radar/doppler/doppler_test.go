package doppler

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/dsp"
)

// pulseTrain builds a pulse × bin matrix with a single reflector in bin
// whose phase advances by cyclesPerPulse each pulse.
func pulseTrain(pulses, bins, bin int, cyclesPerPulse, phase0 float64) [][]complex128 {
	out := make([][]complex128, pulses)
	for p := range out {
		out[p] = make([]complex128, bins)
		out[p][bin] = cmplx.Exp(complex(0, phase0+2*math.Pi*cyclesPerPulse*float64(p)))
	}
	return out
}

func peakBin(col func(d int) float64, n int) int {
	best := 0
	for d := 1; d < n; d++ {
		if col(d) > col(best) {
			best = d
		}
	}
	return best
}

func TestStationaryTargetPeaksAtZeroDoppler(t *testing.T) {
	t.Parallel()

	for _, kind := range []dsp.WindowKind{dsp.Rectangular, dsp.Hann, dsp.Hamming} {
		p, err := New(32, kind)
		require.NoError(t, err)

		mag, err := p.Magnitude(pulseTrain(32, 8, 3, 0, 0.7))
		require.NoError(t, err)
		require.Len(t, mag, 32)

		got := peakBin(func(d int) float64 { return mag[d][3] }, 32)
		assert.Equal(t, 0, got, "window %s", kind)
		// Other range bins carry nothing.
		assert.Zero(t, mag[0][2])
	}
}

func TestMovingTargetPeaksAtDopplerBin(t *testing.T) {
	t.Parallel()

	p, err := New(64, dsp.Rectangular)
	require.NoError(t, err)
	mag, err := p.Magnitude(pulseTrain(64, 4, 1, 9.0/64, 0))
	require.NoError(t, err)

	got := peakBin(func(d int) float64 { return mag[d][1] }, 64)
	assert.Equal(t, 9, got)
	// On-bin tone with a rectangular window puts all energy in one bin.
	assert.InDelta(t, 64.0, mag[9][1], 1e-9)
	assert.InDelta(t, 0.0, mag[10][1], 1e-9)
}

func TestShapeValidation(t *testing.T) {
	t.Parallel()

	_, err := New(0, dsp.Hann)
	require.ErrorIs(t, err, radar.ErrInvalidConfiguration)

	p, err := New(4, dsp.Rectangular)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Bins())

	_, err = p.Transform(pulseTrain(3, 4, 0, 0, 0))
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)

	ragged := pulseTrain(4, 4, 0, 0, 0)
	ragged[2] = ragged[2][:3]
	_, err = p.Transform(ragged)
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
}

func TestProcessPairFillsMap(t *testing.T) {
	t.Parallel()

	const pulses, bins = 16, 8
	rp := radar.NewRangeProfile(2, 1, pulses, bins)
	train := pulseTrain(pulses, bins, 5, 3.0/pulses, 0)
	for pulse := 0; pulse < pulses; pulse++ {
		copy(rp.Pulse(1, 0, pulse), train[pulse])
	}

	p, err := New(pulses, dsp.Rectangular)
	require.NoError(t, err)
	m := radar.NewRangeDopplerMap(0, 0, bins, pulses)
	require.NoError(t, p.ProcessPair(rp, 1, 0, m))

	assert.Equal(t, 1, m.Tx)
	assert.Equal(t, 0, m.Rx)
	assert.Equal(t, 3, m.PeakDopplerBin(5))
	assert.InDelta(t, float64(pulses), m.Magnitude[m.Idx(5, 3)], 1e-9)
	assert.InDelta(t, float64(pulses), cmplx.Abs(m.Spectrum[m.Idx(5, 3)]), 1e-9)

	wrong := radar.NewRangeDopplerMap(0, 0, bins+1, pulses)
	assert.ErrorIs(t, p.ProcessPair(rp, 1, 0, wrong), radar.ErrInvalidConfiguration)
}
