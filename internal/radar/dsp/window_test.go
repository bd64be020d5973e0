package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   WindowKind
		edge   float64
		centre float64
	}{
		{"rectangular", Rectangular, 1, 1},
		{"hann", Hann, 0, 1},
		{"hamming", Hamming, 0.08, 1},
		{"blackman", Blackman, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window(tt.kind, 65)
			require.Len(t, w, 65)
			assert.InDelta(t, tt.edge, w[0], 1e-9)
			assert.InDelta(t, tt.edge, w[64], 1e-9)
			assert.InDelta(t, tt.centre, w[32], 1e-9)
			for i := range w {
				assert.InDelta(t, w[i], w[64-i], 1e-12, "window must be symmetric")
			}
		})
	}

	assert.Equal(t, []float64{1}, Window(Hann, 1))
}

func TestParseWindow(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]WindowKind{
		"":            Rectangular,
		"none":        Rectangular,
		"Hann":        Hann,
		"hanning":     Hann,
		" hamming ":   Hamming,
		"BLACKMAN":    Blackman,
		"rectangular": Rectangular,
	} {
		got, err := ParseWindow(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseWindow("kaiser")
	assert.Error(t, err)
	assert.Equal(t, "hann", Hann.String())
	assert.Equal(t, "window(9)", WindowKind(9).String())
}

func TestPlanTransformZeroPads(t *testing.T) {
	t.Parallel()

	p := NewPlan(8)
	require.Equal(t, 8, p.Len())

	// A unit impulse has a flat spectrum regardless of padding.
	out := p.Transform(nil, []complex128{1, 0, 0}, nil)
	require.Len(t, out, 8)
	for _, v := range out {
		assert.InDelta(t, 1.0, cmplx.Abs(v), 1e-12)
	}

	// Stale scratch content must not leak into the next transform.
	out = p.Transform(out, []complex128{0}, nil)
	for _, v := range out {
		assert.InDelta(t, 0.0, cmplx.Abs(v), 1e-12)
	}
}

func TestAbs(t *testing.T) {
	t.Parallel()

	got := Abs(nil, []complex128{3 + 4i, -2, complex(0, -1)})
	assert.Equal(t, []float64{5, 2, 1}, got)
	assert.False(t, math.IsNaN(got[0]))
}
