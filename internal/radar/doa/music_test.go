package doa

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/radarcore/internal/radar"
)

var fullGrid = Grid{Min: -90, Max: 90, Step: 1}

// sourceCovariance builds Σ a(θ)a(θ)† + noise·I for uncorrelated unit-power
// sources.
func sourceCovariance(m int, spacing, noise float64, anglesDeg ...float64) *mat.CDense {
	cov := mat.NewCDense(m, m, nil)
	for _, ang := range anglesDeg {
		a := SteeringVector(m, spacing, ang)
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				cov.Set(i, j, cov.At(i, j)+a[i]*cmplx.Conj(a[j]))
			}
		}
	}
	for i := 0; i < m; i++ {
		cov.Set(i, i, cov.At(i, i)+complex(noise, 0))
	}
	return cov
}

func mustEstimator(t *testing.T, channels int, cfg Config) *Estimator {
	t.Helper()
	e, err := New(channels, cfg)
	require.NoError(t, err)
	return e
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		channels  int
		cfg       Config
		sourceErr bool
	}{
		{"one channel", 1, Config{Sources: 1, Grid: fullGrid, Spacing: 0.5}, false},
		{"zero sources", 8, Config{Sources: 0, Grid: fullGrid, Spacing: 0.5}, true},
		{"sources equal channels", 8, Config{Sources: 8, Grid: fullGrid, Spacing: 0.5}, true},
		{"sources exceed channels", 4, Config{Sources: 6, Grid: fullGrid, Spacing: 0.5}, true},
		{"zero spacing", 8, Config{Sources: 2, Grid: fullGrid, Spacing: 0}, false},
		{"bad grid", 8, Config{Sources: 2, Grid: Grid{Min: -90, Max: 90}, Spacing: 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.channels, tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
			if tt.sourceErr {
				assert.ErrorIs(t, err, radar.ErrInvalidSourceCount)
			}
		})
	}
}

func TestEstimateTwoSources(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 8, Config{Sources: 2, Grid: fullGrid, Spacing: 0.5})
	est, err := e.Estimate(sourceCovariance(8, 0.5, 0, -20, 30))
	require.NoError(t, err)

	require.Len(t, est.Angles, 2)
	got := append([]float64(nil), est.Angles...)
	if got[0] > got[1] {
		got[0], got[1] = got[1], got[0]
	}
	assert.InDelta(t, -20, got[0], 1)
	assert.InDelta(t, 30, got[1], 1)
	assert.False(t, est.Partial)
	assert.False(t, est.IllConditioned)

	require.Len(t, est.Eigenvalues, 8)
	for i := 1; i < len(est.Eigenvalues); i++ {
		assert.GreaterOrEqual(t, est.Eigenvalues[i-1], est.Eigenvalues[i])
	}
	assert.InDelta(t, 16, est.Eigenvalues[0]+est.Eigenvalues[1], 1e-9, "trace of a two-source covariance")
	assert.InDelta(t, 0, est.Eigenvalues[2], 1e-9)
}

func TestEstimateWithNoise(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 8, Config{Sources: 2, Grid: fullGrid, Spacing: 0.5})
	est, err := e.Estimate(sourceCovariance(8, 0.5, 0.01, -45, 10))
	require.NoError(t, err)
	require.Len(t, est.Angles, 2)
	assert.ElementsMatch(t, []float64{-45, 10}, est.Angles)
	assert.False(t, est.IllConditioned)
	assert.InDelta(t, 0.01, est.Eigenvalues[7], 1e-9)
}

func TestEstimateSingleSource(t *testing.T) {
	t.Parallel()

	for _, spacing := range []float64{0.5, 1} {
		e := mustEstimator(t, 4, Config{Sources: 1, Grid: Grid{Min: -40, Max: 40, Step: 0.5}, Spacing: spacing})
		est, err := e.Estimate(sourceCovariance(4, spacing, 0, 12.5))
		require.NoError(t, err)
		require.Len(t, est.Angles, 1)
		assert.InDelta(t, 12.5, est.Angles[0], 0.5, "spacing %g", spacing)
	}
}

func TestEstimatePartial(t *testing.T) {
	t.Parallel()

	// A five-point grid around a single source has room for only one peak.
	e := mustEstimator(t, 6, Config{Sources: 2, Grid: Grid{Min: -2, Max: 2, Step: 1}, Spacing: 0.5})
	est, err := e.Estimate(sourceCovariance(6, 0.5, 0.1, 0))
	require.ErrorIs(t, err, radar.ErrPartialDoAEstimate)
	assert.True(t, est.Partial)
	assert.Equal(t, []float64{0}, est.Angles)
	assert.True(t, est.IllConditioned, "second eigenvalue is noise")
}

func TestEstimateZeroCovariance(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 4, Config{Sources: 1, Grid: fullGrid, Spacing: 0.5})
	est, err := e.Estimate(mat.NewCDense(4, 4, nil))
	if err != nil {
		assert.ErrorIs(t, err, radar.ErrPartialDoAEstimate)
	}
	assert.True(t, est.IllConditioned)
	for _, ang := range est.Angles {
		assert.False(t, math.IsNaN(ang))
	}
}

func TestEstimateDimensionMismatch(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 4, Config{Sources: 1, Grid: fullGrid, Spacing: 0.5})
	_, err := e.Estimate(mat.NewCDense(3, 3, nil))
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
}

func TestEstimatorReuse(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 8, Config{Sources: 1, Grid: fullGrid, Spacing: 0.5})
	for _, ang := range []float64{-30, 0, 41, -7} {
		est, err := e.Estimate(sourceCovariance(8, 0.5, 0.001, ang))
		require.NoError(t, err)
		require.Len(t, est.Angles, 1)
		assert.Equal(t, ang, est.Angles[0])
	}
}

func TestSpectrumIsCopy(t *testing.T) {
	t.Parallel()

	e := mustEstimator(t, 4, Config{Sources: 1, Grid: fullGrid, Spacing: 0.5})
	cov := sourceCovariance(4, 0.5, 0.01, 20)
	s1, err := e.Spectrum(cov)
	require.NoError(t, err)
	require.Len(t, s1, len(e.Angles()))
	for i := range s1 {
		s1[i] = -1
	}
	s2, err := e.Spectrum(cov)
	require.NoError(t, err)
	peak := FindPeaks(s2)
	require.NotEmpty(t, peak)
	assert.Equal(t, 20.0, e.Angles()[peak[0].Index])
	assert.Positive(t, s2[0])
}
