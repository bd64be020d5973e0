package doa

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/radarcore/internal/radar"
)

func TestGridAngles(t *testing.T) {
	t.Parallel()

	a := Grid{Min: -90, Max: 90, Step: 1}.Angles()
	require.Len(t, a, 181)
	assert.Equal(t, -90.0, a[0])
	assert.Equal(t, 90.0, a[180])

	assert.Len(t, Grid{Min: -1, Max: 1, Step: 0.1}.Angles(), 21)
	assert.Equal(t, []float64{0, 0.75}, Grid{Min: 0, Max: 1, Step: 0.75}.Angles())
	assert.Equal(t, []float64{5}, Grid{Min: 5, Max: 5, Step: 1}.Angles())
}

func TestGridValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Grid{Min: -90, Max: 90, Step: 1}.Validate())
	for _, g := range []Grid{
		{Min: -90, Max: 90, Step: 0},
		{Min: -90, Max: 90, Step: -1},
		{Min: 10, Max: -10, Step: 1},
		{Min: -91, Max: 0, Step: 1},
		{Min: 0, Max: 95, Step: 1},
	} {
		assert.ErrorIs(t, g.Validate(), radar.ErrInvalidConfiguration, "%+v", g)
	}
}

func TestSteeringVector(t *testing.T) {
	t.Parallel()

	for _, v := range SteeringVector(6, 0.5, 0) {
		assert.InDelta(t, 0, cmplx.Abs(v-1), 1e-12)
	}

	a := SteeringVector(4, 0.5, 30)
	assert.InDelta(t, 0, cmplx.Abs(a[0]-1), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(a[1]-complex(0, -1)), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(a[2]+1), 1e-12)
	for _, v := range a {
		assert.InDelta(t, 1, cmplx.Abs(v), 1e-12)
	}
}

func TestCovariance(t *testing.T) {
	t.Parallel()

	x := []complex128{1, complex(0, 1), 2}
	cov, err := Covariance([][]complex128{x, x})
	require.NoError(t, err)

	r, c := cov.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.Equal(t, x[i]*cmplx.Conj(x[j]), cov.At(i, j))
			assert.Equal(t, cov.At(i, j), cmplx.Conj(cov.At(j, i)))
		}
	}
}

func TestCovarianceAveragesSnapshots(t *testing.T) {
	t.Parallel()

	cov, err := Covariance([][]complex128{{1, 0}, {0, 1}})
	require.NoError(t, err)
	assert.Equal(t, complex(0.5, 0), cov.At(0, 0))
	assert.Equal(t, complex(0.5, 0), cov.At(1, 1))
	assert.Equal(t, complex(0, 0), cov.At(0, 1))
}

func TestCovarianceErrors(t *testing.T) {
	t.Parallel()

	_, err := Covariance(nil)
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
	_, err = Covariance([][]complex128{{}})
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
	_, err = Covariance([][]complex128{{1, 2}, {1}})
	assert.ErrorIs(t, err, radar.ErrInvalidConfiguration)
}

func TestFindPeaks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []float64
		want []Peak
	}{
		{"empty", nil, nil},
		{"too short", []float64{1, 2}, nil},
		{"two peaks sorted by value", []float64{0, 1, 0, 2, 0}, []Peak{{3, 2}, {1, 1}}},
		{"plateau centre", []float64{0, 1, 1, 1, 0}, []Peak{{2, 1}}},
		{"even plateau", []float64{0, 3, 3, 0}, []Peak{{1, 3}}},
		{"endpoints ignored", []float64{3, 1, 2}, nil},
		{"monotonic", []float64{1, 2, 3, 4}, nil},
		{"plateau at edge", []float64{0, 1, 1}, nil},
		{"ties keep grid order", []float64{0, 5, 0, 5, 0}, []Peak{{1, 5}, {3, 5}}},
		{"shoulder is not a peak", []float64{0, 2, 2, 3, 0}, []Peak{{3, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindPeaks(tt.in))
		})
	}
}

func TestCovarianceIntoReusesBuffer(t *testing.T) {
	t.Parallel()

	dst := mat.NewCDense(2, 2, nil)
	require.NoError(t, CovarianceInto(dst, [][]complex128{{1, 1}}))
	require.NoError(t, CovarianceInto(dst, [][]complex128{{2, 0}}))
	assert.Equal(t, complex(4, 0), dst.At(0, 0))
	assert.Equal(t, complex(0, 0), dst.At(0, 1), "previous contents are overwritten")

	assert.ErrorIs(t, CovarianceInto(mat.NewCDense(3, 3, nil), [][]complex128{{1, 1}}), radar.ErrInvalidConfiguration)
}
