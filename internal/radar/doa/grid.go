package doa

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/banshee-data/radarcore/internal/radar"
)

// Grid is an inclusive angle search grid in degrees.
type Grid struct {
	Min  float64
	Max  float64
	Step float64
}

// Validate checks the grid.
func (g Grid) Validate() error {
	if !(g.Step > 0) {
		return fmt.Errorf("%w: angle step must be positive, got %g", radar.ErrInvalidConfiguration, g.Step)
	}
	if !(g.Max >= g.Min) {
		return fmt.Errorf("%w: angle grid max %g is below min %g", radar.ErrInvalidConfiguration, g.Max, g.Min)
	}
	if g.Min < -90 || g.Max > 90 {
		return fmt.Errorf("%w: angle grid [%g, %g] exceeds [-90, 90]", radar.ErrInvalidConfiguration, g.Min, g.Max)
	}
	return nil
}

// Angles expands the grid. The endpoint is included when it lies on the
// grid within floating-point tolerance.
func (g Grid) Angles() []float64 {
	n := int(math.Floor((g.Max-g.Min)/g.Step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = g.Min + float64(i)*g.Step
	}
	return out
}

// SteeringVector returns the ULA response of n elements spaced d
// wavelengths apart to a plane wave from angleDeg.
func SteeringVector(n int, d, angleDeg float64) []complex128 {
	a := make([]complex128, n)
	phase := -2 * math.Pi * d * math.Sin(angleDeg*math.Pi/180)
	for i := range a {
		a[i] = cmplx.Exp(complex(0, phase*float64(i)))
	}
	return a
}
