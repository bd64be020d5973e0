package doa

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/radarcore/internal/radar"
)

// Covariance estimates the spatial covariance (1/N)·Σ x·x† of N snapshots
// of equal length.
func Covariance(snapshots [][]complex128) (*mat.CDense, error) {
	if len(snapshots) == 0 || len(snapshots[0]) == 0 {
		return nil, fmt.Errorf("%w: covariance needs at least one non-empty snapshot", radar.ErrInvalidConfiguration)
	}
	m := len(snapshots[0])
	dst := mat.NewCDense(m, m, nil)
	if err := CovarianceInto(dst, snapshots); err != nil {
		return nil, err
	}
	return dst, nil
}

// CovarianceInto is Covariance writing into an existing square matrix whose
// size matches the snapshot length.
func CovarianceInto(dst *mat.CDense, snapshots [][]complex128) error {
	if len(snapshots) == 0 || len(snapshots[0]) == 0 {
		return fmt.Errorf("%w: covariance needs at least one non-empty snapshot", radar.ErrInvalidConfiguration)
	}
	m := len(snapshots[0])
	if r, c := dst.Dims(); r != m || c != m {
		return fmt.Errorf("%w: covariance buffer is %dx%d, snapshots have %d channels", radar.ErrInvalidConfiguration, r, c, m)
	}
	for s, x := range snapshots {
		if len(x) != m {
			return fmt.Errorf("%w: snapshot %d has %d channels, expected %d", radar.ErrInvalidConfiguration, s, len(x), m)
		}
	}

	scale := complex(1/float64(len(snapshots)), 0)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			var sum complex128
			for _, x := range snapshots {
				sum += x[i] * cmplx.Conj(x[j])
			}
			dst.Set(i, j, sum*scale)
		}
	}
	return nil
}
