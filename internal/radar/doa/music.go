package doa

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/radarcore/internal/radar"
)

// Numerical limits for the pseudo-spectrum and conditioning checks.
const (
	// denominatorFloor keeps 1/|a†EnEn†a| finite when a steering vector
	// lies exactly in the signal subspace.
	denominatorFloor = 1e-14
	// rankTolerance is the fraction of the largest eigenvalue below which
	// an eigenvalue counts as zero.
	rankTolerance = 1e-10
	// maxGapRatio is the largest noise/signal eigenvalue ratio (λ_{K+1}/λ_K)
	// still considered a clean subspace split.
	maxGapRatio = 0.5
)

// Config holds MUSIC parameters.
type Config struct {
	Sources int     // assumed source count K
	Grid    Grid    // candidate angles
	Spacing float64 // element spacing in wavelengths
}

// Estimate is the outcome of one MUSIC run.
type Estimate struct {
	// Angles holds up to Sources angles (degrees), strongest peak first.
	Angles []float64
	// Peaks holds the pseudo-spectrum value of each angle.
	Peaks []float64
	// Eigenvalues of the covariance, descending.
	Eigenvalues []float64
	// Partial is set when fewer than Sources peaks were found.
	Partial bool
	// IllConditioned is set when the covariance had fewer than Sources
	// significant eigenvalues or no clear signal/noise gap.
	IllConditioned bool
}

// Estimator runs MUSIC for a fixed channel count and grid. It keeps its
// eigen-decomposition and projection buffers between calls, so it is not
// safe for concurrent use; use one Estimator per worker.
type Estimator struct {
	channels int
	cfg      Config
	angles   []float64
	steer    *mat.Dense // 2M × len(angles): real parts over imaginary parts

	sym      *mat.SymDense
	eig      mat.EigenSym
	vecs     mat.Dense
	proj     mat.Dense
	values   []float64
	spectrum []float64
}

// New returns an Estimator for an array of the given channel count.
func New(channels int, cfg Config) (*Estimator, error) {
	if channels < 2 {
		return nil, fmt.Errorf("%w: MUSIC needs at least 2 channels, got %d", radar.ErrInvalidConfiguration, channels)
	}
	if cfg.Sources < 1 || cfg.Sources >= channels {
		return nil, fmt.Errorf("%w: %w: %d sources with %d channels leaves no noise subspace",
			radar.ErrInvalidConfiguration, radar.ErrInvalidSourceCount, cfg.Sources, channels)
	}
	if !(cfg.Spacing > 0) {
		return nil, fmt.Errorf("%w: element spacing must be positive, got %g", radar.ErrInvalidConfiguration, cfg.Spacing)
	}
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}

	angles := cfg.Grid.Angles()
	m := channels
	steer := mat.NewDense(2*m, len(angles), nil)
	for k, ang := range angles {
		for n, v := range SteeringVector(m, cfg.Spacing, ang) {
			steer.Set(n, k, real(v))
			steer.Set(n+m, k, imag(v))
		}
	}

	return &Estimator{
		channels: channels,
		cfg:      cfg,
		angles:   angles,
		steer:    steer,
		sym:      mat.NewSymDense(2*m, nil),
		values:   make([]float64, 2*m),
		spectrum: make([]float64, len(angles)),
	}, nil
}

// Channels returns the array size.
func (e *Estimator) Channels() int { return e.channels }

// Angles returns a copy of the search grid.
func (e *Estimator) Angles() []float64 { return append([]float64(nil), e.angles...) }

// Spectrum returns a copy of the MUSIC pseudo-spectrum of cov over the grid.
func (e *Estimator) Spectrum(cov mat.CMatrix) ([]float64, error) {
	if _, err := e.decompose(cov); err != nil {
		return nil, err
	}
	return append([]float64(nil), e.spectrum...), nil
}

// Estimate runs MUSIC on cov. A result with Partial set is returned
// together with ErrPartialDoAEstimate; the angles found are still valid.
func (e *Estimator) Estimate(cov mat.CMatrix) (Estimate, error) {
	est, err := e.decompose(cov)
	if err != nil {
		return est, err
	}

	k := e.cfg.Sources
	peaks := FindPeaks(e.spectrum)
	if len(peaks) > k {
		peaks = peaks[:k]
	}
	est.Angles = make([]float64, len(peaks))
	est.Peaks = make([]float64, len(peaks))
	for i, p := range peaks {
		est.Angles[i] = e.angles[p.Index]
		est.Peaks[i] = p.Value
	}
	if len(peaks) < k {
		est.Partial = true
		return est, fmt.Errorf("found %d of %d sources: %w", len(peaks), k, radar.ErrPartialDoAEstimate)
	}
	return est, nil
}

// decompose eigen-decomposes cov, fills e.spectrum and returns the
// eigenvalue and conditioning part of the estimate.
func (e *Estimator) decompose(cov mat.CMatrix) (Estimate, error) {
	m := e.channels
	if r, c := cov.Dims(); r != m || c != m {
		return Estimate{}, fmt.Errorf("%w: covariance is %dx%d, estimator expects %dx%d",
			radar.ErrInvalidConfiguration, r, c, m, m)
	}

	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			// Symmetrise so round-off in the input cannot break the embedding.
			h := (cov.At(i, j) + cmplx.Conj(cov.At(j, i))) / 2
			e.sym.SetSym(i, j, real(h))
			e.sym.SetSym(i+m, j+m, real(h))
			e.sym.SetSym(i, j+m, -imag(h))
			if i != j {
				e.sym.SetSym(j, i+m, imag(h))
			}
		}
	}

	var est Estimate
	if ok := e.eig.Factorize(e.sym, true); !ok {
		for i := range e.spectrum {
			e.spectrum[i] = 0
		}
		est.IllConditioned = true
		return est, nil
	}
	e.eig.Values(e.values)
	e.eig.VectorsTo(&e.vecs)

	// Values are ascending and pairwise repeated; keep one of each pair.
	est.Eigenvalues = make([]float64, m)
	for i := range est.Eigenvalues {
		est.Eigenvalues[i] = e.values[2*m-1-2*i]
	}
	est.IllConditioned = illConditioned(est.Eigenvalues, e.cfg.Sources)

	noiseDim := 2 * (m - e.cfg.Sources)
	en := e.vecs.Slice(0, 2*m, 0, noiseDim)
	e.proj.Reset()
	e.proj.Mul(en.T(), e.steer)

	raw := e.proj.RawMatrix()
	for k := range e.spectrum {
		var q float64
		for r := 0; r < raw.Rows; r++ {
			v := raw.Data[r*raw.Stride+k]
			q += v * v
		}
		e.spectrum[k] = 1 / math.Max(q, denominatorFloor)
	}
	return est, nil
}

// illConditioned reports whether descending eigenvalues ev lack K
// significant values or a clear gap after the K-th.
func illConditioned(ev []float64, k int) bool {
	top := ev[0]
	if !(top > 0) {
		return true
	}
	signal := ev[k-1]
	if signal <= rankTolerance*top {
		return true
	}
	return ev[k]/signal > maxGapRatio
}
