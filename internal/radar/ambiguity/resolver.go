// Package ambiguity reconciles Doppler velocities measured under several
// PRFs into one unambiguous velocity.
//
// Each PRF folds the true velocity into [0, v_u) with v_u = λ·PRF/2. The
// resolver searches candidate unfoldings of the PRF with the widest
// interval, in increasing order from -tolerance up to a configured maximum
// velocity, and accepts the first candidate that lies within tolerance of
// every other PRF's folded estimate (a Chinese-remainder style match).
package ambiguity

import (
	"fmt"
	"math"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/units"
)

// Config holds resolver parameters.
type Config struct {
	// Intervals is the unambiguous velocity interval (m/s) of each PRF.
	Intervals []float64
	// Tolerance is the largest circular distance (m/s) at which a
	// candidate still matches a PRF's folded estimate.
	Tolerance float64
	// MaxVelocity bounds the search (m/s). Candidates above it are never
	// considered.
	MaxVelocity float64
}

// IntervalsFromPRFs converts PRFs (Hz) into unambiguous velocity intervals
// for the given carrier wavelength.
func IntervalsFromPRFs(prfs []float64, wavelength float64) []float64 {
	out := make([]float64, len(prfs))
	for i, prf := range prfs {
		out[i] = units.UnambiguousVelocity(prf, wavelength)
	}
	return out
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Intervals) == 0 {
		return fmt.Errorf("%w: at least one PRF is required", radar.ErrInvalidConfiguration)
	}
	for i, v := range c.Intervals {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: unambiguous interval %d must be positive, got %g", radar.ErrInvalidConfiguration, i, v)
		}
	}
	if len(c.Intervals) > 1 {
		if !(c.Tolerance >= 0) {
			return fmt.Errorf("%w: ambiguity tolerance must be non-negative, got %g", radar.ErrInvalidConfiguration, c.Tolerance)
		}
		if !(c.MaxVelocity > 0) || math.IsInf(c.MaxVelocity, 0) {
			return fmt.Errorf("%w: max velocity must be positive and finite, got %g", radar.ErrInvalidConfiguration, c.MaxVelocity)
		}
	}
	return nil
}

// Result is the outcome of one resolution.
type Result struct {
	// Velocity is the resolved velocity, or the primary folded estimate
	// when Resolved is false.
	Velocity float64
	// Resolved is false for a single PRF (pass-through) and on failure.
	Resolved bool
	// Candidates is the number of candidate unfoldings examined.
	Candidates int
}

// Resolver resolves Doppler ambiguity for a fixed PRF set. It is
// stateless after construction and safe for concurrent use.
type Resolver struct {
	cfg Config
	ref int // index of the widest interval
}

// New validates cfg and returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ref := 0
	for i, v := range cfg.Intervals {
		if v > cfg.Intervals[ref] {
			ref = i
		}
	}
	cfg.Intervals = append([]float64(nil), cfg.Intervals...)
	return &Resolver{cfg: cfg, ref: ref}, nil
}

// PRFCount returns the number of configured PRFs.
func (r *Resolver) PRFCount() int { return len(r.cfg.Intervals) }

// Resolve takes one folded velocity estimate per configured PRF, in PRF
// order. With a single PRF the estimate is returned unchanged and
// Resolved is false. With two or more, it returns the smallest
// non-negative velocity consistent with every estimate, refined as the
// mean of the per-PRF unfoldings and clamped at zero, or
// ErrAmbiguityUnresolved.
func (r *Resolver) Resolve(estimates []float64) (Result, error) {
	if len(estimates) != len(r.cfg.Intervals) {
		return Result{}, fmt.Errorf("%w: got %d Doppler estimates for %d PRFs",
			radar.ErrInvalidConfiguration, len(estimates), len(r.cfg.Intervals))
	}
	if len(estimates) == 1 {
		return Result{Velocity: estimates[0]}, nil
	}

	folded := make([]float64, len(estimates))
	for i, e := range estimates {
		folded[i] = fold(e, r.cfg.Intervals[i])
	}

	step := r.cfg.Intervals[r.ref]
	res := Result{Velocity: estimates[0]}
	// k = -1 covers a velocity just below zero that folded to the top of
	// every interval.
	for k := -1; ; k++ {
		v := folded[r.ref] + float64(k)*step
		if v < -r.cfg.Tolerance {
			continue
		}
		if v > r.cfg.MaxVelocity+r.cfg.Tolerance {
			break
		}
		res.Candidates++
		if sum, ok := r.match(v, folded); ok {
			res.Velocity = math.Max(sum/float64(len(folded)), 0)
			res.Resolved = true
			return res, nil
		}
	}
	return res, fmt.Errorf("estimates %v within ±%g m/s up to %g m/s: %w",
		estimates, r.cfg.Tolerance, r.cfg.MaxVelocity, radar.ErrAmbiguityUnresolved)
}

// match reports whether candidate v agrees with every folded estimate and
// returns the sum of the unfolded estimates nearest v.
func (r *Resolver) match(v float64, folded []float64) (float64, bool) {
	var sum float64
	for i, f := range folded {
		iv := r.cfg.Intervals[i]
		wraps := math.Round((v - f) / iv)
		unfolded := f + wraps*iv
		if math.Abs(unfolded-v) > r.cfg.Tolerance {
			return 0, false
		}
		sum += unfolded
	}
	return sum, true
}

// fold maps v into [0, interval).
func fold(v, interval float64) float64 {
	f := math.Mod(v, interval)
	if f < 0 {
		f += interval
	}
	return f
}
