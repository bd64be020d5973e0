// Package rangeproc performs range compression: a tapered, zero-padded FFT
// over the range samples of each pulse.
//
// Bin k of an M-point transform of L samples corresponds to a range of
// k·c/(2B)·L/M for a sweep bandwidth B (see units.RangeBinMeters).
package rangeproc

import (
	"fmt"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/dsp"
)

// Processor compresses pulses of a fixed length. It owns its FFT plan and
// window, so it is not safe for concurrent use.
type Processor struct {
	samples  int
	fftLen   int
	window   []float64
	plan     *dsp.Plan
	spectrum []complex128
}

// New creates a Processor for pulses of the given sample count transformed
// at fftLen points. fftLen must be at least samples.
func New(samples, fftLen int, kind dsp.WindowKind) (*Processor, error) {
	if samples < 1 {
		return nil, fmt.Errorf("%w: range sample count must be positive, got %d", radar.ErrInvalidConfiguration, samples)
	}
	if fftLen < samples {
		return nil, fmt.Errorf("%w: range FFT length %d is shorter than %d samples", radar.ErrInvalidConfiguration, fftLen, samples)
	}
	return &Processor{
		samples:  samples,
		fftLen:   fftLen,
		window:   dsp.Window(kind, samples),
		plan:     dsp.NewPlan(fftLen),
		spectrum: make([]complex128, fftLen),
	}, nil
}

// Bins returns the number of range bins produced per pulse.
func (p *Processor) Bins() int { return p.fftLen }

// Compress writes the complex range profile of one pulse into dst (length
// Bins, allocated when nil) and returns it.
func (p *Processor) Compress(dst, pulse []complex128) ([]complex128, error) {
	if len(pulse) != p.samples {
		return nil, fmt.Errorf("%w: pulse has %d samples, processor expects %d", radar.ErrInvalidConfiguration, len(pulse), p.samples)
	}
	if dst != nil && len(dst) != p.fftLen {
		return nil, fmt.Errorf("%w: destination has %d bins, processor produces %d", radar.ErrInvalidConfiguration, len(dst), p.fftLen)
	}
	return p.plan.Transform(dst, pulse, p.window), nil
}

// Magnitude returns the range magnitude profile of one pulse.
func (p *Processor) Magnitude(dst []float64, pulse []complex128) ([]float64, error) {
	spectrum, err := p.Compress(p.spectrum, pulse)
	if err != nil {
		return nil, err
	}
	if dst != nil && len(dst) != p.fftLen {
		return nil, fmt.Errorf("%w: destination has %d bins, processor produces %d", radar.ErrInvalidConfiguration, len(dst), p.fftLen)
	}
	return dsp.Abs(dst, spectrum), nil
}

// ProcessPair compresses every pulse of one (tx, rx) pair of cube into out.
func (p *Processor) ProcessPair(cube *radar.SampleCube, tx, rx int, out *radar.RangeProfile) error {
	if cube.Samples != p.samples {
		return fmt.Errorf("%w: cube has %d samples per pulse, processor expects %d", radar.ErrInvalidConfiguration, cube.Samples, p.samples)
	}
	if out.Bins != p.fftLen || out.Pulses != cube.Pulses {
		return fmt.Errorf("%w: range profile is %dx%d, need %dx%d", radar.ErrInvalidConfiguration, out.Pulses, out.Bins, cube.Pulses, p.fftLen)
	}
	for pulse := 0; pulse < cube.Pulses; pulse++ {
		if _, err := p.Compress(out.Pulse(tx, rx, pulse), cube.Pulse(tx, rx, pulse)); err != nil {
			return err
		}
	}
	return nil
}

// Magnitude is a one-shot range profile of samples with a Hann window at
// fftLen points.
func Magnitude(samples []complex128, fftLen int) ([]float64, error) {
	p, err := New(len(samples), fftLen, dsp.Hann)
	if err != nil {
		return nil, err
	}
	return p.Magnitude(nil, samples)
}
