// Package doppler performs Doppler compression: an FFT across pulses for
// every range bin of one (tx, rx) pair.
//
// The baseline taper across pulses is rectangular (no window), which keeps
// the narrowest Doppler mainlobe at the cost of -13 dB sidelobes. Callers
// that need lower Doppler sidelobes select a window explicitly.
package doppler

import (
	"fmt"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/dsp"
)

// Processor transforms pulse × range-bin matrices of a fixed pulse count.
// It owns scratch buffers and is not safe for concurrent use.
type Processor struct {
	pulses int
	window []float64
	plan   *dsp.Plan
	col    []complex128
	out    []complex128
}

// New creates a Processor for the given pulse count. dsp.Rectangular
// disables tapering.
func New(pulses int, kind dsp.WindowKind) (*Processor, error) {
	if pulses < 1 {
		return nil, fmt.Errorf("%w: pulse count must be positive, got %d", radar.ErrInvalidConfiguration, pulses)
	}
	p := &Processor{
		pulses: pulses,
		plan:   dsp.NewPlan(pulses),
		col:    make([]complex128, pulses),
		out:    make([]complex128, pulses),
	}
	if kind != dsp.Rectangular {
		p.window = dsp.Window(kind, pulses)
	}
	return p, nil
}

// Bins returns the number of Doppler bins, equal to the pulse count.
func (p *Processor) Bins() int { return p.pulses }

func (p *Processor) checkShape(profiles [][]complex128) (int, error) {
	if len(profiles) != p.pulses {
		return 0, fmt.Errorf("%w: got %d pulses, processor expects %d", radar.ErrInvalidConfiguration, len(profiles), p.pulses)
	}
	bins := len(profiles[0])
	for i, row := range profiles {
		if len(row) != bins {
			return 0, fmt.Errorf("%w: pulse %d has %d range bins, pulse 0 has %d", radar.ErrInvalidConfiguration, i, len(row), bins)
		}
	}
	return bins, nil
}

// transformBin runs the pulse-axis FFT of one range bin into p.out.
func (p *Processor) transformBin(profiles [][]complex128, bin int) []complex128 {
	for pulse, row := range profiles {
		p.col[pulse] = row[bin]
	}
	return p.plan.Transform(p.out, p.col, p.window)
}

// Transform returns the complex Doppler spectra of a pulse × range-bin
// matrix as a doppler-bin × range-bin matrix.
func (p *Processor) Transform(profiles [][]complex128) ([][]complex128, error) {
	bins, err := p.checkShape(profiles)
	if err != nil {
		return nil, err
	}
	out := make([][]complex128, p.pulses)
	for d := range out {
		out[d] = make([]complex128, bins)
	}
	for bin := 0; bin < bins; bin++ {
		spectrum := p.transformBin(profiles, bin)
		for d, v := range spectrum {
			out[d][bin] = v
		}
	}
	return out, nil
}

// Magnitude returns |Transform(profiles)|, a doppler-bin × range-bin matrix.
func (p *Processor) Magnitude(profiles [][]complex128) ([][]float64, error) {
	spectrum, err := p.Transform(profiles)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(spectrum))
	for d, row := range spectrum {
		out[d] = dsp.Abs(nil, row)
	}
	return out, nil
}

// ProcessPair fills m with the range-Doppler spectrum and magnitude of one
// (tx, rx) pair of the range profile cube.
func (p *Processor) ProcessPair(rp *radar.RangeProfile, tx, rx int, m *radar.RangeDopplerMap) error {
	if rp.Pulses != p.pulses {
		return fmt.Errorf("%w: range profile has %d pulses, processor expects %d", radar.ErrInvalidConfiguration, rp.Pulses, p.pulses)
	}
	if m.RangeBins != rp.Bins || m.DopplerBins != p.pulses {
		return fmt.Errorf("%w: map is %dx%d, need %dx%d", radar.ErrInvalidConfiguration, m.RangeBins, m.DopplerBins, rp.Bins, p.pulses)
	}
	m.Tx, m.Rx = tx, rx
	profiles := rp.Pair(tx, rx)
	for bin := 0; bin < rp.Bins; bin++ {
		spectrum := p.transformBin(profiles, bin)
		row := m.Spectrum[m.Idx(bin, 0):m.Idx(bin, p.pulses)]
		copy(row, spectrum)
		dsp.Abs(m.Magnitude[m.Idx(bin, 0):m.Idx(bin, p.pulses)], spectrum)
	}
	return nil
}
