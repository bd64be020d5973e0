// Package sim generates synthetic sample cubes from point reflectors for
// tests, demos and the radar command.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/timeutil"
	"github.com/banshee-data/radarcore/internal/units"
)

// Reflector is a point scatterer. Positive velocity means the range is
// increasing.
type Reflector struct {
	RangeMeters float64
	VelocityMps float64
	AzimuthDeg  float64
	Amplitude   float64
}

// Config describes the simulated array and waveform.
type Config struct {
	Tx          int
	Rx          int
	Pulses      int
	Samples     int
	BandwidthHz float64
	CarrierHz   float64
	PRFs        []float64
	// Spacing is the receive element spacing in wavelengths. Transmit
	// channels are offset by Rx·Spacing, forming a virtual array.
	Spacing float64
	// NoiseStd is the standard deviation of the complex Gaussian noise
	// magnitude added to every sample.
	NoiseStd float64
	// ScanInterval advances reflector ranges between scans.
	ScanInterval time.Duration
	Seed         int64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Tx < 1 || c.Rx < 1 || c.Pulses < 1 || c.Samples < 1 {
		return fmt.Errorf("%w: array and waveform dimensions must be positive", radar.ErrInvalidConfiguration)
	}
	if !(c.BandwidthHz > 0) || !(c.CarrierHz > 0) {
		return fmt.Errorf("%w: bandwidth and carrier must be positive", radar.ErrInvalidConfiguration)
	}
	if len(c.PRFs) == 0 {
		return fmt.Errorf("%w: at least one PRF is required", radar.ErrInvalidConfiguration)
	}
	for _, prf := range c.PRFs {
		if !(prf > 0) {
			return fmt.Errorf("%w: PRF must be positive, got %g", radar.ErrInvalidConfiguration, prf)
		}
	}
	if !(c.Spacing > 0) {
		return fmt.Errorf("%w: element spacing must be positive", radar.ErrInvalidConfiguration)
	}
	if c.NoiseStd < 0 {
		return fmt.Errorf("%w: noise level must not be negative", radar.ErrInvalidConfiguration)
	}
	return nil
}

// Generator produces one scan per Acquire call. It implements
// radar.Acquirer. Acquire is not safe for concurrent use.
type Generator struct {
	cfg        Config
	reflectors []Reflector
	scanID     atomic.Uint64
	rng        *rand.Rand

	// Clock stamps each scan. Replace it with a timeutil.ManualClock to
	// run in simulated time.
	Clock timeutil.Clock
}

// New returns a Generator for the given reflectors.
func New(cfg Config, reflectors ...Reflector) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:        cfg,
		reflectors: append([]Reflector(nil), reflectors...),
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		Clock:      timeutil.RealClock{},
	}, nil
}

// Scans returns how many scans have been produced.
func (g *Generator) Scans() uint64 { return g.scanID.Load() }

// Acquire synthesises the next scan: one cube per configured PRF.
func (g *Generator) Acquire(ctx context.Context) (*radar.Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := g.scanID.Add(1) - 1
	elapsed := float64(n) * g.cfg.ScanInterval.Seconds()

	scan := &radar.Scan{Time: g.Clock.Now(), Cubes: make([]*radar.SampleCube, len(g.cfg.PRFs))}
	for i, prf := range g.cfg.PRFs {
		scan.Cubes[i] = g.Cube(prf, elapsed)
	}
	return scan, nil
}

// Cube synthesises a single dwell at prf with reflectors advanced by
// elapsed seconds.
func (g *Generator) Cube(prf, elapsed float64) *radar.SampleCube {
	c := g.cfg
	cube := radar.NewSampleCube(c.Tx, c.Rx, c.Pulses, c.Samples)
	lambda := units.Wavelength(c.CarrierHz)
	binWidth := units.RangeResolution(c.BandwidthHz)

	for _, r := range g.reflectors {
		rangeBin := (r.RangeMeters + r.VelocityMps*elapsed) / binWidth
		fd := units.VelocityToDoppler(r.VelocityMps, lambda)
		spatial := -2 * math.Pi * c.Spacing * math.Sin(r.AzimuthDeg*math.Pi/180)

		fast := make([]complex128, c.Samples)
		for s := range fast {
			fast[s] = cmplx.Exp(complex(0, 2*math.Pi*rangeBin*float64(s)/float64(c.Samples)))
		}
		for tx := 0; tx < c.Tx; tx++ {
			for rx := 0; rx < c.Rx; rx++ {
				element := float64(tx*c.Rx + rx)
				for p := 0; p < c.Pulses; p++ {
					phase := 2*math.Pi*fd*float64(p)/prf + spatial*element
					slow := complex(r.Amplitude, 0) * cmplx.Exp(complex(0, phase))
					row := cube.Pulse(tx, rx, p)
					for s := range row {
						row[s] += slow * fast[s]
					}
				}
			}
		}
	}

	if c.NoiseStd > 0 {
		sigma := c.NoiseStd / math.Sqrt2
		for i := range cube.Data {
			cube.Data[i] += complex(g.rng.NormFloat64()*sigma, g.rng.NormFloat64()*sigma)
		}
	}
	return cube
}
