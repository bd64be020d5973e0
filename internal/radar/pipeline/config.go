package pipeline

import (
	"fmt"

	"github.com/banshee-data/radarcore/internal/config"
	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/cfar"
	"github.com/banshee-data/radarcore/internal/radar/doa"
	"github.com/banshee-data/radarcore/internal/radar/dsp"
	"github.com/banshee-data/radarcore/internal/units"
)

// Config is the validated runtime configuration of a Pipeline.
type Config struct {
	// Array and waveform
	Tx          int
	Rx          int
	Samples     int
	Pulses      int
	RangeFFTLen int // 0 means Samples
	BandwidthHz float64
	CarrierHz   float64

	RangeWindow   dsp.WindowKind
	DopplerWindow dsp.WindowKind // rectangular unless configured

	CFAR   cfar.Config
	Layout cfar.Layout

	// PRFs lists one PRF per cube of a scan; PRFs[0] drives detection.
	PRFs []float64
	// AmbiguityTolerance and MaxVelocity bound the multi-PRF search
	// (m/s). Unused with a single PRF.
	AmbiguityTolerance float64
	MaxVelocity        float64

	// Sources is the MUSIC source count K per detection cell.
	Sources int
	Angles  doa.Grid
	// ElementSpacing is the receive element spacing in wavelengths.
	ElementSpacing float64
	// SnapshotRadius adds range bins either side of the detection cell to
	// the covariance estimate.
	SnapshotRadius int

	// Workers sizes the worker pool; 0 means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns the configuration in the canonical defaults file
// (config/radar.defaults.json). Panics if the file cannot be found.
func DefaultConfig() Config {
	cfg, err := ConfigFromTuning(config.MustLoadDefaultConfig())
	if err != nil {
		panic(err)
	}
	return cfg
}

// ConfigFromTuning builds a Config from a loaded ProcessingConfig.
func ConfigFromTuning(c *config.ProcessingConfig) (Config, error) {
	rangeWindow, err := dsp.ParseWindow(c.GetRangeWindow())
	if err != nil {
		return Config{}, fmt.Errorf("%w: range window: %w", radar.ErrInvalidConfiguration, err)
	}
	dopplerWindow, err := dsp.ParseWindow(c.GetDopplerWindow())
	if err != nil {
		return Config{}, fmt.Errorf("%w: doppler window: %w", radar.ErrInvalidConfiguration, err)
	}
	scaling, err := cfar.ParseScaling(c.GetCFARScaling())
	if err != nil {
		return Config{}, err
	}
	policy, err := cfar.ParsePolicy(c.GetCFARPolicy())
	if err != nil {
		return Config{}, err
	}
	layout, err := cfar.ParseLayout(c.GetCFARLayout())
	if err != nil {
		return Config{}, err
	}

	return Config{
		Tx:            c.GetTx(),
		Rx:            c.GetRx(),
		Samples:       c.GetSamples(),
		Pulses:        c.GetPulses(),
		RangeFFTLen:   c.GetRangeFFTLen(),
		BandwidthHz:   c.GetBandwidthHz(),
		CarrierHz:     c.GetCarrierHz(),
		RangeWindow:   rangeWindow,
		DopplerWindow: dopplerWindow,
		CFAR: cfar.Config{
			Guard:    c.GetCFARGuard(),
			Training: c.GetCFARTraining(),
			PFA:      c.GetCFARPFA(),
			Scaling:  scaling,
			Policy:   policy,
		},
		Layout:             layout,
		PRFs:               c.GetPRFs(),
		AmbiguityTolerance: c.GetAmbiguityToleranceMps(),
		MaxVelocity:        c.GetMaxVelocityMps(),
		Sources:            c.GetSources(),
		Angles: doa.Grid{
			Min:  c.GetAngleMinDeg(),
			Max:  c.GetAngleMaxDeg(),
			Step: c.GetAngleStepDeg(),
		},
		ElementSpacing: c.GetElementSpacing(),
		SnapshotRadius: c.GetSnapshotRadius(),
		Workers:        c.GetWorkers(),
	}, nil
}

// Validate checks every parameter that does not need a stage processor to
// verify. New additionally builds one processor per stage, so a Config
// accepted by New is fully valid.
func (c Config) Validate() error {
	if c.Tx < 1 || c.Rx < 1 {
		return fmt.Errorf("%w: need at least one transmit and one receive channel, got %dx%d",
			radar.ErrInvalidConfiguration, c.Tx, c.Rx)
	}
	if c.Samples < 1 || c.Pulses < 1 {
		return fmt.Errorf("%w: samples and pulses must be positive, got %d and %d",
			radar.ErrInvalidConfiguration, c.Samples, c.Pulses)
	}
	if c.RangeFFTLen != 0 && c.RangeFFTLen < c.Samples {
		return fmt.Errorf("%w: range FFT length %d is shorter than %d samples",
			radar.ErrInvalidConfiguration, c.RangeFFTLen, c.Samples)
	}
	if !(c.BandwidthHz > 0) || !(c.CarrierHz > 0) {
		return fmt.Errorf("%w: bandwidth and carrier must be positive", radar.ErrInvalidConfiguration)
	}
	if err := c.CFAR.Validate(); err != nil {
		return err
	}
	if c.Layout != cfar.LayoutRows && c.Layout != cfar.LayoutFlat {
		return fmt.Errorf("%w: unknown CFAR layout %d", radar.ErrInvalidConfiguration, int(c.Layout))
	}
	if len(c.PRFs) == 0 {
		return fmt.Errorf("%w: at least one PRF is required", radar.ErrInvalidConfiguration)
	}
	for i, prf := range c.PRFs {
		if !(prf > 0) {
			return fmt.Errorf("%w: PRF %d must be positive, got %g", radar.ErrInvalidConfiguration, i, prf)
		}
	}
	if c.Sources < 1 || c.Sources >= c.Rx {
		return fmt.Errorf("%w: %w: %d sources with %d receive channels",
			radar.ErrInvalidConfiguration, radar.ErrInvalidSourceCount, c.Sources, c.Rx)
	}
	if err := c.Angles.Validate(); err != nil {
		return err
	}
	if !(c.ElementSpacing > 0) {
		return fmt.Errorf("%w: element spacing must be positive, got %g", radar.ErrInvalidConfiguration, c.ElementSpacing)
	}
	if c.SnapshotRadius < 0 || c.Workers < 0 {
		return fmt.Errorf("%w: snapshot radius and workers must be non-negative", radar.ErrInvalidConfiguration)
	}
	return nil
}

func (c Config) rangeBins() int {
	if c.RangeFFTLen == 0 {
		return c.Samples
	}
	return c.RangeFFTLen
}

// Wavelength returns the carrier wavelength in metres.
func (c Config) Wavelength() float64 { return units.Wavelength(c.CarrierHz) }

// RangeBinMeters converts a range bin into metres. Zero padding interpolates
// the range axis, so bins scale by Samples/RangeFFTLen; unpadded this is
// bin·c/(2B).
func (c Config) RangeBinMeters(bin int) float64 {
	return units.RangeBinMeters(bin, c.BandwidthHz, c.Samples, c.rangeBins())
}

// DopplerBinVelocity converts a Doppler bin at the i-th PRF into an aliased
// velocity in m/s.
func (c Config) DopplerBinVelocity(bin, prf int) float64 {
	return units.DopplerBinVelocity(bin, c.Pulses, c.PRFs[prf], c.Wavelength())
}
