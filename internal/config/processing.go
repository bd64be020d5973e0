package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical processing defaults file.
const DefaultConfigPath = "config/radar.defaults.json"

// ProcessingConfig is the JSON document configuring the radar processing
// chain, the default tracker and the default classifier. Every field is
// optional; the Get* accessors fall back to built-in defaults.
type ProcessingConfig struct {
	// Array and waveform
	Tx             *int      `json:"tx,omitempty"`
	Rx             *int      `json:"rx,omitempty"`
	Samples        *int      `json:"samples,omitempty"`
	Pulses         *int      `json:"pulses,omitempty"`
	RangeFFTLen    *int      `json:"range_fft_len,omitempty"` // 0 means equal to samples
	BandwidthHz    *float64  `json:"bandwidth_hz,omitempty"`
	CarrierHz      *float64  `json:"carrier_hz,omitempty"`
	PRFs           []float64 `json:"prfs,omitempty"`
	ElementSpacing *float64  `json:"element_spacing,omitempty"` // wavelengths

	// Windows: "rectangular", "hann", "hamming", "blackman"
	RangeWindow   *string `json:"range_window,omitempty"`
	DopplerWindow *string `json:"doppler_window,omitempty"`

	// CFAR
	CFARGuard    *int     `json:"cfar_guard,omitempty"`
	CFARTraining *int     `json:"cfar_training,omitempty"`
	CFARPFA      *float64 `json:"cfar_pfa,omitempty"`
	CFARScaling  *string  `json:"cfar_scaling,omitempty"` // "log-total" or "cell-averaging"
	CFARPolicy   *string  `json:"cfar_policy,omitempty"`  // "skip" or "abort"
	CFARLayout   *string  `json:"cfar_layout,omitempty"`  // "rows" or "flat"

	// Doppler ambiguity
	AmbiguityToleranceMps *float64 `json:"ambiguity_tolerance_mps,omitempty"`
	MaxVelocityMps        *float64 `json:"max_velocity_mps,omitempty"`

	// Direction of arrival
	Sources        *int     `json:"sources,omitempty"`
	AngleMinDeg    *float64 `json:"angle_min_deg,omitempty"`
	AngleMaxDeg    *float64 `json:"angle_max_deg,omitempty"`
	AngleStepDeg   *float64 `json:"angle_step_deg,omitempty"`
	SnapshotRadius *int     `json:"snapshot_radius,omitempty"`

	// Runtime
	Workers *int `json:"workers,omitempty"` // 0 means GOMAXPROCS

	// Tracker
	MaxTracks               *int     `json:"max_tracks,omitempty"`
	HitsToConfirm           *int     `json:"hits_to_confirm,omitempty"`
	MaxMisses               *int     `json:"max_misses,omitempty"`
	MaxMissesConfirmed      *int     `json:"max_misses_confirmed,omitempty"`
	GatingDistanceSquared   *float64 `json:"gating_distance_squared,omitempty"`
	ProcessNoisePos         *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel         *float64 `json:"process_noise_vel,omitempty"`
	MeasurementNoise        *float64 `json:"measurement_noise,omitempty"`
	DeletedTrackGracePeriod *string  `json:"deleted_track_grace_period,omitempty"` // duration string like "5s"

	// Classifier
	StationarySpeedMax *float64 `json:"stationary_speed_max,omitempty"`
	PedestrianSpeedMax *float64 `json:"pedestrian_speed_max,omitempty"`
	VehicleSpeedMin    *float64 `json:"vehicle_speed_min,omitempty"`
	WeakReturnMax      *float64 `json:"weak_return_max,omitempty"`
}

// EmptyProcessingConfig returns a ProcessingConfig with all fields unset.
func EmptyProcessingConfig() *ProcessingConfig {
	return &ProcessingConfig{}
}

// LoadProcessingConfig loads a ProcessingConfig from a JSON file.
// The file must have a .json extension and be under 1 MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadProcessingConfig(path string) (*ProcessingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyProcessingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded; intended for tests and
// binaries.
func MustLoadDefaultConfig() *ProcessingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,          // from cmd/
		"../../" + DefaultConfigPath,       // from internal/config/ and cmd/radar/
		"../../../" + DefaultConfigPath,    // from internal/radar/pipeline/
		"../../../../" + DefaultConfigPath, // deeper packages
		"../../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadProcessingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set. Cross-field constraints (FFT
// length against samples, source count against channels) are checked
// when the pipeline is built.
func (c *ProcessingConfig) Validate() error {
	positiveInts := []struct {
		name string
		v    *int
	}{
		{"tx", c.Tx}, {"rx", c.Rx}, {"samples", c.Samples}, {"pulses", c.Pulses},
		{"cfar_training", c.CFARTraining}, {"sources", c.Sources},
		{"max_tracks", c.MaxTracks}, {"hits_to_confirm", c.HitsToConfirm}, {"max_misses", c.MaxMisses},
	}
	for _, f := range positiveInts {
		if f.v != nil && *f.v < 1 {
			return fmt.Errorf("%s must be positive, got %d", f.name, *f.v)
		}
	}

	nonNegativeInts := []struct {
		name string
		v    *int
	}{
		{"range_fft_len", c.RangeFFTLen}, {"cfar_guard", c.CFARGuard},
		{"snapshot_radius", c.SnapshotRadius}, {"workers", c.Workers},
		{"max_misses_confirmed", c.MaxMissesConfirmed},
	}
	for _, f := range nonNegativeInts {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", f.name, *f.v)
		}
	}

	positiveFloats := []struct {
		name string
		v    *float64
	}{
		{"bandwidth_hz", c.BandwidthHz}, {"carrier_hz", c.CarrierHz},
		{"element_spacing", c.ElementSpacing}, {"angle_step_deg", c.AngleStepDeg},
		{"max_velocity_mps", c.MaxVelocityMps}, {"gating_distance_squared", c.GatingDistanceSquared},
		{"measurement_noise", c.MeasurementNoise},
	}
	for _, f := range positiveFloats {
		if f.v != nil && !(*f.v > 0) {
			return fmt.Errorf("%s must be positive, got %g", f.name, *f.v)
		}
	}

	if c.CFARPFA != nil && !(*c.CFARPFA > 0 && *c.CFARPFA < 1) {
		return fmt.Errorf("cfar_pfa must be in (0, 1), got %g", *c.CFARPFA)
	}
	if c.AmbiguityToleranceMps != nil && *c.AmbiguityToleranceMps < 0 {
		return fmt.Errorf("ambiguity_tolerance_mps must be non-negative, got %g", *c.AmbiguityToleranceMps)
	}
	for _, prf := range c.PRFs {
		if !(prf > 0) {
			return fmt.Errorf("prfs must be positive, got %g", prf)
		}
	}
	if c.AngleMinDeg != nil && (*c.AngleMinDeg < -90 || *c.AngleMinDeg > 90) {
		return fmt.Errorf("angle_min_deg must be within [-90, 90], got %g", *c.AngleMinDeg)
	}
	if c.AngleMaxDeg != nil && (*c.AngleMaxDeg < -90 || *c.AngleMaxDeg > 90) {
		return fmt.Errorf("angle_max_deg must be within [-90, 90], got %g", *c.AngleMaxDeg)
	}
	if c.GetAngleMaxDeg() < c.GetAngleMinDeg() {
		return fmt.Errorf("angle_max_deg %g is below angle_min_deg %g", c.GetAngleMaxDeg(), c.GetAngleMinDeg())
	}

	choices := []struct {
		name    string
		v       *string
		allowed []string
	}{
		{"range_window", c.RangeWindow, windowNames},
		{"doppler_window", c.DopplerWindow, windowNames},
		{"cfar_scaling", c.CFARScaling, []string{"log-total", "cell-averaging"}},
		{"cfar_policy", c.CFARPolicy, []string{"skip", "abort"}},
		{"cfar_layout", c.CFARLayout, []string{"rows", "flat"}},
	}
	for _, f := range choices {
		if f.v != nil && !contains(f.allowed, strings.ToLower(*f.v)) {
			return fmt.Errorf("%s must be one of %s, got %q", f.name, strings.Join(f.allowed, ", "), *f.v)
		}
	}

	if c.DeletedTrackGracePeriod != nil && *c.DeletedTrackGracePeriod != "" {
		if _, err := time.ParseDuration(*c.DeletedTrackGracePeriod); err != nil {
			return fmt.Errorf("invalid deleted_track_grace_period '%s': %w", *c.DeletedTrackGracePeriod, err)
		}
	}

	return nil
}

var windowNames = []string{"rectangular", "hann", "hamming", "blackman"}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getString(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return strings.ToLower(*p)
}

// GetTx returns the transmit channel count or the default.
func (c *ProcessingConfig) GetTx() int { return getInt(c.Tx, 2) }

// GetRx returns the receive channel count or the default.
func (c *ProcessingConfig) GetRx() int { return getInt(c.Rx, 8) }

// GetSamples returns the range samples per pulse or the default.
func (c *ProcessingConfig) GetSamples() int { return getInt(c.Samples, 512) }

// GetPulses returns the pulses per dwell or the default.
func (c *ProcessingConfig) GetPulses() int { return getInt(c.Pulses, 128) }

// GetRangeFFTLen returns the range FFT length, defaulting to the sample count.
func (c *ProcessingConfig) GetRangeFFTLen() int {
	if n := getInt(c.RangeFFTLen, 0); n > 0 {
		return n
	}
	return c.GetSamples()
}

// GetBandwidthHz returns the sweep bandwidth or the default.
func (c *ProcessingConfig) GetBandwidthHz() float64 { return getFloat(c.BandwidthHz, 1e9) }

// GetCarrierHz returns the carrier frequency or the default.
func (c *ProcessingConfig) GetCarrierHz() float64 { return getFloat(c.CarrierHz, 10e9) }

// GetPRFs returns the PRF list or the default staggered set.
func (c *ProcessingConfig) GetPRFs() []float64 {
	if len(c.PRFs) == 0 {
		return []float64{1000, 1100, 1200}
	}
	return append([]float64(nil), c.PRFs...)
}

// GetElementSpacing returns the element spacing in wavelengths or the default.
func (c *ProcessingConfig) GetElementSpacing() float64 { return getFloat(c.ElementSpacing, 0.5) }

// GetRangeWindow returns the range window name or the default.
func (c *ProcessingConfig) GetRangeWindow() string { return getString(c.RangeWindow, "hann") }

// GetDopplerWindow returns the Doppler window name or the default.
func (c *ProcessingConfig) GetDopplerWindow() string {
	return getString(c.DopplerWindow, "rectangular")
}

// GetCFARGuard returns the CFAR guard cells per side or the default.
func (c *ProcessingConfig) GetCFARGuard() int { return getInt(c.CFARGuard, 4) }

// GetCFARTraining returns the CFAR training cells per side or the default.
func (c *ProcessingConfig) GetCFARTraining() int { return getInt(c.CFARTraining, 16) }

// GetCFARPFA returns the CFAR false-alarm probability or the default.
func (c *ProcessingConfig) GetCFARPFA() float64 { return getFloat(c.CFARPFA, 1e-6) }

// GetCFARScaling returns the CFAR scaling rule or the default.
func (c *ProcessingConfig) GetCFARScaling() string { return getString(c.CFARScaling, "log-total") }

// GetCFARPolicy returns the insufficient-training policy or the default.
func (c *ProcessingConfig) GetCFARPolicy() string { return getString(c.CFARPolicy, "skip") }

// GetCFARLayout returns the CFAR map layout or the default.
func (c *ProcessingConfig) GetCFARLayout() string { return getString(c.CFARLayout, "rows") }

// GetAmbiguityToleranceMps returns the multi-PRF match tolerance or the default.
func (c *ProcessingConfig) GetAmbiguityToleranceMps() float64 {
	return getFloat(c.AmbiguityToleranceMps, 0.5)
}

// GetMaxVelocityMps returns the ambiguity search bound or the default.
func (c *ProcessingConfig) GetMaxVelocityMps() float64 { return getFloat(c.MaxVelocityMps, 100) }

// GetSources returns the MUSIC source count or the default.
func (c *ProcessingConfig) GetSources() int { return getInt(c.Sources, 1) }

// GetAngleMinDeg returns the lower angle grid bound or the default.
func (c *ProcessingConfig) GetAngleMinDeg() float64 { return getFloat(c.AngleMinDeg, -90) }

// GetAngleMaxDeg returns the upper angle grid bound or the default.
func (c *ProcessingConfig) GetAngleMaxDeg() float64 { return getFloat(c.AngleMaxDeg, 90) }

// GetAngleStepDeg returns the angle grid step or the default.
func (c *ProcessingConfig) GetAngleStepDeg() float64 { return getFloat(c.AngleStepDeg, 1) }

// GetSnapshotRadius returns the covariance range neighbourhood or the default.
func (c *ProcessingConfig) GetSnapshotRadius() int { return getInt(c.SnapshotRadius, 1) }

// GetWorkers returns the worker count, 0 meaning GOMAXPROCS.
func (c *ProcessingConfig) GetWorkers() int { return getInt(c.Workers, 0) }

// GetMaxTracks returns the max_tracks value or the default.
func (c *ProcessingConfig) GetMaxTracks() int { return getInt(c.MaxTracks, 100) }

// GetHitsToConfirm returns the hits_to_confirm value or the default.
func (c *ProcessingConfig) GetHitsToConfirm() int { return getInt(c.HitsToConfirm, 3) }

// GetMaxMisses returns the max_misses value or the default.
func (c *ProcessingConfig) GetMaxMisses() int { return getInt(c.MaxMisses, 3) }

// GetMaxMissesConfirmed returns the max_misses_confirmed value or the default.
func (c *ProcessingConfig) GetMaxMissesConfirmed() int { return getInt(c.MaxMissesConfirmed, 10) }

// GetGatingDistanceSquared returns the gating_distance_squared value or the default.
func (c *ProcessingConfig) GetGatingDistanceSquared() float64 {
	return getFloat(c.GatingDistanceSquared, 25)
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *ProcessingConfig) GetProcessNoisePos() float64 { return getFloat(c.ProcessNoisePos, 0.1) }

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *ProcessingConfig) GetProcessNoiseVel() float64 { return getFloat(c.ProcessNoiseVel, 0.5) }

// GetMeasurementNoise returns the measurement_noise value or the default.
func (c *ProcessingConfig) GetMeasurementNoise() float64 { return getFloat(c.MeasurementNoise, 0.5) }

// GetDeletedTrackGracePeriod parses the grace period, falling back to 5s.
func (c *ProcessingConfig) GetDeletedTrackGracePeriod() time.Duration {
	if c.DeletedTrackGracePeriod == nil || *c.DeletedTrackGracePeriod == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.DeletedTrackGracePeriod)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetStationarySpeedMax returns the stationary_speed_max value or the default.
func (c *ProcessingConfig) GetStationarySpeedMax() float64 {
	return getFloat(c.StationarySpeedMax, 0.5)
}

// GetPedestrianSpeedMax returns the pedestrian_speed_max value or the default.
func (c *ProcessingConfig) GetPedestrianSpeedMax() float64 {
	return getFloat(c.PedestrianSpeedMax, 3)
}

// GetVehicleSpeedMin returns the vehicle_speed_min value or the default.
func (c *ProcessingConfig) GetVehicleSpeedMin() float64 { return getFloat(c.VehicleSpeedMin, 5) }

// GetWeakReturnMax returns the weak_return_max value or the default.
func (c *ProcessingConfig) GetWeakReturnMax() float64 { return getFloat(c.WeakReturnMax, 0) }
