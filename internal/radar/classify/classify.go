// Package classify labels radar targets from their per-scan features with
// a rule-based model on radial speed and return strength.
package classify

import (
	"fmt"
	"math"

	"github.com/banshee-data/radarcore/internal/config"
	"github.com/banshee-data/radarcore/internal/radar"
)

// ObjectClass represents the classification of a target.
type ObjectClass string

const (
	// ClassStationary indicates clutter or a parked object
	ClassStationary ObjectClass = "stationary"
	// ClassPedestrian indicates a pedestrian or cyclist at walking pace
	ClassPedestrian ObjectClass = "pedestrian"
	// ClassCar indicates a car or vehicle
	ClassCar ObjectClass = "car"
	// ClassOther indicates an unclassified object
	ClassOther ObjectClass = "other"
)

const (
	HighConfidence   = 0.85
	MediumConfidence = 0.70
	LowConfidence    = 0.50

	ModelVersion = "rule-based-radial-v1.0"
)

// Config holds the classification thresholds. Speeds are radial, in m/s.
type Config struct {
	StationarySpeedMax float64
	PedestrianSpeedMax float64
	VehicleSpeedMin    float64
	// WeakReturnMax marks returns at or below this magnitude as too weak to
	// classify. Zero disables the check.
	WeakReturnMax float64
}

// DefaultConfig returns the classifier defaults of config/radar.defaults.json.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyProcessingConfig())
}

// ConfigFromTuning extracts the classifier thresholds of a ProcessingConfig.
func ConfigFromTuning(c *config.ProcessingConfig) Config {
	return Config{
		StationarySpeedMax: c.GetStationarySpeedMax(),
		PedestrianSpeedMax: c.GetPedestrianSpeedMax(),
		VehicleSpeedMin:    c.GetVehicleSpeedMin(),
		WeakReturnMax:      c.GetWeakReturnMax(),
	}
}

// Validate checks that the speed bands are ordered.
func (c Config) Validate() error {
	if !(c.StationarySpeedMax >= 0) || !(c.PedestrianSpeedMax > c.StationarySpeedMax) || !(c.VehicleSpeedMin >= c.PedestrianSpeedMax) {
		return fmt.Errorf("%w: need 0 <= stationary (%g) < pedestrian (%g) <= vehicle (%g) speeds",
			radar.ErrInvalidConfiguration, c.StationarySpeedMax, c.PedestrianSpeedMax, c.VehicleSpeedMin)
	}
	if c.WeakReturnMax < 0 {
		return fmt.Errorf("%w: weak return threshold must be non-negative", radar.ErrInvalidConfiguration)
	}
	return nil
}

// Result holds the result of one classification.
type Result struct {
	Class      ObjectClass
	Confidence float64
	Model      string
	Features   radar.Features
}

// Classifier is the rule-based radar.Classifier. It is stateless and safe
// for concurrent use.
type Classifier struct {
	cfg Config
}

var _ radar.Classifier = (*Classifier)(nil)

// New validates cfg and returns a Classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify implements radar.Classifier.
func (c *Classifier) Classify(f radar.Features) string {
	return string(c.Evaluate(f).Class)
}

// Evaluate classifies f and reports the confidence of the label.
func (c *Classifier) Evaluate(f radar.Features) Result {
	res := Result{Model: ModelVersion, Features: f}
	speed := math.Abs(f.DopplerMps)

	switch {
	case math.IsNaN(speed) || (c.cfg.WeakReturnMax > 0 && f.Magnitude <= c.cfg.WeakReturnMax):
		res.Class = ClassOther
		res.Confidence = LowConfidence * 0.5
	case speed <= c.cfg.StationarySpeedMax:
		res.Class = ClassStationary
		res.Confidence = c.stationaryConfidence(speed)
	case speed <= c.cfg.PedestrianSpeedMax:
		res.Class = ClassPedestrian
		res.Confidence = c.pedestrianConfidence(speed, f)
	case speed >= c.cfg.VehicleSpeedMin:
		res.Class = ClassCar
		res.Confidence = c.vehicleConfidence(speed, f)
	default:
		res.Class = ClassOther
		res.Confidence = LowConfidence
	}
	return res
}

func (c *Classifier) stationaryConfidence(speed float64) float64 {
	confidence := MediumConfidence
	if speed < c.cfg.StationarySpeedMax/2 {
		confidence += 0.1
	}
	return clampConfidence(confidence, LowConfidence, HighConfidence)
}

func (c *Classifier) pedestrianConfidence(speed float64, f radar.Features) float64 {
	confidence := MediumConfidence
	// Typical walking pace.
	if speed >= 0.8 && speed <= 2.0 {
		confidence += 0.1
	}
	// Radial speed underestimates motion far off boresight.
	if math.Abs(f.AzimuthDeg) > 60 {
		confidence -= 0.1
	}
	return clampConfidence(confidence, LowConfidence, HighConfidence)
}

func (c *Classifier) vehicleConfidence(speed float64, f radar.Features) float64 {
	confidence := MediumConfidence
	if speed > 2*c.cfg.VehicleSpeedMin {
		confidence += 0.1
	}
	if math.Abs(f.AzimuthDeg) < 30 {
		confidence += 0.05
	}
	return clampConfidence(confidence, LowConfidence, HighConfidence)
}

func clampConfidence(value, min, max float64) float64 {
	if value > max {
		return max
	}
	if value < min {
		return min
	}
	return value
}
