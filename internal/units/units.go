// Package units provides shared constants and conversions for speed units
// and the radar quantities derived from them (range bins, Doppler bins).
package units

import "math"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// SpeedOfLight in metres per second.
const SpeedOfLight = 299792458.0

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// All radar velocities are carried in m/s internally.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return speedMPS
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// RangeResolution returns the range extent of one range bin, c/(2B), for a
// sweep of bandwidthHz. Returns 0 for a non-positive bandwidth.
func RangeResolution(bandwidthHz float64) float64 {
	if bandwidthHz <= 0 {
		return 0
	}
	return SpeedOfLight / (2 * bandwidthHz)
}

// RangeBinMeters converts a range bin index into metres. samples is the
// number of samples per pulse and fftLen the (possibly zero-padded) FFT
// length; padding interpolates bins without improving resolution.
func RangeBinMeters(bin int, bandwidthHz float64, samples, fftLen int) float64 {
	if fftLen <= 0 {
		return 0
	}
	return float64(bin) * RangeResolution(bandwidthHz) * float64(samples) / float64(fftLen)
}

// Wavelength returns the carrier wavelength in metres.
func Wavelength(carrierHz float64) float64 {
	if carrierHz <= 0 {
		return 0
	}
	return SpeedOfLight / carrierHz
}

// DopplerToVelocity converts a Doppler shift (Hz) into radial velocity (m/s).
func DopplerToVelocity(dopplerHz, wavelength float64) float64 {
	return dopplerHz * wavelength / 2
}

// VelocityToDoppler converts a radial velocity (m/s) into a Doppler shift (Hz).
func VelocityToDoppler(velocityMPS, wavelength float64) float64 {
	if wavelength == 0 {
		return 0
	}
	return 2 * velocityMPS / wavelength
}

// UnambiguousVelocity is the width of the alias-free velocity interval for
// a pulse train at prfHz: λ·PRF/2.
func UnambiguousVelocity(prfHz, wavelength float64) float64 {
	return math.Abs(prfHz * wavelength / 2)
}

// DopplerBinVelocity converts a Doppler bin index into an aliased velocity
// in [0, UnambiguousVelocity).
func DopplerBinVelocity(bin, pulses int, prfHz, wavelength float64) float64 {
	if pulses <= 0 {
		return 0
	}
	return float64(bin) * UnambiguousVelocity(prfHz, wavelength) / float64(pulses)
}
