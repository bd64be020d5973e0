package radar

import (
	"context"
	"time"
)

// Scan is the acquisition output for one processing cycle. Cubes[i] was
// acquired at the i-th configured PRF; Cubes[0] drives detection and the
// remaining cubes only contribute Doppler estimates for ambiguity
// resolution.
type Scan struct {
	Time  time.Time
	Cubes []*SampleCube
}

// Acquirer produces one time-synchronised, calibrated scan per call.
type Acquirer interface {
	Acquire(ctx context.Context) (*Scan, error)
}

// Features is the feature vector handed to a Classifier.
type Features struct {
	RangeMeters float64
	DopplerMps  float64
	Magnitude   float64
	AzimuthDeg  float64
}

// Classifier labels a target from its features. Labels are not validated.
type Classifier interface {
	Classify(f Features) string
}

// Measurement is the 2-D observation handed to a Tracker.
type Measurement struct {
	RangeMeters float64
	AzimuthDeg  float64
	Time        time.Time
}

// TrackerContext is tracker-owned state with its own lifecycle (one per
// session, persisting across scans). The core never inspects it.
type TrackerContext interface{}

// Tracker assigns a measurement to a track and returns the track id.
type Tracker interface {
	UpdateTrack(tc TrackerContext, m Measurement) (string, error)
}
