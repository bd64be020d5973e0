// Package tracking associates per-scan radar measurements with tracks
// using a constant-velocity Kalman filter in the sensor's Cartesian frame
// (x across, y along boresight).
//
// A Session carries the track table between scans and is the
// radar.TrackerContext handed to every UpdateTrack call. All measurements
// of one scan share a timestamp; the first measurement with a new
// timestamp closes the previous scan (counting misses) and predicts every
// track forward.
package tracking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radarcore/internal/config"
	"github.com/banshee-data/radarcore/internal/radar"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackTentative TrackState = "tentative" // New track, needs confirmation
	TrackConfirmed TrackState = "confirmed" // Stable track with sufficient history
	TrackDeleted   TrackState = "deleted"   // Track marked for removal
)

const (
	// MinDeterminantThreshold is the minimum determinant for innovation
	// covariance inversion.
	MinDeterminantThreshold = 1e-6
	// SingularDistanceRejection is the distance returned when the
	// innovation covariance is singular.
	SingularDistanceRejection = 1e9
	// MaxHistoryLength bounds the per-track position history.
	MaxHistoryLength = 100
)

var (
	// ErrInvalidContext is returned when UpdateTrack receives a context
	// that was not created by NewSession.
	ErrInvalidContext = errors.New("tracker context is not a tracking session")
	// ErrStaleMeasurement is returned for a measurement older than the
	// session's current scan.
	ErrStaleMeasurement = errors.New("measurement precedes current scan")
	// ErrTrackLimit is returned when a new track would exceed MaxTracks.
	ErrTrackLimit = errors.New("track limit reached")
)

// Config holds tracker parameters.
type Config struct {
	MaxTracks               int           // Maximum number of live tracks per session
	MaxMisses               int           // Consecutive missed scans before a tentative track is deleted
	MaxMissesConfirmed      int           // Consecutive missed scans before a confirmed track is deleted
	HitsToConfirm           int           // Consecutive hit scans needed for confirmation
	GatingDistanceSquared   float64       // Squared Mahalanobis gate
	ProcessNoisePos         float64       // Process noise for position (m²)
	ProcessNoiseVel         float64       // Process noise for velocity ((m/s)²)
	MeasurementNoise        float64       // Measurement noise (m²)
	DeletedTrackGracePeriod time.Duration // How long deleted tracks stay visible
}

// DefaultConfig returns the tracker defaults of config/radar.defaults.json.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyProcessingConfig())
}

// ConfigFromTuning extracts the tracker parameters of a ProcessingConfig.
func ConfigFromTuning(c *config.ProcessingConfig) Config {
	return Config{
		MaxTracks:               c.GetMaxTracks(),
		MaxMisses:               c.GetMaxMisses(),
		MaxMissesConfirmed:      c.GetMaxMissesConfirmed(),
		HitsToConfirm:           c.GetHitsToConfirm(),
		GatingDistanceSquared:   c.GetGatingDistanceSquared(),
		ProcessNoisePos:         c.GetProcessNoisePos(),
		ProcessNoiseVel:         c.GetProcessNoiseVel(),
		MeasurementNoise:        c.GetMeasurementNoise(),
		DeletedTrackGracePeriod: c.GetDeletedTrackGracePeriod(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxTracks < 1 || c.MaxMisses < 1 || c.MaxMissesConfirmed < 1 || c.HitsToConfirm < 1 {
		return fmt.Errorf("%w: track limits and lifecycle counts must be positive", radar.ErrInvalidConfiguration)
	}
	if !(c.GatingDistanceSquared > 0) {
		return fmt.Errorf("%w: gating distance must be positive, got %g", radar.ErrInvalidConfiguration, c.GatingDistanceSquared)
	}
	if c.ProcessNoisePos < 0 || c.ProcessNoiseVel < 0 || !(c.MeasurementNoise > 0) {
		return fmt.Errorf("%w: noise variances must be non-negative and measurement noise positive", radar.ErrInvalidConfiguration)
	}
	if c.DeletedTrackGracePeriod < 0 {
		return fmt.Errorf("%w: grace period must be non-negative", radar.ErrInvalidConfiguration)
	}
	return nil
}

// TrackPoint represents a single point in a track's history.
type TrackPoint struct {
	X    float64
	Y    float64
	Time time.Time
}

// Track is one tracked object.
type Track struct {
	TrackID string
	State   TrackState

	Hits   int // Consecutive scans with an associated measurement
	Misses int // Consecutive scans without one

	First time.Time
	Last  time.Time

	// Kalman state: [x, y, vx, vy]
	X  float64
	Y  float64
	VX float64
	VY float64

	// Kalman covariance (4x4, row-major)
	P [16]float64

	ObservationCount int
	History          []TrackPoint

	hitScan bool // associated during the current scan
}

// Speed returns the current speed magnitude in m/s.
func (t *Track) Speed() float64 { return math.Hypot(t.VX, t.VY) }

// RangeMeters returns the current range from the sensor.
func (t *Track) RangeMeters() float64 { return math.Hypot(t.X, t.Y) }

// AzimuthDeg returns the current azimuth from boresight in degrees.
func (t *Track) AzimuthDeg() float64 { return math.Atan2(t.X, t.Y) * 180 / math.Pi }

// Session is the per-session track table. It is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	tracks   map[string]*Track
	scanTime time.Time
	started  bool
}

// Tracker is the radar.Tracker implementation. It holds only
// configuration; state lives in the Session.
type Tracker struct {
	cfg Config
}

var _ radar.Tracker = (*Tracker)(nil)

// New validates cfg and returns a Tracker.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg}, nil
}

// Config returns the tracker configuration.
func (t *Tracker) Config() Config { return t.cfg }

// NewSession creates an empty track table.
func (t *Tracker) NewSession() *Session {
	return &Session{tracks: make(map[string]*Track)}
}

// UpdateTrack associates m with the nearest gated track of the session in
// tc, or starts a tentative track. A track associated earlier in the same
// scan absorbs further measurements without another filter update, so
// detections of one object on several channel pairs share a track id.
func (t *Tracker) UpdateTrack(tc radar.TrackerContext, m radar.Measurement) (string, error) {
	s, ok := tc.(*Session)
	if !ok || s == nil {
		return "", fmt.Errorf("%w: got %T", ErrInvalidContext, tc)
	}
	if math.IsNaN(m.RangeMeters) || math.IsNaN(m.AzimuthDeg) {
		return "", fmt.Errorf("%w: measurement has no position", radar.ErrInvalidConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || !m.Time.Equal(s.scanTime) {
		if err := t.advance(s, m.Time); err != nil {
			opsf("[Tracker] rejected measurement at %v: %v", m.Time, err)
			return "", err
		}
	}

	az := m.AzimuthDeg * math.Pi / 180
	x, y := m.RangeMeters*math.Sin(az), m.RangeMeters*math.Cos(az)

	if track := t.associate(s, x, y); track != nil {
		if track.hitScan {
			return track.TrackID, nil
		}
		t.update(track, x, y, m.Time)
		track.hitScan = true
		track.Hits++
		track.Misses = 0
		if track.State == TrackTentative && track.Hits >= t.cfg.HitsToConfirm {
			track.State = TrackConfirmed
			diagf("[Tracker] %s confirmed at %.1f m", track.TrackID, track.RangeMeters())
		}
		tracef("[Tracker] (%.2f, %.2f) -> %s", x, y, track.TrackID)
		return track.TrackID, nil
	}

	if s.live() >= t.cfg.MaxTracks {
		return "", fmt.Errorf("%w: %d live tracks", ErrTrackLimit, t.cfg.MaxTracks)
	}
	track := t.initTrack(s, x, y, m.Time)
	diagf("[Tracker] %s started at %.1f m %.1f°", track.TrackID, m.RangeMeters, m.AzimuthDeg)
	return track.TrackID, nil
}

// advance closes the current scan and moves the session to scan time at.
func (t *Tracker) advance(s *Session, at time.Time) error {
	if !s.started {
		s.started = true
		s.scanTime = at
		return nil
	}
	if at.Before(s.scanTime) {
		return fmt.Errorf("%w: %v before %v", ErrStaleMeasurement, at, s.scanTime)
	}

	for _, track := range s.tracks {
		if track.State == TrackDeleted {
			continue
		}
		if track.hitScan {
			track.hitScan = false
			continue
		}
		track.Misses++
		track.Hits = 0
		limit := t.cfg.MaxMisses
		if track.State == TrackConfirmed {
			limit = t.cfg.MaxMissesConfirmed
		}
		if track.Misses >= limit {
			track.State = TrackDeleted
			track.Last = s.scanTime
			diagf("[Tracker] %s deleted after %d missed scans", track.TrackID, track.Misses)
		}
	}
	t.cleanupDeletedTracks(s, at)

	dt := at.Sub(s.scanTime).Seconds()
	for _, track := range s.tracks {
		if track.State != TrackDeleted {
			t.predict(track, dt)
		}
	}
	s.scanTime = at
	return nil
}

func (t *Tracker) predict(track *Track, dt float64) {
	// Constant velocity: F = [I dt·I; 0 I]
	track.X += track.VX * dt
	track.Y += track.VY * dt

	P := track.P
	var FP [16]float64
	for j := 0; j < 4; j++ {
		FP[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		FP[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		FP[2*4+j] = P[2*4+j]
		FP[3*4+j] = P[3*4+j]
	}
	for i := 0; i < 4; i++ {
		track.P[i*4+0] = FP[i*4+0] + dt*FP[i*4+2]
		track.P[i*4+1] = FP[i*4+1] + dt*FP[i*4+3]
		track.P[i*4+2] = FP[i*4+2]
		track.P[i*4+3] = FP[i*4+3]
	}

	track.P[0*4+0] += t.cfg.ProcessNoisePos
	track.P[1*4+1] += t.cfg.ProcessNoisePos
	track.P[2*4+2] += t.cfg.ProcessNoiseVel
	track.P[3*4+3] += t.cfg.ProcessNoiseVel
}

// associate returns the live track with the smallest gated Mahalanobis
// distance to (x, y), or nil.
func (t *Tracker) associate(s *Session, x, y float64) *Track {
	var best *Track
	bestDist2 := t.cfg.GatingDistanceSquared
	for _, track := range s.tracks {
		if track.State == TrackDeleted {
			continue
		}
		if d2 := t.mahalanobisDistanceSquared(track, x, y); d2 < bestDist2 ||
			(d2 == bestDist2 && best != nil && track.TrackID < best.TrackID) {
			bestDist2 = d2
			best = track
		}
	}
	return best
}

// innovation returns S⁻¹ for the position-only measurement model, or
// false when S is singular.
func (t *Tracker) innovation(track *Track) (inv [4]float64, ok bool) {
	S00 := track.P[0*4+0] + t.cfg.MeasurementNoise
	S01 := track.P[0*4+1]
	S10 := track.P[1*4+0]
	S11 := track.P[1*4+1] + t.cfg.MeasurementNoise

	det := S00*S11 - S01*S10
	if det < MinDeterminantThreshold {
		return inv, false
	}
	return [4]float64{S11 / det, -S01 / det, -S10 / det, S00 / det}, true
}

func (t *Tracker) mahalanobisDistanceSquared(track *Track, x, y float64) float64 {
	inv, ok := t.innovation(track)
	if !ok {
		return SingularDistanceRejection
	}
	dx, dy := x-track.X, y-track.Y
	return dx*dx*inv[0] + dx*dy*(inv[1]+inv[2]) + dy*dy*inv[3]
}

func (t *Tracker) update(track *Track, x, y float64, at time.Time) {
	inv, ok := t.innovation(track)
	if !ok {
		return
	}
	yX, yY := x-track.X, y-track.Y

	// K = P·Hᵀ·S⁻¹ (4x2)
	var K [8]float64
	for i := 0; i < 4; i++ {
		K[i*2+0] = track.P[i*4+0]*inv[0] + track.P[i*4+1]*inv[2]
		K[i*2+1] = track.P[i*4+0]*inv[1] + track.P[i*4+1]*inv[3]
	}

	track.X += K[0*2+0]*yX + K[0*2+1]*yY
	track.Y += K[1*2+0]*yX + K[1*2+1]*yY
	track.VX += K[2*2+0]*yX + K[2*2+1]*yY
	track.VY += K[3*2+0]*yX + K[3*2+1]*yY

	// P = (I - K·H)·P
	var IminusKH [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var v float64
			if i == j {
				v = 1
			}
			if j < 2 {
				v -= K[i*2+j]
			}
			IminusKH[i*4+j] = v
		}
	}
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += IminusKH[i*4+k] * track.P[k*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	track.P = newP

	track.Last = at
	track.ObservationCount++
	track.History = append(track.History, TrackPoint{X: track.X, Y: track.Y, Time: at})
	if len(track.History) > MaxHistoryLength {
		track.History = track.History[1:]
	}
}

func (t *Tracker) initTrack(s *Session, x, y float64, at time.Time) *Track {
	track := &Track{
		TrackID: "trk_" + uuid.NewString(),
		State:   TrackTentative,
		Hits:    1,
		First:   at,
		Last:    at,
		X:       x,
		Y:       y,
		P: [16]float64{
			10, 0, 0, 0,
			0, 10, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		},
		ObservationCount: 1,
		History:          []TrackPoint{{X: x, Y: y, Time: at}},
		hitScan:          true,
	}
	if t.cfg.HitsToConfirm <= 1 {
		track.State = TrackConfirmed
	}
	s.tracks[track.TrackID] = track
	return track
}

// cleanupDeletedTracks removes tracks deleted more than the grace period
// before now.
func (t *Tracker) cleanupDeletedTracks(s *Session, now time.Time) {
	for id, track := range s.tracks {
		if track.State == TrackDeleted && now.Sub(track.Last) > t.cfg.DeletedTrackGracePeriod {
			delete(s.tracks, id)
		}
	}
}

func (s *Session) live() int {
	n := 0
	for _, track := range s.tracks {
		if track.State != TrackDeleted {
			n++
		}
	}
	return n
}

// Track returns a copy of a track by id.
func (s *Session) Track(id string) (Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	track, ok := s.tracks[id]
	if !ok {
		return Track{}, false
	}
	return track.clone(), true
}

// Tracks returns copies of every track, including deleted ones still in
// their grace period, ordered by first observation.
func (s *Session) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, 0, len(s.tracks))
	for _, track := range s.tracks {
		out = append(out, track.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].First.Equal(out[j].First) {
			return out[i].First.Before(out[j].First)
		}
		return out[i].TrackID < out[j].TrackID
	})
	return out
}

// Counts returns the number of tracks by state.
func (s *Session) Counts() (total, tentative, confirmed, deleted int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, track := range s.tracks {
		total++
		switch track.State {
		case TrackTentative:
			tentative++
		case TrackConfirmed:
			confirmed++
		case TrackDeleted:
			deleted++
		}
	}
	return
}

func (t *Track) clone() Track {
	c := *t
	c.History = append([]TrackPoint(nil), t.History...)
	return c
}
