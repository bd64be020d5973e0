package radar

import (
	"fmt"
	"strings"
)

// SampleCube holds raw complex baseband samples for one scan, indexed by
// (transmit, receive, pulse, range sample). Data is row-major with the
// range sample varying fastest.
type SampleCube struct {
	Tx      int
	Rx      int
	Pulses  int
	Samples int
	Data    []complex128
}

// NewSampleCube allocates a zeroed cube.
func NewSampleCube(tx, rx, pulses, samples int) *SampleCube {
	return &SampleCube{
		Tx:      tx,
		Rx:      rx,
		Pulses:  pulses,
		Samples: samples,
		Data:    make([]complex128, tx*rx*pulses*samples),
	}
}

// Idx returns the flat index of (tx, rx, pulse, sample).
func (c *SampleCube) Idx(tx, rx, pulse, sample int) int {
	return ((tx*c.Rx+rx)*c.Pulses+pulse)*c.Samples + sample
}

// At returns a single sample.
func (c *SampleCube) At(tx, rx, pulse, sample int) complex128 {
	return c.Data[c.Idx(tx, rx, pulse, sample)]
}

// Set stores a single sample.
func (c *SampleCube) Set(tx, rx, pulse, sample int, v complex128) {
	c.Data[c.Idx(tx, rx, pulse, sample)] = v
}

// Pulse returns the samples of one pulse as a view into Data.
func (c *SampleCube) Pulse(tx, rx, pulse int) []complex128 {
	start := c.Idx(tx, rx, pulse, 0)
	return c.Data[start : start+c.Samples : start+c.Samples]
}

// Validate checks that the dimensions are positive and match Data.
func (c *SampleCube) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil sample cube", ErrInvalidConfiguration)
	}
	if c.Tx < 1 || c.Rx < 1 || c.Pulses < 1 || c.Samples < 1 {
		return fmt.Errorf("%w: sample cube dimensions must be positive, got %dx%dx%dx%d",
			ErrInvalidConfiguration, c.Tx, c.Rx, c.Pulses, c.Samples)
	}
	if want := c.Tx * c.Rx * c.Pulses * c.Samples; len(c.Data) != want {
		return fmt.Errorf("%w: sample cube holds %d samples, dimensions need %d",
			ErrInvalidConfiguration, len(c.Data), want)
	}
	return nil
}

// RangeProfile holds range-compressed complex amplitudes indexed by
// (transmit, receive, pulse, range bin).
type RangeProfile struct {
	Tx     int
	Rx     int
	Pulses int
	Bins   int
	Data   []complex128
}

// NewRangeProfile allocates a zeroed range profile cube.
func NewRangeProfile(tx, rx, pulses, bins int) *RangeProfile {
	return &RangeProfile{
		Tx:     tx,
		Rx:     rx,
		Pulses: pulses,
		Bins:   bins,
		Data:   make([]complex128, tx*rx*pulses*bins),
	}
}

// Idx returns the flat index of (tx, rx, pulse, bin).
func (p *RangeProfile) Idx(tx, rx, pulse, bin int) int {
	return ((tx*p.Rx+rx)*p.Pulses+pulse)*p.Bins + bin
}

// Pulse returns one pulse's range profile as a view into Data.
func (p *RangeProfile) Pulse(tx, rx, pulse int) []complex128 {
	start := p.Idx(tx, rx, pulse, 0)
	return p.Data[start : start+p.Bins : start+p.Bins]
}

// Pair returns the pulse × range-bin matrix of one (tx, rx) pair as row
// views into Data.
func (p *RangeProfile) Pair(tx, rx int) [][]complex128 {
	rows := make([][]complex128, p.Pulses)
	for pulse := range rows {
		rows[pulse] = p.Pulse(tx, rx, pulse)
	}
	return rows
}

// RangeDopplerMap is the range-Doppler surface of one (tx, rx) pair.
// Spectrum keeps the complex values needed for angle estimation and
// Magnitude its modulus. Both are indexed [rangeBin*DopplerBins+dopplerBin].
type RangeDopplerMap struct {
	Tx          int
	Rx          int
	RangeBins   int
	DopplerBins int
	Spectrum    []complex128
	Magnitude   []float64
}

// NewRangeDopplerMap allocates a zeroed map for one pair.
func NewRangeDopplerMap(tx, rx, rangeBins, dopplerBins int) *RangeDopplerMap {
	n := rangeBins * dopplerBins
	return &RangeDopplerMap{
		Tx:          tx,
		Rx:          rx,
		RangeBins:   rangeBins,
		DopplerBins: dopplerBins,
		Spectrum:    make([]complex128, n),
		Magnitude:   make([]float64, n),
	}
}

// Idx returns the flat index of (rangeBin, dopplerBin).
func (m *RangeDopplerMap) Idx(rangeBin, dopplerBin int) int {
	return rangeBin*m.DopplerBins + dopplerBin
}

// Row returns the Doppler magnitudes of one range bin as a view.
func (m *RangeDopplerMap) Row(rangeBin int) []float64 {
	start := rangeBin * m.DopplerBins
	return m.Magnitude[start : start+m.DopplerBins : start+m.DopplerBins]
}

// PeakDopplerBin returns the Doppler bin with the largest magnitude in a
// range bin. Ties resolve to the lowest bin.
func (m *RangeDopplerMap) PeakDopplerBin(rangeBin int) int {
	row := m.Row(rangeBin)
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

// DetectionMask marks the cells of a RangeDopplerMap whose magnitude
// exceeded the local adaptive threshold. Skipped marks cells that had no
// training data and were therefore never tested.
type DetectionMask struct {
	RangeBins   int
	DopplerBins int
	Cells       []bool
	Skipped     []bool
	Threshold   []float64
}

// NewDetectionMask allocates an empty mask.
func NewDetectionMask(rangeBins, dopplerBins int) *DetectionMask {
	n := rangeBins * dopplerBins
	return &DetectionMask{
		RangeBins:   rangeBins,
		DopplerBins: dopplerBins,
		Cells:       make([]bool, n),
		Skipped:     make([]bool, n),
		Threshold:   make([]float64, n),
	}
}

// Count returns the number of detected cells.
func (m *DetectionMask) Count() int {
	n := 0
	for _, v := range m.Cells {
		if v {
			n++
		}
	}
	return n
}

// SkippedCount returns the number of cells skipped for lack of training data.
func (m *DetectionMask) SkippedCount() int {
	n := 0
	for _, v := range m.Skipped {
		if v {
			n++
		}
	}
	return n
}

// Detection is one above-threshold cell of one (tx, rx) pair. Doppler is
// the aliased velocity measured at the primary PRF; ResolvedDoppler is the
// velocity after ambiguity resolution.
type Detection struct {
	RangeBin        int
	DopplerBin      int
	Tx              int
	Rx              int
	Magnitude       float64
	Doppler         float64
	ResolvedDoppler float64
}

// QualityFlag marks low-confidence aspects of a target.
type QualityFlag uint8

const (
	// FlagAmbiguityUnresolved: Doppler is aliased (single PRF) or no
	// consistent multi-PRF solution existed.
	FlagAmbiguityUnresolved QualityFlag = 1 << iota
	// FlagPartialDoA: MUSIC found fewer peaks than sources.
	FlagPartialDoA
	// FlagIllConditioned: the spatial covariance was rank deficient or had
	// no clear signal/noise eigenvalue gap.
	FlagIllConditioned
)

// Has reports whether all bits of f are set.
func (q QualityFlag) Has(f QualityFlag) bool { return q&f == f }

func (q QualityFlag) String() string {
	if q == 0 {
		return "ok"
	}
	var parts []string
	if q.Has(FlagAmbiguityUnresolved) {
		parts = append(parts, "ambiguous")
	}
	if q.Has(FlagPartialDoA) {
		parts = append(parts, "partial-doa")
	}
	if q.Has(FlagIllConditioned) {
		parts = append(parts, "ill-conditioned")
	}
	return strings.Join(parts, "|")
}

// Target is the per-detection output record of one scan. Class and TrackID
// are filled by the external classification and tracking collaborators.
// Err joins the non-fatal conditions summarised by Flags.
type Target struct {
	Detection

	RangeMeters float64
	DopplerMps  float64
	AzimuthDeg  float64
	// Angles holds every MUSIC angle found, strongest first.
	Angles []float64

	Class   string
	TrackID string

	Flags QualityFlag
	Err   error
}

// Features returns the classification feature vector of the target.
func (t *Target) Features() Features {
	return Features{
		RangeMeters: t.RangeMeters,
		DopplerMps:  t.DopplerMps,
		Magnitude:   t.Magnitude,
		AzimuthDeg:  t.AzimuthDeg,
	}
}

// Measurement returns the 2-D tracking measurement of the target.
func (t *Target) Measurement() Measurement {
	return Measurement{
		RangeMeters: t.RangeMeters,
		AzimuthDeg:  t.AzimuthDeg,
	}
}
