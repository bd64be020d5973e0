// Package cfar implements cell-averaging constant false-alarm rate
// detection over 1-D magnitude sequences and row-wise over range-Doppler
// maps.
//
// For cell i the training window is [i-T-G, i-G) ∪ (i+G, i+T+G], clipped
// to the sequence. Cells near the edges therefore average fewer training
// cells and have a less reliable noise estimate; this is expected and not
// compensated for. A cell whose clipped window is empty cannot be tested.
package cfar

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/radarcore/internal/radar"
)

// Scaling selects how the threshold factor β is derived from the PFA.
type Scaling int

const (
	// ScalingLogTotal uses β = -2T·ln(PFA), a fixed factor assuming
	// exponential noise with T_total = 2T training cells. This is the
	// historical behaviour of the processing chain and is conservative.
	ScalingLogTotal Scaling = iota
	// ScalingCellAveraging uses β = n·(PFA^(-1/n) - 1) with n the cells
	// actually averaged, which yields the requested PFA exactly for
	// square-law (exponentially distributed) noise, including at edges.
	ScalingCellAveraging
)

func (s Scaling) String() string {
	switch s {
	case ScalingLogTotal:
		return "log-total"
	case ScalingCellAveraging:
		return "cell-averaging"
	}
	return fmt.Sprintf("scaling(%d)", int(s))
}

// Policy decides what happens to a cell with no training cells.
type Policy int

const (
	// PolicySkip marks the cell not detected, sets its threshold to +Inf
	// and records it as skipped.
	PolicySkip Policy = iota
	// PolicyAbort returns ErrInsufficientTrainingCells.
	PolicyAbort
)

// Layout selects how a range-Doppler map is fed to the detector.
type Layout int

const (
	// LayoutRows runs the detector along the Doppler axis of every range bin.
	LayoutRows Layout = iota
	// LayoutFlat runs the detector once over the map flattened range-major.
	LayoutFlat
)

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyAbort:
		return "abort"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func (l Layout) String() string {
	switch l {
	case LayoutRows:
		return "rows"
	case LayoutFlat:
		return "flat"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// ParseScaling maps a configuration name to a Scaling.
func ParseScaling(name string) (Scaling, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "log-total":
		return ScalingLogTotal, nil
	case "cell-averaging", "ca":
		return ScalingCellAveraging, nil
	}
	return ScalingLogTotal, fmt.Errorf("%w: unknown CFAR scaling %q", radar.ErrInvalidConfiguration, name)
}

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "skip":
		return PolicySkip, nil
	case "abort":
		return PolicyAbort, nil
	}
	return PolicySkip, fmt.Errorf("%w: unknown CFAR policy %q", radar.ErrInvalidConfiguration, name)
}

// ParseLayout maps a configuration name to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rows":
		return LayoutRows, nil
	case "flat":
		return LayoutFlat, nil
	}
	return LayoutRows, fmt.Errorf("%w: unknown CFAR layout %q", radar.ErrInvalidConfiguration, name)
}

// Config holds detector parameters.
type Config struct {
	Guard    int     // guard cells on each side of the cell under test
	Training int     // training cells on each side
	PFA      float64 // target probability of false alarm, in (0, 1)
	Scaling  Scaling
	Policy   Policy
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Guard < 0 {
		return fmt.Errorf("%w: CFAR guard cells must be non-negative, got %d", radar.ErrInvalidConfiguration, c.Guard)
	}
	if c.Training < 1 {
		return fmt.Errorf("%w: CFAR training cells must be positive, got %d", radar.ErrInvalidConfiguration, c.Training)
	}
	if !(c.PFA > 0 && c.PFA < 1) {
		return fmt.Errorf("%w: PFA must be in (0, 1), got %g", radar.ErrInvalidConfiguration, c.PFA)
	}
	if c.Scaling != ScalingLogTotal && c.Scaling != ScalingCellAveraging {
		return fmt.Errorf("%w: unknown CFAR scaling %d", radar.ErrInvalidConfiguration, int(c.Scaling))
	}
	if c.Policy != PolicySkip && c.Policy != PolicyAbort {
		return fmt.Errorf("%w: unknown CFAR policy %d", radar.ErrInvalidConfiguration, int(c.Policy))
	}
	return nil
}

// Result is the outcome of one Detect call.
type Result struct {
	Detections []bool
	Threshold  []float64
	// Skipped marks cells without training data (PolicySkip only).
	Skipped []bool
}

// resize makes every slice length n, reusing capacity.
func (r *Result) resize(n int) {
	if cap(r.Detections) < n {
		r.Detections = make([]bool, n)
		r.Threshold = make([]float64, n)
		r.Skipped = make([]bool, n)
		return
	}
	r.Detections = r.Detections[:n]
	r.Threshold = r.Threshold[:n]
	r.Skipped = r.Skipped[:n]
}

// Count returns the number of detected cells.
func (r *Result) Count() int {
	n := 0
	for _, d := range r.Detections {
		if d {
			n++
		}
	}
	return n
}

// Detector is a configured CA-CFAR detector. The prefix-sum scratch buffer
// makes it unsafe for concurrent use; it holds no other state.
type Detector struct {
	cfg    Config
	beta   float64 // fixed factor for ScalingLogTotal
	prefix []float64
}

// New validates cfg and returns a Detector.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:  cfg,
		beta: -2 * float64(cfg.Training) * math.Log(cfg.PFA),
	}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Scale returns the threshold factor β for a window of n training cells.
func (d *Detector) Scale(n int) float64 {
	if d.cfg.Scaling == ScalingCellAveraging {
		fn := float64(n)
		return fn * (math.Pow(d.cfg.PFA, -1/fn) - 1)
	}
	return d.beta
}

// Detect runs the detector over signal and returns a fresh Result.
func (d *Detector) Detect(signal []float64) (Result, error) {
	var r Result
	err := d.DetectInto(&r, signal)
	return r, err
}

// DetectInto runs the detector over signal, reusing r's buffers.
func (d *Detector) DetectInto(r *Result, signal []float64) error {
	n := len(signal)
	r.resize(n)
	if n == 0 {
		return nil
	}
	if cap(d.prefix) < n+1 {
		d.prefix = make([]float64, n+1)
	}
	prefix := d.prefix[:n+1]
	prefix[0] = 0
	floats.CumSum(prefix[1:], signal)

	g, t := d.cfg.Guard, d.cfg.Training
	for i := 0; i < n; i++ {
		// Leading window [i-T-G, i-G) and lagging window (i+G, i+T+G].
		lo0, lo1 := clamp(i-t-g, n), clamp(i-g, n)
		hi0, hi1 := clamp(i+g+1, n), clamp(i+g+t+1, n)
		count := (lo1 - lo0) + (hi1 - hi0)

		r.Skipped[i] = false
		if count == 0 {
			if d.cfg.Policy == PolicyAbort {
				return fmt.Errorf("cell %d of %d (guard %d, training %d): %w", i, n, g, t, radar.ErrInsufficientTrainingCells)
			}
			r.Detections[i] = false
			r.Threshold[i] = math.Inf(1)
			r.Skipped[i] = true
			continue
		}

		sum := (prefix[lo1] - prefix[lo0]) + (prefix[hi1] - prefix[hi0])
		noise := sum / float64(count)
		r.Threshold[i] = noise * d.Scale(count)
		r.Detections[i] = signal[i] > r.Threshold[i]
	}
	return nil
}

// DetectMap runs the detector over the magnitude of m and returns the
// detection mask. LayoutRows treats every range bin independently along
// the Doppler axis; LayoutFlat runs once over the range-major flattening.
func (d *Detector) DetectMap(m *radar.RangeDopplerMap, layout Layout) (*radar.DetectionMask, error) {
	mask := radar.NewDetectionMask(m.RangeBins, m.DopplerBins)
	if err := d.DetectMapInto(mask, m, layout); err != nil {
		return nil, err
	}
	return mask, nil
}

// DetectMapInto is DetectMap writing into an existing mask of matching size.
func (d *Detector) DetectMapInto(mask *radar.DetectionMask, m *radar.RangeDopplerMap, layout Layout) error {
	if mask.RangeBins != m.RangeBins || mask.DopplerBins != m.DopplerBins {
		return fmt.Errorf("%w: mask is %dx%d, map is %dx%d", radar.ErrInvalidConfiguration,
			mask.RangeBins, mask.DopplerBins, m.RangeBins, m.DopplerBins)
	}
	switch layout {
	case LayoutFlat:
		return d.detectSlice(mask, 0, m.Magnitude)
	case LayoutRows:
		for rb := 0; rb < m.RangeBins; rb++ {
			if err := d.detectSlice(mask, m.Idx(rb, 0), m.Row(rb)); err != nil {
				return fmt.Errorf("range bin %d: %w", rb, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: unknown CFAR layout %d", radar.ErrInvalidConfiguration, int(layout))
}

// detectSlice runs the detector over signal and stores the outcome in mask
// starting at offset.
func (d *Detector) detectSlice(mask *radar.DetectionMask, offset int, signal []float64) error {
	n := len(signal)
	r := Result{
		Detections: mask.Cells[offset : offset+n],
		Threshold:  mask.Threshold[offset : offset+n],
		Skipped:    mask.Skipped[offset : offset+n],
	}
	return d.DetectInto(&r, signal)
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
