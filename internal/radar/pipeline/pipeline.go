package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/ambiguity"
	"github.com/banshee-data/radarcore/internal/radar/doa"
)

// errSinglePRF is attached to every target of a single-PRF scan: its
// Doppler is the folded measurement.
var errSinglePRF = fmt.Errorf("single PRF: %w", radar.ErrAmbiguityUnresolved)

// Sink persists processed scans. It is an adapter outside the processing
// core (e.g. internal/radar/storage/sqlite).
type Sink interface {
	RecordScan(ctx context.Context, res *ScanResult) error
}

// Collaborators are the consumers of a scan's targets. Any field may be
// nil, in which case that step is skipped.
type Collaborators struct {
	Classifier radar.Classifier
	Tracker    radar.Tracker
	// TrackerContext is created once per session by the caller and passed
	// unchanged to every UpdateTrack call.
	TrackerContext radar.TrackerContext
	Sink           Sink
}

// Stats summarises one processed scan.
type Stats struct {
	Pairs          int // (tx, rx) pairs processed per PRF
	CellsTested    int
	CellsSkipped   int // no CFAR training data
	Detections     int
	Cells          int // distinct (range, doppler) detection cells
	Unresolved     int
	PartialDoA     int
	IllConditioned int
	Tracked        int
	Elapsed        time.Duration
}

// ScanResult is the output of Process.
type ScanResult struct {
	ScanID     string
	Time       time.Time
	Detections []radar.Detection
	Targets    []radar.Target
	Stats      Stats
}

// Pipeline processes scans for a fixed configuration. Buffers are reused
// between scans; Process calls are serialised.
type Pipeline struct {
	cfg      Config
	resolver *ambiguity.Resolver
	workers  []*worker

	mu       sync.Mutex
	profiles []*radar.RangeProfile      // [prf]
	maps     [][]*radar.RangeDopplerMap // [prf][pair]
	masks    []*radar.DetectionMask     // [pair], primary PRF only
}

// New validates cfg and allocates the worker pool and scan buffers.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RangeFFTLen == 0 {
		cfg.RangeFFTLen = cfg.Samples
	}
	cfg.PRFs = append([]float64(nil), cfg.PRFs...)

	resolver, err := ambiguity.New(ambiguity.Config{
		Intervals:   ambiguity.IntervalsFromPRFs(cfg.PRFs, cfg.Wavelength()),
		Tolerance:   cfg.AmbiguityTolerance,
		MaxVelocity: cfg.MaxVelocity,
	})
	if err != nil {
		return nil, err
	}

	n := cfg.Workers
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &Pipeline{cfg: cfg, resolver: resolver, workers: make([]*worker, n)}
	for i := range p.workers {
		if p.workers[i], err = newWorker(i, cfg); err != nil {
			return nil, err
		}
	}

	pairs := cfg.Tx * cfg.Rx
	bins := cfg.rangeBins()
	p.profiles = make([]*radar.RangeProfile, len(cfg.PRFs))
	p.maps = make([][]*radar.RangeDopplerMap, len(cfg.PRFs))
	for i := range cfg.PRFs {
		p.profiles[i] = radar.NewRangeProfile(cfg.Tx, cfg.Rx, cfg.Pulses, bins)
		p.maps[i] = make([]*radar.RangeDopplerMap, pairs)
		for pair := range p.maps[i] {
			p.maps[i][pair] = radar.NewRangeDopplerMap(pair/cfg.Rx, pair%cfg.Rx, bins, cfg.Pulses)
		}
	}
	p.masks = make([]*radar.DetectionMask, pairs)
	for pair := range p.masks {
		p.masks[pair] = radar.NewDetectionMask(bins, cfg.Pulses)
	}

	diagf("[Pipeline] %dx%d array, %d samples x %d pulses, %d PRF(s), %d workers, CFAR %s/%s",
		cfg.Tx, cfg.Rx, cfg.Samples, cfg.Pulses, len(cfg.PRFs), n, cfg.CFAR.Scaling, cfg.Layout)
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Process runs one scan through the processing chain and hands the targets
// to the collaborators. Configuration and shape errors, CFAR aborts and
// context cancellation fail the scan; per-target conditions are attached
// to the targets.
func (p *Pipeline) Process(ctx context.Context, scan *radar.Scan, co Collaborators) (*ScanResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	if err := p.checkScan(scan); err != nil {
		return nil, err
	}
	res := &ScanResult{ScanID: uuid.NewString(), Time: scan.Time}
	res.Stats.Pairs = p.cfg.Tx * p.cfg.Rx

	if err := p.compress(ctx, scan); err != nil {
		opsf("[Pipeline] scan %s failed: %v", res.ScanID, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Detections = p.collect(&res.Stats)
	resolved := p.resolve(res.Detections)

	targets, err := p.locate(ctx, res.Detections, resolved, &res.Stats)
	if err != nil {
		opsf("[Pipeline] scan %s failed: %v", res.ScanID, err)
		return nil, err
	}
	res.Targets = targets

	p.handOff(scan.Time, res, co)

	res.Stats.Elapsed = time.Since(start)
	diagf("[Pipeline] scan %s: %d detections in %d cells, %d skipped cells, %d unresolved, %d partial DoA, %d tracked in %v",
		res.ScanID, res.Stats.Detections, res.Stats.Cells, res.Stats.CellsSkipped,
		res.Stats.Unresolved, res.Stats.PartialDoA, res.Stats.Tracked, res.Stats.Elapsed)

	if !isNilInterface(co.Sink) {
		if err := co.Sink.RecordScan(ctx, res); err != nil {
			opsf("[Pipeline] failed to record scan %s: %v", res.ScanID, err)
		}
	}
	return res, nil
}

func (p *Pipeline) checkScan(scan *radar.Scan) error {
	if scan == nil {
		return fmt.Errorf("%w: nil scan", radar.ErrInvalidConfiguration)
	}
	if len(scan.Cubes) != len(p.cfg.PRFs) {
		return fmt.Errorf("%w: scan has %d cubes for %d configured PRFs",
			radar.ErrInvalidConfiguration, len(scan.Cubes), len(p.cfg.PRFs))
	}
	for i, c := range scan.Cubes {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("cube %d: %w", i, err)
		}
		if c.Tx != p.cfg.Tx || c.Rx != p.cfg.Rx || c.Pulses != p.cfg.Pulses || c.Samples != p.cfg.Samples {
			return fmt.Errorf("%w: cube %d is %dx%dx%dx%d, pipeline expects %dx%dx%dx%d",
				radar.ErrInvalidConfiguration, i, c.Tx, c.Rx, c.Pulses, c.Samples,
				p.cfg.Tx, p.cfg.Rx, p.cfg.Pulses, p.cfg.Samples)
		}
	}
	return nil
}

// compress runs range and Doppler compression for every (PRF, pair) and
// CFAR for every pair of the primary PRF.
func (p *Pipeline) compress(ctx context.Context, scan *radar.Scan) error {
	pairs := p.cfg.Tx * p.cfg.Rx
	return p.run(ctx, len(scan.Cubes)*pairs, func(w *worker, job int) error {
		prf, pair := job/pairs, job%pairs
		tx, rx := pair/p.cfg.Rx, pair%p.cfg.Rx
		m := p.maps[prf][pair]

		if err := w.rng.ProcessPair(scan.Cubes[prf], tx, rx, p.profiles[prf]); err != nil {
			return fmt.Errorf("range compression of pair (%d, %d): %w", tx, rx, err)
		}
		if err := w.dop.ProcessPair(p.profiles[prf], tx, rx, m); err != nil {
			return fmt.Errorf("doppler compression of pair (%d, %d): %w", tx, rx, err)
		}
		if prf != 0 {
			return nil
		}
		if err := w.det.DetectMapInto(p.masks[pair], m, p.cfg.Layout); err != nil {
			return fmt.Errorf("CFAR on pair (%d, %d): %w", tx, rx, err)
		}
		tracef("[Worker %d] pair (%d, %d): %d detections", w.id, tx, rx, p.masks[pair].Count())
		return nil
	})
}

// collect gathers the detections of every pair, in pair order.
func (p *Pipeline) collect(stats *Stats) []radar.Detection {
	dets := make([]radar.Detection, 0)
	for pair, mask := range p.masks {
		m := p.maps[0][pair]
		skipped := mask.SkippedCount()
		stats.CellsSkipped += skipped
		stats.CellsTested += len(mask.Cells) - skipped
		for idx, hit := range mask.Cells {
			if !hit {
				continue
			}
			rb, db := idx/mask.DopplerBins, idx%mask.DopplerBins
			dets = append(dets, radar.Detection{
				RangeBin:   rb,
				DopplerBin: db,
				Tx:         m.Tx,
				Rx:         m.Rx,
				Magnitude:  m.Magnitude[idx],
				Doppler:    p.cfg.DopplerBinVelocity(db, 0),
			})
		}
	}
	stats.Detections = len(dets)
	return dets
}

// resolve fills ResolvedDoppler and reports which detections resolved.
// The estimate of every secondary PRF is the peak Doppler bin of the same
// pair and range bin in that PRF's map.
func (p *Pipeline) resolve(dets []radar.Detection) []bool {
	resolved := make([]bool, len(dets))
	estimates := make([]float64, len(p.cfg.PRFs))
	for i := range dets {
		d := &dets[i]
		pair := d.Tx*p.cfg.Rx + d.Rx
		estimates[0] = d.Doppler
		for prf := 1; prf < len(estimates); prf++ {
			estimates[prf] = p.cfg.DopplerBinVelocity(p.maps[prf][pair].PeakDopplerBin(d.RangeBin), prf)
		}
		r, err := p.resolver.Resolve(estimates)
		d.ResolvedDoppler = r.Velocity
		resolved[i] = r.Resolved
		if err != nil {
			tracef("[Ambiguity] range bin %d doppler bin %d: %v", d.RangeBin, d.DopplerBin, err)
		}
	}
	return resolved
}

type cellKey struct{ rangeBin, dopplerBin int }

type cellEstimate struct {
	est doa.Estimate
	err error
}

// locate estimates angles once per distinct detection cell, since every
// pair shares the same covariance, and builds one target per detection.
func (p *Pipeline) locate(ctx context.Context, dets []radar.Detection, resolved []bool, stats *Stats) ([]radar.Target, error) {
	index := make(map[cellKey]int)
	var cells []cellKey
	for _, d := range dets {
		k := cellKey{d.RangeBin, d.DopplerBin}
		if _, ok := index[k]; !ok {
			index[k] = len(cells)
			cells = append(cells, k)
		}
	}
	stats.Cells = len(cells)

	estimates := make([]cellEstimate, len(cells))
	err := p.run(ctx, len(cells), func(w *worker, job int) error {
		snaps := p.snapshots(w, cells[job])
		if err := doa.CovarianceInto(w.cov, snaps); err != nil {
			return err
		}
		est, err := w.est.Estimate(w.cov)
		if err != nil && !errors.Is(err, radar.ErrPartialDoAEstimate) {
			return fmt.Errorf("DoA at range bin %d doppler bin %d: %w", cells[job].rangeBin, cells[job].dopplerBin, err)
		}
		estimates[job] = cellEstimate{est: est, err: err}
		return nil
	})
	if err != nil {
		return nil, err
	}

	targets := make([]radar.Target, len(dets))
	for i, d := range dets {
		ce := estimates[index[cellKey{d.RangeBin, d.DopplerBin}]]
		t := radar.Target{
			Detection:   d,
			RangeMeters: p.cfg.RangeBinMeters(d.RangeBin),
			DopplerMps:  d.ResolvedDoppler,
			AzimuthDeg:  math.NaN(),
			Angles:      append([]float64(nil), ce.est.Angles...),
		}
		if len(t.Angles) > 0 {
			t.AzimuthDeg = t.Angles[0]
		}

		var errs []error
		if len(p.cfg.PRFs) == 1 {
			t.Flags |= radar.FlagAmbiguityUnresolved
			errs = append(errs, errSinglePRF)
		} else if !resolved[i] {
			t.Flags |= radar.FlagAmbiguityUnresolved
			errs = append(errs, radar.ErrAmbiguityUnresolved)
		}
		if ce.est.Partial {
			t.Flags |= radar.FlagPartialDoA
			errs = append(errs, ce.err)
		}
		if ce.est.IllConditioned {
			t.Flags |= radar.FlagIllConditioned
		}
		t.Err = errors.Join(errs...)

		if t.Flags.Has(radar.FlagAmbiguityUnresolved) {
			stats.Unresolved++
		}
		if t.Flags.Has(radar.FlagPartialDoA) {
			stats.PartialDoA++
		}
		if t.Flags.Has(radar.FlagIllConditioned) {
			stats.IllConditioned++
		}
		tracef("[Target] range %.2f m doppler %.2f m/s azimuth %.1f° flags %s",
			t.RangeMeters, t.DopplerMps, t.AzimuthDeg, t.Flags)
		targets[i] = t
	}
	return targets, nil
}

// snapshots gathers the receive-array snapshots of a cell: one per
// transmit channel and range bin within SnapshotRadius.
func (p *Pipeline) snapshots(w *worker, c cellKey) [][]complex128 {
	bins := p.cfg.rangeBins()
	n := 0
	for tx := 0; tx < p.cfg.Tx; tx++ {
		for rb := c.rangeBin - p.cfg.SnapshotRadius; rb <= c.rangeBin+p.cfg.SnapshotRadius; rb++ {
			if rb < 0 || rb >= bins {
				continue
			}
			snap := w.snaps[n]
			for rx := 0; rx < p.cfg.Rx; rx++ {
				m := p.maps[0][tx*p.cfg.Rx+rx]
				snap[rx] = m.Spectrum[m.Idx(rb, c.dopplerBin)]
			}
			n++
		}
	}
	return w.snaps[:n]
}

// handOff classifies and tracks every target, sequentially, in detection
// order.
func (p *Pipeline) handOff(at time.Time, res *ScanResult, co Collaborators) {
	classify := !isNilInterface(co.Classifier)
	track := !isNilInterface(co.Tracker)
	for i := range res.Targets {
		t := &res.Targets[i]
		if classify {
			t.Class = co.Classifier.Classify(t.Features())
		}
		if !track || math.IsNaN(t.AzimuthDeg) {
			continue
		}
		m := t.Measurement()
		m.Time = at
		id, err := co.Tracker.UpdateTrack(co.TrackerContext, m)
		if err != nil {
			opsf("[Tracking] update failed for target at %.2f m: %v", t.RangeMeters, err)
			t.Err = errors.Join(t.Err, err)
			continue
		}
		t.TrackID = id
		res.Stats.Tracked++
	}
}

// isNilInterface reports whether i is nil or holds a nil pointer.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
