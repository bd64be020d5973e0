// Command radar runs the MIMO processing chain over simulated scans:
// range and Doppler compression, CFAR detection, multi-PRF velocity
// resolution and MUSIC angle estimation, followed by classification,
// tracking and optional SQLite recording.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/radarcore/internal/config"
	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/classify"
	"github.com/banshee-data/radarcore/internal/radar/pipeline"
	"github.com/banshee-data/radarcore/internal/radar/sim"
	"github.com/banshee-data/radarcore/internal/radar/store"
	"github.com/banshee-data/radarcore/internal/radar/tracking"
	"github.com/banshee-data/radarcore/internal/timeutil"
	"github.com/banshee-data/radarcore/internal/units"
	"github.com/banshee-data/radarcore/internal/version"
)

var (
	configPath    = flag.String("config", "", "Processing config JSON (default: "+config.DefaultConfigPath+")")
	dbPath        = flag.String("db", "", "SQLite database to record scans into (disabled when empty)")
	scans         = flag.Int("scans", 10, "Number of scans to simulate (0 runs until interrupted)")
	interval      = flag.Duration("interval", 100*time.Millisecond, "Simulated time between scans")
	seed          = flag.Int64("seed", 1, "Noise seed")
	noise         = flag.Float64("noise", 0.05, "Per-sample complex noise standard deviation")
	reflectors    = flag.String("targets", "20:3:10:1,45:-12:-25:0.5", "Simulated reflectors as range_m:velocity_mps:azimuth_deg:amplitude, comma separated")
	speedUnits    = flag.String("units", units.MPS, "Speed units for output ("+units.GetValidUnitsString()+")")
	debugLog      = flag.Bool("debug", false, "Log per-scan summaries")
	traceLog      = flag.Bool("trace", false, "Log per-pair and per-target telemetry")
	allDetections = flag.Bool("all", false, "Print every detection instead of the strongest per cell")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// options is the parsed command line.
type options struct {
	tuning     *config.ProcessingConfig
	dbPath     string
	scans      int
	interval   time.Duration
	seed       int64
	noise      float64
	reflectors []sim.Reflector
	units      string
	all        bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q: must be one of %s", *speedUnits, units.GetValidUnitsString())
	}
	refl, err := parseReflectors(*reflectors)
	if err != nil {
		log.Fatalf("invalid -targets: %v", err)
	}

	var tuning *config.ProcessingConfig
	if *configPath == "" {
		tuning = config.MustLoadDefaultConfig()
	} else if tuning, err = config.LoadProcessingConfig(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	setLogWriters(os.Stderr, *debugLog, *traceLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		tuning:     tuning,
		dbPath:     *dbPath,
		scans:      *scans,
		interval:   *interval,
		seed:       *seed,
		noise:      *noise,
		reflectors: refl,
		units:      *speedUnits,
		all:        *allDetections,
	}
	if err := run(ctx, opts, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("radar: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// setLogWriters routes the ops stream of every package to w, and the diag
// and trace streams when enabled.
func setLogWriters(w io.Writer, debug, trace bool) {
	var diag, tr io.Writer
	if debug || trace {
		diag = w
	}
	if trace {
		tr = w
	}
	pipeline.SetLogWriters(w, diag, tr)
	tracking.SetLogWriters(w, diag, tr)
	store.SetLogWriters(w, diag, tr)
}

// run simulates and processes opts.scans scans, printing each scan's
// targets to out.
func run(ctx context.Context, opts options, out io.Writer) error {
	pcfg, err := pipeline.ConfigFromTuning(opts.tuning)
	if err != nil {
		return err
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	classifier, err := classify.New(classify.ConfigFromTuning(opts.tuning))
	if err != nil {
		return err
	}
	tracker, err := tracking.New(tracking.ConfigFromTuning(opts.tuning))
	if err != nil {
		return err
	}
	session := tracker.NewSession()

	gen, err := sim.New(sim.Config{
		Tx:           pcfg.Tx,
		Rx:           pcfg.Rx,
		Pulses:       pcfg.Pulses,
		Samples:      pcfg.Samples,
		BandwidthHz:  pcfg.BandwidthHz,
		CarrierHz:    pcfg.CarrierHz,
		PRFs:         pcfg.PRFs,
		Spacing:      pcfg.ElementSpacing,
		NoiseStd:     opts.noise,
		ScanInterval: opts.interval,
		Seed:         opts.seed,
	}, opts.reflectors...)
	if err != nil {
		return err
	}
	clock := timeutil.NewManualClock(time.Now())
	gen.Clock = clock

	co := pipeline.Collaborators{
		Classifier:     classifier,
		Tracker:        tracker,
		TrackerContext: session,
	}
	if opts.dbPath != "" {
		st, err := store.Open(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()
		co.Sink = st
	}

	var acq radar.Acquirer = gen
	for n := 0; opts.scans == 0 || n < opts.scans; n++ {
		scan, err := acq.Acquire(ctx)
		if err != nil {
			return err
		}
		res, err := p.Process(ctx, scan, co)
		if err != nil {
			return err
		}
		printScan(out, n, res, opts.units, opts.all)
		clock.Advance(opts.interval)
	}

	_, tentative, confirmed, _ := session.Counts()
	fmt.Fprintf(out, "tracks: %d confirmed, %d tentative\n", confirmed, tentative)
	return nil
}

// parseReflectors parses "range:velocity:azimuth[:amplitude],...".
// Amplitude defaults to 1.
func parseReflectors(s string) ([]sim.Reflector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []sim.Reflector
	for i, item := range strings.Split(s, ",") {
		fields := strings.Split(strings.TrimSpace(item), ":")
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("reflector %d: expected 3 or 4 fields, got %q", i, item)
		}
		vals := []float64{0, 0, 0, 1}
		for j, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("reflector %d field %d: %w", i, j, err)
			}
			vals[j] = v
		}
		if vals[0] < 0 || vals[3] <= 0 {
			return nil, fmt.Errorf("reflector %d: range must be non-negative and amplitude positive", i)
		}
		out = append(out, sim.Reflector{
			RangeMeters: vals[0],
			VelocityMps: vals[1],
			AzimuthDeg:  vals[2],
			Amplitude:   vals[3],
		})
	}
	return out, nil
}

// strongestPerCell keeps the strongest target of every (range, doppler)
// cell, ordered by range then Doppler bin.
func strongestPerCell(targets []radar.Target) []radar.Target {
	type cell struct{ r, d int }
	best := make(map[cell]int)
	for i, t := range targets {
		k := cell{t.RangeBin, t.DopplerBin}
		if j, ok := best[k]; !ok || t.Magnitude > targets[j].Magnitude {
			best[k] = i
		}
	}
	out := make([]radar.Target, 0, len(best))
	for _, i := range best {
		out = append(out, targets[i])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RangeBin != out[j].RangeBin {
			return out[i].RangeBin < out[j].RangeBin
		}
		return out[i].DopplerBin < out[j].DopplerBin
	})
	return out
}

func printScan(out io.Writer, n int, res *pipeline.ScanResult, speedUnits string, all bool) {
	targets := res.Targets
	if !all {
		targets = strongestPerCell(targets)
	}
	fmt.Fprintf(out, "scan %d %s: %d detections in %d cells (%v)\n",
		n, res.ScanID, res.Stats.Detections, res.Stats.Cells, res.Stats.Elapsed.Round(time.Microsecond))
	for _, t := range targets {
		fmt.Fprintf(out, "  %7.2f m  %8.2f %-4s  %6.1f°  %-10s  %-8s  %s\n",
			t.RangeMeters, units.ConvertSpeed(t.DopplerMps, speedUnits), speedUnits,
			t.AzimuthDeg, t.Class, shortID(t.TrackID), t.Flags)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	if id == "" {
		return "-"
	}
	return id
}
