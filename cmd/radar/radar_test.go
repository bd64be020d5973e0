package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/radarcore/internal/config"
	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/sim"
	"github.com/banshee-data/radarcore/internal/radar/store"
	"github.com/banshee-data/radarcore/internal/units"
)

const smallConfig = `{
	"tx": 2,
	"rx": 4,
	"samples": 64,
	"pulses": 32,
	"bandwidth_hz": 149896229,
	"carrier_hz": 10e9,
	"prfs": [1000, 1100, 1200],
	"cfar_guard": 2,
	"cfar_training": 8,
	"cfar_pfa": 1e-3,
	"max_velocity_mps": 60,
	"angle_min_deg": -60,
	"angle_max_deg": 60,
	"workers": 2
}`

func TestParseReflectors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []sim.Reflector
		wantErr bool
	}{
		{name: "empty", in: "  "},
		{
			name: "default amplitude",
			in:   "20:3:10",
			want: []sim.Reflector{{RangeMeters: 20, VelocityMps: 3, AzimuthDeg: 10, Amplitude: 1}},
		},
		{
			name: "several",
			in:   "20:3:10:1, 45:-12:-25:0.5",
			want: []sim.Reflector{
				{RangeMeters: 20, VelocityMps: 3, AzimuthDeg: 10, Amplitude: 1},
				{RangeMeters: 45, VelocityMps: -12, AzimuthDeg: -25, Amplitude: 0.5},
			},
		},
		{name: "too few fields", in: "20:3", wantErr: true},
		{name: "not a number", in: "20:fast:10", wantErr: true},
		{name: "negative range", in: "-1:0:0", wantErr: true},
		{name: "zero amplitude", in: "10:0:0:0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReflectors(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseReflectors(%q) succeeded, want error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseReflectors(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseReflectors(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestStrongestPerCell(t *testing.T) {
	target := func(rb, db, tx int, mag float64) radar.Target {
		return radar.Target{Detection: radar.Detection{RangeBin: rb, DopplerBin: db, Tx: tx, Magnitude: mag}}
	}
	in := []radar.Target{
		target(21, 6, 0, 5),
		target(20, 6, 0, 10),
		target(20, 6, 1, 12),
		target(20, 2, 0, 3),
		target(21, 6, 1, 4),
	}
	want := []radar.Target{
		target(20, 2, 0, 3),
		target(20, 6, 1, 12),
		target(21, 6, 0, 5),
	}
	if diff := cmp.Diff(want, strongestPerCell(in)); diff != "" {
		t.Errorf("strongestPerCell mismatch (-want +got):\n%s", diff)
	}
}

func TestShortID(t *testing.T) {
	for in, want := range map[string]string{
		"":                  "-",
		"trk_1":             "trk_1",
		"trk_0123456789abc": "trk_01234567",
	} {
		if got := shortID(in); got != want {
			t.Errorf("shortID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunEndToEnd(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "scans.db")
	var out bytes.Buffer
	err := run(context.Background(), options{
		tuning:     mustSmallTuning(t),
		dbPath:     dbFile,
		scans:      5,
		interval:   100 * time.Millisecond,
		seed:       3,
		noise:      0.01,
		reflectors: []sim.Reflector{{RangeMeters: 20, AzimuthDeg: 10, Amplitude: 1}},
		units:      units.KMPH,
	}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	t.Logf("output:\n%s", text)
	scanLines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "scan ") {
			scanLines++
		}
	}
	if scanLines != 5 {
		t.Errorf("printed %d scans, want 5", scanLines)
	}
	if !strings.Contains(text, "20.00 m") {
		t.Error("expected a target at 20 m")
	}
	if !strings.Contains(text, "stationary") {
		t.Error("expected the stationary reflector to be classified")
	}
	if !strings.Contains(text, "tracks: 1 confirmed, 0 tentative") {
		t.Error("expected one confirmed track")
	}

	st, err := store.Open(dbFile)
	if err != nil {
		t.Fatalf("reopen database: %v", err)
	}
	defer st.Close()
	recorded, err := st.RecentScans(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recorded) != 5 {
		t.Fatalf("recorded %d scans, want 5", len(recorded))
	}
	targets, err := st.Targets(context.Background(), recorded[0].ScanID)
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) == 0 || targets[0].TrackID == "" {
		t.Errorf("expected tracked targets in the newest scan, got %+v", targets)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, options{
		tuning: mustSmallTuning(t),
		scans:  3,
		units:  units.MPS,
	}, &out)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func mustSmallTuning(t *testing.T) *config.ProcessingConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radar.json")
	if err := os.WriteFile(path, []byte(smallConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	tuning, err := config.LoadProcessingConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	return tuning
}
