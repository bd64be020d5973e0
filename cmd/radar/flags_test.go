package main

import (
	"testing"
	"time"

	"github.com/banshee-data/radarcore/internal/units"
)

// TestFlagDefaults verifies the defaults a bare `radar` invocation runs with.
func TestFlagDefaults(t *testing.T) {
	if *configPath != "" {
		t.Errorf("expected empty -config default, got %q", *configPath)
	}
	if *dbPath != "" {
		t.Errorf("expected recording disabled by default, got -db %q", *dbPath)
	}
	if *scans != 10 {
		t.Errorf("expected -scans default 10, got %d", *scans)
	}
	if *interval != 100*time.Millisecond {
		t.Errorf("expected -interval default 100ms, got %v", *interval)
	}
	if *speedUnits != units.MPS {
		t.Errorf("expected -units default %q, got %q", units.MPS, *speedUnits)
	}
	if *debugLog || *traceLog || *allDetections || *showVersion {
		t.Error("expected boolean flags to default to false")
	}
}

// TestDefaultTargetsParse verifies the -targets default is well formed.
func TestDefaultTargetsParse(t *testing.T) {
	refl, err := parseReflectors(*reflectors)
	if err != nil {
		t.Fatalf("default -targets does not parse: %v", err)
	}
	if len(refl) != 2 {
		t.Errorf("expected 2 default reflectors, got %d", len(refl))
	}
}
