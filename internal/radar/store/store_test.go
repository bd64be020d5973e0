package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/pipeline"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "radar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, at time.Time) *pipeline.ScanResult {
	return &pipeline.ScanResult{
		ScanID: id,
		Time:   at,
		Stats: pipeline.Stats{
			Pairs: 16, CellsTested: 1000, CellsSkipped: 24, Detections: 2,
			Cells: 1, Unresolved: 1, PartialDoA: 1, Tracked: 1,
			Elapsed: 3 * time.Millisecond,
		},
		Targets: []radar.Target{
			{
				Detection:   radar.Detection{RangeBin: 20, DopplerBin: 6, Tx: 0, Rx: 3, Magnitude: 812.5, Doppler: 2.8, ResolvedDoppler: 2.8},
				RangeMeters: 20,
				DopplerMps:  2.8,
				AzimuthDeg:  19.5,
				Class:       "pedestrian",
				TrackID:     "trk_a",
				Flags:       radar.FlagAmbiguityUnresolved,
				Err:         radar.ErrAmbiguityUnresolved,
			},
			{
				Detection:   radar.Detection{RangeBin: 21, DopplerBin: 6, Tx: 1, Rx: 7, Magnitude: 400},
				RangeMeters: 21,
				AzimuthDeg:  math.NaN(),
				Flags:       radar.FlagPartialDoA | radar.FlagIllConditioned,
			},
		},
	}
}

func TestOpenMigrates(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reopening an up-to-date database is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	require.NoError(t, s.MigrateDown())
	version, _, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)

	err = s.RecordScan(context.Background(), sampleResult("gone", time.Now()))
	assert.Error(t, err, "tables were dropped")
}

func TestRecordScanRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 10, 0, 0, 123, time.UTC)
	res := sampleResult("scan-1", at)
	require.NoError(t, s.RecordScan(ctx, res))

	scans, err := s.RecentScans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "scan-1", scans[0].ScanID)
	assert.True(t, at.Equal(scans[0].Time))
	assert.Equal(t, res.Stats, scans[0].Stats)

	got, err := s.Targets(ctx, "scan-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, res.Targets[0].Detection, first.Detection)
	assert.InDelta(t, 19.5, first.AzimuthDeg, 0)
	assert.Equal(t, "pedestrian", first.Class)
	assert.Equal(t, "trk_a", first.TrackID)
	assert.Equal(t, radar.FlagAmbiguityUnresolved, first.Flags)
	assert.Equal(t, radar.ErrAmbiguityUnresolved.Error(), first.ErrMessage)

	second := got[1]
	assert.True(t, math.IsNaN(second.AzimuthDeg))
	assert.Empty(t, second.Class)
	assert.Empty(t, second.TrackID)
	assert.Empty(t, second.ErrMessage)
	assert.True(t, second.Flags.Has(radar.FlagIllConditioned))

	n, err := s.CountTrackTargets(ctx, "trk_a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecentScansOrderAndLimit(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		res := sampleResult(fmt.Sprintf("scan-%d", i), time.Unix(int64(i), 0))
		res.Targets = nil
		require.NoError(t, s.RecordScan(ctx, res))
	}

	scans, err := s.RecentScans(ctx, 3)
	require.NoError(t, err)
	ids := make([]string, len(scans))
	for i, sc := range scans {
		ids[i] = sc.ScanID
	}
	assert.Equal(t, []string{"scan-4", "scan-3", "scan-2"}, ids)
}

func TestRecordScanIsAtomic(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.RecordScan(ctx, sampleResult("dup", time.Unix(1, 0))))

	// The duplicate primary key fails the scan insert and nothing else is
	// written.
	err := s.RecordScan(ctx, sampleResult("dup", time.Unix(2, 0)))
	require.Error(t, err)

	got, err := s.Targets(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRecordScanCancelled(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.RecordScan(ctx, sampleResult("late", time.Now()))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	scans, err := s.RecentScans(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, scans)
}
