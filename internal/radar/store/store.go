// Package store records processed scans and their targets in SQLite.
// It implements pipeline.Sink.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/radarcore/internal/radar"
	"github.com/banshee-data/radarcore/internal/radar/pipeline"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// Store is a scan recorder backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ pipeline.Sink = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps PRAGMAs and in-memory databases consistent.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := s.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	diagf("[Store] opened %s at schema version %d", path, version)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordScan stores a scan summary and its targets in one transaction.
func (s *Store) RecordScan(ctx context.Context, res *pipeline.ScanResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	st := res.Stats
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scans (
			scan_id, scan_unix_nanos, pairs, cells_tested, cells_skipped,
			detections, cells, unresolved, partial_doa, ill_conditioned,
			tracked, elapsed_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ScanID, res.Time.UnixNano(), st.Pairs, st.CellsTested, st.CellsSkipped,
		st.Detections, st.Cells, st.Unresolved, st.PartialDoA, st.IllConditioned,
		st.Tracked, int64(st.Elapsed),
	); err != nil {
		opsf("[Store] failed to insert scan %s: %v", res.ScanID, err)
		return fmt.Errorf("insert scan %s: %w", res.ScanID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO targets (
			scan_id, idx, range_bin, doppler_bin, tx, rx, magnitude,
			doppler_mps, resolved_mps, range_m, azimuth_deg, class,
			track_id, flags, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range res.Targets {
		if _, err := stmt.ExecContext(ctx,
			res.ScanID, i, t.RangeBin, t.DopplerBin, t.Tx, t.Rx, t.Magnitude,
			t.Doppler, t.DopplerMps, t.RangeMeters, nullFloat(t.AzimuthDeg),
			nullString(t.Class), nullString(t.TrackID), int(t.Flags), nullError(t.Err),
		); err != nil {
			opsf("[Store] failed to insert target %d of scan %s: %v", i, res.ScanID, err)
			return fmt.Errorf("insert target %d of scan %s: %w", i, res.ScanID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	tracef("[Store] scan %s: %d targets", res.ScanID, len(res.Targets))
	return nil
}

// ScanSummary is one row of the scans table.
type ScanSummary struct {
	ScanID string
	Time   time.Time
	Stats  pipeline.Stats
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]ScanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, scan_unix_nanos, pairs, cells_tested, cells_skipped,
		       detections, cells, unresolved, partial_doa, ill_conditioned,
		       tracked, elapsed_ns
		FROM scans
		ORDER BY scan_unix_nanos DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScanSummary
	for rows.Next() {
		var (
			sum     ScanSummary
			nanos   int64
			elapsed int64
			st      = &sum.Stats
		)
		if err := rows.Scan(&sum.ScanID, &nanos, &st.Pairs, &st.CellsTested, &st.CellsSkipped,
			&st.Detections, &st.Cells, &st.Unresolved, &st.PartialDoA, &st.IllConditioned,
			&st.Tracked, &elapsed); err != nil {
			return nil, err
		}
		sum.Time = time.Unix(0, nanos).UTC()
		st.Elapsed = time.Duration(elapsed)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// TargetRecord is one stored target. Err is only kept as its message.
type TargetRecord struct {
	radar.Target
	ErrMessage string
}

// Targets returns the stored targets of a scan in detection order.
func (s *Store) Targets(ctx context.Context, scanID string) ([]TargetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT range_bin, doppler_bin, tx, rx, magnitude, doppler_mps,
		       resolved_mps, range_m, azimuth_deg, class, track_id, flags, error
		FROM targets
		WHERE scan_id = ?
		ORDER BY idx`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TargetRecord
	for rows.Next() {
		var (
			rec            TargetRecord
			az             sql.NullFloat64
			class, trackID sql.NullString
			errMsg         sql.NullString
			flags          int
		)
		t := &rec.Target
		if err := rows.Scan(&t.RangeBin, &t.DopplerBin, &t.Tx, &t.Rx, &t.Magnitude, &t.Doppler,
			&t.DopplerMps, &t.RangeMeters, &az, &class, &trackID, &flags, &errMsg); err != nil {
			return nil, err
		}
		t.ResolvedDoppler = t.DopplerMps
		t.AzimuthDeg = math.NaN()
		if az.Valid {
			t.AzimuthDeg = az.Float64
		}
		t.Class = class.String
		t.TrackID = trackID.String
		t.Flags = radar.QualityFlag(flags)
		rec.ErrMessage = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountTrackTargets returns the number of stored targets assigned to a
// track.
func (s *Store) CountTrackTargets(ctx context.Context, trackID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets WHERE track_id = ?`, trackID).Scan(&n)
	return n, err
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullError(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
