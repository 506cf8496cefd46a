package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/missionmap/internal/export"
)

// ErrNotFound is returned when a report id does not exist.
var ErrNotFound = errors.New("not found")

// ReportRecord is a stored export report.
type ReportRecord struct {
	ID int64 `json:"id"`
	export.Report
}

// RecordReport stores an export report and returns its id.
func (db *DB) RecordReport(r export.Report) (int64, error) {
	files, err := json.Marshal(r.Files)
	if err != nil {
		return 0, fmt.Errorf("failed to encode files: %w", err)
	}
	res, err := db.Exec(
		`INSERT INTO session_reports (
			session_id, label, state, coverage, miss, covered_cells,
			traversable_cells, path_length, out_of_bounds_poses, resolution,
			width, height, started_at, stopped_at, exported_at, output_dir, files_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Label, r.State, r.Coverage, r.Miss, r.CoveredCells,
		r.TraversableCells, r.PathLength, r.OutOfBoundsPoses, r.Resolution,
		r.Width, r.Height, nullTime(r.StartedAt), nullTime(r.StoppedAt),
		formatTime(r.ExportedAt), r.Dir, string(files),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read report id: %w", err)
	}
	db.logf("stored report %d for session %s", id, r.SessionID)
	return id, nil
}

const reportColumns = `report_id, session_id, label, state, coverage, miss,
	covered_cells, traversable_cells, path_length, out_of_bounds_poses,
	resolution, width, height, started_at, stopped_at, exported_at,
	output_dir, files_json`

// Reports returns up to limit reports, newest first. A non-positive limit
// defaults to 100.
func (db *DB) Reports(limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT `+reportColumns+` FROM session_reports ORDER BY report_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	out := []ReportRecord{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return out, nil
}

// ReportByID returns a single report or ErrNotFound.
func (db *DB) ReportByID(id int64) (ReportRecord, error) {
	row := db.QueryRow(`SELECT `+reportColumns+` FROM session_reports WHERE report_id = ?`, id)
	rec, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (ReportRecord, error) {
	var (
		rec                  ReportRecord
		started, stopped     sql.NullString
		exportedAt, filesRaw string
	)
	err := s.Scan(
		&rec.ID, &rec.SessionID, &rec.Label, &rec.State, &rec.Coverage, &rec.Miss,
		&rec.CoveredCells, &rec.TraversableCells, &rec.PathLength, &rec.OutOfBoundsPoses,
		&rec.Resolution, &rec.Width, &rec.Height, &started, &stopped, &exportedAt,
		&rec.Dir, &filesRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReportRecord{}, err
		}
		return ReportRecord{}, fmt.Errorf("failed to scan report: %w", err)
	}
	if rec.ExportedAt, err = parseTime(exportedAt); err != nil {
		return ReportRecord{}, err
	}
	if rec.StartedAt, err = parseNullTime(started); err != nil {
		return ReportRecord{}, err
	}
	if rec.StoppedAt, err = parseNullTime(stopped); err != nil {
		return ReportRecord{}, err
	}
	if err := json.Unmarshal([]byte(filesRaw), &rec.Files); err != nil {
		return ReportRecord{}, fmt.Errorf("failed to decode files of report %d: %w", rec.ID, err)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
