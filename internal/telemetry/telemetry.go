// Package telemetry persists per-unit decode and conversion timings so
// sessions can be compared offline.
package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the telemetry database.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the telemetry database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS unit_timings (
			session_id   TEXT NOT NULL,
			unit_index   BIGINT NOT NULL,
			frames       BIGINT,
			points       BIGINT,
			decode_ns    BIGINT,
			convert_ns   BIGINT,
			recorded_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_unit_timings_session
			ON unit_timings(session_id, unit_index);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: create schema: %w", err)
	}

	return &Store{db}, nil
}

// UnitTiming is one recorded unit decode.
type UnitTiming struct {
	SessionID    string
	UnitIndex    int
	Frames       int
	Points       int
	DecodeNanos  int64
	ConvertNanos int64
}

// RecordUnit inserts one unit timing row.
func (s *Store) RecordUnit(t UnitTiming) error {
	_, err := s.Exec(`
		INSERT INTO unit_timings (session_id, unit_index, frames, points, decode_ns, convert_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.UnitIndex, t.Frames, t.Points, t.DecodeNanos, t.ConvertNanos)
	if err != nil {
		return fmt.Errorf("telemetry: record unit %d: %w", t.UnitIndex, err)
	}
	return nil
}

// UnitTimings returns a session's rows ordered by unit index.
func (s *Store) UnitTimings(sessionID string) ([]UnitTiming, error) {
	rows, err := s.Query(`
		SELECT session_id, unit_index, frames, points, decode_ns, convert_ns
		FROM unit_timings WHERE session_id = ? ORDER BY unit_index`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []UnitTiming
	for rows.Next() {
		var t UnitTiming
		if err := rows.Scan(&t.SessionID, &t.UnitIndex, &t.Frames, &t.Points, &t.DecodeNanos, &t.ConvertNanos); err != nil {
			return nil, fmt.Errorf("telemetry: scan row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sessions lists the distinct session ids present in the store, most recent
// first.
func (s *Store) Sessions() ([]string, error) {
	rows, err := s.Query(`
		SELECT session_id FROM unit_timings
		GROUP BY session_id ORDER BY MAX(recorded_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("telemetry: list sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
