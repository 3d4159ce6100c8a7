package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/distance.report/internal/bias"
	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
)

// ErrNotFound is returned when a session or stored result does not exist.
var ErrNotFound = errors.New("db: not found")

// Session is one photograph under analysis: its lens configuration plus the
// user-supplied reference data attached to it.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ImagePath string    `json:"image_path"`
	LensK1    float64   `json:"lens_k1"`
	CenterX   float64   `json:"center_x"`
	CenterY   float64   `json:"center_y"`
	Diagonal  float64   `json:"diagonal"`
	CreatedAt time.Time `json:"created_at"`
}

// Center returns the lens undistortion center as a point.
func (s *Session) Center() geom.Point {
	return geom.Point{X: s.CenterX, Y: s.CenterY}
}

// CreateSession inserts a new session. A missing ID is generated.
func (db *DB) CreateSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO sessions (id, name, image_path, lens_k1, center_x, center_y, diagonal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.ImagePath, s.LensK1, s.CenterX, s.CenterY, s.Diagonal, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads one session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	err := db.QueryRow(`
		SELECT id, name, image_path, lens_k1, center_x, center_y, diagonal, created_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.ImagePath, &s.LensK1, &s.CenterX, &s.CenterY, &s.Diagonal, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &s, nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT id, name, image_path, lens_k1, center_x, center_y, diagonal, created_at
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Name, &s.ImagePath, &s.LensK1, &s.CenterX, &s.CenterY, &s.Diagonal, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and all dependent rows.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLines overwrites the reference lines of a session. The UI edits
// lines as a set, so the store treats them as one.
func (db *DB) ReplaceLines(sessionID string, lines []homography.Line) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM calibration_lines WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear lines: %w", err)
	}
	for i, l := range lines {
		_, err := tx.Exec(`
			INSERT INTO calibration_lines
				(session_id, position, label, start_x, start_y, end_x, end_y, true_length, angle_deg, defined)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, l.Label, l.Start.X, l.Start.Y, l.End.X, l.End.Y, l.TrueLength, l.AngleDeg, l.Defined,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetLines returns a session's reference lines in their stored order.
func (db *DB) GetLines(sessionID string) ([]homography.Line, error) {
	rows, err := db.Query(`
		SELECT label, start_x, start_y, end_x, end_y, true_length, angle_deg, defined
		FROM calibration_lines WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %w", err)
	}
	defer rows.Close()

	var out []homography.Line
	for rows.Next() {
		var l homography.Line
		if err := rows.Scan(&l.Label, &l.Start.X, &l.Start.Y, &l.End.X, &l.End.Y, &l.TrueLength, &l.AngleDeg, &l.Defined); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ReplaceValidation overwrites the validation history of a session.
func (db *DB) ReplaceValidation(sessionID string, entries []bias.ValidationEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM validation_entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear validation entries: %w", err)
	}
	for i, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO validation_entries (session_id, position, mid_x, mid_y, true_distance, measured_distance)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, i, e.Midpoint.X, e.Midpoint.Y, e.TrueDistance, e.MeasuredDistance,
		)
		if err != nil {
			return fmt.Errorf("failed to insert validation entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetValidation returns a session's validation history in stored order.
func (db *DB) GetValidation(sessionID string) ([]bias.ValidationEntry, error) {
	rows, err := db.Query(`
		SELECT mid_x, mid_y, true_distance, measured_distance
		FROM validation_entries WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation entries: %w", err)
	}
	defer rows.Close()

	var out []bias.ValidationEntry
	for rows.Next() {
		var e bias.ValidationEntry
		if err := rows.Scan(&e.Midpoint.X, &e.Midpoint.Y, &e.TrueDistance, &e.MeasuredDistance); err != nil {
			return nil, fmt.Errorf("failed to scan validation entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
