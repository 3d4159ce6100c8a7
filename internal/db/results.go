package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/distance.report/internal/geom"
	"github.com/banshee-data/distance.report/internal/homography"
	"github.com/banshee-data/distance.report/internal/uncertainty"
)

// StoredHomography is one calibration result. A session keeps every
// explicit recompute; the newest row is the active matrix. Versioning lives
// here, in the caller's store, because the calibration core itself treats
// each matrix as an immutable value.
type StoredHomography struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	Matrix          geom.Homography `json:"matrix"`
	ConditionNumber float64         `json:"condition_number"`
	RMSE            float64         `json:"rmse"`
	MAPE            float64         `json:"mape"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SaveHomography stores a freshly computed calibration for a session.
func (db *DB) SaveHomography(sessionID string, res *homography.Result) (*StoredHomography, error) {
	sh := &StoredHomography{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Matrix:          res.Matrix,
		ConditionNumber: res.ConditionNumber,
		RMSE:            res.RMSE,
		MAPE:            res.MAPE,
		CreatedAt:       time.Now().UTC(),
	}
	m := sh.Matrix
	_, err := db.Exec(`
		INSERT INTO homographies
			(id, session_id, h0, h1, h2, h3, h4, h5, h6, h7, h8, condition_number, rmse, mape, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.SessionID, m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8],
		sh.ConditionNumber, sh.RMSE, sh.MAPE, sh.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save homography: %w", err)
	}
	return sh, nil
}

// LatestHomography returns the most recent calibration for a session, or
// ErrNotFound when the session has never been calibrated.
func (db *DB) LatestHomography(sessionID string) (*StoredHomography, error) {
	var sh StoredHomography
	var m geom.Homography
	err := db.QueryRow(`
		SELECT id, session_id, h0, h1, h2, h3, h4, h5, h6, h7, h8, condition_number, rmse, mape, created_at
		FROM homographies WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, sessionID,
	).Scan(&sh.ID, &sh.SessionID, &m[0], &m[1], &m[2], &m[3], &m[4], &m[5], &m[6], &m[7], &m[8],
		&sh.ConditionNumber, &sh.RMSE, &sh.MAPE, &sh.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load homography: %w", err)
	}
	sh.Matrix = m
	return &sh, nil
}

// Measurement is one measured segment with its full uncertainty budget,
// all distances in metres.
type Measurement struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id"`
	Label     string             `json:"label"`
	A         geom.Point         `json:"a"`
	B         geom.Point         `json:"b"`
	Budget    uncertainty.Budget `json:"budget"`
	CreatedAt time.Time          `json:"created_at"`
}

// RecordMeasurement stores a measurement. A missing ID is generated.
func (db *DB) RecordMeasurement(m *Measurement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	b := m.Budget
	_, err := db.Exec(`
		INSERT INTO measurements
			(id, session_id, label, ax, ay, bx, by,
			 measured, corrected, sigma_mc, sigma_bias, sigma_total, ci90, ci95, ci99, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Label, m.A.X, m.A.Y, m.B.X, m.B.Y,
		b.Measured, b.Corrected, b.SigmaMC, b.SigmaBias, b.SigmaTotal, b.CI90, b.CI95, b.CI99, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record measurement: %w", err)
	}
	return nil
}

// ListMeasurements returns a session's measurements, oldest first.
func (db *DB) ListMeasurements(sessionID string) ([]Measurement, error) {
	rows, err := db.Query(`
		SELECT id, session_id, label, ax, ay, bx, by,
		       measured, corrected, sigma_mc, sigma_bias, sigma_total, ci90, ci95, ci99, created_at
		FROM measurements WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		b := &m.Budget
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Label, &m.A.X, &m.A.Y, &m.B.X, &m.B.Y,
			&b.Measured, &b.Corrected, &b.SigmaMC, &b.SigmaBias, &b.SigmaTotal, &b.CI90, &b.CI95, &b.CI99, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
