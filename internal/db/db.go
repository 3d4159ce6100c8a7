// Package db persists calibration sessions and their derived results in
// sqlite. The measurement core never touches this package; the API layer
// and CLI load plain values from here and pass them into the pure
// calibration functions.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection with the session store methods.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path. Run MigrateUp
// before using the store methods.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return &DB{conn}, nil
}
