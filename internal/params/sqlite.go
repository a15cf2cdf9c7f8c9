package params

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists parameters in a single-table SQLite database, so
// calibration and user settings survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the parameter database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("params: opening %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS params (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("params: creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the stored value for name, with ok=false when absent.
func (s *SQLiteStore) Load(name string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM params WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Save upserts the value for name.
func (s *SQLiteStore) Save(name, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO params (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
