package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer at a time; a single pooled connection turns
	// concurrent transactions into queueing instead of SQLITE_BUSY errors.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		dst   *int
		query string
	}{
		{&s.Entities, "SELECT COUNT(*) FROM entities"},
		{&s.Artists, "SELECT COUNT(*) FROM entities WHERE kind = 'ARTIST'"},
		{&s.Groups, "SELECT COUNT(*) FROM entities WHERE kind = 'GROUP'"},
		{&s.Articles, "SELECT COUNT(*) FROM articles"},
		{&s.Decisions, "SELECT COUNT(*) FROM auto_resolution_logs"},
		{&s.OpenConflicts, "SELECT COUNT(*) FROM conflict_flags WHERE status = 'OPEN'"},
		{&s.ResolvedConflicts, "SELECT COUNT(*) FROM conflict_flags WHERE status IN ('RESOLVED', 'DISMISSED')"},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return s, nil
}
