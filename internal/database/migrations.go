package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL CHECK(kind IN ('ARTIST', 'GROUP')),
    name TEXT NOT NULL,
    verified INTEGER DEFAULT 0,
    reliability_score REAL DEFAULT 0 CHECK(reliability_score BETWEEN 0 AND 1),
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(kind, name)
);

CREATE TABLE IF NOT EXISTS entity_fields (
    entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    field_name TEXT NOT NULL,
    value TEXT,
    updated_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (entity_id, field_name)
);

CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    reliability REAL DEFAULT 0 CHECK(reliability BETWEEN 0 AND 1),
    published_date TEXT,
    collected_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS auto_resolution_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id INTEGER REFERENCES articles(id) ON DELETE SET NULL,
    entity_kind TEXT NOT NULL CHECK(entity_kind IN ('ARTIST', 'GROUP')),
    entity_id INTEGER NOT NULL,
    field_name TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT NOT NULL,
    resolution_type TEXT NOT NULL CHECK(resolution_type IN ('FILL', 'RECONCILE', 'ENROLL')),
    reasoning TEXT,
    confidence REAL CHECK(confidence IS NULL OR confidence BETWEEN 0 AND 1),
    source_reliability REAL NOT NULL DEFAULT 0 CHECK(source_reliability BETWEEN 0 AND 1),
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS conflict_flags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id INTEGER REFERENCES articles(id) ON DELETE SET NULL,
    entity_kind TEXT NOT NULL CHECK(entity_kind IN ('ARTIST', 'GROUP')),
    entity_id INTEGER,
    entity_name TEXT NOT NULL DEFAULT '',
    field_name TEXT NOT NULL,
    existing_value TEXT,
    conflicting_value TEXT NOT NULL,
    reason TEXT,
    conflict_score REAL NOT NULL CHECK(conflict_score BETWEEN 0 AND 1),
    status TEXT NOT NULL DEFAULT 'OPEN' CHECK(status IN ('OPEN', 'RESOLVED', 'DISMISSED')),
    resolved_by TEXT,
    resolved_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entities_kind_name ON entities(kind, name);
CREATE INDEX IF NOT EXISTS idx_resolution_logs_created ON auto_resolution_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_resolution_logs_type ON auto_resolution_logs(resolution_type);
CREATE INDEX IF NOT EXISTS idx_resolution_logs_entity ON auto_resolution_logs(entity_kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_conflict_flags_status ON conflict_flags(status);
CREATE INDEX IF NOT EXISTS idx_conflict_flags_entity ON conflict_flags(entity_kind, entity_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
