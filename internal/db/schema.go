// Package db provides SQLite database management for the RAMPART home
// directory. Two databases: metadata.db (runs, snapshots, registry) and
// audit.db (append-only audit log).
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	MetadataDBFile = "metadata.db"
	AuditDBFile    = "audit.db"
)

// MetadataSchema defines all tables for the main database.
const MetadataSchema = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

-- Operation runs
CREATE TABLE IF NOT EXISTS runs (
    uuid            TEXT PRIMARY KEY,
    op_id           TEXT NOT NULL,
    op_version      TEXT DEFAULT '',
    inputs          TEXT DEFAULT '{}',  -- JSON object
    status          TEXT NOT NULL DEFAULT 'pending',
    started_at      TEXT NOT NULL,
    completed_at    TEXT,
    gateway_count   INTEGER DEFAULT 0,
    snapshot_uuid   TEXT DEFAULT '',
    error_detail    TEXT,
    created_by      TEXT NOT NULL DEFAULT 'local'
);

CREATE INDEX IF NOT EXISTS idx_runs_op ON runs(op_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Fact snapshots (content-addressed YAML documents)
CREATE TABLE IF NOT EXISTS snapshots (
    uuid            TEXT PRIMARY KEY,
    run_uuid        TEXT REFERENCES runs(uuid),
    element_key     TEXT NOT NULL,  -- external_gateway | gateway_profile | vpn_site
    filter          TEXT DEFAULT '',
    content_hash    TEXT NOT NULL,
    storage_path    TEXT NOT NULL,
    byte_size       INTEGER DEFAULT 0,
    element_count   INTEGER DEFAULT 0,
    created_at      TEXT NOT NULL,
    created_by      TEXT NOT NULL DEFAULT 'local'
);

CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_uuid);
CREATE INDEX IF NOT EXISTS idx_snapshots_key ON snapshots(element_key);
CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(content_hash);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);

-- Operation registry (cached metadata for registered operations)
CREATE TABLE IF NOT EXISTS op_registry (
    id              TEXT PRIMARY KEY,  -- facts.external_gateway
    name            TEXT NOT NULL,
    version         TEXT NOT NULL,
    description     TEXT DEFAULT '',
    object_types    TEXT DEFAULT '[]',  -- JSON array
    risk_class      TEXT NOT NULL DEFAULT 'read_only',
    registered_at   TEXT NOT NULL
);
`

// AuditSchema defines the append-only audit log table.
const AuditSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    run_uuid        TEXT DEFAULT '',
    source          TEXT NOT NULL DEFAULT 'local',
    event_type      TEXT NOT NULL,
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_log(run_uuid);
`

// OpenMetadataDB opens or creates the metadata database under homePath.
func OpenMetadataDB(homePath string) (*sql.DB, error) {
	dbPath := filepath.Join(homePath, MetadataDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}

	if _, err := db.Exec(MetadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing metadata schema: %w", err)
	}

	return db, nil
}

// OpenAuditDB opens or creates the append-only audit database under homePath.
func OpenAuditDB(homePath string) (*sql.DB, error) {
	dbPath := filepath.Join(homePath, AuditDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(AuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return db, nil
}

// EnsureHomeDir creates the RAMPART home directory structure.
func EnsureHomeDir(path string) error {
	dirs := []string{
		path,
		filepath.Join(path, "snapshots"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}
