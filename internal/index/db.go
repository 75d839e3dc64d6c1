package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS indexed_files (
    path            TEXT PRIMARY KEY,
    checksum        TEXT NOT NULL,
    mtime_ms        INTEGER NOT NULL,
    size_bytes      INTEGER NOT NULL,
    last_indexed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id      TEXT PRIMARY KEY,
    chat_id         TEXT,
    first_seen_at   TEXT NOT NULL,
    model           TEXT,
    request_json    TEXT,
    events_json     TEXT NOT NULL,
    tool_calls_json TEXT NOT NULL,
    metrics_json    TEXT NOT NULL,
    source_path     TEXT NOT NULL,
    source_ordinal  INTEGER NOT NULL,
    source_line     INTEGER NOT NULL DEFAULT 0,
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_chat_id ON sessions(chat_id);
CREATE INDEX IF NOT EXISTS idx_sessions_first_seen_at ON sessions(first_seen_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_source_path ON sessions(source_path);

CREATE TABLE IF NOT EXISTS session_group_names (
    session_group_id TEXT PRIMARY KEY,
    session_name     TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);
`

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

type DB struct {
	db  *sql.DB
	now func() time.Time
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	// per-connection pragmas go in the DSN so every pooled connection gets them
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db, now: time.Now}
	if err := d.migrateSchemaVersion(); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema version: %w", err)
	}
	return d, nil
}

// schemaVersion should be bumped whenever parsing logic changes the stored
// session shape, to force a full re-index.
const schemaVersion = "1"

func (d *DB) migrateSchemaVersion() error {
	var ver string
	err := d.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&ver)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if ver == schemaVersion {
		return nil
	}
	if ver != "" {
		log.Info().Str("from", ver).Str("to", schemaVersion).Msg("schema version changed, forcing full reindex")
		// checksum '' never matches, mtime 0 never matches
		if _, err := d.db.Exec("UPDATE indexed_files SET checksum = '', mtime_ms = 0, size_bytes = -1"); err != nil {
			return err
		}
	}
	_, err = d.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)", schemaVersion)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SchemaVersion returns the recorded schema version marker.
func (d *DB) SchemaVersion(ctx context.Context) (string, error) {
	var ver string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&ver)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return ver, err
}

func (d *DB) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

func (d *DB) FileCount(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indexed_files").Scan(&n)
	return n, err
}
