package index

import (
	"context"
	"fmt"
	"time"
)

// IndexedFile is the change-detection record kept per log file.
type IndexedFile struct {
	Path          string
	Checksum      string
	MtimeMs       int64
	SizeBytes     int64
	LastIndexedAt time.Time
}

func (d *DB) ListIndexedFiles(ctx context.Context) (map[string]IndexedFile, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT path, checksum, mtime_ms, size_bytes, last_indexed_at FROM indexed_files")
	if err != nil {
		return nil, fmt.Errorf("list indexed files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]IndexedFile)
	for rows.Next() {
		var f IndexedFile
		var at string
		if err := rows.Scan(&f.Path, &f.Checksum, &f.MtimeMs, &f.SizeBytes, &at); err != nil {
			return nil, err
		}
		f.LastIndexedAt = parseTime(at)
		files[f.Path] = f
	}
	return files, rows.Err()
}

// UpsertIndexedFile records file metadata without touching its sessions.
func (d *DB) UpsertIndexedFile(ctx context.Context, f IndexedFile) error {
	if f.LastIndexedAt.IsZero() {
		f.LastIndexedAt = d.now()
	}
	_, err := d.db.ExecContext(ctx, upsertFileSQL,
		f.Path, f.Checksum, f.MtimeMs, f.SizeBytes, formatTime(f.LastIndexedAt))
	if err != nil {
		return fmt.Errorf("upsert indexed file %s: %w", f.Path, err)
	}
	return nil
}

const upsertFileSQL = `
INSERT INTO indexed_files (path, checksum, mtime_ms, size_bytes, last_indexed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    checksum = excluded.checksum,
    mtime_ms = excluded.mtime_ms,
    size_bytes = excluded.size_bytes,
    last_indexed_at = excluded.last_indexed_at`

// DeleteMissingFiles removes file and session rows for every stored path
// not in current, in one transaction, and returns the removed paths.
func (d *DB) DeleteMissingFiles(ctx context.Context, current map[string]struct{}) ([]string, error) {
	stored, err := d.ListIndexedFiles(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for path := range stored {
		if _, ok := current[path]; !ok {
			missing = append(missing, path)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, path := range missing {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE source_path = ?", path); err != nil {
			return nil, fmt.Errorf("delete sessions for %s: %w", path, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM indexed_files WHERE path = ?", path); err != nil {
			return nil, fmt.Errorf("delete indexed file %s: %w", path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return missing, nil
}
