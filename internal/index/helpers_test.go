package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const chatLog = `[2024-01-15 10:00:01][INFO] Received request: POST to /v1/chat/completions with body {"model":"qwen","messages":[{"role":"system","content":"You are Codex, a coding agent."},{"role":"user","content":"hello"}]}
[2024-01-15 10:00:02][INFO][qwen] Prompt processing progress: 100%
[2024-01-15 10:00:03][INFO][qwen] Generated packet: {"id":"chatcmpl-a","model":"qwen","choices":[{"delta":{"content":"hi"}}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}
[2024-01-15 10:00:05][INFO][qwen] Finished streaming response
[2024-01-15 10:01:00][INFO] Received request: POST to /v1/chat/completions with body {"model":"qwen","messages":[{"role":"system","content":"You are Codex, a coding agent."},{"role":"user","content":"hello"},{"role":"assistant","content":"hi"},{"role":"user","content":"more"}]}
[2024-01-15 10:01:01][INFO][qwen] Generated packet: {"id":"chatcmpl-b","model":"qwen","choices":[{"delta":{"content":"sure"}}],"usage":{"prompt_tokens":30,"completion_tokens":2,"total_tokens":32}}
[2024-01-15 10:01:02][INFO][qwen] Finished streaming response
`

const otherLog = `[2024-01-16 09:00:00][INFO] Received request: POST to /v1/chat/completions with body {"model":"llama","messages":[{"role":"user","content":"standalone"}]}
[2024-01-16 09:00:01][INFO][llama] Generated packet: {"id":"chatcmpl-c","model":"llama","choices":[{"delta":{"content":"ok"}}]}
[2024-01-16 09:00:02][INFO][llama] Finished streaming response
`

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "index.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// writeLog creates root/<month>/<name> with content and the given mtime.
func writeLog(t *testing.T, root, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(root, name[:7], name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}

func sessionIDs(ix *Index) []string {
	var ids []string
	for _, s := range ix.Sessions() {
		ids = append(ids, s.SessionID)
	}
	return ids
}

var bg = context.Background()

// storedSessionIDs lists the stored session ids of one source file.
func storedSessionIDs(t *testing.T, d *DB, path string) []string {
	t.Helper()
	rows, err := d.db.QueryContext(bg,
		"SELECT session_id FROM sessions WHERE source_path = ? ORDER BY source_ordinal", path)
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

// sourceIDs returns the in-memory ids of sessions that came from path.
func sourceIDs(ix *Index, path string) []string {
	return append([]string(nil), ix.bySource[path]...)
}
