package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

const sessionColumns = `session_id, chat_id, first_seen_at, model, request_json, events_json,
    tool_calls_json, metrics_json, source_path, source_ordinal, source_line`

// ReplaceFileSessions swaps all stored sessions of one file for sessions and
// upserts its file record, atomically.
func (d *DB) ReplaceFileSessions(ctx context.Context, file IndexedFile, sessions []parse.Session) error {
	if file.LastIndexedAt.IsZero() {
		file.LastIndexedAt = d.now()
	}
	updatedAt := formatTime(file.LastIndexedAt)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE source_path = ?", file.Path); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sessions (`+sessionColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range sessions {
		s := &sessions[i]
		row, err := encodeSession(s)
		if err != nil {
			return fmt.Errorf("encode %s: %w", s.SessionID, err)
		}
		_, err = stmt.ExecContext(ctx,
			s.SessionID,
			nullString(s.ChatID),
			formatTime(s.FirstSeenAt),
			nullString(s.Model),
			row.request,
			row.events,
			row.toolCalls,
			row.metrics,
			file.Path,
			s.SourceOrdinal,
			s.SourceLine,
			updatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert %s: %w", s.SessionID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, upsertFileSQL,
		file.Path, file.Checksum, file.MtimeMs, file.SizeBytes, updatedAt); err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}

	return tx.Commit()
}

// ForEachSession streams stored sessions in ascending first_seen_at order.
// Returning an error from fn stops the iteration and returns that error.
func (d *DB) ForEachSession(ctx context.Context, fn func(parse.Session) error) error {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions ORDER BY first_seen_at ASC, source_path ASC, source_ordinal ASC")
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return rows.Err()
}

// LoadSessions returns every stored session in ascending first_seen_at order.
func (d *DB) LoadSessions(ctx context.Context) ([]parse.Session, error) {
	var out []parse.Session
	err := d.ForEachSession(ctx, func(s parse.Session) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

type encodedSession struct {
	request   sql.NullString
	events    string
	toolCalls string
	metrics   string
}

func encodeSession(s *parse.Session) (encodedSession, error) {
	var row encodedSession
	if s.Request != nil {
		b, err := json.Marshal(s.Request)
		if err != nil {
			return row, err
		}
		row.request = sql.NullString{String: string(b), Valid: true}
	}

	events := s.Events
	if events == nil {
		events = []parse.TimelineEvent{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return row, err
	}
	row.events = string(b)

	calls := s.ToolCalls
	if calls == nil {
		calls = []parse.ToolCall{}
	}
	if b, err = json.Marshal(calls); err != nil {
		return row, err
	}
	row.toolCalls = string(b)

	if b, err = json.Marshal(s.Metrics); err != nil {
		return row, err
	}
	row.metrics = string(b)
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (parse.Session, error) {
	var (
		s                          parse.Session
		chatID, model, request     sql.NullString
		firstSeen                  string
		events, toolCalls, metrics string
	)
	if err := sc.Scan(&s.SessionID, &chatID, &firstSeen, &model, &request, &events,
		&toolCalls, &metrics, &s.SourcePath, &s.SourceOrdinal, &s.SourceLine); err != nil {
		return s, fmt.Errorf("scan session: %w", err)
	}
	s.ChatID = chatID.String
	s.Model = model.String
	s.FirstSeenAt = parseTime(firstSeen)

	if request.Valid && request.String != "" {
		var req parse.RequestData
		if err := json.Unmarshal([]byte(request.String), &req); err != nil {
			return s, fmt.Errorf("decode request of %s: %w", s.SessionID, err)
		}
		s.Request = &req
	}
	if err := json.Unmarshal([]byte(events), &s.Events); err != nil {
		return s, fmt.Errorf("decode events of %s: %w", s.SessionID, err)
	}
	if err := json.Unmarshal([]byte(toolCalls), &s.ToolCalls); err != nil {
		return s, fmt.Errorf("decode tool calls of %s: %w", s.SessionID, err)
	}
	if err := json.Unmarshal([]byte(metrics), &s.Metrics); err != nil {
		return s, fmt.Errorf("decode metrics of %s: %w", s.SessionID, err)
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
