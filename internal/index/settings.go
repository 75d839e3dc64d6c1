package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// ListGroupNames returns user-assigned display names keyed by group id.
func (d *DB) ListGroupNames(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT session_group_id, session_name FROM session_group_names")
	if err != nil {
		return nil, fmt.Errorf("list group names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

// GetGroupName returns "" when the group has no name.
func (d *DB) GetGroupName(ctx context.Context, groupID string) (string, error) {
	var name string
	err := d.db.QueryRowContext(ctx,
		"SELECT session_name FROM session_group_names WHERE session_group_id = ?", groupID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

// UpsertGroupName stores a trimmed display name; an empty name clears it.
func (d *DB) UpsertGroupName(ctx context.Context, groupID, name string) error {
	name = strings.TrimSpace(name)
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("empty session group id")
	}
	if name == "" {
		_, err := d.db.ExecContext(ctx, "DELETE FROM session_group_names WHERE session_group_id = ?", groupID)
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO session_group_names (session_group_id, session_name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_group_id) DO UPDATE SET
			session_name = excluded.session_name,
			updated_at = excluded.updated_at`,
		groupID, name, formatTime(d.now()))
	if err != nil {
		return fmt.Errorf("upsert group name: %w", err)
	}
	return nil
}

type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

var providerModels = map[Provider][]string{
	ProviderGoogle:    {"gemini-2.5-flash", "gemini-2.5-pro", "gemini-2.0-flash"},
	ProviderOpenAI:    {"gpt-5-mini", "gpt-4.1-mini", "gpt-4o-mini"},
	ProviderAnthropic: {"claude-sonnet-4-5", "claude-opus-4-1", "claude-3-5-haiku-latest"},
}

// Settings is the persisted settings blob for the session renamer.
type Settings struct {
	EnableSessionRenamer bool                `json:"enableSessionRenamer"`
	Provider             Provider            `json:"provider"`
	Model                string              `json:"model"`
	OverrideAPIToken     bool                `json:"overrideApiToken"`
	APITokenByProvider   map[Provider]string `json:"apiTokenByProvider,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{Provider: ProviderGoogle, Model: providerModels[ProviderGoogle][0]}
}

// Normalize replaces unknown providers and models with defaults and drops
// blank tokens.
func (s Settings) Normalize() Settings {
	models, ok := providerModels[s.Provider]
	if !ok {
		s.Provider = ProviderGoogle
		models = providerModels[ProviderGoogle]
	}
	if !lo.Contains(models, s.Model) {
		s.Model = models[0]
	}
	s.APITokenByProvider = lo.PickBy(s.APITokenByProvider, func(p Provider, tok string) bool {
		_, known := providerModels[p]
		return known && strings.TrimSpace(tok) != ""
	})
	if len(s.APITokenByProvider) == 0 {
		s.APITokenByProvider = nil
	}
	return s
}

const settingsKey = "ai_settings"

func (d *DB) LoadSettings(ctx context.Context) (Settings, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", settingsKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	s := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DefaultSettings(), nil
	}
	return s.Normalize(), nil
}

func (d *DB) SaveSettings(ctx context.Context, s Settings) (Settings, error) {
	s = s.Normalize()
	b, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	_, err = d.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", settingsKey, string(b))
	if err != nil {
		return s, fmt.Errorf("save settings: %w", err)
	}
	return s, nil
}
