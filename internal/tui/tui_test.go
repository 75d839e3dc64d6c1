package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
	"github.com/Zuo-Peng/lms-log-explorer/internal/search"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestProgressModelTracksStatus(t *testing.T) {
	var m tea.Model = newProgressModel(fixedClock())

	m, _ = m.Update(statusMsg(index.Status{
		State:           index.StateIndexing,
		TotalFiles:      4,
		ProcessedFiles:  1.5,
		CurrentFile:     "/logs/2024-01/2024-01-15.1.log",
		SessionsIndexed: 1200,
	}))
	pm := m.(progressModel)
	assert.InDelta(t, 0.375, pm.fraction(), 1e-9)

	view := pm.View()
	assert.Contains(t, view, "1.5 / 4")
	assert.Contains(t, view, "1,200")
	assert.Contains(t, view, "2024-01-15.1.log")
	assert.NotContains(t, view, "/logs/2024-01/")

	m, cmd := m.Update(rebuildDoneMsg{stats: index.Stats{Scanned: 4, Reparsed: 1}})
	require.NotNil(t, cmd)
	pm = m.(progressModel)
	assert.Equal(t, 1.0, pm.fraction())
	assert.Contains(t, pm.View(), "scanned=4 reparsed=1")
}

func TestProgressModelShowsFailure(t *testing.T) {
	var m tea.Model = newProgressModel(fixedClock())
	m, _ = m.Update(rebuildDoneMsg{err: errors.New("disk full")})
	assert.Contains(t, m.View(), "rebuild failed: disk full")
}

func TestProgressModelHide(t *testing.T) {
	var m tea.Model = newProgressModel(fixedClock())
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, m.(progressModel).hidden)
}

func TestFormatResultLine(t *testing.T) {
	tps := 8.4
	r := search.Result{Item: index.ListItem{
		SessionID:              "session-0123456789ab-0001",
		ChatID:                 "chatcmpl-abc",
		Model:                  "qwen2.5-coder-32b-instruct",
		Client:                 parse.ClientCodex,
		FirstSeenAt:            time.Date(2024, 1, 15, 10, 0, 0, 0, time.Local),
		RequestTokensPerSecond: &tps,
		Group:                  index.GroupSummary{RequestCount: 3},
	}}

	lines := formatResultLine(r, 40, true)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "01-15 10:00")
	assert.Contains(t, lines[1], "chatcmpl-abc  8.4 tok/s")

	r.Snippet = "...the >>>parser<<< fails..."
	lines = formatResultLine(r, 40, false)
	assert.True(t, strings.HasPrefix(lines[0], "  "))
	assert.Contains(t, lines[1], "the parser fails")
	assert.LessOrEqual(t, runewidth.StringWidth(stripStyles(lines[1])), 40)
}

func TestModelIgnoresStaleResults(t *testing.T) {
	m := initialModel(nil, nil, search.Options{})
	m.query = "new"

	next, _ := m.Update(searchResultMsg{query: "old", results: []search.Result{{}}})
	assert.Empty(t, next.(model).results)

	next, _ = m.Update(searchResultMsg{query: "new", err: errors.New("bad since")})
	assert.Empty(t, next.(model).results)
}

// stripStyles drops ANSI sequences lipgloss may have emitted.
func stripStyles(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func TestCursorMovesWithinResults(t *testing.T) {
	m := initialModel(nil, nil, search.Options{})
	m.results = []search.Result{
		{Item: index.ListItem{SessionID: "a"}},
		{Item: index.ListItem{SessionID: "b"}},
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, next.(model).cursor)

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, next.(model).cursor, "stays on the last item")

	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.NotNil(t, next.(model).chosen)
	assert.Equal(t, "b", next.(model).chosen.Item.SessionID)
}

func TestActiveFilters(t *testing.T) {
	assert.Empty(t, activeFilters(search.Options{Query: "ignored"}))
	assert.Equal(t, "model~qwen client=codex since 7d",
		activeFilters(search.Options{Model: "qwen", Client: "codex", Since: "7d"}))
}
