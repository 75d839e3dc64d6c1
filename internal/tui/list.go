package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
	"github.com/Zuo-Peng/lms-log-explorer/internal/search"
)

// linesPerItem is the number of terminal lines each result occupies.
const linesPerItem = 2

// renderList renders the left panel: sessions with scrolling.
func (m model) renderList(width, height int) string {
	if len(m.results) == 0 {
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render("No sessions")
	}

	var lines []string
	for i, r := range m.results {
		if i < m.listOffset {
			continue
		}
		if len(lines)+linesPerItem > height {
			break
		}
		lines = append(lines, formatResultLine(r, width, i == m.cursor)...)
	}

	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func clientLabel(c parse.Client) string {
	switch c {
	case parse.ClientCodex:
		return styleClientCodex.Render("codex")
	case parse.ClientOpencode:
		return styleClientOpencode.Render("opencd")
	case parse.ClientClaude:
		return styleClientClaude.Render("claude")
	}
	return styleListClient.Render("-")
}

// formatResultLine formats a single session as two lines:
//
//	line 1: [>] client  MM-DD hh:mm  name or model
//	line 2:    snippet or chat id (dimmed)
func formatResultLine(r search.Result, width int, selected bool) []string {
	it := r.Item
	when := it.FirstSeenAt.Local().Format("01-02 15:04")

	title := it.Group.SessionName
	if title == "" {
		title = it.Model
	}
	if n := it.Group.RequestCount; n > 1 {
		title = fmt.Sprintf("%s (%d)", title, n)
	}
	titleMax := max(width-2-7-12-2, 0) // prefix + client + date + padding
	if runewidth.StringWidth(title) > titleMax {
		title = runewidth.Truncate(title, titleMax, "")
	}

	line1 := fmt.Sprintf("%s %s %s", clientLabel(it.Client), when, title)
	if selected {
		line1 = styleListSelected.Render("> ") + line1
	} else {
		line1 = "  " + line1
	}

	detail := r.Snippet
	if detail == "" {
		detail = it.ChatID
		if it.RequestTokensPerSecond != nil {
			detail += fmt.Sprintf("  %.1f tok/s", *it.RequestTokensPerSecond)
		}
	}
	detail = strings.NewReplacer("\n", " ", "\t", " ", ">>>", "", "<<<", "").Replace(detail)
	detailMax := max(width-4, 0)
	if runewidth.StringWidth(detail) > detailMax {
		detail = runewidth.Truncate(detail, detailMax, "")
	}
	line2 := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(detail)

	return []string{line1, line2}
}

// adjustListScroll keeps the cursor visible within the list viewport.
func (m *model) adjustListScroll(listHeight int) {
	visibleItems := max(listHeight/linesPerItem, 1)
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+visibleItems {
		m.listOffset = m.cursor - visibleItems + 1
	}
}
