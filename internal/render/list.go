package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
)

type column struct {
	title string
	width int // 0 takes the remaining width
}

func writeRow(b *strings.Builder, cols []column, cells []string, total int) {
	used := 0
	for i, c := range cols {
		w := c.width
		if w == 0 {
			w = max(total-used, 10)
		}
		cell := truncate(cells[i], w)
		if i < len(cols)-1 {
			cell = runewidth.FillRight(cell, w)
		}
		b.WriteString(cell)
		used += w
		if i < len(cols)-1 {
			b.WriteString("  ")
			used += 2
		}
	}
	b.WriteString("\n")
}

// RenderList formats list items as a table, most recent first, fitted to
// width columns (0 = 120).
func RenderList(items []index.ListItem, width int, now time.Time) string {
	if width <= 0 {
		width = 120
	}
	cols := []column{
		{"WHEN", 14},
		{"SESSION", 27},
		{"MODEL", 20},
		{"CLIENT", 8},
		{"TOK/S", 6},
		{"REQS", 4},
		{"NAME", 0},
	}

	var b strings.Builder
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	writeRow(&b, cols, titles, width)

	for _, it := range items {
		tps := "-"
		if it.RequestTokensPerSecond != nil {
			tps = fmt.Sprintf("%.1f", *it.RequestTokensPerSecond)
		}
		writeRow(&b, cols, []string{
			humanize.RelTime(it.FirstSeenAt, now, "ago", "from now"),
			it.SessionID,
			orDash(it.Model),
			string(it.Client),
			tps,
			fmt.Sprint(it.Group.RequestCount),
			orDash(it.Group.SessionName),
		}, width)
	}
	return b.String()
}

// RenderGroups formats conversation summaries as a table.
func RenderGroups(groups []index.GroupSummary, width int, now time.Time) string {
	if width <= 0 {
		width = 120
	}
	cols := []column{
		{"STARTED", 14},
		{"GROUP", 26},
		{"REQS", 4},
		{"TOKENS IN/OUT", 15},
		{"ACTIVE", 9},
		{"IDLE", 9},
		{"NAME", 0},
	}

	var b strings.Builder
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	writeRow(&b, cols, titles, width)

	for _, g := range groups {
		writeRow(&b, cols, []string{
			humanize.RelTime(g.StartedAt, now, "ago", "from now"),
			g.SessionGroupID,
			fmt.Sprint(g.RequestCount),
			humanize.Comma(int64(g.TotalInputTokens)) + "/" + humanize.Comma(int64(g.TotalOutputTokens)),
			formatMs(roundMs(g.ActiveWorkMs)),
			formatMs(roundMs(g.IdleMs)),
			orDash(g.SessionName),
		}, width)
	}
	return b.String()
}

// roundMs drops sub-second precision from long durations.
func roundMs(ms int64) int64 {
	if ms < 60_000 {
		return ms
	}
	return ms / 1000 * 1000
}
