package render

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

const (
	colorReset   = "\033[0m"
	colorRequest = "\033[1;34m" // bold blue
	colorStream  = "\033[1;32m" // bold green
	colorTool    = "\033[1;33m" // bold yellow
	colorPrompt  = "\033[2;35m" // dim magenta
	colorDim     = "\033[2m"
	colorBoldRed = "\033[1;31m"
)

type Options struct {
	Width     int    // wrap width (0 = no wrap)
	Color     bool   // emit ANSI colors
	Query     string // highlighted case-insensitively in the response text
	ShowBody  bool   // print the full request body
	GroupName string
}

// timeOfDay is how timeline timestamps are shown.
const timeOfDay = "15:04:05.000"

// highlightKeywords wraps case-insensitive matches of query terms in bold red ANSI codes.
func highlightKeywords(text, query string) string {
	if query == "" {
		return text
	}
	for _, term := range strings.Fields(query) {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// stripANSI removes color sequences so plain output never carries them.
func stripANSI(s string) string {
	if !strings.Contains(s, "\033[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// RenderSession renders one session as a header, its metrics, the timeline
// and the reconstructed response.
func RenderSession(s *parse.Session, opts Options) string {
	var b strings.Builder
	writeLine := func(line string) {
		if !opts.Color {
			line = stripANSI(line)
		}
		for _, wl := range wrapLine(line, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
		}
	}

	title := s.SessionID
	if opts.GroupName != "" {
		title += " (" + opts.GroupName + ")"
	}
	writeLine(fmt.Sprintf("%s--- %s ---%s", colorDim, title, colorReset))
	writeLine(fmt.Sprintf("chat:    %s", orDash(s.ChatID)))
	writeLine(fmt.Sprintf("model:   %s", orDash(s.Model)))
	writeLine(fmt.Sprintf("client:  %s", s.Client))
	writeLine(fmt.Sprintf("started: %s", s.FirstSeenAt.Local().Format(time.DateTime)))
	if s.SourceLine > 0 {
		writeLine(fmt.Sprintf("source:  %s:%d", s.SourcePath, s.SourceLine))
	} else {
		writeLine(fmt.Sprintf("source:  %s", s.SourcePath))
	}
	writeLine(fmt.Sprintf("group:   %s", s.SessionGroupID))

	if m := metricsLine(s.Metrics); m != "" {
		writeLine("")
		writeLine(colorDim + m + colorReset)
	}

	writeLine("")
	for _, e := range s.Events {
		writeLine(timelineLine(e))
	}

	if len(s.ToolCalls) > 0 {
		writeLine("")
		writeLine(colorTool + "TOOL CALLS" + colorReset)
		calls := append([]parse.ToolCall(nil), s.ToolCalls...)
		sort.SliceStable(calls, func(i, j int) bool { return calls[i].RequestedAt.Before(calls[j].RequestedAt) })
		for _, c := range calls {
			writeLine(fmt.Sprintf("  %s %s%s%s", c.RequestedAt.Local().Format(timeOfDay), colorTool, c.Name, colorReset))
			args := c.ArgumentsText
			if c.ArgumentsJSON != nil {
				if pretty, err := json.MarshalIndent(c.ArgumentsJSON, "", "  "); err == nil {
					args = string(pretty)
				}
			}
			if args != "" {
				for _, l := range strings.Split(indentLines(args, "    "), "\n") {
					writeLine(l)
				}
			}
		}
	}

	if opts.ShowBody && s.Request != nil && len(s.Request.Body) > 0 {
		writeLine("")
		writeLine(colorRequest + "REQUEST BODY" + colorReset)
		body := string(s.Request.Body)
		var v any
		if json.Unmarshal(s.Request.Body, &v) == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				body = string(pretty)
			}
		}
		for _, l := range strings.Split(indentLines(body, "  "), "\n") {
			writeLine(l)
		}
	}

	if text := s.ResponseText(); text != "" {
		writeLine("")
		writeLine(colorStream + "RESPONSE" + colorReset)
		text = indentLines(highlightKeywords(text, opts.Query), "  ")
		for _, l := range strings.Split(text, "\n") {
			writeLine(l)
		}
	}
	return b.String()
}

func timelineLine(e parse.TimelineEvent) string {
	ts := colorDim + e.TS.Local().Format(timeOfDay) + colorReset
	switch e.Type {
	case parse.TimelineRequest:
		detail := ""
		if e.Request != nil {
			detail = e.Request.Method + " " + e.Request.Endpoint
		}
		return fmt.Sprintf("%s %sREQUEST%s %s", ts, colorRequest, colorReset, detail)
	case parse.TimelinePromptProcessing:
		p := e.PromptProcessing
		if p == nil {
			break
		}
		return fmt.Sprintf("%s %sPROMPT%s  %d updates, %.0f%%, %s", ts, colorPrompt, colorReset,
			p.EventCount, p.LastPercent, formatMs(p.ElapsedMs))
	case parse.TimelineStreamChunk:
		st := e.Stream
		if st == nil {
			break
		}
		return fmt.Sprintf("%s %sSTREAM%s  %d chunks, %s", ts, colorStream, colorReset,
			st.ChunkCount, formatMs(st.ElapsedMs))
	case parse.TimelineToolCall:
		tc := e.ToolCall
		if tc == nil {
			break
		}
		name := tc.Function.Name
		if name == "" {
			name = "+args"
		}
		return fmt.Sprintf("%s %sTOOL%s    %s %s", ts, colorTool, colorReset, name, truncate(tc.Function.Arguments, 60))
	case parse.TimelineUsage:
		u := e.Usage
		if u == nil {
			break
		}
		return fmt.Sprintf("%s USAGE   prompt=%s completion=%s total=%s", ts,
			intOrDash(u.PromptTokens), intOrDash(u.CompletionTokens), intOrDash(u.TotalTokens))
	case parse.TimelineStreamFinished:
		return fmt.Sprintf("%s %sDONE%s", ts, colorDim, colorReset)
	}
	return fmt.Sprintf("%s %s", ts, strings.ToUpper(string(e.Type)))
}

func metricsLine(m parse.Metrics) string {
	var parts []string
	if m.PromptTokens != nil {
		parts = append(parts, fmt.Sprintf("prompt %d tok", *m.PromptTokens))
	}
	if m.CompletionTokens != nil {
		parts = append(parts, fmt.Sprintf("completion %d tok", *m.CompletionTokens))
	}
	if m.PromptProcessingMs != nil {
		parts = append(parts, "prompt processing "+formatMs(*m.PromptProcessingMs))
	}
	if m.StreamLatencyMs != nil {
		parts = append(parts, "stream "+formatMs(*m.StreamLatencyMs))
	}
	if m.TokensPerSecond != nil {
		parts = append(parts, fmt.Sprintf("%.1f tok/s", *m.TokensPerSecond))
	}
	return strings.Join(parts, " | ")
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

// truncate cuts s to at most w display columns, appending an ellipsis when cut.
func truncate(s string, w int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= w {
		return s
	}
	return runewidth.Truncate(s, w, "…")
}
