package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

type Result struct {
	Item    index.ListItem
	Field   string // where the query matched; empty without a query
	Snippet string
}

type Options struct {
	Query  string
	Model  string // substring, case-insensitive
	Client string // "" = all, "codex", "opencode", "claude", "unknown"
	Since  string // "" = no filter, "2024-01-01" or a duration like "36h" or "7d"
	Limit  int
}

// ParseSince turns a date or a look-back duration into an absolute time.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want YYYY-MM-DD or a duration like 36h or 7d", s)
	}
	return now.Add(-d), nil
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	if idx < 0 || len(lower) != len(text) {
		// no match, or case folding moved byte offsets: return head
		if len([]rune(text)) > contextChars*2 {
			return string([]rune(text)[:contextChars*2]) + "..."
		}
		return text
	}
	runes := []rune(text)
	qRunes := []rune(query)
	// find rune position of idx
	runePos := len([]rune(text[:idx]))
	start := runePos - contextChars
	if start < 0 {
		start = 0
	}
	end := runePos + len(qRunes) + contextChars
	if end > len(runes) {
		end = len(runes)
	}
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	// wrap the matched part with markers
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

// match reports the first field of s that contains query, with a snippet.
func match(s *parse.Session, item index.ListItem, query string) (field, snippet string, ok bool) {
	q := strings.ToLower(query)
	fields := []struct {
		name string
		text func() string
	}{
		{"id", func() string { return s.SessionID + " " + s.ChatID + " " + s.SessionGroupID }},
		{"name", func() string { return item.Group.SessionName }},
		{"model", func() string { return s.Model }},
		{"response", s.ResponseText},
		{"request", func() string {
			if s.Request == nil {
				return ""
			}
			return string(s.Request.Body)
		}},
	}
	for _, f := range fields {
		text := f.text()
		if strings.Contains(strings.ToLower(text), q) {
			return f.name, makeSnippet(text, query, 30), true
		}
	}
	return "", "", false
}

// Search filters the sessions of ix, most recent first. names supplies group
// display names and may be nil.
func Search(ix *index.Index, names map[string]string, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	since, err := ParseSince(opts.Since, time.Now())
	if err != nil {
		return nil, err
	}
	model := strings.ToLower(opts.Model)
	client := strings.ToLower(opts.Client)

	var results []Result
	for _, item := range ix.List(names) {
		if model != "" && !strings.Contains(strings.ToLower(item.Model), model) {
			continue
		}
		if client != "" && strings.ToLower(string(item.Client)) != client {
			continue
		}
		if !since.IsZero() && item.FirstSeenAt.Before(since) {
			continue
		}

		r := Result{Item: item}
		if opts.Query != "" {
			s, err := ix.Get(item.SessionID)
			if err != nil {
				continue
			}
			var ok bool
			if r.Field, r.Snippet, ok = match(s, item, opts.Query); !ok {
				continue
			}
		}
		results = append(results, r)
		if len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}
