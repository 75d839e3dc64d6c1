package parse

import (
	"regexp"
	"strings"
	"time"
)

var (
	reTaggedLine = regexp.MustCompile(`^\[([^\]]+)\]\[([^\]]+)\]\[([^\]]+)\]\s?(.*)$`)
	rePlainLine  = regexp.MustCompile(`^\[([^\]]+)\]\[([^\]]+)\]\s?(.*)$`)
)

// ParseLine turns one raw log line into a LogLine. Lines that do not start
// with a parseable [timestamp][LEVEL] prefix are continuation lines; blank
// lines return nil.
func ParseLine(raw string, number int) *LogLine {
	raw = strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	if m := reTaggedLine.FindStringSubmatch(raw); m != nil {
		if ts, ok := ParseTimestamp(m[1]); ok {
			return &LogLine{
				TS:      ts,
				Level:   strings.TrimSpace(m[2]),
				Model:   strings.TrimSpace(m[3]),
				Message: strings.TrimSpace(m[4]),
				Raw:     raw,
				Number:  number,
			}
		}
	}

	if m := rePlainLine.FindStringSubmatch(raw); m != nil {
		if ts, ok := ParseTimestamp(m[1]); ok {
			return &LogLine{
				TS:      ts,
				Level:   strings.TrimSpace(m[2]),
				Message: strings.TrimSpace(m[3]),
				Raw:     raw,
				Number:  number,
			}
		}
	}

	return &LogLine{
		Message:      raw,
		Raw:          raw,
		Continuation: true,
		Number:       number,
	}
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTimestamp parses an LM Studio log timestamp. Zoneless values are UTC.
// A comma before the fractional seconds is accepted.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len("2006-01-02 15:04:05") {
		return time.Time{}, false
	}
	if i := strings.LastIndexByte(s, ','); i > 0 {
		s = s[:i] + "." + s[i+1:]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
