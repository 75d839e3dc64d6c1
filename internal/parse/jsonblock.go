package parse

import (
	"strings"

	"github.com/goccy/go-json"
)

// JSONBlock is the result of scanning a message for its first JSON object.
//
// Complete reports that the braces balanced. A complete block that failed to
// parse is Malformed. An incomplete block is not an error: more lines may
// still arrive.
type JSONBlock struct {
	Raw       string
	Complete  bool
	Malformed bool
}

// OK reports whether the block is a balanced, valid JSON object.
func (b JSONBlock) OK() bool {
	return b.Complete && !b.Malformed
}

// Decode unmarshals an OK block into v.
func (b JSONBlock) Decode(v any) error {
	return json.Unmarshal([]byte(b.Raw), v)
}

// ExtractJSONBlock scans message from its first '{' and returns the
// brace-balanced object, honoring string literals and escapes.
func ExtractJSONBlock(message string) JSONBlock {
	start := strings.IndexByte(message, '{')
	if start < 0 {
		return JSONBlock{}
	}

	var t braceTracker
	end := t.feed(message[start:])
	if end < 0 {
		return JSONBlock{Raw: message[start:]}
	}

	raw := message[start : start+end+1]
	return JSONBlock{
		Raw:       raw,
		Complete:  true,
		Malformed: !json.Valid([]byte(raw)),
	}
}

// braceTracker follows JSON object nesting across chunks of text.
type braceTracker struct {
	depth    int
	started  bool
	inString bool
	escaped  bool
}

// feed consumes s and returns the byte offset at which depth returned to
// zero, or -1 when the object is still open.
func (t *braceTracker) feed(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if t.inString {
			switch {
			case t.escaped:
				t.escaped = false
			case c == '\\':
				t.escaped = true
			case c == '"':
				t.inString = false
			}
			continue
		}
		switch c {
		case '"':
			if t.started {
				t.inString = true
			}
		case '{':
			t.depth++
			t.started = true
		case '}':
			if t.started {
				t.depth--
				if t.depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}

func (t *braceTracker) open() bool {
	return t.started && t.depth > 0
}

// Combiner reassembles multi-line JSON payloads from a stream of log lines.
// A line whose message opens an object that does not close on the same line
// absorbs the continuation lines that follow it until the object balances.
type Combiner struct {
	pending *LogLine
	tracker braceTracker
	buf     strings.Builder
}

// Push feeds the next line and returns the logical lines completed by it.
// Continuation lines are never returned on their own.
func (c *Combiner) Push(line *LogLine) []*LogLine {
	if line == nil {
		return nil
	}

	if line.Continuation {
		if c.pending == nil {
			return nil
		}
		c.buf.WriteByte('\n')
		c.buf.WriteString(line.Raw)
		c.tracker.feed("\n" + line.Raw)
		if !c.tracker.open() {
			return []*LogLine{c.take()}
		}
		return nil
	}

	var out []*LogLine
	if c.pending != nil {
		out = append(out, c.take())
	}

	start := strings.IndexByte(line.Message, '{')
	if start < 0 {
		return append(out, line)
	}
	c.tracker = braceTracker{}
	c.tracker.feed(line.Message[start:])
	if !c.tracker.open() {
		return append(out, line)
	}

	c.pending = line
	c.buf.Reset()
	c.buf.WriteString(line.Message)
	return out
}

// Flush returns a logical line still waiting for continuation lines.
func (c *Combiner) Flush() []*LogLine {
	if c.pending == nil {
		return nil
	}
	return []*LogLine{c.take()}
}

func (c *Combiner) take() *LogLine {
	combined := *c.pending
	combined.Message = c.buf.String()
	c.pending = nil
	c.buf.Reset()
	c.tracker = braceTracker{}
	return &combined
}

// CombineMultiline applies a Combiner to a complete slice of lines.
func CombineMultiline(lines []*LogLine) []*LogLine {
	var c Combiner
	out := make([]*LogLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, c.Push(l)...)
	}
	return append(out, c.Flush()...)
}
