package parse

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type toolCallState struct {
	id        string
	name      string
	args      strings.Builder
	firstSeen time.Time
	lastSeen  time.Time
}

// ToolCallMerger accumulates streamed tool-call argument fragments per call.
// Only the first fragment of a call usually carries its id; later fragments
// refer to it by position index.
type ToolCallMerger struct {
	calls   map[string]*toolCallState
	order   []string
	byIndex map[int]string
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		calls:   make(map[string]*toolCallState),
		byIndex: make(map[int]string),
	}
}

// AddDelta folds delta into its call and returns the id it was attributed
// to. ok is false when the delta could not be attributed and was dropped.
func (m *ToolCallMerger) AddDelta(delta ToolCallDelta, ts time.Time) (id string, ok bool) {
	id = m.resolve(delta)
	if id == "" {
		return "", false
	}
	if delta.Index != nil {
		m.byIndex[*delta.Index] = id
	}

	call, exists := m.calls[id]
	if !exists {
		call = &toolCallState{id: id, firstSeen: ts}
		m.calls[id] = call
		m.order = append(m.order, id)
	}
	if delta.Function.Name != "" {
		call.name = delta.Function.Name
	}
	call.args.WriteString(delta.Function.Arguments)
	call.lastSeen = ts
	return id, true
}

func (m *ToolCallMerger) resolve(delta ToolCallDelta) string {
	if delta.ID != "" {
		return delta.ID
	}
	if delta.Index != nil {
		if id, ok := m.byIndex[*delta.Index]; ok {
			return id
		}
	}

	// best effort: a single call still waiting for its arguments to close
	var open []string
	for _, id := range m.order {
		if !json.Valid([]byte(m.calls[id].args.String())) {
			open = append(open, id)
		}
	}
	if len(open) == 1 {
		return open[0]
	}
	return ""
}

// ToolCalls returns the merged calls in order of first appearance.
func (m *ToolCallMerger) ToolCalls() []ToolCall {
	out := make([]ToolCall, 0, len(m.order))
	for _, id := range m.order {
		c := m.calls[id]
		text := c.args.String()
		out = append(out, ToolCall{
			ID:            c.id,
			Name:          c.name,
			ArgumentsText: text,
			ArgumentsJSON: ParseToolCallArguments(text),
			RequestedAt:   c.firstSeen,
		})
	}
	return out
}

// ParseToolCallArguments decodes a complete JSON object, returning nil for
// empty, partial, invalid or non-object text.
func ParseToolCallArguments(text string) map[string]any {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil
	}
	return v
}
