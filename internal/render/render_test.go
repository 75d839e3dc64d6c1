package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/lms-log-explorer/internal/index"
	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

const toolLog = `[2024-01-15 10:00:01][INFO] Received request: POST to /v1/chat/completions with body {"model":"qwen","messages":[{"role":"user","content":"list files"}]}
[2024-01-15 10:00:02][INFO][qwen] Generated packet: {"id":"chatcmpl-t","model":"qwen","choices":[{"delta":{"content":"Looking now"}}]}
[2024-01-15 10:00:03][INFO][qwen] Generated packet: {"id":"chatcmpl-t","model":"qwen","choices":[{"delta":{"tool_calls":[{"index":0,"id":"call-1","type":"function","function":{"name":"glob","arguments":"{\"pattern\":\"*.go\"}"}}]}}]}
[2024-01-15 10:00:04][INFO][qwen] Finished streaming response
`

func parseSession(t *testing.T) *parse.Session {
	t.Helper()
	sessions, err := parse.ParseReader(context.Background(), strings.NewReader(toolLog), int64(len(toolLog)), parse.Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	s := sessions[0]
	s.SessionID = index.SessionID("/logs/2024-01-15.1.log", 0)
	s.SourcePath = "/logs/2024-01-15.1.log"
	return &s
}

func TestRenderSessionPlain(t *testing.T) {
	out := RenderSession(parseSession(t), Options{ShowBody: true})

	assert.NotContains(t, out, "\033[")
	assert.Contains(t, out, "chat:    chatcmpl-t")
	assert.Contains(t, out, "REQUEST POST /v1/chat/completions")
	assert.Contains(t, out, "TOOL CALLS")
	assert.Contains(t, out, `"pattern": "*.go"`)
	assert.Contains(t, out, "REQUEST BODY")
	assert.Contains(t, out, "  Looking now")
	assert.Contains(t, out, "source:  /logs/2024-01-15.1.log:1")
}

func TestRenderSessionHighlightsQuery(t *testing.T) {
	out := RenderSession(parseSession(t), Options{Color: true, Query: "looking"})
	assert.Contains(t, out, colorBoldRed+"Looking"+colorReset)
}

func TestWrapLineSkipsEscapes(t *testing.T) {
	line := colorDim + strings.Repeat("x", 25) + colorReset
	lines := wrapLine(line, 10)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.LessOrEqual(t, runewidth.StringWidth(stripANSI(l)), 10)
	}
	assert.Equal(t, []string{"abc"}, wrapLine("abc", 0))
}

func TestRenderListFitsWidth(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	tps := 12.5
	items := []index.ListItem{{
		SessionID:              "session-0123456789ab-0001",
		Model:                  strings.Repeat("m", 40),
		Client:                 parse.ClientCodex,
		FirstSeenAt:            now.Add(-2 * time.Hour),
		RequestTokensPerSecond: &tps,
		Group:                  index.GroupSummary{RequestCount: 3, SessionName: "parser work"},
	}}

	out := RenderList(items, 120, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "WHEN"))
	assert.Contains(t, lines[1], "2 hours ago")
	assert.Contains(t, lines[1], "12.5")
	assert.Contains(t, lines[1], "parser work")
	assert.Contains(t, lines[1], "…")
	for _, l := range lines {
		assert.LessOrEqual(t, runewidth.StringWidth(l), 120)
	}
}

func TestEncodeFormats(t *testing.T) {
	s := parseSession(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s, FormatJSON))
	assert.Contains(t, buf.String(), `"sessionId": "`+s.SessionID+`"`)

	buf.Reset()
	require.NoError(t, Encode(&buf, s, FormatYAML))
	assert.Contains(t, buf.String(), "sessionId: "+s.SessionID)
	assert.Contains(t, buf.String(), "chatId: chatcmpl-t")

	_, err := ParseFormat("xml")
	assert.Error(t, err)
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)
}
