package parse

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFixture(t *testing.T, name string) []Session {
	t.Helper()
	sessions, err := ParseFile(context.Background(), filepath.Join("testdata", "2024-01", name), Options{})
	require.NoError(t, err)
	return sessions
}

func parseText(text string) []Session {
	var lines []*LogLine
	for i, raw := range strings.Split(text, "\n") {
		if l := ParseLine(raw, i+1); l != nil {
			lines = append(lines, l)
		}
	}
	return BuildSessions(lines)
}

func eventTypes(s Session) []TimelineType {
	out := make([]TimelineType, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.Type
	}
	return out
}

func TestSimpleChat(t *testing.T) {
	sessions := parseFixture(t, "simple-chat.log")
	require.Len(t, sessions, 1)
	s := sessions[0]

	assert.Equal(t, "chatcmpl-abc", s.ChatID)
	assert.Equal(t, "qwen2.5-7b-instruct", s.Model)
	assert.Equal(t, ClientCodex, s.Client)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 1, 0, time.UTC), s.FirstSeenAt)
	assert.Equal(t, 2, s.SourceLine)
	assert.NotEmpty(t, s.SystemMessageChecksum)
	assert.NotEmpty(t, s.UserMessageChecksum)
	require.NotNil(t, s.Request)

	assert.Equal(t, []TimelineType{
		TimelineRequest,
		TimelinePromptProcessing,
		TimelineUsage,
		TimelineStreamChunk,
		TimelineStreamFinished,
	}, eventTypes(s))

	prompt := s.Events[1].PromptProcessing
	require.NotNil(t, prompt)
	assert.Equal(t, 3, prompt.EventCount)
	assert.Equal(t, int64(2000), prompt.ElapsedMs)
	assert.InDelta(t, 100.0, prompt.LastPercent, 1e-9)

	stream := s.Events[3].Stream
	require.NotNil(t, stream)
	assert.Equal(t, 3, stream.ChunkCount)
	assert.Equal(t, "Hello world", stream.ResponseText)
	assert.Equal(t, "Hello world", s.ResponseText())

	assert.Equal(t, int64(2000), *s.Metrics.PromptProcessingMs)
	assert.Equal(t, int64(2000), *s.Metrics.StreamLatencyMs)
	assert.Equal(t, 10, *s.Metrics.CompletionTokens)
	assert.InDelta(t, 5.0, *s.Metrics.TokensPerSecond, 1e-9)
	assert.Empty(t, s.ToolCalls)
}

func TestMultipleSessions(t *testing.T) {
	sessions := parseFixture(t, "multiple-sessions.log")
	require.Len(t, sessions, 2)

	for _, s := range sessions {
		require.NotEmpty(t, s.Events)
		assert.Equal(t, TimelineRequest, s.Events[0].Type)
		assert.Equal(t, ClientClaude, s.Client)
	}

	first, second := sessions[0], sessions[1]
	assert.Equal(t, "chatcmpl-one", first.ChatID)
	assert.Equal(t, "first answer", first.ResponseText(), "late tail packet must not leak into either session")
	assert.Equal(t, "chatcmpl-two", second.ChatID)
	assert.Equal(t, "second answer", second.ResponseText())
	assert.Equal(t, int64(3000), *second.Metrics.StreamLatencyMs)

	assert.Equal(t, first.SystemMessageChecksum, second.SystemMessageChecksum)
	assert.Equal(t, first.UserMessageChecksum, second.UserMessageChecksum)
}

func TestMalformedJSON(t *testing.T) {
	sessions := parseFixture(t, "malformed-json.log")
	require.Len(t, sessions, 1)
	s := sessions[0]

	types := eventTypes(s)
	assert.Contains(t, types, TimelineRequest)
	assert.Contains(t, types, TimelineStreamFinished)
	assert.Equal(t, "chatcmpl-ok", s.ChatID)
	assert.Equal(t, "fine", s.ResponseText())
}

func TestToolCallSession(t *testing.T) {
	sessions := parseFixture(t, "tool-calls.log")
	require.Len(t, sessions, 1)
	s := sessions[0]

	assert.Equal(t, ClientOpencode, s.Client)
	require.Len(t, s.ToolCalls, 1)
	call := s.ToolCalls[0]
	assert.Equal(t, "tool-123", call.ID)
	assert.Equal(t, "glob", call.Name)
	assert.Equal(t, `{"pattern":"**/*.ts"}`, call.ArgumentsText)
	assert.Equal(t, map[string]any{"pattern": "**/*.ts"}, call.ArgumentsJSON)

	var deltas int
	for _, e := range s.Events {
		if e.Type == TimelineToolCall {
			deltas++
			assert.Equal(t, "tool-123", e.ToolCall.ID)
		}
	}
	assert.Equal(t, 2, deltas)
	assert.InDelta(t, 6.0, *s.Metrics.TokensPerSecond, 1e-9)
}

func TestNoRequestYieldsNoSessions(t *testing.T) {
	sessions := parseText(`[2024-01-15 10:00:01][INFO][m] Prompt processing progress: 10%
[2024-01-15 10:00:02][INFO][m] Generated packet: {"id":"chatcmpl-x","choices":[{"delta":{"content":"hi"}}]}
[2024-01-15 10:00:03][INFO][m] Finished streaming response`)
	assert.Empty(t, sessions)
}

func TestPendingEventAtRequestTimestamp(t *testing.T) {
	sessions := parseText(`[2024-01-15 10:00:00][INFO][m] Prompt processing progress: 5%
[2024-01-15 10:00:01][INFO][m] Prompt processing progress: 100%
[2024-01-15 10:00:01][INFO] Received request: POST to /v1/chat/completions with body {"model":"m","messages":[]}
[2024-01-15 10:00:02][INFO][m] Finished streaming response`)
	require.Len(t, sessions, 1)
	s := sessions[0]

	assert.Equal(t, []TimelineType{
		TimelineRequest,
		TimelinePromptProcessing,
		TimelineStreamFinished,
	}, eventTypes(s))
	assert.Equal(t, 1, s.Events[1].PromptProcessing.EventCount, "the earlier pending event is dropped")
}

func TestEventIDsOrderTimeline(t *testing.T) {
	for _, name := range []string{"simple-chat.log", "multiple-sessions.log", "malformed-json.log", "tool-calls.log"} {
		for _, s := range parseFixture(t, name) {
			seen := make(map[string]bool)
			for i, e := range s.Events {
				assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
				seen[e.ID] = true
				if i > 0 {
					prev := s.Events[i-1]
					assert.False(t, e.TS.Before(prev.TS), name)
					if e.TS.Equal(prev.TS) {
						assert.Less(t, prev.ID, e.ID, name)
					}
				}
				if e.PromptProcessing != nil {
					assert.GreaterOrEqual(t, e.PromptProcessing.ElapsedMs, int64(0))
				}
				if e.Stream != nil {
					assert.GreaterOrEqual(t, e.Stream.ElapsedMs, int64(0))
				}
			}
			if m := s.Metrics.PromptProcessingMs; m != nil {
				assert.GreaterOrEqual(t, *m, int64(0))
			}
			if m := s.Metrics.StreamLatencyMs; m != nil {
				assert.GreaterOrEqual(t, *m, int64(0))
			}
		}
	}
}

func TestParseReaderProgress(t *testing.T) {
	text := strings.Repeat("[2024-01-15 10:00:01][INFO][m] Prompt processing progress: 1%\n", 10)
	var got []float64
	_, err := ParseReader(context.Background(), strings.NewReader(text), int64(len(text)), Options{
		YieldEvery: 3,
		Progress:   func(f float64) { got = append(got, f) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}
	assert.Equal(t, 1.0, got[len(got)-1])
}

func TestParseReaderSkipsOverlongLine(t *testing.T) {
	huge := strings.Repeat("A", 4096)
	text := `[2024-01-15 10:00:01][INFO] Received request: POST to /v1/chat/completions with body {"model":"m","messages":[]}
[2024-01-15 10:00:02][INFO][m] Finished streaming response
[2024-01-15 10:01:00][INFO] Received request: POST to /v1/chat/completions with body {"model":"big","messages":[{"role":"user","content":"` + huge + `"}]}
[2024-01-15 10:01:05][INFO][big] Finished streaming response
[2024-01-15 10:02:00][INFO] Received request: POST to /v1/chat/completions with body {"model":"k","messages":[]}
[2024-01-15 10:02:01][INFO][k] Finished streaming response
`
	sessions, err := ParseReader(context.Background(), strings.NewReader(text), int64(len(text)), Options{MaxLineSize: 256})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "m", sessions[0].Model)
	assert.Equal(t, "k", sessions[1].Model)
	assert.Equal(t, 5, sessions[1].SourceLine, "line numbers still count the skipped line")
}

func TestParseReaderLongLineWithinLimit(t *testing.T) {
	body := strings.Repeat("b", 200*1024)
	text := `[2024-01-15 10:00:01][INFO] Received request: POST to /v1/chat/completions with body {"model":"m","messages":[{"role":"user","content":"` + body + `"}]}` + "\r\n" +
		`[2024-01-15 10:00:02][INFO][m] Finished streaming response`
	sessions, err := ParseReader(context.Background(), strings.NewReader(text), 0, Options{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].Request)
	assert.Contains(t, string(sessions[0].Request.Body), body)
	assert.Equal(t, []TimelineType{TimelineRequest, TimelineStreamFinished}, eventTypes(sessions[0]))
}

func TestParseReaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	text := strings.Repeat("x\n", 10)
	_, err := ParseReader(ctx, strings.NewReader(text), 0, Options{YieldEvery: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
