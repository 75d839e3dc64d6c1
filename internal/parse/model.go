package parse

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// LogLine is one physical (or, after combining, logical) line of a server log.
type LogLine struct {
	TS           time.Time
	Level        string
	Model        string // empty when the line has no [model] tag
	Message      string
	Raw          string
	Continuation bool // no timestamp/level; extends a preceding JSON payload
	Number       int  // 1-based line number in the source file
}

type EventKind string

const (
	KindRequestReceived  EventKind = "request_received"
	KindPromptProcessing EventKind = "prompt_processing"
	KindStreamPacket     EventKind = "stream_packet"
	KindStreamFinished   EventKind = "stream_finished"
)

// Event is a classified parser event. Exactly one payload field is set,
// matching Kind; stream_finished carries none.
type Event struct {
	Kind    EventKind
	TS      time.Time
	Line    int
	Request *RequestReceived
	Percent float64
	Packet  *StreamPacket
}

type RequestReceived struct {
	Method   string
	Endpoint string
	Body     json.RawMessage
}

type StreamPacket struct {
	PacketID string
	RawJSON  string
	Model    string
}

type Client string

const (
	ClientUnknown  Client = "Unknown"
	ClientOpencode Client = "Opencode"
	ClientCodex    Client = "Codex"
	ClientClaude   Client = "Claude"
)

type TimelineType string

const (
	TimelineRequest          TimelineType = "request"
	TimelinePromptProcessing TimelineType = "prompt_processing"
	TimelineStreamChunk      TimelineType = "stream_chunk"
	TimelineToolCall         TimelineType = "tool_call"
	TimelineUsage            TimelineType = "usage"
	TimelineStreamFinished   TimelineType = "stream_finished"
)

// TimelineEvent is one entry of a session timeline. The payload pointer that
// matches Type is set; stream_finished has no payload.
type TimelineEvent struct {
	ID               string                   `json:"id"`
	Type             TimelineType             `json:"type"`
	TS               time.Time                `json:"ts"`
	Request          *RequestData             `json:"request,omitempty"`
	PromptProcessing *PromptProcessingSummary `json:"promptProcessing,omitempty"`
	Stream           *StreamSummary           `json:"stream,omitempty"`
	ToolCall         *ToolCallDelta           `json:"toolCall,omitempty"`
	Usage            *Usage                   `json:"usage,omitempty"`
}

type RequestData struct {
	Method   string          `json:"method"`
	Endpoint string          `json:"endpoint"`
	Body     json.RawMessage `json:"body,omitempty"`
}

type PromptProcessingSummary struct {
	EventCount    int       `json:"eventCount"`
	ElapsedMs     int64     `json:"elapsedMs"`
	FirstPromptAt time.Time `json:"firstPromptTs"`
	LastPromptAt  time.Time `json:"lastPromptTs"`
	LastPercent   float64   `json:"lastPercent"`
}

type StreamSummary struct {
	ChunkCount   int       `json:"chunkCount"`
	ElapsedMs    int64     `json:"elapsedMs"`
	FirstChunkAt time.Time `json:"firstChunkTs"`
	LastChunkAt  time.Time `json:"lastChunkTs"`
	ResponseText string    `json:"responseText"`
}

// ToolCallDelta mirrors one entry of choices[].delta.tool_calls.
type ToolCallDelta struct {
	ID       string                `json:"id,omitempty"`
	Index    *int                  `json:"index,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function ToolCallFunctionDelta `json:"function"`
}

type ToolCallFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

type ToolCall struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	ArgumentsText string         `json:"argumentsText"`
	ArgumentsJSON map[string]any `json:"argumentsJson,omitempty"`
	RequestedAt   time.Time      `json:"requestedAt"`
}

// Metrics holds derived usage and timing figures. Nil means not observed.
type Metrics struct {
	PromptTokens       *int     `json:"promptTokens,omitempty"`
	CompletionTokens   *int     `json:"completionTokens,omitempty"`
	TotalTokens        *int     `json:"totalTokens,omitempty"`
	PromptProcessingMs *int64   `json:"promptProcessingMs,omitempty"`
	StreamLatencyMs    *int64   `json:"streamLatencyMs,omitempty"`
	TokensPerSecond    *float64 `json:"tokensPerSecond,omitempty"`
}

// Session is one reconstructed request/response exchange.
type Session struct {
	SessionID             string          `json:"sessionId"`
	ChatID                string          `json:"chatId,omitempty"`
	Model                 string          `json:"model,omitempty"`
	Client                Client          `json:"client"`
	FirstSeenAt           time.Time       `json:"firstSeenAt"`
	SystemMessageChecksum string          `json:"systemMessageChecksum,omitempty"`
	UserMessageChecksum   string          `json:"userMessageChecksum,omitempty"`
	Request               *RequestData    `json:"request,omitempty"`
	Events                []TimelineEvent `json:"events"`
	ToolCalls             []ToolCall      `json:"toolCalls"`
	Metrics               Metrics         `json:"metrics"`
	SessionGroupID        string          `json:"sessionGroupId"`
	SessionGroupKey       string          `json:"sessionGroupKey"`
	SourcePath            string          `json:"sourcePath"`
	SourceOrdinal         int             `json:"sourceOrdinal"`
	SourceLine            int             `json:"sourceLine,omitempty"`
}

// RequestAt returns the timestamp of the session's request event.
func (s *Session) RequestAt() (time.Time, bool) {
	for _, e := range s.Events {
		if e.Type == TimelineRequest {
			return e.TS, true
		}
	}
	return time.Time{}, false
}

// ResponseText concatenates the text of all stream summaries.
func (s *Session) ResponseText() string {
	var b strings.Builder
	for _, e := range s.Events {
		if e.Stream != nil {
			b.WriteString(e.Stream.ResponseText)
		}
	}
	return b.String()
}
