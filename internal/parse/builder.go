package parse

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// maxPendingEvents bounds the events buffered before the first request of a
// file; the oldest are dropped first.
const maxPendingEvents = 4096

type promptAccumulator struct {
	count       int
	first, last time.Time
	lastPercent float64
}

type streamAccumulator struct {
	chunks      int
	first, last time.Time
	text        strings.Builder
}

type sessionState struct {
	session   *Session
	requestAt time.Time
	merger    *ToolCallMerger
	prompt    *promptAccumulator
	stream    *streamAccumulator
}

// SessionBuilder reduces the ordered event stream of one log file into
// sessions. Every session is anchored at a request_received event; other
// events attach to the most recent request whose timestamp does not exceed
// theirs.
type SessionBuilder struct {
	current  *sessionState
	pending  []*Event
	sessions []Session
}

func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{}
}

// Push feeds the next event in file order.
func (b *SessionBuilder) Push(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Kind == KindRequestReceived {
		b.startSession(ev)
		return
	}
	if b.current == nil {
		if len(b.pending) == maxPendingEvents {
			b.pending = b.pending[1:]
		}
		b.pending = append(b.pending, ev)
		return
	}
	if ev.TS.Before(b.current.requestAt) {
		return
	}
	b.apply(ev)
}

// Finish finalizes the active session and returns every session built, in
// file order. SessionID and group fields are left for the indexer to assign.
func (b *SessionBuilder) Finish() []Session {
	b.finalize()
	b.pending = nil
	out := b.sessions
	b.sessions = nil
	return out
}

func (b *SessionBuilder) startSession(ev *Event) {
	b.finalize()

	req := ev.Request
	s := &Session{
		FirstSeenAt: ev.TS,
		Client:      ClientUnknown,
		SourceLine:  ev.Line,
		Request: &RequestData{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			Body:     req.Body,
		},
	}
	id := IdentifyRequest(req.Body)
	s.Model = id.Model
	s.Client = id.Client
	s.SystemMessageChecksum = id.SystemMessageChecksum
	s.UserMessageChecksum = id.UserMessageChecksum

	b.current = &sessionState{
		session:   s,
		requestAt: ev.TS,
		merger:    NewToolCallMerger(),
	}
	b.push(TimelineEvent{Type: TimelineRequest, TS: ev.TS, Request: s.Request})

	pending := b.pending
	b.pending = nil
	for _, p := range pending {
		if !p.TS.Before(ev.TS) {
			b.apply(p)
		}
	}
}

func (b *SessionBuilder) apply(ev *Event) {
	switch ev.Kind {
	case KindPromptProcessing:
		b.addPromptProgress(ev)
	case KindStreamPacket:
		b.addPacket(ev)
	case KindStreamFinished:
		b.flushPrompt()
		b.flushStream()
		b.push(TimelineEvent{Type: TimelineStreamFinished, TS: ev.TS})
	}
}

func (b *SessionBuilder) addPromptProgress(ev *Event) {
	p := b.current.prompt
	if p == nil {
		p = &promptAccumulator{first: ev.TS}
		b.current.prompt = p
	}
	p.count++
	p.last = ev.TS
	p.lastPercent = ev.Percent
}

type packetPayload struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   *string         `json:"content"`
			ToolCalls []ToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (b *SessionBuilder) addPacket(ev *Event) {
	s := b.current.session
	if s.ChatID == "" {
		s.ChatID = ev.Packet.PacketID
	}
	if s.Model == "" {
		s.Model = ev.Packet.Model
	}

	b.flushPrompt()

	var pkt packetPayload
	if err := json.Unmarshal([]byte(ev.Packet.RawJSON), &pkt); err != nil {
		// the id was readable, so still count the chunk
		pkt = packetPayload{}
	}

	st := b.current.stream
	if st == nil {
		st = &streamAccumulator{first: ev.TS}
		b.current.stream = st
	}
	st.chunks++
	st.last = ev.TS
	for _, c := range pkt.Choices {
		if c.Delta.Content != nil {
			st.text.WriteString(*c.Delta.Content)
		}
	}

	for _, c := range pkt.Choices {
		for _, delta := range c.Delta.ToolCalls {
			if id, ok := b.current.merger.AddDelta(delta, ev.TS); ok && delta.ID == "" {
				delta.ID = id
			}
			d := delta
			b.push(TimelineEvent{Type: TimelineToolCall, TS: ev.TS, ToolCall: &d})
		}
	}

	if pkt.Usage != nil {
		u := *pkt.Usage
		b.push(TimelineEvent{Type: TimelineUsage, TS: ev.TS, Usage: &u})
	}
}

func (b *SessionBuilder) flushPrompt() {
	p := b.current.prompt
	if p == nil {
		return
	}
	b.current.prompt = nil
	b.push(TimelineEvent{
		Type: TimelinePromptProcessing,
		TS:   p.last,
		PromptProcessing: &PromptProcessingSummary{
			EventCount:    p.count,
			ElapsedMs:     elapsedMs(p.first, p.last),
			FirstPromptAt: p.first,
			LastPromptAt:  p.last,
			LastPercent:   p.lastPercent,
		},
	})
}

func (b *SessionBuilder) flushStream() {
	st := b.current.stream
	if st == nil {
		return
	}
	b.current.stream = nil
	b.push(TimelineEvent{
		Type: TimelineStreamChunk,
		TS:   st.last,
		Stream: &StreamSummary{
			ChunkCount:   st.chunks,
			ElapsedMs:    elapsedMs(st.first, st.last),
			FirstChunkAt: st.first,
			LastChunkAt:  st.last,
			ResponseText: st.text.String(),
		},
	})
}

// push appends a timeline event with an id that sorts by timestamp first and
// emission order second.
func (b *SessionBuilder) push(e TimelineEvent) {
	s := b.current.session
	e.ID = EventID(e.Type, e.TS, len(s.Events)+1)
	s.Events = append(s.Events, e)
}

// EventID formats a timeline event id. Ids of one session compare in the
// same order as (timestamp, sequence).
func EventID(t TimelineType, ts time.Time, seq int) string {
	return fmt.Sprintf("%013d-%04d-%s", ts.UnixMilli(), seq, t)
}

func (b *SessionBuilder) finalize() {
	cur := b.current
	if cur == nil {
		return
	}
	b.flushPrompt()
	b.flushStream()
	b.current = nil

	s := cur.session
	if s.Request == nil && len(s.Events) == 0 {
		return
	}
	SortEvents(s.Events)
	s.ToolCalls = cur.merger.ToolCalls()
	s.Metrics = ComputeMetrics(s.Events)
	b.sessions = append(b.sessions, *s)
}

// SortEvents orders a timeline by timestamp, then event id.
func SortEvents(events []TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].TS.Equal(events[j].TS) {
			return events[i].TS.Before(events[j].TS)
		}
		return events[i].ID < events[j].ID
	})
}

// BuildSessions runs lines through the combiner, classifier and builder.
func BuildSessions(lines []*LogLine) []Session {
	b := NewSessionBuilder()
	for _, l := range CombineMultiline(lines) {
		b.Push(Classify(l))
	}
	return b.Finish()
}
