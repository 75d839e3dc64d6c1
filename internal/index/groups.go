package index

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

// GroupSummary aggregates the requests of one conversation.
type GroupSummary struct {
	SessionGroupID          string       `json:"sessionGroupId"`
	SessionGroupKey         string       `json:"sessionGroupKey"`
	SessionName             string       `json:"sessionName,omitempty"`
	RequestCount            int          `json:"requestCount"`
	StartedAt               time.Time    `json:"startedAt"`
	Model                   string       `json:"model,omitempty"`
	Client                  parse.Client `json:"client"`
	TotalInputTokens        int          `json:"totalInputTokens"`
	TotalOutputTokens       int          `json:"totalOutputTokens"`
	TotalPromptProcessingMs int64        `json:"totalPromptProcessingMs"`
	AvgTokensPerSecond      *float64     `json:"avgTokensPerSecond,omitempty"`
	ElapsedMs               int64        `json:"elapsedMs"`
	IdleMs                  int64        `json:"idleMs"`
	ActiveWorkMs            int64        `json:"activeWorkMs"`
	SessionIDs              []string     `json:"sessionIds"`
}

// ListItem is the denormalized row shown for one session in a list.
type ListItem struct {
	SessionID                 string       `json:"sessionId"`
	ChatID                    string       `json:"chatId,omitempty"`
	Model                     string       `json:"model,omitempty"`
	Client                    parse.Client `json:"client"`
	FirstSeenAt               time.Time    `json:"firstSeenAt"`
	RequestStartedAt          time.Time    `json:"requestStartedAt"`
	RequestEndedAt            time.Time    `json:"requestEndedAt"`
	RequestElapsedMs          int64        `json:"requestElapsedMs"`
	RequestPromptProcessingMs *int64       `json:"requestPromptProcessingMs,omitempty"`
	RequestToolCallCount      int          `json:"requestToolCallCount"`
	RequestTokensPerSecond    *float64     `json:"requestTokensPerSecond,omitempty"`
	PromptTokens              *int         `json:"promptTokens,omitempty"`
	CompletionTokens          *int         `json:"completionTokens,omitempty"`
	StreamLatencyMs           *int64       `json:"streamLatencyMs,omitempty"`
	SourcePath                string       `json:"sourcePath"`
	Group                     GroupSummary `json:"group"`
}

// requestSpan is when a session's request started and when its last event
// was seen.
func requestSpan(s *parse.Session) (start, end time.Time) {
	start, ok := s.RequestAt()
	if !ok {
		start = s.FirstSeenAt
		if len(s.Events) > 0 {
			start = lo.MinBy(s.Events, func(a, b parse.TimelineEvent) bool { return a.TS.Before(b.TS) }).TS
		}
	}
	end = start
	for _, e := range s.Events {
		if e.TS.After(end) {
			end = e.TS
		}
	}
	return start, end
}

// Groups aggregates sessions by conversation. names supplies user-assigned
// display names and may be nil.
func (ix *Index) Groups(names map[string]string) map[string]GroupSummary {
	if ix == nil {
		return nil
	}
	byGroup := lo.GroupBy(lo.Values(ix.sessions), func(s *parse.Session) string {
		return s.SessionGroupID
	})

	out := make(map[string]GroupSummary, len(byGroup))
	for id, members := range byGroup {
		out[id] = summarize(id, members, names[id])
	}
	return out
}

func summarize(id string, members []*parse.Session, name string) GroupSummary {
	type span struct {
		s          *parse.Session
		start, end time.Time
	}
	spans := lo.Map(members, func(s *parse.Session, _ int) span {
		start, end := requestSpan(s)
		return span{s, start, end}
	})
	sort.Slice(spans, func(i, j int) bool {
		if !spans[i].start.Equal(spans[j].start) {
			return spans[i].start.Before(spans[j].start)
		}
		return spans[i].s.SessionID < spans[j].s.SessionID
	})

	g := GroupSummary{
		SessionGroupID:  id,
		SessionGroupKey: spans[0].s.SessionGroupKey,
		SessionName:     name,
		RequestCount:    len(spans),
		Client:          parse.ClientUnknown,
	}

	var (
		tpsCount int
		tpsAvg   float64
		maxEnd   time.Time
	)
	for i, sp := range spans {
		s := sp.s
		g.SessionIDs = append(g.SessionIDs, s.SessionID)
		if g.StartedAt.IsZero() || s.FirstSeenAt.Before(g.StartedAt) {
			g.StartedAt = s.FirstSeenAt
		}
		if g.Model == "" {
			g.Model = s.Model
		}
		if g.Client == parse.ClientUnknown && s.Client != "" {
			g.Client = s.Client
		}
		if v := s.Metrics.PromptTokens; v != nil {
			g.TotalInputTokens += *v
		}
		if v := s.Metrics.CompletionTokens; v != nil {
			g.TotalOutputTokens += *v
		}
		if v := s.Metrics.PromptProcessingMs; v != nil {
			g.TotalPromptProcessingMs += *v
		}
		if v := s.Metrics.TokensPerSecond; v != nil {
			tpsCount++
			tpsAvg += (*v - tpsAvg) / float64(tpsCount)
		}

		if i > 0 && sp.start.After(maxEnd) {
			g.IdleMs += sp.start.Sub(maxEnd).Milliseconds()
		}
		if i == 0 || sp.end.After(maxEnd) {
			maxEnd = sp.end
		}
	}

	if tpsCount > 0 {
		g.AvgTokensPerSecond = &tpsAvg
	}
	g.ElapsedMs = max(maxEnd.Sub(spans[0].start).Milliseconds(), 0)
	g.ActiveWorkMs = max(g.ElapsedMs-g.IdleMs, 0)
	return g
}

// promptPhaseMs sums the elapsed time of every prompt processing phase of a
// request, falling back to the session metric when no phase was summarized.
func promptPhaseMs(s *parse.Session) *int64 {
	var (
		total int64
		found bool
	)
	for _, e := range s.Events {
		if e.Type == parse.TimelinePromptProcessing && e.PromptProcessing != nil {
			total += max(e.PromptProcessing.ElapsedMs, 0)
			found = true
		}
	}
	if !found {
		return s.Metrics.PromptProcessingMs
	}
	return &total
}

// List projects every session into a ListItem, most recent first.
func (ix *Index) List(names map[string]string) []ListItem {
	if ix == nil {
		return nil
	}
	groups := ix.Groups(names)
	sessions := ix.Sessions()

	items := make([]ListItem, 0, len(sessions))
	for _, s := range sessions {
		start, end := requestSpan(s)
		items = append(items, ListItem{
			SessionID:                 s.SessionID,
			ChatID:                    s.ChatID,
			Model:                     s.Model,
			Client:                    s.Client,
			FirstSeenAt:               s.FirstSeenAt,
			RequestStartedAt:          start,
			RequestEndedAt:            end,
			RequestElapsedMs:          end.Sub(start).Milliseconds(),
			RequestPromptProcessingMs: promptPhaseMs(s),
			RequestToolCallCount:      len(s.ToolCalls),
			RequestTokensPerSecond:    s.Metrics.TokensPerSecond,
			PromptTokens:              s.Metrics.PromptTokens,
			CompletionTokens:          s.Metrics.CompletionTokens,
			StreamLatencyMs:           s.Metrics.StreamLatencyMs,
			SourcePath:                s.SourcePath,
			Group:                     groups[s.SessionGroupID],
		})
	}
	return items
}
