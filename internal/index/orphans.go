package index

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/Zuo-Peng/lms-log-explorer/internal/parse"
)

func isOrphan(s *parse.Session) bool {
	return s.Request == nil && len(s.Events) > 0
}

// attachOrphan merges an orphan into the session whose request most closely
// precedes the orphan's first event. It reports false when no session
// qualifies; the orphan is then left out of the index.
func (ix *Index) attachOrphan(orphan *parse.Session) (string, bool) {
	var (
		target   *parse.Session
		targetAt = orphan.FirstSeenAt
	)
	for _, s := range ix.sessions {
		if s.Request == nil {
			continue
		}
		at, ok := s.RequestAt()
		if !ok {
			at = s.FirstSeenAt
		}
		if at.After(orphan.FirstSeenAt) {
			continue
		}
		if target == nil || at.After(targetAt) || (at.Equal(targetAt) && s.SessionID > target.SessionID) {
			target, targetAt = s, at
		}
	}
	if target == nil {
		return "", false
	}
	mergeSessions(target, orphan)
	return target.SessionID, true
}

// mergeSessions folds src into dst: events are unioned by id, tool calls by
// (id, requestedAt), and metrics recomputed from the merged timeline.
func mergeSessions(dst, src *parse.Session) {
	seen := lo.SliceToMap(dst.Events, func(e parse.TimelineEvent) (string, struct{}) {
		return e.ID, struct{}{}
	})
	for _, e := range src.Events {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		dst.Events = append(dst.Events, e)
	}
	parse.SortEvents(dst.Events)

	callKey := func(c parse.ToolCall) string {
		return fmt.Sprintf("%s:%d", c.ID, c.RequestedAt.UnixNano())
	}
	calls := lo.SliceToMap(dst.ToolCalls, func(c parse.ToolCall) (string, struct{}) {
		return callKey(c), struct{}{}
	})
	for _, c := range src.ToolCalls {
		if _, dup := calls[callKey(c)]; dup {
			continue
		}
		calls[callKey(c)] = struct{}{}
		dst.ToolCalls = append(dst.ToolCalls, c)
	}

	if dst.ChatID == "" {
		dst.ChatID = src.ChatID
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if !src.FirstSeenAt.IsZero() && src.FirstSeenAt.Before(dst.FirstSeenAt) {
		dst.FirstSeenAt = src.FirstSeenAt
	}
	dst.Metrics = parse.ComputeMetrics(dst.Events)
}
