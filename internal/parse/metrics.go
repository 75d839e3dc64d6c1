package parse

import "time"

// ComputeMetrics derives usage and timing metrics from a session timeline.
// It depends only on the events, so it yields the same figures for freshly
// built sessions and for sessions merged from several stored fragments.
func ComputeMetrics(events []TimelineEvent) Metrics {
	var (
		m Metrics

		usageAt   time.Time
		haveUsage bool

		promptFirst, promptLast time.Time
		havePrompt              bool

		chunkFirst, chunkLast time.Time
		haveChunks            bool

		finishedAt   time.Time
		haveFinished bool
	)

	for _, e := range events {
		switch e.Type {
		case TimelineUsage:
			if e.Usage == nil {
				continue
			}
			if !haveUsage || !e.TS.Before(usageAt) {
				usageAt, haveUsage = e.TS, true
				m.PromptTokens = e.Usage.PromptTokens
				m.CompletionTokens = e.Usage.CompletionTokens
				m.TotalTokens = e.Usage.TotalTokens
			}

		case TimelinePromptProcessing:
			p := e.PromptProcessing
			if p == nil {
				continue
			}
			if !havePrompt || p.FirstPromptAt.Before(promptFirst) {
				promptFirst = p.FirstPromptAt
			}
			if !havePrompt || p.LastPromptAt.After(promptLast) {
				promptLast = p.LastPromptAt
			}
			havePrompt = true

		case TimelineStreamChunk:
			s := e.Stream
			if s == nil {
				continue
			}
			if !haveChunks || s.FirstChunkAt.Before(chunkFirst) {
				chunkFirst = s.FirstChunkAt
			}
			if !haveChunks || s.LastChunkAt.After(chunkLast) {
				chunkLast = s.LastChunkAt
			}
			haveChunks = true

		case TimelineStreamFinished:
			if !haveFinished || e.TS.After(finishedAt) {
				finishedAt, haveFinished = e.TS, true
			}
		}
	}

	if havePrompt {
		ms := elapsedMs(promptFirst, promptLast)
		m.PromptProcessingMs = &ms
	}

	if haveChunks {
		end := chunkLast
		if haveFinished {
			end = finishedAt
		}
		ms := elapsedMs(chunkFirst, end)
		m.StreamLatencyMs = &ms
	}

	if m.CompletionTokens != nil && *m.CompletionTokens > 0 &&
		m.StreamLatencyMs != nil && *m.StreamLatencyMs > 0 {
		tps := float64(*m.CompletionTokens) / (float64(*m.StreamLatencyMs) / 1000)
		m.TokensPerSecond = &tps
	}

	return m
}

// elapsedMs returns to - from in milliseconds, never negative.
func elapsedMs(from, to time.Time) int64 {
	d := to.Sub(from).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
