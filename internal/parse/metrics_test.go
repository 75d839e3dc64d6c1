package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetrics(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

	events := []TimelineEvent{
		{Type: TimelineRequest, TS: at(0)},
		{Type: TimelinePromptProcessing, TS: at(3), PromptProcessing: &PromptProcessingSummary{FirstPromptAt: at(1), LastPromptAt: at(3)}},
		{Type: TimelineUsage, TS: at(5), Usage: &Usage{PromptTokens: intPtr(1), CompletionTokens: intPtr(1), TotalTokens: intPtr(2)}},
		{Type: TimelineUsage, TS: at(8), Usage: &Usage{PromptTokens: intPtr(20), CompletionTokens: intPtr(10), TotalTokens: intPtr(30)}},
		{Type: TimelineStreamChunk, TS: at(7), Stream: &StreamSummary{FirstChunkAt: at(4), LastChunkAt: at(7)}},
		{Type: TimelineStreamFinished, TS: at(9)},
	}

	m := ComputeMetrics(events)
	require.NotNil(t, m.PromptProcessingMs)
	assert.Equal(t, int64(2000), *m.PromptProcessingMs)
	require.NotNil(t, m.StreamLatencyMs)
	assert.Equal(t, int64(5000), *m.StreamLatencyMs)
	assert.Equal(t, 20, *m.PromptTokens)
	assert.Equal(t, 10, *m.CompletionTokens)
	assert.Equal(t, 30, *m.TotalTokens)
	require.NotNil(t, m.TokensPerSecond)
	assert.InDelta(t, 2.0, *m.TokensPerSecond, 1e-9)
}

func TestComputeMetricsWithoutFinish(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	m := ComputeMetrics([]TimelineEvent{
		{Type: TimelineStreamChunk, TS: t0.Add(2 * time.Second), Stream: &StreamSummary{FirstChunkAt: t0, LastChunkAt: t0.Add(2 * time.Second)}},
	})
	require.NotNil(t, m.StreamLatencyMs)
	assert.Equal(t, int64(2000), *m.StreamLatencyMs)
	assert.Nil(t, m.PromptProcessingMs)
	assert.Nil(t, m.TokensPerSecond, "no usage means no throughput")
}

func TestComputeMetricsClampsNegative(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	m := ComputeMetrics([]TimelineEvent{
		{Type: TimelineStreamChunk, TS: t0, Stream: &StreamSummary{FirstChunkAt: t0, LastChunkAt: t0}},
		{Type: TimelineStreamFinished, TS: t0.Add(-time.Second)},
		{Type: TimelineUsage, TS: t0, Usage: &Usage{CompletionTokens: intPtr(5)}},
	})
	assert.Equal(t, int64(0), *m.StreamLatencyMs)
	assert.Nil(t, m.TokensPerSecond)
}
