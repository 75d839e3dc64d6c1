package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const (
	markerRequest        = "Received request: POST to /v1/chat/completions with body {"
	markerPromptProgress = "Prompt processing progress:"
	markerPacket         = "Generated packet:"
	markerFinished       = "Finished streaming response"

	chatCompletionsEndpoint = "/v1/chat/completions"
)

var rePercent = regexp.MustCompile(`progress:\s*(\d+(?:\.\d+)?)\s*%`)

// Classify maps a logical log line to a parser event, or nil when the line
// carries nothing the session builder consumes.
func Classify(line *LogLine) *Event {
	if line == nil || line.Continuation {
		return nil
	}
	msg := line.Message

	switch {
	case strings.Contains(msg, markerRequest):
		block := ExtractJSONBlock(msg[strings.Index(msg, markerRequest):])
		if !block.OK() {
			return nil
		}
		return &Event{
			Kind: KindRequestReceived,
			TS:   line.TS,
			Line: line.Number,
			Request: &RequestReceived{
				Method:   "POST",
				Endpoint: chatCompletionsEndpoint,
				Body:     json.RawMessage(block.Raw),
			},
		}

	case strings.Contains(msg, markerPromptProgress):
		m := rePercent.FindStringSubmatch(msg)
		if m == nil {
			return nil
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		return &Event{Kind: KindPromptProcessing, TS: line.TS, Line: line.Number, Percent: pct}

	case strings.Contains(msg, markerPacket):
		block := ExtractJSONBlock(msg[strings.Index(msg, markerPacket):])
		if !block.OK() {
			return nil
		}
		var probe struct {
			ID    any `json:"id"`
			Model any `json:"model"`
		}
		if err := block.Decode(&probe); err != nil {
			return nil
		}
		id, ok := probe.ID.(string)
		if !ok {
			return nil
		}
		model, _ := probe.Model.(string)
		return &Event{
			Kind:   KindStreamPacket,
			TS:     line.TS,
			Line:   line.Number,
			Packet: &StreamPacket{PacketID: id, RawJSON: block.Raw, Model: model},
		}

	case strings.Contains(msg, markerFinished):
		return &Event{Kind: KindStreamFinished, TS: line.TS, Line: line.Number}
	}

	return nil
}
