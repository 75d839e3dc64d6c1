package parse

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/goccy/go-json"
)

// RequestIdentity is what a chat completion request body says about the
// conversation it belongs to.
type RequestIdentity struct {
	Model                 string
	Client                Client
	SystemMessageChecksum string
	UserMessageChecksum   string
}

type clientRule struct {
	marker string
	client Client
}

// clientRules are checked in order against the system prompt text.
var clientRules = []clientRule{
	{"You are opencode, an interactive CLI tool", ClientOpencode},
	{"You are Codex", ClientCodex},
	{"The assistant is Claude, created by Anthropic.", ClientClaude},
}

type requestBody struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
}

type messageRole struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// IdentifyRequest extracts model, client and message checksums from a raw
// request body. Unreadable bodies yield an Unknown client and no checksums.
func IdentifyRequest(body []byte) RequestIdentity {
	id := RequestIdentity{Client: ClientUnknown}
	if len(body) == 0 {
		return id
	}

	var req requestBody
	if err := json.Unmarshal(body, &req); err != nil {
		return id
	}
	id.Model = req.Model

	for _, raw := range req.Messages {
		var msg messageRole
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Role {
		case "system":
			if id.SystemMessageChecksum == "" {
				id.SystemMessageChecksum = MessageChecksum(raw)
				id.Client = DetectClient(msg.Content)
			}
		case "user":
			if id.UserMessageChecksum == "" {
				id.UserMessageChecksum = MessageChecksum(raw)
			}
		}
		if id.SystemMessageChecksum != "" && id.UserMessageChecksum != "" {
			break
		}
	}
	return id
}

// MessageChecksum is the SHA-1 of the message re-encoded with sorted keys,
// so key order and whitespace in the log do not change it.
func MessageChecksum(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	stable, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha1.Sum(stable)
	return hex.EncodeToString(sum[:])
}

// DetectClient classifies the tool that sent a request from its system
// prompt content, which is either a string or a list of content parts.
func DetectClient(content any) Client {
	text := strings.Join(textFragments(content, nil), "\n")
	for _, r := range clientRules {
		if strings.Contains(text, r.marker) {
			return r.client
		}
	}
	return ClientUnknown
}

func textFragments(v any, out []string) []string {
	switch x := v.(type) {
	case string:
		out = append(out, x)
	case []any:
		for _, item := range x {
			out = textFragments(item, out)
		}
	case map[string]any:
		for _, key := range []string{"text", "content"} {
			if inner, ok := x[key]; ok {
				out = textFragments(inner, out)
			}
		}
	}
	return out
}
