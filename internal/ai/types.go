package ai

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type OutputFormatType string

const (
	OutputText       OutputFormatType = "text"
	OutputJSONObject OutputFormatType = "json_object"
	OutputJSONSchema OutputFormatType = "json_schema"
)

type OutputFormat struct {
	Type   OutputFormatType `json:"type"`
	Schema string           `json:"schema,omitempty"`
}

// ChatRequest is the provider-neutral request handed to the gateway.
// TopK is nil whenever the provider variant has no use for it.
type ChatRequest struct {
	Messages     []Message                  `json:"messages"`
	Model        ModelRef                   `json:"model"`
	Credential   string                     `json:"apiKey"`
	SystemPrompt string                     `json:"systemPrompt,omitempty"`
	Temperature  float64                    `json:"temperature"`
	TopP         float64                    `json:"topP"`
	TopK         *int                       `json:"topK,omitempty"`
	MaxTokens    int                        `json:"maxTokens"`
	Headers      map[string]string          `json:"headers,omitempty"`
	OutputFormat *OutputFormat              `json:"outputFormat,omitempty"`
	Tools        map[string]json.RawMessage `json:"tools,omitempty"`
}

// NormalizeHeaders drops entries with an empty key or value and folds the
// rest into a map. On repeated keys the last occurrence wins.
func NormalizeHeaders(headers []Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if h.Key == "" || h.Value == "" {
			continue
		}
		out[h.Key] = h.Value
	}
	return out
}
