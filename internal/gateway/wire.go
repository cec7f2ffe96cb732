package gateway

import (
	"encoding/json"
	"sort"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

const (
	defaultTemperature = 0.7
	defaultTopP        = 1.0
)

// WireRequest is the JSON body of POST /api/chat.
type WireRequest struct {
	Messages     []ai.Message               `json:"messages"`
	Model        *ai.ModelRef               `json:"model"`
	APIKey       string                     `json:"apiKey"`
	SystemPrompt string                     `json:"systemPrompt,omitempty"`
	Temperature  *float64                   `json:"temperature,omitempty"`
	TopP         *float64                   `json:"topP,omitempty"`
	TopK         *int                       `json:"topK,omitempty"`
	MaxTokens    int                        `json:"maxTokens,omitempty"`
	Headers      []ai.Header                `json:"headers,omitempty"`
	OutputFormat *ai.OutputFormat           `json:"outputFormat,omitempty"`
	Tools        map[string]json.RawMessage `json:"tools,omitempty"`
	// Stream defaults to true.
	Stream *bool `json:"stream,omitempty"`
}

func (w WireRequest) Streaming() bool {
	return w.Stream == nil || *w.Stream
}

func (w WireRequest) ChatRequest() ai.ChatRequest {
	req := ai.ChatRequest{
		Messages:     w.Messages,
		Credential:   w.APIKey,
		SystemPrompt: w.SystemPrompt,
		Temperature:  defaultTemperature,
		TopP:         defaultTopP,
		TopK:         w.TopK,
		MaxTokens:    w.MaxTokens,
		Headers:      ai.NormalizeHeaders(w.Headers),
		OutputFormat: w.OutputFormat,
		Tools:        w.Tools,
	}
	if w.Model != nil {
		req.Model = *w.Model
	}
	if w.Temperature != nil {
		req.Temperature = *w.Temperature
	}
	if w.TopP != nil {
		req.TopP = *w.TopP
	}
	return req
}

// NewWireRequest encodes req for a remote gateway.
func NewWireRequest(req ai.ChatRequest, stream bool) WireRequest {
	model := req.Model
	temp, topP := req.Temperature, req.TopP
	w := WireRequest{
		Messages:     req.Messages,
		Model:        &model,
		APIKey:       req.Credential,
		SystemPrompt: req.SystemPrompt,
		Temperature:  &temp,
		TopP:         &topP,
		TopK:         req.TopK,
		MaxTokens:    req.MaxTokens,
		OutputFormat: req.OutputFormat,
		Tools:        req.Tools,
		Stream:       &stream,
	}
	if len(req.Headers) > 0 {
		keys := make([]string, 0, len(req.Headers))
		for k := range req.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.Headers = append(w.Headers, ai.Header{Key: k, Value: req.Headers[k]})
		}
	}
	return w
}
