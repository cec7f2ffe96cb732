package chat

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

const DefaultTitle = "New Chat"

type Message = ai.Message

type ModelConfig struct {
	Temperature  float64                    `json:"temperature"`
	TopP         float64                    `json:"topP"`
	TopK         int                        `json:"topK"`
	MaxTokens    int                        `json:"maxTokens"`
	Headers      []ai.Header                `json:"headers"`
	OutputFormat *ai.OutputFormat           `json:"outputFormat,omitempty"`
	Tools        map[string]json.RawMessage `json:"tools,omitempty"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Temperature: 0.7,
		TopP:        1,
		TopK:        40,
		MaxTokens:   1000,
		Headers:     []ai.Header{},
	}
}

func (c ModelConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: temperature must be within [0,1]", ErrInvalidConfig)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: topP must be within [0,1]", ErrInvalidConfig)
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: topK must be within [1,100]", ErrInvalidConfig)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: maxTokens must be positive", ErrInvalidConfig)
	}
	if f := c.OutputFormat; f != nil {
		switch f.Type {
		case ai.OutputText, ai.OutputJSONObject, ai.OutputJSONSchema:
		default:
			return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, f.Type)
		}
	}
	for name, def := range c.Tools {
		if !json.Valid(def) {
			return fmt.Errorf("%w: tool %s is not valid JSON", ErrInvalidConfig, name)
		}
	}
	return nil
}

func (c ModelConfig) clone() ModelConfig {
	out := c
	out.Headers = append([]ai.Header{}, c.Headers...)
	if c.OutputFormat != nil {
		f := *c.OutputFormat
		out.OutputFormat = &f
	}
	if c.Tools != nil {
		out.Tools = make(map[string]json.RawMessage, len(c.Tools))
		for k, v := range c.Tools {
			out.Tools[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

type Session struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Messages     []Message   `json:"messages"`
	SystemPrompt string      `json:"systemPrompt"`
	Model        ai.ModelRef `json:"model"`
	ModelConfig  ModelConfig `json:"modelConfig"`
	Credential   string      `json:"apiKey"`
}

func (s Session) clone() Session {
	out := s
	out.Messages = append([]Message{}, s.Messages...)
	out.ModelConfig = s.ModelConfig.clone()
	return out
}

// SessionPatch carries the fields of a shallow merge. Nil fields are left
// untouched.
type SessionPatch struct {
	Title        *string      `json:"title,omitempty"`
	Description  *string      `json:"description,omitempty"`
	SystemPrompt *string      `json:"systemPrompt,omitempty"`
	ModelID      *string      `json:"modelId,omitempty"`
	ModelConfig  *ModelConfig `json:"modelConfig,omitempty"`
	Credential   *string      `json:"apiKey,omitempty"`
}

func NewSessionID() string {
	return ulid.Make().String()
}
