package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type AnthropicProvider struct {
	BaseURL string
	APIKey  string
	Version string
	Client  *http.Client
}

type anthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicChatReq struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []anthropicMsg  `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p"`
	TopK        *int            `json:"top_k,omitempty"`
	Tools       []anthropicTool `json:"tools,omitempty"`
}

type anthropicChatResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func NewAnthropicProvider(baseURL, apiKey, version string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	if version == "" {
		version = "2023-06-01"
	}
	return &AnthropicProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Version: version,
		Client:  &http.Client{Timeout: 0},
	}
}

func (p *AnthropicProvider) buildRequest(req ChatRequest, stream bool) (anthropicChatReq, error) {
	out := anthropicChatReq{
		Model:       req.Model.ID,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = 1024
	}

	// The messages API has no system role; system turns join the top-level prompt.
	system := []string{}
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMsg{Role: string(m.Role), Content: m.Content})
	}
	out.System = strings.Join(system, "\n\n")

	tools, err := sortedToolDefs("anthropic", req.Tools)
	if err != nil {
		return anthropicChatReq{}, err
	}
	for _, t := range tools {
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out, nil
}

func (p *AnthropicProvider) headers(req ChatRequest) map[string]string {
	h := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		h[k] = v
	}
	h["x-api-key"] = p.APIKey
	h["anthropic-version"] = p.Version
	return h
}

func (p *AnthropicProvider) url() string {
	return fmt.Sprintf("%s/messages", strings.TrimRight(p.BaseURL, "/"))
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("anthropic: api key is required")
	}
	body, err := p.buildRequest(req, false)
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, p.Client, "anthropic", p.url(), body, p.headers(req))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded anthropicChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// StreamChat streams text deltas from the messages API.
func (p *AnthropicProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if strings.TrimSpace(p.APIKey) == "" {
			errs <- errors.New("anthropic: api key is required")
			return
		}
		body, err := p.buildRequest(req, true)
		if err != nil {
			errs <- err
			return
		}

		resp, err := postJSON(ctx, p.Client, "anthropic", p.url(), body, p.headers(req))
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		sc := newSSEScanner(resp.Body)
		for sc.Next() {
			ev := sc.Event()
			switch ev.Type {
			case "content_block_delta":
				var envelope struct {
					Delta struct {
						Type string `json:"type"`
						Text string `json:"text"`
					} `json:"delta"`
				}
				if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil {
					errs <- fmt.Errorf("anthropic: parsing content_block_delta: %w", err)
					return
				}
				if envelope.Delta.Type != "text_delta" || envelope.Delta.Text == "" {
					continue
				}
				if !emit(ctx, chunks, envelope.Delta.Text) {
					errs <- ctx.Err()
					return
				}

			case "message_stop":
				return

			case "error":
				var envelope struct {
					Error struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error"`
				}
				if json.Unmarshal([]byte(ev.Data), &envelope) == nil && envelope.Error.Message != "" {
					errs <- fmt.Errorf("anthropic: %s: %s", envelope.Error.Type, envelope.Error.Message)
					return
				}
				errs <- fmt.Errorf("anthropic: stream error: %s", ev.Data)
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}
