package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIJSONSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIChatReq struct {
	Model          string                `json:"model"`
	Messages       []openAIMsg           `json:"messages"`
	Stream         bool                  `json:"stream"`
	Temperature    float64               `json:"temperature"`
	TopP           float64               `json:"top_p"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message openAIMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(baseURL, apiKey string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		// no global timeout; streaming is bounded by the request context
		Client: &http.Client{Timeout: 0},
	}
}

func (p *OpenAIProvider) buildRequest(req ChatRequest, stream bool) (openAIChatReq, error) {
	out := openAIChatReq{
		Model:       req.Model.ID,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	out.Messages = make([]openAIMsg, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, openAIMsg{Role: string(RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openAIMsg{Role: string(m.Role), Content: m.Content})
	}

	if f := req.OutputFormat; f != nil {
		switch f.Type {
		case OutputJSONObject:
			out.ResponseFormat = &openAIResponseFormat{Type: string(OutputJSONObject)}
		case OutputJSONSchema:
			schema := strings.TrimSpace(f.Schema)
			if schema == "" {
				schema = "{}"
			}
			if !json.Valid([]byte(schema)) {
				return openAIChatReq{}, errors.New("openai: output schema is not valid JSON")
			}
			out.ResponseFormat = &openAIResponseFormat{
				Type:       string(OutputJSONSchema),
				JSONSchema: &openAIJSONSchema{Name: "response", Schema: json.RawMessage(schema)},
			}
		}
	}

	tools, err := sortedToolDefs("openai", req.Tools)
	if err != nil {
		return openAIChatReq{}, err
	}
	for _, t := range tools {
		out.Tools = append(out.Tools, openAITool{
			Type:     "function",
			Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out, nil
}

func (p *OpenAIProvider) headers(req ChatRequest) map[string]string {
	h := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		h[k] = v
	}
	h["Authorization"] = "Bearer " + p.APIKey
	return h
}

func (p *OpenAIProvider) url() string {
	return fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openai: api key is required")
	}
	body, err := p.buildRequest(req, false)
	if err != nil {
		return "", err
	}

	resp, err := postJSON(ctx, p.Client, "openai", p.url(), body, p.headers(req))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks via SSE.
func (p *OpenAIProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if strings.TrimSpace(p.APIKey) == "" {
			errs <- errors.New("openai: api key is required")
			return
		}
		body, err := p.buildRequest(req, true)
		if err != nil {
			errs <- err
			return
		}

		resp, err := postJSON(ctx, p.Client, "openai", p.url(), body, p.headers(req))
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		sc := newSSEScanner(resp.Body)
		for sc.Next() {
			data := strings.TrimSpace(sc.Event().Data)
			if data == "[DONE]" {
				return
			}
			var decoded openAIStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- fmt.Errorf("openai: decode chunk: %w", err)
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			if delta := decoded.Choices[0].Delta.Content; delta != "" {
				if !emit(ctx, chunks, delta) {
					errs <- ctx.Err()
					return
				}
			}
		}

		// a stream that ends without [DONE] is accepted as complete
		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return chunks, errs
}
