package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, chunks <-chan string, errs <-chan error) ([]string, error) {
	t.Helper()
	var got []string
	for c := range chunks {
		got = append(got, c)
	}
	return got, <-errs
}

func TestOpenAIStreamChat(t *testing.T) {
	var body openAIChatReq
	var auth, custom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		custom = r.Header.Get("X-Trace")
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo, ", "world!"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test")
	chunks, errs := p.StreamChat(context.Background(), ChatRequest{
		Model:        ModelRef{ID: "gpt-4o", Provider: ProviderOpenAI},
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}},
		Temperature:  0.7,
		TopP:         1,
		MaxTokens:    100,
		Headers:      map[string]string{"X-Trace": "abc"},
		OutputFormat: &OutputFormat{Type: OutputJSONSchema, Schema: `{"type":"object"}`},
	})
	got, err := collect(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if strings.Join(got, "") != "Hello, world!" || len(got) != 3 {
		t.Fatalf("unexpected chunks: %q", got)
	}
	if auth != "Bearer sk-test" || custom != "abc" {
		t.Fatalf("unexpected headers auth=%q custom=%q", auth, custom)
	}
	if !body.Stream || body.Model != "gpt-4o" || body.MaxTokens != 100 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
	if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_schema" || body.ResponseFormat.JSONSchema == nil {
		t.Fatalf("unexpected response format: %+v", body.ResponseFormat)
	}
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "bad")
	_, err := p.Chat(context.Background(), ChatRequest{Model: ModelRef{ID: "gpt-4o"}})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusUnauthorized || se.Message != "Incorrect API key provided" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk")
	reply, err := p.Chat(context.Background(), ChatRequest{Model: ModelRef{ID: "gpt-4o"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "pong" {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestOpenAIRejectsInvalidSchema(t *testing.T) {
	p := NewOpenAIProvider("http://unused", "sk")
	_, err := p.Chat(context.Background(), ChatRequest{
		OutputFormat: &OutputFormat{Type: OutputJSONSchema, Schema: "{not json"},
	})
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestOpenAIChatWrapsTools(t *testing.T) {
	var body struct {
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				Parameters  json.RawMessage `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk")
	_, err := p.Chat(context.Background(), ChatRequest{
		Model: ModelRef{ID: "gpt-4o", Provider: ProviderOpenAI},
		Tools: map[string]json.RawMessage{
			"get_weather": json.RawMessage(`{"description":"d","parameters":{"type":"object"}}`),
			"lookup":      json.RawMessage(`{"name":"search","input_schema":{"type":"object","required":["q"]}}`),
			"zzz":         json.RawMessage(`{"type":"function","function":{"name":"noop","parameters":{"type":"object"}}}`),
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if len(body.Tools) != 3 {
		t.Fatalf("unexpected tools: %+v", body.Tools)
	}
	for _, tool := range body.Tools {
		if tool.Type != "function" {
			t.Fatalf("tool not wrapped as function: %+v", tool)
		}
	}

	weather := body.Tools[0].Function
	if weather.Name != "get_weather" || weather.Description != "d" || string(weather.Parameters) != `{"type":"object"}` {
		t.Fatalf("unexpected bare tool: %+v", weather)
	}
	search := body.Tools[1].Function
	if search.Name != "search" || string(search.Parameters) != `{"type":"object","required":["q"]}` {
		t.Fatalf("unexpected native tool: %+v", search)
	}
	if noop := body.Tools[2].Function; noop.Name != "noop" {
		t.Fatalf("unexpected function tool: %+v", noop)
	}
}
