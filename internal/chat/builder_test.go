package chat

import (
	"encoding/json"
	"testing"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

func sessionFor(t *testing.T, modelID string) Session {
	t.Helper()
	m, ok := ai.DefaultCatalog().Lookup(modelID)
	if !ok {
		t.Fatalf("model %s not in catalog", modelID)
	}
	return Session{
		ID:           "s1",
		Title:        DefaultTitle,
		SystemPrompt: "You are terse.",
		Model:        m.ModelRef,
		ModelConfig:  DefaultModelConfig(),
		Credential:   "sk-test",
	}
}

func TestBuildRequest_AppendsNewTurn(t *testing.T) {
	sess := sessionFor(t, "gpt-4o")
	history := []Message{
		{Role: ai.RoleUser, Content: "Hi"},
		{Role: ai.RoleAssistant, Content: "Hello!"},
	}

	req := BuildRequest(ai.DefaultCatalog(), history, "How are you?", sess)

	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(req.Messages))
	}
	last := req.Messages[2]
	if last.Role != ai.RoleUser || last.Content != "How are you?" {
		t.Fatalf("unexpected last message: %+v", last)
	}
	if len(history) != 2 {
		t.Fatalf("history slice was modified")
	}
	if req.SystemPrompt != "You are terse." || req.Credential != "sk-test" || req.Model.ID != "gpt-4o" {
		t.Fatalf("session fields not carried: %+v", req)
	}
	if req.Temperature != 0.7 || req.TopP != 1 || req.MaxTokens != 1000 {
		t.Fatalf("config not carried: %+v", req)
	}
}

func TestBuildRequest_TopKOnlyForAnthropic(t *testing.T) {
	openai := BuildRequest(ai.DefaultCatalog(), nil, "x", sessionFor(t, "gpt-4o"))
	if openai.TopK != nil {
		t.Fatalf("openai request should not carry topK")
	}

	anthropic := BuildRequest(ai.DefaultCatalog(), nil, "x", sessionFor(t, "claude-3-5-sonnet-20241022"))
	if anthropic.TopK == nil || *anthropic.TopK != 40 {
		t.Fatalf("anthropic request should carry topK=40, got %v", anthropic.TopK)
	}
}

func TestBuildRequest_ClampsMaxTokens(t *testing.T) {
	cases := []struct {
		model string
		in    int
		want  int
	}{
		{"gpt-4o", 50000, 8192},
		{"claude-3-7-sonnet-20250219", 50000, 30000},
		{"claude-3-5-sonnet-20241022", 50000, 8192},
		{"gpt-4o", 100, 100},
	}
	for _, tc := range cases {
		sess := sessionFor(t, tc.model)
		sess.ModelConfig.MaxTokens = tc.in
		req := BuildRequest(ai.DefaultCatalog(), nil, "x", sess)
		if req.MaxTokens != tc.want {
			t.Fatalf("%s maxTokens=%d: got %d, want %d", tc.model, tc.in, req.MaxTokens, tc.want)
		}
	}
}

func TestBuildRequest_UnknownModelUsesDefaultCap(t *testing.T) {
	sess := sessionFor(t, "gpt-4o")
	sess.Model = ai.ModelRef{ID: "gpt-9-preview", Provider: ai.ProviderOpenAI}
	sess.ModelConfig.MaxTokens = 20000

	req := BuildRequest(ai.DefaultCatalog(), nil, "x", sess)
	if req.MaxTokens != 8192 {
		t.Fatalf("unknown model should clamp to 8192, got %d", req.MaxTokens)
	}
}

func TestBuildRequest_FiltersHeaders(t *testing.T) {
	sess := sessionFor(t, "gpt-4o")
	sess.ModelConfig.Headers = []ai.Header{
		{Key: "A", Value: ""},
		{Key: "", Value: "x"},
		{Key: "B", Value: "v"},
	}

	req := BuildRequest(ai.DefaultCatalog(), nil, "x", sess)
	if len(req.Headers) != 1 || req.Headers["B"] != "v" {
		t.Fatalf("unexpected headers: %v", req.Headers)
	}
}

func TestBuildRequest_OutputFormatAndTools(t *testing.T) {
	sess := sessionFor(t, "gpt-4o")
	sess.ModelConfig.OutputFormat = &ai.OutputFormat{Type: ai.OutputJSONObject}
	sess.ModelConfig.Tools = map[string]json.RawMessage{
		"lookup": json.RawMessage(`{"type":"function","function":{"name":"lookup"}}`),
	}

	req := BuildRequest(ai.DefaultCatalog(), nil, "x", sess)
	if req.OutputFormat == nil || req.OutputFormat.Type != ai.OutputJSONObject {
		t.Fatalf("openai should keep json output format: %+v", req.OutputFormat)
	}
	if _, ok := req.Tools["lookup"]; !ok {
		t.Fatalf("tools not carried: %v", req.Tools)
	}

	req.OutputFormat.Type = ai.OutputText
	if sess.ModelConfig.OutputFormat.Type != ai.OutputJSONObject {
		t.Fatalf("request shares output format with the session")
	}

	claude := sessionFor(t, "claude-3-5-sonnet-20241022")
	claude.ModelConfig.OutputFormat = &ai.OutputFormat{Type: ai.OutputJSONObject}
	req = BuildRequest(ai.DefaultCatalog(), nil, "x", claude)
	if req.OutputFormat != nil {
		t.Fatalf("anthropic request should drop output format")
	}
}
