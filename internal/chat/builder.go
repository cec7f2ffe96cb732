package chat

import (
	"encoding/json"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

// BuildRequest turns session state plus the new user text into a
// provider-neutral request. history must not yet contain the new turn.
//
// The provider variant of the session's model decides which optional
// fields survive (topK, output format), and MaxTokens is capped by the
// model's capability record regardless of what the user configured.
func BuildRequest(catalog *ai.Catalog, history []Message, newUserText string, sess Session) ai.ChatRequest {
	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: newUserText})

	cfg := sess.ModelConfig
	topK := cfg.TopK
	req := ai.ChatRequest{
		Messages:     msgs,
		Model:        sess.Model,
		Credential:   sess.Credential,
		SystemPrompt: sess.SystemPrompt,
		Temperature:  cfg.Temperature,
		TopP:         cfg.TopP,
		TopK:         &topK,
		MaxTokens:    cfg.MaxTokens,
		Headers:      ai.NormalizeHeaders(cfg.Headers),
	}
	if cfg.OutputFormat != nil {
		f := *cfg.OutputFormat
		req.OutputFormat = &f
	}
	if len(cfg.Tools) > 0 {
		req.Tools = make(map[string]json.RawMessage, len(cfg.Tools))
		for k, v := range cfg.Tools {
			req.Tools[k] = v
		}
	}

	if catalog == nil {
		catalog = ai.DefaultCatalog()
	}
	caps := catalog.CapabilitiesFor(sess.Model)
	if v, ok := sess.Model.Provider.Variant(); ok {
		v.Normalize(&req, caps)
	} else {
		req.TopK = nil
		req.MaxTokens = ai.ClampMaxTokens(req.MaxTokens, caps)
	}
	return req
}
