package ai

import "context"

type Endpoints struct {
	OpenAIBaseURL    string
	AnthropicBaseURL string
	AnthropicVersion string
}

// RegisterBuiltins wires the OpenAI and Anthropic clients into r. Each
// request gets a client bound to the session's credential.
func RegisterBuiltins(r *Registry, ep Endpoints) {
	r.Register(ProviderOpenAI, func(_ context.Context, credential string) (Provider, error) {
		return NewOpenAIProvider(ep.OpenAIBaseURL, credential), nil
	})
	r.Register(ProviderAnthropic, func(_ context.Context, credential string) (Provider, error) {
		return NewAnthropicProvider(ep.AnthropicBaseURL, credential, ep.AnthropicVersion), nil
	})
}
