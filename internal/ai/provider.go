package ai

import "context"

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both channels are closed when streaming ends; at most one error is sent.
type StreamProvider interface {
	StreamChat(ctx context.Context, req ChatRequest) (<-chan string, <-chan error)
}
