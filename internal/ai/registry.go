package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ProviderFactory builds a provider client bound to one credential.
type ProviderFactory func(ctx context.Context, credential string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[ProviderKind]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[ProviderKind]ProviderFactory)}
}

func (r *Registry) Register(kind ProviderKind, f ProviderFactory) {
	kind = ProviderKind(strings.ToLower(strings.TrimSpace(string(kind))))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

func (r *Registry) Get(ctx context.Context, kind ProviderKind, credential string) (Provider, error) {
	kind = ProviderKind(strings.ToLower(strings.TrimSpace(string(kind))))
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", kind)
	}
	return f(ctx, credential)
}
