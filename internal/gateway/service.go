// Package gateway turns provider-neutral chat requests into provider calls.
// Service dispatches in process; Client talks to a gateway served elsewhere
// over the same HTTP contract.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/suPer8Hu/prompt-playground/internal/ai"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

type Service struct {
	registry *ai.Registry
	catalog  *ai.Catalog
}

func NewService(registry *ai.Registry, catalog *ai.Catalog) *Service {
	if catalog == nil {
		catalog = ai.DefaultCatalog()
	}
	return &Service{registry: registry, catalog: catalog}
}

// Validate reports ai.ErrMissingFields when messages, model or credential
// are absent, and ErrUnsupportedProvider for a provider outside the closed
// set.
func (s *Service) Validate(req ai.ChatRequest) error {
	if len(req.Messages) == 0 || req.Model.ID == "" || req.Credential == "" {
		return ai.ErrMissingFields
	}
	if !req.Model.Provider.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Model.Provider)
	}
	return nil
}

// prepare validates req and applies the variant rules again, since remote
// callers may not have.
func (s *Service) prepare(ctx context.Context, req ai.ChatRequest) (ai.Provider, ai.ChatRequest, error) {
	if err := s.Validate(req); err != nil {
		return nil, req, err
	}
	v, _ := req.Model.Provider.Variant()
	v.Normalize(&req, s.catalog.CapabilitiesFor(req.Model))

	p, err := s.registry.Get(ctx, req.Model.Provider, req.Credential)
	if err != nil {
		return nil, req, err
	}
	return p, req, nil
}

func (s *Service) Complete(ctx context.Context, req ai.ChatRequest) (string, error) {
	p, prepared, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	text, err := p.Chat(ctx, prepared)
	if err != nil {
		log.Printf("[gateway] complete failed provider=%s model=%s err=%v", prepared.Model.Provider, prepared.Model.ID, err)
		return "", err
	}
	return text, nil
}

// Stream follows the ai.StreamProvider contract. Providers without streaming
// support answer with one fragment.
func (s *Service) Stream(ctx context.Context, req ai.ChatRequest) (<-chan string, <-chan error) {
	p, prepared, err := s.prepare(ctx, req)
	if err != nil {
		return failed(err)
	}
	if sp, ok := p.(ai.StreamProvider); ok {
		return sp.StreamChat(ctx, prepared)
	}

	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		text, err := p.Chat(ctx, prepared)
		if err != nil {
			errs <- err
			return
		}
		if text != "" {
			chunks <- text
		}
	}()
	return chunks, errs
}

func failed(err error) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	errs <- err
	close(chunks)
	close(errs)
	return chunks, errs
}
