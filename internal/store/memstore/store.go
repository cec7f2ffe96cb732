// Package memstore holds the snapshot in process memory. State does not
// survive a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/suPer8Hu/prompt-playground/internal/chat"
)

type Store struct {
	mu   sync.RWMutex
	blob []byte
}

func New() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.blob == nil {
		return nil, chat.ErrNoState
	}
	return append([]byte(nil), s.blob...), nil
}

func (s *Store) Save(ctx context.Context, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = append([]byte(nil), blob...)
	return nil
}
