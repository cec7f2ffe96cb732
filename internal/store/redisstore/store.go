package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/prompt-playground/internal/chat"
)

// Store keeps the playground snapshot under a single Redis string key.
type Store struct {
	rdb *redis.Client
	key string
}

func New(addr, password string, db int, key string) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb, key: key}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Load(ctx context.Context) ([]byte, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, chat.ErrNoState
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) Save(ctx context.Context, blob []byte) error {
	return s.rdb.Set(ctx, s.key, blob, 0).Err()
}
