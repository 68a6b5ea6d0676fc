package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sso:session:"

// SessionStore looks up externally-written SSO sessions by token.
type SessionStore interface {
	Get(ctx context.Context, token string) (*Session, error)
	Save(ctx context.Context, session Session, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// RedisSessionStore implements SessionStore backed by Redis, the store the
// front-channel sign-in flow writes into.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// Get loads and decodes the session payload. A missing token yields
// (nil, nil).
func (s *RedisSessionStore) Get(ctx context.Context, token string) (*Session, error) {
	bytes, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load sso session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(bytes, &session); err != nil {
		return nil, fmt.Errorf("decode sso session: %w", err)
	}
	return &session, nil
}

// Save stores the encoded session payload with TTL.
func (s *RedisSessionStore) Save(ctx context.Context, session Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal sso session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.Token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist sso session: %w", err)
	}
	return nil
}

// Delete removes the persisted session.
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete sso session: %w", err)
	}
	return nil
}
