package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionStore keeps the guest's chat session id under a per-client key so a
// restarted widget resumes the same conversation.
type SessionStore struct {
	rc  *RedisClient
	key string
	ttl time.Duration
}

// NewSessionStore scopes the stored id to clientKey. A zero ttl keeps the id
// until it is cleared.
func NewSessionStore(rc *RedisClient, clientKey string, ttl time.Duration) *SessionStore {
	return &SessionStore{rc: rc, key: sessionKey(clientKey), ttl: ttl}
}

func sessionKey(clientKey string) string {
	return fmt.Sprintf("livechat:client:%s:session", clientKey)
}

// SessionID returns the stored id, or "" when none is stored.
func (s *SessionStore) SessionID(ctx context.Context) (string, error) {
	id, err := s.rc.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session id: %w", err)
	}
	return id, nil
}

func (s *SessionStore) SetSessionID(ctx context.Context, id string) error {
	if err := s.rc.client.Set(ctx, s.key, id, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session id: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearSessionID(ctx context.Context) error {
	if err := s.rc.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}
	return nil
}
