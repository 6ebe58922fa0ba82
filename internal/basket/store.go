package basket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists baskets per session. Load returns an empty basket for an
// unknown session.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Basket, error)
	Save(ctx context.Context, b *Basket) error
	Delete(ctx context.Context, sessionID string) error
}

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:basket:%s", s.prefix, sessionID)
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Basket, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return New(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode basket: %w", err)
	}
	return fromSnapshot(sessionID, snap), nil
}

func (s *RedisStore) Save(ctx context.Context, b *Basket) error {
	if b.IsEmpty() {
		return s.Delete(ctx, b.SessionID)
	}

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		return fmt.Errorf("encode basket: %w", err)
	}
	if err := s.client.Set(ctx, s.key(b.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	b.dirty = false
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete basket: %w", err)
	}
	return nil
}

// MemoryStore keeps baskets in process memory. Used when Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Basket, error) {
	s.mu.Lock()
	data, ok := s.sessions[sessionID]
	s.mu.Unlock()

	if !ok {
		return New(sessionID), nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode basket: %w", err)
	}
	return fromSnapshot(sessionID, snap), nil
}

func (s *MemoryStore) Save(ctx context.Context, b *Basket) error {
	if b.IsEmpty() {
		return s.Delete(ctx, b.SessionID)
	}

	data, err := json.Marshal(b.snapshot())
	if err != nil {
		return fmt.Errorf("encode basket: %w", err)
	}

	s.mu.Lock()
	s.sessions[b.SessionID] = data
	s.mu.Unlock()

	b.dirty = false
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}
