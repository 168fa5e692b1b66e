package externalidentity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrStateNotFound = errors.New("external login state not found")

// PendingState is what the server remembers between the redirect to the external
// provider and its callback
type PendingState struct {
	Scheme     string            `json:"scheme"`
	Properties map[string]string `json:"properties"`
	CreatedAt  time.Time         `json:"created_at"`
}

// StateStore keeps pending states; Consume returns a state at most once
type StateStore interface {
	Save(ctx context.Context, key string, state PendingState, ttl time.Duration) error
	Consume(ctx context.Context, key string) (PendingState, error)
}

type memoryEntry struct {
	state     PendingState
	expiresAt time.Time
}

// InMemoryStateStore is a StateStore for single instance deployments and tests
type InMemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{entries: make(map[string]memoryEntry)}
}

func (s *InMemoryStateStore) Save(ctx context.Context, key string, state PendingState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	state.Properties = maps.Clone(state.Properties)
	s.entries[key] = memoryEntry{state: state, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryStateStore) Consume(ctx context.Context, key string) (PendingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return PendingState{}, ErrStateNotFound
	}
	delete(s.entries, key)
	if time.Now().After(e.expiresAt) {
		return PendingState{}, ErrStateNotFound
	}
	return e.state, nil
}

// RedisStateStore keeps pending states in Redis so any instance can finish the handshake
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = "edu-idm:"
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

func (s *RedisStateStore) key(k string) string {
	return s.prefix + "external-state:" + k
}

func (s *RedisStateStore) Save(ctx context.Context, key string, state PendingState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal external login state: %w", err)
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, key string) (PendingState, error) {
	data, err := s.client.GetDel(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PendingState{}, ErrStateNotFound
		}
		return PendingState{}, fmt.Errorf("failed to get external login state: %w", err)
	}
	var state PendingState
	if err := json.Unmarshal(data, &state); err != nil {
		return PendingState{}, fmt.Errorf("failed to unmarshal external login state: %w", err)
	}
	return state, nil
}
