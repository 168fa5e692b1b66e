package oidc

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/edu-idm/pkg/claims"
)

var ErrGrantNotFound = errors.New("grant not found")

type GrantKind string

const (
	KindAuthorizationCode GrantKind = "code"
	KindRefreshToken      GrantKind = "refresh"
	KindDeviceCode        GrantKind = "device"
	KindUserCode          GrantKind = "user_code"
)

type DeviceStatus string

const (
	DevicePending  DeviceStatus = "pending"
	DeviceApproved DeviceStatus = "approved"
	DeviceDenied   DeviceStatus = "denied"
)

// Grant is the server side state behind an opaque code or token. It carries the
// principal that was signed in when it was issued.
type Grant struct {
	Kind                GrantKind             `json:"kind"`
	ClientID            string                `json:"client_id"`
	Subject             string                `json:"sub,omitempty"`
	Scopes              []string              `json:"scopes"`
	RedirectURI         string                `json:"redirect_uri,omitempty"`
	Nonce               string                `json:"nonce,omitempty"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod string                `json:"code_challenge_method,omitempty"`
	External            claims.ExternalClaims `json:"ext"`
	ConsentID           string                `json:"consent_id,omitempty"`
	AuthTime            time.Time             `json:"auth_time"`
	DeviceStatus        DeviceStatus          `json:"device_status,omitempty"`
	// DeviceCode links a user code to its device grant
	DeviceCode string    `json:"device_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (g *Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// GrantStore keeps grants keyed by kind and opaque value. Consume is atomic so a
// code can be redeemed once.
type GrantStore interface {
	Save(ctx context.Context, key string, grant *Grant) error
	Get(ctx context.Context, kind GrantKind, key string) (*Grant, error)
	Consume(ctx context.Context, kind GrantKind, key string) (*Grant, error)
	Delete(ctx context.Context, kind GrantKind, key string) error
}

// storageKey hashes the opaque value so stored keys never reveal usable tokens
func storageKey(kind GrantKind, key string) string {
	sum := sha256.Sum256([]byte(key))
	return string(kind) + ":" + hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type InMemoryGrantStore struct {
	mu     sync.Mutex
	grants map[string]*Grant
	now    func() time.Time
}

func NewInMemoryGrantStore() *InMemoryGrantStore {
	return &InMemoryGrantStore{grants: make(map[string]*Grant), now: time.Now}
}

func (s *InMemoryGrantStore) Save(ctx context.Context, key string, grant *Grant) error {
	if key == "" || grant == nil {
		return errors.New("grant key and grant are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[storageKey(grant.Kind, key)] = deepcopy.Copy(grant).(*Grant)
	return nil
}

func (s *InMemoryGrantStore) Get(ctx context.Context, kind GrantKind, key string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.lookup(kind, key)
	if !ok {
		return nil, ErrGrantNotFound
	}
	return deepcopy.Copy(g).(*Grant), nil
}

func (s *InMemoryGrantStore) Consume(ctx context.Context, kind GrantKind, key string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.lookup(kind, key)
	if !ok {
		return nil, ErrGrantNotFound
	}
	delete(s.grants, storageKey(kind, key))
	return g, nil
}

func (s *InMemoryGrantStore) Delete(ctx context.Context, kind GrantKind, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, storageKey(kind, key))
	return nil
}

// lookup must be called with the lock held; expired grants are dropped
func (s *InMemoryGrantStore) lookup(kind GrantKind, key string) (*Grant, bool) {
	k := storageKey(kind, key)
	g, ok := s.grants[k]
	if !ok {
		return nil, false
	}
	if g.Expired(s.now()) {
		delete(s.grants, k)
		return nil, false
	}
	return g, true
}

// RedisGrantStore shares grants between instances; entries expire with the grant
type RedisGrantStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisGrantStore(client redis.UniversalClient, prefix string) *RedisGrantStore {
	if prefix == "" {
		prefix = "edu-idm:"
	}
	return &RedisGrantStore{client: client, prefix: prefix}
}

func (s *RedisGrantStore) key(kind GrantKind, key string) string {
	return s.prefix + "grant:" + storageKey(kind, key)
}

func (s *RedisGrantStore) Save(ctx context.Context, key string, grant *Grant) error {
	if key == "" || grant == nil {
		return errors.New("grant key and grant are required")
	}
	ttl := time.Until(grant.ExpiresAt)
	if grant.ExpiresAt.IsZero() {
		ttl = 0
	} else if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := s.client.Set(ctx, s.key(grant.Kind, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

func (s *RedisGrantStore) Get(ctx context.Context, kind GrantKind, key string) (*Grant, error) {
	return s.decode(s.client.Get(ctx, s.key(kind, key)).Bytes())
}

func (s *RedisGrantStore) Consume(ctx context.Context, kind GrantKind, key string) (*Grant, error) {
	return s.decode(s.client.GetDel(ctx, s.key(kind, key)).Bytes())
}

func (s *RedisGrantStore) Delete(ctx context.Context, kind GrantKind, key string) error {
	return s.client.Del(ctx, s.key(kind, key)).Err()
}

func (s *RedisGrantStore) decode(data []byte, err error) (*Grant, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to load grant: %w", err)
	}
	var g Grant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &g, nil
}
