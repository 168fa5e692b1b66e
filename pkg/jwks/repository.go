package jwks

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrNoActiveKey  = errors.New("no active signing key")
	ErrDuplicateKey = errors.New("key already exists")
)

// JWKSRepository stores signing keys
type JWKSRepository interface {
	AddKey(ctx context.Context, keyPair *KeyPair) error
	GetKeyByID(ctx context.Context, kid string) (*KeyPair, error)
	GetActiveKey(ctx context.Context) (*KeyPair, error)
	SetActiveKey(ctx context.Context, kid string) error
	ListKeys(ctx context.Context) ([]*KeyPair, error)
}

// InMemoryJWKSRepository implements JWKSRepository using in-memory storage
type InMemoryJWKSRepository struct {
	mu   sync.RWMutex
	keys map[string]*KeyPair
}

func NewInMemoryJWKSRepository() *InMemoryJWKSRepository {
	return &InMemoryJWKSRepository{keys: make(map[string]*KeyPair)}
}

func (r *InMemoryJWKSRepository) AddKey(ctx context.Context, keyPair *KeyPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[keyPair.Kid]; exists {
		return ErrDuplicateKey
	}
	if keyPair.Active {
		for _, k := range r.keys {
			k.Active = false
		}
	}
	r.keys[keyPair.Kid] = keyPair
	return nil
}

func (r *InMemoryJWKSRepository) GetKeyByID(ctx context.Context, kid string) (*KeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func (r *InMemoryJWKSRepository) GetActiveKey(ctx context.Context) (*KeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, k := range r.keys {
		if k.Active {
			return k, nil
		}
	}
	return nil, ErrNoActiveKey
}

// SetActiveKey sets a key as active and deactivates others
func (r *InMemoryJWKSRepository) SetActiveKey(ctx context.Context, kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[kid]; !ok {
		return ErrKeyNotFound
	}
	for id, k := range r.keys {
		k.Active = id == kid
	}
	return nil
}

func (r *InMemoryJWKSRepository) ListKeys(ctx context.Context) ([]*KeyPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*KeyPair, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
