package oauth2client

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// OAuth2ClientRepository defines the interface for OAuth2 client data access operations
type OAuth2ClientRepository interface {
	GetClient(ctx context.Context, clientID string) (*OAuth2Client, error)
	CreateClient(ctx context.Context, client *OAuth2Client) (*OAuth2Client, error)
	ListClients(ctx context.Context) ([]*OAuth2Client, error)
}

// InMemoryOAuth2ClientRepository implements OAuth2ClientRepository using in-memory storage
type InMemoryOAuth2ClientRepository struct {
	clients map[string]*OAuth2Client
	mutex   sync.RWMutex
}

func NewInMemoryOAuth2ClientRepository(clients ...*OAuth2Client) *InMemoryOAuth2ClientRepository {
	repo := &InMemoryOAuth2ClientRepository{clients: make(map[string]*OAuth2Client)}
	for _, c := range clients {
		repo.clients[c.ClientID] = c.clone()
	}
	return repo
}

func (r *InMemoryOAuth2ClientRepository) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return client.clone(), nil
}

func (r *InMemoryOAuth2ClientRepository) CreateClient(ctx context.Context, client *OAuth2Client) (*OAuth2Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrClientAlreadyExists, client.ClientID)
	}
	r.clients[client.ClientID] = client.clone()
	return client.clone(), nil
}

func (r *InMemoryOAuth2ClientRepository) ListClients(ctx context.Context) ([]*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return sortedClients(r.clients), nil
}

func sortedClients(m map[string]*OAuth2Client) []*OAuth2Client {
	out := make([]*OAuth2Client, 0, len(m))
	for _, c := range m {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
