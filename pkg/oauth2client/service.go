package oauth2client

import (
	"context"
	"fmt"
)

// ClientService provides methods for resolving and authenticating OAuth2 clients
type ClientService struct {
	repository OAuth2ClientRepository
}

func NewClientService(repository OAuth2ClientRepository) *ClientService {
	return &ClientService{repository: repository}
}

func (s *ClientService) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}
	return s.repository.GetClient(ctx, clientID)
}

// Authenticate resolves the client and checks its secret
func (s *ClientService) Authenticate(ctx context.Context, clientID, secret string) (*OAuth2Client, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := client.CheckSecret(secret); err != nil {
		return nil, err
	}
	return client, nil
}

// Register hashes secret (when given) and stores a new client
func (s *ClientService) Register(ctx context.Context, client *OAuth2Client, secret string) (*OAuth2Client, error) {
	if client.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if secret != "" {
		hash, err := HashSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		client.SecretHash = hash
	}
	if client.ConsentType == "" {
		client.ConsentType = ConsentExplicit
	}
	if client.ClientType == "" {
		client.ClientType = ClientTypeConfidential
	}
	return s.repository.CreateClient(ctx, client)
}

func (s *ClientService) ListClients(ctx context.Context) ([]*OAuth2Client, error) {
	return s.repository.ListClients(ctx)
}

// FindPostLogoutRedirect returns the first client that registered uri for post-logout redirects
func (s *ClientService) FindPostLogoutRedirect(ctx context.Context, uri string) (*OAuth2Client, bool) {
	if uri == "" {
		return nil, false
	}
	clients, err := s.repository.ListClients(ctx)
	if err != nil {
		return nil, false
	}
	for _, c := range clients {
		if c.ValidatePostLogoutRedirectURI(uri) {
			return c, true
		}
	}
	return nil, false
}
