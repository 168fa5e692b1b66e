package oauth2client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileOAuth2ClientRepository keeps clients in a JSON array on disk
type FileOAuth2ClientRepository struct {
	path    string
	clients map[string]*OAuth2Client
	mutex   sync.RWMutex
}

// NewFileOAuth2ClientRepository loads path; a missing file starts an empty registry
func NewFileOAuth2ClientRepository(path string) (*FileOAuth2ClientRepository, error) {
	repo := &FileOAuth2ClientRepository{
		path:    path,
		clients: make(map[string]*OAuth2Client),
	}
	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	return repo, nil
}

func (r *FileOAuth2ClientRepository) GetClient(ctx context.Context, clientID string) (*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return client.clone(), nil
}

func (r *FileOAuth2ClientRepository) CreateClient(ctx context.Context, client *OAuth2Client) (*OAuth2Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.clients[client.ClientID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrClientAlreadyExists, client.ClientID)
	}
	r.clients[client.ClientID] = client.clone()

	if err := r.save(); err != nil {
		delete(r.clients, client.ClientID)
		return nil, fmt.Errorf("failed to save: %w", err)
	}
	return client.clone(), nil
}

func (r *FileOAuth2ClientRepository) ListClients(ctx context.Context) ([]*OAuth2Client, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return sortedClients(r.clients), nil
}

func (r *FileOAuth2ClientRepository) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var clients []*OAuth2Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return err
	}
	for _, c := range clients {
		if c.ClientID == "" {
			return fmt.Errorf("client without client_id in %s", r.path)
		}
		if c.ConsentType == "" {
			c.ConsentType = ConsentExplicit
		}
		r.clients[c.ClientID] = c
	}
	return nil
}

// save writes through a temporary file so a crash never leaves a truncated registry
func (r *FileOAuth2ClientRepository) save() error {
	data, err := json.MarshalIndent(sortedClients(r.clients), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}

	tempFile := r.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tempFile, r.path)
}
