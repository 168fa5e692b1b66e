package idgovua

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-jose/go-jose/v4"
	"github.com/tendant/edu-idm/pkg/jwks"
)

var ErrNotInitialized = errors.New("crypto context is not initialized")

// CryptoContext opens envelopes addressed to this server.
// Implementations are shared by all requests and must be safe for concurrent use.
type CryptoContext interface {
	Initialize() error
	IsInitialized() bool
	Decrypt(ctx context.Context, envelope []byte) ([]byte, error)
}

var (
	keyAlgorithms     = []jose.KeyAlgorithm{jose.RSA_OAEP, jose.RSA_OAEP_256}
	contentAlgorithms = []jose.ContentEncryption{
		jose.A128GCM, jose.A256GCM, jose.A128CBC_HS256, jose.A256CBC_HS512,
	}
)

// KeyContext decrypts JWE envelopes with the server's RSA private key.
// The key is loaded once; a failed load is permanent for the life of the process.
type KeyContext struct {
	keyFile string

	once    sync.Once
	mu      sync.RWMutex
	key     *rsa.PrivateKey
	initErr error
}

// NewKeyContext returns a context that loads its key from a PEM file on Initialize
func NewKeyContext(keyFile string) *KeyContext {
	return &KeyContext{keyFile: keyFile}
}

// NewKeyContextWithKey returns an already initialized context
func NewKeyContextWithKey(key *rsa.PrivateKey) *KeyContext {
	c := &KeyContext{key: key}
	c.once.Do(func() {})
	return c
}

func (c *KeyContext) Initialize() error {
	c.once.Do(func() {
		key, err := loadPrivateKey(c.keyFile)
		if err != nil {
			c.initErr = fmt.Errorf("failed to initialize crypto context: %w", err)
			slog.Error("Crypto context initialization failed", "key_file", c.keyFile, "error", err)
			return
		}
		c.mu.Lock()
		c.key = key
		c.mu.Unlock()
		slog.Info("Crypto context initialized", "key_file", c.keyFile)
	})
	return c.initErr
}

func (c *KeyContext) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key != nil
}

func (c *KeyContext) Decrypt(ctx context.Context, envelope []byte) ([]byte, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if key == nil {
		return nil, ErrNotInitialized
	}

	obj, err := jose.ParseEncrypted(string(bytes.TrimSpace(envelope)), keyAlgorithms, contentAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("failed to open envelope: %w", err)
	}
	return plaintext, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("private key file is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return jwks.DecodePrivateKeyFromPEM(string(data))
}

// RemoteContext delegates decryption to the id.gov.ua decrypt endpoint
type RemoteContext struct {
	endpoint string
	client   *http.Client

	mu          sync.RWMutex
	initialized bool
}

func NewRemoteContext(endpoint string, client *http.Client) *RemoteContext {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &RemoteContext{endpoint: endpoint, client: client}
}

func (c *RemoteContext) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	if c.endpoint == "" {
		return fmt.Errorf("failed to initialize crypto context: decrypt endpoint is not configured")
	}
	c.initialized = true
	return nil
}

func (c *RemoteContext) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// StatusError carries the status of a failed HTTP exchange
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func (c *RemoteContext) Decrypt(ctx context.Context, envelope []byte) ([]byte, error) {
	if !c.IsInitialized() {
		return nil, ErrNotInitialized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("failed to create decrypt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call decrypt endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypt response: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("decrypt response exceeds %d bytes", maxBodySize)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return body, nil
}
