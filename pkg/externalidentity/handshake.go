package externalidentity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

var ErrUnknownScheme = errors.New("external login scheme is not registered")

const DefaultStateTTL = 10 * time.Minute

// Handshake runs the authorization code exchange with an external provider and
// produces the Ticket consumed by the login callback
type Handshake struct {
	registry   *Registry
	states     StateStore
	ttl        time.Duration
	httpClient *http.Client
	now        func() time.Time
}

type HandshakeOption func(*Handshake)

func WithStateTTL(ttl time.Duration) HandshakeOption {
	return func(h *Handshake) {
		h.ttl = ttl
	}
}

// WithHandshakeHTTPClient sets the client used for the token exchange
func WithHandshakeHTTPClient(client *http.Client) HandshakeOption {
	return func(h *Handshake) {
		h.httpClient = client
	}
}

func NewHandshake(registry *Registry, states StateStore, opts ...HandshakeOption) *Handshake {
	h := &Handshake{
		registry: registry,
		states:   states,
		ttl:      DefaultStateTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handshake) Registry() *Registry {
	return h.registry
}

// Begin remembers properties under a fresh state and returns the provider URL to redirect to
func (h *Handshake) Begin(ctx context.Context, scheme string, properties map[string]string) (string, error) {
	provider, ok := h.registry.Get(scheme)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}

	state, err := randomState()
	if err != nil {
		return "", err
	}
	props := maps.Clone(properties)
	if props == nil {
		props = make(map[string]string)
	}
	props[PropertyProvider] = scheme

	pending := PendingState{Scheme: scheme, Properties: props, CreatedAt: h.now().UTC()}
	if err := h.states.Save(ctx, state, pending, h.ttl); err != nil {
		return "", fmt.Errorf("failed to save external login state: %w", err)
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(provider.AuthParams))
	for k, v := range provider.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	slog.Info("Starting external login", "scheme", scheme)
	return provider.OAuth2.AuthCodeURL(state, opts...), nil
}

// Complete consumes state, exchanges code and builds the ticket
func (h *Handshake) Complete(ctx context.Context, state, code string) (*Ticket, error) {
	if state == "" || code == "" {
		return nil, fmt.Errorf("missing state or code")
	}
	pending, err := h.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	provider, ok := h.registry.Get(pending.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, pending.Scheme)
	}

	if h.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	}
	token, err := provider.OAuth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code with %s: %w", pending.Scheme, err)
	}

	userID := extraString(token, provider.UserIDField)

	props := maps.Clone(pending.Properties)
	props[BackchannelTokenKey(pending.Scheme)] = token.AccessToken

	return &Ticket{
		Scheme:         pending.Scheme,
		UserID:         userID,
		ProviderName:   provider.DisplayName,
		RegistrationID: provider.OAuth2.ClientID,
		Claims:         map[string]string{},
		Properties:     props,
		IssuedAt:       h.now().UTC(),
	}, nil
}

func extraString(token *oauth2.Token, field string) string {
	switch v := token.Extra(field).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
