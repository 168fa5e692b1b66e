package oidc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/session"
)

const (
	DefaultDeviceCodeLifetime = 10 * time.Minute
	DefaultPollInterval       = 5
	userCodeAlphabet          = "BCDFGHJKLMNPQRSTVWXZ"
	userCodeLength            = 8
)

var ErrUnknownUserCode = errors.New("unknown or expired user code")

type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// PendingDevice is what the verification page shows before the user approves
type PendingDevice struct {
	UserCode        string   `json:"user_code"`
	ClientID        string   `json:"client_id"`
	ApplicationName string   `json:"application_name"`
	Scopes          []string `json:"scopes"`
}

type DeviceOption func(*DeviceFlow)

func WithDeviceCodeLifetime(d time.Duration) DeviceOption {
	return func(f *DeviceFlow) {
		f.lifetime = d
	}
}

func WithDeviceClock(now func() time.Time) DeviceOption {
	return func(f *DeviceFlow) {
		f.now = now
	}
}

// DeviceFlow implements the device authorization grant (RFC 8628). The device polls
// the token endpoint; TokenExchangeFlow redeems approved device codes.
type DeviceFlow struct {
	clients         *oauth2client.ClientService
	grants          GrantStore
	verificationURI string
	lifetime        time.Duration
	now             func() time.Time
}

func NewDeviceFlow(clients *oauth2client.ClientService, grants GrantStore, verificationURI string, opts ...DeviceOption) *DeviceFlow {
	f := &DeviceFlow{
		clients:         clients,
		grants:          grants,
		verificationURI: verificationURI,
		lifetime:        DefaultDeviceCodeLifetime,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *DeviceFlow) Authorize(ctx context.Context, clientID, secret string, scopes fosite.Arguments) (*DeviceAuthorizationResponse, error) {
	client, err := f.clients.Authenticate(ctx, clientID, secret)
	if err != nil {
		if errors.Is(err, oauth2client.ErrClientNotFound) || errors.Is(err, oauth2client.ErrInvalidClientSecret) {
			return nil, protocolError(ErrorInvalidClient, "The client credentials are invalid.", http.StatusUnauthorized)
		}
		return nil, err
	}
	if !client.AllowsGrant(oauth2client.GrantDeviceCode) {
		return nil, badRequest(ErrorUnauthorizedClient, "The client is not allowed to use the device flow.")
	}
	if len(scopes) == 0 || !client.ValidateScope(scopes) {
		return nil, badRequest(ErrorInvalidScope, "The requested scope is not allowed for this client.")
	}

	deviceCode, err := randomToken()
	if err != nil {
		return nil, err
	}
	userCode, err := generateUserCode()
	if err != nil {
		return nil, err
	}

	now := f.now().UTC()
	expires := now.Add(f.lifetime)
	device := &Grant{
		Kind:         KindDeviceCode,
		ClientID:     client.ClientID,
		Scopes:       scopes,
		DeviceStatus: DevicePending,
		CreatedAt:    now,
		ExpiresAt:    expires,
	}
	if err := f.grants.Save(ctx, deviceCode, device); err != nil {
		return nil, fmt.Errorf("failed to store device code: %w", err)
	}
	index := &Grant{Kind: KindUserCode, ClientID: client.ClientID, Scopes: scopes, DeviceCode: deviceCode, CreatedAt: now, ExpiresAt: expires}
	if err := f.grants.Save(ctx, normalizeUserCode(userCode), index); err != nil {
		return nil, fmt.Errorf("failed to store user code: %w", err)
	}

	complete := f.verificationURI + "?" + url.Values{"user_code": {userCode}}.Encode()
	slog.Info("Device authorization started", "client_id", client.ClientID)
	return &DeviceAuthorizationResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         f.verificationURI,
		VerificationURIComplete: complete,
		ExpiresIn:               int(f.lifetime.Seconds()),
		Interval:                DefaultPollInterval,
	}, nil
}

// Lookup describes the pending request behind userCode
func (f *DeviceFlow) Lookup(ctx context.Context, userCode string) (*PendingDevice, error) {
	index, err := f.grants.Get(ctx, KindUserCode, normalizeUserCode(userCode))
	if errors.Is(err, ErrGrantNotFound) {
		return nil, ErrUnknownUserCode
	}
	if err != nil {
		return nil, err
	}
	name := index.ClientID
	if client, err := f.clients.GetClient(ctx, index.ClientID); err == nil && client.DisplayName != "" {
		name = client.DisplayName
	}
	return &PendingDevice{
		UserCode:        userCode,
		ClientID:        index.ClientID,
		ApplicationName: name,
		Scopes:          index.Scopes,
	}, nil
}

// Approve binds the signed-in principal to the device code. The user code is single use.
func (f *DeviceFlow) Approve(ctx context.Context, userCode string, p *session.Principal) error {
	if p == nil {
		return session.ErrNoSession
	}
	return f.resolve(ctx, userCode, func(g *Grant) {
		g.DeviceStatus = DeviceApproved
		g.Subject = p.Subject
		g.External = p.External
		g.AuthTime = p.AuthTime
	})
}

func (f *DeviceFlow) Deny(ctx context.Context, userCode string) error {
	return f.resolve(ctx, userCode, func(g *Grant) {
		g.DeviceStatus = DeviceDenied
	})
}

func (f *DeviceFlow) resolve(ctx context.Context, userCode string, update func(*Grant)) error {
	index, err := f.grants.Consume(ctx, KindUserCode, normalizeUserCode(userCode))
	if errors.Is(err, ErrGrantNotFound) {
		return ErrUnknownUserCode
	}
	if err != nil {
		return err
	}
	device, err := f.grants.Get(ctx, KindDeviceCode, index.DeviceCode)
	if errors.Is(err, ErrGrantNotFound) {
		return ErrUnknownUserCode
	}
	if err != nil {
		return err
	}
	if device.DeviceStatus != DevicePending {
		return ErrUnknownUserCode
	}
	update(device)
	if err := f.grants.Save(ctx, index.DeviceCode, device); err != nil {
		return fmt.Errorf("failed to update device code: %w", err)
	}
	slog.Info("Device authorization resolved", "client_id", device.ClientID, "status", device.DeviceStatus)
	return nil
}

// generateUserCode returns a code like "BDFG-HJKL" from a vowel-free alphabet
func generateUserCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(userCodeAlphabet)))
	for i := 0; i < userCodeLength; i++ {
		if i == userCodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate user code: %w", err)
		}
		b.WriteByte(userCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeUserCode(code string) string {
	code = strings.ToUpper(code)
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, code)
}
