package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ory/fosite"

	"github.com/tendant/edu-idm/pkg/claims"
	idmerrors "github.com/tendant/edu-idm/pkg/errors"
	"github.com/tendant/edu-idm/pkg/login"
	"github.com/tendant/edu-idm/pkg/metrics"
	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/pkce"
	"github.com/tendant/edu-idm/pkg/tokengenerator"
	"github.com/tendant/edu-idm/pkg/user"
)

const DefaultRefreshTokenLifetime = 14 * 24 * time.Hour

// TokenRequest is a parsed /connect/token request
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	DeviceCode   string
	Username     string
	Password     string
	Scopes       fosite.Arguments
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

type TokenOption func(*TokenExchangeFlow)

func WithRefreshTokenLifetime(d time.Duration) TokenOption {
	return func(f *TokenExchangeFlow) {
		f.refreshLifetime = d
	}
}

func WithTokenClock(now func() time.Time) TokenOption {
	return func(f *TokenExchangeFlow) {
		f.now = now
	}
}

func WithTokenMetrics(m *metrics.Metrics) TokenOption {
	return func(f *TokenExchangeFlow) {
		f.metrics = m
	}
}

// TokenExchangeFlow issues tokens for the supported grant types
type TokenExchangeFlow struct {
	clients         *oauth2client.ClientService
	users           *user.UserService
	logins          *login.LoginService
	builder         *claims.Builder
	tokens          *tokengenerator.RSATokenGenerator
	grants          GrantStore
	metrics         *metrics.Metrics
	refreshLifetime time.Duration
	now             func() time.Time
}

func NewTokenExchangeFlow(
	clients *oauth2client.ClientService,
	users *user.UserService,
	logins *login.LoginService,
	builder *claims.Builder,
	tokens *tokengenerator.RSATokenGenerator,
	grants GrantStore,
	opts ...TokenOption,
) *TokenExchangeFlow {
	f := &TokenExchangeFlow{
		clients:         clients,
		users:           users,
		logins:          logins,
		builder:         builder,
		tokens:          tokens,
		grants:          grants,
		refreshLifetime: DefaultRefreshTokenLifetime,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// issuance is the principal a token response is built for
type issuance struct {
	source    claims.Source
	scopes    fosite.Arguments
	nonce     string
	consentID string
	authTime  time.Time
}

// Exchange dispatches on the grant type. Protocol failures are *fosite.RFC6749Error;
// a grant a client is configured for but this server does not handle is an integrity error.
func (f *TokenExchangeFlow) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	resp, err := f.exchange(ctx, req)
	result := "success"
	if err != nil {
		var rfcErr *fosite.RFC6749Error
		if errors.As(err, &rfcErr) {
			result = rfcErr.ErrorField
		} else {
			result = "error"
		}
	}
	f.metrics.ObserveGrant(grantLabel(req.GrantType), result)
	return resp, err
}

// grantLabel keeps caller supplied grant types out of metric labels
func grantLabel(grantType string) string {
	switch grantType {
	case oauth2client.GrantPassword, oauth2client.GrantAuthorizationCode, oauth2client.GrantRefreshToken, oauth2client.GrantDeviceCode:
		return grantType
	}
	return "other"
}

func (f *TokenExchangeFlow) exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType == "" {
		return nil, badRequest(ErrorInvalidRequest, "The mandatory 'grant_type' parameter is missing.")
	}
	client, err := f.clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		if errors.Is(err, oauth2client.ErrClientNotFound) || errors.Is(err, oauth2client.ErrInvalidClientSecret) {
			return nil, protocolError(ErrorInvalidClient, "The client credentials are invalid.", http.StatusUnauthorized)
		}
		return nil, err
	}
	if !client.AllowsGrant(req.GrantType) {
		return nil, badRequest(ErrorUnsupportedGrantType, "The specified grant type is not allowed for this client.")
	}

	var iss issuance
	switch req.GrantType {
	case oauth2client.GrantPassword:
		iss, err = f.passwordGrant(ctx, client, req)
	case oauth2client.GrantAuthorizationCode:
		iss, err = f.codeGrant(ctx, client, req)
	case oauth2client.GrantRefreshToken:
		iss, err = f.refreshGrant(ctx, client, req)
	case oauth2client.GrantDeviceCode:
		iss, err = f.deviceGrant(ctx, client, req)
	default:
		slog.Error("Client is configured for a grant type the server does not handle", "client_id", client.ClientID, "grant_type", req.GrantType)
		return nil, idmerrors.Newf(idmerrors.ErrCodeUnsupportedGrant, "the grant type %s is not supported", req.GrantType)
	}
	if err != nil {
		return nil, err
	}
	return f.issue(ctx, client, iss)
}

func (f *TokenExchangeFlow) passwordGrant(ctx context.Context, client *oauth2client.OAuth2Client, req TokenRequest) (issuance, error) {
	u, err := f.logins.PasswordSignIn(ctx, req.Username, req.Password)
	switch {
	case errors.Is(err, login.ErrInvalidCredentials):
		return issuance{}, invalidGrant("The username/password couple is invalid.")
	case errors.Is(err, login.ErrAccountLocked):
		return issuance{}, invalidGrant("The account is temporarily locked.")
	case errors.Is(err, login.ErrAccountBlocked):
		return issuance{}, invalidGrant("The user is no longer allowed to sign in.")
	case err != nil:
		return issuance{}, err
	}
	return issuance{
		source:   claims.Local{User: u},
		scopes:   fosite.Arguments(client.FilterScopes(req.Scopes)),
		authTime: f.now().UTC(),
	}, nil
}

func (f *TokenExchangeFlow) codeGrant(ctx context.Context, client *oauth2client.OAuth2Client, req TokenRequest) (issuance, error) {
	if req.Code == "" {
		return issuance{}, badRequest(ErrorInvalidRequest, "The mandatory 'code' parameter is missing.")
	}
	g, err := f.grants.Consume(ctx, KindAuthorizationCode, req.Code)
	if errors.Is(err, ErrGrantNotFound) {
		return issuance{}, invalidGrant("The authorization code is no longer valid.")
	}
	if err != nil {
		return issuance{}, err
	}
	if g.Expired(f.now()) || g.ClientID != client.ClientID {
		return issuance{}, invalidGrant("The authorization code is no longer valid.")
	}
	if g.RedirectURI != req.RedirectURI {
		return issuance{}, invalidGrant("The 'redirect_uri' parameter does not match the authorization request.")
	}
	if g.CodeChallenge != "" {
		if err := pkce.Verify(req.CodeVerifier, g.CodeChallenge, g.CodeChallengeMethod); err != nil {
			return issuance{}, invalidGrant("The code verifier is invalid.")
		}
	}
	return f.recover(ctx, g, g.Scopes)
}

func (f *TokenExchangeFlow) refreshGrant(ctx context.Context, client *oauth2client.OAuth2Client, req TokenRequest) (issuance, error) {
	if req.RefreshToken == "" {
		return issuance{}, badRequest(ErrorInvalidRequest, "The mandatory 'refresh_token' parameter is missing.")
	}
	// consuming revokes the presented token; a new one is issued below
	g, err := f.grants.Consume(ctx, KindRefreshToken, req.RefreshToken)
	if errors.Is(err, ErrGrantNotFound) {
		return issuance{}, invalidGrant("The refresh token is no longer valid.")
	}
	if err != nil {
		return issuance{}, err
	}
	if g.Expired(f.now()) || g.ClientID != client.ClientID {
		return issuance{}, invalidGrant("The refresh token is no longer valid.")
	}
	scopes := fosite.Arguments(g.Scopes)
	if len(req.Scopes) > 0 {
		for _, s := range req.Scopes {
			if !scopes.Has(s) {
				return issuance{}, forbidden(ErrorInvalidScope, "The requested scope exceeds the original grant.")
			}
		}
		scopes = req.Scopes
	}
	return f.recover(ctx, g, scopes)
}

func (f *TokenExchangeFlow) deviceGrant(ctx context.Context, client *oauth2client.OAuth2Client, req TokenRequest) (issuance, error) {
	if req.DeviceCode == "" {
		return issuance{}, badRequest(ErrorInvalidRequest, "The mandatory 'device_code' parameter is missing.")
	}
	g, err := f.grants.Get(ctx, KindDeviceCode, req.DeviceCode)
	if errors.Is(err, ErrGrantNotFound) {
		return issuance{}, badRequest(ErrorExpiredToken, "The device code is no longer valid.")
	}
	if err != nil {
		return issuance{}, err
	}
	if g.ClientID != client.ClientID {
		return issuance{}, invalidGrant("The device code was issued to another client.")
	}
	if g.Expired(f.now()) {
		return issuance{}, badRequest(ErrorExpiredToken, "The device code is no longer valid.")
	}

	switch g.DeviceStatus {
	case DeviceApproved:
		if g, err = f.grants.Consume(ctx, KindDeviceCode, req.DeviceCode); err != nil {
			return issuance{}, invalidGrant("The device code is no longer valid.")
		}
		return f.recover(ctx, g, g.Scopes)
	case DeviceDenied:
		_ = f.grants.Delete(ctx, KindDeviceCode, req.DeviceCode)
		return issuance{}, forbidden(ErrorAccessDenied, "The authorization was denied by the end user.")
	default:
		return issuance{}, badRequest(ErrorAuthorizationPending, "The authorization has not been completed yet.")
	}
}

// recover resolves the principal stored with a grant against the current user state
func (f *TokenExchangeFlow) recover(ctx context.Context, g *Grant, scopes fosite.Arguments) (issuance, error) {
	u, err := f.users.FindByID(ctx, g.Subject)
	if errors.Is(err, user.ErrUserNotFound) {
		return issuance{}, invalidGrant("The token is no longer valid.")
	}
	if err != nil {
		return issuance{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !f.users.CanSignIn(u) {
		return issuance{}, invalidGrant("The user is no longer allowed to sign in.")
	}
	return issuance{
		// roles come from u; the grant only narrows them to a role u still holds
		source:    claims.SourceFor(u, g.External),
		scopes:    scopes,
		nonce:     g.Nonce,
		consentID: g.ConsentID,
		authTime:  g.AuthTime,
	}, nil
}

// issue rebuilds the claims from the current account and signs the tokens
func (f *TokenExchangeFlow) issue(ctx context.Context, client *oauth2client.OAuth2Client, iss issuance) (*TokenResponse, error) {
	set, err := f.builder.Build(ctx, iss.source, iss.scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to build claims: %w", err)
	}
	if iss.consentID != "" {
		set.Replace(claims.TypeConsentID, iss.consentID)
	}
	set.ApplyDestinations(iss.scopes)
	if err := set.Validate(); err != nil {
		return nil, err
	}

	scope := strings.Join(iss.scopes, " ")
	access, err := f.tokens.GenerateAccessToken(ctx, client.ClientID, scope, set.AccessTokenClaims())
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	resp := &TokenResponse{
		AccessToken: access.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int(f.tokens.AccessTokenLifetime().Seconds()),
		Scope:       scope,
	}

	if iss.scopes.Has(claims.ScopeOpenID) {
		idClaims := set.IDTokenClaims()
		if !iss.authTime.IsZero() {
			idClaims["auth_time"] = iss.authTime.Unix()
		}
		id, err := f.tokens.GenerateIDToken(ctx, client.ClientID, iss.nonce, idClaims)
		if err != nil {
			return nil, fmt.Errorf("failed to issue identity token: %w", err)
		}
		resp.IDToken = id.Value
	}

	if iss.scopes.Has(claims.ScopeOfflineAccess) && client.AllowsGrant(oauth2client.GrantRefreshToken) {
		refresh, err := randomToken()
		if err != nil {
			return nil, err
		}
		now := f.now().UTC()
		ext := claims.ExternalClaims{}
		if e, ok := iss.source.(claims.External); ok {
			ext = e.Identity
		}
		grant := &Grant{
			Kind:      KindRefreshToken,
			ClientID:  client.ClientID,
			Subject:   set.Subject(),
			Scopes:    slices.Clone([]string(iss.scopes)),
			External:  ext,
			ConsentID: iss.consentID,
			AuthTime:  iss.authTime,
			CreatedAt: now,
			ExpiresAt: now.Add(f.refreshLifetime),
		}
		if err := f.grants.Save(ctx, refresh, grant); err != nil {
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}
		resp.RefreshToken = refresh
	}

	slog.Info("Tokens issued", "client_id", client.ClientID, "user_id", set.Subject(), "scope", scope)
	return resp, nil
}
