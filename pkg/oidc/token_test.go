package oidc

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/fosite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/edu-idm/pkg/claims"
	idmerrors "github.com/tendant/edu-idm/pkg/errors"
	"github.com/tendant/edu-idm/pkg/pkce"
)

func assertProtocolError(t *testing.T, err error, code string) {
	t.Helper()
	var rfcErr *fosite.RFC6749Error
	require.True(t, errors.As(err, &rfcErr), "expected a protocol error, got %v", err)
	assert.Equal(t, code, rfcErr.ErrorField)
}

func (f *fixture) codeFor(t *testing.T, clientID string, extra url.Values) string {
	t.Helper()
	out, err := f.authorize.Authorize(context.Background(), authorizeRequest(t, clientID, extra), f.principal())
	require.NoError(t, err)
	return codeFrom(t, out)
}

func TestAuthorizationCodeGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.codeFor(t, "journal", nil)

	req := TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     "journal",
		ClientSecret: testSecret,
		Code:         code,
		RedirectURI:  testRedirect,
	}
	resp, err := f.exchange.Exchange(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "openid profile roles offline_access", resp.Scope)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)

	access, err := f.signer.ParseToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID.String(), access["sub"])
	assert.Equal(t, "parent", access["role"])
	assert.NotEmpty(t, access["consent_id"])
	assert.NotContains(t, access, "security_stamp")

	id, err := f.signer.ParseToken(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "n-0S6_WzA2Mj", id["nonce"])
	assert.Equal(t, "parent", id["role"], "roles scope admits role into the identity token")
	assert.NotContains(t, id, "email", "email scope was not granted")

	_, err = f.exchange.Exchange(ctx, req)
	assertProtocolError(t, err, ErrorInvalidGrant)
}

func TestAuthorizationCodeBoundToClientAndRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code := f.codeFor(t, "journal", nil)
	_, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: code, RedirectURI: "https://portal.example.ua/other"})
	assertProtocolError(t, err, ErrorInvalidGrant)

	code = f.codeFor(t, "journal", nil)
	f.now = f.now.Add(DefaultCodeLifetime + time.Second)
	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: code, RedirectURI: testRedirect})
	assertProtocolError(t, err, ErrorInvalidGrant)
}

func TestAuthorizationCodeWithPKCE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	verifier, err := pkce.GenerateCodeVerifier()
	require.NoError(t, err)
	challenge := url.Values{
		"code_challenge":        {pkce.Challenge(verifier, pkce.MethodS256)},
		"code_challenge_method": {"S256"},
	}

	code := f.codeFor(t, "mobile", challenge)
	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "mobile", Code: code, RedirectURI: testRedirect, CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier"})
	assertProtocolError(t, err, ErrorInvalidGrant)

	code = f.codeFor(t, "mobile", challenge)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "mobile", Code: code, RedirectURI: testRedirect, CodeVerifier: verifier})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestRefreshGrantRebuildsClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.codeFor(t, "journal", nil)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: code, RedirectURI: testRedirect})
	require.NoError(t, err)

	require.NoError(t, f.userRepo.SetUserRoles(ctx, f.user.ID, []string{"provider"}))

	refreshReq := TokenRequest{GrantType: "refresh_token", ClientID: "journal", ClientSecret: testSecret, RefreshToken: resp.RefreshToken}
	refreshed, err := f.exchange.Exchange(ctx, refreshReq)
	require.NoError(t, err)
	access, err := f.signer.ParseToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "provider", access["role"], "role reflects the current account")

	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)
	_, err = f.exchange.Exchange(ctx, refreshReq)
	assertProtocolError(t, err, ErrorInvalidGrant)
}

func TestRefreshGrantRejectsBlockedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.codeFor(t, "journal", nil)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: code, RedirectURI: testRedirect})
	require.NoError(t, err)

	require.NoError(t, f.users.SetBlocked(ctx, f.user.ID, true))
	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: "journal", ClientSecret: testSecret, RefreshToken: resp.RefreshToken})
	assertProtocolError(t, err, ErrorInvalidGrant)
}

func TestRefreshGrantScopeNarrowing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.codeFor(t, "journal", nil)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: code, RedirectURI: testRedirect})
	require.NoError(t, err)

	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: "journal", ClientSecret: testSecret, RefreshToken: resp.RefreshToken, Scopes: fosite.Arguments{"email"}})
	assertProtocolError(t, err, ErrorInvalidScope)
}

func TestExternalClaimsSurviveCodeExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.AddToRole(ctx, f.user.ID, "provider"))
	p := f.principal()
	p.External = claims.ExternalClaims{Provider: "idgovua", Role: "provider", TaxID: "1234567", OrgCode: "EDU-01"}

	out, err := f.authorize.Authorize(ctx, authorizeRequest(t, "journal", nil), p)
	require.NoError(t, err)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: codeFrom(t, out), RedirectURI: testRedirect})
	require.NoError(t, err)

	access, err := f.signer.ParseToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "1234567", access["tax_id"])
	assert.Equal(t, "EDU-01", access["org_code"])
	assert.Equal(t, "provider", access["role"])
	assert.Equal(t, "idgovua", access["idp"])
}

func TestExternalRoleNotHeldIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.principal()
	p.External = claims.ExternalClaims{Provider: "idgovua", Role: "admin", TaxID: "1234567"}

	out, err := f.authorize.Authorize(ctx, authorizeRequest(t, "journal", nil), p)
	require.NoError(t, err)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: codeFrom(t, out), RedirectURI: testRedirect})
	require.NoError(t, err)

	access, err := f.signer.ParseToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "parent", access["role"])
	assert.Equal(t, "1234567", access["tax_id"])
}

func TestExternalRefreshFollowsRoleChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.AddToRole(ctx, f.user.ID, "provider"))
	p := f.principal()
	p.External = claims.ExternalClaims{Provider: "idgovua", Role: "provider", TaxID: "1234567", OrgCode: "EDU-01"}

	out, err := f.authorize.Authorize(ctx, authorizeRequest(t, "journal", nil), p)
	require.NoError(t, err)
	resp, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "authorization_code", ClientID: "journal", ClientSecret: testSecret, Code: codeFrom(t, out), RedirectURI: testRedirect})
	require.NoError(t, err)
	require.NotEmpty(t, resp.RefreshToken)

	require.NoError(t, f.userRepo.SetUserRoles(ctx, f.user.ID, []string{"parent"}))
	refreshed, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "refresh_token", ClientID: "journal", ClientSecret: testSecret, RefreshToken: resp.RefreshToken})
	require.NoError(t, err)

	access, err := f.signer.ParseToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "parent", access["role"])
	assert.Equal(t, "1234567", access["tax_id"])
	assert.Equal(t, "EDU-01", access["org_code"])
	assert.Equal(t, "idgovua", access["idp"])
}

func TestPasswordGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.exchange.Exchange(ctx, TokenRequest{
		GrantType: "password", ClientID: "portal", ClientSecret: testSecret,
		Username: "OLENA", Password: testPassword, Scopes: fosite.Arguments{"openid", "email", "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openid email", resp.Scope)
	assert.Empty(t, resp.RefreshToken)

	id, err := f.signer.ParseToken(ctx, resp.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "olena@example.ua", id["email"])

	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: "portal", ClientSecret: testSecret, Username: "olena", Password: "nope"})
	assertProtocolError(t, err, ErrorInvalidGrant)

	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: "portal", ClientSecret: testSecret, Username: "nobody", Password: testPassword})
	assertProtocolError(t, err, ErrorInvalidGrant)
}

func TestGrantMetricsUseFixedLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "x-" + uuid.NewString(), ClientID: "ghost"})
	assertProtocolError(t, err, ErrorInvalidClient)
	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: "portal", ClientSecret: testSecret, Username: "olena", Password: "nope"})
	assertProtocolError(t, err, ErrorInvalidGrant)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenGrants.WithLabelValues("other", ErrorInvalidClient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TokenGrants.WithLabelValues("password", ErrorInvalidGrant)))
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.TokenGrants))
}

func TestExchangeClientAndGrantChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exchange.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: "portal", ClientSecret: "wrong"})
	assertProtocolError(t, err, ErrorInvalidClient)

	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: "ghost"})
	assertProtocolError(t, err, ErrorInvalidClient)

	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "implicit", ClientID: "portal", ClientSecret: testSecret})
	assertProtocolError(t, err, ErrorUnsupportedGrantType)

	_, err = f.exchange.Exchange(ctx, TokenRequest{ClientID: "portal", ClientSecret: testSecret})
	assertProtocolError(t, err, ErrorInvalidRequest)

	// configured for client_credentials, which the server does not handle
	_, err = f.exchange.Exchange(ctx, TokenRequest{GrantType: "client_credentials", ClientID: "batch", ClientSecret: testSecret})
	require.Error(t, err)
	assert.True(t, idmerrors.IsCode(err, idmerrors.ErrCodeUnsupportedGrant))
}
