package oidc

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/consent"
	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/jwks"
	"github.com/tendant/edu-idm/pkg/login"
	"github.com/tendant/edu-idm/pkg/metrics"
	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/session"
	"github.com/tendant/edu-idm/pkg/tokengenerator"
	"github.com/tendant/edu-idm/pkg/user"
)

const (
	testRedirect = "https://portal.example.ua/callback"
	testSecret   = "s3cret"
	testPassword = "Passw0rd!"
)

type fixture struct {
	now       time.Time
	userRepo  *user.InMemoryUserRepository
	users     *user.UserService
	clients   *oauth2client.ClientService
	ledger    *consent.Ledger
	grants    *InMemoryGrantStore
	signer    *tokengenerator.RSATokenGenerator
	authorize *AuthorizeFlow
	exchange  *TokenExchangeFlow
	device    *DeviceFlow
	metrics   *metrics.Metrics
	user      user.User
}

func newClient(t *testing.T, id string, consentType oauth2client.ConsentType, grants ...string) *oauth2client.OAuth2Client {
	t.Helper()
	hash, err := oauth2client.HashSecret(testSecret)
	require.NoError(t, err)
	if len(grants) == 0 {
		grants = []string{
			oauth2client.GrantAuthorizationCode,
			oauth2client.GrantRefreshToken,
			oauth2client.GrantPassword,
			oauth2client.GrantDeviceCode,
		}
	}
	return &oauth2client.OAuth2Client{
		ClientID:     id,
		SecretHash:   hash,
		DisplayName:  "App " + id,
		ClientType:   oauth2client.ClientTypeConfidential,
		ConsentType:  consentType,
		RedirectURIs: []string{testRedirect},
		GrantTypes:   grants,
		Scopes:       []string{"openid", "profile", "email", "roles", "offline_access"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Now().UTC().Truncate(time.Second)}
	clock := func() time.Time { return f.now }

	public := newClient(t, "mobile", oauth2client.ConsentImplicit)
	public.ClientType = oauth2client.ClientTypePublic
	public.SecretHash = ""

	f.clients = oauth2client.NewClientService(oauth2client.NewInMemoryOAuth2ClientRepository(
		newClient(t, "portal", oauth2client.ConsentExplicit),
		newClient(t, "journal", oauth2client.ConsentImplicit),
		newClient(t, "registry", oauth2client.ConsentExternal),
		newClient(t, "statistics", oauth2client.ConsentSystematic),
		newClient(t, "batch", oauth2client.ConsentImplicit, oauth2client.GrantClientCredentials),
		public,
	))

	hasher := login.NewBcryptHasher(bcrypt.MinCost)
	f.userRepo = user.NewInMemoryUserRepository()
	f.users = user.NewUserService(f.userRepo, user.WithPasswordHasher(hasher))
	logins := login.NewLoginService(f.userRepo, f.users, login.WithPasswordHasher(hasher), login.WithClock(clock))

	u, err := f.users.Create(ctx, user.NewUser{
		UserName:  "olena",
		Email:     "olena@example.ua",
		FirstName: "Olena",
		LastName:  "Kovalenko",
		Password:  testPassword,
	})
	require.NoError(t, err)
	require.NoError(t, f.users.AddToRole(ctx, u.ID, "parent"))
	f.user, err = f.users.FindByID(ctx, u.ID.String())
	require.NoError(t, err)

	key, err := jwks.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	keys, err := jwks.NewJWKSServiceWithKey(key)
	require.NoError(t, err)
	f.signer = tokengenerator.NewRSATokenGenerator(keys, "https://id.example.ua", tokengenerator.WithClock(clock))

	f.ledger = consent.NewLedger(consent.NewInMemoryRepository(), consent.WithClock(clock))
	f.grants = NewInMemoryGrantStore()
	builder := claims.NewBuilder()
	registry := externalidentity.NewRegistry(&externalidentity.Provider{Scheme: "idgovua", DisplayName: "id.gov.ua"})

	f.authorize = NewAuthorizeFlow(f.clients, f.users, f.ledger, builder, registry, f.grants, WithAuthorizeClock(clock))
	f.metrics = metrics.New(prometheus.NewRegistry())
	f.exchange = NewTokenExchangeFlow(f.clients, f.users, logins, builder, f.signer, f.grants, WithTokenClock(clock), WithTokenMetrics(f.metrics))
	f.device = NewDeviceFlow(f.clients, f.grants, "https://id.example.ua/connect/verify", WithDeviceClock(clock))
	return f
}

func (f *fixture) principal() *session.Principal {
	p := session.PrincipalFor(f.user)
	p.AuthTime = f.now.Add(-time.Minute)
	p.XSRF = "xsrf-token"
	return &p
}

func authorizeRequest(t *testing.T, clientID string, extra url.Values) AuthorizeRequest {
	t.Helper()
	params := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {testRedirect},
		"response_type": {"code"},
		"scope":         {"openid profile roles offline_access"},
		"state":         {"af0ifjsldkj"},
		"nonce":         {"n-0S6_WzA2Mj"},
	}
	for k, v := range extra {
		params[k] = v
	}
	req, err := ParseAuthorizeRequest(params)
	require.NoError(t, err)
	return req
}

// codeFrom extracts the authorization code from an AutoSignIn redirect
func codeFrom(t *testing.T, out Outcome) string {
	t.Helper()
	require.Equal(t, OutcomeAutoSignIn, out.Kind)
	u, err := url.Parse(out.RedirectURL)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}
