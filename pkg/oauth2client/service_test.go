package oauth2client

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portalClient() *OAuth2Client {
	return &OAuth2Client{
		ClientID:               "portal",
		DisplayName:            "Provider portal",
		ConsentType:            ConsentImplicit,
		RedirectURIs:           []string{"https://portal.example.ua/signin-oidc"},
		PostLogoutRedirectURIs: []string{"https://portal.example.ua/"},
		GrantTypes:             []string{GrantAuthorizationCode, GrantRefreshToken},
		Scopes:                 []string{"openid", "profile", "roles", "offline_access"},
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	service := NewClientService(NewInMemoryOAuth2ClientRepository())

	created, err := service.Register(ctx, portalClient(), "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, created.SecretHash)
	assert.Equal(t, ClientTypeConfidential, created.ClientType)

	client, err := service.Authenticate(ctx, "portal", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Provider portal", client.DisplayName)

	_, err = service.Authenticate(ctx, "portal", "wrong")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)
	_, err = service.Authenticate(ctx, "portal", "")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)
	_, err = service.Authenticate(ctx, "unknown", "s3cret")
	assert.ErrorIs(t, err, ErrClientNotFound)
	_, err = service.GetClient(ctx, "")
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = service.Register(ctx, portalClient(), "")
	assert.ErrorIs(t, err, ErrClientAlreadyExists)
}

func TestPublicClient(t *testing.T) {
	ctx := context.Background()
	spa := &OAuth2Client{ClientID: "spa", ClientType: ClientTypePublic, RequirePKCE: true}
	service := NewClientService(NewInMemoryOAuth2ClientRepository(spa))

	client, err := service.Authenticate(ctx, "spa", "")
	require.NoError(t, err)
	assert.True(t, client.IsPublic())

	_, err = service.Authenticate(ctx, "spa", "anything")
	assert.ErrorIs(t, err, ErrInvalidClientSecret)
}

func TestClientValidation(t *testing.T) {
	c := portalClient()

	assert.True(t, c.ValidateRedirectURI("https://portal.example.ua/signin-oidc"))
	assert.False(t, c.ValidateRedirectURI("https://evil.example.com/"))
	assert.False(t, c.ValidateRedirectURI(""))
	assert.True(t, c.ValidatePostLogoutRedirectURI("https://portal.example.ua/"))
	assert.True(t, c.AllowsGrant(GrantRefreshToken))
	assert.False(t, c.AllowsGrant(GrantPassword))
	assert.True(t, c.ValidateScope([]string{"openid", "roles"}))
	assert.False(t, c.ValidateScope([]string{"openid", "email"}))
	assert.Equal(t, []string{"openid", "roles"}, c.FilterScopes([]string{"openid", "email", "roles", "openid"}))
}

func TestReturnedClientsAreCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryOAuth2ClientRepository(portalClient())

	c, err := repo.GetClient(ctx, "portal")
	require.NoError(t, err)
	c.Scopes[0] = "mutated"

	again, err := repo.GetClient(ctx, "portal")
	require.NoError(t, err)
	assert.Equal(t, "openid", again.Scopes[0])
}

func TestFindPostLogoutRedirect(t *testing.T) {
	ctx := context.Background()
	service := NewClientService(NewInMemoryOAuth2ClientRepository(portalClient()))

	c, ok := service.FindPostLogoutRedirect(ctx, "https://portal.example.ua/")
	require.True(t, ok)
	assert.Equal(t, "portal", c.ClientID)

	_, ok = service.FindPostLogoutRedirect(ctx, "https://evil.example.com/")
	assert.False(t, ok)
	_, ok = service.FindPostLogoutRedirect(ctx, "")
	assert.False(t, ok)
}

func TestFileRepository(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clients", "oauth2_clients.json")

	repo, err := NewFileOAuth2ClientRepository(path)
	require.NoError(t, err)
	clients, err := repo.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)

	service := NewClientService(repo)
	_, err = service.Register(ctx, portalClient(), "s3cret")
	require.NoError(t, err)
	_, err = service.Register(ctx, &OAuth2Client{ClientID: "admin", ClientType: ClientTypePublic}, "")
	require.NoError(t, err)

	reloaded, err := NewFileOAuth2ClientRepository(path)
	require.NoError(t, err)
	clients, err = reloaded.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "admin", clients[0].ClientID)
	assert.Equal(t, ConsentExplicit, clients[0].ConsentType)

	_, err = NewClientService(reloaded).Authenticate(ctx, "portal", "s3cret")
	assert.NoError(t, err)
}

func TestFileRepositoryRejectsBadData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")

	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	_, err := NewFileOAuth2ClientRepository(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`[{"display_name":"nameless"}]`), 0o600))
	_, err = NewFileOAuth2ClientRepository(path)
	assert.Error(t, err)
}
