package wellknown

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/edu-idm/pkg/jwks"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	key, err := jwks.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	keys, err := jwks.NewJWKSServiceWithKey(key)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/.well-known", NewHandler(Config{Issuer: "https://id.example.ua/"}, keys).Routes())
	return r
}

func TestOpenIDConfiguration(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var doc ProviderMetadata
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
	assert.Equal(t, "https://id.example.ua/connect/authorize", doc.AuthorizationEndpoint)
	assert.Equal(t, "https://id.example.ua/connect/device", doc.DeviceAuthorizationEndpoint)
	assert.Equal(t, "https://id.example.ua/.well-known/jwks.json", doc.JwksURI)
	assert.Equal(t, []string{"RS256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.Contains(t, doc.ScopesSupported, "roles")
	assert.Contains(t, doc.ClaimsSupported, "tax_id")
}

func TestJWKSEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var set jwks.JWKS
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RS256", set.Keys[0].Alg)
	assert.NotEmpty(t, set.Keys[0].Kid)
}
