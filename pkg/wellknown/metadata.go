package wellknown

import (
	"strings"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/oauth2client"
)

// Config describes the public endpoint layout of the server
type Config struct {
	Issuer string
	// Scopes defaults to the standard scope set when empty
	Scopes []string
}

// ProviderMetadata is the OpenID Connect discovery document
type ProviderMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	PromptValuesSupported             []string `json:"prompt_values_supported"`
}

func NewProviderMetadata(config Config) ProviderMetadata {
	base := strings.TrimSuffix(config.Issuer, "/")
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{claims.ScopeOpenID, claims.ScopeProfile, claims.ScopeEmail, claims.ScopeRoles, claims.ScopeOfflineAccess}
	}
	return ProviderMetadata{
		Issuer:                      config.Issuer,
		AuthorizationEndpoint:       base + "/connect/authorize",
		TokenEndpoint:               base + "/connect/token",
		UserinfoEndpoint:            base + "/connect/userinfo",
		EndSessionEndpoint:          base + "/connect/logout",
		DeviceAuthorizationEndpoint: base + "/connect/device",
		JwksURI:                     base + "/.well-known/jwks.json",
		ScopesSupported:             scopes,
		ClaimsSupported: []string{
			claims.TypeSubject, claims.TypeName, claims.TypeEmail, claims.TypePreferredUsername, claims.TypeRole,
			claims.TypeGivenName, claims.TypeFamilyName, claims.TypeMiddleName, claims.TypeTaxID, claims.TypeOrgCode,
			claims.TypePermissions, claims.TypeConsentID, claims.TypeIdentityProvider,
		},
		ResponseTypesSupported: []string{"code"},
		ResponseModesSupported: []string{"query", "form_post"},
		GrantTypesSupported: []string{
			oauth2client.GrantAuthorizationCode,
			oauth2client.GrantRefreshToken,
			oauth2client.GrantPassword,
			oauth2client.GrantDeviceCode,
		},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		PromptValuesSupported:             []string{"none", "login", "consent"},
	}
}
