package oauth2client

import (
	"errors"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrInvalidClientSecret = errors.New("invalid client credentials")
)

// ConsentType controls whether a client needs interactive approval
type ConsentType string

const (
	// ConsentImplicit never asks
	ConsentImplicit ConsentType = "implicit"
	// ConsentExplicit asks once and remembers the answer
	ConsentExplicit ConsentType = "explicit"
	// ConsentExternal requires a record provisioned out of band
	ConsentExternal ConsentType = "external"
	// ConsentSystematic asks every time
	ConsentSystematic ConsentType = "systematic"
)

const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Grant types
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantPassword          = "password"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	GrantClientCredentials = "client_credentials"
)

// OAuth2Client is a registered client application
type OAuth2Client struct {
	ClientID               string      `json:"client_id"`
	SecretHash             string      `json:"secret_hash,omitempty"`
	DisplayName            string      `json:"display_name"`
	ClientType             string      `json:"client_type"`
	ConsentType            ConsentType `json:"consent_type"`
	RedirectURIs           []string    `json:"redirect_uris"`
	PostLogoutRedirectURIs []string    `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes             []string    `json:"grant_types"`
	Scopes                 []string    `json:"scopes"`
	RequirePKCE            bool        `json:"require_pkce,omitempty"`
}

func (c *OAuth2Client) IsPublic() bool {
	return c.ClientType == ClientTypePublic
}

func (c *OAuth2Client) ValidateRedirectURI(redirectURI string) bool {
	return redirectURI != "" && slices.Contains(c.RedirectURIs, redirectURI)
}

func (c *OAuth2Client) ValidatePostLogoutRedirectURI(uri string) bool {
	return uri != "" && slices.Contains(c.PostLogoutRedirectURIs, uri)
}

func (c *OAuth2Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// ValidateScope checks that every requested scope is allowed for this client
func (c *OAuth2Client) ValidateScope(requested []string) bool {
	for _, s := range requested {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// FilterScopes keeps the requested scopes this client may receive, in request order
func (c *OAuth2Client) FilterScopes(requested []string) []string {
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(c.Scopes, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// CheckSecret compares secret with the stored bcrypt hash. Public clients have no secret.
func (c *OAuth2Client) CheckSecret(secret string) error {
	if c.IsPublic() {
		if secret != "" {
			return ErrInvalidClientSecret
		}
		return nil
	}
	if c.SecretHash == "" || secret == "" {
		return ErrInvalidClientSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)); err != nil {
		return ErrInvalidClientSecret
	}
	return nil
}

// HashSecret produces the SecretHash stored for a confidential client
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (c *OAuth2Client) clone() *OAuth2Client {
	out := *c
	out.RedirectURIs = slices.Clone(c.RedirectURIs)
	out.PostLogoutRedirectURIs = slices.Clone(c.PostLogoutRedirectURIs)
	out.GrantTypes = slices.Clone(c.GrantTypes)
	out.Scopes = slices.Clone(c.Scopes)
	return &out
}
