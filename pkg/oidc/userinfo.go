package oidc

import (
	"context"
	"errors"
	"net/http"

	"github.com/tendant/edu-idm/pkg/tokengenerator"
	"github.com/tendant/edu-idm/pkg/user"
)

// registered JWT claims and token plumbing never returned from userinfo
var userInfoExcluded = map[string]bool{
	"iss": true, "aud": true, "exp": true, "iat": true, "nbf": true, "jti": true,
	"scope": true, "consent_id": true, "auth_time": true, "nonce": true,
}

// UserInfo resolves a bearer access token into the claims it carries, provided the
// account still exists and may sign in
func UserInfo(ctx context.Context, tokens *tokengenerator.RSATokenGenerator, users *user.UserService, accessToken string) (map[string]any, error) {
	invalid := protocolError(ErrorInvalidToken, "The access token is invalid.", http.StatusUnauthorized)
	if accessToken == "" {
		return nil, invalid
	}
	tokenClaims, err := tokens.ParseToken(ctx, accessToken)
	if err != nil {
		return nil, invalid
	}
	sub, _ := tokenClaims["sub"].(string)
	u, err := users.FindByID(ctx, sub)
	if errors.Is(err, user.ErrUserNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if !users.CanSignIn(u) {
		return nil, invalid
	}

	out := make(map[string]any, len(tokenClaims))
	for k, v := range tokenClaims {
		if !userInfoExcluded[k] {
			out[k] = v
		}
	}
	return out, nil
}
