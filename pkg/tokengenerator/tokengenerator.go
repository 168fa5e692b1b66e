package tokengenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tendant/edu-idm/pkg/jwks"
)

const (
	DefaultAccessTokenLifetime = time.Hour
	DefaultIDTokenLifetime     = 20 * time.Minute
)

var ErrInvalidToken = errors.New("invalid token")

// reserved claims are owned by the signer and never taken from the claim map
var reserved = map[string]bool{"iss": true, "aud": true, "exp": true, "iat": true, "nbf": true, "jti": true}

type Option func(*RSATokenGenerator)

func WithAccessTokenLifetime(d time.Duration) Option {
	return func(g *RSATokenGenerator) {
		g.accessLifetime = d
	}
}

func WithIDTokenLifetime(d time.Duration) Option {
	return func(g *RSATokenGenerator) {
		g.idLifetime = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *RSATokenGenerator) {
		g.now = now
	}
}

// RSATokenGenerator signs access and identity tokens with the active JWKS key
type RSATokenGenerator struct {
	keys           *jwks.JWKSService
	issuer         string
	accessLifetime time.Duration
	idLifetime     time.Duration
	now            func() time.Time
}

func NewRSATokenGenerator(keys *jwks.JWKSService, issuer string, opts ...Option) *RSATokenGenerator {
	g := &RSATokenGenerator{
		keys:           keys,
		issuer:         issuer,
		accessLifetime: DefaultAccessTokenLifetime,
		idLifetime:     DefaultIDTokenLifetime,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Token is a signed JWT and its expiry
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (g *RSATokenGenerator) AccessTokenLifetime() time.Duration {
	return g.accessLifetime
}

// GenerateAccessToken signs claims for the resource audience; scope is space separated
func (g *RSATokenGenerator) GenerateAccessToken(ctx context.Context, audience string, scope string, claims map[string]any) (Token, error) {
	extra := map[string]any{"scope": scope}
	return g.sign(ctx, audience, g.accessLifetime, claims, extra)
}

// GenerateIDToken signs claims for the client; nonce is echoed when present
func (g *RSATokenGenerator) GenerateIDToken(ctx context.Context, clientID, nonce string, claims map[string]any) (Token, error) {
	extra := map[string]any{}
	if nonce != "" {
		extra["nonce"] = nonce
	}
	return g.sign(ctx, clientID, g.idLifetime, claims, extra)
}

func (g *RSATokenGenerator) sign(ctx context.Context, audience string, lifetime time.Duration, claims, extra map[string]any) (Token, error) {
	key, err := g.keys.GetActiveSigningKey(ctx)
	if err != nil {
		return Token{}, fmt.Errorf("failed to get signing key: %w", err)
	}

	now := g.now().UTC()
	expires := now.Add(lifetime)
	mc := jwt.MapClaims{}
	for k, v := range claims {
		if !reserved[k] {
			mc[k] = v
		}
	}
	for k, v := range extra {
		mc[k] = v
	}
	mc["iss"] = g.issuer
	mc["aud"] = audience
	mc["iat"] = jwt.NewNumericDate(now)
	mc["nbf"] = jwt.NewNumericDate(now)
	mc["exp"] = jwt.NewNumericDate(expires)
	mc["jti"] = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = key.Kid

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		slog.Error("Failed to sign RSA JWT token", "err", err)
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: expires}, nil
}

// ParseToken verifies a token issued by this server and returns its claims
func (g *RSATokenGenerator) ParseToken(ctx context.Context, tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := g.keys.GetKeyByID(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("unknown key id %q: %w", kid, err)
		}
		return key.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
