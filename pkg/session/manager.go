package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const DefaultCookieName = "idm_session"

var ErrNoSession = errors.New("no session")

const (
	claimName     = "name"
	claimEmail    = "email"
	claimRoles    = "roles"
	claimAuthTime = "auth_time"
	claimIdP      = "idp"
	claimExternal = "ext"
	claimXSRF     = "xsrf"
)

type Option func(*Manager)

func WithCookieName(name string) Option {
	return func(m *Manager) {
		m.cookieName = name
	}
}

func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		m.lifetime = d
	}
}

func WithSecureCookie(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager issues and reads the HS256 session cookie
type Manager struct {
	auth       *jwtauth.JWTAuth
	cookieName string
	lifetime   time.Duration
	secure     bool
	now        func() time.Time
}

func NewManager(secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}
	m := &Manager{
		cookieName: DefaultCookieName,
		lifetime:   8 * time.Hour,
		secure:     true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.auth = jwtauth.New("HS256", secret, nil, jwt.WithClock(jwt.ClockFunc(m.now)), jwt.WithAcceptableSkew(30*time.Second))
	return m, nil
}

// SignIn writes the session cookie. AuthTime and XSRF are filled in when empty.
func (m *Manager) SignIn(w http.ResponseWriter, p Principal) (Principal, error) {
	now := m.now()
	if p.AuthTime.IsZero() {
		p.AuthTime = now
	}
	if p.XSRF == "" {
		p.XSRF = randomToken()
	}

	c := map[string]interface{}{
		jwt.SubjectKey: p.Subject,
		claimName:      p.Name,
		claimEmail:     p.Email,
		claimAuthTime:  p.AuthTime.Unix(),
		claimXSRF:      p.XSRF,
	}
	if len(p.Roles) > 0 {
		c[claimRoles] = p.Roles
	}
	if p.IdentityProvider != "" {
		c[claimIdP] = p.IdentityProvider
	}
	if !p.External.IsZero() {
		ext, err := json.Marshal(p.External)
		if err != nil {
			return Principal{}, fmt.Errorf("failed to encode external claims: %w", err)
		}
		c[claimExternal] = string(ext)
	}
	c[jwt.IssuedAtKey] = now
	expires := now.Add(m.lifetime)
	c[jwt.ExpirationKey] = expires

	_, token, err := m.auth.Encode(c)
	if err != nil {
		return Principal{}, fmt.Errorf("failed to encode session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return p, nil
}

// Authenticate reads and verifies the session cookie of r
func (m *Manager) Authenticate(r *http.Request) (*Principal, error) {
	raw := m.tokenFromCookie(r)
	if raw == "" {
		return nil, ErrNoSession
	}
	token, err := jwtauth.VerifyToken(m.auth, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return principalFromToken(token)
}

func (m *Manager) SignOut(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) tokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

type contextKey struct{}

// Middleware verifies the cookie once per request and stores the principal in the context.
// Requests without a valid session pass through unauthenticated.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	attach := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err == nil && token != nil {
			if p, perr := principalFromToken(token); perr == nil {
				r = r.WithContext(context.WithValue(r.Context(), contextKey{}, p))
			}
		}
		next.ServeHTTP(w, r)
	})
	return jwtauth.Verify(m.auth, m.tokenFromCookie)(attach)
}

// FromContext returns the principal stored by Middleware, or nil
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}

// NewContext stores p for handlers that run without Middleware
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func principalFromToken(token jwt.Token) (*Principal, error) {
	if token.Subject() == "" {
		return nil, fmt.Errorf("session has no subject")
	}
	private := token.PrivateClaims()

	p := &Principal{
		Subject:          token.Subject(),
		Name:             stringClaim(private, claimName),
		Email:            stringClaim(private, claimEmail),
		Roles:            stringsClaim(private, claimRoles),
		IdentityProvider: stringClaim(private, claimIdP),
		XSRF:             stringClaim(private, claimXSRF),
	}
	if secs, ok := numberClaim(private, claimAuthTime); ok {
		p.AuthTime = time.Unix(secs, 0)
	}
	if ext := stringClaim(private, claimExternal); ext != "" {
		if err := json.Unmarshal([]byte(ext), &p.External); err != nil {
			return nil, fmt.Errorf("failed to decode external claims: %w", err)
		}
	}
	return p, nil
}

func stringClaim(c map[string]interface{}, key string) string {
	s, _ := c[key].(string)
	return s
}

func stringsClaim(c map[string]interface{}, key string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func numberClaim(c map[string]interface{}, key string) (int64, bool) {
	switch v := c[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
