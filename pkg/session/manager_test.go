package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/user"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSignInAuthenticate(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	m, err := NewManager(testSecret, WithClock(func() time.Time { return now }), WithSecureCookie(false))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	signed, err := m.SignIn(rec, Principal{
		Subject:          "6f1c2f43-3d4e-4a8b-9a51-5a0d8f6b1e01",
		Name:             "Koval Olena",
		Email:            "olena@example.com",
		Roles:            []string{"parent", "provider"},
		IdentityProvider: "idgovua",
		External:         claims.ExternalClaims{Provider: "idgovua", Role: "provider", TaxID: "1234567890"},
	})
	require.NoError(t, err)
	assert.Equal(t, now, signed.AuthTime)
	assert.NotEmpty(t, signed.XSRF)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	p, err := m.Authenticate(requestWithCookies(rec))
	require.NoError(t, err)
	assert.Equal(t, signed.Subject, p.Subject)
	assert.Equal(t, "Koval Olena", p.Name)
	assert.Equal(t, []string{"parent", "provider"}, p.Roles)
	assert.Equal(t, now.Unix(), p.AuthTime.Unix())
	assert.Equal(t, signed.XSRF, p.XSRF)
	assert.Equal(t, "idgovua", p.IdentityProvider)
	assert.True(t, p.IsExternal())
	assert.Equal(t, "1234567890", p.External.TaxID)
}

func TestAuthenticateRejects(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	m, err := NewManager(testSecret, WithClock(func() time.Time { return now }), WithLifetime(time.Hour))
	require.NoError(t, err)

	_, err = m.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, ErrNoSession)

	rec := httptest.NewRecorder()
	_, err = m.SignIn(rec, Principal{Subject: "abc"})
	require.NoError(t, err)

	other, err := NewManager([]byte("ffffffffffffffffffffffffffffffff"), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = other.Authenticate(requestWithCookies(rec))
	assert.Error(t, err, "signed with a different secret")

	now = now.Add(2 * time.Hour)
	_, err = m.Authenticate(requestWithCookies(rec))
	assert.Error(t, err, "expired")

	_, err = NewManager([]byte("short"))
	assert.Error(t, err)
}

func TestSignOutClearsCookie(t *testing.T) {
	m, err := NewManager(testSecret)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.SignOut(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Empty(t, cookies[0].Value)
}

func TestMiddleware(t *testing.T) {
	m, err := NewManager(testSecret)
	require.NoError(t, err)

	var seen *Principal
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Nil(t, seen)

	rec := httptest.NewRecorder()
	_, err = m.SignIn(rec, Principal{Subject: "abc", Name: "A"})
	require.NoError(t, err)

	handler.ServeHTTP(httptest.NewRecorder(), requestWithCookies(rec))
	require.NotNil(t, seen)
	assert.Equal(t, "abc", seen.Subject)
}

func TestPrincipalHelpers(t *testing.T) {
	u := user.User{ID: uuid.New(), UserName: "u", Email: "u@example.com", FirstName: "U", Roles: []string{"parent"}}
	p := PrincipalFor(u)
	assert.Equal(t, u.ID.String(), p.Subject)
	assert.False(t, p.IsExternal())
	assert.IsType(t, claims.Local{}, p.ClaimSource(u))

	p.External = claims.ExternalClaims{TaxID: "1"}
	assert.IsType(t, claims.External{}, p.ClaimSource(u))

	var nilPrincipal *Principal
	assert.IsType(t, claims.Local{}, nilPrincipal.ClaimSource(u))
	assert.False(t, nilPrincipal.FreshFor(time.Hour, time.Now()))

	now := time.Now()
	p.AuthTime = now.Add(-30 * time.Minute)
	assert.True(t, p.FreshFor(time.Hour, now))
	assert.False(t, p.FreshFor(10*time.Minute, now))
}
