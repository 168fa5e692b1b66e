package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/edu-idm/pkg/consent"
	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/login"
	"github.com/tendant/edu-idm/pkg/session"
)

const (
	MessageInvalidCredentials = "Username/Password is wrong"
	MessageAccountLocked      = "Account is temporarily locked. Try again later."
	MessageAccountBlocked     = "This account is not allowed to sign in."
)

// PostLoginRequest is accepted as JSON or as a form post
type PostLoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ReturnURL string `json:"return_url"`
}

// LoginView is the model of the local login page
type LoginView struct {
	Error     string                    `json:"error,omitempty"`
	ReturnURL string                    `json:"return_url"`
	Username  string                    `json:"username,omitempty"`
	Schemes   []externalidentity.Scheme `json:"schemes"`
}

type Handle struct {
	logins    *login.LoginService
	sessions  *session.Manager
	providers *externalidentity.Registry
	consents  *consent.Ledger
}

type Option func(*Handle)

// WithConsentLedger enables DELETE /consents/{client_id} for the signed-in user
func WithConsentLedger(ledger *consent.Ledger) Option {
	return func(h *Handle) {
		h.consents = ledger
	}
}

func NewHandle(logins *login.LoginService, sessions *session.Manager, providers *externalidentity.Registry, opts ...Option) *Handle {
	h := &Handle{logins: logins, sessions: sessions, providers: providers}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/login", h.GetLogin)
	r.Post("/login", h.PostLogin)
	r.Post("/logout", h.PostLogout)
	if h.consents != nil {
		r.With(h.sessions.Middleware).Delete("/consents/{client_id}", h.DeleteConsents)
	}
	return r
}

// GetLogin describes the login page: the return url and the available external schemes
func (h *Handle) GetLogin(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.view(localURL(r.URL.Query().Get("return_url")), "", ""))
}

func (h *Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	data, err := decodeLogin(r)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, h.view("/", "", "Unable to parse request body"))
		return
	}
	returnURL := localURL(data.ReturnURL)

	u, err := h.logins.PasswordSignIn(r.Context(), data.Username, data.Password)
	if err != nil {
		status, message := http.StatusBadRequest, MessageInvalidCredentials
		switch {
		case errors.Is(err, login.ErrAccountLocked):
			status, message = http.StatusTooManyRequests, MessageAccountLocked
		case errors.Is(err, login.ErrAccountBlocked):
			status, message = http.StatusForbidden, MessageAccountBlocked
		case !errors.Is(err, login.ErrInvalidCredentials):
			slog.Error("Login failed", "username", data.Username, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		slog.Info("Login rejected", "username", data.Username, "reason", err)
		render.Status(r, status)
		render.JSON(w, r, h.view(returnURL, data.Username, message))
		return
	}

	if _, err := h.sessions.SignIn(w, session.PrincipalFor(u)); err != nil {
		slog.Error("Failed to sign in", "user_id", u.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	slog.Info("Login succeeded", "user_id", u.ID)
	http.Redirect(w, r, returnURL, http.StatusFound)
}

func (h *Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(w)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConsents revokes the caller's consents for a client; the next authorization asks again
func (h *Handle) DeleteConsents(w http.ResponseWriter, r *http.Request) {
	p := session.FromContext(r.Context())
	if p == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	clientID := chi.URLParam(r, "client_id")
	revoked, err := h.consents.RevokeClient(r.Context(), p.Subject, clientID)
	if err != nil {
		slog.Error("Failed to revoke consents", "user_id", p.Subject, "client_id", clientID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	slog.Info("Consents revoked", "user_id", p.Subject, "client_id", clientID, "count", revoked)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handle) view(returnURL, username, message string) LoginView {
	v := LoginView{Error: message, ReturnURL: returnURL, Username: username}
	if h.providers != nil {
		v.Schemes = h.providers.Schemes()
	}
	return v
}

func decodeLogin(r *http.Request) (PostLoginRequest, error) {
	var data PostLoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := render.DecodeJSON(r.Body, &data)
		return data, err
	}
	if err := r.ParseForm(); err != nil {
		return data, err
	}
	data.Username = r.PostForm.Get("username")
	data.Password = r.PostForm.Get("password")
	data.ReturnURL = r.PostForm.Get("return_url")
	return data, nil
}

func localURL(u string) string {
	if u == "" || !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return "/"
	}
	return u
}
