package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/externallogin"
	"github.com/tendant/edu-idm/pkg/session"
)

// CallbackRouteName names the route external providers redirect back to
const CallbackRouteName = "ExternalLoginCallback"

// CallbackPath is the path of the ExternalLoginCallback route for scheme, under /external
func CallbackPath(scheme string) string {
	return "/external/" + scheme + "/callback"
}

type Handle struct {
	handshake *externalidentity.Handshake
	service   *externallogin.Service
	sessions  *session.Manager
}

func NewHandle(handshake *externalidentity.Handshake, service *externallogin.Service, sessions *session.Manager) *Handle {
	return &Handle{handshake: handshake, service: service, sessions: sessions}
}

func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{scheme}/challenge", h.Challenge)
	r.Get("/{scheme}/callback", h.Callback)
	return r
}

// Challenge handles GET /external/{scheme}/challenge?return_url=&role=
func (h *Handle) Challenge(w http.ResponseWriter, r *http.Request) {
	scheme := chi.URLParam(r, "scheme")
	returnURL := localURL(r.URL.Query().Get("return_url"))
	props := map[string]string{
		externalidentity.PropertyRedirectURI: returnURL,
		externalidentity.PropertyReturnURL:   returnURL,
		externalidentity.PropertyRole:        r.URL.Query().Get("role"),
	}

	target, err := h.handshake.Begin(r.Context(), scheme, props)
	if errors.Is(err, externalidentity.ErrUnknownScheme) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to start external login", "scheme", scheme, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback handles GET /external/{scheme}/callback, the ExternalLoginCallback route
func (h *Handle) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scheme := chi.URLParam(r, "scheme")
	q := r.URL.Query()

	var (
		ticket    *externalidentity.Ticket
		ticketErr error
	)
	if providerErr := q.Get("error"); providerErr != "" {
		ticketErr = fmt.Errorf("provider returned %s: %s", providerErr, q.Get("error_description"))
	} else {
		ticket, ticketErr = h.handshake.Complete(ctx, q.Get("state"), q.Get("code"))
		if ticketErr == nil && ticket.Scheme != scheme {
			ticket, ticketErr = nil, fmt.Errorf("ticket scheme %s does not match route scheme %s", ticket.Scheme, scheme)
		}
	}

	result := h.service.Callback(ctx, ticket, ticketErr)
	if result.Kind == externallogin.ResultLoginView {
		status := result.View.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		if result.View.Provider == "" {
			result.View.Provider = scheme
		}
		render.Status(r, status)
		render.JSON(w, r, result.View)
		return
	}

	if _, err := h.sessions.SignIn(w, *result.Principal); err != nil {
		slog.Error("Failed to sign in external user", "user_id", result.Principal.Subject, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// localURL keeps only same-site relative paths so the callback cannot redirect off-site
func localURL(u string) string {
	if u == "" || !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") || strings.HasPrefix(u, "/\\") {
		return "/"
	}
	return u
}
