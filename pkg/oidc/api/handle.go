package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/ory/fosite"

	idmerrors "github.com/tendant/edu-idm/pkg/errors"
	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/oidc"
	"github.com/tendant/edu-idm/pkg/session"
	"github.com/tendant/edu-idm/pkg/tokengenerator"
	"github.com/tendant/edu-idm/pkg/user"
)

const (
	fieldAccept = "submit.Accept"
	fieldDeny   = "submit.Deny"
	fieldXSRF   = "xsrf"
)

// ErrorResponse is the OAuth2 error body
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type Option func(*Handle)

// WithLoginURL sets the page unauthenticated users are sent to; it receives return_url
func WithLoginURL(u string) Option {
	return func(h *Handle) {
		h.loginURL = u
	}
}

// WithPostLogoutRedirectURL sets where logout goes when the client names no registered URI
func WithPostLogoutRedirectURL(u string) Option {
	return func(h *Handle) {
		h.postLogoutURL = u
	}
}

// WithBasePath sets the mount point of these routes, used to build return URLs
func WithBasePath(p string) Option {
	return func(h *Handle) {
		h.basePath = strings.TrimSuffix(p, "/")
	}
}

func WithDeviceFlow(device *oidc.DeviceFlow) Option {
	return func(h *Handle) {
		h.device = device
	}
}

func WithUserInfo(tokens *tokengenerator.RSATokenGenerator, users *user.UserService) Option {
	return func(h *Handle) {
		h.tokens = tokens
		h.users = users
	}
}

// Handle serves the /connect endpoints
type Handle struct {
	sessions      *session.Manager
	clients       *oauth2client.ClientService
	authorize     *oidc.AuthorizeFlow
	exchange      *oidc.TokenExchangeFlow
	device        *oidc.DeviceFlow
	tokens        *tokengenerator.RSATokenGenerator
	users         *user.UserService
	loginURL      string
	postLogoutURL string
	basePath      string
}

func NewHandle(sessions *session.Manager, clients *oauth2client.ClientService, authorize *oidc.AuthorizeFlow, exchange *oidc.TokenExchangeFlow, opts ...Option) *Handle {
	h := &Handle{
		sessions:      sessions,
		clients:       clients,
		authorize:     authorize,
		exchange:      exchange,
		loginURL:      "/account/login",
		postLogoutURL: "/",
		basePath:      "/connect",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessions.Middleware)

	r.Get("/authorize", h.Authorize)
	r.Post("/authorize", h.Authorize)
	r.Post("/token", h.Token)
	r.Get("/logout", h.Logout)
	r.Post("/logout", h.Logout)
	if h.tokens != nil {
		r.Get("/userinfo", h.UserInfo)
		r.Post("/userinfo", h.UserInfo)
	}
	if h.device != nil {
		r.Post("/device", h.DeviceAuthorization)
		r.Get("/verify", h.Verify)
		r.Post("/verify", h.Verify)
	}
	return r
}

// Authorize handles GET/POST /connect/authorize, including the consent form submission
func (h *Handle) Authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The request could not be parsed.", CodeField: http.StatusBadRequest})
		return
	}
	params := cloneForm(r.Form)
	accept := params.Has(fieldAccept)
	deny := params.Has(fieldDeny)
	xsrf := params.Get(fieldXSRF)
	params.Del(fieldAccept)
	params.Del(fieldDeny)
	params.Del(fieldXSRF)

	req, err := oidc.ParseAuthorizeRequest(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	p := session.FromContext(ctx)

	var out oidc.Outcome
	switch {
	case r.Method == http.MethodPost && (accept || deny):
		if p != nil && (xsrf == "" || xsrf != p.XSRF) {
			slog.Warn("Consent submission with invalid anti-forgery token", "user_id", p.Subject, "client_id", req.ClientID)
			writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The anti-forgery token is invalid.", CodeField: http.StatusBadRequest})
			return
		}
		if deny {
			out = h.authorize.Deny(ctx, req)
		} else {
			out, err = h.authorize.Accept(ctx, req, p)
		}
	default:
		out, err = h.authorize.Authorize(ctx, req, p)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.renderOutcome(w, r, out)
}

func (h *Handle) renderOutcome(w http.ResponseWriter, r *http.Request, out oidc.Outcome) {
	switch out.Kind {
	case oidc.OutcomeChallenge:
		http.Redirect(w, r, withReturnURL(h.loginURL, h.authorizeURL(out.Parameters)), http.StatusFound)
	case oidc.OutcomeExternalChallenge:
		target := "/external/" + url.PathEscape(out.Provider) + "/challenge"
		http.Redirect(w, r, withReturnURL(target, h.authorizeURL(out.Parameters)), http.StatusFound)
	case oidc.OutcomeAutoSignIn:
		http.Redirect(w, r, out.RedirectURL, http.StatusFound)
	case oidc.OutcomeRenderConsent:
		w.Header().Set("Cache-Control", "no-store")
		render.JSON(w, r, out.Consent)
	case oidc.OutcomeForbidden:
		writeError(w, r, out.Error)
	default:
		writeError(w, r, idmerrors.Newf(idmerrors.ErrCodeInternal, "unexpected authorize outcome %q", out.Kind))
	}
}

func (h *Handle) authorizeURL(params url.Values) string {
	return h.basePath + "/authorize?" + params.Encode()
}

// Token handles POST /connect/token
func (h *Handle) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The request could not be parsed.", CodeField: http.StatusBadRequest})
		return
	}
	clientID, secret := clientCredentials(r)
	req := oidc.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		ClientID:     clientID,
		ClientSecret: secret,
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		DeviceCode:   r.PostForm.Get("device_code"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
		Scopes:       fosite.Arguments(strings.Fields(r.PostForm.Get("scope"))),
	}

	resp, err := h.exchange.Exchange(r.Context(), req)
	w.Header().Set("Cache-Control", "no-store")
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Logout handles GET/POST /connect/logout
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if p := session.FromContext(r.Context()); p != nil {
		slog.Info("User signed out", "user_id", p.Subject)
	}
	h.sessions.SignOut(w)

	target := h.postLogoutURL
	if uri := r.Form.Get("post_logout_redirect_uri"); uri != "" {
		if _, ok := h.clients.FindPostLogoutRedirect(r.Context(), uri); ok {
			target = uri
			if state := r.Form.Get("state"); state != "" {
				target = appendQuery(uri, url.Values{"state": {state}})
			}
		} else {
			slog.Warn("Ignoring unregistered post logout redirect", "uri", uri)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// UserInfo handles GET/POST /connect/userinfo with a bearer access token
func (h *Handle) UserInfo(w http.ResponseWriter, r *http.Request) {
	result, err := oidc.UserInfo(r.Context(), h.tokens, h.users, jwtauth.TokenFromHeader(r))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// DeviceAuthorization handles POST /connect/device
func (h *Handle) DeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The request could not be parsed.", CodeField: http.StatusBadRequest})
		return
	}
	clientID, secret := clientCredentials(r)
	resp, err := h.device.Authorize(r.Context(), clientID, secret, fosite.Arguments(strings.Fields(r.PostForm.Get("scope"))))
	w.Header().Set("Cache-Control", "no-store")
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

type verifyView struct {
	*oidc.PendingDevice
	XSRF string `json:"xsrf"`
}

type verifyResult struct {
	Status string `json:"status"`
}

// Verify handles GET/POST /connect/verify where a signed-in user approves a device
func (h *Handle) Verify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	userCode := r.Form.Get("user_code")
	p := session.FromContext(ctx)
	if p == nil {
		back := h.basePath + "/verify?" + url.Values{"user_code": {userCode}}.Encode()
		http.Redirect(w, r, withReturnURL(h.loginURL, back), http.StatusFound)
		return
	}

	if r.Method == http.MethodGet {
		pending, err := h.device.Lookup(ctx, userCode)
		if err != nil {
			writeDeviceError(w, r, err)
			return
		}
		render.JSON(w, r, verifyView{PendingDevice: pending, XSRF: p.XSRF})
		return
	}

	if xsrf := r.PostForm.Get(fieldXSRF); xsrf == "" || xsrf != p.XSRF {
		writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The anti-forgery token is invalid.", CodeField: http.StatusBadRequest})
		return
	}
	var err error
	status := "approved"
	if r.PostForm.Has(fieldDeny) {
		status = "denied"
		err = h.device.Deny(ctx, userCode)
	} else {
		err = h.device.Approve(ctx, userCode, p)
	}
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}
	render.JSON(w, r, verifyResult{Status: status})
}

func writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, oidc.ErrUnknownUserCode) {
		writeError(w, r, &fosite.RFC6749Error{ErrorField: oidc.ErrorInvalidRequest, DescriptionField: "The user code is invalid or expired.", CodeField: http.StatusBadRequest})
		return
	}
	writeError(w, r, err)
}

// writeError renders protocol errors as-is and hides the details of integrity errors
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		status := rfcErr.CodeField
		if status == 0 {
			status = http.StatusBadRequest
		}
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{Error: rfcErr.ErrorField, ErrorDescription: rfcErr.DescriptionField})
		return
	}

	var idmErr *idmerrors.Error
	if errors.As(err, &idmErr) {
		status := idmErr.HTTPStatusCode()
		slog.Error("Request failed", "code", idmErr.Code, "status", status, "error", err)
		if status < http.StatusInternalServerError {
			render.Status(r, status)
			render.JSON(w, r, ErrorResponse{Error: oidc.ErrorInvalidRequest, ErrorDescription: idmErr.Message})
			return
		}
		render.Status(r, status)
		render.JSON(w, r, ErrorResponse{Error: "server_error", ErrorDescription: "The server is not able to process the request."})
		return
	}

	slog.Error("Request failed", "error", err)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Error: "server_error", ErrorDescription: "The server is not able to process the request."})
}

// clientCredentials prefers HTTP basic authentication over form fields
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
		return id, secret
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
}

func withReturnURL(target, returnURL string) string {
	return appendQuery(target, url.Values{"return_url": {returnURL}})
}

func appendQuery(target string, values url.Values) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + values.Encode()
}

func cloneForm(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
