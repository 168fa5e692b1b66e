package externallogin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/idgovua"
	"github.com/tendant/edu-idm/pkg/metrics"
	"github.com/tendant/edu-idm/pkg/session"
	"github.com/tendant/edu-idm/pkg/user"
)

const (
	DefaultExternalRole = "external"

	MessageExternalFailed = "External authentication failed. Please try again."
	MessageAccountBlocked = "This account is not allowed to sign in."
)

type ResultKind string

const (
	ResultLoginView ResultKind = "login_view"
	ResultSignIn    ResultKind = "sign_in"
)

// LoginView is the login page model shown again after a failed external login.
// It keeps what the user had already chosen.
type LoginView struct {
	Error      string                    `json:"error"`
	ErrorKind  string                    `json:"error_kind,omitempty"`
	StatusCode int                       `json:"status_code,omitempty"`
	Schemes    []externalidentity.Scheme `json:"schemes"`
	ReturnURL  string                    `json:"return_url,omitempty"`
	Role       string                    `json:"role,omitempty"`
	Provider   string                    `json:"provider,omitempty"`
}

// CallbackResult either signs Principal in and redirects, or renders View
type CallbackResult struct {
	Kind        ResultKind
	Principal   *session.Principal
	RedirectURL string
	View        *LoginView
	// Created reports that a local account was provisioned for the external identity
	Created bool
}

type Option func(*Service)

// WithDefaultRole sets the role given to accounts created on first external login
func WithDefaultRole(role string) Option {
	return func(s *Service) {
		s.defaultRole = role
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service completes external logins against local accounts
type Service struct {
	bridge      *externalidentity.Bridge
	registry    *externalidentity.Registry
	users       *user.UserService
	defaultRole string
	metrics     *metrics.Metrics
}

func NewService(bridge *externalidentity.Bridge, registry *externalidentity.Registry, users *user.UserService, opts ...Option) *Service {
	s := &Service{
		bridge:      bridge,
		registry:    registry,
		users:       users,
		defaultRole: DefaultExternalRole,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Callback handles the return from an external provider. ticketErr is the failure of
// the handshake itself; ticket is nil in that case.
func (s *Service) Callback(ctx context.Context, ticket *externalidentity.Ticket, ticketErr error) CallbackResult {
	if ticketErr != nil || ticket == nil {
		slog.Warn("External authentication failed", "error", ticketErr)
		return s.failed(ticket, "ticket", &LoginView{Error: MessageExternalFailed, StatusCode: http.StatusUnauthorized})
	}

	identity, authErr := s.bridge.Resolve(ctx, ticket).Get()
	if authErr != nil {
		slog.Warn("External identity could not be resolved", "scheme", ticket.Scheme, "kind", authErr.Kind.String(), "status", authErr.StatusCode, "error", authErr)
		return s.failed(ticket, authErr.Kind.String(), &LoginView{
			Error:      authErr.Message,
			ErrorKind:  authErr.Kind.String(),
			StatusCode: authErr.StatusCode,
		})
	}

	u, created, err := s.findOrCreate(ctx, identity)
	if err != nil {
		slog.Error("Failed to provision external user", "scheme", ticket.Scheme, "error", err)
		return s.failed(ticket, "provision", &LoginView{Error: err.Error(), StatusCode: http.StatusInternalServerError})
	}
	if !s.users.CanSignIn(u) {
		slog.Warn("Blocked user attempted external login", "user_id", u.ID)
		return s.failed(ticket, "blocked", &LoginView{Error: MessageAccountBlocked, StatusCode: http.StatusForbidden})
	}

	p := session.PrincipalFor(u)
	p.IdentityProvider = ticket.Scheme
	p.External = claims.ExternalClaimsFrom(ticket.Scheme, ticket.SelectedRole(), identity).HeldBy(u)
	if selected := ticket.SelectedRole(); selected != "" && p.External.Role == "" {
		slog.Warn("Selected role is not held by the user", "user_id", u.ID, "role", selected)
	}

	redirect := ticket.RedirectURI()
	if redirect == "" {
		redirect = "/"
	}
	s.metrics.ObserveExternalLogin("success")
	slog.Info("External login succeeded", "user_id", u.ID, "scheme", ticket.Scheme, "created", created)
	return CallbackResult{Kind: ResultSignIn, Principal: &p, RedirectURL: redirect, Created: created}
}

// findOrCreate correlates on the tax id, which is the local user name of external accounts
func (s *Service) findOrCreate(ctx context.Context, identity idgovua.VerifiedIdentity) (user.User, bool, error) {
	if identity.TaxID == "" {
		return user.User{}, false, errors.New("the external identity has no tax id")
	}
	u, err := s.users.FindByName(ctx, identity.TaxID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, user.ErrUserNotFound) {
		return user.User{}, false, err
	}

	u, err = s.users.Create(ctx, user.NewUser{
		UserName:       identity.TaxID,
		Email:          identity.Email,
		FirstName:      identity.GivenName,
		LastName:       identity.FamilyName,
		MiddleName:     identity.MiddleName,
		IsRegistered:   false,
		EmailConfirmed: false,
	})
	if err != nil {
		return user.User{}, false, err
	}
	if err := s.users.AddToRole(ctx, u.ID, s.defaultRole); err != nil {
		return user.User{}, false, err
	}
	s.metrics.IncrementUsersCreated()
	u.Roles = append(u.Roles, s.defaultRole)
	return u, true, nil
}

func (s *Service) failed(ticket *externalidentity.Ticket, reason string, view *LoginView) CallbackResult {
	s.metrics.ObserveExternalLogin(reason)
	view.Schemes = s.registry.Schemes()
	if ticket != nil {
		view.ReturnURL, _ = ticket.Property(externalidentity.PropertyReturnURL)
		view.Role = ticket.SelectedRole()
		view.Provider = ticket.Scheme
	}
	return CallbackResult{Kind: ResultLoginView, View: view}
}
