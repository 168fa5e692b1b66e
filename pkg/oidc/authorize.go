package oidc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/consent"
	idmerrors "github.com/tendant/edu-idm/pkg/errors"
	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/metrics"
	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/pkce"
	"github.com/tendant/edu-idm/pkg/session"
	"github.com/tendant/edu-idm/pkg/user"
)

const DefaultCodeLifetime = 5 * time.Minute

type AuthorizeOption func(*AuthorizeFlow)

func WithCodeLifetime(d time.Duration) AuthorizeOption {
	return func(f *AuthorizeFlow) {
		f.codeLifetime = d
	}
}

func WithAuthorizeClock(now func() time.Time) AuthorizeOption {
	return func(f *AuthorizeFlow) {
		f.now = now
	}
}

func WithAuthorizeMetrics(m *metrics.Metrics) AuthorizeOption {
	return func(f *AuthorizeFlow) {
		f.metrics = m
	}
}

// AuthorizeFlow decides what happens to an authorization request
type AuthorizeFlow struct {
	clients      *oauth2client.ClientService
	users        *user.UserService
	ledger       *consent.Ledger
	builder      *claims.Builder
	providers    *externalidentity.Registry
	grants       GrantStore
	metrics      *metrics.Metrics
	codeLifetime time.Duration
	now          func() time.Time
}

func NewAuthorizeFlow(
	clients *oauth2client.ClientService,
	users *user.UserService,
	ledger *consent.Ledger,
	builder *claims.Builder,
	providers *externalidentity.Registry,
	grants GrantStore,
	opts ...AuthorizeOption,
) *AuthorizeFlow {
	f := &AuthorizeFlow{
		clients:      clients,
		users:        users,
		ledger:       ledger,
		builder:      builder,
		providers:    providers,
		grants:       grants,
		codeLifetime: DefaultCodeLifetime,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authorize runs the authorization state machine for req. p is nil when the
// browser has no valid session. Integrity failures are returned as errors.
func (f *AuthorizeFlow) Authorize(ctx context.Context, req AuthorizeRequest, p *session.Principal) (Outcome, error) {
	client, rejected, err := f.validate(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if rejected != nil {
		return f.observe(*rejected), nil
	}

	if f.mustAuthenticate(req, p) {
		return f.observe(f.challenge(req)), nil
	}

	u, err := f.findUser(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	records, err := f.ledger.ValidPermanent(ctx, u.ID.String(), client.ClientID, req.Scopes)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to find consents: %w", err)
	}

	switch {
	case externalConsentMissing(client, records):
		return f.observe(forbiddenOutcome(ErrorConsentRequired,
			"The logged in user is not allowed to access this client application.")), nil

	case client.ConsentType == oauth2client.ConsentImplicit,
		client.ConsentType == oauth2client.ConsentExternal && len(records) > 0,
		client.ConsentType == oauth2client.ConsentExplicit && len(records) > 0 && !req.HasPrompt(PromptConsent):
		out, err := f.signIn(ctx, req, client, u, p, records)
		if err != nil {
			return Outcome{}, err
		}
		return f.observe(out), nil

	case (client.ConsentType == oauth2client.ConsentExplicit || client.ConsentType == oauth2client.ConsentSystematic) &&
		len(records) == 0 && req.HasPrompt(PromptNone):
		return f.observe(forbiddenOutcome(ErrorConsentRequired, "Interactive user consent is required.")), nil

	default:
		return f.observe(Outcome{
			Kind: OutcomeRenderConsent,
			Consent: &ConsentView{
				ApplicationName: client.DisplayName,
				ClientID:        client.ClientID,
				Scope:           req.ScopeString(),
				XSRF:            p.XSRF,
				Parameters:      cloneValues(req.Raw),
			},
		}), nil
	}
}

// Accept completes an interactive consent for the signed-in user
func (f *AuthorizeFlow) Accept(ctx context.Context, req AuthorizeRequest, p *session.Principal) (Outcome, error) {
	client, rejected, err := f.validate(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if rejected != nil {
		return f.observe(*rejected), nil
	}
	if p == nil {
		return f.observe(f.challenge(req)), nil
	}

	u, err := f.findUser(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	records, err := f.ledger.ValidPermanent(ctx, u.ID.String(), client.ClientID, req.Scopes)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to find consents: %w", err)
	}
	// a forged POST must not bypass the check made when the consent page was rendered
	if externalConsentMissing(client, records) {
		return f.observe(forbiddenOutcome(ErrorConsentRequired,
			"The logged in user is not allowed to access this client application.")), nil
	}

	out, err := f.signIn(ctx, req, client, u, p, records)
	if err != nil {
		return Outcome{}, err
	}
	return f.observe(out), nil
}

// Deny rejects the request on behalf of the user
func (f *AuthorizeFlow) Deny(ctx context.Context, req AuthorizeRequest) Outcome {
	return f.observe(forbiddenOutcome(ErrorAccessDenied, "The authorization was denied by the end user."))
}

func externalConsentMissing(client *oauth2client.OAuth2Client, records []consent.Record) bool {
	return client.ConsentType == oauth2client.ConsentExternal && len(records) == 0
}

func (f *AuthorizeFlow) mustAuthenticate(req AuthorizeRequest, p *session.Principal) bool {
	if p == nil || req.HasPrompt(PromptLogin) {
		return true
	}
	return req.MaxAge != nil && !p.FreshFor(*req.MaxAge, f.now())
}

func (f *AuthorizeFlow) challenge(req AuthorizeRequest) Outcome {
	if req.HasPrompt(PromptNone) {
		return forbiddenOutcome(ErrorLoginRequired, "The user is not logged in.")
	}
	// the replayed request must not force another login
	params := req.WithoutPrompt(PromptLogin)
	if req.IdentityProvider != "" {
		if !f.providers.Registered(req.IdentityProvider) {
			return forbiddenOutcome(ErrorInvalidRequest,
				fmt.Sprintf("The identity provider %q is not registered.", req.IdentityProvider))
		}
		return Outcome{Kind: OutcomeExternalChallenge, Provider: req.IdentityProvider, Parameters: params}
	}
	return Outcome{Kind: OutcomeChallenge, Parameters: params}
}

// validate returns an integrity error for requests that cannot be answered with a
// redirect, and a Forbidden outcome for client-correctable problems
func (f *AuthorizeFlow) validate(ctx context.Context, req AuthorizeRequest) (*oauth2client.OAuth2Client, *Outcome, error) {
	client, err := f.clients.GetClient(ctx, req.ClientID)
	if errors.Is(err, oauth2client.ErrClientNotFound) {
		return nil, nil, idmerrors.Wrapf(err, idmerrors.ErrCodeClientNotFound, "client %s is not registered", req.ClientID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load client %s: %w", req.ClientID, err)
	}
	if !client.ValidateRedirectURI(req.RedirectURI) {
		return nil, nil, idmerrors.Newf(idmerrors.ErrCodeInvalidInput, "redirect_uri is not registered for client %s", client.ClientID)
	}

	reject := func(code, description string) (*oauth2client.OAuth2Client, *Outcome, error) {
		out := Outcome{Kind: OutcomeForbidden, Error: badRequest(code, description)}
		return nil, &out, nil
	}
	if req.ResponseType != "code" {
		return reject(ErrorUnsupportedResponseType, "Only the authorization code flow is supported.")
	}
	if !client.AllowsGrant(oauth2client.GrantAuthorizationCode) {
		return reject(ErrorUnauthorizedClient, "The client is not allowed to use the authorization code flow.")
	}
	if len(req.Scopes) == 0 || !client.ValidateScope(req.Scopes) {
		return reject(ErrorInvalidScope, "The requested scope is not allowed for this client.")
	}
	if req.CodeChallenge == "" {
		if client.RequirePKCE || client.IsPublic() {
			return reject(ErrorInvalidRequest, "The 'code_challenge' parameter is required.")
		}
	} else if err := pkce.ValidateChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return reject(ErrorInvalidRequest, "The code challenge is invalid.")
	}
	return client, nil, nil
}

func (f *AuthorizeFlow) findUser(ctx context.Context, p *session.Principal) (user.User, error) {
	u, err := f.users.FindByID(ctx, p.Subject)
	if errors.Is(err, user.ErrUserNotFound) {
		return user.User{}, idmerrors.Wrapf(err, idmerrors.ErrCodeUserNotFound, "signed in user %s does not exist", p.Subject)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// signIn builds the identity, attaches the reused or new consent and issues a code
func (f *AuthorizeFlow) signIn(ctx context.Context, req AuthorizeRequest, client *oauth2client.OAuth2Client, u user.User, p *session.Principal, records []consent.Record) (Outcome, error) {
	set, err := f.builder.Build(ctx, p.ClaimSource(u), req.Scopes)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build claims: %w", err)
	}

	record, err := f.ledger.Reuse(ctx, records, u.ID.String(), client.ClientID, req.Scopes)
	if err != nil {
		return Outcome{}, err
	}
	set.Replace(claims.TypeConsentID, record.ID.String())
	set.ApplyDestinations(req.Scopes)
	if err := set.Validate(); err != nil {
		return Outcome{}, err
	}

	code, err := randomToken()
	if err != nil {
		return Outcome{}, err
	}
	now := f.now().UTC()
	grant := &Grant{
		Kind:                KindAuthorizationCode,
		ClientID:            client.ClientID,
		Subject:             u.ID.String(),
		Scopes:              req.Scopes,
		RedirectURI:         req.RedirectURI,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		External:            p.External,
		ConsentID:           record.ID.String(),
		AuthTime:            p.AuthTime,
		CreatedAt:           now,
		ExpiresAt:           now.Add(f.codeLifetime),
	}
	if err := f.grants.Save(ctx, code, grant); err != nil {
		return Outcome{}, fmt.Errorf("failed to store authorization code: %w", err)
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return Outcome{}, idmerrors.Wrap(err, idmerrors.ErrCodeInvalidInput, "redirect_uri is not a valid URL")
	}
	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()

	slog.Info("Authorization granted", "user_id", u.ID, "client_id", client.ClientID, "consent_id", record.ID, "external", p.IsExternal())
	return Outcome{Kind: OutcomeAutoSignIn, RedirectURL: redirect.String(), Identity: set}, nil
}

func (f *AuthorizeFlow) observe(out Outcome) Outcome {
	f.metrics.ObserveAuthorize(string(out.Kind))
	if out.Kind == OutcomeForbidden {
		slog.Info("Authorization rejected", "error", out.Error.ErrorField)
	}
	return out
}
