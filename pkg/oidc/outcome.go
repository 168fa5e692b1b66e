package oidc

import (
	"net/url"

	"github.com/ory/fosite"

	"github.com/tendant/edu-idm/pkg/claims"
)

type OutcomeKind string

const (
	OutcomeChallenge         OutcomeKind = "challenge"
	OutcomeExternalChallenge OutcomeKind = "external_challenge"
	OutcomeForbidden         OutcomeKind = "forbidden"
	OutcomeAutoSignIn        OutcomeKind = "auto_sign_in"
	OutcomeRenderConsent     OutcomeKind = "render_consent"
)

// ConsentView is what the consent page needs to ask the user
type ConsentView struct {
	ApplicationName string     `json:"application_name"`
	ClientID        string     `json:"client_id"`
	Scope           string     `json:"scope"`
	XSRF            string     `json:"xsrf"`
	Parameters      url.Values `json:"parameters"`
}

// Outcome is the result of an authorize decision
type Outcome struct {
	Kind OutcomeKind
	// Error is set for Forbidden
	Error *fosite.RFC6749Error
	// Provider is the external scheme for ExternalChallenge
	Provider string
	// Parameters is the authorize request to replay once the challenge completes
	Parameters url.Values
	// RedirectURL is the client redirect carrying the code for AutoSignIn
	RedirectURL string
	Consent     *ConsentView
	// Identity is the claim set the sign-in was built from
	Identity *claims.Set
}

func forbiddenOutcome(code, description string) Outcome {
	return Outcome{Kind: OutcomeForbidden, Error: forbidden(code, description)}
}
