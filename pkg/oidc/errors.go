package oidc

import (
	"net/http"

	"github.com/ory/fosite"
)

const (
	ErrorLoginRequired           = "login_required"
	ErrorConsentRequired         = "consent_required"
	ErrorInvalidRequest          = "invalid_request"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidScope            = "invalid_scope"
	ErrorAccessDenied            = "access_denied"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorAuthorizationPending    = "authorization_pending"
	ErrorExpiredToken            = "expired_token"
	ErrorInvalidToken            = "invalid_token"
)

func protocolError(code, description string, status int) *fosite.RFC6749Error {
	return &fosite.RFC6749Error{
		ErrorField:       code,
		DescriptionField: description,
		CodeField:        status,
	}
}

// forbidden is the shape of every user-facing rejection of the authorize and token endpoints
func forbidden(code, description string) *fosite.RFC6749Error {
	return protocolError(code, description, http.StatusForbidden)
}

func badRequest(code, description string) *fosite.RFC6749Error {
	return protocolError(code, description, http.StatusBadRequest)
}

func invalidGrant(description string) *fosite.RFC6749Error {
	return forbidden(ErrorInvalidGrant, description)
}
