package oidc

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ory/fosite"
)

const (
	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"
)

// AuthorizeRequest is a parsed /connect/authorize request
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	ResponseMode        string
	Scopes              fosite.Arguments
	State               string
	Nonce               string
	Prompt              fosite.Arguments
	MaxAge              *time.Duration
	IdentityProvider    string
	CodeChallenge       string
	CodeChallengeMethod string
	// Raw keeps every received parameter so the request can be replayed after a challenge
	Raw url.Values
}

// ParseAuthorizeRequest reads the request parameters; it does not check them against a client
func ParseAuthorizeRequest(params url.Values) (AuthorizeRequest, error) {
	req := AuthorizeRequest{
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		ResponseType:        params.Get("response_type"),
		ResponseMode:        params.Get("response_mode"),
		Scopes:              splitArguments(params.Get("scope")),
		State:               params.Get("state"),
		Nonce:               params.Get("nonce"),
		Prompt:              splitArguments(params.Get("prompt")),
		IdentityProvider:    params.Get("identity_provider"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
		Raw:                 cloneValues(params),
	}
	if req.ClientID == "" {
		return req, badRequest(ErrorInvalidRequest, "The mandatory 'client_id' parameter is missing.")
	}
	if v := params.Get("max_age"); v != "" {
		seconds, err := strconv.ParseInt(v, 10, 64)
		if err != nil || seconds < 0 {
			return req, badRequest(ErrorInvalidRequest, fmt.Sprintf("The 'max_age' parameter %q is invalid.", v))
		}
		d := time.Duration(seconds) * time.Second
		req.MaxAge = &d
	}
	if req.Prompt.Has(PromptNone) && len(req.Prompt) > 1 {
		return req, badRequest(ErrorInvalidRequest, "The 'none' prompt cannot be combined with other values.")
	}
	return req, nil
}

func (r AuthorizeRequest) HasPrompt(prompt string) bool {
	return r.Prompt.Has(prompt)
}

// ScopeString is the space separated scope list
func (r AuthorizeRequest) ScopeString() string {
	return strings.Join(r.Scopes, " ")
}

// WithoutPrompt returns the raw parameters with prompt removed; the remaining
// prompt values are re-joined into a single string
func (r AuthorizeRequest) WithoutPrompt(prompt string) url.Values {
	out := cloneValues(r.Raw)
	remaining := slices.DeleteFunc(slices.Clone([]string(r.Prompt)), func(p string) bool { return p == prompt })
	if len(remaining) == 0 {
		out.Del("prompt")
	} else {
		out.Set("prompt", strings.Join(remaining, " "))
	}
	return out
}

func splitArguments(v string) fosite.Arguments {
	fields := strings.Fields(v)
	out := make(fosite.Arguments, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = slices.Clone(vals)
	}
	return out
}
