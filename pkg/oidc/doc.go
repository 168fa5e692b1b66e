// Package oidc implements the authorization server flows: the authorize state
// machine with consent handling, the token endpoint grants, device authorization
// and userinfo.
//
// AuthorizeFlow turns a request and the browser session into an Outcome. Sign-ins
// issue single use authorization codes kept in a GrantStore (memory or Redis).
// TokenExchangeFlow redeems codes, refresh tokens, device codes and passwords and
// always rebuilds the claims from the current account, so role or email changes
// reach the next token.
package oidc
