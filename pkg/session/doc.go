// Package session keeps the browser sign-in in an HS256 JWT cookie.
//
// The cookie carries the subject, display name, email, roles, the time of
// sign-in (used for max_age checks), the claims copied from an external
// provider and an anti-forgery value that consent forms echo back.
package session
