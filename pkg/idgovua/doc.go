// Package idgovua talks to the id.gov.ua identity service over its encrypted channel.
//
// A user-info request is a strict three stage pipeline: fetch the service's current
// encryption certificate, fetch the user info enveloped for that certificate, then open
// the envelope with the server's own key material. Each stage returns a Result and the
// pipeline stops at the first failing stage.
//
// Failures are typed AuthError values (Encryption, IdGovUa, Unknown) carrying the HTTP
// status that produced them. Nothing in this package panics on a remote failure.
//
// The key material lives in a CryptoContext. The context is process wide, initialized
// exactly once, and a Channel refuses to start on top of a context that failed to
// initialize.
package idgovua
