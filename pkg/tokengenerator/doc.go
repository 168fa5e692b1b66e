// Package tokengenerator signs RS256 access and identity tokens with the
// active key from the jwks package and verifies tokens it issued.
package tokengenerator
