// Package wellknown serves OpenID Connect discovery and the public signing
// keys under /.well-known.
package wellknown
