// Package claims builds the claim set placed into issued tokens.
//
// A Source (Local or External) is chosen once per request and passed to
// Builder.Build together with the granted scopes. Every claim is routed to
// the access token; claims tied to a scope (profile, email, roles) also go to
// the identity token when that scope was granted. The security stamp is kept
// in the set for server-side checks and never routed to a token.
package claims
