// Package externallogin finishes a login made at an external identity provider.
//
// The callback resolves the verified identity through the external identity bridge,
// finds the local account whose user name is the national tax id, creates it on
// first use with the default external role, and hands back the session principal
// to sign in. Every failure produces a login view that keeps the return URL, the
// selected role and the provider.
package externallogin
