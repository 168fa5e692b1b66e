// Package api serves the local account pages under /account: the login view,
// password sign-in that establishes the session cookie, and sign-out.
package api
