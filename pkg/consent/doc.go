// Package consent is the ledger of client authorizations.
//
// A valid permanent record for (subject, client) whose scopes cover a request
// lets the authorization endpoint skip the interactive consent screen. When
// several records match, the most recently created one is reused.
package consent
