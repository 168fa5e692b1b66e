// Package oauth2client holds the client applications allowed to request tokens.
//
// Each client declares a ConsentType, which the authorization endpoint uses
// to decide between automatic sign-in and the consent screen, and the redirect
// URIs, scopes and grant types it may use. Confidential client secrets are
// stored as bcrypt hashes.
//
// Clients are usually loaded from a JSON file:
//
//	[
//	  {
//	    "client_id": "portal",
//	    "secret_hash": "$2a$10$...",
//	    "display_name": "Provider portal",
//	    "client_type": "confidential",
//	    "consent_type": "implicit",
//	    "redirect_uris": ["https://portal.example.ua/signin-oidc"],
//	    "post_logout_redirect_uris": ["https://portal.example.ua/"],
//	    "grant_types": ["authorization_code", "refresh_token"],
//	    "scopes": ["openid", "profile", "email", "roles", "offline_access"]
//	  }
//	]
package oauth2client
