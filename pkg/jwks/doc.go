// Package jwks manages the RSA keys that sign issued tokens and publishes
// their public halves as a JSON Web Key Set.
package jwks
