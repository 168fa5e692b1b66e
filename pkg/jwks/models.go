package jwks

import (
	"crypto/rsa"
	"time"
)

// JWKS is a JSON Web Key Set (RFC 7517)
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a signing key
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeyPair is an RSA signing key with its key id
type KeyPair struct {
	Kid        string
	Alg        string
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
	Active     bool
}

func (kp *KeyPair) PublicKey() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

// ToJWK converts a KeyPair to a JWK (public key only)
func (kp *KeyPair) ToJWK() JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.Kid,
		Alg: kp.Alg,
		N:   EncodeRSAPublicKeyModulus(kp.PublicKey()),
		E:   EncodeRSAPublicKeyExponent(kp.PublicKey()),
	}
}
