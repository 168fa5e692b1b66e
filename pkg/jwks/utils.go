package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
)

func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, bits)
}

// EncodeRSAPublicKeyModulus encodes the RSA public key modulus as base64url
func EncodeRSAPublicKeyModulus(publicKey *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes())
}

// EncodeRSAPublicKeyExponent encodes the RSA public key exponent as base64url
func EncodeRSAPublicKeyExponent(publicKey *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes())
}

// KeyID derives a stable key id from the public key (RFC 7638 style thumbprint of n and e)
func KeyID(publicKey *rsa.PublicKey) string {
	thumb := fmt.Sprintf(`{"e":"%s","kty":"RSA","n":"%s"}`,
		EncodeRSAPublicKeyExponent(publicKey), EncodeRSAPublicKeyModulus(publicKey))
	sum := sha256.Sum256([]byte(thumb))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func EncodePrivateKeyToPEM(privateKey *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}))
}

// DecodePrivateKeyFromPEM decodes an RSA private key in PKCS#1 or PKCS#8 form
func DecodePrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("parsed key is not an RSA private key")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("invalid PEM block type: %s (expected RSA PRIVATE KEY or PRIVATE KEY)", block.Type)
	}
}

// LoadOrGenerateKey reads a PEM key from path, generating and writing a 2048-bit key when
// the file does not exist. An empty path yields an ephemeral key.
func LoadOrGenerateKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		slog.Warn("No signing key file configured, using an ephemeral key")
		return GenerateRSAKeyPair(2048)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return DecodePrivateKeyFromPEM(string(data))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	key, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(EncodePrivateKeyToPEM(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}
	slog.Info("Generated signing key", "path", path)
	return key, nil
}
