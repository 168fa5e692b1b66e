package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

type ChallengeMethod string

const (
	MethodPlain ChallengeMethod = "plain"
	MethodS256  ChallengeMethod = "S256"
)

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

var (
	ErrVerifierMismatch  = errors.New("code verifier does not match challenge")
	ErrMissingVerifier   = errors.New("code verifier is required")
	ErrInvalidVerifier   = errors.New("code verifier must be 43-128 unreserved characters")
	ErrUnsupportedMethod = errors.New("unsupported code challenge method")
)

// ParseMethod maps an empty method to plain as RFC 7636 prescribes
func ParseMethod(method string) (ChallengeMethod, error) {
	switch ChallengeMethod(method) {
	case "", MethodPlain:
		return MethodPlain, nil
	case MethodS256:
		return MethodS256, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
}

// GenerateCodeVerifier returns 32 random bytes, base64url encoded (43 chars)
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func Challenge(verifier string, method ChallengeMethod) string {
	if method == MethodS256 {
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:])
	}
	return verifier
}

// ValidateChallenge checks a challenge as received on the authorize request
func ValidateChallenge(challenge string, method string) error {
	m, err := ParseMethod(method)
	if err != nil {
		return err
	}
	if m == MethodS256 && len(challenge) != 43 {
		return fmt.Errorf("invalid S256 code challenge length %d", len(challenge))
	}
	if m == MethodPlain && !validVerifier(challenge) {
		return ErrInvalidVerifier
	}
	return nil
}

// Verify compares verifier against the challenge stored with the code
func Verify(verifier, challenge string, method string) error {
	if verifier == "" {
		return ErrMissingVerifier
	}
	if !validVerifier(verifier) {
		return ErrInvalidVerifier
	}
	m, err := ParseMethod(method)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(Challenge(verifier, m)), []byte(challenge)) != 1 {
		return ErrVerifierMismatch
	}
	return nil
}

func validVerifier(v string) bool {
	if len(v) < minVerifierLength || len(v) > maxVerifierLength {
		return false
	}
	for _, c := range v {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
