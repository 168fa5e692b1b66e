package pkce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyS256(t *testing.T) {
	// RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	assert.Equal(t, challenge, Challenge(verifier, MethodS256))
	assert.NoError(t, Verify(verifier, challenge, "S256"))
	assert.NoError(t, ValidateChallenge(challenge, "S256"))
	assert.ErrorIs(t, Verify(strings.Repeat("a", 43), challenge, "S256"), ErrVerifierMismatch)
}

func TestVerifyPlain(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, verifier, 43)

	assert.NoError(t, Verify(verifier, verifier, ""), "empty method means plain")
	assert.NoError(t, Verify(verifier, verifier, "plain"))
	assert.ErrorIs(t, Verify(verifier, verifier, "S512"), ErrUnsupportedMethod)
}

func TestVerifyRejectsMalformedVerifier(t *testing.T) {
	assert.ErrorIs(t, Verify("", "x", "plain"), ErrMissingVerifier)
	assert.ErrorIs(t, Verify("short", "short", "plain"), ErrInvalidVerifier)
	assert.ErrorIs(t, Verify(strings.Repeat("a", 129), "x", "plain"), ErrInvalidVerifier)
	assert.ErrorIs(t, Verify(strings.Repeat("a", 42)+"!", "x", "plain"), ErrInvalidVerifier)
}

func TestValidateChallenge(t *testing.T) {
	assert.Error(t, ValidateChallenge("abc", "S256"))
	assert.ErrorIs(t, ValidateChallenge("abc", "plain"), ErrInvalidVerifier)
	assert.ErrorIs(t, ValidateChallenge(strings.Repeat("a", 43), "md5"), ErrUnsupportedMethod)
}
