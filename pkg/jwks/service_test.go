package jwks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWKSService(t *testing.T) {
	ctx := context.Background()
	key, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	service, err := NewJWKSServiceWithKey(key)
	require.NoError(t, err)

	active, err := service.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, KeyID(&key.PublicKey), active.Kid)
	assert.Equal(t, "RS256", active.Alg)

	set, err := service.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.Equal(t, "AQAB", set.Keys[0].E)

	rotated, err := service.RotateKeys(ctx)
	require.NoError(t, err)
	active, err = service.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotated.Kid, active.Kid)

	old, err := service.GetKeyByID(ctx, KeyID(&key.PublicKey))
	require.NoError(t, err)
	assert.False(t, old.Active)

	set, err = service.GetJWKS(ctx)
	require.NoError(t, err)
	assert.Len(t, set.Keys, 2, "rotated keys stay published")

	_, err = service.GetKeyByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = service.AddKey(ctx, key, false)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signing.pem")

	first, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	second, err := LoadOrGenerateKey(path)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	ephemeral, err := LoadOrGenerateKey("")
	require.NoError(t, err)
	assert.NotNil(t, ephemeral)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = LoadOrGenerateKey(bad)
	assert.Error(t, err)
}

func TestDecodePrivateKeyFromPEM(t *testing.T) {
	key, err := GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	decoded, err := DecodePrivateKeyFromPEM(EncodePrivateKeyToPEM(key))
	require.NoError(t, err)
	assert.True(t, key.Equal(decoded))

	_, err = DecodePrivateKeyFromPEM("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")
	assert.Error(t, err)
}
