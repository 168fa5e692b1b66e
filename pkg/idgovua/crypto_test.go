package idgovua

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/edu-idm/pkg/jwks"
)

func TestKeyContextInitializeFromFile(t *testing.T) {
	key := generateKey(t)
	path := filepath.Join(t.TempDir(), "idgovua.pem")
	require.NoError(t, os.WriteFile(path, []byte(jwks.EncodePrivateKeyToPEM(key)), 0600))

	c := NewKeyContext(path)
	assert.False(t, c.IsInitialized())
	require.NoError(t, c.Initialize())
	assert.True(t, c.IsInitialized())

	plaintext, err := c.Decrypt(context.Background(), []byte(seal(t, &key.PublicKey, []byte("hello"))))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plaintext))
}

func TestKeyContextFailureIsPermanent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pem")
	c := NewKeyContext(path)

	first := c.Initialize()
	require.Error(t, first)

	// a key appearing later does not revive a failed context
	require.NoError(t, os.WriteFile(path, []byte(jwks.EncodePrivateKeyToPEM(generateKey(t))), 0600))
	assert.Equal(t, first, c.Initialize())
	assert.False(t, c.IsInitialized())

	_, err := c.Decrypt(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestKeyContextConcurrentDecrypt(t *testing.T) {
	key := generateKey(t)
	c := NewKeyContextWithKey(key)
	envelope := []byte(seal(t, &key.PublicKey, []byte("payload")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Decrypt(context.Background(), envelope)
			assert.NoError(t, err)
			assert.Equal(t, "payload", string(out))
		}()
	}
	wg.Wait()
}

func TestRemoteContextRequiresInitialize(t *testing.T) {
	c := NewRemoteContext("http://localhost/decrypt", nil)
	_, err := c.Decrypt(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, c.Initialize())
	require.NoError(t, c.Initialize())
	assert.True(t, c.IsInitialized())
}

func TestRemoteContextDecryptCapsResponse(t *testing.T) {
	var size atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "envelope", string(body))
		_, _ = w.Write(bytes.Repeat([]byte("a"), int(size.Load())))
	}))
	defer srv.Close()

	c := NewRemoteContext(srv.URL, srv.Client())
	require.NoError(t, c.Initialize())

	size.Store(16)
	plain, err := c.Decrypt(context.Background(), []byte("envelope"))
	require.NoError(t, err)
	assert.Len(t, plain, 16)

	size.Store(maxBodySize + 1)
	_, err = c.Decrypt(context.Background(), []byte("envelope"))
	assert.ErrorContains(t, err, "exceeds")
}
