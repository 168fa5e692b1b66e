package idgovua

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func sealIdentity(t *testing.T, pub *rsa.PublicKey, identity VerifiedIdentity) string {
	t.Helper()
	plaintext, err := json.Marshal(identity)
	require.NoError(t, err)
	return seal(t, pub, plaintext)
}

func seal(t *testing.T, pub *rsa.PublicKey, plaintext []byte) string {
	t.Helper()
	encrypter, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.RSA_OAEP_256, Key: pub}, nil)
	require.NoError(t, err)
	obj, err := encrypter.Encrypt(plaintext)
	require.NoError(t, err)
	compact, err := obj.CompactSerialize()
	require.NoError(t, err)
	return compact
}

// selfSignedCertificate returns a base64 DER certificate issued by issuerCN
func selfSignedCertificate(t *testing.T, issuerCN string) string {
	t.Helper()
	key := generateKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: issuerCN},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

// fakeIdGovUa serves the three endpoints and counts calls to each
type fakeIdGovUa struct {
	server *httptest.Server

	certCalls     atomic.Int32
	userInfoCalls atomic.Int32
	decryptCalls  atomic.Int32

	certHandler     http.HandlerFunc
	userInfoHandler http.HandlerFunc
	decryptHandler  http.HandlerFunc
}

func newFakeIdGovUa(t *testing.T) *fakeIdGovUa {
	f := &fakeIdGovUa{}
	mux := http.NewServeMux()
	mux.HandleFunc("/cert", func(w http.ResponseWriter, r *http.Request) {
		f.certCalls.Add(1)
		f.certHandler(w, r)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.userInfoCalls.Add(1)
		f.userInfoHandler(w, r)
	})
	mux.HandleFunc("/decrypt", func(w http.ResponseWriter, r *http.Request) {
		f.decryptCalls.Add(1)
		f.decryptHandler(w, r)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	f.certHandler = func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("Y2VydA==")) }
	f.userInfoHandler = func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("envelope")) }
	f.decryptHandler = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }
	return f
}

func (f *fakeIdGovUa) config() Config {
	return Config{
		CertificateURL: f.server.URL + "/cert",
		UserInfoURL:    f.server.URL + "/userinfo",
	}
}
