package idgovua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tendant/edu-idm/pkg/metrics"
)

// Config holds the id.gov.ua endpoints used by the channel
type Config struct {
	CertificateURL string
	UserInfoURL    string
	FieldsKey      string
	FieldsValue    string
}

const (
	DefaultFieldsKey   = "fields"
	DefaultFieldsValue = "givenname,middlename,lastname,email,drfocode,edrpoucode"

	stageCertificate = "certificate"
	stageUserInfo    = "userinfo"
	stageDecrypt     = "decrypt"

	maxBodySize = 1 << 20
)

// Channel runs the certificate, user-info, decrypt pipeline
type Channel struct {
	config  Config
	client  *http.Client
	crypto  CryptoContext
	trust   *TrustStore
	metrics *metrics.Metrics
}

type Option func(*Channel)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Channel) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTrustStore makes the channel reject certificates from untrusted issuers
func WithTrustStore(trust *TrustStore) Option {
	return func(c *Channel) {
		c.trust = trust
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

func defaultHTTPClient() *http.Client {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = 30 * time.Second
	return client
}

// NewChannel initializes the crypto context and fails when it cannot be initialized
func NewChannel(config Config, crypto CryptoContext, opts ...Option) (*Channel, error) {
	if config.CertificateURL == "" || config.UserInfoURL == "" {
		return nil, fmt.Errorf("certificate and user info endpoints are required")
	}
	if crypto == nil {
		return nil, fmt.Errorf("crypto context is required")
	}
	if err := crypto.Initialize(); err != nil {
		return nil, err
	}
	if !crypto.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if config.FieldsKey == "" {
		config.FieldsKey = DefaultFieldsKey
	}
	if config.FieldsValue == "" {
		config.FieldsValue = DefaultFieldsValue
	}

	c := &Channel{
		config: config,
		client: defaultHTTPClient(),
		crypto: crypto,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetUserInfo resolves the verified identity of remoteUserID.
// A failing stage ends the pipeline; later stages are not called.
func (c *Channel) GetUserInfo(ctx context.Context, remoteUserID, backchannelToken string) Result[VerifiedIdentity] {
	defer c.metrics.ObservePipeline(time.Now())

	certificate := c.fetchCertificate(ctx)
	envelope := Then(certificate, func(cert string) Result[[]byte] {
		return c.fetchEnvelope(ctx, remoteUserID, backchannelToken, cert)
	})
	identity := Then(envelope, func(env []byte) Result[VerifiedIdentity] {
		return c.decrypt(ctx, env)
	})

	if err := identity.Err(); err != nil {
		slog.Warn("External user info could not be resolved",
			"user_id", remoteUserID, "kind", err.Kind.String(), "status", err.StatusCode, "error", err)
	}
	return identity
}

func (c *Channel) fetchCertificate(ctx context.Context) Result[string] {
	status, body, err := c.get(ctx, c.config.CertificateURL)
	if err != nil {
		c.metrics.ObserveStage(stageCertificate, "error")
		return Fail[string](EncryptionError(status, MessageCertificateFailed, err))
	}
	if status < 200 || status > 299 {
		c.metrics.ObserveStage(stageCertificate, "error")
		return Fail[string](EncryptionError(status, MessageCertificateFailed, &StatusError{StatusCode: status}))
	}

	certificate := strings.TrimSpace(string(body))
	if certificate == "" {
		c.metrics.ObserveStage(stageCertificate, "error")
		return Fail[string](EncryptionError(status, MessageCertificateFailed, fmt.Errorf("empty certificate")))
	}
	if c.trust != nil {
		if err := c.trust.Verify(certificate); err != nil {
			c.metrics.ObserveStage(stageCertificate, "untrusted")
			return Fail[string](EncryptionError(status, MessageCertificateFailed, err))
		}
	}

	c.metrics.ObserveStage(stageCertificate, "ok")
	return Ok(certificate)
}

func (c *Channel) fetchEnvelope(ctx context.Context, remoteUserID, token, certificate string) Result[[]byte] {
	endpoint, err := url.Parse(c.config.UserInfoURL)
	if err != nil {
		c.metrics.ObserveStage(stageUserInfo, "error")
		return Fail[[]byte](UnknownError(0, MessageUnexpected, fmt.Errorf("invalid user info endpoint: %w", err)))
	}
	query := endpoint.Query()
	query.Set("access_token", token)
	query.Set("user_id", remoteUserID)
	query.Set(c.config.FieldsKey, c.config.FieldsValue)
	query.Set("certificate", certificate)
	endpoint.RawQuery = query.Encode()

	status, body, err := c.get(ctx, endpoint.String())
	if err != nil {
		c.metrics.ObserveStage(stageUserInfo, "error")
		return Fail[[]byte](UnknownError(status, MessageUnexpected, err))
	}
	if status < 200 || status > 299 {
		c.metrics.ObserveStage(stageUserInfo, "error")
		return Fail[[]byte](errorFromResponse(status, body))
	}

	c.metrics.ObserveStage(stageUserInfo, "ok")
	return Ok(body)
}

func (c *Channel) decrypt(ctx context.Context, envelope []byte) Result[VerifiedIdentity] {
	plaintext, err := c.crypto.Decrypt(ctx, envelope)
	if err != nil {
		c.metrics.ObserveStage(stageDecrypt, "error")
		status := http.StatusInternalServerError
		var se *StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		return Fail[VerifiedIdentity](EncryptionError(status, MessageDecryptFailed, err))
	}

	var identity VerifiedIdentity
	if err := json.Unmarshal(plaintext, &identity); err != nil {
		c.metrics.ObserveStage(stageDecrypt, "error")
		return Fail[VerifiedIdentity](EncryptionError(http.StatusInternalServerError, MessageDecryptFailed, err))
	}

	c.metrics.ObserveStage(stageDecrypt, "ok")
	return Ok(identity)
}

func (c *Channel) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
