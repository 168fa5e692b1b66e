package idgovua

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// CASettings is the trust configuration for one certificate issuer
type CASettings struct {
	IssuerCN string   `json:"issuerCNs"`
	Address  string   `json:"address"`
	OCSPURL  string   `json:"ocspAccessPointAddress"`
	CMPURL   string   `json:"cmpAddress"`
	Aliases  []string `json:"aliases,omitempty"`
}

// TrustStore is the read-only set of trusted issuers, loaded once at start-up
type TrustStore struct {
	anchors map[string]CASettings
}

func NewTrustStore(settings []CASettings) *TrustStore {
	store := &TrustStore{anchors: make(map[string]CASettings, len(settings))}
	for _, s := range settings {
		store.anchors[s.IssuerCN] = s
		for _, alias := range s.Aliases {
			store.anchors[alias] = s
		}
	}
	return store
}

// LoadTrustStore reads a JSON array of CASettings
func LoadTrustStore(path string) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust file: %w", err)
	}
	var settings []CASettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse trust file: %w", err)
	}
	if len(settings) == 0 {
		return nil, fmt.Errorf("trust file %s contains no issuers", path)
	}
	return NewTrustStore(settings), nil
}

func (s *TrustStore) Lookup(issuerCN string) (CASettings, bool) {
	settings, ok := s.anchors[issuerCN]
	return settings, ok
}

func (s *TrustStore) Len() int {
	return len(s.anchors)
}

// Verify checks that the certificate parses and was issued by a trusted issuer
func (s *TrustStore) Verify(certificate string) error {
	cert, err := parseCertificate(certificate)
	if err != nil {
		return err
	}
	if _, ok := s.Lookup(cert.Issuer.CommonName); !ok {
		return fmt.Errorf("certificate issuer %q is not trusted", cert.Issuer.CommonName)
	}
	return nil
}

// parseCertificate accepts PEM or base64 encoded DER
func parseCertificate(raw string) (*x509.Certificate, error) {
	raw = strings.TrimSpace(raw)
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		return x509.ParseCertificate(block.Bytes)
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
